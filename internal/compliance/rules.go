// Package compliance holds the static regulatory rule tables: maximum
// retention per data category and cross-border transfer legality.
// Every lookup is synchronous, deterministic and free of I/O; external
// jobs consult these tables, the engine never schedules deletions.
package compliance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Errors returned by rule lookups.
var (
	ErrUnknownCategory    = errors.New("unknown data category")
	ErrRetentionViolation = errors.New("retention limit exceeded")
	ErrComplianceBlocked  = errors.New("transfer not permitted")
)

// Transfer mechanisms, in the order a lookup tries them.
const (
	MechanismNone     = "none"                         // intra-EEA, no extra mechanism needed
	MechanismAdequacy = "adequacy_decision"            // destination holds an adequacy decision
	MechanismSCC      = "standard_contractual_clauses" // fallback legal mechanism
	MechanismBlocked  = "blocked"                      // destination embargoed, no lawful mechanism
)

// retentionDays maps data categories to their maximum retention in
// days. Categories not listed are unknown, not unlimited.
var retentionDays = map[string]int{
	"account_data":         2555, // 7 years, contractual basis
	"transaction_records":  2555,
	"consent_records":      2555,
	"marketing_data":       730,
	"support_tickets":      1095,
	"access_logs":          365,
	"behavioral_analytics": 395,
	"session_data":         90,
}

// eeaCountries is the EEA membership set (EU plus IS, LI, NO).
var eeaCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true,
	"CZ": true, "DK": true, "EE": true, "FI": true, "FR": true,
	"DE": true, "GR": true, "HU": true, "IE": true, "IT": true,
	"LV": true, "LT": true, "LU": true, "MT": true, "NL": true,
	"PL": true, "PT": true, "RO": true, "SK": true, "SI": true,
	"ES": true, "SE": true, "IS": true, "LI": true, "NO": true,
}

// blockedCountries may not receive personal data under any mechanism.
var blockedCountries = map[string]bool{
	"KP": true,
	"IR": true,
	"SY": true,
	"CU": true,
}

// adequacyCountries hold an EU adequacy decision.
var adequacyCountries = map[string]bool{
	"AD": true, "AR": true, "CA": true, "CH": true, "FO": true,
	"GB": true, "GG": true, "IL": true, "IM": true, "JE": true,
	"JP": true, "KR": true, "NZ": true, "UY": true,
}

// restrictedCategories require supplementary safeguards whenever they
// leave the EEA, regardless of mechanism.
var restrictedCategories = map[string]string{
	"ssn":            "encryption in transit and at rest",
	"health_data":    "encryption plus access logging",
	"biometric_data": "encryption plus access logging",
}

// TransferAssessment is the outcome of a transfer-legality lookup.
type TransferAssessment struct {
	Compliant  bool     `json:"compliant"`
	Mechanism  string   `json:"mechanism"`
	Safeguards []string `json:"safeguards,omitempty"`
}

// Rules answers retention and transfer questions. The zero value is
// unusable; build one with NewRules so category overrides apply.
type Rules struct {
	retention map[string]int
}

// NewRules builds the rule set. overrides replace or extend the
// built-in retention table, letting deployments shorten limits without
// code changes. Overrides may never extend a built-in limit.
func NewRules(overrides map[string]int) *Rules {
	retention := make(map[string]int, len(retentionDays))
	for category, days := range retentionDays {
		retention[category] = days
	}
	for category, days := range overrides {
		if builtin, ok := retention[category]; ok && days > builtin {
			continue
		}
		retention[category] = days
	}
	return &Rules{retention: retention}
}

// RetentionLimit returns the maximum number of days a category may be
// stored. Unknown categories are an error, never treated as unlimited.
func (r *Rules) RetentionLimit(category string) (int, error) {
	days, ok := r.retention[strings.ToLower(category)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return days, nil
}

// CheckRetention reports whether data of the given category stored at
// storedAt is still within its retention window as of now. Exceeding
// the window returns ErrRetentionViolation wrapped with the overage.
func (r *Rules) CheckRetention(category string, storedAt, now time.Time) error {
	limit, err := r.RetentionLimit(category)
	if err != nil {
		return err
	}

	age := now.Sub(storedAt)
	max := time.Duration(limit) * 24 * time.Hour
	if age > max {
		over := int((age - max).Hours() / 24)
		return fmt.Errorf("%w: %s held %d days past its %d-day limit", ErrRetentionViolation, category, over+1, limit)
	}
	return nil
}

// Categories returns every known retention category, sorted.
func (r *Rules) Categories() []string {
	out := make([]string, 0, len(r.retention))
	for category := range r.retention {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// TransferLegality assesses a cross-border transfer of the given
// categories. Intra-EEA transfers need no mechanism; destinations with
// an adequacy decision are compliant as-is; embargoed destinations are
// never compliant; everything else falls back to standard contractual
// clauses. Restricted categories add named safeguards whenever the
// data leaves the EEA.
func (r *Rules) TransferLegality(srcCountry, dstCountry string, categories []string) TransferAssessment {
	src := strings.ToUpper(srcCountry)
	dst := strings.ToUpper(dstCountry)

	if blockedCountries[dst] {
		return TransferAssessment{Compliant: false, Mechanism: MechanismBlocked}
	}

	if eeaCountries[src] && eeaCountries[dst] {
		return TransferAssessment{Compliant: true, Mechanism: MechanismNone}
	}

	assessment := TransferAssessment{Compliant: true}
	switch {
	case adequacyCountries[dst] || eeaCountries[dst]:
		assessment.Mechanism = MechanismAdequacy
	default:
		assessment.Mechanism = MechanismSCC
	}

	for _, category := range categories {
		if safeguard, ok := restrictedCategories[strings.ToLower(category)]; ok {
			assessment.Safeguards = append(assessment.Safeguards, safeguard)
		}
	}
	sort.Strings(assessment.Safeguards)
	assessment.Safeguards = dedupe(assessment.Safeguards)

	return assessment
}

// AssertTransferable is TransferLegality with the non-compliant case
// promoted to an error, for callers that must refuse the transfer
// rather than report on it.
func (r *Rules) AssertTransferable(srcCountry, dstCountry string, categories []string) (TransferAssessment, error) {
	assessment := r.TransferLegality(srcCountry, dstCountry, categories)
	if !assessment.Compliant {
		return assessment, fmt.Errorf("%w: %s -> %s", ErrComplianceBlocked, srcCountry, dstCountry)
	}
	return assessment, nil
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
