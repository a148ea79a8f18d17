package pii

import "regexp"

// DefaultPatterns returns the fixed recognizer/validator table.
// The order here is not significant; detection results are ordered by
// position in the scanned text.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Kind:         KindSSN,
			Recognizer:   regexp.MustCompile(`\b\d{3}[- ]?\d{2}[- ]?\d{4}\b`),
			Validator:    ValidateSSN,
			CanonicalLen: 11,
			Labels:       []string{"ssn", "social security", "ss#", "taxpayer", "tin"},
			Placeholder:  "[REDACTED-SSN]",
		},
		{
			Kind: KindCreditCard,
			// Major networks plus the generic 4x4 grouping.
			Recognizer:   regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12}|(?:2131|1800|35\d{3})\d{11})\b|\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
			Validator:    ValidateLuhn,
			CanonicalLen: 16,
			Labels:       []string{"card", "credit", "debit", "visa", "mastercard", "amex", "payment", "cc"},
			Placeholder:  "[REDACTED-CREDIT-CARD]",
		},
		{
			Kind:         KindEmail,
			Recognizer:   regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
			Validator:    ValidateEmail,
			CanonicalLen: 20,
			Labels:       []string{"email", "e-mail", "mail"},
			Placeholder:  "[REDACTED-EMAIL]",
		},
		{
			Kind:         KindPhone,
			Recognizer:   regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
			Validator:    ValidatePhone,
			CanonicalLen: 12,
			Labels:       []string{"phone", "tel", "call", "mobile", "cell", "fax", "contact"},
			Placeholder:  "[REDACTED-PHONE]",
		},
		{
			Kind:         KindIPAddress,
			Recognizer:   regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
			Validator:    ValidateIPv4,
			CanonicalLen: 11,
			Labels:       []string{"ip", "address", "host"},
			Placeholder:  "[REDACTED-IP-ADDRESS]",
		},
		{
			Kind:         KindIBAN,
			Recognizer:   regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`),
			Validator:    ValidateIBAN,
			CanonicalLen: 22,
			Labels:       []string{"iban", "bank", "account"},
			Placeholder:  "[REDACTED-IBAN]",
		},
		{
			Kind:         KindName,
			Recognizer:   regexp.MustCompile(`(?i)\bname\s*[:=]\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`),
			Group:        1,
			Validator:    nil,
			CanonicalLen: 12,
			Labels:       []string{"name"},
			Placeholder:  "[REDACTED-NAME]",
		},
		{
			Kind:         KindAddress,
			Recognizer:   regexp.MustCompile(`\b\d{1,5}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way)\b\.?`),
			Validator:    nil,
			CanonicalLen: 20,
			Labels:       []string{"address", "street", "residence", "ship to", "bill to"},
			Placeholder:  "[REDACTED-ADDRESS]",
		},
	}
}

var placeholders = map[Kind]string{
	KindSSN:        "[REDACTED-SSN]",
	KindCreditCard: "[REDACTED-CREDIT-CARD]",
	KindEmail:      "[REDACTED-EMAIL]",
	KindPhone:      "[REDACTED-PHONE]",
	KindIPAddress:  "[REDACTED-IP-ADDRESS]",
	KindIBAN:       "[REDACTED-IBAN]",
	KindName:       "[REDACTED-NAME]",
	KindAddress:    "[REDACTED-ADDRESS]",
}

// PlaceholderFor returns the replacement token used when anonymizing
// a match of the given kind. Unknown kinds get a generic token.
// Placeholders are chosen so that no recognizer matches them, which
// keeps anonymization idempotent.
func PlaceholderFor(kind Kind) string {
	if p, ok := placeholders[kind]; ok {
		return p
	}
	return "[REDACTED]"
}
