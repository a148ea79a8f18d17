package compliance

import (
	"errors"
	"testing"
	"time"
)

func TestRetentionLimit(t *testing.T) {
	rules := NewRules(nil)

	t.Run("KnownCategories", func(t *testing.T) {
		cases := map[string]int{
			"account_data":   2555,
			"marketing_data": 730,
			"session_data":   90,
		}
		for category, want := range cases {
			got, err := rules.RetentionLimit(category)
			if err != nil {
				t.Errorf("RetentionLimit(%q) failed: %v", category, err)
				continue
			}
			if got != want {
				t.Errorf("RetentionLimit(%q) = %d, want %d", category, got, want)
			}
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		if _, err := rules.RetentionLimit("Account_Data"); err != nil {
			t.Errorf("mixed-case lookup failed: %v", err)
		}
	})

	t.Run("UnknownCategory", func(t *testing.T) {
		if _, err := rules.RetentionLimit("dreams"); !errors.Is(err, ErrUnknownCategory) {
			t.Errorf("expected ErrUnknownCategory, got %v", err)
		}
	})
}

func TestRetentionOverrides(t *testing.T) {
	t.Run("ShortensLimit", func(t *testing.T) {
		rules := NewRules(map[string]int{"marketing_data": 365})
		got, err := rules.RetentionLimit("marketing_data")
		if err != nil {
			t.Fatalf("RetentionLimit failed: %v", err)
		}
		if got != 365 {
			t.Errorf("override not applied: got %d", got)
		}
	})

	t.Run("CannotExtendBuiltin", func(t *testing.T) {
		rules := NewRules(map[string]int{"session_data": 3650})
		got, err := rules.RetentionLimit("session_data")
		if err != nil {
			t.Fatalf("RetentionLimit failed: %v", err)
		}
		if got != 90 {
			t.Errorf("override extended a built-in limit: got %d", got)
		}
	})

	t.Run("AddsNewCategory", func(t *testing.T) {
		rules := NewRules(map[string]int{"crash_dumps": 30})
		got, err := rules.RetentionLimit("crash_dumps")
		if err != nil {
			t.Fatalf("RetentionLimit failed: %v", err)
		}
		if got != 30 {
			t.Errorf("new category limit = %d, want 30", got)
		}
	})
}

func TestCheckRetention(t *testing.T) {
	rules := NewRules(nil)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("WithinWindow", func(t *testing.T) {
		storedAt := now.AddDate(0, 0, -30)
		if err := rules.CheckRetention("session_data", storedAt, now); err != nil {
			t.Errorf("30-day-old session data flagged: %v", err)
		}
	})

	t.Run("ExactlyAtLimit", func(t *testing.T) {
		storedAt := now.AddDate(0, 0, -90)
		if err := rules.CheckRetention("session_data", storedAt, now); err != nil {
			t.Errorf("data exactly at its limit flagged: %v", err)
		}
	})

	t.Run("PastLimit", func(t *testing.T) {
		storedAt := now.AddDate(0, 0, -91)
		err := rules.CheckRetention("session_data", storedAt, now)
		if !errors.Is(err, ErrRetentionViolation) {
			t.Errorf("expected ErrRetentionViolation, got %v", err)
		}
	})

	t.Run("UnknownCategory", func(t *testing.T) {
		err := rules.CheckRetention("dreams", now, now)
		if !errors.Is(err, ErrUnknownCategory) {
			t.Errorf("expected ErrUnknownCategory, got %v", err)
		}
	})
}

func TestCategories(t *testing.T) {
	rules := NewRules(map[string]int{"crash_dumps": 30})
	categories := rules.Categories()

	if len(categories) != len(retentionDays)+1 {
		t.Errorf("expected %d categories, got %d", len(retentionDays)+1, len(categories))
	}
	for i := 1; i < len(categories); i++ {
		if categories[i] < categories[i-1] {
			t.Fatalf("categories not sorted: %v", categories)
		}
	}
}

func TestTransferLegality(t *testing.T) {
	rules := NewRules(nil)

	t.Run("IntraEEA", func(t *testing.T) {
		a := rules.TransferLegality("DE", "FR", []string{"account_data"})
		if !a.Compliant || a.Mechanism != MechanismNone {
			t.Errorf("intra-EEA transfer: %+v", a)
		}
		if len(a.Safeguards) != 0 {
			t.Errorf("intra-EEA transfer needs no safeguards, got %v", a.Safeguards)
		}
	})

	t.Run("AdequacyDecision", func(t *testing.T) {
		a := rules.TransferLegality("DE", "JP", nil)
		if !a.Compliant || a.Mechanism != MechanismAdequacy {
			t.Errorf("transfer to adequacy country: %+v", a)
		}
	})

	t.Run("IntoEEAFromOutside", func(t *testing.T) {
		a := rules.TransferLegality("US", "DE", nil)
		if !a.Compliant || a.Mechanism != MechanismAdequacy {
			t.Errorf("transfer into the EEA: %+v", a)
		}
	})

	t.Run("SCCFallback", func(t *testing.T) {
		a := rules.TransferLegality("DE", "US", nil)
		if !a.Compliant || a.Mechanism != MechanismSCC {
			t.Errorf("transfer to third country: %+v", a)
		}
	})

	t.Run("BlockedDestination", func(t *testing.T) {
		a := rules.TransferLegality("DE", "KP", []string{"account_data"})
		if a.Compliant {
			t.Error("transfer to embargoed destination reported compliant")
		}
		if a.Mechanism != MechanismBlocked {
			t.Errorf("expected blocked mechanism, got %q", a.Mechanism)
		}
	})

	t.Run("RestrictedCategorySafeguards", func(t *testing.T) {
		a := rules.TransferLegality("DE", "US", []string{"ssn", "account_data"})
		if len(a.Safeguards) != 1 {
			t.Fatalf("expected 1 safeguard, got %v", a.Safeguards)
		}
	})

	t.Run("SafeguardsDeduped", func(t *testing.T) {
		// health_data and biometric_data share the same safeguard text.
		a := rules.TransferLegality("DE", "US", []string{"health_data", "biometric_data"})
		if len(a.Safeguards) != 1 {
			t.Errorf("expected deduped safeguards, got %v", a.Safeguards)
		}
	})

	t.Run("CaseInsensitiveCountryCodes", func(t *testing.T) {
		a := rules.TransferLegality("de", "fr", nil)
		if !a.Compliant || a.Mechanism != MechanismNone {
			t.Errorf("lowercase country codes not normalized: %+v", a)
		}
	})
}

func TestAssertTransferable(t *testing.T) {
	rules := NewRules(nil)

	t.Run("CompliantPassesThrough", func(t *testing.T) {
		a, err := rules.AssertTransferable("DE", "US", nil)
		if err != nil {
			t.Fatalf("AssertTransferable failed: %v", err)
		}
		if a.Mechanism != MechanismSCC {
			t.Errorf("unexpected mechanism %q", a.Mechanism)
		}
	})

	t.Run("BlockedIsError", func(t *testing.T) {
		_, err := rules.AssertTransferable("DE", "IR", nil)
		if !errors.Is(err, ErrComplianceBlocked) {
			t.Errorf("expected ErrComplianceBlocked, got %v", err)
		}
	})
}
