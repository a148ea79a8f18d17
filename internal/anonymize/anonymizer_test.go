package anonymize

import (
	"errors"
	"strings"
	"testing"

	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
)

func newTestAnonymizer(t *testing.T) *Anonymizer {
	t.Helper()
	detector, err := pii.NewDetector(pii.Config{
		Detectors:     []string{"all"},
		MinConfidence: 0.35,
	}, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	return New(detector, 0, logger.Nop())
}

func TestText(t *testing.T) {
	a := newTestAnonymizer(t)

	t.Run("ReplacesSpans", func(t *testing.T) {
		result := a.Text("Card: 4111111111111111, IP: 192.168.1.1")

		if strings.Contains(result.Sanitized, "4111111111111111") {
			t.Errorf("card number survived anonymization: %q", result.Sanitized)
		}
		if strings.Contains(result.Sanitized, "192.168.1.1") {
			t.Errorf("IP address survived anonymization: %q", result.Sanitized)
		}
		if !strings.Contains(result.Sanitized, "[REDACTED-CREDIT-CARD]") {
			t.Errorf("missing card placeholder: %q", result.Sanitized)
		}
		if !strings.Contains(result.Sanitized, "[REDACTED-IP-ADDRESS]") {
			t.Errorf("missing IP placeholder: %q", result.Sanitized)
		}
		if len(result.Transforms) != 2 {
			t.Fatalf("expected 2 transforms, got %d", len(result.Transforms))
		}
	})

	t.Run("TransformsInInputOrder", func(t *testing.T) {
		result := a.Text("SSN: 078-05-1120 then email user@example.com")
		for i := 1; i < len(result.Transforms); i++ {
			if result.Transforms[i].Start < result.Transforms[i-1].Start {
				t.Fatalf("transforms out of input order: %+v", result.Transforms)
			}
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		once := a.Text("Card: 4111111111111111, email user@example.com, IP: 10.0.0.1")
		twice := a.Text(once.Sanitized)

		if twice.Sanitized != once.Sanitized {
			t.Errorf("second pass changed output:\n first: %q\nsecond: %q", once.Sanitized, twice.Sanitized)
		}
		if len(twice.Transforms) != 0 {
			t.Errorf("second pass applied %d transforms", len(twice.Transforms))
		}
	})

	t.Run("NoPII", func(t *testing.T) {
		input := "nothing sensitive here"
		result := a.Text(input)
		if result.Sanitized != input {
			t.Errorf("clean text was modified: %q", result.Sanitized)
		}
		if len(result.Transforms) != 0 {
			t.Errorf("unexpected transforms: %+v", result.Transforms)
		}
	})
}

func TestRecord(t *testing.T) {
	a := newTestAnonymizer(t)

	t.Run("NestedStructures", func(t *testing.T) {
		record := map[string]interface{}{
			"user": map[string]interface{}{
				"email": "contact: jane@example.org",
				"age":   42,
			},
			"notes": []interface{}{
				"IP: 192.168.1.1",
				true,
			},
		}

		sanitized, err := a.Record(record)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		user := sanitized["user"].(map[string]interface{})
		if strings.Contains(user["email"].(string), "jane@example.org") {
			t.Errorf("email survived in nested map: %v", user["email"])
		}
		if user["age"] != 42 {
			t.Errorf("non-string leaf changed: %v", user["age"])
		}

		notes := sanitized["notes"].([]interface{})
		if strings.Contains(notes[0].(string), "192.168.1.1") {
			t.Errorf("IP survived in slice: %v", notes[0])
		}
		if notes[1] != true {
			t.Errorf("non-string slice element changed: %v", notes[1])
		}
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		record := map[string]interface{}{"email": "user@example.com"}
		if _, err := a.Record(record); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if record["email"] != "user@example.com" {
			t.Errorf("input record was mutated: %v", record["email"])
		}
	})

	t.Run("DepthBound", func(t *testing.T) {
		deep := map[string]interface{}{}
		current := deep
		for i := 0; i < 40; i++ {
			next := map[string]interface{}{}
			current["inner"] = next
			current = next
		}
		current["email"] = "user@example.com"

		_, err := a.Record(deep)
		if !errors.Is(err, ErrMaxDepth) {
			t.Fatalf("expected ErrMaxDepth, got %v", err)
		}
	})

	t.Run("ShallowRecordWithinBound", func(t *testing.T) {
		shallow := newTestAnonymizer(t)
		record := map[string]interface{}{
			"a": map[string]interface{}{
				"b": map[string]interface{}{"c": "ok"},
			},
		}
		if _, err := shallow.Record(record); err != nil {
			t.Fatalf("shallow record should not hit depth bound: %v", err)
		}
	})
}
