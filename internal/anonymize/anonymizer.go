package anonymize

import (
	"errors"
	"fmt"

	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
	"go.uber.org/zap"
)

// ErrMaxDepth is returned when a structured record nests deeper than
// the configured limit. Cyclic records hit this bound instead of
// exhausting the stack.
var ErrMaxDepth = errors.New("record exceeds maximum nesting depth")

// DefaultMaxDepth bounds recursive record walks.
const DefaultMaxDepth = 32

// Transform records one substitution applied during anonymization.
// It exists for auditing; it carries no information that would allow
// reversal of the substitution.
type Transform struct {
	Kind        pii.Kind `json:"kind"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Replacement string   `json:"replacement"`
}

// Result owns the sanitized copy of a text input plus the ordered list
// of substitutions that produced it.
type Result struct {
	Sanitized  string      `json:"sanitized"`
	Transforms []Transform `json:"transforms"`
}

// Anonymizer replaces detected PII spans with kind-specific
// placeholder tokens. It is stateless and safe for concurrent use.
type Anonymizer struct {
	detector *pii.Detector
	maxDepth int
	logger   *logger.Logger
}

// New creates an anonymizer on top of the given detector.
// maxDepth <= 0 selects DefaultMaxDepth.
func New(detector *pii.Detector, maxDepth int, log *logger.Logger) *Anonymizer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Anonymizer{
		detector: detector,
		maxDepth: maxDepth,
		logger:   log,
	}
}

// Text detects PII in text and replaces each span with its kind's
// placeholder. Replacement proceeds right-to-left so earlier offsets
// stay valid while later substitutions change the string length.
// Running Text on its own output is a no-op: placeholders match no
// recognizer.
func (a *Anonymizer) Text(text string) Result {
	matches := a.detector.Detect(text)
	result := Result{
		Sanitized:  text,
		Transforms: make([]Transform, 0, len(matches)),
	}
	if len(matches) == 0 {
		return result
	}

	sanitized := text
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		// A span already consumed by a later (right-er) overlapping
		// replacement no longer exists in the working copy.
		if m.End > len(sanitized) || sanitized[m.Start:m.End] != m.Value {
			continue
		}
		replacement := pii.PlaceholderFor(m.Kind)
		sanitized = sanitized[:m.Start] + replacement + sanitized[m.End:]

		result.Transforms = append(result.Transforms, Transform{
			Kind:        m.Kind,
			Start:       m.Start,
			End:         m.End,
			Replacement: replacement,
		})
	}

	// Transforms were collected right-to-left; flip them so the audit
	// trail reads in input order.
	for i, j := 0, len(result.Transforms)-1; i < j; i, j = i+1, j-1 {
		result.Transforms[i], result.Transforms[j] = result.Transforms[j], result.Transforms[i]
	}

	result.Sanitized = sanitized

	if a.logger != nil && len(result.Transforms) > 0 {
		a.logger.Debug("text anonymized",
			zap.Int("substitutions", len(result.Transforms)),
		)
	}

	return result
}

// Record walks a nested structure and anonymizes every string leaf.
// Maps and slices are copied, never mutated in place; non-string
// leaves pass through unchanged.
func (a *Anonymizer) Record(record map[string]interface{}) (map[string]interface{}, error) {
	out, err := a.walk(record, 0)
	if err != nil {
		return nil, err
	}
	sanitized, ok := out.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected record shape %T", out)
	}
	return sanitized, nil
}

func (a *Anonymizer) walk(value interface{}, depth int) (interface{}, error) {
	if depth > a.maxDepth {
		return nil, fmt.Errorf("%w (%d)", ErrMaxDepth, a.maxDepth)
	}

	switch v := value.(type) {
	case string:
		return a.Text(v).Sanitized, nil

	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, inner := range v {
			sanitized, err := a.walk(inner, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = sanitized
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			sanitized, err := a.walk(inner, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = sanitized
		}
		return out, nil

	default:
		return value, nil
	}
}
