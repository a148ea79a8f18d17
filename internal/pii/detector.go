package pii

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dataveil/privacy-sentinel/internal/logger"
	"go.uber.org/zap"
)

// Confidence weights. Their sum is exactly 1.0 so a match that passes
// validation with a canonical length and a context label scores 1.0,
// and a validation pass always outscores an otherwise-identical failure.
const (
	baseConfidence   = 0.40
	validatorBonus   = 0.35
	validatorPenalty = 0.15
	lengthBonus      = 0.10
	labelBonus       = 0.15
	labelWindowBytes = 24
)

// Config controls which detectors run and the reporting threshold.
type Config struct {
	Detectors     []string `yaml:"detectors" mapstructure:"detectors"`
	MinConfidence float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// Detector scans text for PII using the fixed pattern table.
// Detection is a pure function of its input; a Detector is safe for
// unrestricted concurrent use once constructed.
type Detector struct {
	patterns []Pattern
	enabled  map[Kind]bool
	minConf  float64
	logger   *logger.Logger
}

// NewDetector creates a detector with the given kinds enabled.
// The detector name "all" enables every kind.
func NewDetector(cfg Config, log *logger.Logger) (*Detector, error) {
	d := &Detector{
		patterns: DefaultPatterns(),
		enabled:  make(map[Kind]bool),
		minConf:  cfg.MinConfidence,
		logger:   log,
	}

	if err := d.configure(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("PII detector initialized",
		zap.Int("total_patterns", len(d.patterns)),
		zap.Int("enabled_patterns", d.countEnabled()),
		zap.Float64("min_confidence", d.minConf),
	)

	return d, nil
}

// configure enables the requested kinds, rejecting unknown names.
func (d *Detector) configure(detectors []string) error {
	for _, p := range d.patterns {
		d.enabled[p.Kind] = false
	}

	for _, name := range detectors {
		if name == "all" {
			for _, p := range d.patterns {
				d.enabled[p.Kind] = true
			}
			continue
		}

		found := false
		for _, p := range d.patterns {
			if string(p.Kind) == name {
				d.enabled[p.Kind] = true
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown detector: %s", name)
		}
	}

	return nil
}

// Detect runs every enabled recognizer over text, validates candidates
// and returns matches ordered by position of first occurrence. Absence
// of PII yields an empty slice, never an error. Overlapping matches of
// different kinds are all reported; spans are never merged across kinds.
func (d *Detector) Detect(text string) []Match {
	matches := make([]Match, 0)
	if text == "" {
		return matches
	}

	for _, p := range d.patterns {
		if !d.enabled[p.Kind] {
			continue
		}

		for _, loc := range p.Recognizer.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.Group > 0 && len(loc) > 2*p.Group+1 && loc[2*p.Group] >= 0 {
				start, end = loc[2*p.Group], loc[2*p.Group+1]
			}

			value := text[start:end]
			confidence := d.score(p, text, value, start)
			if confidence < d.minConf {
				continue
			}

			matches = append(matches, Match{
				Kind:       p.Kind,
				Value:      value,
				Confidence: confidence,
				Start:      start,
				End:        end,
			})
		}
	}

	// Stable position order so identical input always produces
	// identical output, regardless of pattern table order.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		if matches[i].End != matches[j].End {
			return matches[i].End < matches[j].End
		}
		return matches[i].Kind < matches[j].Kind
	})

	if len(matches) > 0 && d.logger != nil {
		d.logger.Debug("PII detected",
			zap.Int("match_count", len(matches)),
		)
	}

	return matches
}

// score computes the deterministic confidence for one candidate.
func (d *Detector) score(p Pattern, text, value string, start int) float64 {
	confidence := baseConfidence

	if p.Validator != nil {
		if p.Validator(value) {
			confidence += validatorBonus
		} else {
			confidence -= validatorPenalty
		}
	} else {
		confidence += validatorBonus
	}

	if p.CanonicalLen > 0 {
		diff := len(value) - p.CanonicalLen
		if diff < 0 {
			diff = -diff
		}
		closeness := 1.0 - float64(diff)/float64(p.CanonicalLen)
		if closeness > 0 {
			confidence += lengthBonus * closeness
		}
	}

	if hasLabel(text, start, p.Labels) {
		confidence += labelBonus
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// hasLabel reports whether any of the labels appears in the window
// immediately preceding the match, e.g. "SSN: 078-05-1120".
func hasLabel(text string, start int, labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	windowStart := start - labelWindowBytes
	if windowStart < 0 {
		windowStart = 0
	}
	window := strings.ToLower(text[windowStart:start])

	for _, label := range labels {
		if strings.Contains(window, label) {
			return true
		}
	}
	return false
}

// EnabledKinds returns the kinds this detector currently scans for.
func (d *Detector) EnabledKinds() []Kind {
	var kinds []Kind
	for _, p := range d.patterns {
		if d.enabled[p.Kind] {
			kinds = append(kinds, p.Kind)
		}
	}
	return kinds
}

// EnableKind enables detection for a single kind.
func (d *Detector) EnableKind(kind Kind) error {
	for _, p := range d.patterns {
		if p.Kind == kind {
			d.enabled[kind] = true
			return nil
		}
	}
	return fmt.Errorf("unknown kind: %s", kind)
}

// DisableKind disables detection for a single kind.
func (d *Detector) DisableKind(kind Kind) error {
	if _, exists := d.enabled[kind]; !exists {
		return fmt.Errorf("unknown kind: %s", kind)
	}
	d.enabled[kind] = false
	return nil
}

func (d *Detector) countEnabled() int {
	count := 0
	for _, on := range d.enabled {
		if on {
			count++
		}
	}
	return count
}
