package vitals

import "fmt"

// Thresholds are the inclusive BPM bounds that define "in range".
type Thresholds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Validate rejects inverted or negative bounds.
func (t Thresholds) Validate() error {
	if t.Min < 0 || t.Max < 0 {
		return fmt.Errorf("thresholds must be positive (min=%d, max=%d)", t.Min, t.Max)
	}
	if t.Min > t.Max {
		return fmt.Errorf("min threshold %d is above max threshold %d", t.Min, t.Max)
	}
	return nil
}

// IsOutOfRange reports whether the sample lies strictly outside the bounds.
// Values equal to a bound are in range.
func IsOutOfRange(s Sample, t Thresholds) bool {
	return s.BPM < t.Min || s.BPM > t.Max
}

// Level classifies a reading against thresholds.
type Level string

const (
	LevelUnknown    Level = "unknown"
	LevelNormal     Level = "normal"
	LevelWarning    Level = "warning"
	LevelOutOfRange Level = "critical"
)

// Evaluator classifies samples. WarningBand is an opt-in extension: when
// positive, an in-range reading within WarningBand BPM of either bound is
// reported as LevelWarning. The out-of-range decision never depends on it.
type Evaluator struct {
	WarningBand int
}

// Classify returns the level of a sample.
func (e Evaluator) Classify(s Sample, t Thresholds) Level {
	if IsOutOfRange(s, t) {
		return LevelOutOfRange
	}
	if e.WarningBand > 0 && (s.BPM-t.Min <= e.WarningBand || t.Max-s.BPM <= e.WarningBand) {
		return LevelWarning
	}
	return LevelNormal
}
