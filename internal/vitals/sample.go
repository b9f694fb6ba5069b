// Package vitals holds the heart-rate sample model, the rolling metrics
// window and the threshold evaluator used by every live patient screen.
package vitals

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedSample is returned when a stream payload cannot be turned into a Sample.
var ErrMalformedSample = errors.New("malformed sample")

// Sample is a single BPM reading, stamped with its receipt time.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       int       `json:"bpm"`
}

type pulsePayload struct {
	BPM json.RawMessage `json:"bpm"`
}

// ParseSample decodes a `{"bpm": number}` payload. The bpm may also be sent as
// a numeric string; it is rounded to the nearest integer.
func ParseSample(raw []byte, receivedAt time.Time) (Sample, error) {
	var p pulsePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformedSample, err)
	}
	if len(p.BPM) == 0 || string(p.BPM) == "null" {
		return Sample{}, fmt.Errorf("%w: missing bpm", ErrMalformedSample)
	}

	text := strings.Trim(string(p.BPM), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: bpm %s is not a number", ErrMalformedSample, p.BPM)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Sample{}, fmt.Errorf("%w: bpm %s out of domain", ErrMalformedSample, p.BPM)
	}

	return Sample{
		Timestamp: receivedAt,
		BPM:       int(math.Round(v)),
	}, nil
}
