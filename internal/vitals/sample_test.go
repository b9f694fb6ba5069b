package vitals

import (
	"errors"
	"testing"
	"time"
)

func TestParseSample(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"integer", `{"bpm":72}`, 72},
		{"float rounds", `{"bpm":72.6}`, 73},
		{"numeric string", `{"bpm":"88.2"}`, 88},
		{"extra fields", `{"bpm":64,"patientId":3}`, 64},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, err := ParseSample([]byte(c.raw), now)
			if err != nil {
				t.Fatalf("ParseSample failed: %v", err)
			}
			if s.BPM != c.want {
				t.Errorf("expected bpm %d, got %d", c.want, s.BPM)
			}
			if !s.Timestamp.Equal(now) {
				t.Errorf("expected receipt timestamp %v, got %v", now, s.Timestamp)
			}
		})
	}
}

func TestParseSample_Malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"bpm":null}`,
		`{"bpm":"abc"}`,
		`{"bpm":-4}`,
		`{"bpm":true}`,
	} {
		_, err := ParseSample([]byte(raw), time.Now())
		if !errors.Is(err, ErrMalformedSample) {
			t.Errorf("%s: expected ErrMalformedSample, got %v", raw, err)
		}
	}
}
