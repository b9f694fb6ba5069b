package backend

import (
	"context"
	"net/http"

	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

// RosterPatient is one entry of a doctor's patient list.
type RosterPatient struct {
	ID        ID     `json:"id"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Age       int    `json:"age,omitempty"`
	MedicalID string `json:"medicalId,omitempty"`
}

// thresholdsBody is the backend wire form of vitals.Thresholds.
type thresholdsBody struct {
	BPMMin int `json:"bpmMin"`
	BPMMax int `json:"bpmMax"`
}

// Roster lists the patients followed by a doctor.
func (c *Client) Roster(ctx context.Context, creds Credentials, doctorID string) ([]RosterPatient, error) {
	var out []RosterPatient
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/patients/medecin/{doctorId}",
		pathParams: map[string]string{"doctorId": doctorID},
		auth:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Thresholds fetches a patient's bounds. A missing record (404) or a zero
// bound falls back to the corresponding value of fallback.
func (c *Client) Thresholds(ctx context.Context, creds Credentials, patientID string, fallback vitals.Thresholds) (vitals.Thresholds, error) {
	var body thresholdsBody
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/thresholds/patient/{patientId}",
		pathParams: map[string]string{"patientId": patientID},
		auth:       true,
	}, &body)
	if IsNotFound(err) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}

	t := fallback
	if body.BPMMin != 0 {
		t.Min = body.BPMMin
	}
	if body.BPMMax != 0 {
		t.Max = body.BPMMax
	}
	return t, nil
}

// SaveThresholds persists a patient's bounds.
func (c *Client) SaveThresholds(ctx context.Context, creds Credentials, patientID string, t vitals.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, creds, request{
		method:     http.MethodPut,
		path:       "/api/v1/thresholds/patient/{patientId}",
		pathParams: map[string]string{"patientId": patientID},
		body:       thresholdsBody{BPMMin: t.Min, BPMMax: t.Max},
		auth:       true,
	}, nil)
	return err
}
