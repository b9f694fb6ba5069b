package backend

import (
	"context"
	"net/http"
)

// SessionInfo is one monitoring session in a patient's history.
type SessionInfo struct {
	ID         ID      `json:"id"`
	PatientID  ID      `json:"patientId,omitempty"`
	ActivityID ID      `json:"activityId,omitempty"`
	StartTime  string  `json:"startTime,omitempty"`
	EndTime    string  `json:"endTime,omitempty"`
	AverageBPM float64 `json:"averageBpm,omitempty"`
	MinBPM     int     `json:"minBpm,omitempty"`
	MaxBPM     int     `json:"maxBpm,omitempty"`
}

// SessionSummary aggregates a finished session.
type SessionSummary struct {
	SessionID       ID      `json:"sessionId"`
	DurationSeconds int     `json:"durationSeconds,omitempty"`
	AverageBPM      float64 `json:"averageBpm,omitempty"`
	MinBPM          int     `json:"minBpm,omitempty"`
	MaxBPM          int     `json:"maxBpm,omitempty"`
	SampleCount     int     `json:"sampleCount,omitempty"`
	OutOfRangeCount int     `json:"outOfRangeCount,omitempty"`
}

// DataPoint is one stored BPM measurement.
type DataPoint struct {
	Timestamp string  `json:"timestamp"`
	BPM       float64 `json:"bpm"`
}

// StartFreeSession opens a session without a planned duration.
func (c *Client) StartFreeSession(ctx context.Context, creds Credentials, patientID string) (string, error) {
	body, err := c.do(ctx, creds, request{
		method: http.MethodPost,
		path:   "/api/v1/cardiac/start",
		body:   map[string]string{"patientId": patientID},
		auth:   true,
	}, nil)
	if err != nil {
		return "", err
	}
	return parseSessionID(body)
}

// StartActivity opens a session bound to a prescribed activity.
func (c *Client) StartActivity(ctx context.Context, creds Credentials, patientID, activityID string) (string, error) {
	body, err := c.do(ctx, creds, request{
		method: http.MethodPost,
		path:   "/api/v1/activities/start-activity",
		body:   map[string]string{"patientId": patientID, "activityId": activityID},
		auth:   true,
	}, nil)
	if err != nil {
		return "", err
	}
	return parseSessionID(body)
}

// StopSession closes the caller's running session.
func (c *Client) StopSession(ctx context.Context, creds Credentials) error {
	_, err := c.do(ctx, creds, request{
		method: http.MethodPost,
		path:   "/api/v1/cardiac/stop",
		auth:   true,
	}, nil)
	return err
}

// Sessions lists a patient's sessions.
func (c *Client) Sessions(ctx context.Context, creds Credentials, patientID string) ([]SessionInfo, error) {
	var out []SessionInfo
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/cardiac/sessions/patient/{patientId}",
		pathParams: map[string]string{"patientId": patientID},
		auth:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SessionSummary fetches the aggregates of one session.
func (c *Client) SessionSummary(ctx context.Context, creds Credentials, sessionID string) (SessionSummary, error) {
	var out SessionSummary
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/cardiac/sessions/{id}/summary",
		pathParams: map[string]string{"id": sessionID},
		auth:       true,
	}, &out)
	return out, err
}

// SessionDataPoints fetches the stored samples of one session.
func (c *Client) SessionDataPoints(ctx context.Context, creds Credentials, sessionID string) ([]DataPoint, error) {
	var out []DataPoint
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/cardiac/sessions/{id}/data-points",
		pathParams: map[string]string{"id": sessionID},
		auth:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
