package backend

import (
	"context"
	"net/http"
	"time"
)

// Activity is a prescribed exercise. Older backends send name/duration
// instead of title/durationInMinutes; both spellings are accepted.
type Activity struct {
	ID                ID     `json:"id"`
	Title             string `json:"title,omitempty"`
	Name              string `json:"name,omitempty"`
	Description       string `json:"description,omitempty"`
	Type              string `json:"type,omitempty"`
	DurationInMinutes int    `json:"durationInMinutes,omitempty"`
	Duration          int    `json:"duration,omitempty"`
	Status            string `json:"status,omitempty"`
	Completed         bool   `json:"completed,omitempty"`
	PatientID         ID     `json:"patientId,omitempty"`
	DoctorID          ID     `json:"doctorId,omitempty"`
}

// DisplayName returns title or name.
func (a Activity) DisplayName() string {
	if a.Title != "" {
		return a.Title
	}
	return a.Name
}

// PlannedDuration is the prescribed length of the activity, zero if unknown.
func (a Activity) PlannedDuration() time.Duration {
	minutes := a.DurationInMinutes
	if minutes == 0 {
		minutes = a.Duration
	}
	return time.Duration(minutes) * time.Minute
}

// Activities lists a patient's prescribed activities.
func (c *Client) Activities(ctx context.Context, creds Credentials, patientID string) ([]Activity, error) {
	var out []Activity
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/activities/patient/{patientId}",
		pathParams: map[string]string{"patientId": patientID},
		auth:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateActivity prescribes a new activity and returns it as stored.
func (c *Client) CreateActivity(ctx context.Context, creds Credentials, a Activity) (Activity, error) {
	var out Activity
	_, err := c.do(ctx, creds, request{
		method: http.MethodPost,
		path:   "/api/v1/activities",
		body:   a,
		auth:   true,
	}, &out)
	return out, err
}

// UpdateActivity replaces an activity.
func (c *Client) UpdateActivity(ctx context.Context, creds Credentials, a Activity) (Activity, error) {
	var out Activity
	_, err := c.do(ctx, creds, request{
		method:     http.MethodPut,
		path:       "/api/v1/activities/{id}",
		pathParams: map[string]string{"id": a.ID.String()},
		body:       a,
		auth:       true,
	}, &out)
	return out, err
}

// CloseActivity marks an activity completed.
func (c *Client) CloseActivity(ctx context.Context, creds Credentials, activityID string) error {
	_, err := c.do(ctx, creds, request{
		method:     http.MethodPost,
		path:       "/api/v1/activities/{id}/close",
		pathParams: map[string]string{"id": activityID},
		auth:       true,
	}, nil)
	return err
}

// DeleteActivity removes an activity.
func (c *Client) DeleteActivity(ctx context.Context, creds Credentials, activityID string) error {
	_, err := c.do(ctx, creds, request{
		method:     http.MethodDelete,
		path:       "/api/v1/activities/{id}",
		pathParams: map[string]string{"id": activityID},
		auth:       true,
	}, nil)
	return err
}
