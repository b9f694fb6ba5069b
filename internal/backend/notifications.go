package backend

import (
	"context"
	"net/http"
)

// Notification is an alert addressed to a user.
type Notification struct {
	ID        ID     `json:"id"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
	IsRead    bool   `json:"isRead"`
}

// UnreadCount counts notifications not yet read.
func UnreadCount(ns []Notification) int {
	n := 0
	for _, x := range ns {
		if !x.IsRead {
			n++
		}
	}
	return n
}

// Notifications lists a user's notifications.
func (c *Client) Notifications(ctx context.Context, creds Credentials, userID string) ([]Notification, error) {
	var out []Notification
	_, err := c.do(ctx, creds, request{
		method:     http.MethodGet,
		path:       "/api/v1/notifications/user/{userId}",
		pathParams: map[string]string{"userId": userID},
		auth:       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, creds Credentials, notificationID string) error {
	_, err := c.do(ctx, creds, request{
		method:     http.MethodPatch,
		path:       "/api/v1/notifications/{id}/read",
		pathParams: map[string]string{"id": notificationID},
		auth:       true,
	}, nil)
	return err
}

// MarkAllNotificationsRead marks every notification of a user read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, creds Credentials, userID string) error {
	_, err := c.do(ctx, creds, request{
		method:     http.MethodPost,
		path:       "/api/v1/notifications/user/{userId}/read-all",
		pathParams: map[string]string{"userId": userID},
		auth:       true,
	}, nil)
	return err
}
