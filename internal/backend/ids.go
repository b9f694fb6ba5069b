package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an identifier the backend sends either as a JSON number or a string.
type ID string

// UnmarshalJSON accepts 42, "42" and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// parseSessionID reads the body of a session start response. The backend
// answers with a bare id; an object carrying sessionId or id is also accepted.
func parseSessionID(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", fmt.Errorf("empty session id response")
	}
	if body[0] == '{' {
		var obj struct {
			SessionID ID `json:"sessionId"`
			ID        ID `json:"id"`
		}
		if err := json.Unmarshal(body, &obj); err != nil {
			return "", fmt.Errorf("decoding session id: %w", err)
		}
		if obj.SessionID != "" {
			return obj.SessionID.String(), nil
		}
		if obj.ID != "" {
			return obj.ID.String(), nil
		}
		return "", fmt.Errorf("session id missing from response")
	}
	var id ID
	if err := json.Unmarshal(body, &id); err != nil {
		return "", fmt.Errorf("decoding session id: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("session id missing from response")
	}
	return id.String(), nil
}
