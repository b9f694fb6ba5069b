package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func clientMessage(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeSessionStarted, SessionStartedPayload{SessionID: "42"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != TypeSessionStarted {
		t.Errorf("expected type %s, got %s", TypeSessionStarted, msg.Type)
	}

	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p SessionStartedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.SessionID != "42" {
		t.Errorf("expected session id '42', got %s", p.SessionID)
	}
}

func TestValidateClientMessage_ValidStartFree(t *testing.T) {
	result, err := ValidateClientMessage(clientMessage(t, TypeSessionStartFree, map[string]interface{}{}))
	if err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
	if result.Type != TypeSessionStartFree {
		t.Errorf("expected type %s, got %s", TypeSessionStartFree, result.Type)
	}
}

func TestValidateClientMessage_ValidStartActivity(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, TypeSessionStartActivity, map[string]interface{}{"activityId": "3"}))
	if err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
}

func TestValidateClientMessage_MissingActivityID(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, TypeSessionStartActivity, map[string]interface{}{}))
	if err == nil {
		t.Fatal("expected error for missing activityId")
	}
}

func TestValidateClientMessage_Stop(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, TypeSessionStop, map[string]interface{}{}))
	if err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
}

func TestValidateClientMessage_Thresholds(t *testing.T) {
	if _, err := ValidateClientMessage(clientMessage(t, TypeThresholdsSave, map[string]int{"min": 55, "max": 130})); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
	if _, err := ValidateClientMessage(clientMessage(t, TypeThresholdsSave, map[string]int{"min": 130, "max": 55})); err == nil {
		t.Error("expected error for inverted thresholds")
	}
	if _, err := ValidateClientMessage(clientMessage(t, TypeThresholdsSave, map[string]int{"max": 55})); err == nil {
		t.Error("expected error for missing min")
	}
	if _, err := ValidateClientMessage(clientMessage(t, TypeThresholdsSave, map[string]string{"min": "a"})); err == nil {
		t.Error("expected error for non-numeric payload")
	}
}

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	_, err := ValidateClientMessage([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateClientMessage_MissingType(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, "", map[string]interface{}{}))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, "unknown.action", map[string]interface{}{}))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestValidateClientMessage_ServerTypeRejected(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, TypeScreenSnapshot, map[string]interface{}{}))
	if err == nil {
		t.Fatal("server message types must not be accepted from clients")
	}
}

func TestValidateClientMessage_MissingPayload(t *testing.T) {
	data := []byte(`{"type":"session.stop","timestamp":"2024-01-01T00:00:00.000Z"}`)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrRequestFailed, "impossible de démarrer la session")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != ErrRequestFailed {
		t.Errorf("expected code %s, got %s", ErrRequestFailed, p.Code)
	}
}
