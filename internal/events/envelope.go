package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Change operation codes emitted by the CDC connector.
const (
	OpCreate   = "c"
	OpUpdate   = "u"
	OpDelete   = "d"
	OpSnapshot = "r"
)

var (
	// ErrNotInsert marks a well-formed change event that does not describe a new alert.
	ErrNotInsert = errors.New("change event is not an insert")
	// ErrMalformedEnvelope marks a change event that cannot be decoded into an Alert.
	ErrMalformedEnvelope = errors.New("malformed change envelope")
)

// ChangeEnvelope is the operation type and after-image of one row change.
type ChangeEnvelope struct {
	Op    string          `json:"op"`
	After json.RawMessage `json:"after"`
}

// DecodeAlert decodes a raw CDC message value into an Alert. Both the schema-wrapped
// form ({"schema":...,"payload":{...}}) and the bare payload are accepted.
// Returns an error wrapping ErrNotInsert or ErrMalformedEnvelope when the message
// carries no new alert.
func DecodeAlert(value []byte) (*Alert, error) {
	env, err := decodeEnvelope(value)
	if err != nil {
		return nil, err
	}

	if env.Op != OpCreate {
		return nil, fmt.Errorf("%w: op=%q", ErrNotInsert, env.Op)
	}
	if isNull(env.After) {
		return nil, fmt.Errorf("%w: insert without after-image", ErrMalformedEnvelope)
	}

	return decodeAlertRow(env.After)
}

func decodeEnvelope(value []byte) (*ChangeEnvelope, error) {
	if len(bytes.TrimSpace(value)) == 0 {
		// Tombstone following a delete
		return nil, fmt.Errorf("%w: empty message", ErrNotInsert)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	body := value
	if payload, ok := fields["payload"]; ok {
		if isNull(payload) {
			return nil, fmt.Errorf("%w: null payload", ErrNotInsert)
		}
		body = payload
	}

	var env ChangeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Op == "" {
		return nil, fmt.Errorf("%w: missing op", ErrMalformedEnvelope)
	}
	return &env, nil
}

func decodeAlertRow(after json.RawMessage) (*Alert, error) {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(after, &row); err != nil {
		return nil, fmt.Errorf("%w: after-image: %v", ErrMalformedEnvelope, err)
	}

	id, err := parseID(row["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrMalformedEnvelope, err)
	}
	subscriptionID, err := parseID(row["subscription_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: subscription_id: %v", ErrMalformedEnvelope, err)
	}

	alert := &Alert{
		ID:             id,
		SubscriptionID: subscriptionID,
		Content:        normalizeContent(row["content"]),
	}

	for _, key := range []string{"alert_timestamp", "created_at"} {
		if raw, ok := row[key]; ok && !isNull(raw) {
			ts, err := parseTimestamp(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, key, err)
			}
			alert.CreatedAt = ts
			break
		}
	}

	return alert, nil
}

// parseID accepts a JSON number or a numeric string.
func parseID(raw json.RawMessage) (int64, error) {
	if isNull(raw) {
		return 0, errors.New("missing")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("must be positive: %d", id)
	}
	return id, nil
}

// normalizeContent unwraps JSON columns the connector delivers as encoded strings.
// A string that does not hold JSON is kept as a JSON string.
func normalizeContent(raw json.RawMessage) json.RawMessage {
	if isNull(raw) {
		return json.RawMessage("null")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if trimmed := strings.TrimSpace(s); trimmed != "" && json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed)
		}
	}
	return raw
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts formatted timestamps and epoch numbers. Epoch precision is
// inferred from magnitude: seconds, milliseconds, or microseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %s", raw)
	}
	switch {
	case n >= 1e15:
		return time.UnixMicro(n).UTC(), nil
	case n >= 1e12:
		return time.UnixMilli(n).UTC(), nil
	default:
		return time.Unix(n, 0).UTC(), nil
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
