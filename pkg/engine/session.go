package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Session is a conversation context on a deployment, as returned by the agent application.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	AppName        string         `json:"app_name"`
	LastUpdateTime float64        `json:"last_update_time"`
	State          map[string]any `json:"state,omitempty"`
	EventCount     int            `json:"event_count"`
}

// FormatLastUpdate renders LastUpdateTime as the raw epoch value.
func (s *Session) FormatLastUpdate() string {
	return strconv.FormatFloat(s.LastUpdateTime, 'f', -1, 64)
}

// decodeSession converts a query result into a Session.
// Both snake_case and camelCase keys are accepted.
func decodeSession(v any) (*Session, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected session payload %T", v)
	}

	s := &Session{
		ID:      stringField(m, "id"),
		UserID:  stringField(m, "user_id", "userId"),
		AppName: stringField(m, "app_name", "appName"),
	}
	if s.ID == "" {
		return nil, fmt.Errorf("session payload has no id")
	}
	s.LastUpdateTime = numberField(m, "last_update_time", "lastUpdateTime")
	if state, ok := m["state"].(map[string]any); ok {
		s.State = state
	}
	if events, ok := m["events"].([]any); ok {
		s.EventCount = len(events)
	}
	return s, nil
}

// decodeSessions accepts either a bare list or an object with a "sessions" list.
func decodeSessions(v any) ([]*Session, error) {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		items = t
	case map[string]any:
		raw, ok := t["sessions"]
		if !ok || raw == nil {
			return nil, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("unexpected sessions payload %T", raw)
		}
		items = list
	default:
		return nil, fmt.Errorf("unexpected list_sessions payload %T", v)
	}

	sessions := make([]*Session, 0, len(items))
	for i, item := range items {
		s, err := decodeSession(item)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return n
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
