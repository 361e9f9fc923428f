package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// Event is one streamed agent event.
type Event struct {
	ID           string
	Author       string
	InvocationID string
	Timestamp    float64
	Content      *genai.Content
	ErrorCode    string
	ErrorMessage string
	Raw          json.RawMessage
}

// partKeys maps the snake_case part keys emitted by the agent runtime to the
// field names genai.Part decodes. Keys absent here are dropped before decoding.
//
//nolint:gochecknoglobals // Static lookup table
var partKeys = map[string]string{
	"text":              "text",
	"thought":           "thought",
	"function_call":     "functionCall",
	"functionCall":      "functionCall",
	"function_response": "functionResponse",
	"functionResponse":  "functionResponse",
}

type rawEvent struct {
	ID           string          `json:"id"`
	Author       string          `json:"author"`
	InvocationID string          `json:"invocation_id"`
	Timestamp    float64         `json:"timestamp"`
	Content      *rawContent     `json:"content"`
	ErrorCode    json.RawMessage `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

type rawContent struct {
	Role  string           `json:"role"`
	Parts []map[string]any `json:"parts"`
}

// ParseEvent decodes one raw event. Unknown fields are ignored.
func ParseEvent(raw json.RawMessage) (*Event, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	ev := &Event{
		ID:           re.ID,
		Author:       re.Author,
		InvocationID: re.InvocationID,
		Timestamp:    re.Timestamp,
		ErrorMessage: re.ErrorMessage,
		Raw:          raw,
	}
	if len(re.ErrorCode) > 0 && string(re.ErrorCode) != "null" {
		ev.ErrorCode = strings.Trim(string(re.ErrorCode), `"`)
	}

	if re.Content != nil {
		content, err := toGenaiContent(re.Content)
		if err != nil {
			return nil, err
		}
		ev.Content = content
	}
	return ev, nil
}

func toGenaiContent(rc *rawContent) (*genai.Content, error) {
	parts := make([]map[string]any, 0, len(rc.Parts))
	for _, p := range rc.Parts {
		normalized := make(map[string]any, len(p))
		for k, v := range p {
			if mapped, ok := partKeys[k]; ok && v != nil {
				normalized[mapped] = v
			}
		}
		if len(normalized) > 0 {
			parts = append(parts, normalized)
		}
	}

	data, err := json.Marshal(map[string]any{"role": rc.Role, "parts": parts})
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode event content: %w", err)
	}
	var content genai.Content
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to decode event content: %w", err)
	}
	return &content, nil
}

// Text concatenates the non-thought text parts of the event.
func (e *Event) Text() string {
	if e.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range e.Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Render returns human-readable lines for the event. Events with nothing
// renderable fall back to their raw JSON.
func (e *Event) Render() []string {
	author := e.Author
	if author == "" {
		author = "agent"
	}

	var lines []string
	if e.ErrorCode != "" || e.ErrorMessage != "" {
		lines = append(lines, fmt.Sprintf("[%s] error %s: %s", author, e.ErrorCode, e.ErrorMessage))
	}
	if e.Content != nil {
		for _, p := range e.Content.Parts {
			if p == nil {
				continue
			}
			switch {
			case p.FunctionCall != nil:
				lines = append(lines, fmt.Sprintf("[%s] call %s(%s)", author, p.FunctionCall.Name, compactJSON(p.FunctionCall.Args)))
			case p.FunctionResponse != nil:
				lines = append(lines, fmt.Sprintf("[%s] result %s: %s", author, p.FunctionResponse.Name, compactJSON(p.FunctionResponse.Response)))
			case p.Thought && p.Text != "":
				lines = append(lines, fmt.Sprintf("[%s] (thought) %s", author, p.Text))
			case p.Text != "":
				lines = append(lines, fmt.Sprintf("[%s] %s", author, p.Text))
			}
		}
	}
	if len(lines) == 0 {
		lines = append(lines, string(e.Raw))
	}
	return lines
}

// compactJSON renders a map with sorted keys on one line.
func compactJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(m[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%q", fmt.Sprint(m[k])))
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(pairs, ", ")
}
