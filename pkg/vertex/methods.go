package vertex

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"

	"enginectl/pkg/engine"
)

// API modes understood by the hosted runtime.
const (
	apiModeSync   = ""
	apiModeStream = "stream"
)

type classMethod struct {
	name     string
	apiMode  string
	required []string
	optional []string
}

// adkMethods are the operations an ADK application registers.
//
//nolint:gochecknoglobals // Static method table
var adkMethods = []classMethod{
	{name: engine.MethodCreateSession, apiMode: apiModeSync, required: []string{"user_id"}, optional: []string{"session_id", "state"}},
	{name: engine.MethodGetSession, apiMode: apiModeSync, required: []string{"user_id", "session_id"}},
	{name: engine.MethodListSessions, apiMode: apiModeSync, required: []string{"user_id"}},
	{name: engine.MethodDeleteSession, apiMode: apiModeSync, required: []string{"user_id", "session_id"}},
	{name: engine.MethodStreamQuery, apiMode: apiModeStream, required: []string{"message", "user_id"}, optional: []string{"session_id"}},
}

// classMethods declares adkMethods as JSON-schema-like structs.
func classMethods() ([]*structpb.Struct, error) {
	out := make([]*structpb.Struct, 0, len(adkMethods))
	for _, m := range adkMethods {
		props := map[string]any{}
		for _, p := range append(append([]string(nil), m.required...), m.optional...) {
			kind := "string"
			if p == "state" {
				kind = "object"
			}
			props[p] = map[string]any{"type": kind}
		}
		required := make([]any, len(m.required))
		for i, r := range m.required {
			required[i] = r
		}

		s, err := structpb.NewStruct(map[string]any{
			"name":     m.name,
			"api_mode": m.apiMode,
			"parameters": map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to declare class method %s: %w", m.name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
