package engine

import (
	"fmt"
	"strings"
)

const collection = "reasoningEngines"

// ParentName returns projects/<project>/locations/<location>.
func ParentName(project, location string) string {
	return fmt.Sprintf("projects/%s/locations/%s", project, location)
}

// ResourceName expands a bare deployment ID into its full resource name.
// Full names are validated and returned unchanged.
func ResourceName(project, location, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("empty resource id")
	}
	if !strings.Contains(id, "/") {
		return fmt.Sprintf("%s/%s/%s", ParentName(project, location), collection, id), nil
	}

	parts := strings.Split(id, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != collection {
		return "", fmt.Errorf("malformed resource name %q: want projects/<p>/locations/<l>/%s/<id>", id, collection)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("malformed resource name %q: empty segment", id)
		}
	}
	return id, nil
}

// LocationOf returns the location segment of a full resource name.
func LocationOf(name string) string {
	parts := strings.Split(name, "/")
	if len(parts) >= 4 && parts[2] == "locations" {
		return parts[3]
	}
	return ""
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
