// Package engine implements the enginectl actions against a hosted agent platform.
//
// The platform itself is abstracted behind Platform so the actions, their
// output and the local history bookkeeping can run against any backend.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"enginectl/pkg/config"
)

// Class methods exposed by a deployed agent application.
const (
	MethodCreateSession = "create_session"
	MethodListSessions  = "list_sessions"
	MethodGetSession    = "get_session"
	MethodDeleteSession = "delete_session"
	MethodStreamQuery   = "stream_query"
)

// Deployment is a hosted agent instance.
type Deployment struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreateTime  time.Time `json:"create_time,omitzero"`
	UpdateTime  time.Time `json:"update_time,omitzero"`
}

// ID returns the trailing resource ID of the deployment name.
func (d *Deployment) ID() string {
	return lastSegment(d.Name)
}

// PackageSpec points at staged deployment artifacts.
type PackageSpec struct {
	PickleURI       string `json:"pickle_uri"`
	RequirementsURI string `json:"requirements_uri"`
	DependenciesURI string `json:"dependencies_uri,omitempty"`
	PythonVersion   string `json:"python_version"`
}

// DeploymentSpec describes a deployment to create.
type DeploymentSpec struct {
	DisplayName string
	Description string
	Package     PackageSpec
	Env         map[string]string
}

// EventHandler receives one raw streamed event at a time. Returning an error stops the stream.
type EventHandler func(event json.RawMessage) error

// Platform is the remote agent-hosting service.
type Platform interface {
	CreateDeployment(ctx context.Context, spec *DeploymentSpec) (*Deployment, error)
	GetDeployment(ctx context.Context, name string) (*Deployment, error)
	ListDeployments(ctx context.Context) ([]*Deployment, error)
	DeleteDeployment(ctx context.Context, name string, force bool) error

	// Query invokes a class method on the deployed application and returns its decoded output.
	Query(ctx context.Context, name, method string, input map[string]any) (any, error)
	// StreamQuery invokes a streaming class method, calling fn for every event.
	StreamQuery(ctx context.Context, name, method string, input map[string]any, fn EventHandler) error
}

// Stager uploads deployment artifacts and returns where they landed.
type Stager interface {
	Stage(ctx context.Context, desc *config.Descriptor) (*PackageSpec, error)
}

// HistoryKind distinguishes history entries.
type HistoryKind string

const (
	KindDeployment HistoryKind = "deployment"
	KindSession    HistoryKind = "session"
)

// HistoryEntry is one locally recorded resource.
type HistoryEntry struct {
	Kind       HistoryKind `json:"kind"`
	Name       string      `json:"name"`
	Deployment string      `json:"deployment,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	Project    string      `json:"project"`
	Location   string      `json:"location"`
	CreatedAt  time.Time   `json:"created_at"`
	Deleted    bool        `json:"deleted"`
}

// History records what this machine created.
type History interface {
	RecordDeployment(ctx context.Context, project, location, name string) error
	RecordSession(ctx context.Context, project, location, deployment, userID, sessionID string) error
	MarkDeploymentDeleted(ctx context.Context, name string) error
	MarkSessionDeleted(ctx context.Context, deployment, sessionID string) error
	LatestDeployment(ctx context.Context, project, location string) (string, error)
	Entries(ctx context.Context, project, location string) ([]HistoryEntry, error)
}
