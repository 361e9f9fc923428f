package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"enginectl/pkg/config"
)

type queryCall struct {
	name   string
	method string
	input  map[string]any
}

type fakePlatform struct {
	deployments map[string]*Deployment
	created     []*DeploymentSpec
	deleted     []string
	forced      []bool
	queries     []queryCall
	results     map[string]any
	events      []string
	listErr     error
	queryErr    error
	streamErr   error
}

func newFakePlatform(names ...string) *fakePlatform {
	f := &fakePlatform{
		deployments: make(map[string]*Deployment),
		results:     make(map[string]any),
	}
	for _, n := range names {
		f.deployments[n] = &Deployment{Name: n}
	}
	return f
}

func (f *fakePlatform) CreateDeployment(_ context.Context, spec *DeploymentSpec) (*Deployment, error) {
	f.created = append(f.created, spec)
	name := fmt.Sprintf("projects/p/locations/l/reasoningEngines/%d", 100+len(f.created))
	d := &Deployment{Name: name, DisplayName: spec.DisplayName, CreateTime: time.Unix(0, 0).UTC()}
	f.deployments[name] = d
	return d, nil
}

func (f *fakePlatform) GetDeployment(_ context.Context, name string) (*Deployment, error) {
	d, ok := f.deployments[name]
	if !ok {
		return nil, fmt.Errorf("deployment %s not found", name)
	}
	return d, nil
}

func (f *fakePlatform) ListDeployments(context.Context) ([]*Deployment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*Deployment, 0, len(f.deployments))
	for _, d := range f.deployments {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakePlatform) DeleteDeployment(_ context.Context, name string, force bool) error {
	f.deleted = append(f.deleted, name)
	f.forced = append(f.forced, force)
	delete(f.deployments, name)
	return nil
}

func (f *fakePlatform) Query(_ context.Context, name, method string, input map[string]any) (any, error) {
	f.queries = append(f.queries, queryCall{name: name, method: method, input: input})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results[method], nil
}

func (f *fakePlatform) StreamQuery(_ context.Context, name, method string, input map[string]any, fn EventHandler) error {
	f.queries = append(f.queries, queryCall{name: name, method: method, input: input})
	for _, e := range f.events {
		if err := fn(json.RawMessage(e)); err != nil {
			return err
		}
	}
	return f.streamErr
}

type fakeStager struct {
	spec *PackageSpec
	err  error
	seen *config.Descriptor
}

func (s *fakeStager) Stage(_ context.Context, desc *config.Descriptor) (*PackageSpec, error) {
	s.seen = desc
	return s.spec, s.err
}

type fakeHistory struct {
	deployments     []string
	sessions        []string
	deleted         []string
	deletedSessions []string // deployment + "/sessions/" + id
	latest          string
}

func (h *fakeHistory) RecordDeployment(_ context.Context, _, _, name string) error {
	h.deployments = append(h.deployments, name)
	return nil
}

func (h *fakeHistory) RecordSession(_ context.Context, _, _, _, _, sessionID string) error {
	h.sessions = append(h.sessions, sessionID)
	return nil
}

func (h *fakeHistory) MarkDeploymentDeleted(_ context.Context, name string) error {
	h.deleted = append(h.deleted, name)
	return nil
}

func (h *fakeHistory) MarkSessionDeleted(_ context.Context, deployment, sessionID string) error {
	h.deletedSessions = append(h.deletedSessions, deployment+"/sessions/"+sessionID)
	return nil
}

func (h *fakeHistory) LatestDeployment(context.Context, string, string) (string, error) {
	return h.latest, nil
}

func (h *fakeHistory) Entries(context.Context, string, string) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, len(h.deployments)+len(h.sessions))
	for _, d := range h.deployments {
		entries = append(entries, HistoryEntry{Kind: KindDeployment, Name: d, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	}
	for _, s := range h.sessions {
		entries = append(entries, HistoryEntry{Kind: KindSession, Name: s, UserID: "u", Deployment: "d"})
	}
	return entries, nil
}
