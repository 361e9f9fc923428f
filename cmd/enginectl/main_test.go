package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enginectl/pkg/config"
	"enginectl/pkg/engine"
)

const testEngine = "projects/p/locations/us-central1/reasoningEngines/42"

type stubPlatform struct {
	deployments []*engine.Deployment
	created     *engine.DeploymentSpec
	deleted     []string
}

func (s *stubPlatform) CreateDeployment(_ context.Context, spec *engine.DeploymentSpec) (*engine.Deployment, error) {
	s.created = spec
	return &engine.Deployment{Name: testEngine}, nil
}

func (s *stubPlatform) GetDeployment(_ context.Context, name string) (*engine.Deployment, error) {
	return &engine.Deployment{Name: name}, nil
}

func (s *stubPlatform) ListDeployments(context.Context) ([]*engine.Deployment, error) {
	return s.deployments, nil
}

func (s *stubPlatform) DeleteDeployment(_ context.Context, name string, _ bool) error {
	s.deleted = append(s.deleted, name)
	return nil
}

func (s *stubPlatform) Query(_ context.Context, _, method string, input map[string]any) (any, error) {
	return map[string]any{
		"id":               "s-1",
		"user_id":          input["user_id"],
		"app_name":         "42",
		"last_update_time": 1700000000.5,
	}, nil
}

func (s *stubPlatform) StreamQuery(_ context.Context, _, _ string, _ map[string]any, fn engine.EventHandler) error {
	return fn(json.RawMessage(`{"author":"orchestrator","content":{"role":"model","parts":[{"text":"hello"}]}}`))
}

type stubStager struct{}

func (stubStager) Stage(_ context.Context, desc *config.Descriptor) (*engine.PackageSpec, error) {
	return &engine.PackageSpec{PickleURI: "gs://b/x/agent_engine.pkl", PythonVersion: desc.PythonVersion}, nil
}

type harness struct {
	platform *stubPlatform
	calls    int
	staging  bool
}

func (h *harness) factory(_ context.Context, _ *config.Settings, staging bool) (*Backend, error) {
	h.calls++
	h.staging = staging
	b := &Backend{Platform: h.platform}
	if staging {
		b.Stager = stubStager{}
	}
	return b, nil
}

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvProject, "p")
	t.Setenv(config.EnvLocation, "us-central1")
	t.Setenv(config.EnvStagingBucket, "gs://staging")
	t.Setenv(config.EnvStateDB, "off")
}

func execute(t *testing.T, h *harness, args ...string) (string, error) {
	t.Helper()
	return executeOn(t, h, true, args...)
}

func executeOn(t *testing.T, h *harness, isTerminal bool, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, h.factory, isTerminal)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMissingEnvironment(t *testing.T) {
	t.Setenv(config.EnvProject, "")
	t.Setenv(config.EnvLocation, "")
	t.Setenv(config.EnvStagingBucket, "")
	h := &harness{platform: &stubPlatform{}}

	out, err := execute(t, h, "--list")
	require.NoError(t, err)
	assert.Equal(t, config.MissingEnvironmentMessage+"\n", out)
	assert.Zero(t, h.calls)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv(config.EnvProject, "")
	t.Setenv(config.EnvLocation, "")
	t.Setenv(config.EnvStagingBucket, "")
	t.Setenv(config.EnvStateDB, "off")
	h := &harness{platform: &stubPlatform{}}

	out, err := execute(t, h, "--project_id", "p", "--location", "us-central1", "--bucket", "b", "--list")
	require.NoError(t, err)
	assert.Equal(t, "Deployments:\n", out)
}

func TestNoAction(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{}}

	out, err := execute(t, h)
	require.NoError(t, err)
	assert.Equal(t, "Please specify an action to perform.\n", out)
	assert.Zero(t, h.calls)
}

func TestActionsAreMutuallyExclusive(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{}}

	_, err := execute(t, h, "--list", "--create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
	assert.Zero(t, h.calls)
}

func TestList(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{deployments: []*engine.Deployment{{Name: testEngine}}}}

	out, err := execute(t, h, "--list")
	require.NoError(t, err)
	assert.Equal(t, "Deployments:\n- "+testEngine+"\n", out)
	assert.False(t, h.staging)
}

func TestListJSON(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{deployments: []*engine.Deployment{{Name: testEngine}}}}

	out, err := execute(t, h, "--list", "--output", "json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, testEngine, got[0]["name"])
}

func TestDefaultOutputIsTextWhenPiped(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{deployments: []*engine.Deployment{{Name: testEngine}}}}

	out, err := executeOn(t, h, false, "--list")
	require.NoError(t, err)
	assert.Equal(t, "Deployments:\n- "+testEngine+"\n", out)
}

func TestAutoOutputIsJSONWhenPiped(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{deployments: []*engine.Deployment{{Name: testEngine}}}}

	out, err := executeOn(t, h, false, "--list", "--output", "auto")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
}

func TestBadOutputFormat(t *testing.T) {
	setEnv(t)
	_, err := execute(t, &harness{platform: &stubPlatform{}}, "--list", "--output", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestCreateUsesDescriptor(t *testing.T) {
	setEnv(t)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("display_name: orchestrator\nenv:\n  MODE: prod\n"), 0o644))
	h := &harness{platform: &stubPlatform{}}

	out, err := execute(t, h, "--create", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "Created remote app: "+testEngine+"\n", out)
	assert.True(t, h.staging)
	require.NotNil(t, h.platform.created)
	assert.Equal(t, "orchestrator", h.platform.created.DisplayName)
	assert.Equal(t, map[string]string{"MODE": "prod"}, h.platform.created.Env)
}

func TestDeleteRequiresResourceID(t *testing.T) {
	setEnv(t)
	_, err := execute(t, &harness{platform: &stubPlatform{}}, "--delete")
	assert.ErrorIs(t, err, config.ErrMissingResourceID)
}

func TestDeleteDoesNotUseHistory(t *testing.T) {
	setEnv(t)
	t.Setenv(config.EnvStateDB, filepath.Join(t.TempDir(), "history.db"))
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("display_name: orchestrator\n"), 0o644))
	h := &harness{platform: &stubPlatform{}}

	_, err := execute(t, h, "--create", "--config", path)
	require.NoError(t, err)

	_, err = execute(t, h, "--delete")
	assert.ErrorIs(t, err, config.ErrMissingResourceID)
	assert.Empty(t, h.platform.deleted)
}

func TestSend(t *testing.T) {
	setEnv(t)
	h := &harness{platform: &stubPlatform{}}

	out, err := execute(t, h, "--send", "--resource_id", "42", "--session_id", "s-1", "--message", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Sending message to session s-1:\nMessage: hi\n\nResponse:\n[orchestrator] hello\n", out)
}

func TestHistoryRoundTrip(t *testing.T) {
	setEnv(t)
	t.Setenv(config.EnvStateDB, filepath.Join(t.TempDir(), "history.db"))
	h := &harness{platform: &stubPlatform{}}

	_, err := execute(t, h, "--create_session", "--resource_id", "42")
	require.NoError(t, err)

	out, err := execute(t, h, "--history")
	require.NoError(t, err)
	assert.Contains(t, out, "- session s-1 user=test_user on "+testEngine)
	assert.Equal(t, 1, h.calls, "history must not dial the platform")
}

func TestMetricsFile(t *testing.T) {
	setEnv(t)
	metrics := filepath.Join(t.TempDir(), "enginectl.prom")
	h := &harness{platform: &stubPlatform{}}

	_, err := execute(t, h, "--list", "--metrics_file", metrics)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `enginectl_requests_total{error_type="",op="list_deployments",status="success"} 1`)
}
