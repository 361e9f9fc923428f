package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveFlagPrecedence(t *testing.T) {
	s := &Settings{ProjectID: "flag-project"}
	s.Resolve(envMap(map[string]string{
		EnvProject:       "env-project",
		EnvLocation:      "us-central1",
		EnvStagingBucket: "gs://staging",
	}))

	assert.Equal(t, "flag-project", s.ProjectID)
	assert.Equal(t, "us-central1", s.Location)
	assert.Equal(t, "gs://staging", s.Bucket)
	assert.Equal(t, DefaultUserID, s.UserID)
	assert.Equal(t, DefaultMessage, s.Message)
	require.NoError(t, s.Validate())
}

func TestValidateMissing(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		missing  []string
	}{
		{"all missing", Settings{}, []string{EnvProject, EnvLocation, EnvStagingBucket}},
		{"bucket missing", Settings{ProjectID: "p", Location: "l"}, []string{EnvStagingBucket}},
		{"location missing", Settings{ProjectID: "p", Bucket: "b"}, []string{EnvLocation}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingEnvironment))
			for _, name := range tt.missing {
				assert.Contains(t, err.Error(), name)
			}
		})
	}
}

func TestBucketName(t *testing.T) {
	for in, want := range map[string]string{
		"gs://staging":  "staging",
		"gs://staging/": "staging",
		"staging":       "staging",
	} {
		s := Settings{Bucket: in}
		assert.Equal(t, want, s.BucketName(), in)
	}
}

func TestStateDB(t *testing.T) {
	s := Settings{StateDB: "/tmp/h.db"}
	path, err := s.StateDBPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/h.db", path)
	assert.True(t, s.HistoryEnabled())

	off := Settings{StateDB: "OFF"}
	assert.False(t, off.HistoryEnabled())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ENGINECTL_TEST_DOTENV=from-file\nENGINECTL_TEST_KEEP=from-file\n"), 0o600))

	t.Setenv("ENGINECTL_TEST_KEEP", "from-env")
	require.NoError(t, os.Unsetenv("ENGINECTL_TEST_DOTENV"))
	t.Cleanup(func() { _ = os.Unsetenv("ENGINECTL_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("ENGINECTL_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("ENGINECTL_TEST_KEEP"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}

func TestParseDescriptorDefaults(t *testing.T) {
	d, err := ParseDescriptor(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultRequirement}, d.Requirements)
	assert.Equal(t, []string{"."}, d.ExtraPackages)
	assert.Equal(t, DefaultAgentPickle, d.AgentPickle)
	assert.Equal(t, DefaultStagingDir, d.StagingDir)
	assert.Equal(t, DefaultPythonVersion, d.PythonVersion)
}

func TestParseDescriptor(t *testing.T) {
	data := []byte(`
display_name: orchestrator
description: routes questions
python_version: "3.11"
requirements:
  - google-adk
  - requests==2.32.3
extra_packages:
  - orchestrator
env:
  MODEL: gemini-2.5-flash
  LOG_LEVEL: debug
`)
	d, err := ParseDescriptor(data)
	require.NoError(t, err)

	assert.Equal(t, "orchestrator", d.DisplayName)
	assert.Equal(t, "3.11", d.PythonVersion)
	assert.Equal(t, []string{"google-adk", "requests==2.32.3"}, d.Requirements)
	assert.Equal(t, []string{"LOG_LEVEL", "MODEL"}, d.EnvNames())
}

func TestParseDescriptorRejectsUnknownField(t *testing.T) {
	_, err := ParseDescriptor([]byte("display_nam: typo\n"))
	assert.Error(t, err)
}

func TestParseDescriptorRejectsBadEnv(t *testing.T) {
	_, err := ParseDescriptor([]byte("env:\n  \"A=B\": x\n"))
	assert.Error(t, err)
}

func TestLoadDescriptor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reqs.txt"), []byte("# pinned\ngoogle-adk\n\nrequests\ngoogle-adk\n"), 0o600))
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("requirements_file: reqs.txt\nagent_pickle: build/agent.pkl\n"), 0o600))

	d, err := LoadDescriptor(path)
	require.NoError(t, err)

	reqs, err := d.ResolvedRequirements()
	require.NoError(t, err)
	assert.Equal(t, []string{"google-adk", "requests"}, reqs)
	assert.Equal(t, filepath.Join(dir, "build", "agent.pkl"), d.PicklePath())
	assert.Equal(t, dir, d.BaseDir())
}

func TestLoadDescriptorMissing(t *testing.T) {
	_, err := LoadDescriptor(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
