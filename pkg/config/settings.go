// Package config resolves enginectl settings from flags, the environment and .env files,
// and loads the deployment descriptor used by the create action.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"enginectl/pkg/logx"
)

// Environment variables consulted when the matching flag is empty.
const (
	EnvProject       = "GOOGLE_CLOUD_PROJECT"
	EnvLocation      = "GOOGLE_CLOUD_LOCATION"
	EnvStagingBucket = "GOOGLE_CLOUD_STAGING_BUCKET"
	EnvStateDB       = "ENGINECTL_STATE_DB"
)

// Flag defaults.
const (
	DefaultUserID  = "test_user"
	DefaultMessage = "Ask something to your orchestrator agent."
	DotEnvFile     = ".env"
	StateDirName   = "enginectl"
	StateDBName    = "history.db"
)

// MissingEnvironmentMessage is printed when project, location or bucket cannot be resolved.
const MissingEnvironmentMessage = "Missing required environment variables: GOOGLE_CLOUD_PROJECT / LOCATION / BUCKET"

var (
	// ErrMissingEnvironment reports that project, location or bucket is unset.
	ErrMissingEnvironment = errors.New("missing required environment variables")
	// ErrMissingResourceID reports an action that needs --resource_id without one.
	ErrMissingResourceID = errors.New("--resource_id is required for this action")
	// ErrMissingSessionID reports an action that needs --session_id without one.
	ErrMissingSessionID = errors.New("--session_id is required for this action")
)

// Settings holds every value the CLI resolves before dispatching an action.
type Settings struct {
	ProjectID  string
	Location   string
	Bucket     string
	ResourceID string
	UserID     string
	SessionID  string
	Message    string

	ConfigPath   string   // Deployment descriptor for create
	Output       string   // text, json or auto
	StateDB      string   // Local history database; "off" disables history
	MetricsFile  string   // Prometheus text exposition written on exit
	Verbose      bool
	DebugDomains []string // Restrict debug output to these logx domains
}

// LoadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DotEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	logx.NewLogger("config").Debug("loaded environment from %s", path)
	return nil
}

// Resolve fills empty project, location, bucket and state database fields from getenv.
// Flag values always take precedence.
func (s *Settings) Resolve(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if s.ProjectID == "" {
		s.ProjectID = getenv(EnvProject)
	}
	if s.Location == "" {
		s.Location = getenv(EnvLocation)
	}
	if s.Bucket == "" {
		s.Bucket = getenv(EnvStagingBucket)
	}
	if s.StateDB == "" {
		s.StateDB = getenv(EnvStateDB)
	}
	if s.UserID == "" {
		s.UserID = DefaultUserID
	}
	if s.Message == "" {
		s.Message = DefaultMessage
	}
}

// Validate checks that project, location and bucket are all present.
func (s *Settings) Validate() error {
	var missing []string
	if s.ProjectID == "" {
		missing = append(missing, EnvProject)
	}
	if s.Location == "" {
		missing = append(missing, EnvLocation)
	}
	if s.Bucket == "" {
		missing = append(missing, EnvStagingBucket)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnvironment, strings.Join(missing, ", "))
	}
	return nil
}

// BucketName returns the staging bucket without a gs:// scheme or trailing slash.
func (s *Settings) BucketName() string {
	name := strings.TrimPrefix(s.Bucket, "gs://")
	return strings.TrimSuffix(name, "/")
}

// HistoryEnabled reports whether the local history database should be opened.
func (s *Settings) HistoryEnabled() bool {
	return !strings.EqualFold(s.StateDB, "off")
}

// StateDBPath returns the configured history database path, defaulting to
// <user config dir>/enginectl/history.db.
func (s *Settings) StateDBPath() (string, error) {
	if s.StateDB != "" {
		return s.StateDB, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, StateDirName, StateDBName), nil
}
