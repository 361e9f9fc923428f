// Command enginectl manages agent deployments and their sessions on
// Vertex AI Agent Engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"enginectl/pkg/config"
	"enginectl/pkg/engine"
	"enginectl/pkg/logx"
	"enginectl/pkg/persistence"
	"enginectl/pkg/platform"
	"enginectl/pkg/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd(os.Stdout, vertexBackend, term.IsTerminal(int(os.Stdout.Fd())))
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// actions holds the mutually exclusive action switches.
type actions struct {
	create        bool
	delete        bool
	list          bool
	createSession bool
	listSessions  bool
	getSession    bool
	deleteSession bool
	send          bool
	history       bool
}

func (a *actions) any() bool {
	return a.create || a.delete || a.list || a.createSession || a.listSessions ||
		a.getSession || a.deleteSession || a.send || a.history
}

func (a *actions) remote() bool {
	return a.any() && !a.history
}

// actionFlags lists the names passed to MarkFlagsMutuallyExclusive.
//
//nolint:gochecknoglobals // Static flag table
var actionFlags = []string{
	"create", "delete", "list",
	"create_session", "list_sessions", "get_session", "delete_session",
	"send", "history",
}

func newRootCmd(stdout io.Writer, factory BackendFactory, isTerminal bool) *cobra.Command {
	var (
		s   config.Settings
		act actions
	)

	cmd := &cobra.Command{
		Use:           "enginectl",
		Short:         "Manage agent deployments and sessions on Vertex AI Agent Engine",
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), stdout, &s, &act, factory, isTerminal)
		},
	}

	cmd.Flags().AddFlagSet(settingsFlags(&s))

	f := cmd.Flags()
	f.BoolVar(&act.create, "create", false, "Create a new deployment from the descriptor")
	f.BoolVar(&act.delete, "delete", false, "Delete an existing deployment")
	f.BoolVar(&act.list, "list", false, "List all deployments")
	f.BoolVar(&act.createSession, "create_session", false, "Create a new session")
	f.BoolVar(&act.listSessions, "list_sessions", false, "List all sessions for a user")
	f.BoolVar(&act.getSession, "get_session", false, "Get a specific session")
	f.BoolVar(&act.deleteSession, "delete_session", false, "Delete a specific session")
	f.BoolVar(&act.send, "send", false, "Send a message to the deployed agent")
	f.BoolVar(&act.history, "history", false, "Show deployments and sessions created from this machine")
	cmd.MarkFlagsMutuallyExclusive(actionFlags...)

	return cmd
}

func settingsFlags(s *config.Settings) *pflag.FlagSet {
	fs := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	fs.StringVar(&s.ProjectID, "project_id", "", "GCP project ID (default $"+config.EnvProject+")")
	fs.StringVar(&s.Location, "location", "", "GCP location (default $"+config.EnvLocation+")")
	fs.StringVar(&s.Bucket, "bucket", "", "GCS staging bucket (default $"+config.EnvStagingBucket+")")
	fs.StringVar(&s.ResourceID, "resource_id", "", "Deployment resource ID or full resource name")
	fs.StringVar(&s.UserID, "user_id", config.DefaultUserID, "User ID for session operations")
	fs.StringVar(&s.SessionID, "session_id", "", "Session ID for session operations")
	fs.StringVar(&s.Message, "message", config.DefaultMessage, "Message to send to the agent")
	fs.StringVar(&s.ConfigPath, "config", config.DefaultDescriptorPath, "Deployment descriptor used by --create")
	fs.StringVar(&s.Output, "output", string(engine.FormatText), "Output format: text, json or auto (text on a terminal, json otherwise)")
	fs.StringVar(&s.StateDB, "state_db", "", "Local history database, or \"off\" (default $"+config.EnvStateDB+" or user config dir)")
	fs.StringVar(&s.MetricsFile, "metrics_file", "", "Write request metrics in Prometheus text format to this file")
	fs.BoolVarP(&s.Verbose, "verbose", "v", false, "Enable debug logging")
	fs.StringSliceVar(&s.DebugDomains, "debug_domains", nil, "Limit debug logging to these domains (engine, platform, vertex, retry)")
	return fs
}

func run(ctx context.Context, stdout io.Writer, s *config.Settings, act *actions, factory BackendFactory, isTerminal bool) error {
	if s.Verbose || len(s.DebugDomains) > 0 {
		logx.SetDebug(true)
		logx.SetDebugDomains(s.DebugDomains)
	}
	ctx = logx.WithComponent(ctx, "enginectl")
	logger := logx.NewLogger("enginectl")

	if err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		logger.Warn("%v", err)
	}
	s.Resolve(nil)
	if err := s.Validate(); err != nil {
		logger.Debug("%v", err)
		fmt.Fprintln(stdout, config.MissingEnvironmentMessage)
		return nil
	}

	if !act.any() {
		fmt.Fprintln(stdout, "Please specify an action to perform.")
		return nil
	}

	format, err := engine.ParseFormat(s.Output, isTerminal)
	if err != nil {
		return err
	}

	history := openHistory(s, logger)
	if history != nil {
		defer func() { _ = history.Close() }()
	}

	opts := engine.Options{
		Out:      stdout,
		Format:   format,
		Project:  s.ProjectID,
		Location: s.Location,
	}
	if history != nil {
		opts.History = history
	}

	if act.remote() {
		backend, err := factory(ctx, s, act.create)
		if err != nil {
			return err
		}
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Debug("failed to close backend: %v", err)
			}
		}()

		recorder := platform.NewPrometheusRecorder()
		if s.MetricsFile != "" {
			defer func() {
				if err := recorder.WriteTextfile(s.MetricsFile); err != nil {
					logger.Warn("%v", err)
				}
			}()
		}

		opts.Platform = platform.New(backend.Platform,
			platform.WithLogging(),
			platform.WithMetrics(recorder),
			platform.WithRetry(platform.NewRetryPolicy(platform.DefaultRetryConfig, nil)),
		)
		opts.Stager = backend.Stager
	}

	return dispatch(ctx, engine.NewRunner(opts), s, act)
}

func openHistory(s *config.Settings, logger *logx.Logger) *persistence.Store {
	if !s.HistoryEnabled() {
		return nil
	}
	path, err := s.StateDBPath()
	if err != nil {
		logger.Warn("local history disabled: %v", err)
		return nil
	}
	store, err := persistence.Open(path)
	if err != nil {
		logger.Warn("local history disabled: %v", err)
		return nil
	}
	return store
}

func dispatch(ctx context.Context, r *engine.Runner, s *config.Settings, act *actions) error {
	switch {
	case act.create:
		desc, err := config.LoadDescriptor(s.ConfigPath)
		if err != nil {
			return err
		}
		return r.Create(ctx, desc)
	case act.delete:
		return r.Delete(ctx, s.ResourceID)
	case act.list:
		return r.List(ctx)
	case act.createSession:
		return r.CreateSession(ctx, s.ResourceID, s.UserID)
	case act.listSessions:
		return r.ListSessions(ctx, s.ResourceID, s.UserID)
	case act.getSession:
		return r.GetSession(ctx, s.ResourceID, s.UserID, s.SessionID)
	case act.deleteSession:
		return r.DeleteSession(ctx, s.ResourceID, s.UserID, s.SessionID)
	case act.send:
		return r.Send(ctx, s.ResourceID, s.UserID, s.SessionID, s.Message)
	case act.history:
		return r.History(ctx)
	default:
		return errors.New("no action selected")
	}
}
