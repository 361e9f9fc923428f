package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"enginectl/pkg/config"
	"enginectl/pkg/logx"
	"enginectl/pkg/utils"
)

// Options configures a Runner.
type Options struct {
	Platform Platform
	Stager   Stager  // Required only for Create
	History  History // Optional
	Out      io.Writer
	Format   Format
	Project  string
	Location string
}

// Runner executes one enginectl action per call and prints its result.
type Runner struct {
	platform Platform
	stager   Stager
	history  History
	out      *printer
	project  string
	location string
	logger   *logx.Logger
}

// NewRunner creates a Runner from opts.
func NewRunner(opts Options) *Runner {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatText
	}
	return &Runner{
		platform: opts.Platform,
		stager:   opts.Stager,
		history:  opts.History,
		out:      &printer{w: out, format: format},
		project:  opts.Project,
		location: opts.Location,
		logger:   logx.NewLogger("engine"),
	}
}

// resolve turns a user-supplied resource ID into a full name, falling back to
// the most recently created deployment in local history.
func (r *Runner) resolve(ctx context.Context, resourceID string) (string, error) {
	if resourceID == "" && r.history != nil {
		latest, err := r.history.LatestDeployment(ctx, r.project, r.location)
		if err != nil {
			r.logger.Warn("failed to read history: %v", err)
		}
		if latest != "" {
			r.logger.Info("no --resource_id given, using most recent deployment %s", latest)
			return latest, nil
		}
	}
	if resourceID == "" {
		return "", config.ErrMissingResourceID
	}
	name, err := ResourceName(r.project, r.location, resourceID)
	if err != nil {
		return "", err
	}
	if loc := LocationOf(name); loc != r.location {
		r.logger.Warn("deployment %s is in %s but the client targets %s", name, loc, r.location)
	}
	return name, nil
}

// deployment resolves resourceID and confirms the deployment exists.
func (r *Runner) deployment(ctx context.Context, resourceID string) (*Deployment, error) {
	name, err := r.resolve(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	d, err := r.platform.GetDeployment(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment %s: %w", name, err)
	}
	return d, nil
}

func (r *Runner) recordErr(action string, err error) {
	if err != nil {
		r.logger.Warn("failed to record %s in history: %v", action, err)
	}
}

// Create stages the descriptor's artifacts and creates a deployment from them.
func (r *Runner) Create(ctx context.Context, desc *config.Descriptor) error {
	if r.stager == nil {
		return errors.New("no artifact stager configured")
	}

	pkg, err := r.stager.Stage(ctx, desc)
	if err != nil {
		return fmt.Errorf("failed to stage artifacts: %w", err)
	}
	logx.DebugFlow(ctx, "engine", "create", "staged", pkg.PickleURI)
	if names := desc.EnvNames(); len(names) > 0 {
		r.logger.Info("deployment environment: %s", strings.Join(names, ", "))
	}

	spec := &DeploymentSpec{
		DisplayName: desc.DisplayName,
		Description: desc.Description,
		Package:     *pkg,
		Env:         desc.Env,
	}
	d, err := r.platform.CreateDeployment(ctx, spec)
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}

	if r.history != nil {
		r.recordErr("deployment", r.history.RecordDeployment(ctx, r.project, r.location, d.Name))
	}

	if !r.out.text() {
		return r.out.json(d)
	}
	r.out.line("Created remote app: %s", d.Name)
	return nil
}

// Delete force-deletes a deployment together with its sessions. It never
// falls back to local history: the deployment must be named explicitly.
func (r *Runner) Delete(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		return config.ErrMissingResourceID
	}
	d, err := r.deployment(ctx, resourceID)
	if err != nil {
		return err
	}
	if err := r.platform.DeleteDeployment(ctx, d.Name, true); err != nil {
		return fmt.Errorf("failed to delete deployment %s: %w", d.Name, err)
	}

	if r.history != nil {
		r.recordErr("deletion", r.history.MarkDeploymentDeleted(ctx, d.Name))
	}

	if !r.out.text() {
		return r.out.json(map[string]string{"deleted": d.Name})
	}
	r.out.line("Deleted remote app: %s", resourceID)
	return nil
}

// List prints every deployment in the configured project and location.
func (r *Runner) List(ctx context.Context) error {
	deployments, err := r.platform.ListDeployments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if !r.out.text() {
		if deployments == nil {
			deployments = []*Deployment{}
		}
		return r.out.json(deployments)
	}
	r.out.line("Deployments:")
	for _, d := range deployments {
		r.out.line("- %s", d.Name)
	}
	return nil
}

// CreateSession creates a session for userID on a deployment.
func (r *Runner) CreateSession(ctx context.Context, resourceID, userID string) error {
	d, err := r.deployment(ctx, resourceID)
	if err != nil {
		return err
	}

	out, err := r.platform.Query(ctx, d.Name, MethodCreateSession, map[string]any{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s, err := decodeSession(out)
	if err != nil {
		return fmt.Errorf("failed to decode created session: %w", err)
	}

	if r.history != nil {
		r.recordErr("session", r.history.RecordSession(ctx, r.project, r.location, d.Name, s.UserID, s.ID))
	}

	if !r.out.text() {
		return r.out.json(s)
	}
	r.out.line("Created session:")
	r.printSession(s, "Session ID")
	return nil
}

// ListSessions prints the sessions userID owns on a deployment.
func (r *Runner) ListSessions(ctx context.Context, resourceID, userID string) error {
	d, err := r.deployment(ctx, resourceID)
	if err != nil {
		return err
	}

	out, err := r.platform.Query(ctx, d.Name, MethodListSessions, map[string]any{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions, err := decodeSessions(out)
	if err != nil {
		return fmt.Errorf("failed to decode sessions: %w", err)
	}

	if !r.out.text() {
		if sessions == nil {
			sessions = []*Session{}
		}
		return r.out.json(sessions)
	}
	r.out.line("Sessions for user '%s':", userID)
	for _, s := range sessions {
		r.out.line("- Session ID: %s", s.ID)
	}
	return nil
}

// GetSession prints one session.
func (r *Runner) GetSession(ctx context.Context, resourceID, userID, sessionID string) error {
	if sessionID == "" {
		return config.ErrMissingSessionID
	}
	d, err := r.deployment(ctx, resourceID)
	if err != nil {
		return err
	}

	out, err := r.platform.Query(ctx, d.Name, MethodGetSession, map[string]any{
		"user_id":    userID,
		"session_id": sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	s, err := decodeSession(out)
	if err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}

	if !r.out.text() {
		return r.out.json(s)
	}
	r.out.line("Session details:")
	r.printSession(s, "ID")
	return nil
}

// DeleteSession removes one session.
func (r *Runner) DeleteSession(ctx context.Context, resourceID, userID, sessionID string) error {
	if sessionID == "" {
		return config.ErrMissingSessionID
	}
	d, err := r.deployment(ctx, resourceID)
	if err != nil {
		return err
	}

	if _, err := r.platform.Query(ctx, d.Name, MethodDeleteSession, map[string]any{
		"user_id":    userID,
		"session_id": sessionID,
	}); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	if r.history != nil {
		r.recordErr("session deletion", r.history.MarkSessionDeleted(ctx, d.Name, sessionID))
	}

	if !r.out.text() {
		return r.out.json(map[string]string{"deleted": sessionID})
	}
	r.out.line("Deleted session: %s", sessionID)
	return nil
}

func (r *Runner) printSession(s *Session, idLabel string) {
	r.out.line("  %s: %s", idLabel, s.ID)
	r.out.line("  User ID: %s", s.UserID)
	r.out.line("  App name: %s", s.AppName)
	r.out.line("  Last update time: %s", s.FormatLastUpdate())
}

// Send streams the agent's response to message in an existing session.
func (r *Runner) Send(ctx context.Context, resourceID, userID, sessionID, message string) error {
	if sessionID == "" {
		return config.ErrMissingSessionID
	}
	d, err := r.deployment(ctx, resourceID)
	if err != nil {
		return err
	}
	if logx.IsDebugEnabledForDomain("engine") {
		logx.Debug(ctx, "engine", "message is ~%d tokens", utils.CountTokensSimple(message))
	}

	if r.out.text() {
		r.out.line("Sending message to session %s:", sessionID)
		r.out.line("Message: %s", message)
		r.out.line("\nResponse:")
	}

	events := 0
	var reply strings.Builder
	err = r.platform.StreamQuery(ctx, d.Name, MethodStreamQuery, map[string]any{
		"user_id":    userID,
		"session_id": sessionID,
		"message":    message,
	}, func(raw json.RawMessage) error {
		events++
		if !r.out.text() {
			r.out.raw(raw)
			return nil
		}
		ev, perr := ParseEvent(raw)
		if perr != nil {
			logx.Debug(ctx, "engine", "unparsed event: %v", perr)
			r.out.raw(raw)
			return nil
		}
		reply.WriteString(ev.Text())
		for _, l := range ev.Render() {
			r.out.line("%s", l)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to stream response: %w", err)
	}
	if logx.IsDebugEnabledForDomain("engine") {
		logx.DebugFlow(ctx, "engine", "send", "complete", fmt.Sprintf("%d events, reply ~%d tokens", events, utils.CountTokensSimple(reply.String())))
	}
	return nil
}

// History prints locally recorded deployments and sessions.
func (r *Runner) History(ctx context.Context) error {
	if r.history == nil {
		return errors.New("local history is disabled")
	}
	entries, err := r.history.Entries(ctx, r.project, r.location)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if !r.out.text() {
		if entries == nil {
			entries = []HistoryEntry{}
		}
		return r.out.json(entries)
	}
	r.out.line("History:")
	for i := range entries {
		e := &entries[i]
		status := ""
		if e.Deleted {
			status = " (deleted)"
		}
		switch e.Kind {
		case KindSession:
			r.out.line("- session %s user=%s on %s%s", e.Name, e.UserID, e.Deployment, status)
		default:
			r.out.line("- deployment %s created %s%s", e.Name, e.CreatedAt.Format("2006-01-02 15:04:05"), status)
		}
	}
	return nil
}
