package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"enginectl/pkg/engine"
)

// Store implements engine.History on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ engine.History = (*Store)(nil)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, e engine.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (kind, name, deployment, user_id, project, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Name, e.Deployment, e.UserID, e.Project, e.Location,
		s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s %s: %w", e.Kind, e.Name, err)
	}
	return nil
}

// RecordDeployment stores a created deployment.
func (s *Store) RecordDeployment(ctx context.Context, project, location, name string) error {
	return s.insert(ctx, engine.HistoryEntry{
		Kind:     engine.KindDeployment,
		Name:     name,
		Project:  project,
		Location: location,
	})
}

// RecordSession stores a created session of deployment.
func (s *Store) RecordSession(ctx context.Context, project, location, deployment, userID, sessionID string) error {
	return s.insert(ctx, engine.HistoryEntry{
		Kind:       engine.KindSession,
		Name:       sessionID,
		Deployment: deployment,
		UserID:     userID,
		Project:    project,
		Location:   location,
	})
}

// MarkDeploymentDeleted flags the deployment and every session recorded under it.
func (s *Store) MarkDeploymentDeleted(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE history SET deleted = 1
		WHERE (kind = 'deployment' AND name = ?) OR (kind = 'session' AND deployment = ?)`,
		name, name)
	if err != nil {
		return fmt.Errorf("failed to mark %s deleted: %w", name, err)
	}
	return nil
}

// MarkSessionDeleted flags sessionID of deployment. Session IDs are only
// unique within a deployment.
func (s *Store) MarkSessionDeleted(ctx context.Context, deployment, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE history SET deleted = 1
		WHERE kind = 'session' AND name = ? AND deployment = ?`,
		sessionID, deployment)
	if err != nil {
		return fmt.Errorf("failed to mark session %s deleted: %w", sessionID, err)
	}
	return nil
}

// LatestDeployment returns the most recently recorded live deployment in
// project/location, or "" when there is none.
func (s *Store) LatestDeployment(ctx context.Context, project, location string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM history
		WHERE kind = 'deployment' AND deleted = 0 AND project = ? AND location = ?
		ORDER BY id DESC LIMIT 1`, project, location).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest deployment: %w", err)
	}
	return name, nil
}

// Entries returns every entry for project/location, oldest first.
func (s *Store) Entries(ctx context.Context, project, location string) ([]engine.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, deployment, user_id, project, location, created_at, deleted
		FROM history
		WHERE project = ? AND location = ?
		ORDER BY id`, project, location)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []engine.HistoryEntry
	for rows.Next() {
		var (
			e       engine.HistoryEntry
			kind    string
			created string
		)
		if err := rows.Scan(&kind, &e.Name, &e.Deployment, &e.UserID, &e.Project, &e.Location, &created, &e.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Kind = engine.HistoryKind(kind)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
