package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// SessionRepo persists interview sessions. History and evaluation live in
// jsonb columns; the version column carries the optimistic-concurrency token.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

const sessionColumns = `id, owner_id, owner_name, subject_area_id, difficulty, state, history, evaluation, duration_min, ai_available, started_at, updated_at, version`

// Create inserts a new session with version 1. A second open session for the
// same owner trips the partial unique index and maps to ErrConflict.
func (r *SessionRepo) Create(ctx domain.Context, s domain.Session) (domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "sessions"),
	)

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	history, err := json.Marshal(s.History)
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=session.create: %w", err)
	}
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.Version = 1

	q := `INSERT INTO sessions (` + sessionColumns + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,NULL,$8,$9,$10,$11)`
	_, err = r.Pool.Exec(ctx, q, s.ID, s.OwnerID, s.OwnerName, s.SubjectAreaID, s.Difficulty, s.State, history, s.AIAvailable, s.StartedAt, s.UpdatedAt, s.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Session{}, fmt.Errorf("op=session.create: open session exists: %w", domain.ErrConflict)
		}
		return domain.Session{}, fmt.Errorf("op=session.create: %w", err)
	}
	return s, nil
}

// Get loads a session by id scoped to its owner.
func (r *SessionRepo) Get(ctx domain.Context, id, ownerID string) (domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Get")
	defer span.End()

	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id=$1 AND owner_id=$2`
	s, err := scanSession(r.Pool.QueryRow(ctx, q, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=session.get: %w", err)
	}
	return s, nil
}

// FindOpen returns the owner's session in an open state, newest first.
func (r *SessionRepo) FindOpen(ctx domain.Context, ownerID string) (domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.FindOpen")
	defer span.End()

	q := `SELECT ` + sessionColumns + ` FROM sessions
	      WHERE owner_id=$1 AND state IN ('started','in_progress')
	      ORDER BY started_at DESC LIMIT 1`
	s, err := scanSession(r.Pool.QueryRow(ctx, q, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("op=session.find_open: %w", domain.ErrNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=session.find_open: %w", err)
	}
	return s, nil
}

// Update writes the full session document guarded by the version column.
// When no row matches it distinguishes a stale version from a missing row.
func (r *SessionRepo) Update(ctx domain.Context, s domain.Session, expectedVersion int64) (domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Update")
	defer span.End()

	history, err := json.Marshal(s.History)
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=session.update: %w", err)
	}
	var evaluation []byte
	if s.Evaluation != nil {
		evaluation, err = json.Marshal(s.Evaluation)
		if err != nil {
			return domain.Session{}, fmt.Errorf("op=session.update: %w", err)
		}
	}
	now := time.Now().UTC()

	q := `UPDATE sessions
	      SET state=$3, history=$4, evaluation=$5, duration_min=$6, ai_available=$7, updated_at=$8, version=version+1
	      WHERE id=$1 AND version=$2
	      RETURNING version`
	var newVersion int64
	err = r.Pool.QueryRow(ctx, q, s.ID, expectedVersion, s.State, history, evaluation, s.DurationMin, s.AIAvailable, now).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if perr := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id=$1)`, s.ID).Scan(&exists); perr == nil && !exists {
				return domain.Session{}, fmt.Errorf("op=session.update: %w", domain.ErrNotFound)
			}
			return domain.Session{}, fmt.Errorf("op=session.update: stale version %d: %w", expectedVersion, domain.ErrVersionConflict)
		}
		return domain.Session{}, fmt.Errorf("op=session.update: %w", err)
	}
	s.Version = newVersion
	s.UpdatedAt = now
	return s, nil
}

// ListByOwner returns the owner's sessions, newest first, with optional
// state/subject/difficulty filters.
func (r *SessionRepo) ListByOwner(ctx domain.Context, ownerID string, f domain.SessionFilter) ([]domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.ListByOwner")
	defer span.End()

	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id=$1`
	args := []any{ownerID}
	if f.State != "" {
		args = append(args, f.State)
		q += fmt.Sprintf(" AND state=$%d", len(args))
	}
	if f.SubjectAreaID != "" {
		args = append(args, f.SubjectAreaID)
		q += fmt.Sprintf(" AND subject_area_id=$%d", len(args))
	}
	if f.Difficulty != "" {
		args = append(args, f.Difficulty)
		q += fmt.Sprintf(" AND difficulty=$%d", len(args))
	}
	q += " ORDER BY started_at DESC"

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=session.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("op=session.list: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=session.list: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	var history, evaluation []byte
	if err := row.Scan(&s.ID, &s.OwnerID, &s.OwnerName, &s.SubjectAreaID, &s.Difficulty, &s.State, &history, &evaluation, &s.DurationMin, &s.AIAvailable, &s.StartedAt, &s.UpdatedAt, &s.Version); err != nil {
		return domain.Session{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.History); err != nil {
			return domain.Session{}, fmt.Errorf("history column: %w", err)
		}
	}
	if len(evaluation) > 0 {
		var ev domain.Evaluation
		if err := json.Unmarshal(evaluation, &ev); err != nil {
			return domain.Session{}, fmt.Errorf("evaluation column: %w", err)
		}
		s.Evaluation = &ev
	}
	return s, nil
}
