package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// SubjectAreaRepo reads and seeds the career tracks offered for interviews.
type SubjectAreaRepo struct{ Pool PgxPool }

// NewSubjectAreaRepo constructs a SubjectAreaRepo with the given pool.
func NewSubjectAreaRepo(p PgxPool) *SubjectAreaRepo { return &SubjectAreaRepo{Pool: p} }

// Get loads one subject area by id.
func (r *SubjectAreaRepo) Get(ctx domain.Context, id string) (domain.SubjectArea, error) {
	tracer := otel.Tracer("repo.subject_areas")
	ctx, span := tracer.Start(ctx, "subject_areas.Get")
	defer span.End()

	q := `SELECT id, name, field, competencies, created_at FROM subject_areas WHERE id=$1`
	var sa domain.SubjectArea
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&sa.ID, &sa.Name, &sa.Field, &sa.Competencies, &sa.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SubjectArea{}, fmt.Errorf("op=subject_area.get: %w", domain.ErrNotFound)
		}
		return domain.SubjectArea{}, fmt.Errorf("op=subject_area.get: %w", err)
	}
	return sa, nil
}

// List returns all subject areas ordered by name.
func (r *SubjectAreaRepo) List(ctx domain.Context) ([]domain.SubjectArea, error) {
	tracer := otel.Tracer("repo.subject_areas")
	ctx, span := tracer.Start(ctx, "subject_areas.List")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT id, name, field, competencies, created_at FROM subject_areas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("op=subject_area.list: %w", err)
	}
	defer rows.Close()

	var out []domain.SubjectArea
	for rows.Next() {
		var sa domain.SubjectArea
		if err := rows.Scan(&sa.ID, &sa.Name, &sa.Field, &sa.Competencies, &sa.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=subject_area.list: %w", err)
		}
		out = append(out, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=subject_area.list: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces a subject area, used by the seed command.
func (r *SubjectAreaRepo) Upsert(ctx domain.Context, sa domain.SubjectArea) error {
	tracer := otel.Tracer("repo.subject_areas")
	ctx, span := tracer.Start(ctx, "subject_areas.Upsert")
	defer span.End()

	q := `INSERT INTO subject_areas (id, name, field, competencies, created_at)
	      VALUES ($1,$2,$3,$4,$5)
	      ON CONFLICT (id) DO UPDATE SET
	        name = EXCLUDED.name,
	        field = EXCLUDED.field,
	        competencies = EXCLUDED.competencies`
	if _, err := r.Pool.Exec(ctx, q, sa.ID, sa.Name, sa.Field, sa.Competencies, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=subject_area.upsert: %w", err)
	}
	return nil
}
