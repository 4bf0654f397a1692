package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// AuditRepo appends one row per finalized interview.
type AuditRepo struct{ Pool PgxPool }

// NewAuditRepo constructs an AuditRepo with the given pool.
func NewAuditRepo(p PgxPool) *AuditRepo { return &AuditRepo{Pool: p} }

// Append records the finalize outcome for a session.
func (r *AuditRepo) Append(ctx domain.Context, sessionID, result string) error {
	tracer := otel.Tracer("repo.audit")
	ctx, span := tracer.Start(ctx, "audit.Append")
	defer span.End()

	q := `INSERT INTO interview_audit (id, session_id, result, created_at) VALUES ($1,$2,$3,$4)`
	if _, err := r.Pool.Exec(ctx, q, uuid.New().String(), sessionID, result, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=audit.append: %w", err)
	}
	return nil
}
