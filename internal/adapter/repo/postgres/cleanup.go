package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// CleanupService deletes interview and CV data past the retention window.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService creates a cleanup service; retention defaults to 90 days.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData removes terminal sessions, their audit rows, and CV data
// older than the retention period. Open sessions are never touched.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=cleanup: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	auditTag, err := tx.Exec(ctx, `
		DELETE FROM interview_audit
		WHERE session_id IN (
			SELECT id FROM sessions
			WHERE state IN ('completed','abandoned') AND updated_at < $1
		)`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: audit: %w", err)
	}

	sessionTag, err := tx.Exec(ctx, `
		DELETE FROM sessions
		WHERE state IN ('completed','abandoned') AND updated_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: sessions: %w", err)
	}

	reportTag, err := tx.Exec(ctx, `
		DELETE FROM cv_reports
		WHERE cv_id IN (SELECT id FROM cv_documents WHERE created_at < $1)`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: reports: %w", err)
	}

	docTag, err := tx.Exec(ctx, `DELETE FROM cv_documents WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup: commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_sessions", sessionTag.RowsAffected()),
		slog.Int64("deleted_audit", auditTag.RowsAffected()),
		slog.Int64("deleted_reports", reportTag.RowsAffected()),
		slog.Int64("deleted_documents", docTag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs cleanup immediately and then on every tick until ctx ends.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
