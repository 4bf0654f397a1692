package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// OverviewRepo computes cross-owner aggregates for the admin surface.
type OverviewRepo struct{ Pool PgxPool }

// NewOverviewRepo constructs an OverviewRepo with the given pool.
func NewOverviewRepo(p PgxPool) *OverviewRepo { return &OverviewRepo{Pool: p} }

// Overview returns platform-wide counters in a single round trip.
func (r *OverviewRepo) Overview(ctx domain.Context) (domain.PlatformOverview, error) {
	tracer := otel.Tracer("repo.overview")
	ctx, span := tracer.Start(ctx, "overview.Overview")
	defer span.End()

	q := `SELECT
	        (SELECT COUNT(*) FROM sessions),
	        (SELECT COUNT(*) FROM sessions WHERE state = 'completed'),
	        (SELECT COUNT(*) FROM sessions WHERE state IN ('started','in_progress')),
	        (SELECT COUNT(*) FROM sessions WHERE state = 'abandoned'),
	        (SELECT AVG((evaluation->>'score')::float) FROM sessions WHERE evaluation IS NOT NULL),
	        (SELECT COUNT(*) FROM cv_documents),
	        (SELECT COUNT(*) FROM subject_areas)`
	var o domain.PlatformOverview
	if err := r.Pool.QueryRow(ctx, q).Scan(
		&o.TotalSessions, &o.CompletedSessions, &o.OpenSessions, &o.AbandonedSessions,
		&o.AvgScore, &o.TotalCVDocuments, &o.SubjectAreas,
	); err != nil {
		return domain.PlatformOverview{}, fmt.Errorf("op=overview: %w", err)
	}
	return o, nil
}
