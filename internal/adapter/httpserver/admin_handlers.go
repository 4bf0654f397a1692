package httpserver

import (
	"fmt"
	"net/http"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// AdminOverviewHandler returns platform-wide counters. Mounted behind
// AdminBasicAuth.
func (s *Server) AdminOverviewHandler(repo domain.OverviewRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := repo.Overview(r.Context())
		if err != nil {
			writeError(w, r, fmt.Errorf("admin overview: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions": map[string]any{
				"total":     o.TotalSessions,
				"completed": o.CompletedSessions,
				"open":      o.OpenSessions,
				"abandoned": o.AbandonedSessions,
				"avg_score": o.AvgScore,
			},
			"cv_documents":  o.TotalCVDocuments,
			"subject_areas": o.SubjectAreas,
		})
	}
}
