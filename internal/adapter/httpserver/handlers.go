package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Interviews usecase.InterviewService
	CVs        usecase.CVAnalysisService
	Areas      domain.SubjectAreaRepository
	Extractor  domain.TextExtractor
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	AICheck    func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

// sessionView is the wire shape of a session.
type sessionView struct {
	ID              string              `json:"id"`
	SubjectAreaID   string              `json:"subject_area_id"`
	Difficulty      domain.Difficulty   `json:"difficulty"`
	State           domain.SessionState `json:"state"`
	History         []domain.Turn       `json:"history,omitempty"`
	Evaluation      *domain.Evaluation  `json:"evaluation,omitempty"`
	DurationMinutes *int                `json:"duration_minutes,omitempty"`
	AIAvailable     bool                `json:"ai_available"`
	StartedAt       time.Time           `json:"started_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toSessionView(s domain.Session, includeHistory bool) sessionView {
	v := sessionView{
		ID:              s.ID,
		SubjectAreaID:   s.SubjectAreaID,
		Difficulty:      s.Difficulty,
		State:           s.State,
		Evaluation:      s.Evaluation,
		DurationMinutes: s.DurationMin,
		AIAvailable:     s.AIAvailable,
		StartedAt:       s.StartedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if includeHistory {
		v.History = s.History
	}
	return v
}

// SubjectAreasHandler lists the career tracks available for interviews.
func (s *Server) SubjectAreasHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		areas, err := s.Areas.List(r.Context())
		if err != nil {
			writeError(w, r, fmt.Errorf("subject areas: %w", err), nil)
			return
		}
		type areaView struct {
			ID           string   `json:"id"`
			Name         string   `json:"name"`
			Field        string   `json:"field"`
			Competencies []string `json:"competencies"`
		}
		out := make([]areaView, 0, len(areas))
		for _, a := range areas {
			out = append(out, areaView{ID: a.ID, Name: a.Name, Field: a.Field, Competencies: a.Competencies})
		}
		writeJSON(w, http.StatusOK, map[string]any{"subject_areas": out})
	}
}

// StartInterviewHandler creates a session and returns the opening remark.
func (s *Server) StartInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			SubjectAreaID string `json:"subject_area_id" validate:"required"`
			Difficulty    string `json:"difficulty" validate:"required,oneof=basic intermediate advanced"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		caller := CallerFrom(r)
		out, err := s.Interviews.Start(r.Context(), caller.ID, caller.Name, req.SubjectAreaID, domain.Difficulty(req.Difficulty))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"session":      toSessionView(out.Session, true),
			"subject_area": out.Area.Name,
			"opening":      out.Opening,
			"ai_available": out.AIAvailable,
		})
	}
}

// MessageHandler appends a candidate answer and returns the interviewer reply.
func (s *Server) MessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Text string `json:"text" validate:"required,max=8000"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		caller := CallerFrom(r)
		out, err := s.Interviews.SendMessage(r.Context(), chi.URLParam(r, "id"), caller.ID, req.Text)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"reply":           out.Reply,
			"user_turns":      out.UserTurns,
			"assistant_turns": out.AssistantTurns,
			"total_turns":     out.TotalTurns,
			"ai_available":    out.AIAvailable,
		})
	}
}

// FinalizeHandler closes the interview and returns the evaluation.
func (s *Server) FinalizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r)
		out, err := s.Interviews.Finalize(r.Context(), chi.URLParam(r, "id"), caller.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"evaluation":       out.Evaluation,
			"duration_minutes": out.DurationMinutes,
			"ai_available":     out.AIAvailable,
			"stats": map[string]any{
				"user_turns":       out.UserTurns,
				"assistant_turns":  out.AssistantTurns,
				"total_turns":      out.TotalTurns,
				"avg_answer_chars": out.AvgAnswerChars,
			},
		})
	}
}

// AbandonHandler marks the interview abandoned.
func (s *Server) AbandonHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r)
		if err := s.Interviews.Abandon(r.Context(), chi.URLParam(r, "id"), caller.ID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": string(domain.SessionAbandoned)})
	}
}

// GetInterviewHandler returns one session with its full history.
func (s *Server) GetInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r)
		sess, err := s.Interviews.Get(r.Context(), chi.URLParam(r, "id"), caller.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(sess, true))
	}
}

// ActiveInterviewHandler returns the caller's open session, 404 when none.
func (s *Server) ActiveInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r)
		sess, err := s.Interviews.Active(r.Context(), caller.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(sess, true))
	}
}

// ListInterviewsHandler returns the caller's sessions plus stats. History is
// omitted from list items to keep responses small.
func (s *Server) ListInterviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r)
		f := domain.SessionFilter{
			State:         domain.SessionState(r.URL.Query().Get("state")),
			SubjectAreaID: r.URL.Query().Get("subject_area_id"),
			Difficulty:    domain.Difficulty(r.URL.Query().Get("difficulty")),
		}
		sessions, stats, err := s.Interviews.List(r.Context(), caller.ID, f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]sessionView, 0, len(sessions))
		for _, sess := range sessions {
			items = append(items, toSessionView(sess, false))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"interviews": items,
			"stats": map[string]any{
				"total":       stats.Total,
				"completed":   stats.Completed,
				"in_progress": stats.InProgress,
				"abandoned":   stats.Abandoned,
				"avg_score":   stats.AvgScore,
			},
		})
	}
}
