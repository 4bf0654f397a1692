package httpserver_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

type memSessionRepo struct {
	mu   sync.Mutex
	next int
	byID map[string]domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byID: map[string]domain.Session{}}
}

func (r *memSessionRepo) Create(_ domain.Context, s domain.Session) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.byID {
		if cur.OwnerID == s.OwnerID && cur.State.Open() {
			return domain.Session{}, domain.ErrConflict
		}
	}
	r.next++
	s.ID = fmt.Sprintf("sess-%d", r.next)
	s.Version = 1
	s.UpdatedAt = s.StartedAt
	r.byID[s.ID] = s
	return s, nil
}

func (r *memSessionRepo) Get(_ domain.Context, id, ownerID string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.OwnerID != ownerID {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *memSessionRepo) FindOpen(_ domain.Context, ownerID string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.OwnerID == ownerID && s.State.Open() {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (r *memSessionRepo) Update(_ domain.Context, s domain.Session, expectedVersion int64) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[s.ID]
	if !ok || cur.OwnerID != s.OwnerID {
		return domain.Session{}, domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.Session{}, domain.ErrVersionConflict
	}
	s.Version = expectedVersion + 1
	r.byID[s.ID] = s
	return s, nil
}

func (r *memSessionRepo) ListByOwner(_ domain.Context, ownerID string, f domain.SessionFilter) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.OwnerID != ownerID {
			continue
		}
		if f.State != "" && s.State != f.State {
			continue
		}
		if f.SubjectAreaID != "" && s.SubjectAreaID != f.SubjectAreaID {
			continue
		}
		if f.Difficulty != "" && s.Difficulty != f.Difficulty {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type stubAreaRepo struct{}

func (stubAreaRepo) Get(_ domain.Context, id string) (domain.SubjectArea, error) {
	if id != "backend-engineering" {
		return domain.SubjectArea{}, domain.ErrNotFound
	}
	return domain.SubjectArea{
		ID:           "backend-engineering",
		Name:         "Backend Engineering",
		Field:        "Technology",
		Competencies: []string{"APIs", "Databases"},
	}, nil
}

func (stubAreaRepo) List(domain.Context) ([]domain.SubjectArea, error) {
	a, _ := stubAreaRepo{}.Get(nil, "backend-engineering")
	return []domain.SubjectArea{a}, nil
}

func (stubAreaRepo) Upsert(domain.Context, domain.SubjectArea) error { return nil }

type stubAudit struct {
	mu      sync.Mutex
	entries []string
}

func (a *stubAudit) Append(_ domain.Context, sessionID, result string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, sessionID+":"+result)
	return nil
}

// stubAI replays scripted replies in call order, repeating the last one.
type stubAI struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (a *stubAI) Complete(_ domain.Context, _ []domain.ChatMessage, _ domain.ChatOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	if len(a.replies) == 0 {
		return "Tell me more about that.", nil
	}
	idx := a.calls - 1
	if idx >= len(a.replies) {
		idx = len(a.replies) - 1
	}
	return a.replies[idx], nil
}

func (a *stubAI) CheckAvailability(domain.Context) error { return a.err }

const evalJSON = `{
  "score": 7.4,
  "performance_level": "Solid",
  "strengths": ["Clear explanations"],
  "improvement_areas": ["More depth on system design"],
  "detailed_scores": {"communication": 8, "technical_knowledge": 7},
  "hire_recommendation": "Hire",
  "final_comment": "A well-rounded conversation.",
  "suggested_next_steps": ["System design round"]
}`

func newTestServer(ai *stubAI) *httpserver.Server {
	cfg := config.Config{MaxUploadMB: 5}
	engine := usecase.NewEvaluationEngine(ai, nil, "test-model", 4000, 900)
	interviews := usecase.NewInterviewService(newMemSessionRepo(), stubAreaRepo{}, &stubAudit{}, ai, engine, nil, 600)
	cvs := usecase.NewCVAnalysisService(newMemCVRepo(), ai, nil, "test-model", 4000, 900)
	return &httpserver.Server{Cfg: cfg, Interviews: interviews, CVs: cvs, Areas: stubAreaRepo{}}
}

func newTestRouter(srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/subject-areas", srv.SubjectAreasHandler())
	r.Group(func(g chi.Router) {
		g.Use(httpserver.CallerIdentity)
		g.Post("/v1/interviews", srv.StartInterviewHandler())
		g.Get("/v1/interviews", srv.ListInterviewsHandler())
		g.Get("/v1/interviews/active", srv.ActiveInterviewHandler())
		g.Get("/v1/interviews/{id}", srv.GetInterviewHandler())
		g.Post("/v1/interviews/{id}/messages", srv.MessageHandler())
		g.Post("/v1/interviews/{id}/finalize", srv.FinalizeHandler())
		g.Post("/v1/interviews/{id}/abandon", srv.AbandonHandler())
		g.Post("/v1/cv", srv.UploadCVHandler())
		g.Get("/v1/cv/{id}/report", srv.CVReportHandler())
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Name", "Dana")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var obj map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	return obj
}

func startSession(t *testing.T, h http.Handler, userID string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/interviews", userID, map[string]string{
		"subject_area_id": "backend-engineering",
		"difficulty":      "intermediate",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	obj := decodeBody(t, rec)
	sess, ok := obj["session"].(map[string]any)
	require.True(t, ok)
	id, _ := sess["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSubjectAreasHandler(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	rec := doJSON(t, h, http.MethodGet, "/v1/subject-areas", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decodeBody(t, rec)
	areas, ok := obj["subject_areas"].([]any)
	require.True(t, ok)
	require.Len(t, areas, 1)
	first := areas[0].(map[string]any)
	require.Equal(t, "Backend Engineering", first["name"])
}

func TestStartInterview_CreatesSession(t *testing.T) {
	ai := &stubAI{replies: []string{"Welcome Dana, tell me about your background."}}
	h := newTestRouter(newTestServer(ai))

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews", "u1", map[string]string{
		"subject_area_id": "backend-engineering",
		"difficulty":      "basic",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	obj := decodeBody(t, rec)
	require.Equal(t, "Welcome Dana, tell me about your background.", obj["opening"])
	require.Equal(t, true, obj["ai_available"])
	sess := obj["session"].(map[string]any)
	require.Equal(t, "started", sess["state"])
	history, ok := sess["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
}

func TestStartInterview_ValidationError(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	rec := doJSON(t, h, http.MethodPost, "/v1/interviews", "u1", map[string]string{
		"subject_area_id": "backend-engineering",
		"difficulty":      "expert",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	obj := decodeBody(t, rec)
	errObj := obj["error"].(map[string]any)
	require.Equal(t, "INVALID_ARGUMENT", errObj["code"])
	details := errObj["details"].(map[string]any)
	require.Equal(t, "oneof", details["difficulty"])
}

func TestStartInterview_MissingIdentity(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	rec := doJSON(t, h, http.MethodPost, "/v1/interviews", "", map[string]string{
		"subject_area_id": "backend-engineering",
		"difficulty":      "basic",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	obj := decodeBody(t, rec)
	errObj := obj["error"].(map[string]any)
	require.Equal(t, "UNAUTHENTICATED", errObj["code"])
}

func TestStartInterview_SecondOpenConflict(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	first := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews", "u1", map[string]string{
		"subject_area_id": "backend-engineering",
		"difficulty":      "advanced",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	obj := decodeBody(t, rec)
	errObj := obj["error"].(map[string]any)
	require.Equal(t, "CONFLICT", errObj["code"])
	details := errObj["details"].(map[string]any)
	require.Equal(t, first, details["existing_session_id"])
	require.Contains(t, details["actions"], "finalize")
}

func TestMessage_AppendsTurns(t *testing.T) {
	ai := &stubAI{replies: []string{"Welcome.", "Interesting, how did you scale it?"}}
	h := newTestRouter(newTestServer(ai))
	id := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u1", map[string]string{
		"text": "I built a payments service in Go.",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decodeBody(t, rec)
	require.Equal(t, "Interesting, how did you scale it?", obj["reply"])
	require.Equal(t, float64(1), obj["user_turns"])
	require.Equal(t, float64(2), obj["assistant_turns"])
	require.Equal(t, float64(3), obj["total_turns"])
}

func TestMessage_RejectsEmptyText(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	id := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u1", map[string]string{"text": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessage_UnknownSession(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/nope/messages", "u1", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorEnvelope_CarriesRequestID(t *testing.T) {
	h := httpserver.RequestID()(newTestRouter(newTestServer(&stubAI{})))

	req := httptest.NewRequest(http.MethodGet, "/v1/interviews/nope", nil)
	req.Header.Set("X-User-Id", "u1")
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	obj := decodeBody(t, rec)
	errObj := obj["error"].(map[string]any)
	require.Equal(t, "req-123", errObj["request_id"])
}

func TestMessage_OtherOwnerSessionHidden(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	id := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u2", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinalize_ReturnsEvaluation(t *testing.T) {
	ai := &stubAI{replies: []string{"Welcome.", "Go on.", evalJSON}}
	h := newTestRouter(newTestServer(ai))
	id := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u1", map[string]string{
		"text": "I led the migration to Postgres.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/finalize", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decodeBody(t, rec)
	require.Equal(t, true, obj["ai_available"])
	ev := obj["evaluation"].(map[string]any)
	require.Equal(t, 7.4, ev["score"])
	require.Equal(t, "Solid", ev["performance_level"])
	require.GreaterOrEqual(t, obj["duration_minutes"], float64(1))
	stats := obj["stats"].(map[string]any)
	require.Equal(t, float64(1), stats["user_turns"])
	require.Equal(t, float64(3), stats["total_turns"])
}

func TestFinalize_TwiceSurfacesStoredEvaluation(t *testing.T) {
	ai := &stubAI{replies: []string{"Welcome.", "Go on.", evalJSON}}
	h := newTestRouter(newTestServer(ai))
	id := startSession(t, h, "u1")
	doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u1", map[string]string{"text": "Answer one."})
	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/finalize", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/finalize", "u1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	obj := decodeBody(t, rec)
	errObj := obj["error"].(map[string]any)
	require.Equal(t, "CONFLICT", errObj["code"])
	details := errObj["details"].(map[string]any)
	require.Equal(t, id, details["session_id"])
	ev := details["evaluation"].(map[string]any)
	require.Equal(t, 7.4, ev["score"])
}

func TestFinalize_WithoutAnswers(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	id := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/finalize", "u1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbandon_Idempotent(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	id := startSession(t, h, "u1")

	rec := doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/abandon", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decodeBody(t, rec)
	require.Equal(t, "abandoned", obj["state"])

	rec = doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/abandon", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetInterview_IncludesHistory(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	id := startSession(t, h, "u1")
	doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u1", map[string]string{"text": "Answer."})

	rec := doJSON(t, h, http.MethodGet, "/v1/interviews/"+id, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decodeBody(t, rec)
	history, ok := obj["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 3)
}

func TestActiveInterview_NoneIs404(t *testing.T) {
	h := newTestRouter(newTestServer(&stubAI{}))
	rec := doJSON(t, h, http.MethodGet, "/v1/interviews/active", "u1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInterviews_StatsAndHistoryOmitted(t *testing.T) {
	ai := &stubAI{replies: []string{"Welcome.", "Go on.", evalJSON}}
	h := newTestRouter(newTestServer(ai))
	id := startSession(t, h, "u1")
	doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/messages", "u1", map[string]string{"text": "Answer."})
	doJSON(t, h, http.MethodPost, "/v1/interviews/"+id+"/finalize", "u1", nil)

	rec := doJSON(t, h, http.MethodGet, "/v1/interviews", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decodeBody(t, rec)
	items := obj["interviews"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	require.Equal(t, "completed", first["state"])
	_, hasHistory := first["history"]
	require.False(t, hasHistory)
	stats := obj["stats"].(map[string]any)
	require.Equal(t, float64(1), stats["total"])
	require.Equal(t, float64(1), stats["completed"])
	require.Equal(t, 7.4, stats["avg_score"])
}
