// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/service/prompt"
)

// maxWriteAttempts bounds retries of a session read-modify-write when the
// persistence layer reports a version conflict.
const maxWriteAttempts = 3

const chatTemperature = 0.7

// InterviewService owns the interview session lifecycle: start, message
// exchange, finalize, abandon, and read access.
type InterviewService struct {
	Sessions domain.SessionRepository
	Areas    domain.SubjectAreaRepository
	Audit    domain.AuditRepository
	AI       domain.AIClient
	Engine   EvaluationEngine
	Metrics  domain.MetricsSink
	// ChatMaxTokens bounds each conversational completion.
	ChatMaxTokens int
	// Now is the clock; replaced in tests.
	Now func() time.Time
}

// NewInterviewService constructs an InterviewService with its dependencies.
func NewInterviewService(sessions domain.SessionRepository, areas domain.SubjectAreaRepository, audit domain.AuditRepository, client domain.AIClient, engine EvaluationEngine, metrics domain.MetricsSink, chatMaxTokens int) InterviewService {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return InterviewService{
		Sessions:      sessions,
		Areas:         areas,
		Audit:         audit,
		AI:            client,
		Engine:        engine,
		Metrics:       metrics,
		ChatMaxTokens: chatMaxTokens,
		Now:           time.Now,
	}
}

// StartOutput is the result of a successful start.
type StartOutput struct {
	Session     domain.Session
	Area        domain.SubjectArea
	Opening     string
	AIAvailable bool
}

// Start creates a new session for the owner, or rejects with an
// OpenSessionError when one is already in flight. The opening remark comes
// from the AI backend, or from a template when the backend is down.
func (s InterviewService) Start(ctx domain.Context, ownerID, ownerName, areaID string, difficulty domain.Difficulty) (StartOutput, error) {
	lg := observability.LoggerFromContext(ctx)
	if ownerID == "" {
		return StartOutput{}, fmt.Errorf("%w: owner required", domain.ErrInvalidArgument)
	}
	if areaID == "" {
		return StartOutput{}, fmt.Errorf("%w: subject area required", domain.ErrInvalidArgument)
	}
	if !domain.ValidDifficulty(difficulty) {
		return StartOutput{}, fmt.Errorf("%w: difficulty must be basic, intermediate or advanced", domain.ErrInvalidArgument)
	}

	area, err := s.Areas.Get(ctx, areaID)
	if err != nil {
		return StartOutput{}, fmt.Errorf("op=interview.start: %w", err)
	}

	// Reject policy: an in-flight session is never overwritten, its history
	// is worth more than a fresh greeting.
	if existing, err := s.Sessions.FindOpen(ctx, ownerID); err == nil {
		return StartOutput{}, &domain.OpenSessionError{SessionID: existing.ID}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return StartOutput{}, fmt.Errorf("op=interview.start: %w", err)
	}

	opening, aiAvailable := s.openingRemark(ctx, area, difficulty, ownerName)

	now := s.Now().UTC()
	sess := domain.Session{
		OwnerID:       ownerID,
		OwnerName:     ownerName,
		SubjectAreaID: area.ID,
		Difficulty:    difficulty,
		State:         domain.SessionStarted,
		History: []domain.Turn{
			{Role: domain.RoleAssistant, Content: opening, Timestamp: now},
		},
		AIAvailable: aiAvailable,
		StartedAt:   now,
	}
	created, err := s.Sessions.Create(ctx, sess)
	if err != nil {
		// A racing start can beat us past the FindOpen check; the unique
		// open-session index turns that into a conflict here.
		if errors.Is(err, domain.ErrConflict) {
			if existing, ferr := s.Sessions.FindOpen(ctx, ownerID); ferr == nil {
				return StartOutput{}, &domain.OpenSessionError{SessionID: existing.ID}
			}
			return StartOutput{}, fmt.Errorf("op=interview.start: %w", err)
		}
		return StartOutput{}, fmt.Errorf("op=interview.start: %w", err)
	}

	s.Metrics.IncCounter("interview_started", string(difficulty))
	if !aiAvailable {
		s.Metrics.IncCounter("interview_degraded", "start")
	}
	lg.Info("interview started", "session_id", created.ID, "subject_area", area.Name, "difficulty", difficulty, "ai_available", aiAvailable)
	return StartOutput{Session: created, Area: area, Opening: opening, AIAvailable: aiAvailable}, nil
}

func (s InterviewService) openingRemark(ctx domain.Context, area domain.SubjectArea, difficulty domain.Difficulty, ownerName string) (string, bool) {
	lg := observability.LoggerFromContext(ctx)
	msgs := prompt.Opening(area, difficulty, ownerName)
	reply, err := s.AI.Complete(ctx, msgs, domain.ChatOptions{Temperature: chatTemperature, MaxTokens: s.ChatMaxTokens})
	if err != nil || strings.TrimSpace(reply) == "" {
		lg.Warn("ai unavailable for opening, using fallback", "error", err)
		return prompt.FallbackOpening(ownerName, area.Name), false
	}
	return reply, true
}

// MessageOutput is the result of one message exchange.
type MessageOutput struct {
	Reply          string
	UserTurns      int
	AssistantTurns int
	TotalTurns     int
	AIAvailable    bool
}

// SendMessage appends the candidate's turn, obtains the interviewer's reply
// (AI or varied fallback), and persists both atomically via the session's
// version check. Terminal sessions reject messages.
func (s InterviewService) SendMessage(ctx domain.Context, sessionID, ownerID, text string) (MessageOutput, error) {
	lg := observability.LoggerFromContext(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return MessageOutput{}, fmt.Errorf("%w: message text required", domain.ErrInvalidArgument)
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sess, err := s.Sessions.Get(ctx, sessionID, ownerID)
		if err != nil {
			return MessageOutput{}, fmt.Errorf("op=interview.message: %w", err)
		}
		switch sess.State {
		case domain.SessionCompleted:
			return MessageOutput{}, fmt.Errorf("%w: this interview was already completed", domain.ErrInvalidArgument)
		case domain.SessionAbandoned:
			return MessageOutput{}, fmt.Errorf("%w: this interview was abandoned; start a new one", domain.ErrInvalidArgument)
		}

		area, err := s.Areas.Get(ctx, sess.SubjectAreaID)
		if err != nil {
			return MessageOutput{}, fmt.Errorf("op=interview.message: %w", err)
		}

		baseLen := len(sess.History)
		now := s.Now().UTC()
		sess.History = append(sess.History, domain.Turn{Role: domain.RoleUser, Content: text, Timestamp: now})

		reply, aiAvailable := s.assistantReply(ctx, area, sess)
		sess.History = append(sess.History, domain.Turn{Role: domain.RoleAssistant, Content: reply, Timestamp: s.Now().UTC()})
		sess.State = domain.SessionInProgress
		sess.AIAvailable = aiAvailable

		updated, err := s.Sessions.Update(ctx, sess, sess.Version)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				lg.Warn("session changed during message exchange, retrying", "session_id", sessionID, "attempt", attempt+1)
				continue
			}
			return MessageOutput{}, fmt.Errorf("op=interview.message: %w", err)
		}

		// Partial-write guard: a successful exchange grows history by exactly
		// two turns. Anything else is corruption, not a user error.
		if len(updated.History) != baseLen+2 {
			return MessageOutput{}, fmt.Errorf("%w: history grew from %d to %d, expected %d", domain.ErrInternal, baseLen, len(updated.History), baseLen+2)
		}

		if !aiAvailable {
			s.Metrics.IncCounter("interview_degraded", "message")
		}
		userTurns, assistantTurns := updated.TurnCounts()
		return MessageOutput{
			Reply:          reply,
			UserTurns:      userTurns,
			AssistantTurns: assistantTurns,
			TotalTurns:     len(updated.History),
			AIAvailable:    aiAvailable,
		}, nil
	}
	return MessageOutput{}, fmt.Errorf("%w: session is being updated concurrently, retry", domain.ErrConflict)
}

func (s InterviewService) assistantReply(ctx domain.Context, area domain.SubjectArea, sess domain.Session) (string, bool) {
	lg := observability.LoggerFromContext(ctx)
	msgs := prompt.Conversation(area, sess.Difficulty, sess.History)
	reply, err := s.AI.Complete(ctx, msgs, domain.ChatOptions{Temperature: chatTemperature, MaxTokens: s.ChatMaxTokens})
	if err != nil || strings.TrimSpace(reply) == "" {
		userTurns, _ := sess.TurnCounts()
		lg.Warn("ai unavailable for reply, using fallback", "error", err, "session_id", sess.ID)
		return prompt.FallbackContinuation(userTurns), false
	}
	return reply, true
}

// FinalizeOutput carries the evaluation plus interaction statistics.
type FinalizeOutput struct {
	Evaluation      domain.Evaluation
	DurationMinutes int
	UserTurns       int
	AssistantTurns  int
	TotalTurns      int
	AvgAnswerChars  int
	AIAvailable     bool
}

// Finalize closes the session with a scored evaluation. Already-completed
// sessions yield an AlreadyCompletedError carrying the stored evaluation; the
// AI is never asked to re-score.
func (s InterviewService) Finalize(ctx domain.Context, sessionID, ownerID string) (FinalizeOutput, error) {
	lg := observability.LoggerFromContext(ctx)
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sess, err := s.Sessions.Get(ctx, sessionID, ownerID)
		if err != nil {
			return FinalizeOutput{}, fmt.Errorf("op=interview.finalize: %w", err)
		}
		if sess.State == domain.SessionCompleted {
			ev := domain.Evaluation{}
			if sess.Evaluation != nil {
				ev = *sess.Evaluation
			}
			return FinalizeOutput{}, &domain.AlreadyCompletedError{SessionID: sess.ID, Evaluation: ev}
		}

		// Role filtering excludes anything that is not a user/assistant turn,
		// so a stray system entry can never satisfy the gate.
		filtered := filterTurns(sess.History)
		userTurns, assistantTurns := countRoles(filtered)
		if userTurns == 0 {
			return FinalizeOutput{}, fmt.Errorf("%w: the interview has no candidate answers yet", domain.ErrInvalidArgument)
		}
		if len(filtered) < 2 {
			return FinalizeOutput{}, fmt.Errorf("%w: the interview needs at least one full exchange before finalizing", domain.ErrInvalidArgument)
		}

		area, err := s.Areas.Get(ctx, sess.SubjectAreaID)
		if err != nil {
			return FinalizeOutput{}, fmt.Errorf("op=interview.finalize: %w", err)
		}

		evaluation, aiAvailable := s.Engine.Evaluate(ctx, area, sess.Difficulty, filtered)

		now := s.Now().UTC()
		minutes := int(math.Round(now.Sub(sess.StartedAt).Minutes()))
		if minutes < 1 {
			minutes = 1
		}

		sess.State = domain.SessionCompleted
		sess.Evaluation = &evaluation
		sess.DurationMin = &minutes
		sess.AIAvailable = aiAvailable

		updated, err := s.Sessions.Update(ctx, sess, sess.Version)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				lg.Warn("session changed during finalize, retrying", "session_id", sessionID, "attempt", attempt+1)
				continue
			}
			return FinalizeOutput{}, fmt.Errorf("op=interview.finalize: %w", err)
		}

		if err := s.Audit.Append(ctx, updated.ID, evaluation.PerformanceLevel); err != nil {
			lg.Warn("audit append failed", "session_id", updated.ID, "error", err)
		}
		s.Metrics.IncCounter("interview_completed", string(sess.Difficulty))
		s.Metrics.Observe("interview_score", evaluation.Score, string(sess.Difficulty))
		s.Metrics.Observe("interview_duration_minutes", float64(minutes))
		lg.Info("interview finalized", "session_id", updated.ID, "score", evaluation.Score, "level", evaluation.PerformanceLevel, "ai_available", aiAvailable)

		return FinalizeOutput{
			Evaluation:      evaluation,
			DurationMinutes: minutes,
			UserTurns:       userTurns,
			AssistantTurns:  assistantTurns,
			TotalTurns:      len(filtered),
			AvgAnswerChars:  avgUserAnswerChars(filtered),
			AIAvailable:     aiAvailable,
		}, nil
	}
	return FinalizeOutput{}, fmt.Errorf("%w: session is being updated concurrently, retry", domain.ErrConflict)
}

// Abandon moves a non-completed session to the abandoned terminal state.
// No AI call, no evaluation fields.
func (s InterviewService) Abandon(ctx domain.Context, sessionID, ownerID string) error {
	lg := observability.LoggerFromContext(ctx)
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sess, err := s.Sessions.Get(ctx, sessionID, ownerID)
		if err != nil {
			return fmt.Errorf("op=interview.abandon: %w", err)
		}
		if sess.State == domain.SessionCompleted {
			return fmt.Errorf("%w: a completed interview cannot be abandoned", domain.ErrInvalidArgument)
		}
		if sess.State == domain.SessionAbandoned {
			return nil
		}
		sess.State = domain.SessionAbandoned
		if _, err := s.Sessions.Update(ctx, sess, sess.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return fmt.Errorf("op=interview.abandon: %w", err)
		}
		s.Metrics.IncCounter("interview_abandoned", string(sess.Difficulty))
		lg.Info("interview abandoned", "session_id", sessionID)
		return nil
	}
	return fmt.Errorf("%w: session is being updated concurrently, retry", domain.ErrConflict)
}

// Get returns the owner's session including full history.
func (s InterviewService) Get(ctx domain.Context, sessionID, ownerID string) (domain.Session, error) {
	sess, err := s.Sessions.Get(ctx, sessionID, ownerID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=interview.get: %w", err)
	}
	return sess, nil
}

// Active returns the owner's open session, if any.
func (s InterviewService) Active(ctx domain.Context, ownerID string) (domain.Session, error) {
	sess, err := s.Sessions.FindOpen(ctx, ownerID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=interview.active: %w", err)
	}
	return sess, nil
}

// ListStats aggregates an owner's interview history.
type ListStats struct {
	Total      int
	Completed  int
	InProgress int
	Abandoned  int
	// AvgScore is nil until at least one session is completed.
	AvgScore *float64
}

// List returns the owner's sessions (filtered) plus summary statistics.
func (s InterviewService) List(ctx domain.Context, ownerID string, f domain.SessionFilter) ([]domain.Session, ListStats, error) {
	sessions, err := s.Sessions.ListByOwner(ctx, ownerID, f)
	if err != nil {
		return nil, ListStats{}, fmt.Errorf("op=interview.list: %w", err)
	}
	stats := ListStats{Total: len(sessions)}
	var sum float64
	var scored int
	for _, sess := range sessions {
		switch sess.State {
		case domain.SessionCompleted:
			stats.Completed++
		case domain.SessionAbandoned:
			stats.Abandoned++
		default:
			stats.InProgress++
		}
		if sess.Evaluation != nil {
			sum += sess.Evaluation.Score
			scored++
		}
	}
	if scored > 0 {
		avg := math.Round(sum/float64(scored)*100) / 100
		stats.AvgScore = &avg
	}
	return sessions, stats, nil
}

func filterTurns(history []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(history))
	for _, t := range history {
		if t.Role == domain.RoleUser || t.Role == domain.RoleAssistant {
			out = append(out, t)
		}
	}
	return out
}

func countRoles(history []domain.Turn) (user, assistant int) {
	for _, t := range history {
		switch t.Role {
		case domain.RoleUser:
			user++
		case domain.RoleAssistant:
			assistant++
		}
	}
	return user, assistant
}

func avgUserAnswerChars(history []domain.Turn) int {
	total, n := 0, 0
	for _, t := range history {
		if t.Role == domain.RoleUser {
			total += len(t.Content)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / n
}
