// Package domain holds the core entities and ports of the interview coach.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	// ErrVersionConflict signals that a session document changed between read
	// and write. Callers may retry the whole read-modify-write cycle.
	ErrVersionConflict = errors.New("version conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrInternal        = errors.New("internal error")
)

// Difficulty levels accepted for an interview session.
type Difficulty string

const (
	DifficultyBasic        Difficulty = "basic"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ValidDifficulty reports whether d is one of the accepted difficulty levels.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyBasic, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// SessionState enumerates the interview lifecycle states.
type SessionState string

const (
	SessionStarted    SessionState = "started"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
	SessionAbandoned  SessionState = "abandoned"
)

// Terminal reports whether the state accepts no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// Open reports whether the state counts against the one-open-session-per-owner
// invariant. Abandoned sessions are terminal and never block a new start.
func (s SessionState) Open() bool {
	return s == SessionStarted || s == SessionInProgress
}

// Turn roles stored in conversation history. The system role is deliberately
// absent: system instructions are rebuilt on every AI call and never persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation, in insertion order.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SubjectArea is the career track an interview simulates (immutable per session).
type SubjectArea struct {
	ID           string
	Name         string
	Field        string
	Competencies []string
	CreatedAt    time.Time
}

// Evaluation is the structured scoring produced at finalize, either by the AI
// backend or by the deterministic heuristic fallback. Both paths fill every field.
type Evaluation struct {
	Score              float64            `json:"score"`
	PerformanceLevel   string             `json:"performance_level"`
	Strengths          []string           `json:"strengths"`
	ImprovementAreas   []string           `json:"improvement_areas"`
	DetailedScores     map[string]float64 `json:"detailed_scores"`
	HireRecommendation string             `json:"hire_recommendation"`
	FinalComment       string             `json:"final_comment"`
	SuggestedNextSteps []string           `json:"suggested_next_steps"`
}

// Session is one interview attempt by one candidate.
// Invariants: History only grows and is never reordered; evaluation fields are
// written exactly once at the completed transition; terminal states accept no
// further turns.
type Session struct {
	ID            string
	OwnerID       string
	OwnerName     string
	SubjectAreaID string
	Difficulty    Difficulty
	State         SessionState
	History       []Turn
	Evaluation    *Evaluation
	DurationMin   *int
	AIAvailable   bool
	StartedAt     time.Time
	UpdatedAt     time.Time
	// Version is the optimistic-concurrency token checked by
	// SessionRepository.Update.
	Version int64
}

// TurnCounts returns the number of user and assistant turns in history,
// ignoring any role outside the two persisted ones.
func (s Session) TurnCounts() (user, assistant int) {
	for _, t := range s.History {
		switch t.Role {
		case RoleUser:
			user++
		case RoleAssistant:
			assistant++
		}
	}
	return user, assistant
}

// CVDocument is an uploaded resume with its extracted text.
type CVDocument struct {
	ID        string
	OwnerID   string
	Filename  string
	MIME      string
	Size      int64
	Text      string
	CreatedAt time.Time
}

// CVReport is the AI-derived (or fallback) analysis of a CV.
type CVReport struct {
	ID                string
	CVID              string
	Strengths         []string
	TechnicalSkills   []string
	SoftSkills        []string
	ImprovementAreas  []string
	ExperienceSummary string
	EducationSummary  string
	AIAvailable       bool
	CreatedAt         time.Time
}

// PlatformOverview aggregates counters across all owners for the admin view.
type PlatformOverview struct {
	TotalSessions     int
	CompletedSessions int
	OpenSessions      int
	AbandonedSessions int
	AvgScore          *float64
	TotalCVDocuments  int
	SubjectAreas      int
}

// SessionFilter narrows ListByOwner results. Zero values match everything.
type SessionFilter struct {
	State         SessionState
	SubjectAreaID string
	Difficulty    Difficulty
}

// Context is an alias so ports read uniformly; adapters pass context.Context.
type Context = context.Context
