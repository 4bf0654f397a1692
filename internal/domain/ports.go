package domain

// Repositories (ports)

// SessionRepository persists interview sessions with their embedded history.
type SessionRepository interface {
	Create(ctx Context, s Session) (Session, error)
	// Get loads a session by id scoped to its owner; ErrNotFound when the id
	// is unknown or owned by someone else.
	Get(ctx Context, id, ownerID string) (Session, error)
	// FindOpen returns the owner's session in {started, in_progress};
	// ErrNotFound when none exists.
	FindOpen(ctx Context, ownerID string) (Session, error)
	// Update writes the full session document if and only if the stored
	// version equals expectedVersion; ErrVersionConflict otherwise.
	Update(ctx Context, s Session, expectedVersion int64) (Session, error)
	ListByOwner(ctx Context, ownerID string, f SessionFilter) ([]Session, error)
}

// SubjectAreaRepository reads and seeds career tracks.
type SubjectAreaRepository interface {
	Get(ctx Context, id string) (SubjectArea, error)
	List(ctx Context) ([]SubjectArea, error)
	Upsert(ctx Context, sa SubjectArea) error
}

// AuditRepository appends lightweight historical records for finalized interviews.
type AuditRepository interface {
	Append(ctx Context, sessionID, result string) error
}

// OverviewRepository aggregates cross-owner counters for the admin surface.
type OverviewRepository interface {
	Overview(ctx Context) (PlatformOverview, error)
}

// CVRepository persists uploaded documents and their analysis reports.
type CVRepository interface {
	CreateDocument(ctx Context, d CVDocument) (string, error)
	GetDocument(ctx Context, id, ownerID string) (CVDocument, error)
	CreateReport(ctx Context, r CVReport) (string, error)
	GetReportByCV(ctx Context, cvID string) (CVReport, error)
}

// ChatMessage is one role-tagged message sent to the AI backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tune a single completion call.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// AIClient abstracts a chat-completion capability. Failures are ordinary
// errors; callers closer to the user convert them into fallback values.
type AIClient interface {
	Complete(ctx Context, messages []ChatMessage, opts ChatOptions) (string, error)
	CheckAvailability(ctx Context) error
}

// TextExtractor pulls plain text out of an uploaded binary document.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// MetricsSink receives domain-level counters and observations. Injected so the
// core carries no global mutable state and stays testable in isolation.
type MetricsSink interface {
	IncCounter(name string, labels ...string)
	Observe(name string, value float64, labels ...string)
}

// NopMetrics is a MetricsSink that discards everything.
type NopMetrics struct{}

// IncCounter implements MetricsSink.
func (NopMetrics) IncCounter(string, ...string) {}

// Observe implements MetricsSink.
func (NopMetrics) Observe(string, float64, ...string) {}
