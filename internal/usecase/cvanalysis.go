package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ai "github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/service/prompt"
	"github.com/fairyhunter13/ai-interview-coach/pkg/textx"
)

// minCVTextChars rejects extractions too thin to say anything about a career.
const minCVTextChars = 100

// CVAnalysisService turns an uploaded resume into a stored structured report.
type CVAnalysisService struct {
	CVs         domain.CVRepository
	AI          domain.AIClient
	Metrics     domain.MetricsSink
	Model       string
	TokenBudget int
	MaxTokens   int
	Now         func() time.Time

	cleaner *ai.ResponseCleaner
}

// NewCVAnalysisService constructs a CVAnalysisService.
func NewCVAnalysisService(cvs domain.CVRepository, client domain.AIClient, metrics domain.MetricsSink, model string, tokenBudget, maxTokens int) CVAnalysisService {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return CVAnalysisService{
		CVs:         cvs,
		AI:          client,
		Metrics:     metrics,
		Model:       model,
		TokenBudget: tokenBudget,
		MaxTokens:   maxTokens,
		Now:         time.Now,
		cleaner:     ai.NewResponseCleaner(),
	}
}

// AnalyzeInput carries an already-extracted CV.
type AnalyzeInput struct {
	OwnerID  string
	Filename string
	MIME     string
	Size     int64
	Text     string
}

// Analyze validates the extracted text, persists the document, produces a
// report (AI or deterministic fallback) and persists that too.
func (s CVAnalysisService) Analyze(ctx domain.Context, in AnalyzeInput) (domain.CVDocument, domain.CVReport, error) {
	lg := observability.LoggerFromContext(ctx)
	if in.OwnerID == "" {
		return domain.CVDocument{}, domain.CVReport{}, fmt.Errorf("%w: owner required", domain.ErrInvalidArgument)
	}
	text := textx.SanitizeText(in.Text)
	if len(text) < minCVTextChars {
		return domain.CVDocument{}, domain.CVReport{}, fmt.Errorf("%w: extracted text too short to analyze (%d chars)", domain.ErrInvalidArgument, len(text))
	}

	doc := domain.CVDocument{
		OwnerID:   in.OwnerID,
		Filename:  in.Filename,
		MIME:      in.MIME,
		Size:      in.Size,
		Text:      text,
		CreatedAt: s.Now().UTC(),
	}
	docID, err := s.CVs.CreateDocument(ctx, doc)
	if err != nil {
		return domain.CVDocument{}, domain.CVReport{}, fmt.Errorf("op=cv.analyze: %w", err)
	}
	doc.ID = docID

	report, aiAvailable := s.analyzeText(ctx, text)
	report.CVID = docID
	report.AIAvailable = aiAvailable
	report.CreatedAt = s.Now().UTC()

	reportID, err := s.CVs.CreateReport(ctx, report)
	if err != nil {
		return domain.CVDocument{}, domain.CVReport{}, fmt.Errorf("op=cv.analyze: %w", err)
	}
	report.ID = reportID

	s.Metrics.IncCounter("cv_analyzed")
	if !aiAvailable {
		s.Metrics.IncCounter("cv_degraded")
	}
	lg.Info("cv analyzed", "cv_id", docID, "filename", in.Filename, "ai_available", aiAvailable)
	return doc, report, nil
}

// Report fetches the stored report for a CV owned by ownerID.
func (s CVAnalysisService) Report(ctx domain.Context, cvID, ownerID string) (domain.CVReport, error) {
	if _, err := s.CVs.GetDocument(ctx, cvID, ownerID); err != nil {
		return domain.CVReport{}, fmt.Errorf("op=cv.report: %w", err)
	}
	report, err := s.CVs.GetReportByCV(ctx, cvID)
	if err != nil {
		return domain.CVReport{}, fmt.Errorf("op=cv.report: %w", err)
	}
	return report, nil
}

func (s CVAnalysisService) analyzeText(ctx domain.Context, text string) (domain.CVReport, bool) {
	lg := observability.LoggerFromContext(ctx)
	msgs := prompt.CVAnalysis(text, s.Model, s.TokenBudget)
	raw, err := s.AI.Complete(ctx, msgs, domain.ChatOptions{Temperature: evaluationTemperature, MaxTokens: s.MaxTokens})
	if err != nil {
		lg.Warn("ai unavailable for cv analysis, using fallback", "error", err)
		return FallbackCVReport(text), false
	}
	report, err := s.parseReport(raw)
	if err != nil {
		lg.Warn("unusable cv analysis output, using fallback", "error", err)
		return FallbackCVReport(text), false
	}
	return report, true
}

type cvReportPayload struct {
	Strengths         []string `json:"strengths"`
	TechnicalSkills   []string `json:"technical_skills"`
	SoftSkills        []string `json:"soft_skills"`
	ImprovementAreas  []string `json:"improvement_areas"`
	ExperienceSummary string   `json:"experience_summary"`
	EducationSummary  string   `json:"education_summary"`
}

func (s CVAnalysisService) parseReport(raw string) (domain.CVReport, error) {
	cleaned := s.cleaner.CleanJSONResponse(raw)
	var p cvReportPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return domain.CVReport{}, fmt.Errorf("%w: invalid json: %v", domain.ErrSchemaInvalid, err)
	}
	if len(p.Strengths) == 0 || p.ExperienceSummary == "" {
		return domain.CVReport{}, fmt.Errorf("%w: strengths or experience_summary missing", domain.ErrSchemaInvalid)
	}
	return domain.CVReport{
		Strengths:         p.Strengths,
		TechnicalSkills:   p.TechnicalSkills,
		SoftSkills:        p.SoftSkills,
		ImprovementAreas:  p.ImprovementAreas,
		ExperienceSummary: p.ExperienceSummary,
		EducationSummary:  p.EducationSummary,
	}, nil
}

// cvKeywordSkills maps lowercase keywords to the skill names reported by the
// degraded-mode analysis.
var cvKeywordSkills = []struct {
	keyword string
	skill   string
}{
	{"go", "Go"},
	{"golang", "Go"},
	{"python", "Python"},
	{"java", "Java"},
	{"javascript", "JavaScript"},
	{"typescript", "TypeScript"},
	{"sql", "SQL"},
	{"postgres", "PostgreSQL"},
	{"docker", "Docker"},
	{"kubernetes", "Kubernetes"},
	{"aws", "AWS"},
	{"react", "React"},
	{"linux", "Linux"},
	{"git", "Git"},
}

// FallbackCVReport is the degraded-mode analysis: a keyword scan over the
// extracted text plus fixed guidance, same shape as the AI report.
func FallbackCVReport(text string) domain.CVReport {
	lower := strings.ToLower(text)
	var skills []string
	seen := map[string]bool{}
	for _, ks := range cvKeywordSkills {
		if seen[ks.skill] {
			continue
		}
		if containsWord(lower, ks.keyword) {
			skills = append(skills, ks.skill)
			seen[ks.skill] = true
		}
	}
	if len(skills) == 0 {
		skills = []string{"See document for details"}
	}
	words := len(strings.Fields(text))
	return domain.CVReport{
		Strengths: []string{
			"Submitted a readable, parseable CV",
			fmt.Sprintf("Document contains %d words of extractable content", words),
		},
		TechnicalSkills:   skills,
		SoftSkills:        []string{"Pending manual review"},
		ImprovementAreas:  []string{"Detailed analysis pending manual review"},
		ExperienceSummary: "Automatic analysis was unavailable. The document was stored and a keyword scan of the text was performed instead.",
		EducationSummary:  "Pending manual review.",
	}
}

// containsWord reports whether lower contains keyword as a whole word.
func containsWord(lower, keyword string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], keyword)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(keyword)
		beforeOK := start == 0 || !isWordChar(lower[start-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '+' || b == '#'
}
