package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

type fakeCVRepo struct {
	mu      sync.Mutex
	docs    map[string]domain.CVDocument
	reports map[string]domain.CVReport
	nextID  int
}

func newFakeCVRepo() *fakeCVRepo {
	return &fakeCVRepo{docs: map[string]domain.CVDocument{}, reports: map[string]domain.CVReport{}}
}

func (r *fakeCVRepo) CreateDocument(_ domain.Context, d domain.CVDocument) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("cv-%d", r.nextID)
	d.ID = id
	r.docs[id] = d
	return id, nil
}

func (r *fakeCVRepo) GetDocument(_ domain.Context, id, ownerID string) (domain.CVDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.OwnerID != ownerID {
		return domain.CVDocument{}, fmt.Errorf("cv %s: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

func (r *fakeCVRepo) CreateReport(_ domain.Context, rep domain.CVReport) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("rep-%d", r.nextID)
	rep.ID = id
	r.reports[rep.CVID] = rep
	return id, nil
}

func (r *fakeCVRepo) GetReportByCV(_ domain.Context, cvID string) (domain.CVReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[cvID]
	if !ok {
		return domain.CVReport{}, fmt.Errorf("report for cv %s: %w", cvID, domain.ErrNotFound)
	}
	return rep, nil
}

const sampleCVText = `Jane Roe
Senior Backend Engineer

EXPERIENCE
Eight years building payment services in Go and Python, deployed on
Kubernetes with PostgreSQL. Led a team of four engineers through a
migration to event-driven architecture.

EDUCATION
BSc Computer Science, 2014.`

func newCVService(client domain.AIClient) (CVAnalysisService, *fakeCVRepo) {
	repo := newFakeCVRepo()
	svc := NewCVAnalysisService(repo, client, domain.NopMetrics{}, "test-model", 6000, 1000)
	return svc, repo
}

func TestAnalyzeStoresDocumentAndAIReport(t *testing.T) {
	raw := `{
		"strengths": ["long payments background", "team leadership"],
		"technical_skills": ["Go", "Python", "Kubernetes", "PostgreSQL"],
		"soft_skills": ["leadership"],
		"improvement_areas": ["broader frontend exposure"],
		"experience_summary": "Eight years of backend work in payments.",
		"education_summary": "BSc Computer Science."
	}`
	svc, repo := newCVService(&scriptedAI{replies: []string{raw}})

	doc, report, err := svc.Analyze(context.Background(), AnalyzeInput{
		OwnerID:  "u1",
		Filename: "jane.pdf",
		MIME:     "application/pdf",
		Size:     1234,
		Text:     sampleCVText,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, doc.ID, report.CVID)
	assert.True(t, report.AIAvailable)
	assert.Contains(t, report.TechnicalSkills, "Kubernetes")
	assert.Equal(t, "Eight years of backend work in payments.", report.ExperienceSummary)

	stored, err := repo.GetDocument(context.Background(), doc.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "jane.pdf", stored.Filename)
}

func TestAnalyzeRejectsThinText(t *testing.T) {
	svc, repo := newCVService(&scriptedAI{})

	_, _, err := svc.Analyze(context.Background(), AnalyzeInput{OwnerID: "u1", Filename: "x.txt", Text: "too short"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, repo.docs)
}

func TestAnalyzeFallsBackWhenAIDown(t *testing.T) {
	svc, _ := newCVService(&scriptedAI{err: errors.New("backend down")})

	_, report, err := svc.Analyze(context.Background(), AnalyzeInput{
		OwnerID:  "u1",
		Filename: "jane.txt",
		MIME:     "text/plain",
		Size:     int64(len(sampleCVText)),
		Text:     sampleCVText,
	})
	require.NoError(t, err)
	assert.False(t, report.AIAvailable)
	assert.Contains(t, report.TechnicalSkills, "Go")
	assert.Contains(t, report.TechnicalSkills, "Kubernetes")
	assert.NotEmpty(t, report.ExperienceSummary)
}

func TestAnalyzeFallsBackOnUnusableOutput(t *testing.T) {
	svc, _ := newCVService(&scriptedAI{replies: []string{"I could not process this document, sorry."}})

	_, report, err := svc.Analyze(context.Background(), AnalyzeInput{
		OwnerID: "u1", Filename: "jane.txt", Text: sampleCVText,
	})
	require.NoError(t, err)
	assert.False(t, report.AIAvailable)
}

func TestReportScopedToOwner(t *testing.T) {
	raw := `{"strengths": ["s"], "experience_summary": "fine."}`
	svc, _ := newCVService(&scriptedAI{replies: []string{raw}})

	doc, _, err := svc.Analyze(context.Background(), AnalyzeInput{OwnerID: "u1", Filename: "jane.txt", Text: sampleCVText})
	require.NoError(t, err)

	got, err := svc.Report(context.Background(), doc.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.CVID)

	_, err = svc.Report(context.Background(), doc.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFallbackCVReportKeywordScan(t *testing.T) {
	report := FallbackCVReport("Experienced in Golang, SQL and docker. Building on AWS.")
	assert.Contains(t, report.TechnicalSkills, "Go")
	assert.Contains(t, report.TechnicalSkills, "SQL")
	assert.Contains(t, report.TechnicalSkills, "Docker")
	assert.Contains(t, report.TechnicalSkills, "AWS")

	// "mango" must not match "go".
	none := FallbackCVReport("I enjoy mango smoothies and long walks.")
	assert.NotContains(t, none.TechnicalSkills, "Go")
}

func TestFallbackCVReportNoKeywords(t *testing.T) {
	report := FallbackCVReport(strings.Repeat("plain text without any tech words. ", 10))
	require.NotEmpty(t, report.TechnicalSkills)
	assert.NotEmpty(t, report.Strengths)
	assert.NotEmpty(t, report.ExperienceSummary)
}
