package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// CVRepo persists uploaded CV documents and their analysis reports.
type CVRepo struct{ Pool PgxPool }

// NewCVRepo constructs a CVRepo with the given pool.
func NewCVRepo(p PgxPool) *CVRepo { return &CVRepo{Pool: p} }

// CreateDocument stores an extracted CV and returns its id.
func (r *CVRepo) CreateDocument(ctx domain.Context, d domain.CVDocument) (string, error) {
	tracer := otel.Tracer("repo.cv")
	ctx, span := tracer.Start(ctx, "cv.CreateDocument")
	defer span.End()

	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO cv_documents (id, owner_id, filename, mime, size, text, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, d.OwnerID, d.Filename, d.MIME, d.Size, d.Text, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=cv.create_document: %w", err)
	}
	return id, nil
}

// GetDocument loads a CV by id scoped to its owner.
func (r *CVRepo) GetDocument(ctx domain.Context, id, ownerID string) (domain.CVDocument, error) {
	tracer := otel.Tracer("repo.cv")
	ctx, span := tracer.Start(ctx, "cv.GetDocument")
	defer span.End()

	q := `SELECT id, owner_id, filename, mime, size, text, created_at FROM cv_documents WHERE id=$1 AND owner_id=$2`
	var d domain.CVDocument
	if err := r.Pool.QueryRow(ctx, q, id, ownerID).Scan(&d.ID, &d.OwnerID, &d.Filename, &d.MIME, &d.Size, &d.Text, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CVDocument{}, fmt.Errorf("op=cv.get_document: %w", domain.ErrNotFound)
		}
		return domain.CVDocument{}, fmt.Errorf("op=cv.get_document: %w", err)
	}
	return d, nil
}

// CreateReport stores an analysis report and returns its id. The list fields
// share one jsonb column to keep the row compact.
func (r *CVRepo) CreateReport(ctx domain.Context, rep domain.CVReport) (string, error) {
	tracer := otel.Tracer("repo.cv")
	ctx, span := tracer.Start(ctx, "cv.CreateReport")
	defer span.End()

	id := rep.ID
	if id == "" {
		id = uuid.New().String()
	}
	lists, err := json.Marshal(reportLists{
		Strengths:        rep.Strengths,
		TechnicalSkills:  rep.TechnicalSkills,
		SoftSkills:       rep.SoftSkills,
		ImprovementAreas: rep.ImprovementAreas,
	})
	if err != nil {
		return "", fmt.Errorf("op=cv.create_report: %w", err)
	}
	q := `INSERT INTO cv_reports (id, cv_id, lists, experience_summary, education_summary, ai_available, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, rep.CVID, lists, rep.ExperienceSummary, rep.EducationSummary, rep.AIAvailable, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=cv.create_report: %w", err)
	}
	return id, nil
}

// GetReportByCV loads the report stored for one CV.
func (r *CVRepo) GetReportByCV(ctx domain.Context, cvID string) (domain.CVReport, error) {
	tracer := otel.Tracer("repo.cv")
	ctx, span := tracer.Start(ctx, "cv.GetReportByCV")
	defer span.End()

	q := `SELECT id, cv_id, lists, experience_summary, education_summary, ai_available, created_at FROM cv_reports WHERE cv_id=$1`
	var rep domain.CVReport
	var lists []byte
	if err := r.Pool.QueryRow(ctx, q, cvID).Scan(&rep.ID, &rep.CVID, &lists, &rep.ExperienceSummary, &rep.EducationSummary, &rep.AIAvailable, &rep.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CVReport{}, fmt.Errorf("op=cv.get_report: %w", domain.ErrNotFound)
		}
		return domain.CVReport{}, fmt.Errorf("op=cv.get_report: %w", err)
	}
	var rl reportLists
	if err := json.Unmarshal(lists, &rl); err != nil {
		return domain.CVReport{}, fmt.Errorf("op=cv.get_report: lists column: %w", err)
	}
	rep.Strengths = rl.Strengths
	rep.TechnicalSkills = rl.TechnicalSkills
	rep.SoftSkills = rl.SoftSkills
	rep.ImprovementAreas = rl.ImprovementAreas
	return rep, nil
}

type reportLists struct {
	Strengths        []string `json:"strengths"`
	TechnicalSkills  []string `json:"technical_skills"`
	SoftSkills       []string `json:"soft_skills"`
	ImprovementAreas []string `json:"improvement_areas"`
}
