package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
	"github.com/fairyhunter13/ai-interview-coach/pkg/textx"
)

// allowedExt enforces the upload allowlist: .txt, .pdf, .docx.
func allowedExt(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".txt") || strings.HasSuffix(n, ".pdf") || strings.HasSuffix(n, ".docx")
}

func allowedMIMEFor(m, filename string) bool {
	m = strings.ToLower(m)
	// Some detectors misclassify rich .txt content as text/html.
	if strings.HasSuffix(strings.ToLower(filename), ".txt") && strings.HasPrefix(m, "text/") {
		return true
	}
	if strings.HasPrefix(m, "text/plain") {
		return true
	}
	return m == "application/pdf" || m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// extractUploadedText extracts plain text from an upload. Binary formats go
// through the Tika extractor via a temp file; .txt is sanitized directly.
func extractUploadedText(ctx context.Context, extractor domain.TextExtractor, h *multipart.FileHeader, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if ext == ".pdf" || ext == ".docx" {
		if extractor == nil {
			return "", fmt.Errorf("%w: %s uploads require the text extractor", domain.ErrInvalidArgument, strings.TrimPrefix(ext, "."))
		}
		tmp, err := os.CreateTemp("", "cv-upload-*")
		if err != nil {
			return "", err
		}
		defer func() {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}()
		if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
			return "", err
		}
		return extractor.ExtractPath(ctx, h.Filename, tmp.Name())
	}
	return textx.SanitizeText(string(data)), nil
}

func writeUnsupportedMedia(w http.ResponseWriter, message string, details interface{}) {
	writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
		Code:    "INVALID_ARGUMENT",
		Message: message,
		Details: details,
	}})
}

// UploadCVHandler accepts a multipart CV, extracts its text, and returns the
// analysis report.
func (s *Server) UploadCVHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		file, header, err := r.FormFile("cv")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: cv file required", domain.ErrInvalidArgument), map[string]string{"field": "cv"})
			return
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: cv read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if !allowedExt(header.Filename) {
			writeUnsupportedMedia(w, "unsupported media type (extension)", map[string]any{"filename": header.Filename})
			return
		}
		mt := mimetype.Detect(data)
		if !allowedMIMEFor(mt.String(), header.Filename) {
			writeUnsupportedMedia(w, "unsupported media type (content)", map[string]any{"mime": mt.String(), "filename": header.Filename})
			return
		}

		text, err := extractUploadedText(r.Context(), s.Extractor, header, data)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: extract: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		caller := CallerFrom(r)
		doc, report, err := s.CVs.Analyze(r.Context(), usecase.AnalyzeInput{
			OwnerID:  caller.ID,
			Filename: header.Filename,
			MIME:     mt.String(),
			Size:     int64(len(data)),
			Text:     text,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"cv_id":        doc.ID,
			"report":       reportView(report),
			"ai_available": report.AIAvailable,
		})
	}
}

// CVReportHandler returns the stored report for one CV.
func (s *Server) CVReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r)
		report, err := s.CVs.Report(r.Context(), chi.URLParam(r, "id"), caller.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"cv_id":        report.CVID,
			"report":       reportView(report),
			"ai_available": report.AIAvailable,
		})
	}
}

func reportView(r domain.CVReport) map[string]any {
	return map[string]any{
		"strengths":          r.Strengths,
		"technical_skills":   r.TechnicalSkills,
		"soft_skills":        r.SoftSkills,
		"improvement_areas":  r.ImprovementAreas,
		"experience_summary": r.ExperienceSummary,
		"education_summary":  r.EducationSummary,
	}
}
