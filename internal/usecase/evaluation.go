package usecase

import (
	"encoding/json"
	"fmt"

	ai "github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/service/prompt"
)

// EvaluationEngine turns a finished transcript into a structured evaluation.
// AI unavailability and unusable output are absorbed into a deterministic
// heuristic so finalize never fails on the upstream model.
type EvaluationEngine struct {
	AI          domain.AIClient
	Metrics     domain.MetricsSink
	Model       string
	TokenBudget int
	MaxTokens   int

	cleaner *ai.ResponseCleaner
}

// NewEvaluationEngine constructs an EvaluationEngine.
func NewEvaluationEngine(client domain.AIClient, metrics domain.MetricsSink, model string, tokenBudget, maxTokens int) EvaluationEngine {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return EvaluationEngine{
		AI:          client,
		Metrics:     metrics,
		Model:       model,
		TokenBudget: tokenBudget,
		MaxTokens:   maxTokens,
		cleaner:     ai.NewResponseCleaner(),
	}
}

// evaluationTemperature favors determinism over creativity for scoring.
const evaluationTemperature = 0.2

// Evaluate returns a complete evaluation and whether the AI produced it. Both
// paths yield the same shape so callers never branch on AI availability.
func (e EvaluationEngine) Evaluate(ctx domain.Context, area domain.SubjectArea, difficulty domain.Difficulty, history []domain.Turn) (domain.Evaluation, bool) {
	lg := observability.LoggerFromContext(ctx)
	userTurns := 0
	for _, t := range history {
		if t.Role == domain.RoleUser {
			userTurns++
		}
	}

	msgs := prompt.Evaluation(area, difficulty, history, e.Model, e.TokenBudget)
	raw, err := e.AI.Complete(ctx, msgs, domain.ChatOptions{Temperature: evaluationTemperature, MaxTokens: e.MaxTokens})
	if err != nil {
		lg.Warn("ai unavailable for evaluation, using heuristic", "error", err, "user_turns", userTurns)
		e.Metrics.IncCounter("evaluation_degraded", "ai_error")
		return HeuristicEvaluation(userTurns), false
	}

	ev, err := e.parse(raw)
	if err != nil {
		lg.Warn("unusable evaluation output, using heuristic", "error", err, "user_turns", userTurns)
		e.Metrics.IncCounter("evaluation_degraded", "parse_error")
		return HeuristicEvaluation(userTurns), false
	}
	e.Metrics.IncCounter("evaluation_ok", "ai")
	return ev, true
}

func (e EvaluationEngine) parse(raw string) (domain.Evaluation, error) {
	cleaned := e.cleaner.CleanJSONResponse(raw)
	var ev domain.Evaluation
	if err := json.Unmarshal([]byte(cleaned), &ev); err != nil {
		return domain.Evaluation{}, fmt.Errorf("%w: invalid json: %v", domain.ErrSchemaInvalid, err)
	}
	if err := validateEvaluation(ev); err != nil {
		return domain.Evaluation{}, err
	}
	return ev, nil
}

func validateEvaluation(ev domain.Evaluation) error {
	if ev.Score < 0 || ev.Score > 10 {
		return fmt.Errorf("%w: score %.2f out of range", domain.ErrSchemaInvalid, ev.Score)
	}
	if ev.PerformanceLevel == "" {
		return fmt.Errorf("%w: performance_level missing", domain.ErrSchemaInvalid)
	}
	if len(ev.Strengths) == 0 {
		return fmt.Errorf("%w: strengths missing", domain.ErrSchemaInvalid)
	}
	if len(ev.ImprovementAreas) == 0 {
		return fmt.Errorf("%w: improvement_areas missing", domain.ErrSchemaInvalid)
	}
	if ev.HireRecommendation == "" {
		return fmt.Errorf("%w: hire_recommendation missing", domain.ErrSchemaInvalid)
	}
	if ev.FinalComment == "" {
		return fmt.Errorf("%w: final_comment missing", domain.ErrSchemaInvalid)
	}
	if len(ev.SuggestedNextSteps) == 0 {
		return fmt.Errorf("%w: suggested_next_steps missing", domain.ErrSchemaInvalid)
	}
	for dim, v := range ev.DetailedScores {
		if v < 0 || v > 10 {
			return fmt.Errorf("%w: detailed score %s=%.2f out of range", domain.ErrSchemaInvalid, dim, v)
		}
	}
	return nil
}

// HeuristicEvaluation is the degraded-mode scoring: a fixed step function of
// the candidate's turn count. Ten or more answers land in the high band, five
// or more in the mid band, anything less in the low band.
func HeuristicEvaluation(userTurns int) domain.Evaluation {
	var score float64
	var level string
	switch {
	case userTurns >= 10:
		score, level = 8.0, "Strong"
	case userTurns >= 5:
		score, level = 6.5, "Solid"
	default:
		score, level = 4.5, "Developing"
	}
	per := score
	return domain.Evaluation{
		Score:            score,
		PerformanceLevel: level,
		Strengths: []string{
			fmt.Sprintf("Active participation across %d answers", userTurns),
			"Completed the interview session",
		},
		ImprovementAreas: []string{"Detailed evaluation pending manual review"},
		DetailedScores: map[string]float64{
			"communication":         per,
			"technical_knowledge":   per,
			"relevant_experience":   per,
			"professional_attitude": per,
			"adaptability":          per,
		},
		HireRecommendation: "Requires additional evaluation",
		FinalComment:       fmt.Sprintf("The candidate completed the interview with %d answers. A manual review of the transcript is recommended.", userTurns),
		SuggestedNextSteps: []string{"Manual review of the transcript", "Consider a follow-up interview"},
	}
}
