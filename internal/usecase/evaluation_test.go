package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

var evalArea = domain.SubjectArea{
	ID:           "backend",
	Name:         "Backend Engineering",
	Field:        "Software",
	Competencies: []string{"APIs", "databases"},
}

func historyWithUserTurns(n int) []domain.Turn {
	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	history := []domain.Turn{{Role: domain.RoleAssistant, Content: "Welcome, first question?", Timestamp: ts}}
	for i := 0; i < n; i++ {
		ts = ts.Add(time.Minute)
		history = append(history,
			domain.Turn{Role: domain.RoleUser, Content: fmt.Sprintf("answer %d", i+1), Timestamp: ts},
			domain.Turn{Role: domain.RoleAssistant, Content: "Noted, next question?", Timestamp: ts.Add(time.Second)},
		)
	}
	return history
}

func TestEvaluateParsesAIResponse(t *testing.T) {
	raw := "```json\n" + `{
		"score": 8.2,
		"performance_level": "Strong",
		"strengths": ["clear reasoning", "depth in databases"],
		"improvement_areas": ["system design breadth"],
		"detailed_scores": {
			"communication": 8,
			"technical_knowledge": 9,
			"relevant_experience": 8,
			"professional_attitude": 8,
			"adaptability": 7.5
		},
		"hire_recommendation": "Strong hire",
		"final_comment": "Excellent interview.",
		"suggested_next_steps": ["onsite round"]
	}` + "\n```"
	ai := &scriptedAI{replies: []string{raw}}
	engine := NewEvaluationEngine(ai, domain.NopMetrics{}, "test-model", 6000, 1000)

	ev, fromAI := engine.Evaluate(context.Background(), evalArea, domain.DifficultyAdvanced, historyWithUserTurns(3))
	assert.True(t, fromAI)
	assert.InDelta(t, 8.2, ev.Score, 0.001)
	assert.Equal(t, "Strong", ev.PerformanceLevel)
	assert.Len(t, ev.Strengths, 2)
	assert.InDelta(t, 7.5, ev.DetailedScores["adaptability"], 0.001)
	assert.Equal(t, "Excellent interview.", ev.FinalComment)
}

func TestEvaluateToleratesChatterAroundJSON(t *testing.T) {
	raw := `Here is my assessment of the candidate:
{"score": 6.0, "performance_level": "Solid", "strengths": ["good attitude"], "improvement_areas": ["more detail"], "hire_recommendation": "Hire", "final_comment": "Decent showing.", "suggested_next_steps": ["follow-up"]}
Let me know if you need anything else.`
	ai := &scriptedAI{replies: []string{raw}}
	engine := NewEvaluationEngine(ai, domain.NopMetrics{}, "test-model", 6000, 1000)

	ev, fromAI := engine.Evaluate(context.Background(), evalArea, domain.DifficultyBasic, historyWithUserTurns(2))
	assert.True(t, fromAI)
	assert.InDelta(t, 6.0, ev.Score, 0.001)
}

func TestEvaluateFallsBackOnAIError(t *testing.T) {
	ai := &scriptedAI{err: errors.New("dial tcp: connection refused")}
	engine := NewEvaluationEngine(ai, domain.NopMetrics{}, "test-model", 6000, 1000)

	ev, fromAI := engine.Evaluate(context.Background(), evalArea, domain.DifficultyBasic, historyWithUserTurns(3))
	assert.False(t, fromAI)
	assert.InDelta(t, 4.5, ev.Score, 0.001)
	assert.Equal(t, "Developing", ev.PerformanceLevel)
}

func TestEvaluateFallsBackOnUnusableOutput(t *testing.T) {
	// complete is a minimal payload passing every validation rule; each case
	// below breaks exactly one rule.
	const complete = `{"score": 7, "performance_level": "Solid", "strengths": ["x"], "improvement_areas": ["y"], "hire_recommendation": "Hire", "final_comment": "c", "suggested_next_steps": ["z"]}`
	cases := map[string]string{
		"not json":               "The candidate did great, I would say around 8 out of 10.",
		"score oob":              strings.Replace(complete, `"score": 7`, `"score": 42`, 1),
		"missing level":          strings.Replace(complete, `"performance_level": "Solid", `, "", 1),
		"missing comment":        strings.Replace(complete, `"final_comment": "c", `, "", 1),
		"empty strengths":        strings.Replace(complete, `"strengths": ["x"]`, `"strengths": []`, 1),
		"missing improvements":   strings.Replace(complete, `"improvement_areas": ["y"], `, "", 1),
		"missing recommendation": strings.Replace(complete, `"hire_recommendation": "Hire", `, "", 1),
		"missing next steps":     strings.Replace(complete, `, "suggested_next_steps": ["z"]`, "", 1),
		"detail oob":             strings.Replace(complete, `"final_comment": "c"`, `"final_comment": "c", "detailed_scores": {"communication": 11}`, 1),
	}
	t.Run("baseline is accepted", func(t *testing.T) {
		ai := &scriptedAI{replies: []string{complete}}
		engine := NewEvaluationEngine(ai, domain.NopMetrics{}, "test-model", 6000, 1000)

		_, fromAI := engine.Evaluate(context.Background(), evalArea, domain.DifficultyIntermediate, historyWithUserTurns(6))
		assert.True(t, fromAI)
	})
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			ai := &scriptedAI{replies: []string{raw}}
			engine := NewEvaluationEngine(ai, domain.NopMetrics{}, "test-model", 6000, 1000)

			ev, fromAI := engine.Evaluate(context.Background(), evalArea, domain.DifficultyIntermediate, historyWithUserTurns(6))
			assert.False(t, fromAI)
			assert.InDelta(t, 6.5, ev.Score, 0.001)
			assert.Equal(t, "Solid", ev.PerformanceLevel)
		})
	}
}

func TestHeuristicEvaluationBands(t *testing.T) {
	cases := []struct {
		turns int
		score float64
		level string
	}{
		{0, 4.5, "Developing"},
		{4, 4.5, "Developing"},
		{5, 6.5, "Solid"},
		{9, 6.5, "Solid"},
		{10, 8.0, "Strong"},
		{25, 8.0, "Strong"},
	}
	for _, tc := range cases {
		ev := HeuristicEvaluation(tc.turns)
		assert.InDelta(t, tc.score, ev.Score, 0.001, "turns=%d", tc.turns)
		assert.Equal(t, tc.level, ev.PerformanceLevel, "turns=%d", tc.turns)
	}
}

func TestHeuristicEvaluationIsComplete(t *testing.T) {
	ev := HeuristicEvaluation(7)
	assert.NotEmpty(t, ev.Strengths)
	assert.NotEmpty(t, ev.ImprovementAreas)
	assert.NotEmpty(t, ev.HireRecommendation)
	assert.NotEmpty(t, ev.FinalComment)
	assert.NotEmpty(t, ev.SuggestedNextSteps)
	require.Len(t, ev.DetailedScores, 5)
	for dim, v := range ev.DetailedScores {
		assert.InDelta(t, ev.Score, v, 0.001, dim)
	}
	assert.Contains(t, ev.Strengths[0], "7")
}

func TestHeuristicEvaluationDeterministic(t *testing.T) {
	a := HeuristicEvaluation(5)
	b := HeuristicEvaluation(5)
	assert.Equal(t, a, b)
}
