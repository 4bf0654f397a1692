package prompt

import (
	"fmt"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// cvAnalysisSystem instructs the model to act as a resume reviewer and answer
// with nothing but the report JSON.
const cvAnalysisSystem = `You are an expert HR analyst reviewing a candidate's CV.

Analyze the CV text and respond ONLY with valid JSON in exactly this format:
{
  "strengths": ["strength 1", "strength 2"],
  "technical_skills": ["skill 1", "skill 2"],
  "soft_skills": ["skill 1", "skill 2"],
  "improvement_areas": ["area 1", "area 2"],
  "experience_summary": "two or three sentences about the work experience",
  "education_summary": "one or two sentences about the education"
}

Rules:
- Base every item strictly on the CV text, never invent facts
- Keep each list between 2 and 6 items
- Respond with the JSON object only, no markdown fences, no commentary`

// CVAnalysis builds the single-shot analysis request for an extracted CV text.
// The text is trimmed from the end down to tokenBudget tokens; the head of a
// CV carries the identity and most recent experience.
func CVAnalysis(text, model string, tokenBudget int) []domain.ChatMessage {
	if tokenBudget > 0 {
		text = headToBudget(text, model, tokenBudget)
	}
	return []domain.ChatMessage{
		{Role: roleSystem, Content: cvAnalysisSystem},
		{Role: domain.RoleUser, Content: fmt.Sprintf("CV TEXT:\n\n%s", text)},
	}
}
