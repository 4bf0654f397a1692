// Package prompt builds role-tagged message sequences for the interview AI.
//
// Everything here is a pure function of session metadata and stored history.
// The system message is regenerated on every call and is never part of the
// persisted conversation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

const roleSystem = "system"

var difficultyInstruction = map[domain.Difficulty]string{
	domain.DifficultyBasic:        "basic level, focusing on fundamental and motivational questions",
	domain.DifficultyIntermediate: "intermediate level, with moderate technical and situational questions",
	domain.DifficultyAdvanced:     "advanced level, with deep technical questions, complex cases and leadership assessment",
}

// System returns the interviewer persona instruction for a session. Generated
// fresh per call from session metadata, never stored or replayed from history.
func System(area domain.SubjectArea, difficulty domain.Difficulty) string {
	competencies := "- General technical competencies\n- Soft skills\n- Adaptability"
	if len(area.Competencies) > 0 {
		lines := make([]string, len(area.Competencies))
		for i, c := range area.Competencies {
			lines[i] = "- " + c
		}
		competencies = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are a professional HR recruiter specialized in %s.

**YOUR ROLE:**
- You are friendly but professional
- You ask ONE question at a time and wait for the candidate's answer
- You evaluate answers in the context of %s
- You adapt your questions to the candidate's previous answers
- You give constructive feedback when appropriate

**DIFFICULTY LEVEL:** %s - %s

**KEY COMPETENCIES TO ASSESS:**
%s

**INTERVIEW STRUCTURE:**
1. Professional greeting and a short introduction
2. Questions about experience and motivation
3. Technical questions specific to %s
4. Situational/behavioral questions
5. Closing and space for the candidate's questions

**IMPORTANT:**
- Do NOT ask multiple questions at once
- Listen carefully to each answer before continuing
- Stay empathetic but professional
- Answer conversationally in short paragraphs
- Do not use JSON unless explicitly requested`,
		area.Name, area.Name, difficulty, difficultyInstruction[difficulty], competencies, area.Field)
}

// Conversation maps stored history into the message list for a chat call:
// exactly one fresh system message first, then every persisted user/assistant
// turn in order. Turns with any other role are excluded.
func Conversation(area domain.SubjectArea, difficulty domain.Difficulty, history []domain.Turn) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(history)+1)
	msgs = append(msgs, domain.ChatMessage{Role: roleSystem, Content: System(area, difficulty)})
	for _, t := range history {
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			continue
		}
		msgs = append(msgs, domain.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// Opening builds the messages that ask the model for its opening remark to a
// freshly started session.
func Opening(area domain.SubjectArea, difficulty domain.Difficulty, candidateName string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: roleSystem, Content: System(area, difficulty)},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Hello, I'm %s. I'm ready to start the interview.", candidateName)},
	}
}

// Evaluation builds the single-shot evaluation request. The transcript is
// embedded as formatted text rather than a role sequence so the model analyzes
// the interview instead of continuing the persona. The transcript is trimmed
// from the oldest turn down to tokenBudget tokens (the latest exchanges carry
// the evaluation signal).
func Evaluation(area domain.SubjectArea, difficulty domain.Difficulty, history []domain.Turn, model string, tokenBudget int) []domain.ChatMessage {
	transcript := Transcript(history)
	if tokenBudget > 0 {
		transcript = trimToBudget(transcript, model, tokenBudget)
	}

	user := fmt.Sprintf(`As a professional recruiter, analyze this complete interview and produce a detailed evaluation in JSON.

**SUBJECT AREA:** %s
**DIFFICULTY:** %s

**INTERVIEW TRANSCRIPT:**
%s

**PRODUCE A JSON OBJECT WITH EXACTLY THIS STRUCTURE:**
{
  "score": 8.5,
  "performance_level": "Very Good",
  "strengths": ["Clear structured communication", "Solid technical knowledge"],
  "improvement_areas": ["Deepen knowledge of X"],
  "detailed_scores": {
    "communication": 9,
    "technical_knowledge": 8,
    "relevant_experience": 7,
    "professional_attitude": 9,
    "adaptability": 8
  },
  "hire_recommendation": "Recommended with minor reservations",
  "final_comment": "The candidate demonstrates...",
  "suggested_next_steps": ["Consider for a second technical interview"]
}

**IMPORTANT:** Respond ONLY with the valid JSON object, no additional text.`,
		area.Name, difficulty, transcript)

	return []domain.ChatMessage{
		{Role: roleSystem, Content: "You are an expert interview evaluator. Respond ONLY with valid JSON."},
		{Role: domain.RoleUser, Content: user},
	}
}

// Transcript renders history as numbered INTERVIEWER/CANDIDATE lines.
func Transcript(history []domain.Turn) string {
	lines := make([]string, 0, len(history))
	for i, t := range history {
		speaker := "CANDIDATE"
		if t.Role == domain.RoleAssistant {
			speaker = "INTERVIEWER"
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, speaker, t.Content))
	}
	return strings.Join(lines, "\n\n")
}

func trimToBudget(transcript, model string, budget int) string {
	if tokencount.DefaultCounter.Count(model, transcript) <= budget {
		return transcript
	}
	blocks := strings.Split(transcript, "\n\n")
	for len(blocks) > 1 {
		blocks = blocks[1:]
		candidate := strings.Join(blocks, "\n\n")
		if tokencount.DefaultCounter.Count(model, candidate) <= budget {
			return "[earlier exchanges omitted]\n\n" + candidate
		}
	}
	return blocks[len(blocks)-1]
}

// headToBudget keeps the front of a document up to budget tokens, dropping
// trailing paragraphs.
func headToBudget(text, model string, budget int) string {
	if tokencount.DefaultCounter.Count(model, text) <= budget {
		return text
	}
	blocks := strings.Split(text, "\n\n")
	for len(blocks) > 1 {
		blocks = blocks[:len(blocks)-1]
		candidate := strings.Join(blocks, "\n\n")
		if tokencount.DefaultCounter.Count(model, candidate) <= budget {
			return candidate + "\n\n[rest of document omitted]"
		}
	}
	return blocks[0]
}

// FallbackOpening is the templated opening used when the AI backend is down.
func FallbackOpening(candidateName, areaName string) string {
	return fmt.Sprintf("Hello %s, welcome! I'm your virtual interviewer. Let's begin with a question: what motivated you to apply for this position in %s?", candidateName, areaName)
}

// fallbackContinuations are rotated per user-turn count so consecutive
// degraded replies are not identical.
var fallbackContinuations = []string{
	"Thank you for your answer. Could you tell me more about your experience in this field?",
	"Interesting. Can you walk me through a concrete example from your own work?",
	"I see. What would you say was the most challenging part of that, and how did you handle it?",
	"Understood. How have you applied that in a team setting?",
	"Good. What did you learn from that experience that you still use today?",
}

// FallbackContinuation returns the degraded-mode interviewer line for the
// given number of user turns so far.
func FallbackContinuation(userTurns int) string {
	if userTurns < 0 {
		userTurns = 0
	}
	return fallbackContinuations[userTurns%len(fallbackContinuations)]
}
