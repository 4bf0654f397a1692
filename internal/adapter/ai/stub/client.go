// Package stub is a fast, deterministic AI client for local development when
// no chat-completion backend is configured.
package stub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Client implements domain.AIClient deterministically.
type Client struct{}

// New constructs a stub client.
func New() *Client { return &Client{} }

// Complete answers conversationally, or with a canned evaluation object when
// the prompt asks for JSON.
func (c *Client) Complete(_ domain.Context, messages []domain.ChatMessage, _ domain.ChatOptions) (string, error) {
	// Simulate a tiny bit of processing latency to resemble real work.
	time.Sleep(50 * time.Millisecond)
	if len(messages) > 0 && strings.Contains(messages[0].Content, "ONLY with valid JSON") {
		payload := map[string]any{
			"score":             7.8,
			"performance_level": "Very Good",
			"strengths":         []string{"Clear communication", "Concrete examples"},
			"improvement_areas": []string{"Go deeper on system design"},
			"detailed_scores": map[string]float64{
				"communication":         8,
				"technical_knowledge":   7,
				"relevant_experience":   8,
				"professional_attitude": 8,
				"adaptability":          8,
			},
			"hire_recommendation":  "Recommended",
			"final_comment":        "The candidate held a consistent, well-structured interview.",
			"suggested_next_steps": []string{"Schedule a technical deep-dive"},
		}
		b, _ := json.Marshal(payload)
		return string(b), nil
	}
	userTurns := 0
	for _, m := range messages {
		if m.Role == domain.RoleUser {
			userTurns++
		}
	}
	return fmt.Sprintf("Thanks for sharing that. Question %d: can you describe a recent project you are proud of and your role in it?", userTurns), nil
}

// CheckAvailability always succeeds.
func (c *Client) CheckAvailability(_ domain.Context) error { return nil }
