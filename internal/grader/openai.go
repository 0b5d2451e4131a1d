package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// GradeResult holds the model's assessment of a single free-form answer.
type GradeResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API for grading free-form answers
// (code, diagram, short text). Single-choice questions are scored locally
// and never reach this client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a grading client. baseURL may be empty for the default API.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// GradeAnswer scores one answer against its question. The returned score is
// clamped to [0, points].
func (c *Client) GradeAnswer(ctx context.Context, question model.Question, answer string) (*GradeResult, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(question)},
			{Role: openai.ChatMessageRoleUser, Content: answer},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("grading model returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	var result GradeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	if result.Score < 0 {
		result.Score = 0
	}
	if max := float64(question.Points); result.Score > max {
		result.Score = max
	}
	return &result, nil
}

func buildSystemPrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are grading one answer from a timed exam.\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n")
	sb.WriteString(fmt.Sprintf("QUESTION TYPE: %s\n", q.Kind))
	sb.WriteString(fmt.Sprintf("MAX POINTS: %d\n\n", q.Points))

	if len(q.Payload) > 0 {
		sb.WriteString("QUESTION CONTEXT (JSON):\n" + string(q.Payload) + "\n\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- The next message is the student's answer. Grade only its content.\n")
	sb.WriteString(fmt.Sprintf("- Assign a score between 0 and %d. Partial credit is allowed.\n", q.Points))
	sb.WriteString("- An empty or off-topic answer scores 0.\n")
	sb.WriteString("- Respond with a JSON object: {\"score\": <number>, \"feedback\": \"<one or two sentences>\"}\n")
	return sb.String()
}
