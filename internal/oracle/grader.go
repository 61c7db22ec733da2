package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// GradeResult is one question's grading outcome. Score is always in [0,100].
type GradeResult struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
}

// Grader scores a free-form answer against a question. Implementations call
// external services and may fail; the runner degrades to a heuristic rather
// than leaving a request unresolved.
type Grader interface {
	Grade(ctx context.Context, q Question, answer string) (GradeResult, error)
}

// GenAIGrader grades answers with Google's Gemini API.
type GenAIGrader struct {
	client *genai.Client
	model  string
}

// NewGenAIGrader creates a grading client. model defaults to a small fast
// Gemini model when empty.
func NewGenAIGrader(ctx context.Context, apiKey, model string) (*GenAIGrader, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIGrader{client: client, model: model}, nil
}

const gradePrompt = `You are grading a quiz answer. Reply with a single line:
<score>|<one sentence of feedback>
where <score> is an integer 0-100.

Question: %s
Reference answer: %s
Student answer: %s`

func (g *GenAIGrader) Grade(ctx context.Context, q Question, answer string) (GradeResult, error) {
	prompt := fmt.Sprintf(gradePrompt, q.Text, q.Reference, answer)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return GradeResult{}, fmt.Errorf("genai grade: %w", err)
	}
	return parseGradeLine(resp.Text())
}

// parseGradeLine extracts "<score>|<feedback>" from a model reply, tolerating
// surrounding prose.
func parseGradeLine(text string) (GradeResult, error) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		scorePart, feedback, _ := strings.Cut(line, "|")
		n, err := strconv.Atoi(strings.TrimSpace(scorePart))
		if err != nil {
			continue
		}
		return GradeResult{Score: clampScore(n), Feedback: strings.TrimSpace(feedback)}, nil
	}
	return GradeResult{}, fmt.Errorf("unparseable grade reply: %q", text)
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
