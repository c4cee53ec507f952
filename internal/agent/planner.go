package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/llm"
)

const MaxQuestions = 5

const plannerPrompt = "You are a research planner. " +
	"Given a topic, generate a list of 3-5 distinct, " +
	"researchable questions to fully understand the topic. " +
	"Return ONLY a JSON list of strings, like this: " +
	`["question 1", "question 2"]`

type LLMPlanner struct {
	llm llm.Client
	log logrus.FieldLogger
}

func NewPlanner(client llm.Client, log logrus.FieldLogger) *LLMPlanner {
	return &LLMPlanner{llm: client, log: log}
}

// Plan asks the model for sub-questions. Unparseable output is not an error:
// it yields FallbackQuestions. Only the LLM call itself can fail.
func (p *LLMPlanner) Plan(ctx context.Context, topic string) ([]string, error) {
	raw, err := p.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: plannerPrompt},
		{Role: llm.RoleUser, Content: "Topic: " + topic},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	questions, err := ParsePlan(raw, topic)
	if err != nil {
		p.log.WithError(err).WithField("topic", topic).Warn("Planner output unusable, using fallback questions")
		return FallbackQuestions(topic), nil
	}
	return questions, nil
}

// ParsePlan extracts questions from raw model output. It accepts a JSON
// array of strings or an object with a "questions" array, and caps the
// result at MaxQuestions. Any other well-formed JSON yields []string{topic}.
func ParsePlan(raw, topic string) ([]string, error) {
	clean := strings.TrimSpace(strings.NewReplacer("```json", "", "```", "").Replace(raw))

	var parsed any
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}

	var items []any
	switch v := parsed.(type) {
	case []any:
		items = v
	case map[string]any:
		qs, ok := v["questions"].([]any)
		if !ok {
			return []string{topic}, nil
		}
		items = qs
	default:
		return []string{topic}, nil
	}

	questions := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("malformed plan: non-string question %v", it)
		}
		if s = strings.TrimSpace(s); s != "" {
			questions = append(questions, s)
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("malformed plan: no questions")
	}
	if len(questions) > MaxQuestions {
		questions = questions[:MaxQuestions]
	}
	return questions, nil
}

func FallbackQuestions(topic string) []string {
	return []string{
		fmt.Sprintf("What is the history of %s?", topic),
		fmt.Sprintf("What are the key features of %s?", topic),
		fmt.Sprintf("What is the future of %s?", topic),
	}
}
