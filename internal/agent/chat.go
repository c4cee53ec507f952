package agent

import (
	"context"
	"fmt"

	"github.com/researchd/orchestrator/internal/llm"
)

const chatPrompt = "You are an intelligent assistant helping a user understand a research report. " +
	"Use the provided Report Content to answer the user's question accurately. " +
	"If the answer is not in the report, say so politely. " +
	"Keep answers concise and relevant."

// ReportChat answers follow-up questions about a finished report.
type ReportChat struct {
	llm llm.Client
}

func NewReportChat(client llm.Client) *ReportChat {
	return &ReportChat{llm: client}
}

func (c *ReportChat) Ask(ctx context.Context, report, message string, history []llm.Message) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf("%s\n\n--- REPORT CONTENT ---\n%s\n--- END REPORT ---", chatPrompt, report),
	})
	for _, h := range history {
		if h.Role == llm.RoleSystem {
			continue
		}
		messages = append(messages, h)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	answer, err := c.llm.Chat(ctx, messages, false)
	if err != nil {
		return "", fmt.Errorf("report chat: %w", err)
	}
	return answer, nil
}
