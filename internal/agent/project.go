package agent

import (
	"strings"

	"github.com/haasonsaas/concierge/pkg/models"
)

// Completion message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ProjectMessages converts part-based history into the flat completion
// format providers consume.
//
// Text parts concatenate into the message content. Tool parts on assistant
// messages become tool calls on that message, and each part carrying an
// outcome additionally yields a role "tool" result message placed directly
// after its assistant message, preserving part order. A tool part whose
// error text is set projects as an error result.
func ProjectMessages(msgs []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(msgs))

	for i := range msgs {
		msg := &msgs[i]

		var text strings.Builder
		var calls []models.ToolCall
		var results []models.ToolResult

		for j := range msg.Parts {
			part := &msg.Parts[j]
			switch {
			case part.IsText():
				if part.Text == "" {
					continue
				}
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(part.Text)
			case part.IsTool() && msg.Role == models.RoleAssistant:
				calls = append(calls, models.ToolCall{
					ID:    part.ToolCallID,
					Name:  part.Tool(),
					Input: part.Input,
				})
				if result, ok := projectResult(part); ok {
					results = append(results, result)
				}
			}
		}

		projected := CompletionMessage{
			Role:      projectRole(msg.Role),
			Content:   text.String(),
			ToolCalls: calls,
		}
		// Providers reject empty messages.
		if projected.Content != "" || len(projected.ToolCalls) > 0 {
			out = append(out, projected)
		}
		if len(results) > 0 {
			out = append(out, CompletionMessage{
				Role:        RoleTool,
				ToolResults: results,
			})
		}
	}

	return out
}

func projectRole(role models.Role) string {
	switch role {
	case models.RoleSystem:
		return RoleSystem
	case models.RoleAssistant:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// projectResult maps a completed tool part to a provider result.
func projectResult(part *models.Part) (models.ToolResult, bool) {
	switch part.State {
	case models.PartOutputAvailable:
		return models.ToolResult{
			ToolCallID: part.ToolCallID,
			Content:    part.Output,
		}, true
	case models.PartOutputError:
		return models.ToolResult{
			ToolCallID: part.ToolCallID,
			Content:    part.ErrorText,
			IsError:    true,
		}, true
	default:
		return models.ToolResult{}, false
	}
}
