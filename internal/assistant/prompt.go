package assistant

import (
	"fmt"
	"strings"

	"github.com/kalambet/stylebot/internal/gpt"
	"github.com/kalambet/stylebot/internal/session"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

// ClassifyInstruction is the user-turn text sent together with a clothing photo.
func ClassifyInstruction() string {
	return fmt.Sprintf(
		`Определи категорию СТРОГО из списка: %s и опиши вещь. `+
			`Верни JSON: {"category": "...", "description": "..."} `+
			`Не используй markdown-обёртку. Просто верни JSON.`,
		strings.Join(wardrobe.Categories, ", "),
	)
}

// buildClassifyMessages returns the messages for a single image classification turn.
func buildClassifyMessages(systemPrompt, imageURL string) []gpt.Message {
	var msgs []gpt.Message
	if systemPrompt != "" {
		msgs = append(msgs, gpt.Message{Role: gpt.RoleSystem, Content: systemPrompt})
	}
	return append(msgs, gpt.Message{
		Role:     gpt.RoleUser,
		Content:  ClassifyInstruction(),
		ImageURL: imageURL,
	})
}

// buildChatMessages returns system prompt, thread history and the new user turn.
func buildChatMessages(systemPrompt string, history []session.Turn, text string) []gpt.Message {
	msgs := make([]gpt.Message, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, gpt.Message{Role: gpt.RoleSystem, Content: systemPrompt})
	}
	for _, t := range history {
		role := gpt.RoleUser
		if t.Role == session.RoleAssistant {
			role = gpt.RoleAssistant
		}
		msgs = append(msgs, gpt.Message{Role: role, Content: t.Content})
	}
	return append(msgs, gpt.Message{Role: gpt.RoleUser, Content: text})
}
