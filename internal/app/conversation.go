package app

import (
	"geminichat/internal/ai"
	"geminichat/internal/content"
	"geminichat/internal/model"
)

// BuildConversation turns the stored history plus the new, not yet
// persisted user turn into Gemini-ready contents. Assistant turns carry
// text only; user turns become a text part followed by one inline image
// part per attachment, in stored order. Pure transform, no I/O.
func BuildConversation(history []model.Message, newText string, newAttachments []content.Attachment) []ai.Content {
	conversation := make([]ai.Content, 0, len(history)+1)
	for _, message := range history {
		decoded := content.Decode(message.Content)
		if message.Role == model.RoleAssistant {
			conversation = append(conversation, ai.Content{
				Role:  ai.RoleModel,
				Parts: []ai.Part{{Text: decoded.Text}},
			})
			continue
		}
		conversation = append(conversation, ai.Content{
			Role:  ai.RoleUser,
			Parts: userParts(decoded.Text, decoded.Attachments),
		})
	}

	return append(conversation, ai.Content{
		Role:  ai.RoleUser,
		Parts: userParts(newText, newAttachments),
	})
}

func userParts(text string, attachments []content.Attachment) []ai.Part {
	if len(attachments) == 0 {
		return []ai.Part{{Text: text}}
	}

	parts := make([]ai.Part, 0, len(attachments)+1)
	if text != "" {
		parts = append(parts, ai.Part{Text: text})
	}
	for _, attachment := range attachments {
		parts = append(parts, ai.Part{
			InlineData: &ai.InlineData{
				MimeType: attachment.MimeType,
				Data:     attachment.Data,
			},
		})
	}
	return parts
}
