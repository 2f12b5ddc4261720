package content

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// Attachment is a validated image carried inside a user message.
// Data is the base64 payload; both Data and MimeType are always non-empty.
type Attachment struct {
	ID       string   `json:"id"`
	Data     string   `json:"data"`
	MimeType string   `json:"mimeType"`
	Name     string   `json:"name,omitempty"`
	Size     *float64 `json:"size,omitempty"`
}

// AttachmentPayload is the untrusted client shape. Fields are kept loose
// so a single malformed entry never fails the whole batch.
type AttachmentPayload struct {
	Type     any `json:"type"`
	ID       any `json:"id"`
	Data     any `json:"data"`
	MimeType any `json:"mimeType"`
	Name     any `json:"name"`
	Size     any `json:"size"`
}

// Sanitize filters and normalizes incoming attachments. Entries with a
// non-image type, empty data or empty mime type are dropped silently.
// It never returns an error.
func Sanitize(payloads []AttachmentPayload) []Attachment {
	if len(payloads) == 0 {
		return nil
	}

	attachments := make([]Attachment, 0, len(payloads))
	for _, payload := range payloads {
		declaredType, _ := payload.Type.(string)
		if declaredType != "" && declaredType != "image" {
			continue
		}

		data, _ := payload.Data.(string)
		data = strings.TrimSpace(data)
		mimeType, _ := payload.MimeType.(string)
		mimeType = strings.TrimSpace(mimeType)
		if data == "" || mimeType == "" {
			continue
		}

		id, _ := payload.ID.(string)
		id = strings.TrimSpace(id)
		if id == "" {
			id = uuid.NewString()
		}

		attachment := Attachment{
			ID:       id,
			Data:     data,
			MimeType: mimeType,
		}
		if name, ok := payload.Name.(string); ok {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				attachment.Name = trimmed
			}
		}
		if size, ok := payload.Size.(float64); ok && !math.IsNaN(size) && !math.IsInf(size, 0) {
			attachment.Size = &size
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}
