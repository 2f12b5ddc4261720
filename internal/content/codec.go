// Package content defines the on-disk message envelope: plain text for
// text-only messages, a JSON multimodal payload when images are attached.
package content

import "encoding/json"

const multimodalType = "multimodal"

type multimodalEnvelope struct {
	Type   string       `json:"type"`
	Text   string       `json:"text"`
	Images []Attachment `json:"images"`
}

type envelopeProbe struct {
	Type   string              `json:"type"`
	Text   string              `json:"text"`
	Images []AttachmentPayload `json:"images"`
}

// Decoded is the parsed form of a stored message content string.
type Decoded struct {
	Text        string
	Attachments []Attachment
}

// Encode serializes a message body for storage. Text-only messages are
// stored verbatim so existing plain rows stay readable.
func Encode(text string, attachments []Attachment) string {
	if len(attachments) == 0 {
		return text
	}
	raw, err := json.Marshal(multimodalEnvelope{
		Type:   multimodalType,
		Text:   text,
		Images: attachments,
	})
	if err != nil {
		return text
	}
	return string(raw)
}

// Decode parses a stored content string. It is total: anything that is
// not a well-formed multimodal envelope comes back as plain text with
// no attachments.
func Decode(raw string) Decoded {
	if raw == "" {
		return Decoded{}
	}

	var probe envelopeProbe
	if err := json.Unmarshal([]byte(raw), &probe); err == nil && probe.Type == multimodalType {
		return Decoded{
			Text:        probe.Text,
			Attachments: Sanitize(probe.Images),
		}
	}
	return Decoded{Text: raw}
}
