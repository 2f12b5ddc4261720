package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message content is either plain text or the JSON multimodal envelope
// produced by the content package. Messages are immutable once written
// and replayed in created_at ascending order.
type Message struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	SessionID string    `gorm:"size:36;not null;index" json:"session_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
