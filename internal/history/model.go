package history

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
)

var (
	// ErrHistoryNotFound indicates the record does not exist or belongs to another user.
	ErrHistoryNotFound = errors.New("history: record not found")
)

const (
	ModeStudy   = "study"
	ModeProject = "project"
	ModeGeneral = "general"
	ModeNotes   = "notes"

	fieldSessionID = "session_id"
)

// ChatHistory stores one AI interaction together with the raw request payload.
type ChatHistory struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       uint       `gorm:"column:user_id;not null;index"`
	User         users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Mode         string     `gorm:"column:mode;size:20;not null"`
	InputJSON    string     `gorm:"column:input_json;type:text;not null"`
	SessionID    string     `gorm:"column:session_id;size:64;not null;default:'';index"`
	ResponseText string     `gorm:"column:response_text;type:text;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (ChatHistory) TableName() string {
	return "chat_histories"
}

// Input decodes the stored payload. Payloads that are not JSON objects yield an empty map.
func (h ChatHistory) Input() map[string]any {
	return decodeObject(h.InputJSON)
}

// RawInput returns the stored payload for verbatim re-encoding.
func (h ChatHistory) RawInput() json.RawMessage {
	if !json.Valid([]byte(h.InputJSON)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(h.InputJSON)
}

func decodeObject(raw string) map[string]any {
	fields := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return fields
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return map[string]any{}
	}
	return fields
}

// SessionIDOf extracts the session identifier carried by a request payload.
func SessionIDOf(input map[string]any) string {
	value, ok := input[fieldSessionID].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
