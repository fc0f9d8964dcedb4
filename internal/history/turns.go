package history

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// AssistantName labels assistant turns in replayed conversations.
	AssistantName = "REE AI"
)

// Turn is one displayable message of a replayed conversation.
type Turn struct {
	HistoryID uint
	Role      string
	Content   string
	CreatedAt time.Time
	Username  string
}

type turnJSON struct {
	ID        any       `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `json:"username"`
}

// MarshalJSON emits user turns with the numeric record id and assistant turns with "<id>-assistant".
func (t Turn) MarshalJSON() ([]byte, error) {
	var id any = t.HistoryID
	if t.Role == RoleAssistant {
		id = strconv.FormatUint(uint64(t.HistoryID), 10) + "-assistant"
	}
	return json.Marshal(turnJSON{
		ID:        id,
		Role:      t.Role,
		Content:   t.Content,
		CreatedAt: t.CreatedAt,
		Username:  t.Username,
	})
}

// UserContent picks the text a user typed for a record.
func UserContent(input map[string]any) string {
	for _, key := range []string{"question", "notes", "project_name"} {
		if value, ok := input[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// ReplayTurns projects ordered records into user/assistant display turns.
// Records are expected to carry their preloaded User.
func ReplayTurns(records []ChatHistory) []Turn {
	turns := make([]Turn, 0, len(records)*2)
	for _, record := range records {
		turns = append(turns,
			Turn{
				HistoryID: record.ID,
				Role:      RoleUser,
				Content:   UserContent(record.Input()),
				CreatedAt: record.CreatedAt,
				Username:  record.User.Username,
			},
			Turn{
				HistoryID: record.ID,
				Role:      RoleAssistant,
				Content:   record.ResponseText,
				CreatedAt: record.CreatedAt,
				Username:  AssistantName,
			},
		)
	}
	return turns
}
