package notes

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
)

var (
	// ErrNoteNotFound indicates the note does not exist or is not visible to the caller.
	ErrNoteNotFound = errors.New("notes: note not found")
)

// Note models a study note owned by a single user.
type Note struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uint       `gorm:"column:user_id;not null;index;uniqueIndex:uniq_note_client_per_user,priority:1"`
	User      users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ClientID  *string    `gorm:"column:client_id;size:64;uniqueIndex:uniq_note_client_per_user,priority:2"`
	Title     string     `gorm:"column:title;size:200;not null"`
	Subject   string     `gorm:"column:subject;size:100;not null"`
	Category  string     `gorm:"column:category;size:50;not null"`
	Tags      string     `gorm:"column:tags;type:text;not null;default:''"`
	Content   string     `gorm:"column:content;type:text;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// TagList splits the stored comma separated tags.
func (n Note) TagList() []string {
	return SplitTags(n.Tags)
}

// NoteInput carries every writable field of a note.
type NoteInput struct {
	ClientID string   `json:"client_id" validate:"max=64"`
	Title    string   `json:"title" validate:"notblank,max=200"`
	Subject  string   `json:"subject" validate:"notblank,max=100"`
	Category string   `json:"category" validate:"notblank,max=50"`
	Tags     []string `json:"tags"`
	Content  string   `json:"content" validate:"notblank"`
}

// NotePatch carries a partial update; nil fields keep their stored values.
type NotePatch struct {
	Title    *string   `json:"title" validate:"omitnil,notblank,max=200"`
	Subject  *string   `json:"subject" validate:"omitnil,notblank,max=100"`
	Category *string   `json:"category" validate:"omitnil,notblank,max=50"`
	Tags     *[]string `json:"tags"`
	Content  *string   `json:"content" validate:"omitnil,notblank"`
}

// Patch converts a full input into an update touching every mutable field.
func (input NoteInput) Patch() NotePatch {
	tags := input.Tags
	return NotePatch{
		Title:    &input.Title,
		Subject:  &input.Subject,
		Category: &input.Category,
		Tags:     &tags,
		Content:  &input.Content,
	}
}

func (patch NotePatch) columns() map[string]any {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Subject != nil {
		updates["subject"] = *patch.Subject
	}
	if patch.Category != nil {
		updates["category"] = *patch.Category
	}
	if patch.Tags != nil {
		updates["tags"] = JoinTags(*patch.Tags)
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	return updates
}

// SplitTags parses a stored tag string into trimmed, non-empty tags.
func SplitTags(raw string) []string {
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// JoinTags cleans and joins tags for storage.
func JoinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, ", ")
}

func normalizeClientID(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
