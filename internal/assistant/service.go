package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/completion"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"go.uber.org/zap"
)

const maxHistoryTurns = 10

var (
	// ErrUpstream indicates the completion provider failed; nothing was recorded.
	ErrUpstream = errors.New("assistant: ai service error")

	errMissingCompleter = errors.New("completer is required")
	errMissingRecorder  = errors.New("history recorder is required")
)

// StudyRequest is the payload of the study entry point.
type StudyRequest struct {
	Notes   string          `json:"notes"`
	Task    string          `json:"task"`
	Action  string          `json:"action"`
	History json.RawMessage `json:"history"`
	Raw     json.RawMessage `json:"-"`
}

// ProjectRequest is the payload of the project entry point.
type ProjectRequest struct {
	Mode        string          `json:"mode"`
	ProjectName string          `json:"project_name"`
	Details     string          `json:"details"`
	Subject     string          `json:"subject"`
	Level       string          `json:"level"`
	History     json.RawMessage `json:"history"`
	Raw         json.RawMessage `json:"-"`
}

// GeneralRequest is the payload of the general entry point.
type GeneralRequest struct {
	Question string          `json:"question"`
	History  json.RawMessage `json:"history"`
	Raw      json.RawMessage `json:"-"`
}

// NotesRequest is the payload of the notes entry point.
type NotesRequest struct {
	NoteContent string          `json:"note_content"`
	Action      string          `json:"action"`
	Raw         json.RawMessage `json:"-"`
}

// SessionPost is a message posted into a shared chat session.
type SessionPost struct {
	Message     string `json:"message"`
	Mode        string `json:"mode"`
	Subject     string `json:"subject"`
	ProjectMode string `json:"project_mode"`
}

// Reply carries the generated text and the id of the stored interaction, if any.
type Reply struct {
	Text      string
	HistoryID *uint
}

type ServiceConfig struct {
	Completer completion.Completer
	Recorder  *history.Recorder
	Logger    *zap.Logger
}

// Service assembles prompts for every AI mode, calls the completer and records the exchange.
type Service struct {
	completer completion.Completer
	recorder  *history.Recorder
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("assistant: %w", errMissingCompleter)
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("assistant: %w", errMissingRecorder)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: cfg.Completer, recorder: cfg.Recorder, logger: logger}, nil
}

func (s *Service) Study(ctx context.Context, userID uint, request StudyRequest) (Reply, error) {
	task := request.Task
	if task == "" {
		task = "explain"
	}
	if request.Action != "" {
		task = request.Action
	}
	messages := []completion.Message{{Role: completion.RoleSystem, Content: studySystemPrompt(task)}}
	messages = append(messages, NormalizeHistory(request.History, maxHistoryTurns)...)
	messages = append(messages, completion.Message{Role: completion.RoleUser, Content: request.Notes})
	return s.exchange(ctx, userID, history.ModeStudy, messages, request.Raw)
}

func (s *Service) Project(ctx context.Context, userID uint, request ProjectRequest) (Reply, error) {
	mode := request.Mode
	if mode == "" {
		mode = ProjectModeGuided
	}
	messages := []completion.Message{{Role: completion.RoleSystem, Content: projectSystemPrompt(request.Subject)}}
	messages = append(messages, NormalizeHistory(request.History, maxHistoryTurns)...)
	messages = append(messages,
		completion.Message{Role: completion.RoleUser, Content: projectInstruction(mode)},
		completion.Message{Role: completion.RoleUser, Content: projectContext(request.ProjectName, request.Subject, request.Level, request.Details)},
	)
	return s.exchange(ctx, userID, history.ModeProject, messages, request.Raw)
}

// General answers free-form questions. Project-like questions get a redirect without calling the completer.
func (s *Service) General(ctx context.Context, userID uint, request GeneralRequest) (Reply, error) {
	if IsProjectRequest(request.Question) {
		return Reply{Text: ProjectRedirectAnswer}, nil
	}
	messages := []completion.Message{{Role: completion.RoleSystem, Content: generalSystemPrompt()}}
	messages = append(messages, NormalizeHistory(request.History, maxHistoryTurns)...)
	messages = append(messages, completion.Message{Role: completion.RoleUser, Content: request.Question})
	return s.exchange(ctx, userID, history.ModeGeneral, messages, request.Raw)
}

func (s *Service) Notes(ctx context.Context, userID uint, request NotesRequest) (Reply, error) {
	action := request.Action
	if action == "" {
		action = "summarize"
	}
	messages := []completion.Message{
		{Role: completion.RoleSystem, Content: notesSystemPrompt(action)},
		{Role: completion.RoleUser, Content: request.NoteContent},
	}
	return s.exchange(ctx, userID, history.ModeNotes, messages, request.Raw)
}

// SessionReply answers a message posted into a shared chat session, replaying the participants'
// records of the session as context and tagging the new record with the session id.
func (s *Service) SessionReply(ctx context.Context, userID uint, sessionID string, participantIDs []uint, post SessionPost) (Reply, error) {
	mode := post.Mode
	if mode == "" {
		mode = history.ModeGeneral
	}
	projectMode := post.ProjectMode
	if projectMode == "" {
		projectMode = ProjectModeGuided
	}

	records, err := s.recorder.SessionRecords(ctx, sessionID, participantIDs)
	if err != nil {
		return Reply{}, err
	}
	prior := make([]completion.Message, 0, len(records)*2+1)
	for _, record := range records {
		prior = append(prior,
			completion.Message{Role: completion.RoleUser, Content: history.UserContent(record.Input())},
			completion.Message{Role: completion.RoleAssistant, Content: record.ResponseText},
		)
	}

	var systemPrompt string
	switch mode {
	case history.ModeStudy:
		systemPrompt = studySystemPrompt("explain")
	case history.ModeProject:
		systemPrompt = projectSystemPrompt(post.Subject)
		prior = append(prior, completion.Message{Role: completion.RoleUser, Content: projectInstruction(projectMode)})
	default:
		systemPrompt = generalSystemPrompt()
	}

	messages := []completion.Message{{Role: completion.RoleSystem, Content: systemPrompt}}
	messages = append(messages, prior...)
	messages = append(messages, completion.Message{Role: completion.RoleUser, Content: post.Message})

	input, err := json.Marshal(map[string]string{"question": post.Message, "session_id": sessionID})
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: encode session input: %w", err)
	}
	return s.exchange(ctx, userID, mode, messages, input)
}

func (s *Service) exchange(ctx context.Context, userID uint, mode string, messages []completion.Message, input json.RawMessage) (Reply, error) {
	text, err := s.completer.Complete(ctx, messages)
	if err != nil {
		s.logger.Error("ai request failed",
			zap.String("operation", "assistant."+mode),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return Reply{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	reply := Reply{Text: text}
	if record := s.recorder.Record(ctx, userID, mode, input, text); record != nil {
		id := record.ID
		reply.HistoryID = &id
	}
	return reply, nil
}

// NormalizeHistory keeps the last max well-formed user/assistant turns of a client supplied history.
func NormalizeHistory(raw json.RawMessage, max int) []completion.Message {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	cleaned := make([]completion.Message, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		if role != completion.RoleUser && role != completion.RoleAssistant {
			continue
		}
		content, ok := entry["content"].(string)
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		cleaned = append(cleaned, completion.Message{Role: role, Content: content})
	}
	if len(cleaned) > max {
		cleaned = cleaned[len(cleaned)-max:]
	}
	return cleaned
}
