package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/completion"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/sharing"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (c *stubCompleter) Complete(_ context.Context, _ []completion.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *stubCompleter) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type apiFixture struct {
	handler   http.Handler
	tokens    *auth.TokenIssuer
	completer *stubCompleter
	realtime  *RealtimeDispatcher
	db        *gorm.DB
}

type apiAccount struct {
	ID       uint
	Username string
	Access   string
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &history.ChatHistory{}, &sharing.ShareLink{}, &sharing.ShareMember{}, &sharing.ShareInvite{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	var clockMu sync.Mutex
	tick := time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}
	recorder, err := history.NewRecorder(history.RecorderConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build recorder: %v", err)
	}
	completer := &stubCompleter{reply: "Photosynthesis turns light into sugar."}
	assistantService, err := assistant.NewService(assistant.ServiceConfig{Completer: completer, Recorder: recorder})
	if err != nil {
		t.Fatalf("failed to build assistant: %v", err)
	}
	sharingService, err := sharing.NewService(sharing.ServiceConfig{
		Database:  db,
		Users:     userService,
		Notes:     noteService,
		History:   recorder,
		Assistant: assistantService,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("failed to build sharing service: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "ree-auth",
		Audience:      "ree-api",
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:      tokens,
		UsersService:      userService,
		NotesService:      noteService,
		History:           recorder,
		Assistant:         assistantService,
		SharingService:    sharingService,
		Realtime:          realtime,
		HeartbeatInterval: time.Hour,
		Clock:             clock,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return apiFixture{handler: handler, tokens: tokens, completer: completer, realtime: realtime, db: db}
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch value := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(value))
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f apiFixture) account(t *testing.T, username string) apiAccount {
	t.Helper()
	register := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "studyhard1",
		"password_confirm": "studyhard1",
	})
	if register.Code != http.StatusCreated {
		t.Fatalf("register %s failed: %d %s", username, register.Code, register.Body.String())
	}
	var created userPayload
	decodeBody(t, register, &created)

	login := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": "studyhard1"})
	if login.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, login.Code, login.Body.String())
	}
	var tokens tokenResponsePayload
	decodeBody(t, login, &tokens)
	return apiAccount{ID: created.ID, Username: username, Access: tokens.Access}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}

func expectDetail(t *testing.T, recorder *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, recorder, &body)
	if body.Detail != want {
		t.Fatalf("expected detail %q, got %q", want, body.Detail)
	}
}

func TestAccountEndpoints(t *testing.T) {
	fixture := newAPIFixture(t)
	expectStatus(t, fixture.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)
	tendai := fixture.account(t, "tendai")
	chipo := fixture.account(t, "chipo")

	duplicate := fixture.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "tendai", "email": "fresh@example.com", "password": "studyhard1", "password_confirm": "studyhard1",
	})
	expectStatus(t, duplicate, http.StatusBadRequest)
	var duplicateBody map[string]any
	decodeBody(t, duplicate, &duplicateBody)
	if _, ok := duplicateBody["username"]; !ok {
		t.Fatalf("expected username error, got %v", duplicateBody)
	}

	wrong := fixture.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "tendai", "password": "nope-nope"})
	expectStatus(t, wrong, http.StatusUnauthorized)

	me := fixture.do(t, http.MethodGet, "/api/auth/me", tendai.Access, nil)
	expectStatus(t, me, http.StatusOK)
	var profile userPayload
	decodeBody(t, me, &profile)
	if profile.ID != tendai.ID || profile.Email != "tendai@example.com" {
		t.Fatalf("unexpected profile %#v", profile)
	}

	expectStatus(t, fixture.do(t, http.MethodGet, "/api/auth/me", "", nil), http.StatusUnauthorized)

	pair, err := fixture.tokens.IssueTokenPair(context.Background(), auth.Subject{UserID: tendai.ID, Username: tendai.Username})
	if err != nil {
		t.Fatalf("failed to issue pair: %v", err)
	}
	refreshed := fixture.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh": pair.RefreshToken})
	expectStatus(t, refreshed, http.StatusOK)
	var refreshedBody tokenResponsePayload
	decodeBody(t, refreshed, &refreshedBody)
	if refreshedBody.Access == "" {
		t.Fatalf("expected a new access token")
	}
	expectStatus(t, fixture.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh": pair.AccessToken}), http.StatusUnauthorized)

	setPassword := fixture.do(t, http.MethodPost, "/api/auth/set-password", tendai.Access, map[string]string{"new_password": "evenharder2"})
	expectStatus(t, setPassword, http.StatusOK)
	expectDetail(t, setPassword, "Password has been reset successfully.")
	expectStatus(t, fixture.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "tendai", "password": "evenharder2"}), http.StatusOK)

	foreign := fixture.do(t, http.MethodDelete, "/api/auth/users/"+strconv.FormatUint(uint64(chipo.ID), 10), tendai.Access, nil)
	expectStatus(t, foreign, http.StatusForbidden)
	expectDetail(t, foreign, "You can only delete your own account.")

	own := fixture.do(t, http.MethodDelete, "/api/auth/users/"+strconv.FormatUint(uint64(tendai.ID), 10), tendai.Access, nil)
	expectStatus(t, own, http.StatusOK)
	expectDetail(t, own, "Account has been deleted successfully.")
	expectStatus(t, fixture.do(t, http.MethodGet, "/api/auth/me", tendai.Access, nil), http.StatusNotFound)
}

func TestNoteEndpoints(t *testing.T) {
	fixture := newAPIFixture(t)
	owner := fixture.account(t, "tendai")
	other := fixture.account(t, "chipo")

	created := fixture.do(t, http.MethodPost, "/api/notes", owner.Access, map[string]any{
		"title": "Osmosis", "subject": "Biology", "category": "Revision", "tags": []string{"cells", " water "}, "content": "Water moves.",
	})
	expectStatus(t, created, http.StatusCreated)
	var note notePayload
	decodeBody(t, created, &note)
	if len(note.Tags) != 2 || note.Tags[1] != "water" {
		t.Fatalf("unexpected tags %#v", note.Tags)
	}
	notePath := "/api/notes/" + strconv.FormatUint(uint64(note.ID), 10)

	invalid := fixture.do(t, http.MethodPost, "/api/notes", owner.Access, map[string]any{"title": "", "subject": "Biology", "category": "x", "content": "y"})
	expectStatus(t, invalid, http.StatusBadRequest)

	expectStatus(t, fixture.do(t, http.MethodGet, notePath, other.Access, nil), http.StatusNotFound)

	patched := fixture.do(t, http.MethodPatch, notePath, owner.Access, map[string]any{"title": "Osmosis and diffusion"})
	expectStatus(t, patched, http.StatusOK)
	var patchedNote notePayload
	decodeBody(t, patched, &patchedNote)
	if patchedNote.Title != "Osmosis and diffusion" || patchedNote.Content != "Water moves." {
		t.Fatalf("unexpected patched note %#v", patchedNote)
	}

	expectStatus(t, fixture.do(t, http.MethodPut, notePath, owner.Access, map[string]any{
		"title": "  ", "subject": "Biology", "category": "Revision", "content": "Water moves.",
	}), http.StatusBadRequest)

	listed := fixture.do(t, http.MethodGet, "/api/notes", owner.Access, nil)
	expectStatus(t, listed, http.StatusOK)
	var notesList []notePayload
	decodeBody(t, listed, &notesList)
	if len(notesList) != 1 {
		t.Fatalf("expected one note, got %d", len(notesList))
	}

	expectStatus(t, fixture.do(t, http.MethodDelete, notePath, other.Access, nil), http.StatusNotFound)
	expectStatus(t, fixture.do(t, http.MethodDelete, notePath, owner.Access, nil), http.StatusNoContent)
	expectStatus(t, fixture.do(t, http.MethodGet, notePath, owner.Access, nil), http.StatusNotFound)
}

func TestAssistantEndpointsRecordHistory(t *testing.T) {
	fixture := newAPIFixture(t)
	student := fixture.account(t, "tendai")

	study := fixture.do(t, http.MethodPost, "/api/ai/study", student.Access, map[string]any{"notes": "Plants make food.", "task": "explain"})
	expectStatus(t, study, http.StatusOK)
	var studyBody struct {
		Result    string `json:"result"`
		HistoryID *uint  `json:"history_id"`
	}
	decodeBody(t, study, &studyBody)
	if studyBody.Result != fixture.completer.reply || studyBody.HistoryID == nil {
		t.Fatalf("unexpected study response %#v", studyBody)
	}

	redirect := fixture.do(t, http.MethodPost, "/api/ai/general", student.Access, map[string]any{"question": "Help me write my ZIMSEC project"})
	expectStatus(t, redirect, http.StatusOK)
	var redirectBody map[string]any
	decodeBody(t, redirect, &redirectBody)
	if redirectBody["answer"] != assistant.ProjectRedirectAnswer {
		t.Fatalf("expected project redirect, got %v", redirectBody)
	}
	if _, ok := redirectBody["history_id"]; ok {
		t.Fatalf("did not expect a history id for the redirect")
	}

	fixture.completer.fail(errors.New("provider down"))
	failed := fixture.do(t, http.MethodPost, "/api/ai/notes", student.Access, map[string]any{"note_content": "x", "action": "summarize"})
	expectStatus(t, failed, http.StatusBadGateway)
	var failedBody map[string]string
	decodeBody(t, failed, &failedBody)
	if failedBody["error"] != "AI service error" {
		t.Fatalf("unexpected upstream failure body %v", failedBody)
	}

	expectStatus(t, fixture.do(t, http.MethodPost, "/api/ai/study", student.Access, "{not json"), http.StatusBadRequest)

	listed := fixture.do(t, http.MethodGet, "/api/ai/history", student.Access, nil)
	expectStatus(t, listed, http.StatusOK)
	var records []map[string]any
	decodeBody(t, listed, &records)
	if len(records) != 1 {
		t.Fatalf("expected only the successful exchange to be recorded, got %d", len(records))
	}
	input, ok := records[0]["input_data"].(map[string]any)
	if !ok || input["notes"] != "Plants make food." {
		t.Fatalf("expected the raw request payload, got %v", records[0]["input_data"])
	}

	missing := fixture.do(t, http.MethodDelete, "/api/ai/history/9999", student.Access, nil)
	expectStatus(t, missing, http.StatusNotFound)
	expectDetail(t, missing, "History item not found.")

	cleared := fixture.do(t, http.MethodDelete, "/api/ai/history", student.Access, nil)
	expectStatus(t, cleared, http.StatusOK)
	var clearedBody struct {
		Detail       string `json:"detail"`
		DeletedCount int64  `json:"deleted_count"`
	}
	decodeBody(t, cleared, &clearedBody)
	if clearedBody.DeletedCount != 1 || clearedBody.Detail != "Successfully deleted 1 history items." {
		t.Fatalf("unexpected delete-all body %#v", clearedBody)
	}
}

func TestNoteShareOverHTTP(t *testing.T) {
	fixture := newAPIFixture(t)
	owner := fixture.account(t, "alice")
	member := fixture.account(t, "bob")
	stranger := fixture.account(t, "carol")

	created := fixture.do(t, http.MethodPost, "/api/notes", owner.Access, map[string]any{
		"title": "Cells", "subject": "Biology", "category": "Revision", "content": "Cells divide.",
	})
	expectStatus(t, created, http.StatusCreated)
	var note notePayload
	decodeBody(t, created, &note)

	linkResponse := fixture.do(t, http.MethodPost, "/api/share/links", owner.Access, map[string]any{"resource_type": "note", "note_id": note.ID})
	expectStatus(t, linkResponse, http.StatusCreated)
	var link linkPayload
	decodeBody(t, linkResponse, &link)
	if link.Permission != sharing.PermissionRead || link.Note == nil || *link.Note != note.ID {
		t.Fatalf("unexpected link %#v", link)
	}
	linkPath := "/api/share/links/" + link.Token

	expectDetail(t, fixture.do(t, http.MethodPost, "/api/share/links", owner.Access, map[string]any{"resource_type": "doc"}), "Invalid resource_type.")

	denied := fixture.do(t, http.MethodGet, linkPath, stranger.Access, nil)
	expectStatus(t, denied, http.StatusForbidden)
	expectDetail(t, denied, "Not allowed.")

	inviteSent := fixture.do(t, http.MethodPost, linkPath+"/invite", owner.Access, map[string]string{"username": "bob"})
	expectStatus(t, inviteSent, http.StatusOK)
	var inviteBody struct {
		Detail   string `json:"detail"`
		InviteID uint   `json:"invite_id"`
	}
	decodeBody(t, inviteSent, &inviteBody)
	if inviteBody.InviteID == 0 {
		t.Fatalf("expected an invite id, got %#v", inviteBody)
	}

	gated := fixture.do(t, http.MethodGet, linkPath, member.Access, nil)
	expectStatus(t, gated, http.StatusForbidden)
	var gatedBody struct {
		Detail   string `json:"detail"`
		Invite   bool   `json:"invite"`
		InviteID uint   `json:"invite_id"`
	}
	decodeBody(t, gated, &gatedBody)
	if !gatedBody.Invite || gatedBody.InviteID != inviteBody.InviteID {
		t.Fatalf("expected invite marker, got %#v", gatedBody)
	}

	pending := fixture.do(t, http.MethodGet, "/api/share/invites", member.Access, nil)
	expectStatus(t, pending, http.StatusOK)
	var invites []invitePayload
	decodeBody(t, pending, &invites)
	if len(invites) != 1 || invites[0].Share.Token != link.Token || invites[0].InvitedBy.Username != "alice" {
		t.Fatalf("unexpected pending invites %#v", invites)
	}

	invitePath := "/api/share/invites/" + strconv.FormatUint(uint64(inviteBody.InviteID), 10)
	expectDetail(t, fixture.do(t, http.MethodPost, invitePath, member.Access, map[string]string{"action": "maybe"}), "Invalid action.")
	accepted := fixture.do(t, http.MethodPost, invitePath, member.Access, map[string]string{"action": "accept"})
	expectStatus(t, accepted, http.StatusOK)
	expectDetail(t, accepted, "Invite accepted.")
	again := fixture.do(t, http.MethodPost, invitePath, member.Access, map[string]string{"action": "decline"})
	expectStatus(t, again, http.StatusBadRequest)
	expectDetail(t, again, "Invite already handled.")

	detail := fixture.do(t, http.MethodGet, linkPath, member.Access, nil)
	expectStatus(t, detail, http.StatusOK)
	var detailBody map[string]any
	decodeBody(t, detail, &detailBody)
	noteBody, ok := detailBody["note"].(map[string]any)
	if !ok || noteBody["title"] != "Cells" {
		t.Fatalf("expected the note summary in the detail, got %v", detailBody["note"])
	}
	if _, ok := detailBody["messages"]; ok {
		t.Fatalf("did not expect messages on a note link")
	}

	read := fixture.do(t, http.MethodGet, linkPath+"/note", member.Access, nil)
	expectStatus(t, read, http.StatusOK)
	var readBody struct {
		Note       notePayload        `json:"note"`
		Permission sharing.Permission `json:"permission"`
	}
	decodeBody(t, read, &readBody)
	if readBody.Permission != sharing.PermissionRead || readBody.Note.Content != "Cells divide." {
		t.Fatalf("unexpected shared note %#v", readBody)
	}

	readOnly := fixture.do(t, http.MethodPut, linkPath+"/note", member.Access, map[string]string{"content": "Edited"})
	expectStatus(t, readOnly, http.StatusForbidden)
	expectDetail(t, readOnly, "Read-only share.")

	members := fixture.do(t, http.MethodGet, linkPath+"/members", owner.Access, nil)
	expectStatus(t, members, http.StatusOK)
	var memberList []memberPayload
	decodeBody(t, members, &memberList)
	if len(memberList) != 1 || memberList[0].User.ID != member.ID {
		t.Fatalf("unexpected members %#v", memberList)
	}

	revoked := fixture.do(t, http.MethodPost, linkPath+"/revoke", owner.Access, nil)
	expectStatus(t, revoked, http.StatusOK)
	expectDetail(t, revoked, "Share link revoked.")

	gone := fixture.do(t, http.MethodGet, linkPath+"/note", member.Access, nil)
	expectStatus(t, gone, http.StatusNotFound)
	expectDetail(t, gone, "Share link not found.")
	expectStatus(t, fixture.do(t, http.MethodPost, linkPath+"/revoke", owner.Access, nil), http.StatusNotFound)
}

func TestCollabChatShareOverHTTP(t *testing.T) {
	fixture := newAPIFixture(t)
	owner := fixture.account(t, "alice")
	member := fixture.account(t, "bob")

	seeded := fixture.do(t, http.MethodPost, "/api/ai/general", owner.Access, map[string]any{"question": "What is osmosis?", "session_id": "session-1"})
	expectStatus(t, seeded, http.StatusOK)

	linkResponse := fixture.do(t, http.MethodPost, "/api/share/links", owner.Access, map[string]any{
		"resource_type": "chat", "permission": "collab", "session_id": "session-1",
	})
	expectStatus(t, linkResponse, http.StatusCreated)
	var link linkPayload
	decodeBody(t, linkResponse, &link)
	linkPath := "/api/share/links/" + link.Token

	missingSession := fixture.do(t, http.MethodPost, "/api/share/links", owner.Access, map[string]any{"resource_type": "chat", "session_id": "nope"})
	expectStatus(t, missingSession, http.StatusNotFound)
	expectDetail(t, missingSession, "Chat session not found.")

	inviteSent := fixture.do(t, http.MethodPost, linkPath+"/invite", owner.Access, map[string]string{"username": "bob"})
	expectStatus(t, inviteSent, http.StatusOK)
	var inviteBody struct {
		InviteID uint `json:"invite_id"`
	}
	decodeBody(t, inviteSent, &inviteBody)
	expectStatus(t, fixture.do(t, http.MethodPost, "/api/share/invites/"+strconv.FormatUint(uint64(inviteBody.InviteID), 10), member.Access, map[string]string{"action": "accept"}), http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ownerEvents, cleanup := fixture.realtime.Subscribe(ctx, owner.ID)
	defer cleanup()

	expectDetail(t, fixture.do(t, http.MethodPost, linkPath+"/chat", member.Access, map[string]string{"message": "  "}), "Message is required.")

	posted := fixture.do(t, http.MethodPost, linkPath+"/chat", member.Access, map[string]string{"message": "And diffusion?"})
	expectStatus(t, posted, http.StatusOK)
	var postedBody struct {
		Answer string `json:"answer"`
	}
	decodeBody(t, posted, &postedBody)
	if postedBody.Answer != fixture.completer.reply {
		t.Fatalf("unexpected answer %q", postedBody.Answer)
	}

	select {
	case message := <-ownerEvents:
		if message.EventType != RealtimeEventShareUpdated || message.Token != link.Token {
			t.Fatalf("unexpected realtime message %#v", message)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the owner to be notified about the new message")
	}

	chat := fixture.do(t, http.MethodGet, linkPath+"/chat", owner.Access, nil)
	expectStatus(t, chat, http.StatusOK)
	var chatBody struct {
		Messages []struct {
			ID       any    `json:"id"`
			Role     string `json:"role"`
			Content  string `json:"content"`
			Username string `json:"username"`
		} `json:"messages"`
		Permission string `json:"permission"`
	}
	decodeBody(t, chat, &chatBody)
	if len(chatBody.Messages) != 4 {
		t.Fatalf("expected two replayed exchanges, got %d", len(chatBody.Messages))
	}
	third := chatBody.Messages[2]
	if third.Role != history.RoleUser || third.Content != "And diffusion?" || third.Username != "bob" {
		t.Fatalf("unexpected member turn %#v", third)
	}
	if id, ok := chatBody.Messages[3].ID.(string); !ok || !strings.HasSuffix(id, "-assistant") {
		t.Fatalf("expected assistant turn id suffix, got %v", chatBody.Messages[3].ID)
	}

	fixture.completer.fail(errors.New("provider down"))
	failed := fixture.do(t, http.MethodPost, linkPath+"/chat", member.Access, map[string]string{"message": "One more"})
	expectStatus(t, failed, http.StatusBadGateway)

	removed := fixture.do(t, http.MethodDelete, linkPath+"/members/"+strconv.FormatUint(uint64(member.ID), 10), owner.Access, nil)
	expectStatus(t, removed, http.StatusOK)
	expectDetail(t, removed, "Member removed.")
	expectStatus(t, fixture.do(t, http.MethodGet, linkPath+"/chat", member.Access, nil), http.StatusForbidden)
}
