package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/gin-gonic/gin"
)

// decodeRaw unmarshals the request body into target and returns the body for verbatim storage.
func decodeRaw(c *gin.Context, target any) (json.RawMessage, bool) {
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 || json.Unmarshal(raw, target) != nil {
		badRequest(c, detailInvalidBody)
		return nil, false
	}
	return raw, true
}

func (h *httpHandler) writeReply(c *gin.Context, key string, reply assistant.Reply, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: reply.Text, "history_id": reply.HistoryID})
}

func (h *httpHandler) handleStudy(c *gin.Context) {
	var request assistant.StudyRequest
	raw, ok := decodeRaw(c, &request)
	if !ok {
		return
	}
	request.Raw = raw
	reply, err := h.assistant.Study(c.Request.Context(), callerID(c), request)
	h.writeReply(c, "result", reply, err)
}

func (h *httpHandler) handleProject(c *gin.Context) {
	var request assistant.ProjectRequest
	raw, ok := decodeRaw(c, &request)
	if !ok {
		return
	}
	request.Raw = raw
	reply, err := h.assistant.Project(c.Request.Context(), callerID(c), request)
	h.writeReply(c, "project", reply, err)
}

func (h *httpHandler) handleGeneral(c *gin.Context) {
	var request assistant.GeneralRequest
	raw, ok := decodeRaw(c, &request)
	if !ok {
		return
	}
	request.Raw = raw
	reply, err := h.assistant.General(c.Request.Context(), callerID(c), request)
	if err == nil && reply.HistoryID == nil && reply.Text == assistant.ProjectRedirectAnswer {
		c.JSON(http.StatusOK, gin.H{"answer": reply.Text})
		return
	}
	h.writeReply(c, "answer", reply, err)
}

func (h *httpHandler) handleNotesAssist(c *gin.Context) {
	var request assistant.NotesRequest
	raw, ok := decodeRaw(c, &request)
	if !ok {
		return
	}
	request.Raw = raw
	reply, err := h.assistant.Notes(c.Request.Context(), callerID(c), request)
	h.writeReply(c, "updated_note", reply, err)
}

func (h *httpHandler) handleListHistory(c *gin.Context) {
	records, err := h.history.List(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]historyPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, newHistoryPayload(record))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleDeleteHistory(c *gin.Context) {
	historyID, ok := parseIDParam(c, "id")
	if !ok {
		h.writeError(c, history.ErrHistoryNotFound)
		return
	}
	if err := h.history.Delete(c.Request.Context(), callerID(c), historyID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "History item deleted successfully."})
}

func (h *httpHandler) handleDeleteAllHistory(c *gin.Context) {
	deleted, err := h.history.DeleteAll(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"detail":        fmt.Sprintf("Successfully deleted %d history items.", deleted),
		"deleted_count": deleted,
	})
}
