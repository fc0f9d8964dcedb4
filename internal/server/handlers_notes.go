package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListNotes(c *gin.Context) {
	owned, err := h.notes.ListNotes(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]notePayload, 0, len(owned))
	for _, note := range owned {
		payload = append(payload, newNotePayload(note))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var input notes.NoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	note, err := h.notes.CreateNote(c.Request.Context(), callerID(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, ok := parseIDParam(c, "id")
	if !ok {
		h.writeError(c, notes.ErrNoteNotFound)
		return
	}
	note, err := h.notes.GetNote(c.Request.Context(), callerID(c), noteID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleReplaceNote(c *gin.Context) {
	var input notes.NoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	h.updateNote(c, input.Patch())
}

func (h *httpHandler) handlePatchNote(c *gin.Context) {
	var patch notes.NotePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	h.updateNote(c, patch)
}

func (h *httpHandler) updateNote(c *gin.Context, patch notes.NotePatch) {
	noteID, ok := parseIDParam(c, "id")
	if !ok {
		h.writeError(c, notes.ErrNoteNotFound)
		return
	}
	note, err := h.notes.UpdateNote(c.Request.Context(), callerID(c), noteID, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID, ok := parseIDParam(c, "id")
	if !ok {
		h.writeError(c, notes.ErrNoteNotFound)
		return
	}
	if err := h.notes.DeleteNote(c.Request.Context(), callerID(c), noteID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
