package handlers

import (
	"net/http"

	"github.com/David-Byun/wemake/internal/models"
)

// RoomResponse is an open conversation: who the user is talking to and the
// history so far, oldest first.
type RoomResponse struct {
	ConversationID int64              `json:"conversation_id"`
	Participant    models.Participant `json:"participant"`
	Messages       []models.Message   `json:"messages"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// GetRoom loads a conversation the user belongs to.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	convID, ok := conversationParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid message room ID")
		return
	}
	user := currentUser(r)

	participant, err := h.resolver.Participant(r.Context(), convID, user)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	messages, err := h.resolver.Messages(r.Context(), convID, user)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, RoomResponse{
		ConversationID: convID,
		Participant:    *participant,
		Messages:       messages,
	})
}

// PostMessage appends a message to a conversation the user belongs to.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	convID, ok := conversationParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid message room ID")
		return
	}

	var req PostMessageRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}

	msg, err := h.resolver.SendToConversation(r.Context(), convID, currentUser(r), req.Content)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}
