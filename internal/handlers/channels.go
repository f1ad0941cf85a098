package handlers

import (
	"net/http"

	"github.com/David-Byun/wemake/internal/models"
)

// InboxResponse represents the conversation list response.
type InboxResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	Total         int                          `json:"total"`
}

// ListConversations lists the user's conversations, most recent first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	sums, err := h.resolver.Conversations(r.Context(), currentUser(r))
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, InboxResponse{
		Conversations: sums,
		Total:         len(sums),
	})
}
