package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SendDMRequest represents the send message request body.
type SendDMRequest struct {
	Content string `json:"content"`
}

// SendDMResponse represents the send message response.
type SendDMResponse struct {
	ConversationID int64 `json:"conversation_id"`
}

// SendDM sends a direct message to the profile named in the URL, opening a
// conversation on first contact.
func (h *Handler) SendDM(w http.ResponseWriter, r *http.Request) {
	sender := currentUser(r)

	target, err := h.db.GetProfileByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if target == nil {
		h.Error(w, http.StatusNotFound, "recipient not found")
		return
	}

	var req SendDMRequest
	if err := decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}

	convID, err := h.resolver.SendDirectMessage(r.Context(), sender, target.ID, req.Content)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/my/messages/%d", convID))
	h.JSON(w, http.StatusCreated, SendDMResponse{ConversationID: convID})
}
