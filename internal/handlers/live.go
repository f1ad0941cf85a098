package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/David-Byun/wemake/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Sessions are cookie or bearer based and CORS already gates browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Live streams INSERT events for a conversation to a websocket client until
// either side goes away.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	convID, ok := conversationParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid message room ID")
		return
	}
	user := currentUser(r)

	if err := h.resolver.Authorize(r.Context(), convID, user); err != nil {
		h.Fail(w, r, err)
		return
	}
	channel, err := h.resolver.Channel(r.Context(), convID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug().Err(err).Int64("conversation_id", convID).Msg("websocket upgrade failed")
		return
	}

	conn := realtime.NewConnection(user, ws)
	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "")

	filter := realtime.Filter{Type: realtime.EventInsert, Table: realtime.TableMessages}
	sub, err := h.feed.Subscribe(r.Context(), channel, filter, func(e realtime.Event) {
		if err := conn.SendEvent(e); err != nil {
			h.logger.Debug().Err(err).Str("connection", conn.ID).Msg("dropping event for closed connection")
		}
	})
	if err != nil {
		h.logger.Error().Err(err).Str("channel", channel).Msg("live subscribe failed")
		conn.Close(websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	h.logger.Info().
		Str("connection", conn.ID).
		Str("user_id", user.String()).
		Int64("conversation_id", convID).
		Msg("live view opened")

	select {
	case <-conn.Done():
	case <-sub.Done():
		conn.Close(websocket.CloseGoingAway, "feed unavailable")
	case <-r.Context().Done():
	}

	h.logger.Info().Str("connection", conn.ID).Msg("live view closed")
}
