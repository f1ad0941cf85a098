package handlers

import (
	"fmt"
	"net/http"

	"github.com/David-Byun/wemake/internal/forms"
	"github.com/David-Byun/wemake/internal/metrics"
)

// JoinResponse represents the join response.
type JoinResponse struct {
	ID         string `json:"profile_id"`
	Username   string `json:"username"`
	Token      string `json:"token"`
	ProfileURL string `json:"profile_url"`
}

// Join creates a profile and signs the caller in.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var in forms.JoinInput
	if err := decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := in.Normalize(); err != nil {
		h.Fail(w, r, err)
		return
	}

	profile, err := h.db.CreateProfile(r.Context(), in.Name, in.Username)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	metrics.ProfilesJoined.Inc()

	token, err := h.tokens.Generate(profile.ID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	http.SetCookie(w, h.tokens.SessionCookie(token, h.secure))

	h.logger.Info().
		Str("profile_id", profile.ID.String()).
		Str("username", profile.Username).
		Msg("profile joined")

	h.JSON(w, http.StatusCreated, JoinResponse{
		ID:         profile.ID.String(),
		Username:   profile.Username,
		Token:      token,
		ProfileURL: fmt.Sprintf("/users/%s", profile.Username),
	})
}

// Login is where unauthenticated requests are redirected.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.Error(w, http.StatusUnauthorized, "login required")
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	c := h.tokens.SessionCookie("", h.secure)
	c.MaxAge = -1
	http.SetCookie(w, c)
	w.WriteHeader(http.StatusNoContent)
}
