package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/David-Byun/wemake/internal/forms"
	"github.com/David-Byun/wemake/internal/store"
)

// Who handles public profile lookup by username.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	profile, err := h.db.GetProfileByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if profile == nil {
		h.Error(w, http.StatusNotFound, "profile not found")
		return
	}

	h.JSON(w, http.StatusOK, profile)
}

// MyProfile returns the signed-in user's profile.
func (h *Handler) MyProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.db.GetProfileByID(r.Context(), currentUser(r))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if profile == nil {
		h.Error(w, http.StatusNotFound, "profile not found")
		return
	}

	h.JSON(w, http.StatusOK, profile)
}

// UpdateSettings edits the signed-in user's profile.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in forms.SettingsInput
	if err := decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := in.Normalize(); err != nil {
		h.Fail(w, r, err)
		return
	}

	user := currentUser(r)
	err := h.db.UpdateProfile(r.Context(), user, store.ProfileUpdate{
		Name:     in.Name,
		Role:     in.Role,
		Headline: in.Headline,
		Bio:      in.Bio,
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.MyProfile(w, r)
}
