package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/api/middleware"
	"github.com/David-Byun/wemake/internal/auth"
	"github.com/David-Byun/wemake/internal/forms"
	"github.com/David-Byun/wemake/internal/messaging"
	"github.com/David-Byun/wemake/internal/realtime"
	"github.com/David-Byun/wemake/internal/store"
)

// Deps are the shared dependencies of all HTTP handlers.
type Deps struct {
	Store    store.DataStore
	Redis    *store.RedisStore // optional
	Feed     realtime.Feed
	Resolver *messaging.Resolver
	Tokens   *auth.TokenManager
	Logger   zerolog.Logger
	// SecureCookies marks session cookies Secure.
	SecureCookies bool
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore
	feed     realtime.Feed
	resolver *messaging.Resolver
	tokens   *auth.TokenManager
	logger   zerolog.Logger
	secure   bool
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		db:       d.Store,
		redis:    d.Redis,
		feed:     d.Feed,
		resolver: d.Resolver,
		tokens:   d.Tokens,
		logger:   d.Logger,
		secure:   d.SecureCookies,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ValidationErrorResponse carries per-field validation messages.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// Fail maps a domain error to a response. Anything unrecognised is logged
// and reported as a generic 500.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	var fe *forms.Error
	switch {
	case errors.As(err, &fe):
		h.JSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: "invalid input", Fields: fe.Fields})
	case errors.Is(err, messaging.ErrNotMember):
		h.Error(w, http.StatusNotFound, "message room not found")
	case errors.Is(err, messaging.ErrRecipientNotFound):
		h.Error(w, http.StatusNotFound, "recipient not found")
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		h.Error(w, http.StatusConflict, "already exists")
	default:
		h.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "something went wrong")
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return forms.FieldError("body", "must be valid JSON")
	}
	return nil
}

// currentUser returns the authenticated user id. Routes behind RequireAuth
// always have one.
func currentUser(r *http.Request) uuid.UUID {
	id, _ := middleware.GetUserIDFromContext(r.Context())
	return id
}

// conversationParam parses the {id} URL parameter.
func conversationParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
