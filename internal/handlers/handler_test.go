package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/forms"
	"github.com/David-Byun/wemake/internal/messaging"
	"github.com/David-Byun/wemake/internal/store"
)

func TestFailMapsDomainErrors(t *testing.T) {
	h := NewHandler(Deps{Logger: zerolog.Nop()})

	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"validation", forms.FieldError("content", "is required"), http.StatusBadRequest, "invalid input"},
		{"not member", fmt.Errorf("load: %w", messaging.ErrNotMember), http.StatusNotFound, "message room not found"},
		{"no recipient", messaging.ErrRecipientNotFound, http.StatusNotFound, "recipient not found"},
		{"store not found", store.ErrNotFound, http.StatusNotFound, "not found"},
		{"conflict", store.ErrConflict, http.StatusConflict, "already exists"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.msg {
				t.Errorf("error = %v, want %q", body["error"], tt.msg)
			}
			if strings.Contains(rec.Body.String(), "disk on fire") {
				t.Error("internal error text leaked to the client")
			}
		})
	}
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	var v PostMessageRequest
	err := decode(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json")), &v)

	var fe *forms.Error
	if !errors.As(err, &fe) || fe.Fields["body"] == "" {
		t.Errorf("decode = %v, want a body field error", err)
	}
}
