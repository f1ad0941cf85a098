package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/auth"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/users/alice", "/users/:username"},
		{"/users/alice/messages", "/users/:username/messages"},
		{"/my/messages", "/my/messages"},
		{"/my/messages/42", "/my/messages/:id"},
		{"/my/messages/42/live", "/my/messages/:id/live"},
		{"/my/notifications/count", "/my/notifications/count"},
		{"/my/notifications/7/see", "/my/notifications/:id/see"},
		{"/my/settings", "/my/settings"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func newAuth() (*AuthMiddleware, *auth.TokenManager) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewAuthMiddleware(tokens, zerolog.Nop()), tokens
}

func TestRequireAuthRedirects(t *testing.T) {
	m, _ := newAuth()
	called := false
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, header := range []string{"", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/my/messages", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Errorf("%q: status = %d, want 303", header, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != LoginPath {
			t.Errorf("%q: Location = %q, want %q", header, loc, LoginPath)
		}
	}
	if called {
		t.Error("handler ran without a session")
	}
}

func TestRequireAuthAcceptsBearerAndCookie(t *testing.T) {
	m, tokens := newAuth()
	id := uuid.New()
	token, err := tokens.Generate(id)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var got uuid.UUID
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUserIDFromContext(r.Context())
	}))

	bearer := httptest.NewRequest(http.MethodGet, "/my/profile", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	cookie := httptest.NewRequest(http.MethodGet, "/my/profile", nil)
	cookie.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})

	for name, req := range map[string]*http.Request{"bearer": bearer, "cookie": cookie} {
		got = uuid.Nil
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", name, rec.Code)
		}
		if got != id {
			t.Errorf("%s: user = %v, want %v", name, got, id)
		}
	}
}

func TestIdentifyLetsAnonymousThrough(t *testing.T) {
	m, _ := newAuth()
	var ok bool
	h := m.Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = GetUserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/alice", nil))
	if rec.Code != http.StatusOK || ok {
		t.Errorf("status = %d, identified = %v, want 200 and anonymous", rec.Code, ok)
	}
}

func TestWithUserIDFillsSlot(t *testing.T) {
	var slot string
	ctx := withUserSlot(context.Background(), &slot)
	id := uuid.New()
	WithUserID(ctx, id)
	if slot != id.String() {
		t.Errorf("slot = %q, want %q", slot, id)
	}
}

func TestMatchPrefersLongestPrefix(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/users/bob/messages", 30},
		{http.MethodGet, "/users/bob", 100},
		{http.MethodPost, "/my/messages/3", 60},
		{http.MethodGet, "/my/messages/3", 120},
		{http.MethodPost, "/auth/join", 10},
	}
	for _, tt := range tests {
		rule := rl.match(httptest.NewRequest(tt.method, tt.path, nil))
		if rule == nil || rule.Requests != tt.want {
			t.Errorf("%s %s: rule = %+v, want %d requests", tt.method, tt.path, rule, tt.want)
		}
	}

	if rule := rl.match(httptest.NewRequest(http.MethodGet, "/health", nil)); rule != nil {
		t.Errorf("GET /health: rule = %+v, want none", rule)
	}
}

func TestRateLimitKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/my/messages", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	if got := userKey(req); got != "ip:203.0.113.9" {
		t.Errorf("anonymous userKey = %q", got)
	}

	id := uuid.New()
	req = req.WithContext(WithUserID(req.Context(), id))
	if got := userKey(req); got != "user:"+id.String() {
		t.Errorf("signed-in userKey = %q", got)
	}
}

func TestIPList(t *testing.T) {
	l := parseIPList([]string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr/99"}, zerolog.Nop())

	for ip, want := range map[string]bool{
		"10.1.2.3":    true,
		"192.168.1.5": true,
		"192.168.1.6": false,
		"garbage":     false,
	} {
		if got := l.contains(ip); got != want {
			t.Errorf("contains(%q) = %v, want %v", ip, got, want)
		}
	}
	if parseIPList(nil, zerolog.Nop()).contains("10.1.2.3") {
		t.Error("empty list matched an address")
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	if got := RealIP(req); got != "198.51.100.7" {
		t.Errorf("RealIP(socket) = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	if got := RealIP(req); got != "203.0.113.1" {
		t.Errorf("RealIP(forwarded) = %q", got)
	}

	req.Header.Set("Fly-Client-IP", "203.0.113.2")
	if got := RealIP(req); got != "203.0.113.2" {
		t.Errorf("RealIP(fly) = %q", got)
	}
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/my/messages/1", strings.NewReader(`content=hi`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("form post: status = %d, want 415", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/../etc/passwd", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("traversal: status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/a?q=%3Cscript%3E", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("encoded script: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/my/messages/1", strings.NewReader(`{"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("json post: status = %d, want 200", rec.Code)
	}
}
