package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/auth"
	"github.com/David-Byun/wemake/internal/models"
	"github.com/David-Byun/wemake/internal/realtime"
	"github.com/David-Byun/wemake/internal/store"
)

type testEnv struct {
	srv  *httptest.Server
	db   *store.SQLiteStore
	feed *realtime.MemoryFeed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "wemake.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(db.Close)

	feed := realtime.NewMemoryFeed()
	t.Cleanup(func() { feed.Close() })

	srv := httptest.NewServer(NewRouter(Deps{
		Logger: zerolog.Nop(),
		Store:  db,
		Feed:   feed,
		Tokens: auth.NewTokenManager("test-secret", time.Hour),
	}))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, db: db, feed: feed}
}

type session struct {
	id    uuid.UUID
	token string
}

func (e *testEnv) do(t *testing.T, s *session, method, path string, body interface{}) *http.Response {
	t.Helper()

	var r *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s != nil {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) join(t *testing.T, name, username string) *session {
	t.Helper()
	resp := e.do(t, nil, http.MethodPost, "/auth/join", map[string]string{"name": name, "username": username})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("join %s: status = %d, want 201", username, resp.StatusCode)
	}
	var out struct {
		ID    string `json:"profile_id"`
		Token string `json:"token"`
	}
	decodeBody(t, resp, &out)
	return &session{id: uuid.MustParse(out.ID), token: out.Token}
}

func TestJoin(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, nil, http.MethodPost, "/auth/join", map[string]string{"name": "Alice", "username": "alice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Errorf("session cookie = %+v, want a non-empty HttpOnly cookie", cookie)
	}

	dup := e.do(t, nil, http.MethodPost, "/auth/join", map[string]string{"name": "Alice 2", "username": "alice"})
	if dup.StatusCode != http.StatusConflict {
		t.Errorf("duplicate username: status = %d, want 409", dup.StatusCode)
	}

	bad := e.do(t, nil, http.MethodPost, "/auth/join", map[string]string{"name": "", "username": "A!"})
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid join: status = %d, want 400", bad.StatusCode)
	}
	var verr struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, bad, &verr)
	if verr.Fields["name"] == "" || verr.Fields["username"] == "" {
		t.Errorf("fields = %v, want name and username errors", verr.Fields)
	}
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	e := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/my/messages"},
		{http.MethodGet, "/my/messages/1"},
		{http.MethodPost, "/users/bob/messages"},
		{http.MethodGet, "/my/notifications/count"},
	} {
		resp := e.do(t, nil, tc.method, tc.path, nil)
		if resp.StatusCode != http.StatusSeeOther {
			t.Errorf("%s %s: status = %d, want 303", tc.method, tc.path, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/auth/login" {
			t.Errorf("%s %s: Location = %q", tc.method, tc.path, loc)
		}
	}
}

func TestSendDirectMessage(t *testing.T) {
	e := newTestEnv(t)
	alice := e.join(t, "Alice", "alice")
	bob := e.join(t, "Bob", "bob")
	carol := e.join(t, "Carol", "carol")

	resp := e.do(t, alice, http.MethodPost, "/users/bob/messages", map[string]string{"content": "hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var sent struct {
		ConversationID int64 `json:"conversation_id"`
	}
	decodeBody(t, resp, &sent)
	if want := fmt.Sprintf("/my/messages/%d", sent.ConversationID); resp.Header.Get("Location") != want {
		t.Errorf("Location = %q, want %q", resp.Header.Get("Location"), want)
	}

	// Bob replying through his own profile link reuses the conversation.
	resp = e.do(t, bob, http.MethodPost, "/users/alice/messages", map[string]string{"content": "hey"})
	var reply struct {
		ConversationID int64 `json:"conversation_id"`
	}
	decodeBody(t, resp, &reply)
	if reply.ConversationID != sent.ConversationID {
		t.Errorf("reply landed in %d, want %d", reply.ConversationID, sent.ConversationID)
	}

	room := e.do(t, bob, http.MethodGet, fmt.Sprintf("/my/messages/%d", sent.ConversationID), nil)
	if room.StatusCode != http.StatusOK {
		t.Fatalf("room: status = %d, want 200", room.StatusCode)
	}
	var got struct {
		Participant models.Participant `json:"participant"`
		Messages    []models.Message   `json:"messages"`
	}
	decodeBody(t, room, &got)
	if got.Participant.ID != alice.id || len(got.Messages) != 2 || got.Messages[0].Content != "hello" {
		t.Errorf("room = %+v", got)
	}

	if resp := e.do(t, carol, http.MethodGet, fmt.Sprintf("/my/messages/%d", sent.ConversationID), nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("non-member read: status = %d, want 404", resp.StatusCode)
	}
	if resp := e.do(t, carol, http.MethodPost, fmt.Sprintf("/my/messages/%d", sent.ConversationID), map[string]string{"content": "hi"}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("non-member post: status = %d, want 404", resp.StatusCode)
	}
	if resp := e.do(t, alice, http.MethodPost, "/users/nobody/messages", map[string]string{"content": "hi"}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown recipient: status = %d, want 404", resp.StatusCode)
	}
	if resp := e.do(t, alice, http.MethodPost, "/users/alice/messages", map[string]string{"content": "me"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("self message: status = %d, want 400", resp.StatusCode)
	}
	if resp := e.do(t, alice, http.MethodPost, "/users/bob/messages", map[string]string{"content": strings.Repeat("x", 2001)}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("long message: status = %d, want 400", resp.StatusCode)
	}
	if resp := e.do(t, alice, http.MethodGet, "/my/messages/abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", resp.StatusCode)
	}

	inbox := e.do(t, alice, http.MethodGet, "/my/messages", nil)
	var list struct {
		Total int `json:"total"`
	}
	decodeBody(t, inbox, &list)
	if list.Total != 1 {
		t.Errorf("inbox total = %d, want 1", list.Total)
	}
}

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	alice := e.join(t, "Alice", "alice")
	bob := e.join(t, "Bob", "bob")

	n, err := e.db.CreateNotification(context.Background(), store.NewNotification{
		Type:     models.NotificationFollow,
		SourceID: &bob.id,
		TargetID: alice.id,
	})
	if err != nil {
		t.Fatalf("CreateNotification failed: %v", err)
	}

	count := func() int64 {
		var out struct {
			Count int64 `json:"count"`
		}
		decodeBody(t, e.do(t, alice, http.MethodGet, "/my/notifications/count", nil), &out)
		return out.Count
	}
	if got := count(); got != 1 {
		t.Fatalf("unseen = %d, want 1", got)
	}

	see := fmt.Sprintf("/my/notifications/%d/see", n.ID)
	if resp := e.do(t, bob, http.MethodPost, see, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("see by non-target: status = %d, want 404", resp.StatusCode)
	}
	if resp := e.do(t, alice, http.MethodPost, see, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("see: status = %d, want 204", resp.StatusCode)
	}
	if got := count(); got != 0 {
		t.Errorf("unseen after see = %d, want 0", got)
	}

	var list struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decodeBody(t, e.do(t, alice, http.MethodGet, "/my/notifications", nil), &list)
	if len(list.Notifications) != 1 || !list.Notifications[0].Seen {
		t.Errorf("notifications = %+v, want one seen", list.Notifications)
	}
}

func TestSettings(t *testing.T) {
	e := newTestEnv(t)
	alice := e.join(t, "Alice", "alice")

	resp := e.do(t, alice, http.MethodPost, "/my/settings", map[string]string{
		"name": "Alice Liddell", "role": "founder", "headline": "down the hole",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var p models.Profile
	decodeBody(t, resp, &p)
	if p.Name != "Alice Liddell" || p.Role != models.RoleFounder {
		t.Errorf("profile = %+v", p)
	}

	if resp := e.do(t, alice, http.MethodPost, "/my/settings", map[string]string{"name": "A", "role": "wizard"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want 400", resp.StatusCode)
	}

	pub := e.do(t, nil, http.MethodGet, "/users/alice", nil)
	decodeBody(t, pub, &p)
	if p.Headline != "down the hole" {
		t.Errorf("public headline = %q", p.Headline)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, nil, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	decodeBody(t, resp, &out)
	if out.Status != "healthy" || out.Checks["database"] == nil || out.Checks["feed"] == nil {
		t.Errorf("health = %+v", out)
	}
}

func TestLiveForwardsInserts(t *testing.T) {
	e := newTestEnv(t)
	alice := e.join(t, "Alice", "alice")
	bob := e.join(t, "Bob", "bob")

	var sent struct {
		ConversationID int64 `json:"conversation_id"`
	}
	decodeBody(t, e.do(t, alice, http.MethodPost, "/users/bob/messages", map[string]string{"content": "hello"}), &sent)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + fmt.Sprintf("/my/messages/%d/live", sent.ConversationID)
	header := http.Header{"Authorization": {"Bearer " + bob.token}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	channel := realtime.RoomChannel(alice.id, bob.id)
	deadline := time.Now().Add(2 * time.Second)
	for e.feed.Subscribers(channel) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("live handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.do(t, alice, http.MethodPost, fmt.Sprintf("/my/messages/%d", sent.ConversationID), map[string]string{"content": "live!"})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev realtime.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	var msg models.Message
	if err := json.Unmarshal(ev.Record, &msg); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if ev.Type != realtime.EventInsert || msg.Content != "live!" || msg.SenderID != alice.id {
		t.Errorf("event = %+v, message = %+v", ev, msg)
	}

	// Closing the socket releases the feed subscription.
	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
	deadline = time.Now().Add(2 * time.Second)
	for e.feed.Subscribers(channel) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription outlived the socket")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLiveRejectsNonMember(t *testing.T) {
	e := newTestEnv(t)
	alice := e.join(t, "Alice", "alice")
	e.join(t, "Bob", "bob")
	carol := e.join(t, "Carol", "carol")

	var sent struct {
		ConversationID int64 `json:"conversation_id"`
	}
	decodeBody(t, e.do(t, alice, http.MethodPost, "/users/bob/messages", map[string]string{"content": "hello"}), &sent)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + fmt.Sprintf("/my/messages/%d/live", sent.ConversationID)
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + carol.token}})
	if err == nil {
		t.Fatal("non-member dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %+v, want 404", resp)
	}
}
