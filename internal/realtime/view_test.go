package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/David-Byun/wemake/internal/models"
)

func publishMessage(t *testing.T, feed Feed, channel string, msg models.Message) {
	t.Helper()
	e, err := NewEvent(EventInsert, TableMessages, msg)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if err := feed.Publish(context.Background(), channel, e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func waitFor(t *testing.T, v *View, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		changed := v.Changed()
		if cond() {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("condition not reached, state = %s", v.State())
		}
	}
}

func waitForState(t *testing.T, v *View, want State) {
	t.Helper()
	waitFor(t, v, func() bool { return v.State() == want })
}

func seed(convID int64, sender uuid.UUID, contents ...string) []models.Message {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.Message, len(contents))
	for i, c := range contents {
		out[i] = models.Message{
			ID:             int64(i + 1),
			ConversationID: convID,
			SenderID:       sender,
			Content:        c,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestViewAppendsInArrivalOrder(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()

	alice, bob := uuid.New(), uuid.New()
	channel := RoomChannel(alice, bob)
	initial := seed(7, alice, "hello", "hello again")

	v := NewView(feed, channel, 7, initial)
	if v.State() != StateInactive {
		t.Fatalf("new view state = %s", v.State())
	}
	if err := v.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer v.Close()
	if v.State() != StateActive {
		t.Fatalf("state after Open = %s", v.State())
	}

	// Later message first, earlier timestamp second: arrival order wins.
	late := models.Message{ID: 10, ConversationID: 7, SenderID: bob, Content: "late", CreatedAt: time.Now()}
	early := models.Message{ID: 9, ConversationID: 7, SenderID: alice, Content: "early", CreatedAt: time.Now().Add(-time.Hour)}
	publishMessage(t, feed, channel, late)
	publishMessage(t, feed, channel, early)

	// Other conversations on the same channel are ignored.
	publishMessage(t, feed, channel, models.Message{ID: 11, ConversationID: 8, Content: "elsewhere"})

	got := v.Messages()
	if len(got) != len(initial)+2 {
		t.Fatalf("len = %d, want %d", len(got), len(initial)+2)
	}
	for i := range initial {
		if got[i].ID != initial[i].ID {
			t.Errorf("existing entry %d changed: %+v", i, got[i])
		}
	}
	if got[2].Content != "late" || got[3].Content != "early" {
		t.Errorf("appended out of arrival order: %q, %q", got[2].Content, got[3].Content)
	}
}

func TestViewMessagesReturnsCopy(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()

	v := NewView(feed, "room:x", 1, seed(1, uuid.New(), "a"))
	got := v.Messages()
	got[0].Content = "mutated"

	if v.Messages()[0].Content != "a" {
		t.Error("Messages exposed internal slice")
	}
}

func TestViewCloseDetaches(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()

	alice, bob := uuid.New(), uuid.New()
	channel := RoomChannel(alice, bob)
	v := NewView(feed, channel, 3, seed(3, alice, "hi"))

	if err := v.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	publishMessage(t, feed, channel, models.Message{ID: 2, ConversationID: 3, SenderID: bob, Content: "yo"})
	if v.Len() != 2 {
		t.Fatalf("len = %d, want 2", v.Len())
	}

	v.Close()
	if v.State() != StateInactive {
		t.Errorf("state after Close = %s", v.State())
	}
	if feed.Subscribers(channel) != 0 {
		t.Errorf("subscription leaked: %d", feed.Subscribers(channel))
	}

	publishMessage(t, feed, channel, models.Message{ID: 3, ConversationID: 3, SenderID: bob, Content: "anyone?"})
	if v.Len() != 2 {
		t.Errorf("detached view mutated: len = %d", v.Len())
	}

	v.Close()
}

func TestViewOpenTwice(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()

	v := NewView(feed, "room:x", 1, nil)
	if err := v.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer v.Close()

	if err := v.Open(context.Background()); !errors.Is(err, ErrViewOpen) {
		t.Errorf("second Open = %v, want ErrViewOpen", err)
	}
}

func TestViewOpenFailureStaysInactive(t *testing.T) {
	feed := NewMemoryFeed()
	feed.Close()

	v := NewView(feed, "room:x", 1, nil)
	if err := v.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open = %v, want ErrClosed", err)
	}
	if v.State() != StateInactive {
		t.Errorf("state = %s", v.State())
	}
}

func TestViewReconnectsAfterDrop(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()

	alice, bob := uuid.New(), uuid.New()
	channel := RoomChannel(alice, bob)
	v := NewView(feed, channel, 5, nil, WithBackoff(5*time.Millisecond, 20*time.Millisecond))

	if err := v.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer v.Close()

	feed.Drop(channel)
	waitFor(t, v, func() bool {
		return v.State() == StateActive && feed.Subscribers(channel) == 1
	})

	publishMessage(t, feed, channel, models.Message{ID: 1, ConversationID: 5, SenderID: bob, Content: "back"})
	if v.Len() != 1 {
		t.Errorf("len after reconnect = %d, want 1", v.Len())
	}
}

func TestViewCloseWhileReconnecting(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()

	v := NewView(feed, "room:x", 1, nil, WithBackoff(time.Hour, time.Hour))
	if err := v.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	feed.Drop("room:x")
	waitForState(t, v, StateReconnecting)

	v.Close()
	if v.State() != StateInactive {
		t.Errorf("state = %s, want inactive", v.State())
	}
	if feed.Subscribers("room:x") != 0 {
		t.Errorf("subscription leaked: %d", feed.Subscribers("room:x"))
	}
}

func TestBackOffSchedule(t *testing.T) {
	b := newBackOff(defaultMinBackoff, defaultMaxBackoff)
	var seen []time.Duration
	for i := 0; i < 8; i++ {
		seen = append(seen, b.NextBackOff())
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second,
		5 * time.Second,
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, seen[i], want[i])
		}
	}
}
