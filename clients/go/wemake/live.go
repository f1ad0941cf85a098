package wemake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/David-Byun/wemake/internal/realtime"
)

// ErrReadOnly is returned by LiveFeed.Publish. Messages are sent with Post.
var ErrReadOnly = errors.New("wemake: live feed is read-only")

// LiveChannel names the LiveFeed channel of a conversation.
func LiveChannel(conversationID int64) string {
	return strconv.FormatInt(conversationID, 10)
}

// LiveFeed is a realtime.Feed backed by the server's websocket endpoint, so a
// realtime.View can follow a conversation from outside the server. Channels
// are conversation ids as produced by LiveChannel.
type LiveFeed struct {
	client *Client
	dialer *websocket.Dialer
}

// Feed returns a LiveFeed that authenticates as the client.
func (c *Client) Feed() *LiveFeed {
	return &LiveFeed{client: c, dialer: websocket.DefaultDialer}
}

// Publish always fails.
func (f *LiveFeed) Publish(context.Context, string, realtime.Event) error {
	return ErrReadOnly
}

// Subscribe opens the live websocket for a conversation. The subscription
// ends when either side closes the socket.
func (f *LiveFeed) Subscribe(ctx context.Context, channel string, filter realtime.Filter, h realtime.Handler) (realtime.Subscription, error) {
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("wemake: live channel must be a conversation id")
	}

	header := http.Header{}
	if f.client.Token != "" {
		header.Set("Authorization", "Bearer "+f.client.Token)
	}

	ws, resp, err := f.dialer.DialContext(ctx, websocketURL(f.client.BaseURL)+roomPath(id)+"/live", header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := decodeResponse(resp, nil); apiErr != nil {
				return nil, apiErr
			}
		}
		return nil, err
	}

	sub := &liveSubscription{ws: ws, filter: filter, handler: h, done: make(chan struct{})}
	go sub.readLoop()
	return sub, nil
}

// Close is a no-op. Subscriptions are closed individually.
func (f *LiveFeed) Close() error {
	return nil
}

type liveSubscription struct {
	ws      *websocket.Conn
	filter  realtime.Filter
	handler realtime.Handler

	once  sync.Once
	ended atomic.Bool
	done  chan struct{}
}

func (s *liveSubscription) readLoop() {
	defer s.end()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		var e realtime.Event
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if s.ended.Load() || !s.filter.Match(e) {
			continue
		}
		s.handler(e)
	}
}

func (s *liveSubscription) end() {
	s.once.Do(func() {
		s.ended.Store(true)
		_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.ws.Close()
		close(s.done)
	})
}

func (s *liveSubscription) Unsubscribe() {
	s.end()
}

func (s *liveSubscription) Done() <-chan struct{} {
	return s.done
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
