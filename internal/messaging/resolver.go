// Package messaging resolves direct-message conversations between profiles
// and appends messages to them.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/forms"
	"github.com/David-Byun/wemake/internal/metrics"
	"github.com/David-Byun/wemake/internal/models"
	"github.com/David-Byun/wemake/internal/realtime"
	"github.com/David-Byun/wemake/internal/store"
)

var (
	// ErrNotMember is returned when the acting profile does not belong to
	// the conversation it tries to read or write.
	ErrNotMember = errors.New("messaging: not a member of this conversation")
	// ErrRecipientNotFound is returned when the recipient profile does not exist.
	ErrRecipientNotFound = errors.New("messaging: recipient not found")
)

// Resolver finds or creates the conversation for a pair of profiles and
// appends messages to it.
type Resolver struct {
	store  store.DataStore
	feed   realtime.Feed
	logger zerolog.Logger
}

// NewResolver creates a Resolver. feed may be nil, in which case nothing is
// published.
func NewResolver(ds store.DataStore, feed realtime.Feed, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  ds,
		feed:   feed,
		logger: logger.With().Str("component", "messaging").Logger(),
	}
}

// SendDirectMessage appends content to the conversation between from and to,
// creating the conversation and both memberships on first contact. It returns
// the conversation id.
func (r *Resolver) SendDirectMessage(ctx context.Context, from, to uuid.UUID, content string) (int64, error) {
	dm, err := forms.NewDirectMessage(from, to, content)
	if err != nil {
		return 0, err
	}

	recipient, err := r.store.GetProfileByID(ctx, dm.To)
	if err != nil {
		return 0, fmt.Errorf("look up recipient: %w", err)
	}
	if recipient == nil {
		return 0, ErrRecipientNotFound
	}

	conv, err := r.store.FindDirectConversation(ctx, dm.From, dm.To)
	if err != nil {
		return 0, fmt.Errorf("find conversation: %w", err)
	}

	var msg *models.Message
	if conv != nil {
		msg, err = r.store.InsertMessage(ctx, conv.ID, dm.From, dm.Content)
		if err != nil {
			return 0, fmt.Errorf("insert message: %w", err)
		}
	} else {
		sent, err := r.store.CreateDirectConversation(ctx, dm.From, dm.To, dm.Content)
		if err != nil {
			return 0, fmt.Errorf("create conversation: %w", err)
		}
		if sent.Created {
			metrics.ConversationsCreated.Inc()
			r.logger.Info().
				Int64("conversation_id", sent.Conversation.ID).
				Str("from", dm.From.String()).
				Str("to", dm.To.String()).
				Msg("conversation created")
		}
		msg = &sent.Message
	}

	metrics.MessagesSent.WithLabelValues("direct").Inc()
	r.publish(ctx, realtime.RoomChannel(dm.From, dm.To), msg)
	return msg.ConversationID, nil
}

// SendToConversation appends content to an existing conversation the sender
// belongs to.
func (r *Resolver) SendToConversation(ctx context.Context, conversationID int64, senderID uuid.UUID, content string) (*models.Message, error) {
	in := forms.MessageInput{Content: content}
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	if err := r.requireMember(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	msg, err := r.store.InsertMessage(ctx, conversationID, senderID, in.Content)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues("conversation").Inc()

	channel, err := r.Channel(ctx, conversationID)
	if err != nil {
		r.logger.Warn().Err(err).Int64("conversation_id", conversationID).Msg("cannot resolve realtime channel")
		return msg, nil
	}
	r.publish(ctx, channel, msg)
	return msg, nil
}

// Messages returns the conversation's messages oldest first.
func (r *Resolver) Messages(ctx context.Context, conversationID int64, userID uuid.UUID) ([]models.Message, error) {
	if err := r.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := r.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Participant returns the other member of the conversation.
func (r *Resolver) Participant(ctx context.Context, conversationID int64, userID uuid.UUID) (*models.Participant, error) {
	if err := r.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	p, err := r.store.GetOtherParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if p == nil {
		return nil, store.ErrNotFound
	}
	return p, nil
}

// Conversations returns the user's inbox, most recently active first.
func (r *Resolver) Conversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	sums, err := r.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return sums, nil
}

// Authorize checks that userID belongs to the conversation.
func (r *Resolver) Authorize(ctx context.Context, conversationID int64, userID uuid.UUID) error {
	return r.requireMember(ctx, conversationID, userID)
}

// Channel returns the realtime channel of a conversation.
func (r *Resolver) Channel(ctx context.Context, conversationID int64) (string, error) {
	members, err := r.store.ListMembers(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("list members: %w", err)
	}
	if len(members) != 2 {
		return "", fmt.Errorf("conversation %d has %d members", conversationID, len(members))
	}
	return realtime.RoomChannel(members[0], members[1]), nil
}

func (r *Resolver) requireMember(ctx context.Context, conversationID int64, userID uuid.UUID) error {
	count, err := r.store.CountMembership(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if count == 0 {
		return ErrNotMember
	}
	return nil
}

// publish announces a new message. Failures are logged; the message is
// already stored.
func (r *Resolver) publish(ctx context.Context, channel string, msg *models.Message) {
	if r.feed == nil {
		return
	}

	e, err := realtime.NewEvent(realtime.EventInsert, realtime.TableMessages, msg)
	if err == nil {
		err = r.feed.Publish(ctx, channel, e)
	}
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("channel", channel).
			Int64("message_id", msg.ID).
			Msg("failed to publish message event")
	}
}
