package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/David-Byun/wemake/internal/metrics"
	"github.com/David-Byun/wemake/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ DataStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observePostgres(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const pgProfileColumns = `profile_id, name, username, COALESCE(avatar, ''), COALESCE(headline, ''),
	COALESCE(bio, ''), role, created_at, updated_at`

func scanPgProfile(row pgx.Row) (*models.Profile, error) {
	p := &models.Profile{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Username,
		&p.Avatar,
		&p.Headline,
		&p.Bio,
		&p.Role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// CreateProfile creates a new profile record.
func (s *PostgresStore) CreateProfile(ctx context.Context, name, username string) (*models.Profile, error) {
	defer observePostgres(time.Now())

	p, err := scanPgProfile(s.pool.QueryRow(ctx, `
		INSERT INTO profiles (name, username)
		VALUES ($1, $2)
		RETURNING `+pgProfileColumns,
		name, username))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return p, nil
}

// GetProfileByID retrieves a profile by ID.
func (s *PostgresStore) GetProfileByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	defer observePostgres(time.Now())

	return scanPgProfile(s.pool.QueryRow(ctx, `
		SELECT `+pgProfileColumns+`
		FROM profiles WHERE profile_id = $1
	`, id))
}

// GetProfileByUsername retrieves a profile by username.
func (s *PostgresStore) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	defer observePostgres(time.Now())

	return scanPgProfile(s.pool.QueryRow(ctx, `
		SELECT `+pgProfileColumns+`
		FROM profiles WHERE username = $1
	`, username))
}

// UpdateProfile overwrites the editable profile fields.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET name = $2, role = $3, headline = $4, bio = $5, updated_at = NOW()
		WHERE profile_id = $1
	`, id, upd.Name, upd.Role, upd.Headline, upd.Bio)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDirectConversation returns the conversation whose membership is exactly
// {a, b}, or nil when the pair has never talked.
func (s *PostgresStore) FindDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	defer observePostgres(time.Now())

	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT c.conversation_id, c.created_at
		FROM conversations c
		JOIN conversation_members m1 ON m1.conversation_id = c.conversation_id AND m1.profile_id = $1
		JOIN conversation_members m2 ON m2.conversation_id = c.conversation_id AND m2.profile_id = $2
		WHERE (SELECT COUNT(*) FROM conversation_members m WHERE m.conversation_id = c.conversation_id) = 2
		ORDER BY c.conversation_id
		LIMIT 1
	`, a, b).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// CreateDirectConversation creates the conversation for a pair, both
// memberships and the first message in one transaction. When another writer
// created the pair's conversation first, the message lands in that one.
func (s *PostgresStore) CreateDirectConversation(ctx context.Context, from, to uuid.UUID, content string) (*DirectSend, error) {
	defer observePostgres(time.Now())

	out := &DirectSend{}
	pairKey := models.PairKey(from, to)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO conversations (pair_key)
			VALUES ($1)
			ON CONFLICT (pair_key) DO NOTHING
			RETURNING conversation_id, created_at
		`, pairKey).Scan(&out.Conversation.ID, &out.Conversation.CreatedAt)
		switch {
		case err == nil:
			out.Created = true
		case errors.Is(err, pgx.ErrNoRows):
			err = tx.QueryRow(ctx, `
				SELECT conversation_id, created_at FROM conversations WHERE pair_key = $1
			`, pairKey).Scan(&out.Conversation.ID, &out.Conversation.CreatedAt)
			if err != nil {
				return err
			}
		default:
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_members (conversation_id, profile_id)
			VALUES ($1, $2), ($1, $3)
			ON CONFLICT (conversation_id, profile_id) DO NOTHING
		`, out.Conversation.ID, from, to)
		if err != nil {
			return err
		}

		msg := &out.Message
		return tx.QueryRow(ctx, `
			INSERT INTO messages (conversation_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING message_id, conversation_id, sender_id, content, created_at
		`, out.Conversation.ID, from, content).Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Content,
			&msg.CreatedAt,
		)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountMembership returns 1 when the profile belongs to the conversation.
func (s *PostgresStore) CountMembership(ctx context.Context, conversationID int64, profileID uuid.UUID) (int64, error) {
	defer observePostgres(time.Now())

	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversation_members
		WHERE conversation_id = $1 AND profile_id = $2
	`, conversationID, profileID).Scan(&count)
	return count, err
}

// InsertMessage appends a message to a conversation.
func (s *PostgresStore) InsertMessage(ctx context.Context, conversationID int64, senderID uuid.UUID, content string) (*models.Message, error) {
	defer observePostgres(time.Now())

	msg := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING message_id, conversation_id, sender_id, content, created_at
	`, conversationID, senderID, content).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, message_id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetOtherParticipant returns the member of a conversation that is not profileID.
func (s *PostgresStore) GetOtherParticipant(ctx context.Context, conversationID int64, profileID uuid.UUID) (*models.Participant, error) {
	defer observePostgres(time.Now())

	p := &models.Participant{}
	err := s.pool.QueryRow(ctx, `
		SELECT p.profile_id, p.name, COALESCE(p.avatar, '')
		FROM conversation_members m
		JOIN profiles p ON p.profile_id = m.profile_id
		WHERE m.conversation_id = $1 AND m.profile_id <> $2
		LIMIT 1
	`, conversationID, profileID).Scan(&p.ID, &p.Name, &p.Avatar)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListMembers returns the profile ids of a conversation's members.
func (s *PostgresStore) ListMembers(ctx context.Context, conversationID int64) ([]uuid.UUID, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT profile_id FROM conversation_members
		WHERE conversation_id = $1
		ORDER BY profile_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListConversations returns the inbox of a profile, most recent first.
func (s *PostgresStore) ListConversations(ctx context.Context, profileID uuid.UUID) ([]models.ConversationSummary, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT c.conversation_id, p.profile_id, p.name, COALESCE(p.avatar, ''),
		       last.content, COALESCE(last.created_at, c.created_at)
		FROM conversation_members me
		JOIN conversations c ON c.conversation_id = me.conversation_id
		JOIN conversation_members other
		  ON other.conversation_id = c.conversation_id AND other.profile_id <> me.profile_id
		JOIN profiles p ON p.profile_id = other.profile_id
		LEFT JOIN LATERAL (
			SELECT content, created_at FROM messages
			WHERE conversation_id = c.conversation_id
			ORDER BY created_at DESC, message_id DESC
			LIMIT 1
		) last ON TRUE
		WHERE me.profile_id = $1
		ORDER BY 6 DESC
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var (
			sum     models.ConversationSummary
			content *string
		)
		err := rows.Scan(
			&sum.ConversationID,
			&sum.Other.ID,
			&sum.Other.Name,
			&sum.Other.Avatar,
			&content,
			&sum.LastMessageAt,
		)
		if err != nil {
			return nil, err
		}
		if content != nil {
			sum.LastMessage = *content
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// CreateNotification inserts a notification for its target.
func (s *PostgresStore) CreateNotification(ctx context.Context, n NewNotification) (*models.Notification, error) {
	defer observePostgres(time.Now())

	out := &models.Notification{
		Type:      n.Type,
		TargetID:  n.TargetID,
		ProductID: n.ProductID,
		PostID:    n.PostID,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (type, source_id, target_id, product_id, post_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING notification_id, seen, created_at
	`, n.Type, n.SourceID, n.TargetID, n.ProductID, n.PostID).Scan(&out.ID, &out.Seen, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	if n.SourceID != nil {
		out.Source = &models.Participant{ID: *n.SourceID}
	}
	return out, nil
}

// ListNotifications returns the notifications addressed to a profile, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, targetID uuid.UUID) ([]models.Notification, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT n.notification_id, n.type, n.target_id, n.product_id, n.post_id, n.seen, n.created_at,
		       p.profile_id, p.name, p.avatar
		FROM notifications n
		LEFT JOIN profiles p ON p.profile_id = n.source_id
		WHERE n.target_id = $1
		ORDER BY n.created_at DESC, n.notification_id DESC
	`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n            models.Notification
			sourceID     *uuid.UUID
			sourceName   *string
			sourceAvatar *string
		)
		err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.TargetID,
			&n.ProductID,
			&n.PostID,
			&n.Seen,
			&n.CreatedAt,
			&sourceID,
			&sourceName,
			&sourceAvatar,
		)
		if err != nil {
			return nil, err
		}
		if sourceID != nil {
			n.Source = &models.Participant{ID: *sourceID}
			if sourceName != nil {
				n.Source.Name = *sourceName
			}
			if sourceAvatar != nil {
				n.Source.Avatar = *sourceAvatar
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnseenNotifications counts notifications the target has not seen.
func (s *PostgresStore) CountUnseenNotifications(ctx context.Context, targetID uuid.UUID) (int64, error) {
	defer observePostgres(time.Now())

	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE target_id = $1 AND seen = FALSE
	`, targetID).Scan(&count)
	return count, err
}

// MarkNotificationSeen flags a notification as seen. The update only matches
// notifications addressed to targetID.
func (s *PostgresStore) MarkNotificationSeen(ctx context.Context, id int64, targetID uuid.UUID) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET seen = TRUE
		WHERE notification_id = $1 AND target_id = $2
	`, id, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
