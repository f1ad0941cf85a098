package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/David-Byun/wemake/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/wemake.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dbPath = sqliteDSNPath(dbPath)
	if dbPath == "" {
		dbPath = "./data/wemake.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		profile_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		avatar TEXT NOT NULL DEFAULT '',
		headline TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'developer',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id INTEGER PRIMARY KEY AUTOINCREMENT,
		pair_key TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id INTEGER NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
		profile_id TEXT NOT NULL REFERENCES profiles(profile_id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (conversation_id, profile_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL REFERENCES profiles(profile_id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		notification_id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		source_id TEXT REFERENCES profiles(profile_id) ON DELETE CASCADE,
		target_id TEXT NOT NULL REFERENCES profiles(profile_id) ON DELETE CASCADE,
		product_id INTEGER,
		post_id INTEGER,
		seen INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_profile ON conversation_members(profile_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_target ON notifications(target_id, seen);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteConstraint(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint
}

func now() time.Time {
	return time.Now().UTC()
}

// CreateProfile creates a new profile record.
func (s *SQLiteStore) CreateProfile(ctx context.Context, name, username string) (*models.Profile, error) {
	id := uuid.New()
	ts := now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (profile_id, name, username, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), name, username, string(models.RoleDeveloper), ts, ts)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	return s.GetProfileByID(ctx, id)
}

func (s *SQLiteStore) getProfile(ctx context.Context, where string, arg any) (*models.Profile, error) {
	p := &models.Profile{}
	var idStr, role string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id, name, username, avatar, headline, bio, role, created_at, updated_at
		FROM profiles WHERE `+where+` = ?
	`, arg).Scan(
		&idStr,
		&p.Name,
		&p.Username,
		&p.Avatar,
		&p.Headline,
		&p.Bio,
		&role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.Role = models.Role(role)
	return p, nil
}

// GetProfileByID retrieves a profile by ID.
func (s *SQLiteStore) GetProfileByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return s.getProfile(ctx, "profile_id", id.String())
}

// GetProfileByUsername retrieves a profile by username.
func (s *SQLiteStore) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	return s.getProfile(ctx, "username", username)
}

// UpdateProfile overwrites the editable profile fields.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET name = ?, role = ?, headline = ?, bio = ?, updated_at = ?
		WHERE profile_id = ?
	`, upd.Name, string(upd.Role), upd.Headline, upd.Bio, now(), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDirectConversation returns the conversation whose membership is exactly
// {a, b}, or nil when the pair has never talked.
func (s *SQLiteStore) FindDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT c.conversation_id, c.created_at
		FROM conversations c
		JOIN conversation_members m1 ON m1.conversation_id = c.conversation_id AND m1.profile_id = ?
		JOIN conversation_members m2 ON m2.conversation_id = c.conversation_id AND m2.profile_id = ?
		WHERE (SELECT COUNT(*) FROM conversation_members m WHERE m.conversation_id = c.conversation_id) = 2
		ORDER BY c.conversation_id
		LIMIT 1
	`, a.String(), b.String()).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// CreateDirectConversation creates the conversation for a pair, both
// memberships and the first message in one transaction.
func (s *SQLiteStore) CreateDirectConversation(ctx context.Context, from, to uuid.UUID, content string) (*DirectSend, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := &DirectSend{}
	ts := now()
	pairKey := models.PairKey(from, to)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (pair_key, created_at) VALUES (?, ?)
		ON CONFLICT (pair_key) DO NOTHING
	`, pairKey, ts)
	if err != nil {
		return nil, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	out.Created = inserted == 1

	err = tx.QueryRowContext(ctx, `
		SELECT conversation_id, created_at FROM conversations WHERE pair_key = ?
	`, pairKey).Scan(&out.Conversation.ID, &out.Conversation.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_members (conversation_id, profile_id, created_at)
		VALUES (?, ?, ?), (?, ?, ?)
		ON CONFLICT (conversation_id, profile_id) DO NOTHING
	`, out.Conversation.ID, from.String(), ts, out.Conversation.ID, to.String(), ts)
	if err != nil {
		return nil, err
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, out.Conversation.ID, from.String(), content, ts)
	if err != nil {
		return nil, err
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out.Message = models.Message{
		ID:             msgID,
		ConversationID: out.Conversation.ID,
		SenderID:       from,
		Content:        content,
		CreatedAt:      ts,
	}
	return out, nil
}

// CountMembership returns 1 when the profile belongs to the conversation.
func (s *SQLiteStore) CountMembership(ctx context.Context, conversationID int64, profileID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversation_members
		WHERE conversation_id = ? AND profile_id = ?
	`, conversationID, profileID.String()).Scan(&count)
	return count, err
}

// InsertMessage appends a message to a conversation.
func (s *SQLiteStore) InsertMessage(ctx context.Context, conversationID int64, senderID uuid.UUID, content string) (*models.Message, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, conversationID, senderID.String(), content, ts)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      ts,
	}, nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, message_id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg      models.Message
			senderID string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &senderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.SenderID = uuid.MustParse(senderID)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetOtherParticipant returns the member of a conversation that is not profileID.
func (s *SQLiteStore) GetOtherParticipant(ctx context.Context, conversationID int64, profileID uuid.UUID) (*models.Participant, error) {
	p := &models.Participant{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.profile_id, p.name, p.avatar
		FROM conversation_members m
		JOIN profiles p ON p.profile_id = m.profile_id
		WHERE m.conversation_id = ? AND m.profile_id <> ?
		LIMIT 1
	`, conversationID, profileID.String()).Scan(&idStr, &p.Name, &p.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	return p, nil
}

// ListMembers returns the profile ids of a conversation's members.
func (s *SQLiteStore) ListMembers(ctx context.Context, conversationID int64) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id FROM conversation_members
		WHERE conversation_id = ?
		ORDER BY profile_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		ids = append(ids, uuid.MustParse(idStr))
	}
	return ids, rows.Err()
}

// ListConversations returns the inbox of a profile, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, profileID uuid.UUID) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.conversation_id, c.created_at, p.profile_id, p.name, p.avatar,
		       m.content, m.created_at
		FROM conversation_members me
		JOIN conversations c ON c.conversation_id = me.conversation_id
		JOIN conversation_members other
		  ON other.conversation_id = c.conversation_id AND other.profile_id <> me.profile_id
		JOIN profiles p ON p.profile_id = other.profile_id
		LEFT JOIN messages m ON m.message_id = (
			SELECT message_id FROM messages
			WHERE conversation_id = c.conversation_id
			ORDER BY created_at DESC, message_id DESC
			LIMIT 1
		)
		WHERE me.profile_id = ?
		ORDER BY COALESCE(m.created_at, c.created_at) DESC
	`, profileID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var (
			sum       models.ConversationSummary
			createdAt time.Time
			otherID   string
			content   sql.NullString
			lastAt    sql.NullTime
		)
		err := rows.Scan(
			&sum.ConversationID,
			&createdAt,
			&otherID,
			&sum.Other.Name,
			&sum.Other.Avatar,
			&content,
			&lastAt,
		)
		if err != nil {
			return nil, err
		}
		sum.Other.ID = uuid.MustParse(otherID)
		sum.LastMessage = content.String
		sum.LastMessageAt = createdAt
		if lastAt.Valid {
			sum.LastMessageAt = lastAt.Time
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// CreateNotification inserts a notification for its target.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n NewNotification) (*models.Notification, error) {
	ts := now()

	var sourceID *string
	if n.SourceID != nil {
		str := n.SourceID.String()
		sourceID = &str
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (type, source_id, target_id, product_id, post_id, seen, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, string(n.Type), sourceID, n.TargetID.String(), n.ProductID, n.PostID, ts)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	out := &models.Notification{
		ID:        id,
		Type:      n.Type,
		TargetID:  n.TargetID,
		ProductID: n.ProductID,
		PostID:    n.PostID,
		CreatedAt: ts,
	}
	if n.SourceID != nil {
		out.Source = &models.Participant{ID: *n.SourceID}
	}
	return out, nil
}

// ListNotifications returns the notifications addressed to a profile, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, targetID uuid.UUID) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.notification_id, n.type, n.target_id, n.product_id, n.post_id, n.seen, n.created_at,
		       p.profile_id, p.name, p.avatar
		FROM notifications n
		LEFT JOIN profiles p ON p.profile_id = n.source_id
		WHERE n.target_id = ?
		ORDER BY n.created_at DESC, n.notification_id DESC
	`, targetID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n            models.Notification
			typ, target  string
			productID    sql.NullInt64
			postID       sql.NullInt64
			seen         int
			sourceID     sql.NullString
			sourceName   sql.NullString
			sourceAvatar sql.NullString
		)
		err := rows.Scan(
			&n.ID,
			&typ,
			&target,
			&productID,
			&postID,
			&seen,
			&n.CreatedAt,
			&sourceID,
			&sourceName,
			&sourceAvatar,
		)
		if err != nil {
			return nil, err
		}
		n.Type = models.NotificationType(typ)
		n.TargetID = uuid.MustParse(target)
		n.Seen = seen == 1
		if productID.Valid {
			n.ProductID = &productID.Int64
		}
		if postID.Valid {
			n.PostID = &postID.Int64
		}
		if sourceID.Valid {
			n.Source = &models.Participant{
				ID:     uuid.MustParse(sourceID.String),
				Name:   sourceName.String,
				Avatar: sourceAvatar.String,
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnseenNotifications counts notifications the target has not seen.
func (s *SQLiteStore) CountUnseenNotifications(ctx context.Context, targetID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE target_id = ? AND seen = 0
	`, targetID.String()).Scan(&count)
	return count, err
}

// MarkNotificationSeen flags a notification as seen. The update only matches
// notifications addressed to targetID.
func (s *SQLiteStore) MarkNotificationSeen(ctx context.Context, id int64, targetID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET seen = 1
		WHERE notification_id = ? AND target_id = ?
	`, id, targetID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// sqliteDSNPath strips an optional sqlite:// scheme from a path.
func sqliteDSNPath(dsn string) string {
	return strings.TrimPrefix(dsn, "sqlite://")
}
