package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chato.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chato.db"
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
	// one writer at a time
	db.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		recipient_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text' CHECK (kind IN ('text', 'voice')),
		duration REAL CHECK (duration IS NULL OR duration > 0),
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		CHECK (sender_id <> recipient_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(recipient_id, sender_id) WHERE is_read = 0;
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

// CreateMessage appends a message to the log.
func (s *SQLiteStore) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	if err := validateMessage(m); err != nil {
		return nil, err
	}

	created := *m
	created.IsRead = false
	created.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (sender_id, recipient_id, content, kind, duration, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, created.SenderID, created.RecipientID, created.Content, string(created.Kind), created.Duration, created.CreatedAt)
	if err != nil {
		return nil, err
	}

	created.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &created, nil
}

const sqliteMessageColumns = `
	m.id, m.sender_id, m.recipient_id, m.content, m.kind, m.duration, m.is_read, m.created_at,
	su.id, su.username, ru.id, ru.username
	FROM messages m
	LEFT JOIN users su ON su.id = m.sender_id
	LEFT JOIN users ru ON ru.id = m.recipient_id`

// FindMessagesByUser returns the user's messages, newest first.
func (s *SQLiteStore) FindMessagesByUser(ctx context.Context, userID int64) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+sqliteMessageColumns+`
		WHERE m.sender_id = ? OR m.recipient_id = ?
		ORDER BY m.created_at DESC, m.id DESC
	`, userID, userID)
}

// FindMessagesBetween returns a conversation, oldest first.
func (s *SQLiteStore) FindMessagesBetween(ctx context.Context, a, b int64) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+sqliteMessageColumns+`
		WHERE (m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?)
		ORDER BY m.created_at ASC, m.id ASC
	`, a, b, b, a)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			m                    models.Message
			kind                 string
			duration             sql.NullFloat64
			senderID, recvID     sql.NullInt64
			senderName, recvName sql.NullString
		)
		err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.RecipientID,
			&m.Content,
			&kind,
			&duration,
			&m.IsRead,
			&m.CreatedAt,
			&senderID,
			&senderName,
			&recvID,
			&recvName,
		)
		if err != nil {
			return nil, err
		}
		m.Kind = models.Kind(kind)
		if duration.Valid {
			d := duration.Float64
			m.Duration = &d
		}
		m.Sender = userProfile(nullInt(senderID), nullString(senderName))
		m.Recipient = userProfile(nullInt(recvID), nullString(recvName))
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkReadBulk flips every unread fromUser -> toUser message in one statement.
func (s *SQLiteStore) MarkReadBulk(ctx context.Context, fromUser, toUser int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE sender_id = ? AND recipient_id = ? AND is_read = 0
	`, fromUser, toUser)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindUser retrieves a user by ID.
func (s *SQLiteStore) FindUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// ListUsers returns every known user ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, created_at, updated_at
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertUser inserts a user or refreshes its non-empty profile fields.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u models.User) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			updated_at = excluded.updated_at
	`, u.ID, u.Username, u.Email, now, now)
	return err
}

// Stats returns store-wide totals.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE is_read = 0)
	`).Scan(&st.TotalUsers, &st.TotalMessages, &st.UnreadTotal)
	if err != nil {
		return nil, err
	}

	// MAX() loses the column type, so read the newest row instead.
	var last time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		st.LastActivity = &last
	}
	return st, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
