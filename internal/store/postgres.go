package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
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

func observe(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

// CreateMessage appends a message to the log.
func (s *PostgresStore) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	if err := validateMessage(m); err != nil {
		return nil, err
	}
	defer observe(time.Now())

	created := *m
	created.IsRead = false
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (sender_id, recipient_id, content, kind, duration)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, created.SenderID, created.RecipientID, created.Content, string(created.Kind), created.Duration).Scan(
		&created.ID,
		&created.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

const pgMessageColumns = `
	m.id, m.sender_id, m.recipient_id, m.content, m.kind, m.duration, m.is_read, m.created_at,
	su.id, su.username, ru.id, ru.username
	FROM messages m
	LEFT JOIN users su ON su.id = m.sender_id
	LEFT JOIN users ru ON ru.id = m.recipient_id`

// FindMessagesByUser returns the user's messages, newest first.
func (s *PostgresStore) FindMessagesByUser(ctx context.Context, userID int64) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+pgMessageColumns+`
		WHERE m.sender_id = $1 OR m.recipient_id = $1
		ORDER BY m.created_at DESC, m.id DESC
	`, userID)
}

// FindMessagesBetween returns a conversation, oldest first.
func (s *PostgresStore) FindMessagesBetween(ctx context.Context, a, b int64) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+pgMessageColumns+`
		WHERE (m.sender_id = $1 AND m.recipient_id = $2) OR (m.sender_id = $2 AND m.recipient_id = $1)
		ORDER BY m.created_at ASC, m.id ASC
	`, a, b)
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	defer observe(time.Now())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			m                    models.Message
			kind                 string
			senderID, recvID     *int64
			senderName, recvName *string
		)
		err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.RecipientID,
			&m.Content,
			&kind,
			&m.Duration,
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
		m.Sender = userProfile(senderID, senderName)
		m.Recipient = userProfile(recvID, recvName)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkReadBulk flips every unread fromUser -> toUser message in one statement.
func (s *PostgresStore) MarkReadBulk(ctx context.Context, fromUser, toUser int64) (int64, error) {
	defer observe(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE sender_id = $1 AND recipient_id = $2 AND is_read = FALSE
	`, fromUser, toUser)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindUser retrieves a user by ID.
func (s *PostgresStore) FindUser(ctx context.Context, id int64) (*models.User, error) {
	defer observe(time.Now())

	u := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// ListUsers returns every known user ordered by id.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	defer observe(time.Now())

	rows, err := s.pool.Query(ctx, `
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
func (s *PostgresStore) UpsertUser(ctx context.Context, u models.User) error {
	defer observe(time.Now())

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			updated_at = NOW()
	`, u.ID, u.Username, u.Email)
	return err
}

// Stats returns store-wide totals.
func (s *PostgresStore) Stats(ctx context.Context) (*models.Stats, error) {
	defer observe(time.Now())

	st := &models.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE is_read = FALSE),
			(SELECT MAX(created_at) FROM messages)
	`).Scan(&st.TotalUsers, &st.TotalMessages, &st.UnreadTotal, &st.LastActivity)
	if err != nil {
		return nil, err
	}
	return st, nil
}
