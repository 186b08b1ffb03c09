// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Bounded connection pool, parameterized queries, transactional message inserts

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Options tunes the pool and validation limits. Zero values take defaults.
type Options struct {
	// MaxConns caps concurrent connections to the database. Callers queue for
	// a free connection rather than opening new ones past the ceiling.
	MaxConns int

	// PoolTimeout bounds the wait for a pooled connection (and the operation
	// itself). Exceeding it surfaces as ErrStorageUnavailable.
	PoolTimeout time.Duration

	// MaxMessageBytes bounds the size of a message body.
	MaxMessageBytes int
}

const (
	defaultMaxConns        = 5
	defaultPoolTimeout     = 5 * time.Second
	defaultMaxMessageBytes = 4096
)

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = defaultMaxConns
	}
	if o.PoolTimeout <= 0 {
		o.PoolTimeout = defaultPoolTimeout
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	return o
}

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created if it doesn't exist. Parent directories are created
// if needed. Use ":memory:" for tests.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")
	opts = opts.withDefaults()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must stay at
	// a single connection or each one sees an empty schema.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		opts:   opts,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "max_conns", opts.MaxConns)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL REFERENCES users(id),
			recipient_id INTEGER NOT NULL REFERENCES users(id),
			message_contents TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,

			CHECK (status IN ('pending', 'delivered', 'undeliverable')),
			CHECK (sender_id != recipient_id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_recipient_status
			ON messages(recipient_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// opContext bounds an operation by the pool-acquire timeout.
func (s *SQLiteStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.PoolTimeout)
}

// classify maps driver-level failures onto the store error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		return err
	}
}

// CreateUser persists a new user and returns the stored row.
func (s *SQLiteStore) CreateUser(ctx context.Context, firstName, lastName string) (*User, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrValidation)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, created_at) VALUES (?, ?, ?)`,
		firstName, lastName, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", classify(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading generated user id: %w", err)
	}

	s.logger.Debug("user created", "user_id", id)
	return &User{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
	}, nil
}

// GetUser returns the user with the given id.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// CreateMessage persists a message as one atomic unit: sender and recipient
// existence checks, the insert, and the read-back of the generated row all
// happen in a single transaction.
func (s *SQLiteStore) CreateMessage(ctx context.Context, senderID, recipientID int64, contents string) (*Message, error) {
	if contents == "" {
		return nil, fmt.Errorf("%w: message contents are required", ErrValidation)
	}
	if len(contents) > s.opts.MaxMessageBytes {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrValidation, s.opts.MaxMessageBytes)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: sender and recipient must differ", ErrValidation)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", classify(err))
	}
	defer tx.Rollback()

	for _, id := range []int64{senderID, recipientID} {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("checking user %d: %w", id, classify(err))
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (sender_id, recipient_id, message_contents, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		senderID, recipientID, contents, StatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", classify(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading generated message id: %w", err)
	}

	var m Message
	err = tx.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id, message_contents, status, created_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Contents, &m.Status, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading persisted message: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", classify(err))
	}

	s.logger.Debug("message persisted",
		"message_id", m.ID,
		"sender_id", m.SenderID,
		"recipient_id", m.RecipientID,
	)
	return &m, nil
}

// GetMessage returns the message with the given id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var m Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id, message_contents, status, created_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Contents, &m.Status, &m.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &m, nil
}

// MarkDelivered records the outcome of a delivery attempt.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, messageID int64, status string) error {
	if status != StatusDelivered && status != StatusUndeliverable {
		return fmt.Errorf("%w: status must be %q or %q", ErrValidation, StatusDelivered, StatusUndeliverable)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ?`, status, messageID,
	)
	if err != nil {
		return fmt.Errorf("updating message status: %w", classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPending returns the number of pending messages addressed to recipientID.
func (s *SQLiteStore) CountPending(ctx context.Context, recipientID int64) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND status = ?`,
		recipientID, StatusPending,
	).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Close closes the underlying database pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
