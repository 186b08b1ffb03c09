// ABOUTME: Store interface and data types for chat-rs persistence
// ABOUTME: Defines User, Message structs and the error taxonomy for storage operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned for bad caller input. Callers must not retry
// without changing the request.
var ErrValidation = errors.New("invalid input")

// ErrStorageUnavailable is returned when a connection could not be obtained
// from the pool within the bounded wait. Safe to retry with backoff.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Delivery status values for a Message.
const (
	StatusPending       = "pending"       // persisted, no delivery attempt has resolved it
	StatusDelivered     = "delivered"     // at least one live connection accepted the frame
	StatusUndeliverable = "undeliverable" // every push to a live connection failed
)

// User is a registered identity. The id is assigned by the store on creation
// and immutable thereafter.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// Message is a durable user-to-user message. A Message row exists before any
// delivery attempt is made; delivery only ever updates Status.
type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Contents    string
	Status      string
	CreatedAt   time.Time
}

// Store defines the persistence contract for users and messages.
type Store interface {
	// CreateUser persists a new user. First and last name must be non-empty
	// after trimming.
	CreateUser(ctx context.Context, firstName, lastName string) (*User, error)

	// GetUser returns the user with the given id, or ErrNotFound.
	GetUser(ctx context.Context, id int64) (*User, error)

	// CreateMessage persists a message in a single transaction: both
	// identities are verified and the generated row is read back atomically,
	// so a caller never observes a Message without a valid id.
	CreateMessage(ctx context.Context, senderID, recipientID int64, contents string) (*Message, error)

	// GetMessage returns the message with the given id, or ErrNotFound.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// MarkDelivered records the outcome of a delivery attempt. Idempotent:
	// setting the same status twice is a no-op. Only StatusDelivered and
	// StatusUndeliverable are accepted.
	MarkDelivered(ctx context.Context, messageID int64, status string) error

	// CountPending returns how many pending messages are addressed to the
	// given recipient.
	CountPending(ctx context.Context, recipientID int64) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
