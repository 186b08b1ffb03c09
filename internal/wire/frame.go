// ABOUTME: JSON frame types for the websocket data plane
// ABOUTME: Hello binds an identity, Submission submits a message, Delivery pushes one

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Hello is the first frame a client must send. It binds the connection to a
// user identity for the rest of its lifetime.
type Hello struct {
	UserID int64 `json:"user_id"`
}

// Ready acknowledges a successful handshake. Pending reports how many stored
// messages await the user; they are not pushed automatically.
type Ready struct {
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Pending int64  `json:"pending"`
}

// Submission is a client-originated message. Field names match the original
// wire protocol and the control-plane payload.
type Submission struct {
	SenderID        int64  `json:"sender_id"`
	RecipientID     int64  `json:"recipient_id"`
	MessageContents string `json:"message_contents"`
}

// Delivery is a recipient-addressed message pushed to a live connection.
type Delivery struct {
	Type            string    `json:"type"`
	MessageID       int64     `json:"message_id"`
	SenderID        int64     `json:"sender_id"`
	RecipientID     int64     `json:"recipient_id"`
	MessageContents string    `json:"message_contents"`
	CreatedAt       time.Time `json:"created_at"`
}

// Frame type values.
const (
	TypeReady   = "ready"
	TypeMessage = "message"
)

// ParseHello decodes a handshake frame. Unknown fields are rejected so a
// stray submission sent before the handshake fails loudly instead of binding
// a bogus identity.
func ParseHello(data []byte) (Hello, error) {
	var h Hello
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&h); err != nil {
		return Hello{}, fmt.Errorf("decoding hello frame: %w", err)
	}
	if h.UserID <= 0 {
		return Hello{}, fmt.Errorf("hello frame: user_id is required")
	}
	return h, nil
}

// ParseSubmission decodes and validates an inbound submission frame.
func ParseSubmission(data []byte) (Submission, error) {
	var s Submission
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Submission{}, fmt.Errorf("decoding submission frame: %w", err)
	}
	if s.SenderID <= 0 || s.RecipientID <= 0 {
		return Submission{}, fmt.Errorf("submission frame: sender_id and recipient_id are required")
	}
	if s.MessageContents == "" {
		return Submission{}, fmt.Errorf("submission frame: message_contents is required")
	}
	return s, nil
}
