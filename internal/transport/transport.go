// Package transport abstracts the chat API boundary to the two operations
// the pairing and relay engines need: send a text message, and poll for an
// incoming one.
package transport

import "context"

// Incoming is one received message.
type Incoming struct {
	ChatID int64  // chat to reply to (pairing binds this)
	Sender string // display name of the sender, for logs only
	Text   string
}

// Transport delivers and receives chat messages for one bot credential.
type Transport interface {
	// Send delivers text to the given chat.
	Send(ctx context.Context, chatID int64, text string) error
	// Poll returns the next incoming message, or nil if none arrived
	// within the poll window.
	Poll(ctx context.Context) (*Incoming, error)
}
