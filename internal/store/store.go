// Package store defines the connection registry: named bindings between a
// Telegram bot token and the chat it delivers to.
package store

import "errors"

var (
	// ErrDuplicateName is returned by Create when the name is already taken.
	ErrDuplicateName = errors.New("connection name already exists")
	// ErrNotFound is returned when no connection matches the given name,
	// or by GetDefault when the store is empty.
	ErrNotFound = errors.New("connection not found")
	// ErrAmbiguousConnection is returned by GetDefault when more than one
	// connection exists and none was named.
	ErrAmbiguousConnection = errors.New("multiple connections exist, specify one by name")
	// ErrConnectionNotPaired is returned when a relay is attempted on a
	// connection that has not completed pairing.
	ErrConnectionNotPaired = errors.New("connection is not paired yet")
)

// State is the pairing state of a connection.
type State string

const (
	// StatePending means the connection has a token but no bound chat yet.
	StatePending State = "pending"
	// StateActive means pairing succeeded and the chat ID is set.
	StateActive State = "active"
)

// ConnectionRecord is one named token→chat binding.
// Invariant: ChatID != 0 exactly when State == StateActive. The record is
// created pending and activated at most once, by the pairing engine.
type ConnectionRecord struct {
	Name      string `json:"name"`
	Token     string `json:"token"`
	ChatID    int64  `json:"chat_id,omitempty"`
	State     State  `json:"state"`
	CreatedAt int64  `json:"created_at"` // unix millis
	PairedAt  int64  `json:"paired_at,omitempty"`
}

// Active reports whether the connection has a bound chat.
func (r *ConnectionRecord) Active() bool {
	return r.State == StateActive
}

// ConnectionStore persists connection records keyed by name.
type ConnectionStore interface {
	// Create adds a new pending record. Fails with ErrDuplicateName.
	Create(name, token string) (*ConnectionRecord, error)
	// Get returns the record with the given name. Fails with ErrNotFound.
	Get(name string) (*ConnectionRecord, error)
	// GetDefault returns the sole record. Fails with ErrNotFound when the
	// store is empty and ErrAmbiguousConnection when it holds several.
	GetDefault() (*ConnectionRecord, error)
	// Update persists a mutated record. Fails with ErrNotFound.
	Update(rec *ConnectionRecord) error
	// Remove deletes the record with the given name. Fails with ErrNotFound.
	Remove(name string) error
	// List returns all records sorted by name.
	List() ([]ConnectionRecord, error)
}
