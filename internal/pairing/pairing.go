// Package pairing implements the handshake that binds a connection to a chat.
//
// A session works like this:
//  1. Generate a 6-digit verification code and show it to the operator
//  2. The operator sends the code to the bot from the target chat
//  3. Poll the transport until a message matching the code arrives
//  4. On match, bind the sender's chat ID and mark the connection active
//
// Codes are uniformly random (crypto/rand). Sessions expire after the
// configured timeout; an expired session leaves the record pending and a
// new session may be started with a fresh code.
package pairing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/nextlevelbuilder/teleecho/internal/store"
	"github.com/nextlevelbuilder/teleecho/internal/transport"
)

const codeSpace = 1_000_000 // 6 digits

var (
	// ErrPairingTimedOut means no matching message arrived before the
	// session deadline. The connection stays pending and may be re-paired.
	ErrPairingTimedOut = errors.New("pairing timed out")
	// ErrPairingFailed means the handshake could not run at all, e.g. the
	// bot credential was rejected by the chat API.
	ErrPairingFailed = errors.New("pairing failed")
	// ErrAlreadyPaired means the connection is already active.
	ErrAlreadyPaired = errors.New("connection is already paired")
)

// Config holds the pairing session tunables.
type Config struct {
	PollInterval time.Duration // delay between transport polls
	Timeout      time.Duration // session deadline
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Timeout:      3 * time.Minute,
	}
}

// Service drives pairing sessions against a store and a transport.
type Service struct {
	store     store.ConnectionStore
	transport transport.Transport
	cfg       Config
}

// NewService creates a pairing service. Zero config fields fall back to
// the defaults.
func NewService(st store.ConnectionStore, t transport.Transport, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Service{store: st, transport: t, cfg: cfg}
}

// Pair runs one pairing session for rec. notify is called once with the
// generated code so the caller can display it. On success the record is
// active and persisted; on timeout or cancellation it is left untouched.
func (s *Service) Pair(ctx context.Context, rec *store.ConnectionRecord, notify func(code string)) error {
	if rec.Active() {
		return fmt.Errorf("%w: %s", ErrAlreadyPaired, rec.Name)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}
	if notify != nil {
		notify(code)
	}

	slog.Info("pairing session started",
		"connection", rec.Name,
		"timeout", s.cfg.Timeout,
	)

	deadline := time.NewTimer(s.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline.C:
			slog.Info("pairing session expired", "connection", rec.Name)
			return fmt.Errorf("%w after %s", ErrPairingTimedOut, s.cfg.Timeout)

		case <-ticker.C:
			msg, err := s.transport.Poll(ctx)
			if err != nil {
				// Transient transport errors are retried until the deadline.
				slog.Debug("pairing: poll failed, retrying", "error", err)
				continue
			}
			if msg == nil {
				continue
			}
			if strings.TrimSpace(msg.Text) != code {
				slog.Info("pairing: ignoring non-matching message", "sender", msg.Sender)
				continue
			}
			return s.activate(ctx, rec, msg)
		}
	}
}

// activate binds the sender's chat to the record and persists it.
func (s *Service) activate(ctx context.Context, rec *store.ConnectionRecord, msg *transport.Incoming) error {
	rec.ChatID = msg.ChatID
	rec.State = store.StateActive
	rec.PairedAt = time.Now().UnixMilli()

	if err := s.store.Update(rec); err != nil {
		return fmt.Errorf("activate connection %s: %w", rec.Name, err)
	}

	slog.Info("pairing succeeded",
		"connection", rec.Name,
		"chat_id", rec.ChatID,
		"sender", msg.Sender,
	)

	// Confirmation is best-effort; the binding is already durable.
	ack := fmt.Sprintf("Pairing successful. This chat now receives output relayed through %q.", rec.Name)
	if err := s.transport.Send(ctx, msg.ChatID, ack); err != nil {
		slog.Debug("pairing: confirmation send failed", "error", err)
	}
	return nil
}

// generateCode returns a uniformly random 6-digit code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
