// Package relay implements the stdin→chat relay engine.
//
// One goroutine reads lines and accumulates them into the current batch; a
// single sender goroutine delivers flushed batches in order, so at most one
// send is in flight per connection and messages arrive in input order. The
// bounded queue between them keeps reading off the network's critical path
// until the queue fills (backpressure).
//
// Batch state machine:
//
//	Idle → first line → Accumulating
//	Accumulating → size/byte/age threshold or EOF → Flushing
//	Flushing → Accumulating (more input) | Terminated (stream ended)
//
// Delivery failure policy is explicit: in strict mode a batch that exhausts
// its retry budget stops the engine and Run returns ErrDeliveryFailed; in
// best-effort mode (the default) the failure is logged and counted, and the
// engine moves on to the next batch. Cancellation (e.g. SIGINT) triggers a
// best-effort final flush bounded by a shutdown grace period.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/teleecho/internal/transport"
)

const (
	// maxLineBytes caps a single scanned line (1 MiB).
	maxLineBytes = 1 << 20

	// shutdownGrace bounds the final flush after cancellation.
	shutdownGrace = 10 * time.Second
)

// ErrDeliveryFailed means a batch could not be sent within the retry budget.
var ErrDeliveryFailed = errors.New("batch delivery failed")

// Config holds the relay tunables.
type Config struct {
	MaxLines   int           // flush after this many lines
	MaxBytes   int           // flush after this many accumulated bytes
	MaxAge     time.Duration // flush this long after the batch's first line
	QueueDepth int           // flushed batches buffered ahead of the sender
	Strict     bool          // stop on delivery failure instead of continuing
	Retry      RetryConfig
}

// DefaultConfig returns the standard relay settings: flush at 20 lines,
// 3500 bytes, or 1s of age, whichever fires first.
func DefaultConfig() Config {
	return Config{
		MaxLines:   20,
		MaxBytes:   3500,
		MaxAge:     1 * time.Second,
		QueueDepth: 4,
		Retry:      DefaultRetryConfig(),
	}
}

// Stats summarizes a completed relay run.
type Stats struct {
	Lines   int // lines flushed toward the sender
	Batches int // batches delivered
	Failed  int // batches that exhausted their retry budget
}

// batch is exclusively owned by the engine until flushed, then by the sender.
type batch struct {
	lines    []string
	bytes    int
	openedAt time.Time
}

// Engine relays a line stream to one chat.
type Engine struct {
	cfg       Config
	transport transport.Transport
	chatID    int64
}

// NewEngine creates a relay engine for the given chat. Zero config fields
// fall back to the defaults.
func NewEngine(t transport.Transport, chatID int64, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = def.MaxLines
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = def.Retry
	}
	return &Engine{cfg: cfg, transport: t, chatID: chatID}
}

// Run consumes r until EOF or cancellation, delivering batches to the chat.
// It always attempts a final flush before returning.
func (e *Engine) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats

	lines := make(chan string)
	readerStop := make(chan struct{})
	scanErr := make(chan error, 1)
	go readLines(r, lines, readerStop, scanErr)
	defer close(readerStop)

	// The sender runs on its own context so a canceled run can still
	// perform its final flush, bounded by shutdownGrace below.
	sendCtx, cancelSend := context.WithCancel(context.Background())
	defer cancelSend()

	batches := make(chan batch, e.cfg.QueueDepth)
	snd := &sender{
		engine: e,
		ctx:    sendCtx,
		fatal:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go snd.run(batches)

	var cur batch
	var ageTimer *time.Timer
	var ageC <-chan time.Time

	flush := func() {
		if len(cur.lines) == 0 {
			return
		}
		stats.Lines += len(cur.lines)
		batches <- cur
		cur = batch{}
		if ageTimer != nil {
			ageTimer.Stop()
			ageTimer = nil
			ageC = nil
		}
	}

	canceled := false
loop:
	for {
		select {
		case <-ctx.Done():
			canceled = true
			break loop

		case <-snd.fatal:
			break loop

		case <-ageC:
			ageC = nil
			flush()

		case line, ok := <-lines:
			if !ok {
				break loop // EOF
			}
			if len(cur.lines) == 0 {
				cur.openedAt = time.Now()
				ageTimer = time.NewTimer(e.cfg.MaxAge)
				ageC = ageTimer.C
			}
			cur.lines = append(cur.lines, line)
			cur.bytes += len(line) + 1
			if len(cur.lines) >= e.cfg.MaxLines || cur.bytes >= e.cfg.MaxBytes {
				flush()
			}
		}
	}

	if ageTimer != nil {
		ageTimer.Stop()
	}
	flush()
	close(batches)

	if canceled {
		// Give queued batches a bounded chance to drain, then cut off.
		select {
		case <-snd.done:
		case <-time.After(shutdownGrace):
			cancelSend()
			<-snd.done
		}
	} else {
		<-snd.done
	}

	stats.Batches = snd.stats.Batches
	stats.Failed = snd.stats.Failed

	if snd.err != nil {
		return stats, snd.err
	}
	if canceled {
		return stats, ctx.Err()
	}
	select {
	case err := <-scanErr:
		if err != nil {
			return stats, fmt.Errorf("read input: %w", err)
		}
	default:
	}
	return stats, nil
}

// readLines scans r line by line into out, closing out at EOF. The scan
// error, if any, is reported on errc before out closes.
func readLines(r io.Reader, out chan<- string, stop <-chan struct{}, errc chan<- error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-stop:
			return
		}
	}
	errc <- scanner.Err()
	close(out)
}

// sender delivers batches in order, one in flight at a time.
type sender struct {
	engine *Engine
	ctx    context.Context
	stats  Stats
	err    error         // set before done closes
	fatal  chan struct{} // closed on strict-mode failure
	done   chan struct{}
}

func (s *sender) run(batches <-chan batch) {
	defer close(s.done)

	aborted := false
	for b := range batches {
		if aborted {
			// Strict mode already failed; drain so the producer is
			// never blocked on the queue.
			slog.Debug("relay: discarding queued batch after abort", "lines", len(b.lines))
			continue
		}

		text := strings.Join(b.lines, "\n")
		attempts, err := retryWithBackoff(s.ctx, s.engine.cfg.Retry, func() error {
			return s.engine.transport.Send(s.ctx, s.engine.chatID, text)
		})
		if err == nil {
			s.stats.Batches++
			slog.Debug("relay: batch delivered",
				"lines", len(b.lines),
				"bytes", b.bytes,
				"attempts", attempts,
			)
			continue
		}

		s.stats.Failed++
		slog.Error("relay: batch delivery failed",
			"lines", len(b.lines),
			"attempts", attempts,
			"error", err,
		)
		if s.engine.cfg.Strict {
			s.err = fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, attempts, err)
			aborted = true
			close(s.fatal)
		}
	}
}
