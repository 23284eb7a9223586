package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/teleecho/internal/transport"
)

// fakeTransport records sends and can be scripted to fail.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []string
	calls     int
	failFirst int  // fail this many Send calls, then succeed
	failAll   bool // fail every Send call
}

func (f *fakeTransport) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll || f.calls <= f.failFirst {
		return fmt.Errorf("send failed (call %d)", f.calls)
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) Poll(ctx context.Context) (*transport.Incoming, error) { return nil, nil }

func (f *fakeTransport) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func testConfig() Config {
	return Config{
		MaxLines:   3,
		MaxBytes:   1 << 20,
		MaxAge:     time.Minute, // effectively disabled
		QueueDepth: 4,
		Retry:      fastRetry(),
	}
}

func lines(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func TestBatchingByLineCount(t *testing.T) {
	ft := &fakeTransport{}
	engine := NewEngine(ft, 1, testConfig())

	stats, err := engine.Run(context.Background(), strings.NewReader(lines(10)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 10 lines at 3 per batch: 4 sends.
	sent := ft.snapshot()
	if len(sent) != 4 {
		t.Fatalf("expected 4 batches, got %d: %q", len(sent), sent)
	}
	if stats.Batches != 4 || stats.Lines != 10 || stats.Failed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// Every line exactly once, in order.
	joined := strings.Join(sent, "\n")
	want := strings.TrimSuffix(lines(10), "\n")
	if joined != want {
		t.Errorf("expected %q, got %q", want, joined)
	}
	if sent[0] != "line 1\nline 2\nline 3" {
		t.Errorf("unexpected first batch: %q", sent[0])
	}
	if sent[3] != "line 10" {
		t.Errorf("unexpected final partial batch: %q", sent[3])
	}
}

func TestEmptyInput(t *testing.T) {
	ft := &fakeTransport{}
	engine := NewEngine(ft, 1, testConfig())

	stats, err := engine.Run(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(ft.snapshot()) != 0 {
		t.Errorf("expected zero sends, got %q", ft.snapshot())
	}
	if stats.Batches != 0 || stats.Lines != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestByteThresholdFlush(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLines = 100
	cfg.MaxBytes = 20
	ft := &fakeTransport{}
	engine := NewEngine(ft, 1, cfg)

	input := "aaaaaaaaaa\nbbbbbbbbbb\ncccccccccc\n" // 11 bytes counted per line
	if _, err := engine.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}

	sent := ft.snapshot()
	if len(sent) != 2 {
		t.Fatalf("expected 2 batches, got %d: %q", len(sent), sent)
	}
	if sent[0] != "aaaaaaaaaa\nbbbbbbbbbb" || sent[1] != "cccccccccc" {
		t.Errorf("unexpected batches: %q", sent)
	}
}

func TestAgeFlush(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAge = 20 * time.Millisecond
	ft := &fakeTransport{}
	engine := NewEngine(ft, 1, cfg)

	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan struct{})
	var stats Stats
	var runErr error
	go func() {
		stats, runErr = engine.Run(context.Background(), pr)
		close(done)
	}()

	io.WriteString(pw, "early line\n")

	// The age threshold should flush without more input or EOF.
	deadline := time.Now().Add(2 * time.Second)
	for len(ft.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("age-based flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	io.WriteString(pw, "late line\n")
	pw.Close()
	<-done

	if runErr != nil {
		t.Fatalf("run: %v", runErr)
	}
	sent := ft.snapshot()
	if len(sent) != 2 || sent[0] != "early line" || sent[1] != "late line" {
		t.Errorf("unexpected batches: %q", sent)
	}
	if stats.Lines != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	ft := &fakeTransport{failFirst: 2}
	engine := NewEngine(ft, 1, testConfig())

	stats, err := engine.Run(context.Background(), strings.NewReader("hello\n"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Two failures then success: exactly one delivered message.
	sent := ft.snapshot()
	if len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("expected exactly one delivered batch, got %q", sent)
	}
	if ft.calls != 3 {
		t.Errorf("expected 3 send attempts, got %d", ft.calls)
	}
	if stats.Batches != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStrictModeAborts(t *testing.T) {
	cfg := testConfig()
	cfg.Strict = true
	ft := &fakeTransport{failAll: true}
	engine := NewEngine(ft, 1, cfg)

	stats, err := engine.Run(context.Background(), strings.NewReader(lines(30)))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if stats.Failed == 0 {
		t.Errorf("expected at least one failed batch, got %+v", stats)
	}
	if stats.Batches != 0 {
		t.Errorf("expected no delivered batches, got %+v", stats)
	}
}

func TestBestEffortContinues(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLines = 1
	cfg.Retry = RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	// First batch exhausts its 2 attempts; second batch succeeds.
	ft := &fakeTransport{failFirst: 2}
	engine := NewEngine(ft, 1, cfg)

	stats, err := engine.Run(context.Background(), strings.NewReader("first\nsecond\n"))
	if err != nil {
		t.Fatalf("best-effort run should not fail: %v", err)
	}

	sent := ft.snapshot()
	if len(sent) != 1 || sent[0] != "second" {
		t.Fatalf("expected only the second batch delivered, got %q", sent)
	}
	if stats.Failed != 1 || stats.Batches != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCancellationFlushesPartialBatch(t *testing.T) {
	ft := &fakeTransport{}
	engine := NewEngine(ft, 1, testConfig())

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = engine.Run(ctx, pr)
		close(done)
	}()

	io.WriteString(pw, "pending line\n")
	time.Sleep(50 * time.Millisecond) // let the line reach the accumulator
	cancel()
	<-done

	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	sent := ft.snapshot()
	if len(sent) != 1 || sent[0] != "pending line" {
		t.Errorf("expected final flush of the partial batch, got %q", sent)
	}
}
