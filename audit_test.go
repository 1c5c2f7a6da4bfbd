package twofa

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func buildAuditTestEngine(t *testing.T, cfg Config, sink AuditSink) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	provider := newMockAccountProvider()
	provider.put("u1", "alice@example.com", "correct-horse")

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(provider).
		WithAuditSink(sink).
		Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	engine, done := buildAuditTestEngine(t, cfg, sink)
	defer done()

	_, _ = engine.Authenticate(WithClientIP(context.Background(), "203.0.113.1"), AuthRequest{
		AccountID: "u1",
		Password:  "wrong-password",
	})
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = true

	sink := newCaptureSink(8)
	engine, done := buildAuditTestEngine(t, cfg, sink)
	defer done()

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	_, err := engine.Authenticate(ctx, AuthRequest{
		AccountID: "u1",
		Password:  "correct-horse",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	select {
	case ev := <-sink.events:
		if ev.EventType == "" {
			t.Fatal("expected event type to be populated")
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
		}
		if ev.AccountID != "u1" {
			t.Fatalf("expected account u1, got %q", ev.AccountID)
		}
		if ev.Error == "correct-horse" {
			t.Fatal("sensitive password leaked in error")
		}
		for _, v := range ev.Metadata {
			if v == "correct-horse" {
				t.Fatal("sensitive password leaked in metadata")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		AccountID: "u1",
		IP:        "127.0.0.1",
		Success:   true,
	}
	sink.Emit(context.Background(), event)

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains("\"account_id\":\"u1\"") {
		t.Fatal("expected JSON log line to contain account id")
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false

	sensitivePassword := "correct-horse"

	sink := newCaptureSink(64)
	engine, done := buildAuditTestEngine(t, cfg, sink)
	defer done()

	ctx := context.Background()
	secret, codes := enrollTwoFactor(t, engine, "u1", sensitivePassword)

	if _, err := engine.Authenticate(ctx, AuthRequest{
		AccountID:    "u1",
		Password:     sensitivePassword,
		SecondFactor: codeForStep(t, secret, engine.config.TOTP, 1),
	}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	secretNeedles := []string{sensitivePassword, secret}
	secretNeedles = append(secretNeedles, codes...)

	// Collect a bounded number of audit events generated by the operations above.
	events := make([]AuditEvent, 0, 16)
	timeout := time.After(2 * time.Second)
collectLoop:
	for len(events) < 16 {
		select {
		case ev := <-sink.events:
			events = append(events, ev)
		case <-timeout:
			break collectLoop
		}
	}

	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		for _, needle := range secretNeedles {
			if needle == "" {
				continue
			}
			if stringContains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if stringContains(k, needle) || stringContains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return stringContains(string(b.buf), v)
}

func stringContains(s, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	if len(sub) > len(s) {
		return false
	}
	for i := 0; i <= len(s)-len(sub); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
