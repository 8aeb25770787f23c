package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type transitions struct {
	mu  sync.Mutex
	got []State
}

func (tr *transitions) record(_, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.got = append(tr.got, to)
}

func (tr *transitions) list() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.got...)
}

func testSettings(tr *transitions) Settings {
	return Settings{
		Broker:            "tcp://test:1883",
		ClientID:          "the_block",
		AvailabilityTopic: "block/data/availability",
		Backoff:           Backoff{Initial: time.Millisecond, Max: 4 * time.Millisecond, Multiplier: 2},
		ConnectTimeout:    time.Second,
		PublishTimeout:    time.Second,
		OnStateChange:     tr.record,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 2 * time.Second, Max: 30 * time.Second, Multiplier: 2}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := b.Delay(1000); got != 30*time.Second {
		t.Errorf("Delay(1000) = %v, want cap", got)
	}

	fixed := Backoff{Initial: time.Second}
	if got := fixed.Delay(5); got != time.Second {
		t.Errorf("fixed Delay(5) = %v", got)
	}
}

func TestBackoffExhausted(t *testing.T) {
	if (Backoff{}).Exhausted(1_000_000) {
		t.Error("zero MaxAttempts must never be exhausted")
	}
	b := Backoff{MaxAttempts: 3}
	if b.Exhausted(2) || !b.Exhausted(3) {
		t.Error("MaxAttempts=3 boundary wrong")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Disconnected: "disconnected", Connecting: "connecting",
		Connected: "connected", Failed: "failed", State(9): "state(9)",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestTransitions(t *testing.T) {
	legal := [][2]State{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Disconnected},
		{Connecting, Failed},
		{Connected, Disconnected},
	}
	for _, e := range legal {
		if !canTransition(e[0], e[1]) {
			t.Errorf("%s -> %s should be legal", e[0], e[1])
		}
	}
	illegal := [][2]State{
		{Disconnected, Connected},
		{Connected, Connecting},
		{Failed, Connecting},
		{Failed, Disconnected},
		{Disconnected, Failed},
	}
	for _, e := range illegal {
		if canTransition(e[0], e[1]) {
			t.Errorf("%s -> %s should be illegal", e[0], e[1])
		}
	}
}

func TestRunRetriesUntilConnected(t *testing.T) {
	tr := &transitions{}
	fc := newFakeClient(errors.New("refused"), errors.New("refused"))
	l := newLink(fc, testSettings(tr), discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, "connected", func() bool { return l.State() == Connected })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []State{Connecting, Disconnected, Connecting, Disconnected, Connecting, Connected, Disconnected}
	if got := tr.list(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}

	connects, pubs, _ := fc.snapshot()
	if connects != 3 {
		t.Errorf("connects = %d, want 3", connects)
	}
	if len(pubs) != 2 || pubs[0].payload != "online" || pubs[1].payload != "offline" || !pubs[0].retained {
		t.Errorf("availability publishes = %+v", pubs)
	}
}

func TestRunFailsAfterMaxAttempts(t *testing.T) {
	tr := &transitions{}
	s := testSettings(tr)
	s.Backoff.MaxAttempts = 3
	fc := newFakeClient(errors.New("a"), errors.New("b"), errors.New("c"), nil)
	l := newLink(fc, s, discard())

	err := l.Run(context.Background())
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("Run err = %v, want ErrFailed", err)
	}
	if l.State() != Failed {
		t.Errorf("state = %s, want failed", l.State())
	}
	if connects, _, _ := fc.snapshot(); connects != 3 {
		t.Errorf("connects = %d, want 3", connects)
	}
	if err := l.AwaitConnected(context.Background()); !errors.Is(err, ErrFailed) {
		t.Errorf("AwaitConnected = %v, want ErrFailed", err)
	}
	want := []State{Connecting, Disconnected, Connecting, Disconnected, Connecting, Failed}
	if got := tr.list(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestPublish(t *testing.T) {
	tr := &transitions{}
	fc := newFakeClient()
	l := newLink(fc, testSettings(tr), discard())

	if l.Publish("block/data", []byte(`{}`)) {
		t.Error("Publish succeeded while disconnected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	if err := l.AwaitConnected(ctx); err != nil {
		t.Fatal(err)
	}

	if !l.Publish("block/data", []byte(`{"accx":1}`)) {
		t.Error("Publish failed while connected")
	}
	_, pubs, _ := fc.snapshot()
	last := pubs[len(pubs)-1]
	if last.topic != "block/data" || last.qos != 0 || last.retained || last.payload != `{"accx":1}` {
		t.Errorf("published = %+v", last)
	}

	fc.mu.Lock()
	fc.publishErr = errors.New("not authorized")
	fc.mu.Unlock()
	if l.Publish("block/data", []byte(`{}`)) {
		t.Error("Publish reported success on broker error")
	}
}

func TestSubscribeReappliedAfterConnectionLoss(t *testing.T) {
	tr := &transitions{}
	fc := newFakeClient()
	l := newLink(fc, testSettings(tr), discard())

	var mu sync.Mutex
	var got []string
	l.Subscribe("block/menu", func(topic string, payload []byte) {
		mu.Lock()
		got = append(got, topic+":"+string(payload))
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	if err := l.AwaitConnected(ctx); err != nil {
		t.Fatal(err)
	}

	if !fc.deliver("block/menu", "hello") {
		t.Fatal("no handler registered for block/menu")
	}

	fc.mu.Lock()
	fc.connected = false
	fc.mu.Unlock()
	l.connectionLost(errors.New("EOF"))

	waitFor(t, "resubscribe", func() bool {
		connects, _, subs := fc.snapshot()
		return connects == 2 && len(subs) == 2 && l.State() == Connected
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "block/menu:hello" {
		t.Errorf("handler got %v", got)
	}
}

func TestSubscribeWhileConnected(t *testing.T) {
	tr := &transitions{}
	fc := newFakeClient()
	l := newLink(fc, testSettings(tr), discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	if err := l.AwaitConnected(ctx); err != nil {
		t.Fatal(err)
	}

	l.Subscribe("block/data", func(string, []byte) {})
	if _, _, subs := fc.snapshot(); len(subs) != 1 || subs[0] != "block/data" {
		t.Errorf("subscribed = %v", subs)
	}
}

func TestConnectTimeoutAbortsAttempt(t *testing.T) {
	tr := &transitions{}
	s := testSettings(tr)
	s.ConnectTimeout = 20 * time.Millisecond
	fc := newFakeClient()
	fc.hangs = 1
	l := newLink(fc, s, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, "connected", func() bool { return l.State() == Connected })
	if n := fc.disconnectCount(); n != 1 {
		t.Errorf("disconnects before connect = %d, want 1 (timed out attempt aborted)", n)
	}
	if connects, _, _ := fc.snapshot(); connects != 2 {
		t.Errorf("connects = %d, want 2", connects)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCancelDuringConnectAbortsAttempt(t *testing.T) {
	tr := &transitions{}
	fc := newFakeClient()
	fc.hangs = 1
	l := newLink(fc, testSettings(tr), discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, "connecting", func() bool { return l.State() == Connecting })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fc.IsConnected() {
		t.Error("session left open after cancel")
	}
	if n := fc.disconnectCount(); n == 0 {
		t.Error("in-flight connect was not aborted")
	}
	if l.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", l.State())
	}
}
