package control

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandleLogsAndRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	counted := 0
	l := New(logger, func() { counted++ })
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	if _, ok := l.Last(); ok {
		t.Fatal("Last reported a message before any arrived")
	}

	payload := []byte("menu.main")
	l.Handle("block/menu", payload)
	payload[0] = 'X' // caller reuses its buffer

	out := buf.String()
	for _, want := range []string{"control message arrived", "topic=block/menu", "payload=menu.main", "payload_size=9"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}

	last, ok := l.Last()
	if !ok || last.Topic != "block/menu" || string(last.Payload) != "menu.main" || !last.ReceivedAt.Equal(fixed) {
		t.Errorf("Last = %+v, %v", last, ok)
	}
	if l.Received() != 1 || counted != 1 {
		t.Errorf("received=%d counted=%d", l.Received(), counted)
	}
}

func TestPrintable(t *testing.T) {
	if got := printable([]byte{0xff, 0xfe}); got != "<binary>" {
		t.Errorf("binary = %q", got)
	}
	long := strings.Repeat("a", maxLoggedPayload+10)
	if got := printable([]byte(long)); len(got) != maxLoggedPayload+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("long payload not truncated: len=%d", len(got))
	}
	// Truncation must not split a multi-byte rune.
	multi := strings.Repeat("a", maxLoggedPayload-1) + "é"
	if got := printable([]byte(multi)); !strings.HasSuffix(got, "a...") {
		t.Errorf("rune split: %q", got[len(got)-6:])
	}
}
