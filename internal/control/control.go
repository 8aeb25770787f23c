// Package control handles the inbound control topic. Messages are logged
// and counted; they do not change producer behaviour.
package control

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// maxLoggedPayload bounds how much of a payload ends up in the log.
const maxLoggedPayload = 256

// Message is the last control message seen.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Listener logs control messages. The zero value is not usable; call New.
type Listener struct {
	logger  *slog.Logger
	onCount func()
	now     func() time.Time

	mu       sync.Mutex
	last     Message
	received int
}

// New returns a Listener. onMessage, if non-nil, is called once per message
// (used for metrics).
func New(logger *slog.Logger, onMessage func()) *Listener {
	return &Listener{
		logger:  logger,
		onCount: onMessage,
		now:     time.Now,
	}
}

// Handle is the subscription callback for the control topic.
func (l *Listener) Handle(topic string, payload []byte) {
	msg := Message{
		Topic:      topic,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: l.now(),
	}

	l.mu.Lock()
	l.last = msg
	l.received++
	l.mu.Unlock()

	l.logger.Info("control message arrived",
		"topic", topic,
		"payload", printable(payload),
		"payload_size", len(payload),
	)
	if l.onCount != nil {
		l.onCount()
	}
}

// Last returns the most recent message and whether one has arrived.
func (l *Listener) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.received > 0
}

// Received returns how many messages have arrived.
func (l *Listener) Received() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received
}

// printable truncates long payloads and masks non-UTF-8 ones.
func printable(b []byte) string {
	if !utf8.Valid(b) {
		return "<binary>"
	}
	if len(b) > maxLoggedPayload {
		b = b[:maxLoggedPayload]
		for !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
		return string(b) + "..."
	}
	return string(b)
}
