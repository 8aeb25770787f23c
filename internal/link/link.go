// Package link owns the MQTT connection: it drives connects through an
// explicit state machine with bounded backoff, re-applies subscriptions on
// every connect and hands out a boolean publish result.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrFailed is returned by Run when the retry budget is used up.
var ErrFailed = errors.New("link: connection attempts exhausted")

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 2 * time.Second
	disconnectQuiesceMS   = 250
	abortWait             = 2 * time.Second
)

// Handler receives messages for a subscribed topic.
type Handler func(topic string, payload []byte)

// Settings configure a Link.
type Settings struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// AvailabilityTopic, when set, carries a retained "online" on connect
	// and "offline" as Last Will and on clean shutdown.
	AvailabilityTopic string

	Backoff        Backoff
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)
}

// Link is a managed MQTT session.
type Link struct {
	client   mqtt.Client
	settings Settings
	logger   *slog.Logger

	lost chan error

	mu    sync.Mutex
	state State
	subs  map[string]Handler
}

// New builds a Link on a paho client. Paho's own reconnect logic is off:
// Run owns retries.
func New(s Settings, logger *slog.Logger) *Link {
	l := newLink(nil, s, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(s.Broker).
		SetClientID(s.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(l.settings.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.connectionLost(err)
		})
	if s.Username != "" {
		opts.SetUsername(s.Username).SetPassword(s.Password)
	}
	if s.AvailabilityTopic != "" {
		opts.SetWill(s.AvailabilityTopic, "offline", 1, true)
	}
	l.client = mqtt.NewClient(opts)
	return l
}

func newLink(client mqtt.Client, s Settings, logger *slog.Logger) *Link {
	if s.Backoff.Initial <= 0 {
		s.Backoff = DefaultBackoff
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = defaultConnectTimeout
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = defaultPublishTimeout
	}
	return &Link{
		client:   client,
		settings: s,
		logger:   logger.With("broker", s.Broker, "client_id", s.ClientID),
		lost:     make(chan error, 1),
		state:    Disconnected,
		subs:     make(map[string]Handler),
	}
}

// State returns the current link state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(to State) bool {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return true
	}
	if !canTransition(from, to) {
		l.mu.Unlock()
		l.logger.Error("mqtt link: illegal state transition", "from", from, "to", to)
		return false
	}
	l.state = to
	l.mu.Unlock()

	l.logger.Info("mqtt link state", "from", from, "to", to)
	if l.settings.OnStateChange != nil {
		l.settings.OnStateChange(from, to)
	}
	return true
}

// Run connects and keeps the link up until ctx is cancelled, in which case
// it disconnects cleanly and returns nil. It returns ErrFailed when
// Backoff.MaxAttempts consecutive attempts fail.
func (l *Link) Run(ctx context.Context) error {
	for {
		if err := l.connectWithRetry(ctx); err != nil {
			if errors.Is(err, ErrFailed) {
				return err
			}
			// Cancelled while connecting.
			if l.client.IsConnectionOpen() {
				l.client.Disconnect(0)
			}
			l.setState(Disconnected)
			return nil
		}

		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case err := <-l.lost:
			l.logger.Warn("mqtt connection lost", "error", err)
			l.setState(Disconnected)
		}
	}
}

func (l *Link) connectWithRetry(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		l.setState(Connecting)

		err := l.connect(ctx)
		if err == nil {
			l.setState(Connected)
			l.onConnected()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if l.settings.Backoff.Exhausted(attempt) {
			l.logger.Error("mqtt connect failed, giving up", "attempts", attempt, "error", err)
			l.setState(Failed)
			return fmt.Errorf("%w after %d attempts: %v", ErrFailed, attempt, err)
		}

		delay := l.settings.Backoff.Delay(attempt)
		l.logger.Warn("mqtt connect failed", "attempt", attempt, "retry_in", delay, "error", err)
		l.setState(Disconnected)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Link) connect(ctx context.Context) error {
	// Drop a stale loss signal from the previous session.
	select {
	case <-l.lost:
	default:
	}

	token := l.client.Connect()
	timer := time.NewTimer(l.settings.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		l.abortConnect(token)
		return fmt.Errorf("connect timed out after %s", l.settings.ConnectTimeout)
	case <-ctx.Done():
		l.abortConnect(token)
		return ctx.Err()
	}
}

// abortConnect stops an attempt that is still in flight and waits for its
// token so a late CONNACK can't leave a session open behind our back.
func (l *Link) abortConnect(token mqtt.Token) {
	l.client.Disconnect(0)
	if !token.WaitTimeout(abortWait) {
		l.logger.Warn("mqtt connect attempt did not stop", "wait", abortWait)
	}
	if l.client.IsConnectionOpen() {
		l.client.Disconnect(0)
	}
}

func (l *Link) onConnected() {
	if l.settings.AvailabilityTopic != "" {
		l.publishRetained(l.settings.AvailabilityTopic, "online")
	}

	l.mu.Lock()
	subs := make(map[string]Handler, len(l.subs))
	for topic, h := range l.subs {
		subs[topic] = h
	}
	l.mu.Unlock()

	for topic, h := range subs {
		l.subscribe(topic, h)
	}
}

func (l *Link) shutdown() {
	if l.settings.AvailabilityTopic != "" {
		l.publishRetained(l.settings.AvailabilityTopic, "offline")
	}
	l.client.Disconnect(disconnectQuiesceMS)
	l.setState(Disconnected)
}

func (l *Link) connectionLost(err error) {
	select {
	case l.lost <- err:
	default:
	}
}

func (l *Link) publishRetained(topic, payload string) {
	token := l.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(l.settings.PublishTimeout) {
		l.logger.Warn("mqtt availability publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		l.logger.Warn("mqtt availability publish error", "topic", topic, "error", err)
	}
}

// Publish sends payload on topic at QoS 0 and reports whether the broker
// accepted it. It returns false without trying when the link is down.
func (l *Link) Publish(topic string, payload []byte) bool {
	if l.State() != Connected {
		return false
	}
	token := l.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(l.settings.PublishTimeout) {
		return false
	}
	return token.Error() == nil
}

// Subscribe registers h for topic. The subscription is applied now if the
// link is up and again after every reconnect.
func (l *Link) Subscribe(topic string, h Handler) {
	l.mu.Lock()
	l.subs[topic] = h
	up := l.state == Connected
	l.mu.Unlock()

	if up {
		l.subscribe(topic, h)
	}
}

func (l *Link) subscribe(topic string, h Handler) {
	token := l.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(l.settings.PublishTimeout) {
		l.logger.Warn("mqtt subscribe timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		l.logger.Error("mqtt subscribe error", "topic", topic, "error", err)
		return
	}
	l.logger.Info("mqtt subscribed", "topic", topic)
}

// AwaitConnected blocks until the link is Connected, it Failed, or ctx ends.
func (l *Link) AwaitConnected(ctx context.Context) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		switch l.State() {
		case Connected:
			return nil
		case Failed:
			return ErrFailed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
