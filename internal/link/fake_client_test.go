package link

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	d := make(chan struct{})
	close(d)
	return &fakeToken{err: err, done: d}
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

var errAborted = errors.New("connect aborted by disconnect")

// fakeClient implements mqtt.Client. connectErrs is consumed one entry per
// Connect call; once empty, Connect succeeds. The first hangs Connect calls
// never complete on their own; Disconnect aborts them.
type fakeClient struct {
	mu          sync.Mutex
	hangs       int
	pending     []*fakeToken
	connectErrs []error
	publishErr  error
	connects    int
	connected   bool
	disconnects int
	published   []published
	subscribed  []string
	handlers    map[string]mqtt.MessageHandler
}

func newFakeClient(connectErrs ...error) *fakeClient {
	return &fakeClient{connectErrs: connectErrs, handlers: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.hangs > 0 {
		c.hangs--
		tok := pendingToken()
		c.pending = append(c.pending, tok)
		return tok
	}
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			return newToken(err)
		}
	}
	c.connected = true
	return newToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	for _, tok := range c.pending {
		tok.err = errAborted
		close(tok.done)
	}
	c.pending = nil
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	c.published = append(c.published, published{topic, qos, retained, s})
	return newToken(c.publishErr)
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handlers[topic] = cb
	return newToken(nil)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(errors.New("not implemented"))
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token { return newToken(nil) }

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// deliver simulates an inbound message on topic.
func (c *fakeClient) deliver(topic, payload string) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}

func (c *fakeClient) snapshot() (connects int, pubs []published, subs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, append([]published(nil), c.published...), append([]string(nil), c.subscribed...)
}
