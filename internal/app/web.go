package app

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/link"
	"github.com/relabs-tech/block_telemetry/internal/orientation"
	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

//go:embed static
var staticFiles embed.FS

const (
	wsWriteWait  = 2 * time.Second
	clientBuffer = 16
)

// Frame is what browsers receive: the telemetry message plus its tilt.
type Frame struct {
	telemetry.Message
	Pose       orientation.Pose `json:"pose"`
	ReceivedAt time.Time        `json:"received_at"`
}

// Hub fans telemetry out to websocket clients and remembers the latest frame.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[chan []byte]*websocket.Conn
	last    []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the page is served from the block itself
			},
		},
		now:     time.Now,
		clients: make(map[chan []byte]*websocket.Conn),
	}
}

// Handle is the subscription callback for the data topic.
func (h *Hub) Handle(topic string, payload []byte) {
	msg, err := telemetry.Decode(payload)
	if err != nil {
		h.logger.Warn("web: bad telemetry payload", "topic", topic, "error", err)
		return
	}
	b, err := json.Marshal(Frame{
		Message:    msg,
		Pose:       orientation.FromMessage(msg),
		ReceivedAt: h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("web: frame marshal error", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for ch := range h.clients {
		select {
		case ch <- b:
		default:
			// Slow client; it will catch up on the next frame.
		}
	}
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last != nil {
		ch <- h.last
	}
	h.clients[ch] = conn
	return ch
}

func (h *Hub) unregister(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Close drops every websocket client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// ServeWS upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("web: websocket upgrade error", "error", err)
		return
	}
	ch := h.register(conn)
	h.logger.Info("web: client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for b := range ch {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.logger.Debug("web: websocket write error", "error", err)
				return
			}
		}
	}()

	// Browsers don't send anything; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(ch)
	<-done
	conn.Close()
	h.logger.Info("web: client disconnected", "remote", r.RemoteAddr)
}

// ServeLatest returns the most recent frame as JSON.
func (h *Hub) ServeLatest(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	b := h.last
	h.mu.Unlock()

	if b == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

// Routes returns the web UI mux.
func (h *Hub) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/api/latest", h.ServeLatest)

	root, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(root)))
	return mux
}

// RunWeb subscribes to the data topic and serves the live view on
// WEB_SERVER_PORT until ctx is cancelled.
func RunWeb(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hub := NewHub(logger)

	clientID := subscriberClientID(cfg.MQTTClientIDWeb)
	lk := link.New(linkSettings(cfg, clientID, "", nil), logger)
	lk.Subscribe(cfg.TopicData, hub.Handle)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	linkErr := make(chan error, 1)
	go func() {
		err := lk.Run(ctx)
		if err != nil {
			cancel()
		}
		linkErr <- err
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           hub.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go announceWhenConnected(ctx, lk, logger, "web: receiving telemetry", "topic", cfg.TopicData)

	logger.Info("web server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-linkErr
		return err
	}

	if err := <-linkErr; err != nil {
		return err
	}
	return nil
}
