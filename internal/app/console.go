package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/gesture"
	"github.com/relabs-tech/block_telemetry/internal/link"
	"github.com/relabs-tech/block_telemetry/internal/orientation"
	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// Console prints telemetry, tilt and gestures as they arrive.
type Console struct {
	out    io.Writer
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	detector *gesture.Detector
}

func NewConsole(out io.Writer, gcfg gesture.Config, logger *slog.Logger) *Console {
	return &Console{
		out:      out,
		logger:   logger,
		now:      time.Now,
		detector: gesture.NewDetector(gcfg),
	}
}

// Handle is the subscription callback for the data topic.
func (c *Console) Handle(topic string, payload []byte) {
	msg, err := telemetry.Decode(payload)
	if err != nil {
		c.logger.Warn("console: bad telemetry payload", "topic", topic, "error", err)
		return
	}
	pose := orientation.FromMessage(msg)

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out,
		"[DATA]  acc=(%7.3f %7.3f %7.3f)  gyr=(%7.3f %7.3f %7.3f)  ROLL=%7.2f  PITCH=%7.2f\n",
		msg.AccX, msg.AccY, msg.AccZ, msg.GyrX, msg.GyrY, msg.GyrZ, pose.Roll, pose.Pitch,
	)
	for _, ev := range c.detector.Observe(msg, c.now()) {
		fmt.Fprintln(c.out, formatEvent(ev))
	}
}

func formatEvent(ev gesture.Event) string {
	switch ev.Kind {
	case gesture.Rotated:
		dir := "cw"
		if ev.Direction < 0 {
			dir = "ccw"
		}
		return fmt.Sprintf("[EVENT] rotate face=%s dir=%s", ev.Face, dir)
	default:
		return fmt.Sprintf("[EVENT] %s face=%s", ev.Kind, ev.Face)
	}
}

// RunConsole subscribes to the data topic and prints to out until ctx is
// cancelled.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	clientID := subscriberClientID(cfg.MQTTClientIDConsole)
	lk := link.New(linkSettings(cfg, clientID, "", nil), logger)

	console := NewConsole(out, gesture.DefaultConfig, logger)
	lk.Subscribe(cfg.TopicData, console.Handle)

	go announceWhenConnected(ctx, lk, logger, "console: listening", "topic", cfg.TopicData)
	if err := lk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("console: shutting down")
	return nil
}
