// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/block_telemetry/internal/calibration"
	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/control"
	"github.com/relabs-tech/block_telemetry/internal/link"
	"github.com/relabs-tech/block_telemetry/internal/metrics"
	"github.com/relabs-tech/block_telemetry/internal/sensors"
	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// Publisher hands a payload to the broker and reports whether it went out.
type Publisher interface {
	Publish(topic string, payload []byte) bool
}

// Producer runs the read → calibrate → encode → publish cycle.
type Producer struct {
	src     sensors.Source
	cal     telemetry.Calibration
	pub     Publisher
	topic   string
	metrics *metrics.Metrics
	logger  *slog.Logger

	// failing is set after a failed publish so only the first one of a run
	// of failures is logged at WARN.
	failing bool
}

// openSensor is replaced in tests.
var openSensor = sensors.Open

// NewProducer wires a producer. m may be nil.
func NewProducer(src sensors.Source, cal telemetry.Calibration, pub Publisher, topic string, m *metrics.Metrics, logger *slog.Logger) *Producer {
	return &Producer{
		src:     src,
		cal:     cal,
		pub:     pub,
		topic:   topic,
		metrics: m,
		logger:  logger,
	}
}

// Poll runs one cycle. Failures are logged and counted; the returned bool
// reports whether a message was published.
func (p *Producer) Poll() (telemetry.Message, bool) {
	raw, err := p.src.ReadRaw()
	if err != nil {
		p.logger.Warn("sensor read failed", "error", err)
		if p.metrics != nil {
			p.metrics.SensorReadErrors.Inc()
		}
		return telemetry.Message{}, false
	}

	msg := telemetry.Produce(raw, p.cal)
	payload, err := msg.Encode()
	if err != nil {
		p.logger.Error("telemetry encode failed", "error", err)
		if p.metrics != nil {
			p.metrics.EncodeErrors.Inc()
		}
		return msg, false
	}

	if !p.pub.Publish(p.topic, payload) {
		if p.failing {
			p.logger.Debug("telemetry publish failed", "topic", p.topic)
		} else {
			p.logger.Warn("telemetry publish failed", "topic", p.topic)
			p.failing = true
		}
		if p.metrics != nil {
			p.metrics.Published.WithLabelValues("failed").Inc()
		}
		return msg, false
	}
	if p.failing {
		p.logger.Info("telemetry publish recovered", "topic", p.topic)
		p.failing = false
	}
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues("ok").Inc()
	}
	p.logger.Debug("telemetry published", "topic", p.topic, "payload", string(payload))
	return msg, true
}

// Loop polls every interval until ctx is cancelled.
func (p *Producer) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// LoadCalibration reads CALIBRATION_FILE, or falls back to the built-in
// coefficients when none is configured.
func LoadCalibration(cfg *config.Config, logger *slog.Logger) (telemetry.Calibration, error) {
	if cfg.CalibrationFile == "" {
		logger.Info("using built-in calibration")
		return telemetry.DefaultCalibration(), nil
	}
	f, err := calibration.Load(cfg.CalibrationFile)
	if err != nil {
		return telemetry.Calibration{}, err
	}
	logger.Info("loaded calibration",
		"file", cfg.CalibrationFile,
		"sensor", f.Sensor,
		"calibration_at", f.CalibrationAt,
		"confidence", f.Confidence,
	)
	return f.Calibration(), nil
}

// RunProducer is the firmware main loop: it brings up the sensor and the
// MQTT link, logs control messages and publishes telemetry until ctx is
// cancelled or the link gives up.
func RunProducer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger = logger.With("run_id", uuid.NewString())
	logger.Info("starting block telemetry producer",
		"broker", cfg.MQTTBroker,
		"topic_data", cfg.TopicData,
		"topic_control", cfg.TopicControl,
		"sensor", cfg.SensorDriver,
	)

	cal, err := LoadCalibration(cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	src, closer, err := openSensor(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("producer stopped before the sensor came up")
			return nil
		}
		return fmt.Errorf("sensor: %w", err)
	}
	defer closer.Close()

	lk := link.New(linkSettings(cfg, cfg.MQTTClientID, availabilityTopic(cfg), m), logger)
	listener := control.New(logger, m.ControlMessages.Inc)
	lk.Subscribe(cfg.TopicControl, listener.Handle)

	linkErr := make(chan error, 1)
	go func() {
		err := lk.Run(ctx)
		if err != nil {
			cancel()
		}
		linkErr <- err
	}()

	interval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	logger.Info("publish loop running", "interval", interval)
	NewProducer(src, cal, lk, cfg.TopicData, m, logger).Loop(ctx, interval)

	cancel()
	err = <-linkErr
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if last, ok := listener.Last(); ok {
		logger.Info("producer stopped",
			"control_messages", listener.Received(),
			"last_control_topic", last.Topic,
			"last_control_at", last.ReceivedAt.Format(time.RFC3339),
		)
	} else {
		logger.Info("producer stopped", "control_messages", 0)
	}
	return nil
}
