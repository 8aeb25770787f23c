// Package metrics exposes the block's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the block exports.
type Metrics struct {
	Published        *prometheus.CounterVec
	EncodeErrors     prometheus.Counter
	SensorReadErrors prometheus.Counter
	ControlMessages  prometheus.Counter
	LinkState        *prometheus.GaugeVec
	ConnectAttempts  prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "block_telemetry_published_total",
			Help: "Telemetry messages handed to the broker, by result.",
		}, []string{"result"}),
		EncodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "block_telemetry_encode_errors_total",
			Help: "Telemetry messages dropped because they could not be encoded.",
		}),
		SensorReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "block_sensor_read_errors_total",
			Help: "Failed sensor polls.",
		}),
		ControlMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "block_control_messages_total",
			Help: "Messages received on the control topic.",
		}),
		LinkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "block_link_state",
			Help: "1 for the current MQTT link state, 0 otherwise.",
		}, []string{"state"}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "block_link_connect_attempts_total",
			Help: "MQTT connection attempts.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.Published,
		m.EncodeErrors,
		m.SensorReadErrors,
		m.ControlMessages,
		m.LinkState,
		m.ConnectAttempts,
	)
	return m
}

// SetLinkState marks state as current among all known states.
func (m *Metrics) SetLinkState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.LinkState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
