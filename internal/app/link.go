package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/link"
	"github.com/relabs-tech/block_telemetry/internal/metrics"
)

// availabilityTopic is where the producer announces online/offline.
func availabilityTopic(cfg *config.Config) string {
	return cfg.TopicData + "/availability"
}

// subscriberClientID makes a per-process client ID so that two consoles
// don't kick each other off the broker.
func subscriberClientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}

// linkSettings maps config onto link settings. m may be nil.
func linkSettings(cfg *config.Config, clientID, availability string, m *metrics.Metrics) link.Settings {
	s := link.Settings{
		Broker:            cfg.MQTTBroker,
		ClientID:          clientID,
		Username:          cfg.MQTTUsername,
		Password:          cfg.MQTTPassword,
		AvailabilityTopic: availability,
		Backoff: link.Backoff{
			Initial:     time.Duration(cfg.MQTTRetryInitialMS) * time.Millisecond,
			Max:         time.Duration(cfg.MQTTRetryMaxMS) * time.Millisecond,
			Multiplier:  2,
			MaxAttempts: cfg.MQTTRetryMaxAttempt,
		},
	}
	if m != nil {
		names := make([]string, len(link.States))
		for i, st := range link.States {
			names[i] = st.String()
		}
		s.OnStateChange = func(_, to link.State) {
			if to == link.Connecting {
				m.ConnectAttempts.Inc()
			}
			m.SetLinkState(to.String(), names)
		}
	}
	return s
}

// announceWhenConnected logs msg once lk is first up. Subscribers use it so
// "listening" is only printed when messages can actually arrive.
func announceWhenConnected(ctx context.Context, lk *link.Link, logger *slog.Logger, msg string, args ...any) {
	if err := lk.AwaitConnected(ctx); err != nil {
		return
	}
	logger.Info(msg, args...)
}
