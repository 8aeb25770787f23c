// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// Source is anything that can provide raw samples, one per poll.
type Source interface {
	ReadRaw() (telemetry.RawSample, error)
}

// RetryInit calls initFn until it succeeds, waiting delay between attempts.
// It only gives up when ctx is cancelled.
func RetryInit(ctx context.Context, delay time.Duration, logger *slog.Logger, what string, initFn func() error) error {
	for attempt := 1; ; attempt++ {
		err := initFn()
		if err == nil {
			if attempt > 1 {
				logger.Info(what+" ready", "attempts", attempt)
			}
			return nil
		}
		logger.Warn(what+" init failed, retrying", "attempt", attempt, "delay", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s init: %w", what, ctx.Err())
		case <-t.C:
		}
	}
}

// Open returns the configured sensor source. For the mpu6050 driver it
// initializes the periph host, opens the I2C bus and waits for the chip to
// answer. The returned closer releases the bus.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Source, io.Closer, error) {
	if cfg.SensorDriver == "mock" {
		logger.Info("using mock sensor source")
		return NewMockSource(), nopCloser{}, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.SensorI2CBus)
	if err != nil {
		return nil, nil, fmt.Errorf("i2c open failed on bus %s: %w", cfg.SensorI2CBus, err)
	}

	opts := MPU6050Opts{
		Addr:       cfg.SensorI2CAddr,
		AccelRange: cfg.SensorAccelRange,
		GyroRange:  cfg.SensorGyroRange,
		DLPF:       cfg.SensorDLPF,
	}
	var dev *MPU6050
	err = RetryInit(ctx, time.Duration(cfg.SensorRetryMS)*time.Millisecond, logger, "mpu6050", func() error {
		var err error
		dev, err = NewMPU6050(bus, opts)
		return err
	})
	if err != nil {
		bus.Close()
		return nil, nil, err
	}

	logger.Info("mpu6050 found",
		"bus", cfg.SensorI2CBus,
		"addr", fmt.Sprintf("0x%02X", opts.Addr),
		"accel_range_g", []int{2, 4, 8, 16}[opts.AccelRange],
		"gyro_range_dps", []int{250, 500, 1000, 2000}[opts.GyroRange],
		"bandwidth_hz", BandwidthHz(opts.DLPF),
	)
	return dev, bus, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
