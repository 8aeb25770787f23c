// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Guided six-pose accelerometer calibration.
//
// Place the block with each axis pointing up in turn and keep it still while
// samples are captured. The fitted per-axis scale and offset are written as
// JSON; point CALIBRATION_FILE at the result to use it in the producer.
//
// Run:
//
//	go run ./cmd/calibration -config block_config.txt -out block_calibration.json
//
// Stop the producer first: both need the I2C bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/block_telemetry/internal/app"
	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/logging"
)

func main() {
	configPath := flag.String("config", "block_config.txt", "path to the KEY=VALUE config file")
	outPath := flag.String("out", "", "calibration output file (default CALIBRATION_FILE or block_calibration.json)")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(err)
	}
	cfg := config.Get()

	logger, closer := logging.Setup(cfg)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== Block accelerometer calibration ===")
	if err := app.RunCalibration(ctx, cfg, *outPath, logger); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
