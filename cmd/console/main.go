// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/block_telemetry/internal/app"
	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/logging"
)

func main() {
	configPath := flag.String("config", "block_config.txt", "path to the KEY=VALUE config file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	logger, closer := logging.Setup(cfg)
	defer closer.Close()

	// Wait for Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsole(ctx, cfg, os.Stdout, logger); err != nil {
		log.Fatalf("console: %v", err)
	}
}
