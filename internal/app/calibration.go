// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/relabs-tech/block_telemetry/internal/calibration"
	"github.com/relabs-tech/block_telemetry/internal/config"
	"github.com/relabs-tech/block_telemetry/internal/sensors"
)

const (
	// 6 s per pose at ~100 Hz.
	poseSamples = 600
	posePeriod  = 10 * time.Millisecond

	// Published telemetry is in g.
	targetGravity = 1.0

	defaultCalibrationFile = "block_calibration.json"
)

// CalibrationGuide walks an operator through the six-pose accelerometer
// capture on a terminal.
type CalibrationGuide struct {
	Src     sensors.Source
	In      io.Reader
	Out     io.Writer
	Sensor  string
	Samples int
	Period  time.Duration
	Gravity float64
	Now     func() time.Time
}

// Run prompts for every pose, captures it and fits the result.
func (g *CalibrationGuide) Run(ctx context.Context) (calibration.File, error) {
	in := bufio.NewReader(g.In)
	captures := make(map[calibration.Pose]calibration.Stats, len(calibration.Poses))
	var poseStats []calibration.PoseStats

	for _, p := range calibration.Poses {
		fmt.Fprintf(g.Out, "Pose %s UP: place the block so its %s axis points upward, then keep it still.\n", p, p)
		fmt.Fprintf(g.Out, "Press ENTER to start capture (%d samples)...", g.Samples)
		if _, err := in.ReadString('\n'); err != nil && err != io.EOF {
			return calibration.File{}, fmt.Errorf("reading operator input: %w", err)
		}

		st, err := g.capture(ctx)
		if err != nil {
			return calibration.File{}, fmt.Errorf("pose %s: %w", p, err)
		}
		c := calibration.StillnessConfidence(st.StdDev)
		captures[p] = st
		poseStats = append(poseStats, calibration.PoseStats{Pose: p, Stats: st, Confidence: c})

		fmt.Fprintf(g.Out, "\n  Pose %s: mean=(%.3f, %.3f, %.3f) std=(%.3f, %.3f, %.3f) conf=%.2f\n",
			p, st.Mean.X, st.Mean.Y, st.Mean.Z, st.StdDev.X, st.StdDev.Y, st.StdDev.Z, c)
	}

	cal, conf, err := calibration.FitAccel(captures, g.Gravity)
	if err != nil {
		return calibration.File{}, err
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	f := calibration.NewFile(g.Sensor, cal, conf, now())
	f.PoseStats = poseStats
	return f, nil
}

func (g *CalibrationGuide) capture(ctx context.Context) (calibration.Stats, error) {
	values := make([]calibration.Vec3, 0, g.Samples)
	for len(values) < g.Samples {
		raw, err := g.Src.ReadRaw()
		if err != nil {
			return calibration.Stats{}, err
		}
		values = append(values, calibration.Vec3{X: raw.AccelX, Y: raw.AccelY, Z: raw.AccelZ})

		if g.Period > 0 {
			select {
			case <-ctx.Done():
				return calibration.Stats{}, ctx.Err()
			case <-time.After(g.Period):
			}
		} else if ctx.Err() != nil {
			return calibration.Stats{}, ctx.Err()
		}
	}
	return calibration.ComputeStats(values), nil
}

// RunCalibration captures a new calibration from the configured sensor and
// writes it to outPath (CALIBRATION_FILE, or block_calibration.json, when
// empty).
func RunCalibration(ctx context.Context, cfg *config.Config, outPath string, logger *slog.Logger) error {
	if outPath == "" {
		outPath = cfg.CalibrationFile
	}
	if outPath == "" {
		outPath = defaultCalibrationFile
	}

	src, closer, err := openSensor(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer closer.Close()

	guide := &CalibrationGuide{
		Src:     src,
		In:      os.Stdin,
		Out:     os.Stdout,
		Sensor:  cfg.SensorDriver,
		Samples: poseSamples,
		Period:  posePeriod,
		Gravity: targetGravity,
	}
	f, err := guide.Run(ctx)
	if err != nil {
		return err
	}
	if err := calibration.Save(outPath, f); err != nil {
		return err
	}

	logger.Info("calibration written", "file", outPath, "confidence", f.Confidence)
	fmt.Printf("\nWrote: %s (confidence %.2f)\n", outPath, f.Confidence)
	return nil
}
