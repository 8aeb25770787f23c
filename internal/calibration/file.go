// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// SchemaVersion of the calibration file written by Save.
const SchemaVersion = 1

// PoseStats records one pose capture in the file.
type PoseStats struct {
	Pose Pose `json:"pose"`
	Stats
	Confidence float64 `json:"confidence"`
}

// File is the on-disk calibration record.
type File struct {
	SchemaVersion int                   `json:"schema_version"`
	CalibrationAt string                `json:"calibration_at"` // RFC3339
	Sensor        string                `json:"sensor"`
	Accel         telemetry.Calibration `json:"accel"`
	Confidence    float64               `json:"confidence"`
	PoseStats     []PoseStats           `json:"pose_stats,omitempty"`
}

// NewFile wraps a fitted calibration with its metadata.
func NewFile(sensor string, cal telemetry.Calibration, confidence float64, at time.Time) File {
	return File{
		SchemaVersion: SchemaVersion,
		CalibrationAt: at.UTC().Format(time.RFC3339),
		Sensor:        sensor,
		Accel:         cal,
		Confidence:    confidence,
	}
}

// Calibration returns the accelerometer coefficients.
func (f File) Calibration() telemetry.Calibration {
	return f.Accel
}

// Load reads and validates a calibration file.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return File{}, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return f, nil
}

// Save writes f as indented JSON.
func Save(path string, f File) error {
	if err := f.validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode calibration: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}

func (f File) validate() error {
	if f.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (want %d)", f.SchemaVersion, SchemaVersion)
	}
	axes := []struct {
		name string
		a    telemetry.AxisCalibration
	}{{"x", f.Accel.X}, {"y", f.Accel.Y}, {"z", f.Accel.Z}}
	for _, ax := range axes {
		if !finite(ax.a.Scale) || !finite(ax.a.Offset) {
			return fmt.Errorf("accel.%s has a non-finite coefficient", ax.name)
		}
		if ax.a.Scale == 0 {
			return fmt.Errorf("accel.%s.scale must be non-zero", ax.name)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
