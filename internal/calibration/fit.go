// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration fits and stores accelerometer calibrations.
//
// The six-pose fit holds the block still with each axis pointing up and
// then down. For one axis:
//
//	plus  = G/scale - offset/scale
//	minus = -G/scale - offset/scale
//
// so bias = (plus+minus)/2, half = (plus-minus)/2, scale = G/half and
// offset = -scale*bias.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

const (
	// StandardGravity in m/s².
	StandardGravity = 9.80665

	// Stillness heuristics, in sensor units (m/s² for the MPU6050 driver).
	stillStdGood = 0.02
	stillStdBad  = 0.25

	// Confidence floor (never hard zero unless we error out).
	confFloor = 0.05

	// Minimum half-separation between the up and down readings of an axis.
	minHalfSeparation = 0.1
)

// Pose names one of the six static orientations.
type Pose string

const (
	PosePlusX  Pose = "+X"
	PoseMinusX Pose = "-X"
	PosePlusY  Pose = "+Y"
	PoseMinusY Pose = "-Y"
	PosePlusZ  Pose = "+Z"
	PoseMinusZ Pose = "-Z"
)

// Poses lists the capture order used by the guided workflow.
var Poses = []Pose{PosePlusX, PoseMinusX, PosePlusY, PoseMinusY, PosePlusZ, PoseMinusZ}

var ErrInsufficientSeparation = errors.New("calibration: insufficient gravity separation")

// Vec3 is a three-axis value.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Stats summarizes a capture.
type Stats struct {
	Samples int  `json:"samples"`
	Mean    Vec3 `json:"mean"`
	StdDev  Vec3 `json:"stddev"`
}

// ComputeStats returns the mean and population standard deviation.
func ComputeStats(values []Vec3) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}
	var sx, sy, sz float64
	for _, v := range values {
		sx += v.X
		sy += v.Y
		sz += v.Z
	}
	mean := Vec3{X: sx / float64(n), Y: sy / float64(n), Z: sz / float64(n)}

	var vx, vy, vz float64
	for _, v := range values {
		dx := v.X - mean.X
		dy := v.Y - mean.Y
		dz := v.Z - mean.Z
		vx += dx * dx
		vy += dy * dy
		vz += dz * dz
	}
	return Stats{
		Samples: n,
		Mean:    mean,
		StdDev: Vec3{
			X: math.Sqrt(vx / float64(n)),
			Y: math.Sqrt(vy / float64(n)),
			Z: math.Sqrt(vz / float64(n)),
		},
	}
}

// FitAccel computes per-axis scale and offset from the six pose captures so
// that a still axis pointing up reads +gravity. The returned confidence is
// in [confFloor, 1].
func FitAccel(poses map[Pose]Stats, gravity float64) (telemetry.Calibration, float64, error) {
	for _, p := range Poses {
		if st, ok := poses[p]; !ok || st.Samples == 0 {
			return telemetry.Calibration{}, 0, fmt.Errorf("calibration: pose %s not captured", p)
		}
	}
	if gravity <= 0 {
		return telemetry.Calibration{}, 0, fmt.Errorf("calibration: gravity must be positive, got %v", gravity)
	}

	fitAxis := func(name string, plus, minus float64) (telemetry.AxisCalibration, float64, error) {
		bias := (plus + minus) / 2
		half := (plus - minus) / 2
		if half < minHalfSeparation {
			return telemetry.AxisCalibration{}, 0, fmt.Errorf("%w on %s axis (half=%.4f)", ErrInsufficientSeparation, name, half)
		}
		scale := gravity / half
		return telemetry.AxisCalibration{Scale: scale, Offset: -scale * bias}, half, nil
	}

	x, gx, err := fitAxis("x", poses[PosePlusX].Mean.X, poses[PoseMinusX].Mean.X)
	if err != nil {
		return telemetry.Calibration{}, 0, err
	}
	y, gy, err := fitAxis("y", poses[PosePlusY].Mean.Y, poses[PoseMinusY].Mean.Y)
	if err != nil {
		return telemetry.Calibration{}, 0, err
	}
	z, gz, err := fitAxis("z", poses[PosePlusZ].Mean.Z, poses[PoseMinusZ].Mean.Z)
	if err != nil {
		return telemetry.Calibration{}, 0, err
	}

	poseConf := 0.0
	for _, p := range Poses {
		poseConf += StillnessConfidence(poses[p].StdDev)
	}
	poseConf /= float64(len(Poses))

	conf := clamp01(0.65*poseConf + 0.35*gravityConsistency(gx, gy, gz))
	if conf < confFloor {
		conf = confFloor
	}
	return telemetry.Calibration{X: x, Y: y, Z: z}, conf, nil
}

// StillnessConfidence maps the average standard deviation of a capture to
// [confFloor, 1].
func StillnessConfidence(std Vec3) float64 {
	s := (std.X + std.Y + std.Z) / 3
	switch {
	case s <= stillStdGood:
		return 1.0
	case s >= stillStdBad:
		return confFloor
	default:
		t := (s - stillStdGood) / (stillStdBad - stillStdGood)
		return clamp01(1.0 - 0.95*t)
	}
}

// gravityConsistency scores how similar the three axis sensitivities are.
func gravityConsistency(gx, gy, gz float64) float64 {
	m := (gx + gy + gz) / 3
	if m <= 0 {
		return confFloor
	}
	sd := math.Sqrt(((gx-m)*(gx-m) + (gy-m)*(gy-m) + (gz-m)*(gz-m)) / 3)
	cv := sd / m
	// 2% spread is excellent, 20% is poor.
	switch {
	case cv <= 0.02:
		return 1
	case cv >= 0.20:
		return confFloor
	default:
		return clamp01(1 - (cv-0.02)/(0.20-0.02))
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
