// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry turns raw inertial samples into calibrated telemetry
// messages. Everything in here is pure: no I/O, no clocks, no globals.
package telemetry

// RawSample is one poll of the sensor, before calibration.
// Accelerometer values are in the driver's units (m/s² for the MPU6050
// driver), gyroscope values in rad/s.
type RawSample struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
}

// AxisCalibration is the affine correction for one accelerometer axis:
// calibrated = Scale*raw + Offset.
type AxisCalibration struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Apply maps a raw reading through the affine correction.
func (a AxisCalibration) Apply(raw float64) float64 {
	return a.Scale*raw + a.Offset
}

// Calibration holds the per-axis accelerometer corrections. It is a plain
// value: pass it in, don't share it.
type Calibration struct {
	X AxisCalibration `json:"x"`
	Y AxisCalibration `json:"y"`
	Z AxisCalibration `json:"z"`
}

// DefaultCalibration returns the coefficients measured for the reference
// block. Each term is the product/sum of the bench fit and its refinement.
func DefaultCalibration() Calibration {
	return Calibration{
		X: AxisCalibration{
			Scale:  0.10250590963473276 * 0.9996916345088431,
			Offset: -0.05830565531616768 + 0.004024126774224875,
		},
		Y: AxisCalibration{
			Scale:  0.10207676841626437 * 0.9997803159233332,
			Offset: -0.005002860392721587 + 0.0017838308498001696,
		},
		Z: AxisCalibration{
			Scale:  0.09882532884884036 * 0.999992642405489,
			Offset: 0.21923720428834315 + 0.0013995298465419989,
		},
	}
}

// Identity returns a calibration that leaves every axis unchanged.
func Identity() Calibration {
	one := AxisCalibration{Scale: 1}
	return Calibration{X: one, Y: one, Z: one}
}

// CalibratedSample is a RawSample after calibration. Gyro axes are copied
// through untouched.
type CalibratedSample struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
}

// Apply calibrates the accelerometer axes of raw independently and passes
// the gyroscope axes through.
func (c Calibration) Apply(raw RawSample) CalibratedSample {
	return CalibratedSample{
		AccelX: c.X.Apply(raw.AccelX),
		AccelY: c.Y.Apply(raw.AccelY),
		AccelZ: c.Z.Apply(raw.AccelZ),
		GyroX:  raw.GyroX,
		GyroY:  raw.GyroY,
		GyroZ:  raw.GyroZ,
	}
}

// Message converts the sample to its wire record.
func (s CalibratedSample) Message() Message {
	return Message{
		AccX: s.AccelX,
		AccY: s.AccelY,
		AccZ: s.AccelZ,
		GyrX: s.GyroX,
		GyrY: s.GyroY,
		GyrZ: s.GyroZ,
	}
}

// Produce calibrates raw with cal and returns the telemetry message.
// It never fails; non-finite inputs flow through and are rejected later by
// Encode.
func Produce(raw RawSample, cal Calibration) Message {
	return cal.Apply(raw).Message()
}
