// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// StandardGravity converts g to m/s².
const StandardGravity = 9.80665

// MPU6050Opts configures the device at init.
type MPU6050Opts struct {
	Addr       uint16
	AccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	GyroRange  byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	DLPF       byte // 0-6
}

// DefaultMPU6050Opts matches the block firmware: ±2g, ±500°/s, 21 Hz.
var DefaultMPU6050Opts = MPU6050Opts{
	Addr:       DefaultAddr,
	AccelRange: 0,
	GyroRange:  1,
	DLPF:       4,
}

// MPU6050 reads accelerometer and gyroscope samples over I2C.
type MPU6050 struct {
	dev      *i2c.Dev
	accelLSB float64
	gyroLSB  float64
}

// NewMPU6050 checks the device identity and configures ranges and filter.
func NewMPU6050(bus i2c.Bus, opts MPU6050Opts) (*MPU6050, error) {
	if opts.AccelRange > 3 {
		return nil, fmt.Errorf("mpu6050: invalid accel range %d", opts.AccelRange)
	}
	if opts.GyroRange > 3 {
		return nil, fmt.Errorf("mpu6050: invalid gyro range %d", opts.GyroRange)
	}
	if int(opts.DLPF) >= len(dlpfBandwidthHz) {
		return nil, fmt.Errorf("mpu6050: invalid DLPF config %d", opts.DLPF)
	}
	if opts.Addr == 0 {
		opts.Addr = DefaultAddr
	}

	d := &MPU6050{
		dev:      &i2c.Dev{Bus: bus, Addr: opts.Addr},
		accelLSB: accelLSBPerG[opts.AccelRange],
		gyroLSB:  gyroLSBPerDPS[opts.GyroRange],
	}

	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("mpu6050: read WHO_AM_I: %w", err)
	}
	if id != whoAmIValue {
		return nil, fmt.Errorf("mpu6050: unexpected WHO_AM_I 0x%02X at 0x%02X", id, opts.Addr)
	}

	writes := []struct {
		name string
		reg  byte
		val  byte
	}{
		{"wake", regPwrMgmt1, pwrClockPLLXGyro},
		{"sample rate divider", regSmplrtDiv, 0},
		{"DLPF config", regConfig, opts.DLPF},
		{"gyro range", regGyroConfig, opts.GyroRange << 3},
		{"accel range", regAccelConfig, opts.AccelRange << 3},
	}
	for _, w := range writes {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return nil, fmt.Errorf("mpu6050: set %s: %w", w.name, err)
		}
	}
	return d, nil
}

// BandwidthHz returns the accelerometer DLPF bandwidth for a config value.
func BandwidthHz(dlpf byte) int {
	if int(dlpf) >= len(dlpfBandwidthHz) {
		return 0
	}
	return dlpfBandwidthHz[dlpf]
}

// ReadRaw reads one accel/gyro sample: acceleration in m/s², rotation in rad/s.
func (d *MPU6050) ReadRaw() (telemetry.RawSample, error) {
	var b [burstLen]byte
	if err := d.dev.Tx([]byte{regAccelXoutH}, b[:]); err != nil {
		return telemetry.RawSample{}, fmt.Errorf("mpu6050: read burst: %w", err)
	}

	word := func(i int) float64 {
		return float64(int16(uint16(b[i])<<8 | uint16(b[i+1])))
	}
	accel := func(i int) float64 {
		return word(i) / d.accelLSB * StandardGravity
	}
	gyro := func(i int) float64 {
		return word(i) / d.gyroLSB * math.Pi / 180
	}

	// b[6:8] is the die temperature; not published.
	return telemetry.RawSample{
		AccelX: accel(0),
		AccelY: accel(2),
		AccelZ: accel(4),
		GyroX:  gyro(8),
		GyroY:  gyro(10),
		GyroZ:  gyro(12),
	}, nil
}

func (d *MPU6050) readReg(reg byte) (byte, error) {
	var r [1]byte
	if err := d.dev.Tx([]byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *MPU6050) writeReg(reg, val byte) error {
	return d.dev.Tx([]byte{reg, val}, nil)
}
