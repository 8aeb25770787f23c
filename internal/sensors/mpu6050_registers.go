// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// MPU6050 register addresses (register map rev 4.2).
const (
	regSmplrtDiv   = 0x19 // Sample Rate = Gyro Output Rate / (1 + SMPLRT_DIV)
	regConfig      = 0x1A // bits 2:0 DLPF_CFG
	regGyroConfig  = 0x1B // bits 4:3 FS_SEL
	regAccelConfig = 0x1C // bits 4:3 AFS_SEL
	regAccelXoutH  = 0x3B // start of the 14-byte accel/temp/gyro burst
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75
)

const (
	// DefaultAddr is the I2C address with AD0 low.
	DefaultAddr = 0x68

	whoAmIValue = 0x68

	// PWR_MGMT_1: SLEEP cleared, clock from PLL with X gyro reference.
	pwrClockPLLXGyro = 0x01

	burstLen = 14
)

// accelLSBPerG is indexed by AFS_SEL (±2g, ±4g, ±8g, ±16g).
var accelLSBPerG = [4]float64{16384, 8192, 4096, 2048}

// gyroLSBPerDPS is indexed by FS_SEL (±250, ±500, ±1000, ±2000 °/s).
var gyroLSBPerDPS = [4]float64{131, 65.5, 32.8, 16.4}

// dlpfBandwidthHz is the accelerometer bandwidth for DLPF_CFG 0-6.
var dlpfBandwidthHz = [7]int{260, 184, 94, 44, 21, 10, 5}
