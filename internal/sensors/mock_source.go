// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"sync"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// mockStep is the phase advance per read (one 100 ms poll).
const mockStep = 0.1

type mockSource struct {
	mu    sync.Mutex
	phase float64
}

// NewMockSource creates a source that generates a block resting on its
// base and slowly rocking, so downstream views have something to show.
func NewMockSource() Source {
	return &mockSource{}
}

func (m *mockSource) ReadRaw() (telemetry.RawSample, error) {
	m.mu.Lock()
	p := m.phase
	m.phase += mockStep
	m.mu.Unlock()

	tilt := 0.2 * math.Sin(p)
	return telemetry.RawSample{
		AccelX: StandardGravity * math.Sin(tilt),
		AccelY: 0.05 * math.Cos(p*0.7),
		AccelZ: StandardGravity * math.Cos(tilt),
		GyroX:  0.2 * math.Cos(p),
		GyroY:  0,
		GyroZ:  0.5 * math.Sin(p*0.3),
	}, nil
}
