// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package motion

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock motion source that generates a smooth
// walking-like acceleration signal around 1 g with gentle arm swing.
func NewMockSource() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() (Sample, error) {
	now := time.Now()
	elapsed := now.Sub(m.start).Seconds()

	// ~2 Hz step cadence on top of gravity, small lateral sway.
	return Sample{
		Ax: 0.08 * math.Sin(elapsed*2*math.Pi*2.0),
		Ay: 0.05 * math.Cos(elapsed*2*math.Pi*0.9),
		Az: 1.0 + 0.06*math.Sin(elapsed*2*math.Pi*2.0+0.5),

		Gx:          0.1 * math.Sin(elapsed*1.3),
		Gy:          0.2 * math.Cos(elapsed*0.7),
		Gz:          0.1 * math.Sin(elapsed*0.4),
		HasRotation: true,

		Timestamp: now,
	}, nil
}
