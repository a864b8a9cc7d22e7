// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package haptics

import "sync"

// Call records one mock playback.
type Call struct {
	Pattern Pattern
	Tier    Tier
}

// MockActuator records playbacks instead of driving hardware. Used by
// tests and by the wearable when no haptic pin is configured.
type MockActuator struct {
	mu    sync.Mutex
	calls []Call
}

// NewMockActuator returns an empty recording actuator.
func NewMockActuator() *MockActuator {
	return &MockActuator{}
}

func (m *MockActuator) Play(p Pattern, t Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Pattern: p, Tier: t})
	return nil
}

// Calls returns a copy of the recorded playbacks.
func (m *MockActuator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
