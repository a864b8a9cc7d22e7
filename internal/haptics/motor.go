// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package haptics

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"go.uber.org/zap"
)

// pulse is one on/off step of a pattern.
type pulse struct {
	on  time.Duration
	off time.Duration
}

// patternPulses is the full shape of each pattern.
var patternPulses = map[Pattern][]pulse{
	PatternDirectionUp:  {{120 * time.Millisecond, 80 * time.Millisecond}, {120 * time.Millisecond, 80 * time.Millisecond}, {200 * time.Millisecond, 0}},
	PatternNotification: {{80 * time.Millisecond, 60 * time.Millisecond}, {80 * time.Millisecond, 0}},
	PatternStart:        {{250 * time.Millisecond, 0}},
	PatternStop:         {{100 * time.Millisecond, 60 * time.Millisecond}, {100 * time.Millisecond, 60 * time.Millisecond}, {100 * time.Millisecond, 0}},
	PatternClick:        {{40 * time.Millisecond, 0}},
}

// lightPulse is the fallback pulse for the lowest intensity tier.
var lightPulse = []pulse{{60 * time.Millisecond, 0}}

// MotorActuator drives a vibration motor through a GPIO pin.
type MotorActuator struct {
	pin    gpio.PinIO
	logger *zap.Logger
}

// NewMotorActuator initializes the periph host and claims the named GPIO
// pin (e.g. "GPIO18").
func NewMotorActuator(pinName string, logger *zap.Logger) (*MotorActuator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("haptic motor: periph host init: %w", err)
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("haptic motor: GPIO pin %q not found", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("haptic motor: pin %q output mode: %w", pinName, err)
	}

	logger.Info("haptic motor initialized", zap.String("pin", pinName))
	return &MotorActuator{pin: pin, logger: logger}, nil
}

// Play runs the pulse sequence for a pattern. TierSingle plays only the
// first pulse of the pattern; TierLight plays the lighter fallback pulse.
func (m *MotorActuator) Play(p Pattern, t Tier) error {
	seq := patternPulses[p]
	if seq == nil {
		seq = patternPulses[PatternDirectionUp]
	}
	switch t {
	case TierSingle:
		seq = seq[:1]
	case TierLight:
		seq = lightPulse
	}

	for _, pl := range seq {
		if err := m.pin.Out(gpio.High); err != nil {
			return fmt.Errorf("haptic motor: drive high: %w", err)
		}
		time.Sleep(pl.on)
		if err := m.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("haptic motor: drive low: %w", err)
		}
		time.Sleep(pl.off)
	}
	return nil
}
