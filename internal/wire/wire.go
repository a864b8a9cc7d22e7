// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package wire defines the payloads exchanged between the wearable and the
// companion, and the persisted forms of settings and calibration data.
// Every field of Envelope is independently optional; a single transport
// message may carry any combination of them.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried by AssistEvent.
const (
	EventStart = "start" // gait-freeze onset
	EventTurn  = "turn"  // turning hesitation
)

// AssistEvent is one reported detection.
type AssistEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // "start" or "turn"
	Severity  float64   `json:"severity"`
	// Duration of the freeze interval in seconds, set once the interval
	// has closed. Turn events never carry a duration.
	Duration *float64 `json:"duration,omitempty"`
}

// WatchSettings is the tunable configuration, replaced wholesale on update.
type WatchSettings struct {
	HapticIntensity   float64 `json:"hapticIntensity"`   // 0..1
	Sensitivity       float64 `json:"sensitivity"`       // fixed threshold, g
	AdaptiveThreshold bool    `json:"adaptiveThreshold"`
	HapticPattern     string  `json:"hapticPattern"`
	RepeatHaptics     bool    `json:"repeatHaptics"`
}

// CalibrationStatus reports calibration progress to the companion.
type CalibrationStatus struct {
	IsCalibrating bool    `json:"isCalibrating"`
	Progress      float64 `json:"progress"`      // 0..1
	TimeRemaining int     `json:"timeRemaining"` // whole seconds
}

// CalibrationResult is the persisted outcome of a successful calibration.
type CalibrationResult struct {
	Average     float64   `json:"average"`
	StdDev      float64   `json:"stdDev"`
	Threshold   float64   `json:"threshold"` // average + 2*stdDev
	SampleCount int       `json:"sampleCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// AccelSample is one raw accelerometer reading, streamed at a throttled
// rate during calibration for live visualization.
type AccelSample struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat is the connection-quality ping emitted by the wearable.
type Heartbeat struct {
	Type      string    `json:"type"` // always "heartbeat"
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the tagged union carried by a single transport message.
type Envelope struct {
	AssistEvent        *AssistEvent       `json:"assistEvent,omitempty"`
	WatchSettings      *WatchSettings     `json:"watchSettings,omitempty"`
	CalibrationStatus  *CalibrationStatus `json:"calibrationStatus,omitempty"`
	CalibrationResults *CalibrationResult `json:"calibrationResults,omitempty"`
	AccelerometerData  *AccelSample       `json:"accelerometerData,omitempty"`
	Heartbeat          *Heartbeat         `json:"heartbeat,omitempty"`
	HeartbeatReply     bool               `json:"heartbeatReply,omitempty"`
	TestHaptic         bool               `json:"testHaptic,omitempty"`
	TestHapticAck      bool               `json:"testHapticAck,omitempty"`
	StartCalibration   bool               `json:"startCalibration,omitempty"`
	StopCalibration    bool               `json:"stopCalibration,omitempty"`
	ResetToFactory     bool               `json:"resetToFactory,omitempty"`
}

// Encode serializes an envelope for transport.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a transport payload. Malformed payloads return an error and
// are dropped by the caller; they are never retried.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}
