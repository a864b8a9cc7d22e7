// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package calibration runs the timed data-collection phase that derives a
// personalized detection threshold.
//
// State machine: Idle -> Collecting -> {Valid, Unstable} -> Idle.
package calibration

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/store"
	"github.com/relabs-tech/gait_assist/internal/wire"
)

// State is the controller phase.
type State int

const (
	StateIdle State = iota
	StateCollecting
	StateValid
	StateUnstable
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateValid:
		return "valid"
	case StateUnstable:
		return "unstable"
	default:
		return "idle"
	}
}

const (
	// Duration is the fixed collection window.
	Duration = 30 * time.Second
	// MaxCoefficientOfVariation: stddev/mean above this bound rejects
	// the run. Sustained noisy collection is never silently accepted as
	// a baseline.
	MaxCoefficientOfVariation = 0.5
	// thresholdSigma: derived threshold = mean + thresholdSigma*stddev.
	thresholdSigma = 2.0
	// StreamEvery forwards every Nth 50 Hz sample to the companion,
	// throttling the raw stream to 10 Hz.
	StreamEvery = 5
)

// Controller owns at most one calibration session at a time. Feed is
// called from the sensor callback; Start, Stop, Status and FinishIfDue
// from timers and transport callbacks.
type Controller struct {
	logger *zap.Logger
	kv     *store.File

	mu        sync.Mutex
	state     State
	samples   []float64
	startedAt time.Time
	sampleIdx int
}

// NewController returns an idle controller. kv may be nil in tests.
func NewController(kv *store.File, logger *zap.Logger) *Controller {
	return &Controller{logger: logger, kv: kv}
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Collecting reports whether a session is active.
func (c *Controller) Collecting() bool {
	return c.State() == StateCollecting
}

// Start begins a session at now. Returns false (no-op) if already
// collecting.
func (c *Controller) Start(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCollecting {
		return false
	}
	c.state = StateCollecting
	c.samples = c.samples[:0]
	c.startedAt = now
	c.sampleIdx = 0
	c.logger.Info("calibration started", zap.Duration("duration", Duration))
	return true
}

// Feed records one magnitude sample and reports whether this sample should
// be streamed to the companion (every StreamEvery-th sample). No-op when
// not collecting.
func (c *Controller) Feed(magnitude float64) (stream bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCollecting {
		return false
	}
	c.samples = append(c.samples, magnitude)
	stream = c.sampleIdx%StreamEvery == 0
	c.sampleIdx++
	return stream
}

// Status reports elapsed progress for the companion.
func (c *Controller) Status(now time.Time) wire.CalibrationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCollecting {
		return wire.CalibrationStatus{}
	}
	elapsed := now.Sub(c.startedAt)
	progress := float64(elapsed) / float64(Duration)
	if progress > 1 {
		progress = 1
	}
	remaining := Duration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return wire.CalibrationStatus{
		IsCalibrating: true,
		Progress:      progress,
		TimeRemaining: int(remaining.Round(time.Second).Seconds()),
	}
}

// Stop abandons an active session, discarding uncommitted data. No haptic,
// no persisted outcome.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCollecting {
		return
	}
	c.state = StateIdle
	c.samples = c.samples[:0]
	c.logger.Info("calibration cancelled")
}

// FinishIfDue completes the session once the collection window has
// elapsed. It returns the new state and, for StateValid, the persisted
// result. StateCollecting means the window is still running; StateIdle
// means the run ended with zero samples and was treated as a cancel.
// Valid and Unstable both return to Idle for the next Start.
func (c *Controller) FinishIfDue(now time.Time) (*wire.CalibrationResult, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCollecting || now.Sub(c.startedAt) < Duration {
		return nil, c.state
	}

	samples := c.samples
	c.state = StateIdle

	// Zero samples collected is a cancel, not a validation failure.
	if len(samples) == 0 {
		c.samples = nil
		c.logger.Warn("calibration window elapsed with no samples, treating as cancel")
		return nil, StateIdle
	}

	avg := mean(samples)
	sd := stddev(samples, avg)

	if avg == 0 || sd/avg > MaxCoefficientOfVariation {
		c.samples = nil
		if c.kv != nil {
			c.kv.SetUnstable(true)
		}
		c.logger.Warn("calibration unstable, discarding",
			zap.Float64("mean", avg),
			zap.Float64("stddev", sd),
		)
		return nil, StateUnstable
	}

	result := wire.CalibrationResult{
		Average:     avg,
		StdDev:      sd,
		Threshold:   avg + thresholdSigma*sd,
		SampleCount: len(samples),
		Timestamp:   now,
	}
	c.samples = nil
	if c.kv != nil {
		c.kv.SaveCalibration(result)
	}
	c.logger.Info("calibration valid",
		zap.Float64("mean", result.Average),
		zap.Float64("stddev", result.StdDev),
		zap.Float64("threshold", result.Threshold),
		zap.Int("samples", result.SampleCount),
	)
	return &result, StateValid
}

func mean(data []float64) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func stddev(data []float64, m float64) float64 {
	if len(data) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range data {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(data))
	return math.Sqrt(variance)
}
