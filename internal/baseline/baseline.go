// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package baseline maintains the rolling statistical baseline of motion
// magnitude and derives the adaptive detection threshold from it.
package baseline

import (
	"sort"
	"sync"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

const (
	// WindowCapacity is the size of the rolling magnitude window.
	WindowCapacity = 100
	// MinSamples is the number of samples required before the baseline
	// is considered settled.
	MinSamples = 20

	// adaptiveFactor scales the baseline into a detection threshold when
	// no calibration exists.
	adaptiveFactor = 1.3
	// calibratedFloorFactor: in non-adaptive mode calibration data
	// tightens but never loosens the fixed threshold below 80% of the
	// calibrated value.
	calibratedFloorFactor = 0.8
)

// Tracker keeps a fixed-capacity FIFO window of recent magnitudes. The
// baseline is the median of the window (not the mean, to resist
// single-spike distortion).
//
// Update is called from the sensor callback only (single writer); Baseline
// and Threshold may be read from timers and transport callbacks.
type Tracker struct {
	mu       sync.RWMutex
	window   []float64
	baseline float64
	ready    bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{window: make([]float64, 0, WindowCapacity)}
}

// Update appends a magnitude to the window, evicting the oldest entry once
// full, and returns the current baseline. The baseline is recomputed once
// the window holds at least MinSamples entries.
func (t *Tracker) Update(magnitude float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == WindowCapacity {
		t.window = append(t.window[:0], t.window[1:]...)
	}
	t.window = append(t.window, magnitude)

	if len(t.window) >= MinSamples {
		t.baseline = median(t.window)
		t.ready = true
	}
	return t.baseline
}

// Baseline returns the current baseline and whether it has settled.
func (t *Tracker) Baseline() (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseline, t.ready
}

// Replace installs a calibration-derived baseline, discarding the rolling
// window. Subsequent updates rebuild the window and take over again once
// it holds MinSamples entries.
func (t *Tracker) Replace(value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = t.window[:0]
	t.baseline = value
	t.ready = true
}

// Reset discards all accumulated state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = t.window[:0]
	t.baseline = 0
	t.ready = false
}

// Threshold derives the detection threshold from the tracker state, the
// persisted calibration result (nil if none), and the current settings.
//
//   - calibrated + adaptive: the calibrated threshold directly
//   - calibrated + fixed:    max(sensitivity, calibrated * 0.8)
//   - uncalibrated + adaptive (baseline settled): baseline * 1.3
//   - otherwise: the raw configured sensitivity
func (t *Tracker) Threshold(cal *wire.CalibrationResult, s wire.WatchSettings) float64 {
	if cal != nil {
		if s.AdaptiveThreshold {
			return cal.Threshold
		}
		if floor := cal.Threshold * calibratedFloorFactor; floor > s.Sensitivity {
			return floor
		}
		return s.Sensitivity
	}

	if s.AdaptiveThreshold {
		if b, ok := t.Baseline(); ok {
			return b * adaptiveFactor
		}
	}
	return s.Sensitivity
}

// median returns the true median: the middle element for odd lengths, the
// mean of the two middle elements for even lengths.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
