// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package detector classifies per-sample motion data into gait-freeze and
// turning-hesitation events. All decisions are made on sample timestamps,
// so the detector is deterministic and needs no wall clock.
package detector

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

const (
	// startDebounce suppresses a new start event within this interval of
	// the previous start/turn event.
	startDebounce = 500 * time.Millisecond
	// turnDebounce applies to turn events, measured from the last event
	// of either kind.
	turnDebounce = time.Second

	// turnRateThreshold is the rotation-rate magnitude (rad/s) above
	// which a pivot is considered a turn.
	turnRateThreshold = 2.0
	// turnMagnitudeFactor: a turn additionally requires low linear
	// acceleration, below threshold * this factor.
	turnMagnitudeFactor = 0.8
	// turnSeverityDivisor normalizes rotation rate into severity.
	turnSeverityDivisor = 5.0

	// severityHeadroom: start severity saturates at threshold * (1 +
	// headroom).
	severityHeadroom = 0.5

	// minFreezeDuration: intervals shorter than this are noise and carry
	// no duration.
	minFreezeDuration = 100 * time.Millisecond

	// repeatPersistence is how long a freeze must persist before a
	// repeat cue is considered; repeatDelay is the further wait before it
	// fires.
	repeatPersistence = 2 * time.Second
	repeatDelay       = 2 * time.Second
)

// Input is the per-sample decision context.
type Input struct {
	Magnitude    float64
	RotationRate float64
	HasRotation  bool
	Threshold    float64
	Timestamp    time.Time
}

// Result carries up to three outputs of one evaluation step.
//
// Onset and Repeat are events to actuate and report. Update is a
// duration-carrying copy of an earlier onset (same ID) emitted when a
// freeze interval closes; it is reported but never actuated.
type Result struct {
	Onset  *wire.AssistEvent
	Update *wire.AssistEvent
	Repeat *wire.AssistEvent
}

// Empty reports whether the step produced no output.
func (r Result) Empty() bool {
	return r.Onset == nil && r.Update == nil && r.Repeat == nil
}

// Detector is the per-stream freeze/turn state machine. It is driven from
// the sensor callback only and must never block.
type Detector struct {
	logger *zap.Logger

	lastEvent     time.Time
	haveLastEvent bool

	// open freeze interval
	freezeActive   bool
	freezeID       string
	freezeStart    time.Time
	freezeSeverity float64
	onsetReported  bool
	repeatFired    bool
}

// New returns an idle detector.
func New(logger *zap.Logger) *Detector {
	return &Detector{logger: logger}
}

// Evaluate runs one detection step for a sample.
func (d *Detector) Evaluate(in Input, s wire.WatchSettings) Result {
	var res Result

	if d.freezeActive {
		if in.Magnitude <= in.Threshold {
			res.Update = d.closeFreeze(in.Timestamp)
		} else {
			res.Repeat = d.maybeRepeat(in, s)
		}
	}

	if !d.freezeActive && in.Magnitude > in.Threshold {
		res.Onset = d.openFreeze(in)
	} else if !d.freezeActive && in.HasRotation {
		res.Onset = d.maybeTurn(in)
	}

	return res
}

// Flush closes any open freeze interval, e.g. when monitoring stops.
// Returns a duration update if the interval was long enough to report.
func (d *Detector) Flush(now time.Time) *wire.AssistEvent {
	if !d.freezeActive {
		return nil
	}
	return d.closeFreeze(now)
}

// openFreeze starts a freeze interval on first threshold breach. The onset
// event itself is debounced separately from interval tracking.
func (d *Detector) openFreeze(in Input) *wire.AssistEvent {
	d.freezeActive = true
	d.freezeID = uuid.NewString()
	d.freezeStart = in.Timestamp
	d.repeatFired = false
	d.freezeSeverity = clamp01((in.Magnitude - in.Threshold) / (in.Threshold * severityHeadroom))

	if d.haveLastEvent && in.Timestamp.Sub(d.lastEvent) < startDebounce {
		d.onsetReported = false
		return nil
	}
	d.onsetReported = true
	d.lastEvent = in.Timestamp
	d.haveLastEvent = true

	d.logger.Debug("freeze onset",
		zap.Float64("magnitude", in.Magnitude),
		zap.Float64("threshold", in.Threshold),
		zap.Float64("severity", d.freezeSeverity),
	)
	return &wire.AssistEvent{
		ID:        d.freezeID,
		Timestamp: in.Timestamp,
		Type:      wire.EventStart,
		Severity:  d.freezeSeverity,
	}
}

// closeFreeze ends the open interval once magnitude drops back below
// threshold. Intervals shorter than minFreezeDuration are noise.
func (d *Detector) closeFreeze(at time.Time) *wire.AssistEvent {
	dur := at.Sub(d.freezeStart)
	id := d.freezeID
	severity := d.freezeSeverity
	reported := d.onsetReported

	d.freezeActive = false
	d.freezeID = ""
	d.onsetReported = false

	if dur < minFreezeDuration || !reported {
		return nil
	}
	seconds := dur.Seconds()
	return &wire.AssistEvent{
		ID:        id,
		Timestamp: at,
		Type:      wire.EventStart,
		Severity:  severity,
		Duration:  &seconds,
	}
}

// maybeRepeat re-emits an ongoing-freeze cue once the condition has
// persisted beyond repeatPersistence plus a further repeatDelay, carrying
// the original severity and the elapsed interval length. Fires at most
// once per interval.
func (d *Detector) maybeRepeat(in Input, s wire.WatchSettings) *wire.AssistEvent {
	if !s.RepeatHaptics || d.repeatFired {
		return nil
	}
	elapsed := in.Timestamp.Sub(d.freezeStart)
	if elapsed < repeatPersistence+repeatDelay {
		return nil
	}
	d.repeatFired = true
	d.lastEvent = in.Timestamp
	d.haveLastEvent = true

	seconds := elapsed.Seconds()
	return &wire.AssistEvent{
		ID:        uuid.NewString(),
		Timestamp: in.Timestamp,
		Type:      wire.EventStart,
		Severity:  d.freezeSeverity,
		Duration:  &seconds,
	}
}

// maybeTurn detects pivoting with low linear acceleration.
func (d *Detector) maybeTurn(in Input) *wire.AssistEvent {
	if in.RotationRate <= turnRateThreshold {
		return nil
	}
	if in.Magnitude >= in.Threshold*turnMagnitudeFactor {
		return nil
	}
	if d.haveLastEvent && in.Timestamp.Sub(d.lastEvent) < turnDebounce {
		return nil
	}
	d.lastEvent = in.Timestamp
	d.haveLastEvent = true

	severity := clamp01(in.RotationRate / turnSeverityDivisor)
	d.logger.Debug("turn detected",
		zap.Float64("rotation_rate", in.RotationRate),
		zap.Float64("severity", severity),
	)
	return &wire.AssistEvent{
		ID:        uuid.NewString(),
		Timestamp: in.Timestamp,
		Type:      wire.EventTurn,
		Severity:  severity,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
