// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package engine runs the wearable-side monitoring loop: sensor ticks feed
// the baseline tracker and the freeze/turn detector, decisions pass the
// haptic gate, and every event is forwarded over the sync link.
//
// One goroutine owns the loop and both of its timers (the per-sample tick
// and the 1 Hz progress tick), so hot-path state is single-writer by
// construction. Transport callbacks mutate only mutex-guarded state.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/baseline"
	"github.com/relabs-tech/gait_assist/internal/calibration"
	"github.com/relabs-tech/gait_assist/internal/detector"
	"github.com/relabs-tech/gait_assist/internal/haptics"
	"github.com/relabs-tech/gait_assist/internal/motion"
	"github.com/relabs-tech/gait_assist/internal/settings"
	"github.com/relabs-tech/gait_assist/internal/store"
	"github.com/relabs-tech/gait_assist/internal/synclink"
	"github.com/relabs-tech/gait_assist/internal/wire"
)

// Status is the monitoring lifecycle state.
type Status string

const (
	StatusStopped           Status = "stopped"
	StatusRunning           Status = "running"
	StatusSensorUnavailable Status = "sensorUnavailable"
)

// DefaultSampleInterval matches the fixed 50 Hz sampling configuration.
const DefaultSampleInterval = 20 * time.Millisecond

// Calibration cue shapes (outside the event path, cooldown-exempt).
const (
	cueCalibrationStart   = haptics.PatternClick
	cueCalibrationSuccess = haptics.PatternStart
	cueCalibrationFailure = haptics.PatternStop
)

// Snapshot is the wearable's user-visible state, rendered by the status
// display.
type Snapshot struct {
	Status      Status
	Baseline    float64
	Threshold   float64
	Calibrating bool
	Unstable    bool
	Link        synclink.State
	LastEvent   *wire.AssistEvent
}

// StatusSink receives snapshots once per second while monitoring runs.
type StatusSink interface {
	Update(Snapshot)
}

// Deps are the injected collaborators. Source may be nil, in which case
// Start is a no-op reporting StatusSensorUnavailable.
type Deps struct {
	Source         motion.Source
	Settings       *settings.Store
	Gate           *haptics.Gate
	KV             *store.File
	Display        StatusSink
	Logger         *zap.Logger
	SampleInterval time.Duration
}

// Monitor is the detection-and-actuation engine.
type Monitor struct {
	source   motion.Source
	settings *settings.Store
	gate     *haptics.Gate
	kv       *store.File
	display  StatusSink
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	tracker *baseline.Tracker
	det     *detector.Detector
	calib   *calibration.Controller
	link    *synclink.Link

	mu            sync.Mutex
	status        Status
	calResult     *wire.CalibrationResult
	lastEvent     *wire.AssistEvent
	lastBaseline  float64
	lastThreshold float64
	stop          chan struct{}
	wg            sync.WaitGroup
	onReset       func()
}

// New builds a monitor. The link is attached separately with BindLink,
// since the link's inbound handlers come from the monitor itself.
func New(d Deps) *Monitor {
	if d.SampleInterval == 0 {
		d.SampleInterval = DefaultSampleInterval
	}
	m := &Monitor{
		source:   d.Source,
		settings: d.Settings,
		gate:     d.Gate,
		kv:       d.KV,
		display:  d.Display,
		logger:   d.Logger,
		interval: d.SampleInterval,
		now:      time.Now,
		tracker:  baseline.NewTracker(),
		det:      detector.New(d.Logger),
		calib:    calibration.NewController(d.KV, d.Logger),
		status:   StatusStopped,
	}
	if d.KV != nil {
		if r, ok := d.KV.Calibration(); ok {
			m.calResult = &r
			m.tracker.Replace(r.Average)
		}
	}
	return m
}

// BindLink attaches the sync link used for all outbound traffic.
func (m *Monitor) BindLink(l *synclink.Link) {
	m.link = l
}

// OnFactoryReset registers the internal notification posted after a
// factory reset (consumed by the UI collaborator).
func (m *Monitor) OnFactoryReset(fn func()) {
	m.onReset = fn
}

// Handlers returns the inbound dispatch targets for the wearable side of
// the link.
func (m *Monitor) Handlers() synclink.Handlers {
	return synclink.Handlers{
		OnSettings: func(s wire.WatchSettings) {
			m.settings.Replace(s)
		},
		OnTestHaptic: func() {
			m.gate.TestTrigger(m.settings.Snapshot())
			m.link.SendTestHapticAck()
		},
		OnStartCalibration: func() { m.StartCalibration() },
		OnStopCalibration:  func() { m.StopCalibration() },
		OnFactoryReset:     func() { m.FactoryReset() },
	}
}

// Status returns the lifecycle state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start begins monitoring. Without a motion source this is a no-op that
// leaves the monitor in StatusSensorUnavailable; no event stream is
// produced.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.status == StatusRunning {
		m.mu.Unlock()
		return
	}
	if m.source == nil {
		m.status = StatusSensorUnavailable
		m.mu.Unlock()
		m.logger.Warn("motion sensor unavailable, monitoring not started")
		return
	}
	m.status = StatusRunning
	m.stop = make(chan struct{})
	m.mu.Unlock()

	m.link.StartHeartbeat()
	m.wg.Add(1)
	go m.run()
	m.logger.Info("monitoring started", zap.Duration("sample_interval", m.interval))
}

// Stop ends monitoring: both timers are invalidated, the sensor stream
// stops, and an in-progress calibration is cancelled with its uncommitted
// samples discarded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.status = StatusStopped
		m.mu.Unlock()
		return
	}
	m.status = StatusStopped
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()
	m.link.StopHeartbeat()

	if m.calib.Collecting() {
		m.calib.Stop()
		m.link.SendCalibrationStatus(wire.CalibrationStatus{})
	}
	if ev := m.det.Flush(m.now()); ev != nil {
		m.link.SendEvent(*ev)
	}
	m.logger.Info("monitoring stopped")
}

// run is the single owner of the hot path and both timers.
func (m *Monitor) run() {
	defer m.wg.Done()

	sampleTick := time.NewTicker(m.interval)
	defer sampleTick.Stop()
	secondTick := time.NewTicker(time.Second)
	defer secondTick.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-sampleTick.C:
			sample, err := m.source.Next()
			if err != nil {
				m.logger.Debug("sensor read failed", zap.Error(err))
				continue
			}
			m.handleSample(sample)
		case <-secondTick.C:
			m.tickSecond(m.now())
		}
	}
}

// handleSample is the per-sample hot path. It never blocks: haptics run on
// the gate's goroutine and link sends are fire-and-forget.
func (m *Monitor) handleSample(sample motion.Sample) {
	mag := sample.Magnitude()

	// During calibration, samples feed the session only; detection and
	// the rolling baseline are suspended until the session resolves.
	if m.calib.Collecting() {
		if m.calib.Feed(mag) {
			m.link.SendTelemetry(wire.AccelSample{
				X:         sample.Ax,
				Y:         sample.Ay,
				Z:         sample.Az,
				Timestamp: sample.Timestamp,
			})
		}
		return
	}

	s := m.settings.Snapshot()
	b := m.tracker.Update(mag)
	cal := m.calibration()
	threshold := m.tracker.Threshold(cal, s)

	res := m.det.Evaluate(detector.Input{
		Magnitude:    mag,
		RotationRate: sample.RotationRate(),
		HasRotation:  sample.HasRotation,
		Threshold:    threshold,
		Timestamp:    sample.Timestamp,
	}, s)

	if res.Onset != nil {
		m.emit(*res.Onset, s, true)
	}
	if res.Repeat != nil {
		m.emit(*res.Repeat, s, true)
	}
	if res.Update != nil {
		m.emit(*res.Update, s, false)
	}

	m.mu.Lock()
	m.lastBaseline = b
	m.lastThreshold = threshold
	m.mu.Unlock()
}

// emit forwards an event unconditionally to the sync link; actuation is
// gated separately by the fatigue cooldown and never suppresses reporting.
func (m *Monitor) emit(ev wire.AssistEvent, s wire.WatchSettings, actuate bool) {
	if actuate {
		fired := m.gate.Actuate(s)
		if !fired {
			m.logger.Debug("haptic suppressed by cooldown, event still reported",
				zap.String("type", ev.Type),
			)
		}
	}
	m.link.SendEvent(ev)

	m.mu.Lock()
	m.lastEvent = &ev
	m.mu.Unlock()
}

// tickSecond drives calibration progress and the status display.
func (m *Monitor) tickSecond(now time.Time) {
	if m.calib.Collecting() {
		m.link.SendCalibrationStatus(m.calib.Status(now))

		result, state := m.calib.FinishIfDue(now)
		switch state {
		case calibration.StateValid:
			m.setCalibration(result)
			m.gate.Cue(cueCalibrationSuccess, haptics.TierFull)
			m.link.SendCalibrationResult(*result)
			m.link.SendCalibrationStatus(wire.CalibrationStatus{})
		case calibration.StateUnstable:
			m.gate.Cue(cueCalibrationFailure, haptics.TierFull)
			m.link.SendCalibrationStatus(wire.CalibrationStatus{})
		case calibration.StateIdle:
			// Empty collection, treated as a cancel. No haptic.
			m.link.SendCalibrationStatus(wire.CalibrationStatus{})
		}
	}

	if m.display != nil {
		m.display.Update(m.Snapshot())
	}
}

// StartCalibration begins a calibration session. Requires an active
// monitoring stream; rejected while already collecting.
func (m *Monitor) StartCalibration() bool {
	if m.Status() != StatusRunning {
		m.logger.Warn("calibration start rejected, monitoring not running")
		return false
	}
	if !m.calib.Start(m.now()) {
		return false
	}
	m.gate.Cue(cueCalibrationStart, haptics.TierSingle)
	m.link.SendCalibrationStatus(m.calib.Status(m.now()))
	return true
}

// StopCalibration cancels an in-progress session, discarding its data.
func (m *Monitor) StopCalibration() {
	if !m.calib.Collecting() {
		return
	}
	m.calib.Stop()
	m.link.SendCalibrationStatus(wire.CalibrationStatus{})
}

// Calibrating reports whether a session is active.
func (m *Monitor) Calibrating() bool {
	return m.calib.Collecting()
}

// FactoryReset restores defaults: settings, calibration and event history
// are cleared, the baseline starts over, and the registered notification
// fires. The companion is sent the restored settings as acknowledgement.
func (m *Monitor) FactoryReset() {
	m.calib.Stop()
	if m.kv != nil {
		m.kv.Reset()
	}
	m.settings.ResetToDefaults()
	m.tracker.Reset()

	m.mu.Lock()
	m.calResult = nil
	m.lastEvent = nil
	m.mu.Unlock()

	m.logger.Info("factory reset applied")
	m.link.SendSettings(m.settings.Snapshot())
	if m.onReset != nil {
		m.onReset()
	}
}

// Snapshot returns the current user-visible state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Status:      m.status,
		Baseline:    m.lastBaseline,
		Threshold:   m.lastThreshold,
		Calibrating: m.calib.Collecting(),
		Unstable:    m.kv != nil && m.kv.Unstable(),
		Link:        m.link.State(),
		LastEvent:   m.lastEvent,
	}
}

// calibration returns the cached persisted result, nil when none exists.
func (m *Monitor) calibration() *wire.CalibrationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calResult
}

func (m *Monitor) setCalibration(r *wire.CalibrationResult) {
	m.mu.Lock()
	m.calResult = r
	m.mu.Unlock()
	// The calibrated mean replaces the live rolling baseline.
	m.tracker.Replace(r.Average)
}
