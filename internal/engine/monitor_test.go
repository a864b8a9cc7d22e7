// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/baseline"
	"github.com/relabs-tech/gait_assist/internal/haptics"
	"github.com/relabs-tech/gait_assist/internal/motion"
	"github.com/relabs-tech/gait_assist/internal/settings"
	"github.com/relabs-tech/gait_assist/internal/synclink"
	"github.com/relabs-tech/gait_assist/internal/wire"
)

var t0 = time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

// stubTransport records publishes and lets tests simulate the peer.
type stubTransport struct {
	mu        sync.Mutex
	published [][]byte
	onMessage func([]byte)
	onConn    func(bool)
}

func (s *stubTransport) Start(onMessage func([]byte), onConn func(bool)) error {
	s.onMessage = onMessage
	s.onConn = onConn
	return nil
}

func (s *stubTransport) Publish(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, data)
	return nil
}

func (s *stubTransport) PublishRetained(data []byte) error { return nil }
func (s *stubTransport) Connected() bool                   { return true }
func (s *stubTransport) Close()                            {}

// envelopes decodes everything published so far.
func (s *stubTransport) envelopes(t *testing.T) []wire.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Envelope, 0, len(s.published))
	for _, data := range s.published {
		env, err := wire.Decode(data)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (s *stubTransport) events(t *testing.T) []wire.AssistEvent {
	t.Helper()
	var out []wire.AssistEvent
	for _, env := range s.envelopes(t) {
		if env.AssistEvent != nil {
			out = append(out, *env.AssistEvent)
		}
	}
	return out
}

type fixture struct {
	monitor  *Monitor
	actuator *haptics.MockActuator
	tr       *stubTransport
	settings *settings.Store
}

// newFixture builds a monitor wired to a recording transport with the peer
// already reachable, bypassing the run loop so tests drive samples and
// ticks directly.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	actuator := haptics.NewMockActuator()
	st := settings.NewStore(nil, logger)

	m := New(Deps{
		Source:   motion.NewMockSource(),
		Settings: st,
		Gate:     haptics.NewGate(actuator, logger),
		Logger:   logger,
	})

	tr := &stubTransport{}
	link := synclink.NewLink(tr, m.Handlers(), synclink.Options{}, logger)
	m.BindLink(link)
	require.NoError(t, link.Start())
	tr.onConn(true)
	// One inbound message pairs the peer.
	data, err := wire.Encode(wire.Envelope{TestHapticAck: true})
	require.NoError(t, err)
	tr.onMessage(data)
	require.True(t, link.Reachable())

	m.status = StatusRunning
	return &fixture{monitor: m, actuator: actuator, tr: tr, settings: st}
}

// walkSample builds a sample with the given magnitude along one axis.
func walkSample(mag float64, offset time.Duration) motion.Sample {
	return motion.Sample{Ax: mag, Timestamp: t0.Add(offset)}
}

// feedBaseline settles the rolling baseline at roughly 1 g.
func feedBaseline(f *fixture) time.Duration {
	var offset time.Duration
	for i := 0; i < baseline.MinSamples; i++ {
		f.monitor.handleSample(walkSample(1.0, offset))
		offset += 20 * time.Millisecond
	}
	return offset
}

func TestHandleSample_OnsetReportedAndActuated(t *testing.T) {
	f := newFixture(t)
	offset := feedBaseline(f)

	// Baseline 1.0, adaptive threshold 1.3; a 2 g spike breaches it.
	f.monitor.handleSample(walkSample(2.0, offset))

	events := f.tr.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, wire.EventStart, events[0].Type)
	assert.Equal(t, 1.0, events[0].Severity)

	assert.Eventually(t, func() bool {
		return len(f.actuator.Calls()) == 1
	}, time.Second, time.Millisecond)

	snap := f.monitor.Snapshot()
	assert.InDelta(t, 1.3, snap.Threshold, 0.05)
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, events[0].ID, snap.LastEvent.ID)
}

func TestHandleSample_CooldownGatesActuationNotReporting(t *testing.T) {
	f := newFixture(t)
	offset := feedBaseline(f)

	// Two freeze episodes, sample time 600 ms apart so the detector
	// reports both; wall-clock time is near-zero so the fatigue cooldown
	// allows only the first actuation.
	f.monitor.handleSample(walkSample(2.0, offset))
	f.monitor.handleSample(walkSample(1.0, offset+200*time.Millisecond))
	f.monitor.handleSample(walkSample(2.0, offset+600*time.Millisecond))

	events := f.tr.events(t)
	// onset, duration update, onset
	require.Len(t, events, 3)
	assert.NotNil(t, events[1].Duration)
	assert.Equal(t, events[0].ID, events[1].ID)

	time.Sleep(50 * time.Millisecond) // let playback goroutines finish
	assert.Len(t, f.actuator.Calls(), 1)
}

func TestHandleSample_SuspendedDuringCalibration(t *testing.T) {
	f := newFixture(t)
	f.monitor.now = func() time.Time { return t0 }
	require.True(t, f.monitor.StartCalibration())

	// A spike during collection feeds the session instead of detection.
	f.monitor.handleSample(walkSample(2.0, 0))

	assert.Empty(t, f.tr.events(t))
	for _, env := range f.tr.envelopes(t) {
		if env.AccelerometerData != nil {
			return // throttled raw telemetry went out
		}
	}
	t.Fatal("expected telemetry during calibration")
}

func TestCalibration_EndToEnd(t *testing.T) {
	f := newFixture(t)
	now := t0
	f.monitor.now = func() time.Time { return now }

	require.True(t, f.monitor.StartCalibration())
	require.False(t, f.monitor.StartCalibration()) // no double start
	assert.True(t, f.monitor.Calibrating())

	var offset time.Duration
	for i := 0; i < 100; i++ {
		mag := 0.9
		if i%2 == 1 {
			mag = 1.1
		}
		f.monitor.handleSample(walkSample(mag, offset))
		offset += 20 * time.Millisecond
	}

	// Mid-window tick publishes progress only.
	now = t0.Add(15 * time.Second)
	f.monitor.tickSecond(now)
	// Window elapsed: the session resolves valid.
	now = t0.Add(31 * time.Second)
	f.monitor.tickSecond(now)

	assert.False(t, f.monitor.Calibrating())
	var result *wire.CalibrationResult
	for _, env := range f.tr.envelopes(t) {
		if env.CalibrationResults != nil {
			result = env.CalibrationResults
		}
	}
	require.NotNil(t, result)
	assert.InDelta(t, 1.0, result.Average, 1e-9)
	assert.InDelta(t, 1.2, result.Threshold, 1e-9)

	// The calibrated threshold now drives detection directly.
	f.monitor.handleSample(walkSample(1.15, 31*time.Second))
	assert.Empty(t, f.tr.events(t))
	f.monitor.handleSample(walkSample(1.3, 31*time.Second+20*time.Millisecond))
	assert.Len(t, f.tr.events(t), 1)
}

func TestStartCalibration_RequiresRunning(t *testing.T) {
	f := newFixture(t)
	f.monitor.status = StatusStopped
	assert.False(t, f.monitor.StartCalibration())
}

func TestStopCalibration_DiscardsSession(t *testing.T) {
	f := newFixture(t)
	now := t0
	f.monitor.now = func() time.Time { return now }

	require.True(t, f.monitor.StartCalibration())
	f.monitor.handleSample(walkSample(1.0, 0))
	f.monitor.StopCalibration()

	assert.False(t, f.monitor.Calibrating())
	// The window elapsing later must not resurrect the session.
	now = t0.Add(31 * time.Second)
	f.monitor.tickSecond(now)
	for _, env := range f.tr.envelopes(t) {
		assert.Nil(t, env.CalibrationResults)
	}
}

func TestFactoryReset_RestoresDefaultsAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.settings.Replace(wire.WatchSettings{Sensitivity: 3.0, HapticIntensity: 0.2})

	notified := false
	f.monitor.OnFactoryReset(func() { notified = true })
	f.monitor.FactoryReset()

	assert.True(t, notified)
	assert.Equal(t, settings.Defaults(), f.settings.Snapshot())

	// Restored settings are pushed to the companion as acknowledgement.
	var pushed *wire.WatchSettings
	for _, env := range f.tr.envelopes(t) {
		if env.WatchSettings != nil {
			pushed = env.WatchSettings
		}
	}
	require.NotNil(t, pushed)
	assert.Equal(t, settings.Defaults(), *pushed)
}

func TestHandlers_TestHapticTriggersAndAcks(t *testing.T) {
	f := newFixture(t)

	data, err := wire.Encode(wire.Envelope{TestHaptic: true})
	require.NoError(t, err)
	f.tr.onMessage(data)

	assert.Eventually(t, func() bool {
		return len(f.actuator.Calls()) == 1
	}, time.Second, time.Millisecond)

	var acked bool
	for _, env := range f.tr.envelopes(t) {
		if env.TestHapticAck {
			acked = true
		}
	}
	assert.True(t, acked)
}

func TestStart_WithoutSourceReportsUnavailable(t *testing.T) {
	m := New(Deps{
		Settings: settings.NewStore(nil, zap.NewNop()),
		Gate:     haptics.NewGate(haptics.NewMockActuator(), zap.NewNop()),
		Logger:   zap.NewNop(),
	})
	m.Start()
	assert.Equal(t, StatusSensorUnavailable, m.Status())
}
