// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package companion implements the handheld side: it receives events,
// telemetry and calibration data from the wearable, persists the event
// history, and exposes the settings/command surface over HTTP, a live
// websocket stream, and Prometheus metrics.
package companion

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/settings"
	"github.com/relabs-tech/gait_assist/internal/store"
	"github.com/relabs-tech/gait_assist/internal/synclink"
	"github.com/relabs-tech/gait_assist/internal/wire"
)

// TelemetryCap bounds the in-memory live telemetry buffer; the oldest
// samples are evicted.
const TelemetryCap = 500

var (
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gait_assist_events_received_total",
		Help: "Assist events received from the wearable",
	}, []string{"type"})

	telemetryReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gait_assist_telemetry_samples_total",
		Help: "Raw accelerometer samples received during calibration",
	})

	lastHeartbeatTS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gait_assist_last_heartbeat_timestamp_seconds",
		Help: "Unix timestamp of the last wearable heartbeat",
	})

	settingsPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gait_assist_settings_pushes_total",
		Help: "Settings replacements pushed to the wearable over HTTP",
	})
)

// App holds the companion-side published state. All mutation happens in
// link callbacks and HTTP handlers, guarded by one mutex.
type App struct {
	link     *synclink.Link
	kv       *store.File
	settings *settings.Store
	logger   *zap.Logger

	mu            sync.RWMutex
	events        []wire.AssistEvent
	telemetry     []wire.AccelSample
	calStatus     wire.CalibrationStatus
	calResult     *wire.CalibrationResult
	lastHeartbeat time.Time
	testAck       bool

	hub *liveHub
}

// New builds the companion application. The link is attached afterwards
// with BindLink, since the link's handlers come from the app.
func New(kv *store.File, st *settings.Store, logger *zap.Logger) *App {
	a := &App{
		kv:       kv,
		settings: st,
		logger:   logger,
		hub:      newLiveHub(logger),
	}
	if kv != nil {
		a.events = kv.Events()
		if r, ok := kv.Calibration(); ok {
			a.calResult = &r
		}
	}
	return a
}

// BindLink attaches the sync link.
func (a *App) BindLink(l *synclink.Link) {
	a.link = l
}

// Handlers returns the inbound dispatch targets for the companion side.
func (a *App) Handlers() synclink.Handlers {
	return synclink.Handlers{
		OnAssistEvent:       a.onEvent,
		OnSettings:          a.onSettings,
		OnCalibrationStatus: a.onCalibrationStatus,
		OnCalibrationResult: a.onCalibrationResult,
		OnTelemetry:         a.onTelemetry,
		OnHeartbeat:         a.onHeartbeat,
		OnTestHapticAck:     a.onTestHapticAck,
	}
}

// onEvent appends to the capped history. An event with a known ID
// replaces the stored copy: duration updates and queue-flush duplicates
// arrive with the ID of the original onset.
func (a *App) onEvent(ev wire.AssistEvent) {
	a.mu.Lock()
	replaced := false
	for i := range a.events {
		if a.events[i].ID == ev.ID {
			a.events[i] = ev
			replaced = true
			break
		}
	}
	if !replaced {
		a.events = append(a.events, ev)
		if n := len(a.events); n > store.EventHistoryCap {
			a.events = a.events[n-store.EventHistoryCap:]
		}
	}
	a.mu.Unlock()

	if !replaced {
		eventsReceived.WithLabelValues(ev.Type).Inc()
	}
	if a.kv != nil {
		a.kv.AppendEvent(ev)
	}
	a.hub.broadcast(liveMessage{Event: &ev})
}

func (a *App) onSettings(s wire.WatchSettings) {
	a.settings.Replace(s)
}

func (a *App) onCalibrationStatus(st wire.CalibrationStatus) {
	a.mu.Lock()
	a.calStatus = st
	a.mu.Unlock()
	a.hub.broadcast(liveMessage{CalibrationStatus: &st})
}

func (a *App) onCalibrationResult(r wire.CalibrationResult) {
	a.mu.Lock()
	a.calResult = &r
	a.mu.Unlock()
	if a.kv != nil {
		a.kv.SaveCalibration(r)
	}
	a.hub.broadcast(liveMessage{CalibrationResult: &r})
}

// onTelemetry keeps the most recent TelemetryCap raw samples to bound
// memory, and fans them out to live websocket viewers.
func (a *App) onTelemetry(sample wire.AccelSample) {
	a.mu.Lock()
	a.telemetry = append(a.telemetry, sample)
	if n := len(a.telemetry); n > TelemetryCap {
		a.telemetry = a.telemetry[n-TelemetryCap:]
	}
	a.mu.Unlock()

	telemetryReceived.Inc()
	a.hub.broadcast(liveMessage{Telemetry: &sample})
}

// onHeartbeat records freshness. The link itself already replied.
func (a *App) onHeartbeat(hb wire.Heartbeat) {
	now := time.Now()
	a.mu.Lock()
	a.lastHeartbeat = now
	a.mu.Unlock()
	lastHeartbeatTS.Set(float64(now.Unix()))
}

func (a *App) onTestHapticAck() {
	a.mu.Lock()
	a.testAck = true
	a.mu.Unlock()
	a.logger.Info("test haptic acknowledged by wearable")
}

// Events returns a copy of the received history, oldest first.
func (a *App) Events() []wire.AssistEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]wire.AssistEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Telemetry returns a copy of the live telemetry buffer.
func (a *App) Telemetry() []wire.AccelSample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]wire.AccelSample, len(a.telemetry))
	copy(out, a.telemetry)
	return out
}
