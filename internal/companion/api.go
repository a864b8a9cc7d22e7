// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package companion

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/gait_assist/internal/synclink"
	"github.com/relabs-tech/gait_assist/internal/wire"
)

// statusResponse is the GET /api/status body.
type statusResponse struct {
	Phase             string                  `json:"phase"`
	Paired            bool                    `json:"paired"`
	Reachable         bool                    `json:"reachable"`
	LastHeartbeat     *time.Time              `json:"lastHeartbeat,omitempty"`
	LatencyMs         float64                 `json:"latencyMs"`
	EventCount        int                     `json:"eventCount"`
	CalibrationStatus wire.CalibrationStatus  `json:"calibrationStatus"`
	CalibrationResult *wire.CalibrationResult `json:"calibrationResult,omitempty"`
}

// Router builds the companion HTTP surface.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", a.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", a.handlePutSettings).Methods(http.MethodPut)
	r.HandleFunc("/api/events", a.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/telemetry", a.handleTelemetry).Methods(http.MethodGet)
	r.HandleFunc("/api/calibration/start", a.handleCalibrationStart).Methods(http.MethodPost)
	r.HandleFunc("/api/calibration/stop", a.handleCalibrationStop).Methods(http.MethodPost)
	r.HandleFunc("/api/haptic/test", a.handleHapticTest).Methods(http.MethodPost)
	r.HandleFunc("/api/reset", a.handleReset).Methods(http.MethodPost)

	r.HandleFunc("/ws/live", a.hub.handleLive)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	var linkState synclink.State
	if a.link != nil {
		linkState = a.link.State()
	}

	a.mu.RLock()
	resp := statusResponse{
		Phase:             linkState.Phase.String(),
		Paired:            linkState.Paired,
		Reachable:         linkState.Reachable,
		LatencyMs:         float64(linkState.Latency) / float64(time.Millisecond),
		EventCount:        len(a.events),
		CalibrationStatus: a.calStatus,
		CalibrationResult: a.calResult,
	}
	if !a.lastHeartbeat.IsZero() {
		hb := a.lastHeartbeat
		resp.LastHeartbeat = &hb
	}
	a.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.settings.Snapshot())
}

// handlePutSettings replaces the settings wholesale and pushes them to the
// wearable. An unreachable wearable picks the replacement up from the
// retained context on reconnect.
func (a *App) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var s wire.WatchSettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}
	a.settings.Replace(s)
	applied := a.settings.Snapshot()
	if a.link != nil {
		a.link.SendSettings(applied)
	}
	settingsPushes.Inc()
	writeJSON(w, http.StatusOK, applied)
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Events())
}

func (a *App) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Telemetry())
}

func (a *App) handleCalibrationStart(w http.ResponseWriter, r *http.Request) {
	if !a.requireReachable(w) {
		return
	}
	a.link.SendStartCalibration()
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleCalibrationStop(w http.ResponseWriter, r *http.Request) {
	if !a.requireReachable(w) {
		return
	}
	a.link.SendStopCalibration()
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleHapticTest(w http.ResponseWriter, r *http.Request) {
	if !a.requireReachable(w) {
		return
	}
	a.mu.Lock()
	a.testAck = false
	a.mu.Unlock()
	a.link.SendTestHaptic()
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleReset(w http.ResponseWriter, r *http.Request) {
	if !a.requireReachable(w) {
		return
	}
	a.link.SendFactoryReset()
	a.settings.ResetToDefaults()
	a.mu.Lock()
	a.events = nil
	a.calResult = nil
	a.mu.Unlock()
	if a.kv != nil {
		a.kv.Reset()
	}
	w.WriteHeader(http.StatusAccepted)
}

// requireReachable rejects commands when the wearable cannot take
// immediate messages. Commands are not queued: a stale start or reset
// firing minutes later would surprise the wearer.
func (a *App) requireReachable(w http.ResponseWriter) bool {
	if a.link == nil || !a.link.Reachable() {
		http.Error(w, "wearable is not reachable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
