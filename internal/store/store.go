// Package store provides the local key-value persistence used on both
// devices: current settings, the last calibration result, the unstable
// calibration flag, and the capped assist-event history. Everything is
// kept in a single JSON document that round-trips through the same wire
// encoding used for transport.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

// EventHistoryCap is the maximum number of assist events kept on disk.
const EventHistoryCap = 100

type document struct {
	WatchSettings       *wire.WatchSettings     `json:"watchSettings,omitempty"`
	CalibrationResults  *wire.CalibrationResult `json:"calibrationResults,omitempty"`
	UnstableCalibration bool                    `json:"unstableCalibration,omitempty"`
	AssistEvents        []wire.AssistEvent      `json:"assistEvents,omitempty"`
}

// File is a file-backed key-value store. All fields are independently
// readable and writable; every mutation is flushed to disk.
type File struct {
	path   string
	logger *zap.Logger

	mu  sync.Mutex
	doc document
}

// Open loads the store from path, or starts empty if the file does not
// exist yet.
func Open(path string, logger *zap.Logger) (*File, error) {
	f := &File{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(data, &f.doc); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return f, nil
}

// save writes the document to disk. Callers hold f.mu.
func (f *File) save() {
	data, err := json.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		f.logger.Error("failed to marshal state", zap.Error(err))
		return
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		f.logger.Error("failed to write state file",
			zap.String("path", f.path),
			zap.Error(err),
		)
	}
}

// Settings returns the persisted settings, if any.
func (f *File) Settings() (wire.WatchSettings, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc.WatchSettings == nil {
		return wire.WatchSettings{}, false
	}
	return *f.doc.WatchSettings, true
}

// SaveSettings persists the current settings wholesale.
func (f *File) SaveSettings(s wire.WatchSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.WatchSettings = &s
	f.save()
}

// Calibration returns the persisted calibration result, if any.
func (f *File) Calibration() (wire.CalibrationResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc.CalibrationResults == nil {
		return wire.CalibrationResult{}, false
	}
	return *f.doc.CalibrationResults, true
}

// SaveCalibration persists a successful calibration result and clears the
// unstable flag.
func (f *File) SaveCalibration(r wire.CalibrationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.CalibrationResults = &r
	f.doc.UnstableCalibration = false
	f.save()
}

// Unstable reports whether the last calibration run was rejected as
// unstable.
func (f *File) Unstable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.UnstableCalibration
}

// SetUnstable records a rejected calibration run.
func (f *File) SetUnstable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.UnstableCalibration = v
	f.save()
}

// AppendEvent adds an event to the history, evicting the oldest entries
// beyond EventHistoryCap. An event with an ID already present replaces the
// stored copy instead of appending (duration updates, queue-flush
// duplicates).
func (f *File) AppendEvent(ev wire.AssistEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.doc.AssistEvents {
		if f.doc.AssistEvents[i].ID == ev.ID {
			f.doc.AssistEvents[i] = ev
			f.save()
			return
		}
	}
	f.doc.AssistEvents = append(f.doc.AssistEvents, ev)
	if n := len(f.doc.AssistEvents); n > EventHistoryCap {
		f.doc.AssistEvents = f.doc.AssistEvents[n-EventHistoryCap:]
	}
	f.save()
}

// Events returns a copy of the persisted event history, oldest first.
func (f *File) Events() []wire.AssistEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.AssistEvent, len(f.doc.AssistEvents))
	copy(out, f.doc.AssistEvents)
	return out
}

// Reset clears everything: settings, calibration, unstable flag, history.
// Used by the factory-reset command.
func (f *File) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = document{}
	f.save()
}
