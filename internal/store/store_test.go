// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

func openTemp(t *testing.T) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	f, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	return f, path
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	f, _ := openTemp(t)

	_, ok := f.Settings()
	assert.False(t, ok)
	_, ok = f.Calibration()
	assert.False(t, ok)
	assert.Empty(t, f.Events())
	assert.False(t, f.Unstable())
}

func TestSaveSettings_SurvivesReload(t *testing.T) {
	f, path := openTemp(t)

	want := wire.WatchSettings{
		HapticIntensity: 0.6,
		Sensitivity:     2.1,
		HapticPattern:   "click",
	}
	f.SaveSettings(want)

	reloaded, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	got, ok := reloaded.Settings()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSaveCalibration_ClearsUnstableFlag(t *testing.T) {
	f, _ := openTemp(t)

	f.SetUnstable(true)
	assert.True(t, f.Unstable())

	f.SaveCalibration(wire.CalibrationResult{Average: 1.0, Threshold: 1.2})
	assert.False(t, f.Unstable())

	got, ok := f.Calibration()
	require.True(t, ok)
	assert.Equal(t, 1.2, got.Threshold)
}

func TestAppendEvent_CapsHistory(t *testing.T) {
	f, _ := openTemp(t)

	for i := 0; i < EventHistoryCap+10; i++ {
		f.AppendEvent(wire.AssistEvent{ID: fmt.Sprintf("ev-%03d", i)})
	}

	events := f.Events()
	require.Len(t, events, EventHistoryCap)
	assert.Equal(t, "ev-010", events[0].ID)
}

func TestAppendEvent_ReplacesByID(t *testing.T) {
	f, _ := openTemp(t)

	f.AppendEvent(wire.AssistEvent{ID: "ev-1", Severity: 0.5})
	f.AppendEvent(wire.AssistEvent{ID: "ev-2", Severity: 0.3})

	dur := 1.5
	f.AppendEvent(wire.AssistEvent{ID: "ev-1", Severity: 0.5, Duration: &dur})

	events := f.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "ev-1", events[0].ID)
	require.NotNil(t, events[0].Duration)
	assert.Equal(t, 1.5, *events[0].Duration)
}

func TestReset_ClearsEverything(t *testing.T) {
	f, path := openTemp(t)

	f.SaveSettings(wire.WatchSettings{Sensitivity: 2.0})
	f.SaveCalibration(wire.CalibrationResult{Threshold: 1.2, Timestamp: time.Now()})
	f.AppendEvent(wire.AssistEvent{ID: "ev-1"})
	f.Reset()

	reloaded, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	_, ok := reloaded.Settings()
	assert.False(t, ok)
	_, ok = reloaded.Calibration()
	assert.False(t, ok)
	assert.Empty(t, reloaded.Events())
}
