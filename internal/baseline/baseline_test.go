package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

func TestUpdate_NotReadyBeforeMinSamples(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < MinSamples-1; i++ {
		tr.Update(1.0)
	}
	_, ready := tr.Baseline()
	assert.False(t, ready)

	tr.Update(1.0)
	b, ready := tr.Baseline()
	assert.True(t, ready)
	assert.Equal(t, 1.0, b)
}

func TestUpdate_MedianResistsSpike(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 30; i++ {
		tr.Update(1.0)
	}
	// A single spike must not move the median.
	b := tr.Update(9.0)
	assert.Equal(t, 1.0, b)
}

func TestUpdate_WindowEvictsOldest(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < WindowCapacity; i++ {
		tr.Update(1.0)
	}
	// Fill the entire window with a new level; the old values are gone.
	for i := 0; i < WindowCapacity; i++ {
		tr.Update(2.0)
	}
	b, _ := tr.Baseline()
	assert.Equal(t, 2.0, b)
}

func TestReplace_InstallsCalibratedBaseline(t *testing.T) {
	tr := NewTracker()
	tr.Replace(1.5)

	b, ready := tr.Baseline()
	assert.True(t, ready)
	assert.Equal(t, 1.5, b)

	// The rolling window restarts empty and takes over once it has
	// enough samples again.
	for i := 0; i < MinSamples; i++ {
		tr.Update(1.0)
	}
	b, _ = tr.Baseline()
	assert.Equal(t, 1.0, b)
}

func TestReset_ClearsEverything(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < MinSamples; i++ {
		tr.Update(1.0)
	}
	tr.Reset()
	b, ready := tr.Baseline()
	assert.False(t, ready)
	assert.Zero(t, b)
}

func TestThreshold_CalibratedAdaptive(t *testing.T) {
	tr := NewTracker()
	cal := &wire.CalibrationResult{Threshold: 1.42}
	s := wire.WatchSettings{AdaptiveThreshold: true, Sensitivity: 1.3}

	assert.Equal(t, 1.42, tr.Threshold(cal, s))
}

func TestThreshold_CalibratedFixedUsesFloor(t *testing.T) {
	tr := NewTracker()
	cal := &wire.CalibrationResult{Threshold: 2.0}
	s := wire.WatchSettings{AdaptiveThreshold: false, Sensitivity: 1.3}

	// max(1.3, 2.0*0.8) = 1.6
	assert.InDelta(t, 1.6, tr.Threshold(cal, s), 1e-9)

	// A sensitivity above the floor wins.
	s.Sensitivity = 1.8
	assert.Equal(t, 1.8, tr.Threshold(cal, s))
}

func TestThreshold_UncalibratedAdaptiveScalesBaseline(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < MinSamples; i++ {
		tr.Update(1.0)
	}
	s := wire.WatchSettings{AdaptiveThreshold: true, Sensitivity: 1.3}
	assert.InDelta(t, 1.3, tr.Threshold(nil, s), 1e-9)
}

func TestThreshold_FallsBackToSensitivity(t *testing.T) {
	tr := NewTracker()
	s := wire.WatchSettings{AdaptiveThreshold: true, Sensitivity: 0.9}

	// No calibration and no settled baseline.
	assert.Equal(t, 0.9, tr.Threshold(nil, s))

	// Fixed mode ignores the baseline entirely.
	for i := 0; i < MinSamples; i++ {
		tr.Update(2.0)
	}
	s.AdaptiveThreshold = false
	assert.Equal(t, 0.9, tr.Threshold(nil, s))
}

func TestMedian_EvenLengthAveragesMiddle(t *testing.T) {
	assert.Equal(t, 1.5, median([]float64{2, 1, 1, 2}))
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
}
