package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_EventRoundTrip(t *testing.T) {
	dur := 2.5
	env := Envelope{
		AssistEvent: &AssistEvent{
			ID:        "ev-1",
			Timestamp: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
			Type:      EventStart,
			Severity:  0.75,
			Duration:  &dur,
		},
	}

	data, err := Encode(env)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.NotNil(t, got.AssistEvent)
	assert.Equal(t, *env.AssistEvent, *got.AssistEvent)
	assert.Nil(t, got.WatchSettings)
}

func TestEncodeDecode_SettingsAndCalibrationRoundTrip(t *testing.T) {
	env := Envelope{
		WatchSettings: &WatchSettings{
			HapticIntensity:   0.8,
			Sensitivity:       1.3,
			AdaptiveThreshold: true,
			HapticPattern:     "directionUp",
			RepeatHaptics:     true,
		},
		CalibrationResults: &CalibrationResult{
			Average:     1.0,
			StdDev:      0.1,
			Threshold:   1.2,
			SampleCount: 1500,
			Timestamp:   time.Date(2026, 8, 26, 10, 0, 30, 0, time.UTC),
		},
	}

	data, err := Encode(env)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, *env.WatchSettings, *got.WatchSettings)
	assert.Equal(t, *env.CalibrationResults, *got.CalibrationResults)
}

func TestEncode_OmitsUnsetFields(t *testing.T) {
	data, err := Encode(Envelope{TestHaptic: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"testHaptic":true}`, string(data))
}

func TestEncode_TurnEventHasNoDuration(t *testing.T) {
	env := Envelope{
		AssistEvent: &AssistEvent{ID: "ev-2", Type: EventTurn, Severity: 0.4},
	}
	data, err := Encode(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "duration")
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("{truncated"))
	assert.Error(t, err)
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	got, err := Decode([]byte(`{"heartbeatReply":true,"futureField":123}`))
	require.NoError(t, err)
	assert.True(t, got.HeartbeatReply)
}
