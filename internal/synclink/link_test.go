// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package synclink

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

// fakeTransport is an in-memory Transport recording everything published.
type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	failPublish bool
	published   [][]byte
	retained    [][]byte

	onMessage func([]byte)
	onConn    func(bool)
}

func (f *fakeTransport) Start(onMessage func([]byte), onConn func(bool)) error {
	f.onMessage = onMessage
	f.onConn = onConn
	return nil
}

func (f *fakeTransport) Publish(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPublish {
		return errors.New("not connected")
	}
	f.published = append(f.published, data)
	return nil
}

func (f *fakeTransport) PublishRetained(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retained = append(f.retained, data)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() {}

// setFailPublish flips immediate publishes between success and error.
func (f *fakeTransport) setFailPublish(v bool) {
	f.mu.Lock()
	f.failPublish = v
	f.mu.Unlock()
}

// setConnected simulates a transport connectivity change.
func (f *fakeTransport) setConnected(t *testing.T, v bool) {
	t.Helper()
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
	require.NotNil(t, f.onConn)
	f.onConn(v)
}

// deliver feeds an inbound envelope through the raw handler.
func (f *fakeTransport) deliver(t *testing.T, env wire.Envelope) {
	t.Helper()
	data, err := wire.Encode(env)
	require.NoError(t, err)
	f.onMessage(data)
}

func (f *fakeTransport) publishedEnvelopes(t *testing.T) []wire.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Envelope, 0, len(f.published))
	for _, data := range f.published {
		env, err := wire.Decode(data)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (f *fakeTransport) lastRetained(t *testing.T) (wire.Envelope, bool) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.retained) == 0 {
		return wire.Envelope{}, false
	}
	env, err := wire.Decode(f.retained[len(f.retained)-1])
	require.NoError(t, err)
	return env, true
}

func newTestLink(t *testing.T, h Handlers, opts Options) (*Link, *fakeTransport) {
	ft := &fakeTransport{}
	l := NewLink(ft, h, opts, zap.NewNop())
	require.NoError(t, l.Start())
	return l, ft
}

// pair makes the peer reachable: transport up plus one inbound message.
func pair(t *testing.T, ft *fakeTransport) {
	ft.setConnected(t, true)
	ft.deliver(t, wire.Envelope{TestHapticAck: true})
}

func event(id string) wire.AssistEvent {
	return wire.AssistEvent{
		ID:        id,
		Timestamp: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		Type:      wire.EventStart,
		Severity:  0.5,
	}
}

func TestSendEvent_ImmediateWhenReachable(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})
	pair(t, ft)

	l.SendEvent(event("ev-1"))

	envs := ft.publishedEnvelopes(t)
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].AssistEvent)
	assert.Equal(t, "ev-1", envs[0].AssistEvent.ID)
	assert.Empty(t, ft.retained)
}

func TestSendEvent_QueuedOfflineAndFlushedFIFO(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})

	l.SendEvent(event("ev-1"))
	l.SendEvent(event("ev-2"))
	assert.Empty(t, ft.publishedEnvelopes(t))

	// Both events landed in the retained context (last write wins).
	ctx, ok := ft.lastRetained(t)
	require.True(t, ok)
	require.NotNil(t, ctx.AssistEvent)
	assert.Equal(t, "ev-2", ctx.AssistEvent.ID)

	pair(t, ft)

	envs := ft.publishedEnvelopes(t)
	require.Len(t, envs, 2)
	assert.Equal(t, "ev-1", envs[0].AssistEvent.ID)
	assert.Equal(t, "ev-2", envs[1].AssistEvent.ID)

	// The queue drained; a reconnect must not replay.
	ft.setConnected(t, false)
	ft.setConnected(t, true)
	assert.Len(t, ft.publishedEnvelopes(t), 2)
}

func TestSendEvent_QueueDropsOldestBeyondCapacity(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})

	for i := 0; i < QueueCapacity+5; i++ {
		l.SendEvent(event(fmt.Sprintf("ev-%03d", i)))
	}
	pair(t, ft)

	envs := ft.publishedEnvelopes(t)
	require.Len(t, envs, QueueCapacity)
	assert.Equal(t, "ev-005", envs[0].AssistEvent.ID)
	assert.Equal(t, fmt.Sprintf("ev-%03d", QueueCapacity+4), envs[len(envs)-1].AssistEvent.ID)
}

func TestSend_ContextMergesPerPayloadKind(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})

	l.SendSettings(wire.WatchSettings{Sensitivity: 1.0})
	l.SendSettings(wire.WatchSettings{Sensitivity: 2.0})
	l.SendEvent(event("ev-1"))

	ctx, ok := ft.lastRetained(t)
	require.True(t, ok)
	require.NotNil(t, ctx.WatchSettings)
	assert.Equal(t, 2.0, ctx.WatchSettings.Sensitivity)
	require.NotNil(t, ctx.AssistEvent)
	assert.Equal(t, "ev-1", ctx.AssistEvent.ID)
}

func TestHandleRaw_Demultiplexes(t *testing.T) {
	var gotEvent *wire.AssistEvent
	var gotSettings *wire.WatchSettings
	var startCal bool
	h := Handlers{
		OnAssistEvent:      func(ev wire.AssistEvent) { gotEvent = &ev },
		OnSettings:         func(s wire.WatchSettings) { gotSettings = &s },
		OnStartCalibration: func() { startCal = true },
	}
	_, ft := newTestLink(t, h, Options{})
	ft.setConnected(t, true)

	ev := event("ev-1")
	ft.deliver(t, wire.Envelope{
		AssistEvent:      &ev,
		WatchSettings:    &wire.WatchSettings{Sensitivity: 1.7},
		StartCalibration: true,
	})

	require.NotNil(t, gotEvent)
	assert.Equal(t, "ev-1", gotEvent.ID)
	require.NotNil(t, gotSettings)
	assert.Equal(t, 1.7, gotSettings.Sensitivity)
	assert.True(t, startCal)
}

func TestHandleRaw_MalformedPayloadDropped(t *testing.T) {
	called := false
	l, ft := newTestLink(t, Handlers{
		OnAssistEvent: func(wire.AssistEvent) { called = true },
	}, Options{})
	ft.setConnected(t, true)

	ft.onMessage([]byte("{not json"))

	assert.False(t, called)
	// A malformed payload is not contact; the peer stays unpaired.
	assert.False(t, l.Reachable())
}

func TestHandleRaw_FirstContactPairs(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})
	ft.setConnected(t, true)
	assert.False(t, l.Reachable())

	ft.deliver(t, wire.Envelope{TestHapticAck: true})
	assert.True(t, l.Reachable())

	st := l.State()
	assert.Equal(t, PhaseActivated, st.Phase)
	assert.True(t, st.Paired)
}

func TestDispatch_HeartbeatAutoReply(t *testing.T) {
	var heard bool
	_, ft := newTestLink(t, Handlers{
		OnHeartbeat: func(wire.Heartbeat) { heard = true },
	}, Options{AutoReplyHeartbeat: true})
	pair(t, ft)

	hb := wire.Heartbeat{Type: "heartbeat", Timestamp: time.Now()}
	ft.deliver(t, wire.Envelope{Heartbeat: &hb})

	assert.True(t, heard)
	envs := ft.publishedEnvelopes(t)
	require.Len(t, envs, 1)
	assert.True(t, envs[0].HeartbeatReply)
}

func TestDispatch_HeartbeatReplyMeasuresLatency(t *testing.T) {
	var got time.Duration
	l, ft := newTestLink(t, Handlers{
		OnHeartbeatReply: func(d time.Duration) { got = d },
	}, Options{})
	pair(t, ft)

	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.ping()
	now = now.Add(42 * time.Millisecond)
	ft.deliver(t, wire.Envelope{HeartbeatReply: true})

	assert.Equal(t, 42*time.Millisecond, got)
	assert.Equal(t, 42*time.Millisecond, l.State().Latency)
}

func TestPing_SkippedWhileDisconnected(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})
	l.ping()
	assert.Empty(t, ft.publishedEnvelopes(t))
}

func TestPing_HeartbeatPairsAndFlushesQueue(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})

	l.SendEvent(event("ev-1"))
	l.SendEvent(event("ev-2"))

	// A silent companion never initiates traffic; after a wearable
	// restart the heartbeat itself must re-establish pairing.
	ft.setConnected(t, true)
	assert.False(t, l.Reachable())

	l.ping()
	envs := ft.publishedEnvelopes(t)
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].Heartbeat)

	ft.deliver(t, wire.Envelope{HeartbeatReply: true})
	assert.True(t, l.Reachable())

	envs = ft.publishedEnvelopes(t)
	require.Len(t, envs, 3)
	assert.Equal(t, "ev-1", envs[1].AssistEvent.ID)
	assert.Equal(t, "ev-2", envs[2].AssistEvent.ID)
}

func TestSendEvent_RequeuedWhenImmediateSendFails(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})
	pair(t, ft)

	ft.setFailPublish(true)
	l.SendEvent(event("ev-1"))
	assert.Empty(t, ft.publishedEnvelopes(t))

	ft.setFailPublish(false)
	ft.setConnected(t, false)
	ft.setConnected(t, true)

	envs := ft.publishedEnvelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "ev-1", envs[0].AssistEvent.ID)
}

func TestSend_CommandsNotPersistedInContext(t *testing.T) {
	l, ft := newTestLink(t, Handlers{}, Options{})

	l.SendTestHaptic()
	l.SendFactoryReset()
	assert.Empty(t, ft.retained)

	l.SendSettings(wire.WatchSettings{Sensitivity: 1.5})
	ctx, ok := ft.lastRetained(t)
	require.True(t, ok)
	assert.False(t, ctx.TestHaptic)
	assert.False(t, ctx.ResetToFactory)
	require.NotNil(t, ctx.WatchSettings)
}
