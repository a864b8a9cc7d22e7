// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package synclink implements the reachability-aware channel between the
// wearable and the companion: transport selection, the offline retry queue
// for assist events, the heartbeat, and the inbound payload demultiplexer.
package synclink

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

// Phase is the link activation state.
type Phase int

const (
	PhaseNotActivated Phase = iota
	PhaseActivating
	PhaseActivated
)

func (p Phase) String() string {
	switch p {
	case PhaseActivating:
		return "activating"
	case PhaseActivated:
		return "activated"
	default:
		return "notActivated"
	}
}

const (
	// HeartbeatInterval is the ping period while monitoring is active.
	HeartbeatInterval = 5 * time.Second
	// QueueCapacity bounds the offline retry queue; overflow drops the
	// oldest event.
	QueueCapacity = 100
)

// State is a snapshot of transport health. Reachable implies Paired
// implies Activated.
type State struct {
	Phase         Phase
	Paired        bool
	Reachable     bool
	LastHeartbeat time.Time
	Latency       time.Duration
}

// Handlers receive demultiplexed inbound payloads. Nil handlers are
// skipped. Handlers run on the transport's callback goroutine; they must
// not block.
type Handlers struct {
	OnAssistEvent       func(wire.AssistEvent)
	OnSettings          func(wire.WatchSettings)
	OnCalibrationStatus func(wire.CalibrationStatus)
	OnCalibrationResult func(wire.CalibrationResult)
	OnTelemetry         func(wire.AccelSample)
	OnHeartbeat         func(wire.Heartbeat)
	OnHeartbeatReply    func(latency time.Duration)
	OnTestHaptic        func()
	OnTestHapticAck     func()
	OnStartCalibration  func()
	OnStopCalibration   func()
	OnFactoryReset      func()
}

// Options tune per-side link behavior.
type Options struct {
	// AutoReplyHeartbeat makes the link answer inbound heartbeats
	// immediately (companion side).
	AutoReplyHeartbeat bool
}

// Link is one side of the sync channel. It exclusively owns the offline
// retry queue and the connectivity state.
type Link struct {
	transport Transport
	handlers  Handlers
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	phase       Phase
	paired      bool
	connected   bool
	queue       []wire.AssistEvent
	contextEnv  wire.Envelope // merged latest-value context, per payload kind
	haveContext bool

	lastHeartbeat time.Time
	latency       time.Duration
	pingSentAt    time.Time
	pingPending   bool

	hbStop chan struct{}
}

// NewLink wires a link over a transport. Start must be called before any
// send.
func NewLink(t Transport, h Handlers, opts Options, logger *zap.Logger) *Link {
	return &Link{
		transport: t,
		handlers:  h,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Start activates the link. The transport connects in the background;
// reachability follows its callbacks.
func (l *Link) Start() error {
	l.mu.Lock()
	l.phase = PhaseActivating
	l.mu.Unlock()
	return l.transport.Start(l.handleRaw, l.handleConnection)
}

// Close stops the heartbeat and disconnects the transport.
func (l *Link) Close() {
	l.StopHeartbeat()
	l.transport.Close()
}

// State returns a connectivity snapshot.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Phase:         l.phase,
		Paired:        l.paired,
		Reachable:     l.connected && l.paired,
		LastHeartbeat: l.lastHeartbeat,
		Latency:       l.latency,
	}
}

// Reachable reports whether the peer can take immediate messages.
func (l *Link) Reachable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected && l.paired
}

// SendEvent reports an assist event. Unreachable peers get the event both
// merged into the retained context and appended to the offline retry
// queue; the queue is flushed in FIFO order once reachability returns.
func (l *Link) SendEvent(ev wire.AssistEvent) {
	l.send(wire.Envelope{AssistEvent: &ev}, &ev)
}

// SendSettings pushes a wholesale settings replacement.
func (l *Link) SendSettings(s wire.WatchSettings) {
	l.send(wire.Envelope{WatchSettings: &s}, nil)
}

// SendCalibrationStatus pushes calibration progress.
func (l *Link) SendCalibrationStatus(st wire.CalibrationStatus) {
	l.send(wire.Envelope{CalibrationStatus: &st}, nil)
}

// SendCalibrationResult pushes a completed calibration.
func (l *Link) SendCalibrationResult(r wire.CalibrationResult) {
	l.send(wire.Envelope{CalibrationResults: &r}, nil)
}

// SendTelemetry pushes one throttled raw accelerometer sample.
func (l *Link) SendTelemetry(a wire.AccelSample) {
	l.send(wire.Envelope{AccelerometerData: &a}, nil)
}

// SendTestHaptic asks the peer to fire its cooldown-bypassing test cue.
func (l *Link) SendTestHaptic() {
	l.send(wire.Envelope{TestHaptic: true}, nil)
}

// SendTestHapticAck acknowledges a test cue.
func (l *Link) SendTestHapticAck() {
	l.send(wire.Envelope{TestHapticAck: true}, nil)
}

// SendStartCalibration asks the wearable to begin calibration.
func (l *Link) SendStartCalibration() {
	l.send(wire.Envelope{StartCalibration: true}, nil)
}

// SendStopCalibration asks the wearable to cancel calibration.
func (l *Link) SendStopCalibration() {
	l.send(wire.Envelope{StopCalibration: true}, nil)
}

// SendFactoryReset issues the factory-reset command.
func (l *Link) SendFactoryReset() {
	l.send(wire.Envelope{ResetToFactory: true}, nil)
}

// send applies the transport selection policy: reachable peers get an
// immediate message; otherwise data payloads are merged into the
// latest-value context (last-write-wins per payload kind) and assist
// events are additionally queued. An assist event whose immediate publish
// fails falls back to the queue instead of being lost. Commands are
// one-shot and never persisted; sent while unreachable they are dropped.
func (l *Link) send(env wire.Envelope, event *wire.AssistEvent) {
	if l.Reachable() {
		data, err := wire.Encode(env)
		if err != nil {
			l.logger.Error("failed to encode payload", zap.Error(err))
			return
		}
		err = l.transport.Publish(data)
		if err == nil {
			return
		}
		l.logger.Warn("immediate send failed", zap.Error(err))
		if event == nil {
			return
		}
	}

	l.mu.Lock()
	merged := mergeContext(&l.contextEnv, env)
	if merged {
		l.haveContext = true
	}
	if event != nil {
		l.queue = append(l.queue, *event)
		if len(l.queue) > QueueCapacity {
			l.queue = l.queue[len(l.queue)-QueueCapacity:]
		}
	}
	l.mu.Unlock()

	if !merged {
		l.logger.Debug("dropping command while unreachable")
		return
	}
	l.publishContext()
}

// publishContext pushes the merged context retained. Safe to call while
// disconnected; the transport ignores or retries as it sees fit.
func (l *Link) publishContext() {
	l.mu.Lock()
	if !l.haveContext {
		l.mu.Unlock()
		return
	}
	env := l.contextEnv
	l.mu.Unlock()

	data, err := wire.Encode(env)
	if err != nil {
		l.logger.Error("failed to encode context", zap.Error(err))
		return
	}
	if err := l.transport.PublishRetained(data); err != nil {
		l.logger.Debug("context persistence deferred", zap.Error(err))
	}
}

// mergeContext overwrites only the data fields env carries (last-write-wins
// per payload kind) and reports whether anything merged. Command flags stay
// out of the context: a retained copy of a stale command would re-fire on
// every later reconnect.
func mergeContext(dst *wire.Envelope, env wire.Envelope) bool {
	merged := false
	if env.AssistEvent != nil {
		dst.AssistEvent = env.AssistEvent
		merged = true
	}
	if env.WatchSettings != nil {
		dst.WatchSettings = env.WatchSettings
		merged = true
	}
	if env.CalibrationStatus != nil {
		dst.CalibrationStatus = env.CalibrationStatus
		merged = true
	}
	if env.CalibrationResults != nil {
		dst.CalibrationResults = env.CalibrationResults
		merged = true
	}
	if env.AccelerometerData != nil {
		dst.AccelerometerData = env.AccelerometerData
		merged = true
	}
	return merged
}

// handleConnection tracks transport connectivity. Regained reachability
// flushes the retained context and the event queue.
func (l *Link) handleConnection(connected bool) {
	l.mu.Lock()
	l.connected = connected
	if connected {
		l.phase = PhaseActivated
	}
	reachable := l.connected && l.paired
	l.mu.Unlock()

	l.logger.Info("link connectivity changed",
		zap.Bool("connected", connected),
		zap.Bool("reachable", reachable),
	)
	if reachable {
		l.flush()
	}
}

// flush publishes any pending context and drains the offline queue in FIFO
// order via immediate messages.
func (l *Link) flush() {
	l.publishContext()

	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	l.logger.Info("flushing offline event queue", zap.Int("events", len(pending)))
	for i := range pending {
		data, err := wire.Encode(wire.Envelope{AssistEvent: &pending[i]})
		if err != nil {
			l.logger.Error("failed to encode queued event", zap.Error(err))
			continue
		}
		if err := l.transport.Publish(data); err != nil {
			l.logger.Warn("queued event send failed", zap.Error(err))
		}
	}
}

// handleRaw demultiplexes one inbound transport payload. Malformed
// payloads are dropped silently: at-most-once semantics, no retry.
func (l *Link) handleRaw(data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		l.logger.Debug("dropping malformed payload", zap.Error(err))
		return
	}

	l.mu.Lock()
	firstContact := !l.paired
	l.paired = true
	if l.phase != PhaseActivated {
		l.phase = PhaseActivated
	}
	reachable := l.connected
	l.mu.Unlock()

	if firstContact && reachable {
		l.flush()
	}

	l.dispatch(env)
}

func (l *Link) dispatch(env wire.Envelope) {
	if env.AssistEvent != nil && l.handlers.OnAssistEvent != nil {
		l.handlers.OnAssistEvent(*env.AssistEvent)
	}
	if env.WatchSettings != nil && l.handlers.OnSettings != nil {
		l.handlers.OnSettings(*env.WatchSettings)
	}
	if env.CalibrationStatus != nil && l.handlers.OnCalibrationStatus != nil {
		l.handlers.OnCalibrationStatus(*env.CalibrationStatus)
	}
	if env.CalibrationResults != nil && l.handlers.OnCalibrationResult != nil {
		l.handlers.OnCalibrationResult(*env.CalibrationResults)
	}
	if env.AccelerometerData != nil && l.handlers.OnTelemetry != nil {
		l.handlers.OnTelemetry(*env.AccelerometerData)
	}
	if env.Heartbeat != nil {
		l.mu.Lock()
		l.lastHeartbeat = env.Heartbeat.Timestamp
		l.mu.Unlock()
		if l.opts.AutoReplyHeartbeat {
			l.send(wire.Envelope{HeartbeatReply: true}, nil)
		}
		if l.handlers.OnHeartbeat != nil {
			l.handlers.OnHeartbeat(*env.Heartbeat)
		}
	}
	if env.HeartbeatReply {
		l.mu.Lock()
		var latency time.Duration
		if l.pingPending {
			latency = l.now().Sub(l.pingSentAt)
			l.latency = latency
			l.lastHeartbeat = l.now()
			l.pingPending = false
		}
		l.mu.Unlock()
		if l.handlers.OnHeartbeatReply != nil {
			l.handlers.OnHeartbeatReply(latency)
		}
	}
	if env.TestHaptic && l.handlers.OnTestHaptic != nil {
		l.handlers.OnTestHaptic()
	}
	if env.TestHapticAck && l.handlers.OnTestHapticAck != nil {
		l.handlers.OnTestHapticAck()
	}
	if env.StartCalibration && l.handlers.OnStartCalibration != nil {
		l.handlers.OnStartCalibration()
	}
	if env.StopCalibration && l.handlers.OnStopCalibration != nil {
		l.handlers.OnStopCalibration()
	}
	if env.ResetToFactory && l.handlers.OnFactoryReset != nil {
		l.handlers.OnFactoryReset()
	}
}

// StartHeartbeat begins the 5 s ping loop. Called when monitoring starts;
// a second call while running is a no-op.
func (l *Link) StartHeartbeat() {
	l.mu.Lock()
	if l.hbStop != nil {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	l.hbStop = stop
	l.mu.Unlock()

	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.ping()
			case <-stop:
				return
			}
		}
	}()
}

// StopHeartbeat ends the ping loop.
func (l *Link) StopHeartbeat() {
	l.mu.Lock()
	if l.hbStop != nil {
		close(l.hbStop)
		l.hbStop = nil
	}
	l.mu.Unlock()
}

// ping emits one timestamped heartbeat whenever the transport is
// connected. Pairing is deliberately not required: the companion's reply
// is the first contact that re-pairs a restarted wearable and lets the
// offline queue flush. The reply only updates observability fields.
func (l *Link) ping() {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	now := l.now()
	l.pingSentAt = now
	l.pingPending = true
	l.mu.Unlock()

	hb := wire.Heartbeat{Type: "heartbeat", Timestamp: now}
	data, err := wire.Encode(wire.Envelope{Heartbeat: &hb})
	if err != nil {
		l.logger.Error("failed to encode heartbeat", zap.Error(err))
		return
	}
	if err := l.transport.Publish(data); err != nil {
		l.logger.Warn("heartbeat send failed", zap.Error(err))
	}
}
