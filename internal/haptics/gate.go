package haptics

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

// Cooldown is the minimum interval between physical actuations. It gates
// actuation only; event reporting is never suppressed by it.
const Cooldown = 2500 * time.Millisecond

// Gate decides whether a detected event also triggers physical feedback,
// enforcing the fatigue cooldown.
type Gate struct {
	actuator Actuator
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastFire time.Time
	fired    bool
}

// NewGate wraps an actuator with the fatigue cooldown.
func NewGate(a Actuator, logger *zap.Logger) *Gate {
	return &Gate{actuator: a, logger: logger, now: time.Now}
}

// Actuate fires the configured haptic cue unless the cooldown is still
// running. Returns true when the cue was fired. The actuator runs on its
// own goroutine so the sensor callback never blocks on it.
func (g *Gate) Actuate(s wire.WatchSettings) bool {
	now := g.now()

	g.mu.Lock()
	if g.fired && now.Sub(g.lastFire) < Cooldown {
		g.mu.Unlock()
		return false
	}
	g.lastFire = now
	g.fired = true
	g.mu.Unlock()

	g.play(ParsePattern(s.HapticPattern), TierFor(s.HapticIntensity))
	return true
}

// TestTrigger bypasses the cooldown unconditionally. Diagnostic use only;
// it does not reset the cooldown window.
func (g *Gate) TestTrigger(s wire.WatchSettings) {
	g.play(ParsePattern(s.HapticPattern), TierFor(s.HapticIntensity))
}

// Cue plays a fixed pattern outside the event path (calibration start,
// success and failure cues). Bypasses the cooldown.
func (g *Gate) Cue(p Pattern, t Tier) {
	g.play(p, t)
}

func (g *Gate) play(p Pattern, t Tier) {
	go func() {
		if err := g.actuator.Play(p, t); err != nil {
			g.logger.Warn("haptic playback failed",
				zap.String("pattern", string(p)),
				zap.Error(err),
			)
		}
	}()
}
