// Package settings owns the current WatchSettings. The settings are
// mutated only through Replace (remote sync or factory reset) and read by
// the detection logic, which holds a read-only snapshot per tick.
package settings

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/store"
	"github.com/relabs-tech/gait_assist/internal/wire"
)

// Documented ranges for the numeric fields.
const (
	MinSensitivity = 0.5
	MaxSensitivity = 5.0
)

// Defaults returns the factory settings.
func Defaults() wire.WatchSettings {
	return wire.WatchSettings{
		HapticIntensity:   0.8,
		Sensitivity:       1.3,
		AdaptiveThreshold: true,
		HapticPattern:     "directionUp",
		RepeatHaptics:     true,
	}
}

// Store holds the current settings and persists every replacement.
type Store struct {
	logger *zap.Logger
	kv     *store.File

	mu      sync.RWMutex
	current wire.WatchSettings
}

// NewStore loads persisted settings from kv, falling back to defaults.
// kv may be nil (tests), in which case nothing is persisted.
func NewStore(kv *store.File, logger *zap.Logger) *Store {
	s := &Store{logger: logger, kv: kv, current: Defaults()}
	if kv != nil {
		if saved, ok := kv.Settings(); ok {
			s.current = clamp(saved)
		}
	}
	return s
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() wire.WatchSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace overwrites the settings wholesale, clamping numeric fields to
// their documented ranges, and persists the result.
func (s *Store) Replace(next wire.WatchSettings) {
	next = clamp(next)
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if s.kv != nil {
		s.kv.SaveSettings(next)
	}
	s.logger.Info("settings replaced",
		zap.Float64("haptic_intensity", next.HapticIntensity),
		zap.Float64("sensitivity", next.Sensitivity),
		zap.Bool("adaptive_threshold", next.AdaptiveThreshold),
		zap.String("haptic_pattern", next.HapticPattern),
		zap.Bool("repeat_haptics", next.RepeatHaptics),
	)
}

// ResetToDefaults restores factory settings and persists them.
func (s *Store) ResetToDefaults() {
	s.Replace(Defaults())
}

func clamp(s wire.WatchSettings) wire.WatchSettings {
	if s.HapticIntensity < 0 {
		s.HapticIntensity = 0
	}
	if s.HapticIntensity > 1 {
		s.HapticIntensity = 1
	}
	if s.Sensitivity < MinSensitivity {
		s.Sensitivity = MinSensitivity
	}
	if s.Sensitivity > MaxSensitivity {
		s.Sensitivity = MaxSensitivity
	}
	if s.HapticPattern == "" {
		s.HapticPattern = Defaults().HapticPattern
	}
	return s
}
