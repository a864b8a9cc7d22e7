// Package haptics drives the vibration motor: pattern selection, intensity
// tiers, and the anti-fatigue actuation gate.
package haptics

// Pattern identifies a haptic cue shape.
type Pattern string

const (
	PatternDirectionUp  Pattern = "directionUp"
	PatternNotification Pattern = "notification"
	PatternStart        Pattern = "start"
	PatternStop         Pattern = "stop"
	PatternClick        Pattern = "click"
)

// ParsePattern maps a settings string to a pattern, falling back to the
// directionUp default for unknown values.
func ParsePattern(s string) Pattern {
	switch Pattern(s) {
	case PatternNotification, PatternStart, PatternStop, PatternClick:
		return Pattern(s)
	default:
		return PatternDirectionUp
	}
}

// Tier is the intensity class derived from the configured haptic level.
type Tier int

const (
	// TierFull plays the full pattern.
	TierFull Tier = iota
	// TierSingle plays a single pulse of the pattern.
	TierSingle
	// TierLight plays a lighter fallback pulse.
	TierLight
)

// TierFor maps a configured intensity level to a tier:
// >0.7 full pattern, 0.4..0.7 single pulse, <0.4 light fallback.
func TierFor(level float64) Tier {
	switch {
	case level > 0.7:
		return TierFull
	case level >= 0.4:
		return TierSingle
	default:
		return TierLight
	}
}

// Actuator is the capability interface for physical haptic hardware.
// Play may block for the duration of the pattern; callers on the sensor
// hot path must invoke it off-path.
type Actuator interface {
	Play(p Pattern, t Tier) error
}
