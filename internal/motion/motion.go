package motion

import (
	"math"
	"time"
)

// Sample is a single raw motion reading from the wrist sensor.
type Sample struct {
	Ax, Ay, Az float64 // acceleration, g

	Gx, Gy, Gz  float64 // rotation rate, rad/s
	HasRotation bool

	Timestamp time.Time
}

// Magnitude returns the length of the acceleration vector in g.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
}

// RotationRate returns the length of the rotation-rate vector in rad/s,
// or 0 when the sample carries no gyro data.
func (s Sample) RotationRate() float64 {
	if !s.HasRotation {
		return 0
	}
	return math.Sqrt(s.Gx*s.Gx + s.Gy*s.Gy + s.Gz*s.Gz)
}

// Source is anything that can provide motion samples over time.
// Implementations: mock source, MPU-6500 over I2C, serial dev-board stream.
type Source interface {
	Next() (Sample, error)
}
