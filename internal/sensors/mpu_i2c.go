// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package sensors provides hardware-backed motion sources: an MPU-6500
// class IMU read at the register level over I2C, and a serial stream from
// an external dev board.
package sensors

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gait_assist/internal/motion"
)

// MPU-6500/9250 register addresses.
const (
	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXoutH  = 0x3B
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75
)

// Scale factors for the configured full-scale ranges.
const (
	// ±4g: 8192 LSB/g
	accelScale = 1.0 / 8192.0
	// ±500°/s: 65.5 LSB/(°/s)
	gyroScaleDeg = 1.0 / 65.5
)

// MPUSource reads a wrist-mounted MPU-6500 over I2C at the fixed 50 Hz
// sampling configuration.
type MPUSource struct {
	dev    i2c.Dev
	bus    i2c.BusCloser
	logger *zap.Logger
}

// NewMPUSource opens the named I2C bus ("" for the first available) and
// configures the IMU: ±4g accel, ±500°/s gyro, DLPF at 20 Hz, sample rate
// divider for 50 Hz output.
func NewMPUSource(busName string, addr uint16, logger *zap.Logger) (*MPUSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("motion sensor: periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("motion sensor: open I2C bus %q: %w", busName, err)
	}

	s := &MPUSource{
		dev:    i2c.Dev{Bus: bus, Addr: addr},
		bus:    bus,
		logger: logger,
	}

	id, err := s.readRegister(regWhoAmI)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("motion sensor: WHO_AM_I read: %w", err)
	}
	switch id {
	case 0x68, 0x70, 0x71, 0x73: // MPU-6050/6500/9250/9255
	default:
		bus.Close()
		return nil, fmt.Errorf("motion sensor: unexpected WHO_AM_I 0x%02X at 0x%02X", id, addr)
	}

	// Wake from sleep, select the PLL clock.
	init := []struct {
		reg, val byte
		name     string
	}{
		{regPwrMgmt1, 0x01, "PWR_MGMT_1"},
		{regConfig, 0x04, "CONFIG"},            // DLPF 20 Hz, internal rate 1 kHz
		{regSmplrtDiv, 19, "SMPLRT_DIV"},       // 1 kHz / (1+19) = 50 Hz
		{regGyroConfig, 0x08, "GYRO_CONFIG"},   // ±500°/s
		{regAccelConfig, 0x08, "ACCEL_CONFIG"}, // ±4g
	}
	for _, w := range init {
		if err := s.writeRegister(w.reg, w.val); err != nil {
			bus.Close()
			return nil, fmt.Errorf("motion sensor: write %s: %w", w.name, err)
		}
	}
	time.Sleep(10 * time.Millisecond)

	logger.Info("motion sensor initialized",
		zap.String("bus", busName),
		zap.Uint16("addr", addr),
		zap.Uint8("who_am_i", id),
	)
	return s, nil
}

// Next reads one accel+gyro burst: 14 bytes starting at ACCEL_XOUT_H
// (accel, temperature, gyro).
func (s *MPUSource) Next() (motion.Sample, error) {
	var buf [14]byte
	if err := s.dev.Tx([]byte{regAccelXoutH}, buf[:]); err != nil {
		return motion.Sample{}, fmt.Errorf("motion sensor: burst read: %w", err)
	}

	ax := int16(buf[0])<<8 | int16(buf[1])
	ay := int16(buf[2])<<8 | int16(buf[3])
	az := int16(buf[4])<<8 | int16(buf[5])
	gx := int16(buf[8])<<8 | int16(buf[9])
	gy := int16(buf[10])<<8 | int16(buf[11])
	gz := int16(buf[12])<<8 | int16(buf[13])

	degToRad := math.Pi / 180.0
	return motion.Sample{
		Ax:          float64(ax) * accelScale,
		Ay:          float64(ay) * accelScale,
		Az:          float64(az) * accelScale,
		Gx:          float64(gx) * gyroScaleDeg * degToRad,
		Gy:          float64(gy) * gyroScaleDeg * degToRad,
		Gz:          float64(gz) * gyroScaleDeg * degToRad,
		HasRotation: true,
		Timestamp:   time.Now(),
	}, nil
}

// Close releases the I2C bus.
func (s *MPUSource) Close() error {
	return s.bus.Close()
}

func (s *MPUSource) readRegister(reg byte) (byte, error) {
	var out [1]byte
	if err := s.dev.Tx([]byte{reg}, out[:]); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (s *MPUSource) writeRegister(reg, val byte) error {
	return s.dev.Tx([]byte{reg, val}, nil)
}
