// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package display renders the wearable status indicators on an SSD1306
// OLED: monitoring state, baseline/threshold, link health, last event.
package display

import (
	"fmt"
	"image"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gait_assist/internal/engine"
)

// Status is a 128x64 SSD1306 panel driven over I2C.
type Status struct {
	dev    *ssd1306.Dev
	logger *zap.Logger
}

// New initializes the panel at addr on the default I2C bus.
func New(addr uint16, logger *zap.Logger) (*Status, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("display: periph host init: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("display: failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("display: failed to initialize panel: %w", err)
	}
	logger.Info("status display initialized", zap.Uint16("addr", addr))

	return &Status{dev: dev, logger: logger}, nil
}

// Update renders one snapshot. Errors are logged, never propagated; the
// display is pure observability.
func (s *Status) Update(snap engine.Snapshot) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	line := func(y int, text string) {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(text))
	}

	line(13, statusLine(snap))
	line(26, fmt.Sprintf("B:%5.2f T:%5.2f", snap.Baseline, snap.Threshold))
	line(39, linkLine(snap))
	if snap.LastEvent != nil {
		line(52, fmt.Sprintf("%s %.2f", snap.LastEvent.Type, snap.LastEvent.Severity))
	}

	if err := s.dev.Draw(s.dev.Bounds(), img, image.Point{}); err != nil {
		s.logger.Warn("display draw failed", zap.Error(err))
	}
}

func statusLine(snap engine.Snapshot) string {
	switch {
	case snap.Calibrating:
		return "CALIBRATING"
	case snap.Unstable:
		return "UNSTABLE CAL"
	case snap.Status == engine.StatusRunning:
		return "MONITORING"
	case snap.Status == engine.StatusSensorUnavailable:
		return "NO SENSOR"
	default:
		return "STOPPED"
	}
}

func linkLine(snap engine.Snapshot) string {
	if snap.Link.Reachable {
		return fmt.Sprintf("LINK OK %dms", snap.Link.Latency.Milliseconds())
	}
	return "LINK OFFLINE"
}
