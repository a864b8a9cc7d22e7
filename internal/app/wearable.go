// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package app wires the configured collaborators into runnable programs,
// one Run function per binary.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/config"
	"github.com/relabs-tech/gait_assist/internal/display"
	"github.com/relabs-tech/gait_assist/internal/engine"
	"github.com/relabs-tech/gait_assist/internal/haptics"
	"github.com/relabs-tech/gait_assist/internal/logging"
	"github.com/relabs-tech/gait_assist/internal/motion"
	"github.com/relabs-tech/gait_assist/internal/sensors"
	"github.com/relabs-tech/gait_assist/internal/settings"
	"github.com/relabs-tech/gait_assist/internal/store"
	"github.com/relabs-tech/gait_assist/internal/synclink"
)

// RunWearable runs the watch-side monitoring engine until SIGINT/SIGTERM.
func RunWearable() error {
	cfg := config.Get()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "wearable")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	kv, err := store.Open(cfg.WearableStateFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	st := settings.NewStore(kv, logger)

	source, err := openMotionSource(cfg, logger)
	if err != nil {
		// Engine runs without a sensor and reports sensorUnavailable,
		// so the sync surface (settings, test haptics) stays usable.
		logger.Error("motion source unavailable", zap.Error(err))
	}

	actuator, err := openActuator(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open haptic actuator: %w", err)
	}
	gate := haptics.NewGate(actuator, logger)

	var sink engine.StatusSink
	if cfg.DisplayEnabled {
		panel, err := display.New(cfg.DisplayI2CAddr, logger)
		if err != nil {
			logger.Error("status display unavailable", zap.Error(err))
		} else {
			sink = panel
		}
	}

	monitor := engine.New(engine.Deps{
		Source:         source,
		Settings:       st,
		Gate:           gate,
		KV:             kv,
		Display:        sink,
		Logger:         logger,
		SampleInterval: sampleInterval(cfg),
	})

	transport := synclink.NewMQTTTransport(
		cfg.MQTTBroker,
		cfg.MQTTClientIDWearable,
		cfg.TopicWearableOut,
		[]string{cfg.TopicCompanionOut, synclink.ContextTopic(cfg.TopicCompanionOut)},
		logger,
	)
	link := synclink.NewLink(transport, monitor.Handlers(), synclink.Options{}, logger)
	monitor.BindLink(link)

	if err := link.Start(); err != nil {
		return fmt.Errorf("failed to start sync link: %w", err)
	}
	defer link.Close()

	monitor.Start()
	defer monitor.Stop()

	logger.Info("wearable monitoring started",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("motion_source", cfg.MotionSource),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	return nil
}

func sampleInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.SampleInterval) * time.Millisecond
}

// openMotionSource selects the configured accelerometer input.
func openMotionSource(cfg *config.Config, logger *zap.Logger) (motion.Source, error) {
	switch cfg.MotionSource {
	case "i2c":
		src, err := sensors.NewMPUSource(cfg.MotionI2CBus, cfg.MotionI2CAddr, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "serial":
		src, err := sensors.NewSerialSource(cfg.MotionSerialPort, cfg.MotionSerialBaud, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		logger.Info("using mock motion source")
		return motion.NewMockSource(), nil
	}
}

// openActuator selects the haptic output. An empty pin name selects the
// recording mock, which is useful on development hosts without GPIO.
func openActuator(cfg *config.Config, logger *zap.Logger) (haptics.Actuator, error) {
	if cfg.HapticGPIOPin == "" {
		logger.Info("using mock haptic actuator")
		return haptics.NewMockActuator(), nil
	}
	return haptics.NewMotorActuator(cfg.HapticGPIOPin, logger)
}
