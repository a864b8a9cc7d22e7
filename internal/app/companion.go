// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package app

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/companion"
	"github.com/relabs-tech/gait_assist/internal/config"
	"github.com/relabs-tech/gait_assist/internal/logging"
	"github.com/relabs-tech/gait_assist/internal/settings"
	"github.com/relabs-tech/gait_assist/internal/store"
	"github.com/relabs-tech/gait_assist/internal/synclink"
)

// RunCompanion runs the handheld-side receiver and its HTTP surface until
// SIGINT/SIGTERM.
func RunCompanion() error {
	cfg := config.Get()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "companion")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	kv, err := store.Open(cfg.CompanionStateFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	st := settings.NewStore(kv, logger)

	application := companion.New(kv, st, logger)

	transport := synclink.NewMQTTTransport(
		cfg.MQTTBroker,
		cfg.MQTTClientIDCompanion,
		cfg.TopicCompanionOut,
		[]string{cfg.TopicWearableOut, synclink.ContextTopic(cfg.TopicWearableOut)},
		logger,
	)
	link := synclink.NewLink(transport, application.Handlers(),
		synclink.Options{AutoReplyHeartbeat: true}, logger)
	application.BindLink(link)

	if err := link.Start(); err != nil {
		return fmt.Errorf("failed to start sync link: %w", err)
	}
	defer link.Close()

	addr := fmt.Sprintf(":%d", cfg.CompanionHTTPPort)
	srv := &http.Server{Addr: addr, Handler: application.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("companion started",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("http_addr", addr),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("shutting down")
		srv.Close()
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}
}
