package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/gait_assist/internal/config"
	"github.com/relabs-tech/gait_assist/internal/logging"
	"github.com/relabs-tech/gait_assist/internal/synclink"
)

// ackTimeout bounds how long hapticctl waits for the wearable to answer.
const ackTimeout = 10 * time.Second

// RunHapticCtl sends one maintenance command to the wearable and waits for
// the acknowledgement where the protocol has one.
func RunHapticCtl(command string) error {
	cfg := config.Get()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "hapticctl")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	acked := make(chan struct{}, 1)
	handlers := synclink.Handlers{
		OnTestHapticAck: func() {
			select {
			case acked <- struct{}{}:
			default:
			}
		},
	}

	// hapticctl impersonates the companion: it publishes on the companion
	// topic and listens on the wearable topic.
	transport := synclink.NewMQTTTransport(
		cfg.MQTTBroker,
		cfg.MQTTClientIDHapticCtl,
		cfg.TopicCompanionOut,
		[]string{cfg.TopicWearableOut},
		logger,
	)
	link := synclink.NewLink(transport, handlers, synclink.Options{}, logger)
	if err := link.Start(); err != nil {
		return fmt.Errorf("failed to start sync link: %w", err)
	}
	defer link.Close()

	if err := waitReachable(link); err != nil {
		return err
	}

	switch command {
	case "test":
		link.SendTestHaptic()
		select {
		case <-acked:
			logger.Info("wearable acknowledged test haptic")
			return nil
		case <-time.After(ackTimeout):
			return fmt.Errorf("no acknowledgement within %s", ackTimeout)
		}
	case "reset":
		link.SendFactoryReset()
		logger.Info("factory reset sent")
		// No ack in the protocol; give the publish a moment to drain.
		time.Sleep(time.Second)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want test or reset)", command)
	}
}

// waitReachable polls until the wearable answers on its topic, so the
// command goes out as an immediate message rather than a queued one.
func waitReachable(link *synclink.Link) error {
	deadline := time.Now().Add(ackTimeout)
	for time.Now().Before(deadline) {
		if link.Reachable() {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("wearable not reachable within %s", ackTimeout)
}
