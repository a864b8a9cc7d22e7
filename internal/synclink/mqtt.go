// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package synclink

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTTransport carries envelopes over an MQTT broker. Immediate messages
// are plain QoS0 publishes; context persistence uses a retained publish on
// a sibling topic, so the broker keeps the last value for a peer that
// subscribes later.
type MQTTTransport struct {
	broker   string
	clientID string

	pubTopic     string
	contextTopic string
	subTopics    []string

	client mqtt.Client
	logger *zap.Logger
}

// NewMQTTTransport prepares a transport. pubTopic is this side's outbound
// topic; subTopics are the peer's outbound topic and its context sibling
// (see ContextTopic). No connection is made until Start.
func NewMQTTTransport(broker, clientID, pubTopic string, subTopics []string, logger *zap.Logger) *MQTTTransport {
	return &MQTTTransport{
		broker:       broker,
		clientID:     clientID,
		pubTopic:     pubTopic,
		contextTopic: ContextTopic(pubTopic),
		subTopics:    subTopics,
		logger:       logger,
	}
}

// ContextTopic returns the retained-context sibling of an outbound topic.
func ContextTopic(topic string) string {
	return topic + "/context"
}

// Start connects to the broker in the background. An unreachable broker is
// not an error here; the client keeps retrying and the link degrades to
// context persistence and queueing until connected.
func (t *MQTTTransport) Start(onMessage func([]byte), onConnectionChange func(connected bool)) error {
	opts := mqtt.NewClientOptions().
		AddBroker(t.broker).
		SetClientID(t.clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		for _, topic := range t.subTopics {
			if token := c.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
				onMessage(msg.Payload())
			}); token.Wait() && token.Error() != nil {
				t.logger.Error("MQTT subscribe failed",
					zap.String("topic", topic),
					zap.Error(token.Error()),
				)
			}
		}
		t.logger.Info("MQTT connected", zap.String("broker", t.broker))
		onConnectionChange(true)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.logger.Warn("MQTT connection lost", zap.Error(err))
		onConnectionChange(false)
	})

	t.client = mqtt.NewClient(opts)

	token := t.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			t.logger.Warn("MQTT initial connect failed, retrying in background",
				zap.Error(token.Error()),
			)
		}
	}()
	return nil
}

// Publish sends an immediate message. Fire-and-forget: delivery errors are
// logged, never returned to the hot path.
func (t *MQTTTransport) Publish(data []byte) error {
	if t.client == nil {
		return fmt.Errorf("MQTT transport not started")
	}
	token := t.client.Publish(t.pubTopic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			t.logger.Warn("MQTT publish failed", zap.Error(token.Error()))
		}
	}()
	return nil
}

// PublishRetained persists the latest application context at the broker.
func (t *MQTTTransport) PublishRetained(data []byte) error {
	if t.client == nil {
		return fmt.Errorf("MQTT transport not started")
	}
	token := t.client.Publish(t.contextTopic, 0, true, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			t.logger.Warn("MQTT retained publish failed", zap.Error(token.Error()))
		}
	}()
	return nil
}

// Connected reports broker connectivity.
func (t *MQTTTransport) Connected() bool {
	return t.client != nil && t.client.IsConnected()
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() {
	if t.client != nil {
		t.client.Disconnect(250)
	}
}
