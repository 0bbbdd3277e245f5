// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connect opens an MQTT client session.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// PublishFunc sends one payload to a topic and waits for the result.
type PublishFunc func(topic string, payload []byte) error

// MQTTPublishFunc publishes at QoS 0, not retained.
func MQTTPublishFunc(client mqtt.Client) PublishFunc {
	return func(topic string, payload []byte) error {
		token := client.Publish(topic, 0, false, payload)
		token.Wait()
		return token.Error()
	}
}

// Publisher takes frames from the control loop without blocking it and
// sends them from its own goroutine. A frame not yet sent is replaced by a
// newer one.
type Publisher struct {
	topic   string
	publish PublishFunc
	frames  chan Frame
	dropped atomic.Uint64
}

// NewPublisher returns a Publisher for topic. Run must be started for
// frames to leave.
func NewPublisher(topic string, publish PublishFunc) *Publisher {
	return &Publisher{topic: topic, publish: publish, frames: make(chan Frame, 1)}
}

// Publish queues f, replacing any unsent frame. Never blocks.
func (p *Publisher) Publish(f Frame) error {
	select {
	case <-p.frames:
		p.dropped.Add(1)
	default:
	}
	select {
	case p.frames <- f:
	default:
		p.dropped.Add(1)
	}
	return nil
}

// Dropped counts frames replaced before they were sent.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run sends queued frames until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-p.frames:
			payload, err := json.Marshal(f)
			if err != nil {
				log.Printf("telemetry: marshal frame: %v", err)
				continue
			}
			if err := p.publish(p.topic, payload); err != nil {
				log.Printf("telemetry: publish %s: %v", p.topic, err)
			}
		}
	}
}

// SubscribeMotorCommands delivers every valid MotorCommand on topic to
// handle. Malformed messages are logged and dropped.
func SubscribeMotorCommands(client mqtt.Client, topic string, handle func(MotorCommand)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := DecodeMotorCommand(msg.Payload())
		if err != nil {
			log.Printf("telemetry: %v", err)
			return
		}
		handle(cmd)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("telemetry: subscribe %s: %w", topic, token.Error())
	}
	log.Printf("telemetry: subscribed to %s", topic)
	return nil
}

// PublishMotorCommand sends cmd to topic.
func PublishMotorCommand(publish PublishFunc, topic string, cmd MotorCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("telemetry: marshal motor command: %w", err)
	}
	if err := publish(topic, payload); err != nil {
		return fmt.Errorf("telemetry: publish %s: %w", topic, err)
	}
	return nil
}
