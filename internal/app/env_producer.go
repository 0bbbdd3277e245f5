package app

import (
	"encoding/json"
	"log"
	"time"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/sensors"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

// RunEnvProducer publishes barometer samples to TOPIC_ENV.
func RunEnvProducer() error {
	cfg := config.Get()

	bmp, err := sensors.NewBMP(cfg.BMPSPIDevice)
	if err != nil {
		return err
	}
	defer bmp.Close()
	log.Printf("env: BMP initialized on %s", cfg.BMPSPIDevice)

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDEnv)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("env: connected to MQTT broker at %s", cfg.MQTTBroker)

	publish := telemetry.MQTTPublishFunc(client)

	ticker := time.NewTicker(time.Duration(cfg.EnvSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		sample, err := bmp.Read()
		if err != nil {
			log.Printf("env: %v", err)
			continue
		}
		payload, err := json.Marshal(sample)
		if err != nil {
			log.Printf("env: json marshal error: %v", err)
			continue
		}
		if err := publish(cfg.TopicEnv, payload); err != nil {
			log.Printf("env: MQTT publish error: %v", err)
		}
	}
	return nil
}
