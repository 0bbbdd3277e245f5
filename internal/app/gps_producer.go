package app

import (
	"encoding/json"
	"log"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/gps"
	"github.com/relabs-tech/flight_core/internal/rc"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes combined GPS fixes as JSON to TOPIC_GPS.
func RunGPSProducer() error {
	cfg := config.Get()

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	port, err := rc.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	reader := gps.NewReader(port)
	publish := telemetry.MQTTPublishFunc(client)

	for {
		fix, err := reader.Next()
		if err != nil {
			log.Printf("GPS read error: %v", err)
			return err
		}

		payload, err := json.Marshal(fix)
		if err != nil {
			log.Printf("GPS JSON marshal error: %v", err)
			continue
		}
		if err := publish(cfg.TopicGPS, payload); err != nil {
			log.Printf("GPS publish error: %v", err)
			continue
		}
		log.Printf("published GPS fix: %+v", fix)
	}
}
