package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/env"
	"github.com/relabs-tech/flight_core/internal/gps"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

func formatFrame(f telemetry.Frame) string {
	state := "DISARMED"
	switch {
	case f.SensorFault:
		state = "SENSOR"
	case f.Failsafe:
		state = "FAILSAFE"
	case f.Armed:
		state = "ARMED"
	}
	return fmt.Sprintf(
		"[FLT %6d] %-8s thr=%4d R=%6.1f P=%6.1f Y=%6.1f  pid=%5d %5d %5d  m=%4d %4d %4d %4d",
		f.Tick, state, f.Demands[3], f.Euler[0], f.Euler[1], f.Euler[2],
		f.AxisPID[0], f.AxisPID[1], f.AxisPID[2],
		f.Motors[0], f.Motors[1], f.Motors[2], f.Motors[3],
	)
}

func formatFix(f gps.Fix) string {
	return fmt.Sprintf(
		"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° sats=%d validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Satellites, f.Validity,
	)
}

// RunConsoleMQTT prints flight telemetry and GPS fixes until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	flightToken := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		f, err := telemetry.DecodeFrame(msg.Payload())
		if err != nil {
			log.Printf("console: %v", err)
			return
		}
		fmt.Println(formatFrame(f))
	})
	flightToken.Wait()
	if flightToken.Error() != nil {
		return flightToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	gpsToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}
		fmt.Println(formatFix(f))
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicGPS)

	envToken := client.Subscribe(cfg.TopicEnv, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var e env.Sample
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			log.Printf("console: env unmarshal error: %v", err)
			return
		}
		fmt.Printf("[ENV ]  temp=%.2f°C pressure=%.1fPa alt=%.1fm\n", e.Temperature, e.Pressure, e.AltitudeM)
	})
	envToken.Wait()
	if envToken.Error() != nil {
		return envToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicEnv)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
