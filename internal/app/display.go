package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/gps"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

// pageDuration is how long each screen page stays up.
const pageDuration = 3 * time.Second

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	frame     telemetry.Frame
	haveFrame bool

	fix     gps.Fix
	haveGPS bool
}

func newScreen() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLines(drawer *font.Drawer, lines ...string) {
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
}

// flightStatusLines is the text of the flight page.
func flightStatusLines(f telemetry.Frame, haveData bool) []string {
	if !haveData {
		return []string{"", "Flight link", "Waiting..."}
	}
	state := "DISARMED"
	switch {
	case f.SensorFault:
		state = "SENSOR FAULT"
	case f.Failsafe:
		state = "FAILSAFE"
	case f.Armed:
		state = "ARMED"
	}
	return []string{
		fmt.Sprintf("%s T:%d", state, f.Demands[3]),
		fmt.Sprintf("R:%5.1f P:%5.1f", f.Euler[0], f.Euler[1]),
		fmt.Sprintf("Y:%6.1f aux:%d", f.Euler[2], f.Aux),
		fmt.Sprintf("M:%d %d", f.Motors[0], f.Motors[1]),
		fmt.Sprintf("  %d %d", f.Motors[2], f.Motors[3]),
	}
}

// gpsLines is the text of the GPS page.
func gpsLines(fix gps.Fix, haveData bool) []string {
	if !haveData {
		return []string{"", "GPS Position", "Waiting..."}
	}
	latDir := "N"
	lat := fix.Latitude
	if lat < 0 {
		latDir = "S"
		lat = -lat
	}
	lonDir := "E"
	lon := fix.Longitude
	if lon < 0 {
		lonDir = "W"
		lon = -lon
	}
	return []string{
		fmt.Sprintf("%.4f%s", lat, latDir),
		fmt.Sprintf("%.4f%s", lon, lonDir),
		fmt.Sprintf("Alt: %.0fm", fix.AltitudeM),
		fmt.Sprintf("Sats: %d %s", fix.Satellites, fix.Validity),
	}
}

func showLines(dev *ssd1306.Dev, lines []string) error {
	img, drawer := newScreen()
	drawLines(drawer, lines...)
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunDisplay shows flight status on an SSD1306 OLED, alternating with the
// GPS page when fixes are available.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showLines(dev, []string{"", " Flight Core", "  Starting..."}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		f, err := telemetry.DecodeFrame(msg.Payload())
		if err != nil {
			log.Printf("display: telemetry unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.frame = f
		data.haveFrame = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicTelemetry)

	token = client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var fix gps.Fix
		if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
			log.Printf("display: gps unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.fix = fix
		data.haveGPS = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicGPS)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	start := time.Now()
	for t := range ticker.C {
		data.mu.RLock()
		frame, haveFrame := data.frame, data.haveFrame
		fix, haveGPS := data.fix, data.haveGPS
		data.mu.RUnlock()

		lines := flightStatusLines(frame, haveFrame)
		// GPS page every other period, never while armed
		if haveGPS && !frame.Armed && (t.Sub(start)/pageDuration)%2 == 1 {
			lines = gpsLines(fix, haveGPS)
		}
		if err := showLines(dev, lines); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}
