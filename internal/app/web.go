package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

// telemetryHub keeps the latest frame and fans frames out to websocket
// clients. Slow clients only ever miss frames.
type telemetryHub struct {
	mu   sync.RWMutex
	last telemetry.Frame
	have bool
	subs map[chan telemetry.Frame]struct{}
}

func newTelemetryHub() *telemetryHub {
	return &telemetryHub{subs: make(map[chan telemetry.Frame]struct{})}
}

func (h *telemetryHub) update(f telemetry.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = f
	h.have = true
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

func (h *telemetryHub) latest() (telemetry.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

func (h *telemetryHub) subscribe() (<-chan telemetry.Frame, func()) {
	ch := make(chan telemetry.Frame, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// webServer serves the ground-station API. sendMotor forwards motor test
// commands to the flight process.
type webServer struct {
	hub       *telemetryHub
	sendMotor func(telemetry.MotorCommand) error
	staticDir string
}

func (s *webServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/motors", s.handleMotors)
	mux.HandleFunc("/ws/telemetry", s.handleTelemetryWS)
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

// JSON API endpoint: latest telemetry frame
func (s *webServer) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	f, ok := s.hub.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// POST {"index":0,"value":1100} sets a disarmed motor value.
func (s *webServer) handleMotors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd telemetry.MotorCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, fmt.Sprintf("bad motor command: %v", err), http.StatusBadRequest)
		return
	}
	if cmd.Index < 0 || cmd.Index > 3 {
		http.Error(w, fmt.Sprintf("motor index %d out of range", cmd.Index), http.StatusBadRequest)
		return
	}
	if err := s.sendMotor(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RunWeb serves telemetry from the flight process over HTTP and websocket
// and relays motor test commands back to it.
func RunWeb() error {
	cfg := config.Get()
	hub := newTelemetryHub()

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		f, err := telemetry.DecodeFrame(msg.Payload())
		if err != nil {
			log.Printf("MQTT payload unmarshal error: %v", err)
			return
		}
		hub.update(f)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicTelemetry)

	publish := telemetry.MQTTPublishFunc(client)
	srv := &webServer{
		hub: hub,
		sendMotor: func(cmd telemetry.MotorCommand) error {
			return telemetry.PublishMotorCommand(publish, cfg.TopicMotorCommand, cmd)
		},
		staticDir: "web",
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, srv.routes())
}
