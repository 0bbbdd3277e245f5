// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/flight_core/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // set_motor
	Index  int    `json:"index"`
	Value  int16  `json:"value"`
}

type WSResponse struct {
	Type    string           `json:"type"` // telemetry, ack, error
	Frame   *telemetry.Frame `json:"frame,omitempty"`
	Message string           `json:"message,omitempty"`
}

// handleTelemetryWS streams every telemetry frame to the client and
// accepts motor test commands on the same connection.
func (s *webServer) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	frames, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	// gorilla connections allow one writer; the read side hands replies over
	replies := make(chan WSResponse, 4)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket read error: %v", err)
				}
				return
			}
			select {
			case replies <- s.handleWSMessage(msg):
			case <-quit:
				return
			}
		}
	}()

	if f, ok := s.hub.latest(); ok {
		if err := conn.WriteJSON(WSResponse{Type: "telemetry", Frame: &f}); err != nil {
			return
		}
	}

	for {
		var resp WSResponse
		select {
		case <-done:
			return
		case f := <-frames:
			resp = WSResponse{Type: "telemetry", Frame: &f}
		case resp = <-replies:
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
	}
}

func (s *webServer) handleWSMessage(msg WSMessage) WSResponse {
	switch msg.Action {
	case "set_motor":
		cmd := telemetry.MotorCommand{Index: msg.Index, Value: msg.Value}
		if cmd.Index < 0 || cmd.Index > 3 {
			return WSResponse{Type: "error", Message: "motor index out of range"}
		}
		if err := s.sendMotor(cmd); err != nil {
			return WSResponse{Type: "error", Message: err.Error()}
		}
		log.Printf("web: motor %d disarmed value %d requested", cmd.Index, cmd.Value)
		return WSResponse{Type: "ack"}
	default:
		return WSResponse{Type: "error", Message: "unknown action " + msg.Action}
	}
}
