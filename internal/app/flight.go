// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/flight_core/internal/board"
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/mixer"
	"github.com/relabs-tech/flight_core/internal/rc"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

// platform is the board plus its receiver and whatever must be released
// on shutdown.
type platform struct {
	board   board.Board
	source  rc.ChannelSource
	replay  *board.Replay
	closers []io.Closer
}

func (p *platform) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			log.Printf("flight: close: %v", err)
		}
	}
}

// loadTable returns the configured airframe, quad-X by default.
func loadTable(cfg *config.Config) (mixer.Table, error) {
	if cfg.MixerTableFile == "" {
		return mixer.QuadX, nil
	}
	table, err := mixer.LoadTable(cfg.MixerTableFile)
	if err != nil {
		return mixer.Table{}, err
	}
	log.Printf("flight: airframe loaded from %s", cfg.MixerTableFile)
	return table, nil
}

// openPlatform builds the board selected by BOARD. For hardware the iBus
// receiver starts decoding on its own goroutine under ctx.
func openPlatform(ctx context.Context, cfg *config.Config, table mixer.Table) (*platform, error) {
	switch cfg.Board {
	case "sim":
		sim := board.NewSim(cfg, table, board.DefaultSimParams())
		if cfg.SimProfile == "demo" {
			log.Println("flight: using simulated airframe with the demo stick profile")
			return &platform{board: sim, source: board.NewScript(sim, board.DemoFlight(cfg))}, nil
		}
		log.Println("flight: using simulated airframe, sticks idle")
		return &platform{board: sim, source: sim}, nil

	case "replay":
		rp, err := board.OpenReplay(cfg.ReplayFile)
		if err != nil {
			return nil, err
		}
		log.Printf("flight: replaying %d ticks from %s", rp.Len(), cfg.ReplayFile)
		return &platform{board: rp, source: rp, replay: rp}, nil

	case "hardware":
		hw, err := board.NewHardware(cfg)
		if err != nil {
			return nil, err
		}
		p := &platform{board: hw, closers: []io.Closer{hw}}

		port, err := rc.OpenSerial(cfg.RCSerialPort, cfg.RCBaudRate)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, port)

		recv := rc.NewReceiver()
		go func() {
			if err := recv.Run(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("flight: receiver stopped: %v", err)
			}
		}()
		p.source = recv
		return p, nil
	}
	return nil, fmt.Errorf("flight: unknown board %q", cfg.Board)
}

// attachGround connects telemetry and motor commands over MQTT. The loop
// flies without a ground link, so failures are only logged.
func attachGround(ctx context.Context, cfg *config.Config, loop *flight.Loop) {
	if cfg.MQTTBroker == "" {
		return
	}
	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDFlight)
	if err != nil {
		log.Printf("flight: no ground link: %v", err)
		return
	}
	log.Printf("flight: connected to MQTT broker at %s", cfg.MQTTBroker)

	pub := telemetry.NewPublisher(cfg.TopicTelemetry, telemetry.MQTTPublishFunc(client))
	loop.SetSink(pub)
	go pub.Run(ctx)

	err = telemetry.SubscribeMotorCommands(client, cfg.TopicMotorCommand, func(cmd telemetry.MotorCommand) {
		if err := loop.SubmitMotorCommand(cmd); err != nil {
			log.Printf("flight: motor command: %v", err)
		}
	})
	if err != nil {
		log.Printf("flight: %v", err)
	}

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()
}

// RunFlight runs the control loop on the configured board until
// interrupted or, for a replay, until the recording ends.
func RunFlight() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("flight: configuration not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg, table)
	if err != nil {
		return err
	}
	defer p.Close()

	loop := flight.New(cfg, p.board, p.source, table)

	if cfg.RecordFile != "" {
		rec, err := board.CreateRecorder(cfg.RecordFile)
		if err != nil {
			return err
		}
		defer rec.Close()
		loop.SetRecorder(rec)
		log.Printf("flight: recording to %s", cfg.RecordFile)
	}

	attachGround(ctx, cfg, loop)

	if err := loop.Run(ctx); err != nil {
		return err
	}

	if p.replay != nil {
		if bad := p.replay.Mismatches(); len(bad) > 0 {
			return fmt.Errorf("flight: replay diverged on %d of %d ticks, first at tick %d", len(bad), len(p.replay.Outputs()), bad[0]+1)
		}
		log.Printf("flight: replay matched all %d ticks", len(p.replay.Outputs()))
	}
	return nil
}
