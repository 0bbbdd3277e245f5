// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package flight runs the control loop: receiver, stabilizer and mixer
// wired to a Board and driven at a fixed period.
package flight

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/flight_core/internal/board"
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/mixer"
	"github.com/relabs-tech/flight_core/internal/rc"
	"github.com/relabs-tech/flight_core/internal/stabilize"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

// ErrCommandQueueFull is returned when motor commands arrive faster than
// the loop applies them.
var ErrCommandQueueFull = errors.New("flight: motor command queue full")

const commandQueueSize = 16

// summaryInterval between "flight: tick" log lines.
const summaryInterval = 5 * time.Second

// Sink receives a telemetry frame every TelemetryEvery ticks. It runs on
// the loop goroutine and must not block.
type Sink interface {
	Publish(telemetry.Frame) error
}

// Loop owns every control-path component. Only SubmitMotorCommand may be
// called from other goroutines.
type Loop struct {
	board  board.Board
	source rc.ChannelSource
	rc     *rc.RC
	stab   *stabilize.Stabilize
	mixer  *mixer.Mixer

	sink     Sink
	recorder *board.Recorder

	period         time.Duration
	telemetryEvery uint64
	failsafeMicros uint64
	summaryTicks   uint64

	commands chan telemetry.MotorCommand

	ticks       uint64
	overruns    uint64
	lastFrameAt uint64
	haveFrame   bool
	failsafe    bool
	sensorFault bool
	frame       telemetry.Frame
}

// New wires a loop over b. source supplies receiver frames; table is the
// airframe.
func New(cfg *config.Config, b board.Board, source rc.ChannelSource, table mixer.Table) *Loop {
	period := time.Duration(cfg.IMU.LoopMicros) * time.Microsecond
	summary := uint64(summaryInterval / period)
	if summary == 0 {
		summary = 1
	}
	return &Loop{
		board:          b,
		source:         source,
		rc:             rc.New(cfg.RC, cfg.PWM),
		stab:           stabilize.New(cfg.PID, cfg.IMU),
		mixer:          mixer.New(cfg.PWM, table, b),
		period:         period,
		telemetryEvery: uint64(cfg.TelemetryEvery),
		failsafeMicros: uint64(cfg.RC.FailsafeMillis) * 1000,
		summaryTicks:   summary,
		commands:       make(chan telemetry.MotorCommand, commandQueueSize),
	}
}

// SetSink attaches a telemetry sink.
func (l *Loop) SetSink(s Sink) {
	l.sink = s
}

// SetRecorder records every tick for later replay.
func (l *Loop) SetRecorder(r *board.Recorder) {
	l.recorder = r
}

// Period is the tick interval.
func (l *Loop) Period() time.Duration {
	return l.period
}

// SubmitMotorCommand queues a disarmed-motor value; it takes effect at the
// start of the next tick. Safe for concurrent use.
func (l *Loop) SubmitMotorCommand(cmd telemetry.MotorCommand) error {
	if cmd.Index < 0 || cmd.Index >= mixer.NumMotors {
		return fmt.Errorf("%w: %d", mixer.ErrMotorIndex, cmd.Index)
	}
	select {
	case l.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Frame returns the state of the last tick.
func (l *Loop) Frame() telemetry.Frame {
	return l.frame
}

// Tick runs one control cycle. It returns an error only when the board can
// no longer advance, e.g. board.ErrReplayExhausted.
func (l *Loop) Tick() error {
	if s, ok := l.board.(board.Stepper); ok {
		if err := s.Step(l.period); err != nil {
			return err
		}
	}

	l.applyCommands()

	now := l.board.Micros()

	channels, fresh := l.source.ReadChannels()
	if fresh && len(channels) > 0 {
		wasArmed := l.rc.IsArmed()
		l.rc.Update(channels)
		l.lastFrameAt = now
		l.haveFrame = true
		if l.failsafe {
			l.failsafe = false
			log.Println("flight: receiver link restored")
		}
		switch {
		case !wasArmed && l.rc.IsArmed():
			l.stab.ResetIntegral()
			log.Println("flight: armed")
		case wasArmed && !l.rc.IsArmed():
			log.Println("flight: disarmed")
		}
	}

	if l.haveFrame && !l.failsafe && now-l.lastFrameAt > l.failsafeMicros {
		l.failsafe = true
		if l.rc.IsArmed() {
			l.rc.Disarm()
			log.Printf("flight: FAILSAFE: no receiver frame for %d ms, disarming", (now-l.lastFrameAt)/1000)
		} else {
			log.Printf("flight: receiver link lost")
		}
	}

	gyro, euler, sensorErr := l.readSensors()
	if sensorErr != nil && !l.sensorFault {
		log.Printf("flight: sensor fault, motors held disarmed: %v", sensorErr)
	} else if sensorErr == nil && l.sensorFault {
		log.Println("flight: sensors recovered")
	}
	l.sensorFault = sensorErr != nil

	demands := l.rc.Demands()
	var axisPID [3]int16
	if !l.sensorFault {
		axisPID = l.stab.Update(demands, gyro, euler)
	}

	armed := l.rc.IsArmed() && !l.sensorFault
	motors := l.mixer.Update(armed, l.rc.ThrottleIsDown(), demands, axisPID)

	l.ticks++
	l.frame = telemetry.Frame{
		Tick:         l.ticks,
		Micros:       now,
		Armed:        l.rc.IsArmed(),
		ThrottleDown: l.rc.ThrottleIsDown(),
		Failsafe:     l.failsafe,
		SensorFault:  l.sensorFault,
		Aux:          l.rc.Aux(),
		Demands:      demands,
		Gyro:         gyro,
		Euler:        euler,
		AxisPID:      axisPID,
		Motors:       motors,
	}

	if l.sink != nil && l.ticks%l.telemetryEvery == 0 {
		if err := l.sink.Publish(l.frame); err != nil {
			log.Printf("flight: telemetry: %v", err)
		}
	}

	if l.recorder != nil {
		snap := board.Snapshot{
			Micros: now,
			Gyro:   gyro,
			Euler:  euler,
			Fresh:  fresh,
			Motors: motors,
		}
		if fresh {
			snap.Channels = channels
		}
		if err := l.recorder.Record(snap); err != nil {
			log.Printf("flight: record: %v", err)
			l.recorder = nil
		}
	}

	if l.ticks%l.summaryTicks == 0 {
		log.Printf("flight: tick %d armed=%v throttle=%d euler=[%.1f %.1f %.1f] motors=%v overruns=%d",
			l.ticks, l.frame.Armed, demands[rc.Throttle], euler[0], euler[1], euler[2], motors, l.overruns)
	}
	return nil
}

func (l *Loop) readSensors() ([3]int16, [3]float32, error) {
	gyro, err := l.board.ReadGyro()
	if err != nil {
		return [3]int16{}, [3]float32{}, fmt.Errorf("read gyro: %w", err)
	}
	euler, err := l.board.ReadOrientation()
	if err != nil {
		return [3]int16{}, [3]float32{}, fmt.Errorf("read orientation: %w", err)
	}
	for axis, a := range euler {
		if math.IsNaN(float64(a)) || math.IsInf(float64(a), 0) {
			return [3]int16{}, [3]float32{}, fmt.Errorf("orientation axis %d is %v", axis, a)
		}
	}
	return gyro, euler, nil
}

func (l *Loop) applyCommands() {
	for {
		select {
		case cmd := <-l.commands:
			if err := l.mixer.SetDisarmed(cmd.Index, cmd.Value); err != nil {
				log.Printf("flight: motor command: %v", err)
				continue
			}
			log.Printf("flight: motor %d disarmed value set to %d", cmd.Index, l.mixer.Disarmed()[cmd.Index])
		default:
			return
		}
	}
}

// Run ticks every Period until ctx is done or the board runs out, then
// parks every motor at its minimum. A replay reaching its end is a clean
// stop.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("flight: control loop running at %v", l.period)
	defer l.stop()

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("flight: stopping after %d ticks", l.ticks)
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := l.Tick(); err != nil {
				if errors.Is(err, board.ErrReplayExhausted) {
					log.Printf("flight: replay finished after %d ticks", l.ticks)
					return nil
				}
				return fmt.Errorf("flight: tick %d: %w", l.ticks+1, err)
			}
			if time.Since(start) > l.period {
				l.overruns++
			}
		}
	}
}

// RunTicks runs n ticks back to back, without waiting for the period.
// Stepped boards advance their own clock, so this is how simulations and
// replays run faster than real time.
func (l *Loop) RunTicks(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Tick(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) stop() {
	l.rc.Disarm()
	pwmMin := l.mixer.PWM().Min
	for i := 0; i < mixer.NumMotors; i++ {
		if err := l.board.WriteMotor(i, pwmMin); err != nil {
			log.Printf("flight: stop motor %d: %v", i, err)
		}
	}
}
