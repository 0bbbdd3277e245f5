// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package board

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/relabs-tech/flight_core/internal/mixer"
)

// ErrReplayExhausted is returned by Replay.Step after the last snapshot.
var ErrReplayExhausted = errors.New("replay: no more snapshots")

// Snapshot is one recorded tick: the inputs the core saw and the motor
// commands it produced.
type Snapshot struct {
	Micros   uint64                 `json:"micros"`
	Gyro     [3]int16               `json:"gyro"`
	Euler    [3]float32             `json:"euler"`
	Channels []uint16               `json:"channels,omitempty"`
	Fresh    bool                   `json:"fresh"`
	Motors   [mixer.NumMotors]int16 `json:"motors"`
}

// Replay plays back a recording one snapshot per Step and keeps the motor
// commands written during each step.
type Replay struct {
	snaps   []Snapshot
	pos     int
	done    bool
	written [mixer.NumMotors]bool

	outputs [][mixer.NumMotors]int16
}

// NewReplay decodes a JSON-lines recording from r.
func NewReplay(r io.Reader) (*Replay, error) {
	dec := json.NewDecoder(r)
	var snaps []Snapshot
	for {
		var s Snapshot
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay: snapshot %d: %w", len(snaps)+1, err)
		}
		snaps = append(snaps, s)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("replay: empty recording")
	}
	return &Replay{snaps: snaps, pos: -1}, nil
}

// OpenReplay loads a recording file.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	return NewReplay(bufio.NewReader(f))
}

// Len is the number of snapshots in the recording.
func (r *Replay) Len() int {
	return len(r.snaps)
}

// Step moves to the next snapshot; dt is ignored.
func (r *Replay) Step(time.Duration) error {
	if r.pos+1 >= len(r.snaps) {
		r.done = true
		return ErrReplayExhausted
	}
	r.pos++
	r.written = [mixer.NumMotors]bool{}
	r.outputs = append(r.outputs, [mixer.NumMotors]int16{})
	return nil
}

func (r *Replay) current() Snapshot {
	if r.pos < 0 {
		return r.snaps[0]
	}
	return r.snaps[r.pos]
}

// Micros implements Board.
func (r *Replay) Micros() uint64 {
	return r.current().Micros
}

// ReadGyro implements Board.
func (r *Replay) ReadGyro() ([3]int16, error) {
	return r.current().Gyro, nil
}

// ReadOrientation implements Board.
func (r *Replay) ReadOrientation() ([3]float32, error) {
	return r.current().Euler, nil
}

// WriteMotor implements Board. Only the first write per motor and step is
// kept, so a shutdown write after the last tick of an interrupted replay
// does not land in that tick's outputs. Writes after the recording ended
// are ignored.
func (r *Replay) WriteMotor(index int, value int16) error {
	if index < 0 || index >= mixer.NumMotors {
		return fmt.Errorf("replay: motor index %d out of range", index)
	}
	if r.pos < 0 {
		return fmt.Errorf("replay: motor write before first step")
	}
	if r.done || r.written[index] {
		return nil
	}
	r.written[index] = true
	r.outputs[r.pos][index] = value
	return nil
}

// ReadChannels implements rc.ChannelSource.
func (r *Replay) ReadChannels() ([]uint16, bool) {
	s := r.current()
	return s.Channels, s.Fresh
}

// Outputs returns the motor commands written for each step so far.
func (r *Replay) Outputs() [][mixer.NumMotors]int16 {
	return r.outputs
}

// Mismatches lists the steps whose written commands differ from the
// recorded ones.
func (r *Replay) Mismatches() []int {
	var bad []int
	for i, out := range r.outputs {
		if i < len(r.snaps) && out != r.snaps[i].Motors {
			bad = append(bad, i)
		}
	}
	return bad
}

// Recorder writes Snapshots as JSON lines that NewReplay reads back.
// Safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
	c   io.Closer
}

// NewRecorder writes to w. If w is an io.Closer, Close closes it.
func NewRecorder(w io.Writer) *Recorder {
	bw := bufio.NewWriter(w)
	rec := &Recorder{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		rec.c = c
	}
	return rec
}

// CreateRecorder creates (or truncates) a recording file.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	return NewRecorder(f), nil
}

// Record appends one snapshot.
func (r *Recorder) Record(s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(s); err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	return nil
}

// Close flushes buffered snapshots and closes the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("recorder: flush: %w", err)
	}
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}
