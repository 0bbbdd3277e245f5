// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package rc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"
)

// OpenSerial opens a UART at 8N1, as used by the iBus receiver and the GPS.
func OpenSerial(portName string, baudRate int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", portName, err)
	}
	log.Printf("serial: %s opened at %d baud", portName, baudRate)
	return port, nil
}

// Receiver decodes iBus frames on its own goroutine and hands the latest
// one to the control loop. Only the most recent frame is kept.
type Receiver struct {
	frames chan []uint16
	last   []uint16
}

// NewReceiver returns a Receiver with no frame yet.
func NewReceiver() *Receiver {
	return &Receiver{frames: make(chan []uint16, 1)}
}

// Run decodes frames from src until ctx is done or src fails. Closing src
// is the way to unblock a pending serial read.
func (r *Receiver) Run(ctx context.Context, src io.Reader) error {
	dec := NewIBusDecoder(bufio.NewReader(src))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := dec.Next()
		if errors.Is(err, ErrChecksum) {
			log.Printf("rc: dropping frame: %v", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("rc: receiver: %w", err)
		}
		r.offer(frame[:])
	}
}

// offer replaces any unread frame with ch. Single producer only.
func (r *Receiver) offer(ch []uint16) {
	frame := make([]uint16, len(ch))
	copy(frame, ch)
	select {
	case <-r.frames:
	default:
	}
	r.frames <- frame
}

// ReadChannels implements ChannelSource. Consumer side only.
func (r *Receiver) ReadChannels() ([]uint16, bool) {
	select {
	case f := <-r.frames:
		r.last = f
		return f, true
	default:
		return r.last, false
	}
}
