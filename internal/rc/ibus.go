package rc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// iBus framing: 0x20 0x40, 14 little-endian channels, 16-bit checksum.
const (
	IBusHeader1    = 0x20
	IBusHeader2    = 0x40
	IBusChannels   = 14
	IBusPacketSize = 2 + IBusChannels*2 + 2
)

var (
	ErrChecksum   = errors.New("ibus: checksum mismatch")
	ErrShortFrame = errors.New("ibus: short frame")
)

type ibusState int

const (
	waitingForHeader1 ibusState = iota
	waitingForHeader2
	readingPayload
)

// IBusDecoder extracts frames from an iBus byte stream.
type IBusDecoder struct {
	r     io.ByteReader
	state ibusState
	buf   [IBusPacketSize]byte
	idx   int
}

// NewIBusDecoder wraps r. Use a buffered reader for serial ports.
func NewIBusDecoder(r io.ByteReader) *IBusDecoder {
	return &IBusDecoder{r: r}
}

// Next blocks until a complete frame is read. A frame with a bad checksum
// returns ErrChecksum and the decoder resynchronizes on the next header.
func (d *IBusDecoder) Next() ([IBusChannels]uint16, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && d.state != waitingForHeader1 {
				return [IBusChannels]uint16{}, ErrShortFrame
			}
			return [IBusChannels]uint16{}, err
		}

		switch d.state {
		case waitingForHeader1:
			if b == IBusHeader1 {
				d.buf[0] = b
				d.state = waitingForHeader2
			}
		case waitingForHeader2:
			if b == IBusHeader2 {
				d.buf[1] = b
				d.idx = 2
				d.state = readingPayload
			} else {
				d.state = waitingForHeader1
			}
		case readingPayload:
			d.buf[d.idx] = b
			d.idx++
			if d.idx < IBusPacketSize {
				continue
			}
			d.state = waitingForHeader1
			return DecodeIBusFrame(d.buf[:])
		}
	}
}

// DecodeIBusFrame validates a complete frame and returns its channels.
func DecodeIBusFrame(frame []byte) ([IBusChannels]uint16, error) {
	var channels [IBusChannels]uint16
	if len(frame) < IBusPacketSize {
		return channels, ErrShortFrame
	}
	if frame[0] != IBusHeader1 || frame[1] != IBusHeader2 {
		return channels, fmt.Errorf("ibus: bad header 0x%02X 0x%02X", frame[0], frame[1])
	}

	sum := uint16(0xFFFF)
	for _, b := range frame[:IBusPacketSize-2] {
		sum -= uint16(b)
	}
	if got := binary.LittleEndian.Uint16(frame[IBusPacketSize-2:]); got != sum {
		return channels, ErrChecksum
	}

	for i := range channels {
		channels[i] = binary.LittleEndian.Uint16(frame[2+2*i:])
	}
	return channels, nil
}

// EncodeIBusFrame builds a frame; used by the simulator and tests.
func EncodeIBusFrame(channels []uint16) []byte {
	frame := make([]byte, IBusPacketSize)
	frame[0] = IBusHeader1
	frame[1] = IBusHeader2
	for i := 0; i < IBusChannels && i < len(channels); i++ {
		binary.LittleEndian.PutUint16(frame[2+2*i:], channels[i])
	}
	sum := uint16(0xFFFF)
	for _, b := range frame[:IBusPacketSize-2] {
		sum -= uint16(b)
	}
	binary.LittleEndian.PutUint16(frame[IBusPacketSize-2:], sum)
	return frame
}
