package rc

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannels(base uint16) []uint16 {
	ch := make([]uint16, IBusChannels)
	for i := range ch {
		ch[i] = base + uint16(i)
	}
	return ch
}

func TestIBusEncodeDecode(t *testing.T) {
	frame := EncodeIBusFrame(testChannels(1000))
	require.Len(t, frame, IBusPacketSize)
	assert.Equal(t, byte(0x20), frame[0])
	assert.Equal(t, byte(0x40), frame[1])

	got, err := DecodeIBusFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, testChannels(1000), got[:])
}

func TestIBusChecksum(t *testing.T) {
	frame := EncodeIBusFrame(testChannels(1200))
	frame[5] ^= 0x01
	_, err := DecodeIBusFrame(frame)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestIBusDecoderResyncs(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13, 0x20, 0x11}) // noise, including a false header
	stream.Write(EncodeIBusFrame(testChannels(1100)))
	bad := EncodeIBusFrame(testChannels(1300))
	bad[len(bad)-1] ^= 0xFF
	stream.Write(bad)
	stream.Write(EncodeIBusFrame(testChannels(1500)))

	dec := NewIBusDecoder(bytes.NewReader(stream.Bytes()))

	got, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(1100), got[0])

	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrChecksum)

	got, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(1513), got[13])

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestIBusDecoderShortFrame(t *testing.T) {
	frame := EncodeIBusFrame(testChannels(1000))
	dec := NewIBusDecoder(bytes.NewReader(frame[:20]))
	_, err := dec.Next()
	assert.True(t, errors.Is(err, ErrShortFrame))
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := DecodeIBusFrame([]byte{0x20, 0x40, 0x00})
	assert.ErrorIs(t, err, ErrShortFrame)
}
