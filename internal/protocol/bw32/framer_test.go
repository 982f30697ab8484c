package bw32

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "BW*868900*32*LK#" +
	"BW*868900*64*UD,240115,093000,A,0622.1234,N,01047.5678,W,015.5,090.0,8,120#" +
	"garbage#" +
	"BW*868900*10*XYZ#" +
	"BW*868901*64*AL,240115,093001,V,0622.1234,S,01047.5678,E,0,0#" +
	"BW*868900*32*LK"

func TestFramerExtractsConcatenatedFrames(t *testing.T) {
	var dropped [][]byte
	f := NewFramer(0, func(raw []byte, err error) {
		assert.True(t, errors.Is(err, ErrMalformedFrame))
		dropped = append(dropped, append([]byte(nil), raw...))
	})

	frames := f.Feed([]byte(sampleStream))

	require.Len(t, frames, 4)
	assert.Equal(t, CommandHeartbeat, frames[0].Command)
	assert.Equal(t, CommandPositionUpdate, frames[1].Command)
	assert.Equal(t, CommandUnknown, frames[2].Command)
	assert.Equal(t, CommandAlarm, frames[3].Command)
	assert.Equal(t, "868901", frames[3].DeviceID)

	require.Len(t, dropped, 1)
	assert.Equal(t, "garbage#", string(dropped[0]))

	// The trailing partial frame waits for its delimiter.
	assert.Equal(t, len("BW*868900*32*LK"), f.Buffered())
	frames = f.Feed([]byte("#"))
	require.Len(t, frames, 1)
	assert.Equal(t, CommandHeartbeat, frames[0].Command)
	assert.Zero(t, f.Buffered())
}

func TestFramerChunkingInvariance(t *testing.T) {
	whole := NewFramer(0, nil).Feed([]byte(sampleStream))

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		f := NewFramer(0, nil)
		var got []Frame

		data := []byte(sampleStream)
		for len(data) > 0 {
			n := 1 + rng.Intn(len(data))
			got = append(got, f.Feed(data[:n])...)
			data = data[n:]
		}

		require.Equal(t, whole, got, "round %d", round)
	}
}

func TestFramerByteAtATime(t *testing.T) {
	f := NewFramer(0, nil)
	var got []Frame
	for _, b := range []byte(sampleStream) {
		got = append(got, f.Feed([]byte{b})...)
	}
	assert.Equal(t, NewFramer(0, nil).Feed([]byte(sampleStream)), got)
}

func TestFramerOverflowResetsBuffer(t *testing.T) {
	var overflow bool
	f := NewFramer(DefaultMaxBuffer, func(raw []byte, err error) {
		if errors.Is(err, ErrBufferOverflow) {
			overflow = true
		}
	})

	frames := f.Feed(bytes.Repeat([]byte("x"), DefaultMaxBuffer))
	assert.Empty(t, frames)
	assert.Equal(t, DefaultMaxBuffer, f.Buffered())
	assert.False(t, overflow)

	assert.NotPanics(t, func() {
		frames = f.Feed([]byte("x"))
	})
	assert.Empty(t, frames)
	assert.True(t, overflow)
	assert.Zero(t, f.Buffered())

	// The stream recovers once a clean frame arrives.
	frames = f.Feed([]byte("BW*868900*32*LK#"))
	require.Len(t, frames, 1)
	assert.Equal(t, "868900", frames[0].DeviceID)
}

func TestFramerOverflowOnlyCountsUndelimitedTail(t *testing.T) {
	f := NewFramer(32, nil)

	frame := []byte("BW*868900*32*LK#")
	stream := bytes.Repeat(frame, 10)
	frames := f.Feed(stream)

	assert.Len(t, frames, 10)
	assert.Zero(t, f.Buffered())
}

func TestFramerReset(t *testing.T) {
	f := NewFramer(0, nil)
	f.Feed([]byte("BW*868900"))
	require.NotZero(t, f.Buffered())

	f.Reset()
	assert.Zero(t, f.Buffered())
	assert.Empty(t, f.Feed([]byte("*32*LK#")))
}
