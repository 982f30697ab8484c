package bw32

import (
	"bytes"
)

// DropFunc is told about every frame the Framer discards.
type DropFunc func(raw []byte, err error)

// Framer turns an append-only byte stream into frames. It is owned by a single
// connection and is not safe for concurrent use.
type Framer struct {
	buf       []byte
	maxBuffer int
	onDrop    DropFunc
}

// NewFramer returns a Framer that holds at most maxBuffer bytes while waiting
// for a delimiter. maxBuffer <= 0 selects DefaultMaxBuffer; onDrop may be nil.
func NewFramer(maxBuffer int, onDrop DropFunc) *Framer {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Framer{
		maxBuffer: maxBuffer,
		onDrop:    onDrop,
	}
}

// Feed appends chunk and returns every complete, well-formed frame now
// available, in receive order. Bytes after the last delimiter stay buffered.
func (f *Framer) Feed(chunk []byte) []Frame {
	f.buf = append(f.buf, chunk...)

	var frames []Frame
	start := 0
	for {
		i := bytes.IndexByte(f.buf[start:], Delimiter)
		if i < 0 {
			break
		}
		raw := f.buf[start : start+i+1]
		start += i + 1

		frame, err := ParseFrame(raw)
		if err != nil {
			f.drop(raw, err)
			continue
		}
		frames = append(frames, frame)
	}

	if start > 0 {
		n := copy(f.buf, f.buf[start:])
		f.buf = f.buf[:n]
	}

	if len(f.buf) > f.maxBuffer {
		f.drop(f.buf, ErrBufferOverflow)
		f.buf = nil
	}

	return frames
}

// Buffered returns the number of bytes waiting for a delimiter.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any buffered bytes.
func (f *Framer) Reset() {
	f.buf = nil
}

func (f *Framer) drop(raw []byte, err error) {
	if f.onDrop != nil {
		f.onDrop(raw, err)
	}
}
