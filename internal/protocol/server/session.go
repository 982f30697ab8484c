package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"fleettrack/internal/log"
	"fleettrack/internal/metrics"
	"fleettrack/internal/protocol/bw32"

	"github.com/google/uuid"
)

const (
	readBufferSize  = 4096
	ackWriteTimeout = 10 * time.Second
)

// Session owns one tracker connection: it frames the byte stream, interprets
// each frame, writes acknowledgements and hands events to the sink. Frames are
// handled strictly in arrival order.
type Session struct {
	id          string
	conn        net.Conn
	framer      *bw32.Framer
	interpreter *bw32.Interpreter
	sink        EventSink
	policy      IdentityPolicy
	logger      log.Logger
	metrics     *metrics.Metrics

	// deviceID is latched from the first frame. Only the serving goroutine
	// touches it.
	deviceID string

	closeOnce sync.Once
}

type sessionConfig struct {
	maxBuffer   int
	interpreter *bw32.Interpreter
	sink        EventSink
	policy      IdentityPolicy
	logger      log.Logger
	metrics     *metrics.Metrics
}

func newSession(conn net.Conn, cfg sessionConfig) *Session {
	s := &Session{
		id:          uuid.NewString(),
		conn:        conn,
		interpreter: cfg.interpreter,
		sink:        cfg.sink,
		policy:      cfg.policy,
		metrics:     cfg.metrics,
	}
	s.logger = cfg.logger.WithValues("session", s.id, "remote", conn.RemoteAddr().String())
	s.framer = bw32.NewFramer(cfg.maxBuffer, s.onDrop)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Serve reads until the peer disconnects, the connection is closed or ctx is
// done. The connection is closed on return.
func (s *Session) Serve(ctx context.Context) {
	defer func() {
		s.Close()
		s.framer.Reset()
	}()

	s.logger.Info("Tracker connected")
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.handleChunk(ctx, buf[:n])
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				s.logger.Info("Tracker disconnected")
			default:
				s.logger.Warn("Tracker connection read failed", "error", err)
			}
			return
		}
	}
}

// Close closes the connection, which ends Serve. Safe to call from any
// goroutine and more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *Session) handleChunk(ctx context.Context, chunk []byte) {
	for _, frame := range s.framer.Feed(chunk) {
		s.handleFrame(ctx, frame)
	}
}

func (s *Session) onDrop(raw []byte, err error) {
	if errors.Is(err, bw32.ErrBufferOverflow) {
		s.metrics.FrameDropped(metrics.ReasonOverflow)
		s.logger.Warn("Discarding receive buffer without delimiter", "bytes", len(raw))
		return
	}
	s.metrics.FrameDropped(metrics.ReasonMalformed)
	s.logger.Warn("Dropping malformed frame", "frame", truncate(raw, 128), "error", err)
}

// admit applies the identity latch and reports whether frame may be handled.
func (s *Session) admit(frame bw32.Frame) bool {
	if s.deviceID == "" {
		s.deviceID = frame.DeviceID
		s.logger = s.logger.WithValues("device", frame.DeviceID)
		s.logger.Info("Session bound to device")
		return true
	}
	if frame.DeviceID == s.deviceID {
		return true
	}

	if s.policy == IdentityMultiplex {
		s.logger.Debug("Frame for another device on this connection", "frameDevice", frame.DeviceID)
		return true
	}
	s.metrics.FrameDropped(metrics.ReasonIdentity)
	s.logger.Warn("Ignoring frame for another device", "frameDevice", frame.DeviceID, "command", frame.Token)
	return false
}

func (s *Session) handleFrame(ctx context.Context, frame bw32.Frame) {
	if !s.admit(frame) {
		return
	}

	event, ack, err := s.interpreter.Interpret(frame)
	if err != nil {
		s.metrics.FrameDropped(metrics.ReasonDecode)
		s.logger.Warn("Dropping undecodable payload", "command", frame.Token, "error", err)
		return
	}

	if unknown, ok := event.(bw32.UnknownCommandEvent); ok {
		s.metrics.FrameDropped(metrics.ReasonUnknownCommand)
		s.logger.Info("Unknown command", "frameDevice", unknown.DeviceID, "command", unknown.Command, "payload", unknown.Payload)
		return
	}
	s.metrics.FrameDecoded(frame.Token)

	if len(ack) > 0 {
		s.writeAck(frame.Token, ack)
	}

	s.dispatch(ctx, event)
}

func (s *Session) writeAck(command string, ack []byte) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(ackWriteTimeout))
	_, err := s.conn.Write(ack)
	s.metrics.AckWritten(command, err)
	if err != nil {
		s.logger.Warn("Failed to write ack", "command", command, "error", err)
	}
}

func (s *Session) dispatch(ctx context.Context, event bw32.Event) {
	var err error
	switch e := event.(type) {
	case bw32.HeartbeatEvent:
		err = s.sink.HandleHeartbeat(ctx, e.DeviceID, e.Timestamp)
	case bw32.PositionEvent:
		err = s.sink.HandlePosition(ctx, e.Report)
	case bw32.AlarmEvent:
		err = s.sink.HandleAlarm(ctx, e.Report)
	default:
		return
	}

	if err != nil {
		s.metrics.FrameDropped(metrics.ReasonRejected)
		s.logger.Warn("Event rejected", "frameDevice", event.Source(), "error", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
