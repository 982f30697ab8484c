package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"fleettrack/internal/log"
	"fleettrack/internal/metrics"
	"fleettrack/internal/protocol/bw32"
)

// ErrAlreadyStarted is returned by Start on a server that was started before.
var ErrAlreadyStarted = errors.New("tcp server already started")

// TCPServer accepts tracker connections on one port and runs a Session for
// each of them.
type TCPServer struct {
	host        string
	port        int
	sink        EventSink
	interpreter *bw32.Interpreter
	maxBuffer   int
	policy      IdentityPolicy
	logger      log.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*Session
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*TCPServer)

// WithHost sets the interface to bind. The default is all interfaces.
func WithHost(host string) Option {
	return func(s *TCPServer) { s.host = host }
}

func WithMaxBuffer(n int) Option {
	return func(s *TCPServer) { s.maxBuffer = n }
}

func WithIdentityPolicy(p IdentityPolicy) Option {
	return func(s *TCPServer) { s.policy = p }
}

func WithInterpreter(i *bw32.Interpreter) Option {
	return func(s *TCPServer) { s.interpreter = i }
}

func WithLogger(l log.Logger) Option {
	return func(s *TCPServer) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TCPServer) { s.metrics = m }
}

func NewTCPServer(port int, sink EventSink, opts ...Option) *TCPServer {
	s := &TCPServer{
		host:        "0.0.0.0",
		port:        port,
		sink:        sink,
		interpreter: bw32.NewInterpreter(),
		maxBuffer:   bw32.DefaultMaxBuffer,
		policy:      IdentityStrict,
		logger:      log.NewNopLogger(),
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the port and begins accepting connections in the background.
// A bind failure is returned as is; there is no retry.
func (s *TCPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = listener
	s.cancel = cancel
	s.started = true

	s.logger.Info("TCP server listening", "addr", listener.Addr().String(), "identityPolicy", s.policy)

	s.wg.Add(1)
	go s.acceptConnections(ctx)
	return nil
}

// Run starts the server and blocks until ctx is done, then stops it.
func (s *TCPServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open session, then waits for their
// goroutines. Calling it more than once, or before Start, is harmless.
func (s *TCPServer) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	_ = s.listener.Close()
	for _, session := range s.sessions {
		session.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("TCP server stopped")
}

// Sessions returns the number of open connections.
func (s *TCPServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *TCPServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient accept failures such as EMFILE: back off and retry.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			s.logger.Error(err, "Error accepting connection", "retryIn", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.handleConnection(ctx, conn)
	}
}

func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	session := newSession(conn, sessionConfig{
		maxBuffer:   s.maxBuffer,
		interpreter: s.interpreter,
		sink:        s.sink,
		policy:      s.policy,
		logger:      s.logger.WithName("session"),
		metrics:     s.metrics,
	})

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[session.ID()] = session
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.ConnectionOpened()
	go func() {
		defer s.wg.Done()
		defer s.metrics.ConnectionClosed()
		defer s.removeSession(session)

		session.Serve(ctx)
	}()
}

func (s *TCPServer) removeSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session.ID())
}
