package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxMessageSize is the largest message the server accepts from a client.
// Longer messages are dropped without a reply rather than cut short.
const MaxMessageSize = 64 * 1024

// ErrMessageTooLarge is returned when a client sends more than MaxMessageSize bytes.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Handler turns a received message into the reply sent back to the client.
type Handler func(message []byte) []byte

// EchoHandler replies with the message unchanged.
func EchoHandler(message []byte) []byte {
	return message
}

// Server accepts TCP connections, reads each message until the client
// half-closes, and writes back the handler's reply.
type Server struct {
	address   string
	handler   Handler
	logger    *zap.Logger
	ioTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server listening on address. A nil handler echoes.
func NewServer(address string, handler Handler, logger *zap.Logger) *Server {
	if handler == nil {
		handler = EchoHandler
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		address:   address,
		handler:   handler,
		logger:    logger,
		ioTimeout: 10 * time.Second,
	}
}

// Start binds the listener and serves connections in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server already started on %s", s.listener.Addr())
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = ln

	s.logger.Sugar().Infow("Starting TCP server", "address", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Sugar().Errorw("TCP accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(s.ioTimeout))

	message, err := readMessage(conn)
	if err != nil {
		s.logger.Sugar().Warnw("Failed to read message", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	s.logger.Debug("Received message",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("bytes", len(message)),
	)

	if _, err := conn.Write(s.handler(message)); err != nil {
		s.logger.Sugar().Warnw("Failed to write reply", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

// readMessage reads until EOF, failing once more than MaxMessageSize bytes arrive.
func readMessage(r io.Reader) ([]byte, error) {
	message, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(message) > MaxMessageSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrMessageTooLarge, MaxMessageSize)
	}
	return message, nil
}
