// Package tcpserver accepts newline-delimited text over TCP and feeds each
// line into a queue, one handler goroutine per connection.
package tcpserver

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

const (
	// DefaultMaxLineSize is the default maximum size (in bytes) of a single log line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	acceptRetryDelay = 50 * time.Millisecond
)

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxLineSize int
}

// Server is a TCP line listener. Events are tagged "{source}:{peer}".
type Server struct {
	addr        string
	source      string
	maxLineSize int
	logger      *slog.Logger

	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a server for addr. Nothing is bound until Listen.
func NewServer(addr, source string, logger *slog.Logger, conf ...ServerConfig) *Server {
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 && conf[0].MaxLineSize > 0 {
		maxLineSize = conf[0].MaxLineSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:        addr,
		source:      source,
		maxLineSize: maxLineSize,
		logger:      logger.With("component", "tcpserver", "source", source),
		conns:       make(map[net.Conn]struct{}),
	}
}

// Listen binds the listening socket. Serve calls it if needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the active listen address.
// Before Listen, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve accepts connections until sig fires or the queue's consumer goes
// away, then closes the listener and every open connection and waits for
// the handlers to return. Accept errors are logged and do not stop it.
func (s *Server) Serve(q *queue.Queue, sig shutdown.Signal) error {
	if err := s.Listen(); err != nil {
		return err
	}

	stop := make(chan struct{})
	var stopOnce sync.Once
	closeAll := func() {
		stopOnce.Do(func() {
			close(stop)
			s.listener.Close()
			s.mu.Lock()
			for c := range s.conns {
				c.Close()
			}
			s.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-sig.Done():
		case <-q.Gone():
		case <-stop:
			return
		}
		closeAll()
	}()
	defer func() {
		closeAll()
		s.wg.Wait()
	}()

	s.logger.Info("listening", "addr", s.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-stop:
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		s.mu.Lock()
		select {
		case <-stop:
			s.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn, q, stop)
	}
}

func (s *Server) handleConnection(conn net.Conn, q *queue.Queue, stop <-chan struct{}) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	peer := conn.RemoteAddr().String()
	source := s.source + ":" + peer

	scanner := bufio.NewScanner(conn)
	buf := make([]byte, 0, min(64*1024, s.maxLineSize))
	scanner.Buffer(buf, s.maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := q.Send(stop, model.NewEvent(source, line)); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-stop:
			return
		default:
		}
		if errors.Is(err, bufio.ErrTooLong) {
			s.logger.Warn("dropped connection: line exceeds max size", "peer", peer, "max_bytes", s.maxLineSize)
			return
		}
		s.logger.Warn("read failed", "peer", peer, "error", err)
	}
}
