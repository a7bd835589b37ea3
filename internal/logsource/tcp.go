package logsource

import (
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
	"github.com/tinytelemetry/lotus-agent/internal/tcpserver"
)

// TCPSource wraps a tcpserver.Server as a LogSource.
type TCPSource struct {
	server *tcpserver.Server
	name   string
}

// NewTCPSource creates a TCPSource around an unstarted server.
func NewTCPSource(server *tcpserver.Server, name string) *TCPSource {
	return &TCPSource{server: server, name: name}
}

func (t *TCPSource) Name() string { return t.name }

// Listen binds early so callers can learn the address before Run.
func (t *TCPSource) Listen() error { return t.server.Listen() }

func (t *TCPSource) Addr() string { return t.server.Addr() }

func (t *TCPSource) Run(q *queue.Queue, sig shutdown.Signal) error {
	return t.server.Serve(q, sig)
}
