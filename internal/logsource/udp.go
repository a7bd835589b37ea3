package logsource

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// MaxDatagramSize is the largest UDP payload read; longer datagrams are truncated.
const MaxDatagramSize = 8192

// UDPSource turns each received datagram into exactly one event.
type UDPSource struct {
	bind   string
	name   string
	logger *slog.Logger
	conn   net.PacketConn
}

// NewUDPSource creates a listener for bind. Nothing is bound until Listen.
func NewUDPSource(bind, name string, logger *slog.Logger) *UDPSource {
	return &UDPSource{
		bind:   bind,
		name:   name,
		logger: logger.With("component", "logsource", "source", name),
	}
}

func (u *UDPSource) Name() string { return u.name }

// Listen binds the socket. Run calls it if needed.
func (u *UDPSource) Listen() error {
	if u.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", u.bind)
	if err != nil {
		return fmt.Errorf("bind udp %s: %w", u.bind, err)
	}
	u.conn = conn
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (u *UDPSource) Addr() string {
	if u.conn != nil {
		return u.conn.LocalAddr().String()
	}
	return u.bind
}

func (u *UDPSource) Run(q *queue.Queue, sig shutdown.Signal) error {
	if err := u.Listen(); err != nil {
		return err
	}

	stop := make(chan struct{})
	var once sync.Once
	closeConn := func() { once.Do(func() { close(stop); u.conn.Close() }) }
	defer closeConn()
	go func() {
		select {
		case <-sig.Done():
		case <-q.Gone():
		case <-stop:
			return
		}
		closeConn()
	}()

	u.logger.Info("listening", "addr", u.Addr())
	buf := make([]byte, MaxDatagramSize)
	for {
		n, peer, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		payload := strings.TrimSpace(strings.ToValidUTF8(string(buf[:n]), "�"))
		if payload == "" {
			continue
		}
		if err := q.Send(stop, model.NewEvent(u.name+":"+peer.String(), payload)); err != nil {
			return nil
		}
	}
}
