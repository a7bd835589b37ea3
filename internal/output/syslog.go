package output

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/config"
	"github.com/tinytelemetry/lotus-agent/internal/logparse"
	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

const (
	// DefaultReconnectDelay is the pause between TCP connection attempts.
	DefaultReconnectDelay = time.Second

	rfc3164Stamp = "Jan _2 15:04:05"
	rfc5424Stamp = "2006-01-02T15:04:05.000Z07:00"
)

// SyslogSink forwards events to a syslog receiver over UDP or TCP.
type SyslogSink struct {
	protocol          string
	address           string
	format            string
	hostname          string
	appName           string
	facility          int
	severityFromLevel bool
	logger            *slog.Logger

	dial           func(network, address string) (net.Conn, error)
	reconnectDelay time.Duration
	loc            *time.Location
}

// NewSyslogSink creates a sink. Empty hostname and app name fall back to the
// local hostname and DefaultAppName.
func NewSyslogSink(cfg config.SyslogConfig, logger *slog.Logger) *SyslogSink {
	hostname := cfg.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			hostname = h
		} else {
			hostname = config.DefaultAppName
		}
	}
	appName := cfg.AppName
	if appName == "" {
		appName = config.DefaultAppName
	}
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = config.ProtocolUDP
	}
	return &SyslogSink{
		protocol:          protocol,
		address:           cfg.Address,
		format:            cfg.Format,
		hostname:          hostname,
		appName:           appName,
		facility:          min(max(cfg.Facility, 0), 23),
		severityFromLevel: cfg.SeverityFromLevel,
		logger:            logger.With("component", "output", "sink", "syslog", "addr", cfg.Address),
		dial:              net.Dial,
		reconnectDelay:    DefaultReconnectDelay,
		loc:               time.Local,
	}
}

func (s *SyslogSink) Name() string { return "syslog" }

// Pri returns the PRI value for ev: facility*8 + severity. Severity is
// informational unless severity_from_level is enabled.
func (s *SyslogSink) Pri(ev *model.Event) int {
	severity := logparse.SeverityInformational
	if s.severityFromLevel {
		severity = logparse.SyslogSeverity(ev.Metadata.Level)
	}
	return s.facility*8 + severity
}

// Format renders ev in the configured wire format, without a trailing newline.
func (s *SyslogSink) Format(ev *model.Event) string {
	pri := strconv.Itoa(s.Pri(ev))
	if s.format == config.FormatRFC5424 {
		return "<" + pri + ">1 " + ev.IngestedAt.UTC().Format(rfc5424Stamp) +
			" " + s.hostname + " " + s.appName + " - - " + ev.Line
	}
	return "<" + pri + ">" + ev.IngestedAt.In(s.loc).Format(rfc3164Stamp) +
		" " + s.hostname + " " + s.appName + ": " + ev.Line
}

func (s *SyslogSink) Run(q *queue.Queue, sig shutdown.Signal) error {
	if s.protocol == config.ProtocolTCP {
		return s.runTCP(q, sig)
	}
	return s.runUDP(q)
}

// runUDP sends one datagram per event. Send failures drop the event.
func (s *SyslogSink) runUDP(q *queue.Queue) error {
	conn, err := s.dial("udp", s.address)
	if err != nil {
		return fmt.Errorf("syslog udp %s: %w", s.address, err)
	}
	defer conn.Close()

	for ev := range q.C() {
		if _, err := conn.Write([]byte(s.Format(ev))); err != nil {
			s.logger.Warn("syslog udp send failed", "error", err)
		}
	}
	return nil
}

// runTCP writes newline-framed messages. A connect failure is retried after
// reconnectDelay; a write or flush failure drops the connection and retries
// the same event. While waiting, shutdown stops the sink and the remaining
// events are reported as undelivered.
func (s *SyslogSink) runTCP(q *queue.Queue, sig shutdown.Signal) error {
	var (
		conn net.Conn
		w    *bufio.Writer
	)
	defer func() {
		if conn != nil {
			w.Flush()
			conn.Close()
		}
	}()

	for ev := range q.C() {
		payload := s.Format(ev) + "\n"
		for {
			if conn == nil {
				c, err := s.dial("tcp", s.address)
				if err != nil {
					s.logger.Warn("syslog tcp connect failed", "error", err)
					if !s.pause(sig) {
						s.logger.Warn("shutdown while disconnected, dropping undelivered events", "dropped", 1+q.Len())
						return nil
					}
					continue
				}
				conn, w = c, bufio.NewWriter(c)
			}

			_, err := w.WriteString(payload)
			if err == nil {
				err = w.Flush()
			}
			if err != nil {
				s.logger.Warn("syslog tcp write failed", "error", err)
				conn.Close()
				conn, w = nil, nil
				continue
			}
			break
		}
	}
	return nil
}

// pause waits reconnectDelay. It returns false if shutdown fired first.
func (s *SyslogSink) pause(sig shutdown.Signal) bool {
	t := time.NewTimer(s.reconnectDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-sig.Done():
		return false
	}
}
