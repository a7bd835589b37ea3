// Package httpserver exposes the agent's status API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/lotus-agent/internal/duckdb"
)

const maxEventsLimit = 1000

// Stats is the pipeline counter served by /api/stats and /metrics.
type Stats interface {
	prometheus.Collector
	Processed() uint64
}

// EventReader reads back stored events. It is nil unless the duckdb output
// is in use.
type EventReader interface {
	CountEvents(ctx context.Context) (int64, error)
	RecentEvents(ctx context.Context, limit int) ([]duckdb.EventRow, error)
}

// Server provides the HTTP status API.
type Server struct {
	addr      string
	stats     Stats
	events    EventReader
	registry  *prometheus.Registry
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// NewServer creates a new status API server. events may be nil.
func NewServer(addr string, stats Stats, events EventReader) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(stats, collectors.NewGoCollector())
	return &Server{
		addr:      addr,
		stats:     stats,
		events:    events,
		registry:  registry,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/stats", s.handleStats)
	if s.events != nil {
		r.GET("/api/events", s.handleEvents)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the active listen address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	body := gin.H{"processed": s.stats.Processed()}
	if s.events != nil {
		stored, err := s.events.CountEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count stored events"})
			return
		}
		body["stored"] = stored
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventsLimit)
	}

	rows, err := s.events.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	if rows == nil {
		rows = []duckdb.EventRow{}
	}
	c.JSON(http.StatusOK, gin.H{"events": rows, "count": len(rows)})
}
