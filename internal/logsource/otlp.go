package logsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// OTLPSource receives OTLP logs over gRPC. Every log record becomes one
// event tagged "{name}:{peer}".
type OTLPSource struct {
	collogspb.UnimplementedLogsServiceServer

	bind     string
	name     string
	logger   *slog.Logger
	listener net.Listener

	q      *queue.Queue
	runCtx context.Context
}

// NewOTLPSource creates a receiver for bind. Nothing is bound until Listen.
func NewOTLPSource(bind, name string, logger *slog.Logger) *OTLPSource {
	return &OTLPSource{
		bind:   bind,
		name:   name,
		logger: logger.With("component", "logsource", "source", name),
	}
}

func (o *OTLPSource) Name() string { return o.name }

// Listen binds the socket. Run calls it if needed.
func (o *OTLPSource) Listen() error {
	if o.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", o.bind)
	if err != nil {
		return fmt.Errorf("bind otlp %s: %w", o.bind, err)
	}
	o.listener = l
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (o *OTLPSource) Addr() string {
	if o.listener != nil {
		return o.listener.Addr().String()
	}
	return o.bind
}

func (o *OTLPSource) Run(q *queue.Queue, sig shutdown.Signal) error {
	if err := o.Listen(); err != nil {
		return err
	}
	ctx, cancel := sig.Context(context.Background())
	defer cancel()
	o.q = q
	o.runCtx = ctx

	srv := grpc.NewServer()
	collogspb.RegisterLogsServiceServer(srv, o)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(o.listener) }()
	o.logger.Info("listening", "addr", o.Addr())

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("otlp serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	case <-q.Gone():
		cancel()
	}
	// Exports blocked on a full queue observe runCtx and return Unavailable,
	// so GracefulStop does not wait on them.
	srv.GracefulStop()
	<-serveErr
	return nil
}

// Export implements the OTLP LogsService.
func (o *OTLPSource) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	source := o.name
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		source = o.name + ":" + p.Addr.String()
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopRun := context.AfterFunc(o.runCtx, cancel)
	defer stopRun()

	for _, rl := range req.GetResourceLogs() {
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				line := bodyText(lr.GetBody())
				if strings.TrimSpace(line) == "" {
					continue
				}
				if err := o.q.Send(sendCtx.Done(), model.NewEvent(source, line)); err != nil {
					if ctx.Err() != nil {
						return nil, status.FromContextError(ctx.Err()).Err()
					}
					return nil, status.Error(codes.Unavailable, "agent is shutting down")
				}
			}
		}
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// bodyText renders a log body: strings as-is, anything else as compact JSON.
func bodyText(body *commonpb.AnyValue) string {
	if body == nil {
		return ""
	}
	if s, ok := body.GetValue().(*commonpb.AnyValue_StringValue); ok {
		return s.StringValue
	}
	raw, err := protojson.Marshal(body)
	if err != nil {
		return body.String()
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
