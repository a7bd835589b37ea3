package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/lotus-agent/internal/agent"
	"github.com/tinytelemetry/lotus-agent/internal/config"
	"github.com/tinytelemetry/lotus-agent/internal/httpserver"
	"github.com/tinytelemetry/lotus-agent/internal/logging"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// forceExitAfter bounds how long a graceful shutdown may take once the
// first signal arrived.
const forceExitAfter = 10 * time.Second

// runAgent builds the pipeline, serves the status API when enabled and runs
// until every input finished or the operator interrupts.
func runAgent(cfg *config.Config, opts cliOptions) error {
	logger := logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	a, err := agent.New(cfg, agent.Options{
		Logger:      logger,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		DebugEvents: opts.debugEvents,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing output failed", "error", err)
		}
	}()

	if cfg.API.Enabled {
		var events httpserver.EventReader
		if store := a.Store(); store != nil {
			events = store
		}
		apiServer := httpserver.NewServer(cfg.API.Addr, a.Stats(), events)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
		logger.Info("status API listening", "component", "api", "addr", apiServer.Addr())
	}

	trigger, sig := shutdown.New()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintln(os.Stderr, renderStartupBanner(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.Run(sig)
	})
	g.Go(func() error {
		watchSignals(gctx, sigCh, trigger, logger)
		return nil
	})

	return g.Wait()
}

// watchSignals fires trigger on the first SIGINT/SIGTERM. A second signal,
// or a shutdown that outlives forceExitAfter, exits the process.
func watchSignals(ctx context.Context, sigCh <-chan os.Signal, trigger *shutdown.Trigger, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		return
	case s := <-sigCh:
		logger.Info("shutting down gracefully (signal again to force)", "signal", s.String())
		trigger.Fire()
	}

	// The deadline starts at the first signal, not at boot.
	deadline := time.NewTimer(forceExitAfter)
	defer deadline.Stop()

	select {
	case <-ctx.Done():
	case <-sigCh:
		logger.Error("forced shutdown")
		os.Exit(1)
	case <-deadline.C:
		logger.Error("shutdown timed out, forcing exit", "after", forceExitAfter)
		os.Exit(1)
	}
}

func renderStartupBanner(cfg *config.Config) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔╦╗╦ ╦╔═╗
    ║  ║ ║ ║ ║ ║╚═╗
    ╩═╝╚═╝ ╩ ╚═╝╚═╝  agent`)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Inputs"), "")
	for _, in := range cfg.Inputs {
		lines = append(lines, fmt.Sprintf("    %s  %-18s %s %s",
			check, string(in.Type), cyan.Render(in.SourceName()), dim.Render(inputDetail(in))))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Output"), "")
	lines = append(lines, fmt.Sprintf("    %s  %-18s %s", check, string(cfg.Output.Type), cyan.Render(outputDetail(cfg.Output))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.API.Enabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API           %s", check, cyan.Render(cfg.API.Addr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API           %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.Path != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File        %s", check, dim.Render(shortenPath(cfg.Path))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File        %s", dot, dim.Render("default (no file)")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Queue Capacity     %s", check, dim.Render(fmt.Sprint(cfg.Runtime.ChannelSize))))

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	return strings.Join(lines, "\n")
}

func inputDetail(in config.InputConfig) string {
	switch in.Type {
	case config.InputFileTail:
		return shortenPath(in.Path)
	case config.InputTCPListener, config.InputUDPListener, config.InputOTLPGRPC:
		return in.Bind
	case config.InputProcess:
		return strings.TrimSpace(in.Program + " " + strings.Join(in.Args, " "))
	case config.InputJournald:
		if len(in.Units) == 0 {
			return "all units"
		}
		return strings.Join(in.Units, ",")
	case config.InputWindowsEventLog:
		return in.Log
	default:
		return ""
	}
}

func outputDetail(out config.OutputConfig) string {
	switch out.Type {
	case config.OutputSyslog:
		return fmt.Sprintf("%s://%s %s", out.Protocol, out.Address, out.Format)
	case config.OutputDuckDB:
		return shortenPath(out.Path)
	default:
		return "stdout"
	}
}

func shortenPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
