package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/lotus-agent/internal/config"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

type cliOptions struct {
	configPath  string
	check       bool
	printConfig bool
	debugEvents bool
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := pflag.NewFlagSet("lotus-agent", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "config file (default is "+config.DefaultPath+")")
	fs.BoolVar(&opts.check, "check", false, "validate the configuration and exit")
	fs.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration as YAML and exit")
	fs.BoolVar(&opts.debugEvents, "debug-events", false, "log every normalized event at debug level")
	fs.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Lotus Agent - Log Collection Agent\n")
	fmt.Fprintf(w, "  Version:    %s\n", version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Built:      %s\n", buildTime)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
}

// loadConfig loads, applies CLI overrides and validates.
func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.showVersion {
		printVersion(os.Stdout)
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if opts.printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}
	if opts.check {
		path := cfg.Path
		if path == "" {
			path = "defaults"
		}
		fmt.Fprintf(os.Stdout, "config OK (%s): %d input(s), output %s\n", path, len(cfg.Inputs), cfg.Output.Type)
		return
	}

	if err := runAgent(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
