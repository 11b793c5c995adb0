package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keycast/keycast/internal/broadcast"
	"github.com/keycast/keycast/internal/config"
	"github.com/keycast/keycast/internal/frontend"
	"github.com/keycast/keycast/internal/input"
	"github.com/keycast/keycast/internal/metrics"
	"github.com/keycast/keycast/internal/registry"
	"github.com/keycast/keycast/internal/ws"
)

const defaultConfigPath = "config.yaml"

type serveOptions struct {
	configPath string
	port       int
	simulate   bool
	noInput    bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broadcast gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			setupLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	f.IntVar(&opts.port, "port", 0, "Override server port")
	f.BoolVar(&opts.simulate, "simulate", false, "Drive the input lines from a simulated button generator")
	f.BoolVar(&opts.noInput, "no-input", false, "Disable the hardware input adapter")

	return cmd
}

// loadConfig reads the config file and applies flag overrides. The default
// path may be missing; an explicit --config must exist.
func loadConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.simulate {
		cfg.Input.Simulate = true
	}
	if opts.noInput {
		cfg.Input.Enabled = false
	}
	return cfg, cfg.Validate()
}

// detectCapability decides once, at startup, whether input lines exist.
func detectCapability(cfg config.InputConfig) input.Capability {
	switch {
	case !cfg.Enabled:
		return input.NoHardware("input disabled by configuration")
	case cfg.Simulate:
		return input.Simulated()
	default:
		return input.DetectHardware()
	}
}

func staticHandler(cfg config.ServerConfig) http.Handler {
	if cfg.StaticDir != "" {
		if _, err := os.Stat(cfg.StaticDir); err == nil {
			slog.Info("serving static files from disk", "dir", cfg.StaticDir)
			return http.FileServer(http.Dir(cfg.StaticDir))
		}
		slog.Warn("static dir not found, falling back to embedded assets", "dir", cfg.StaticDir)
	}
	return frontend.Handler()
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	reg := registry.New()
	reg.SetCountHook(m.SetConnections)

	dispatcher := broadcast.NewDispatcher(reg, broadcast.Options{
		EchoToSender: cfg.Broadcast.EchoToSender,
		Format:       broadcast.FrameFormat(cfg.Broadcast.FrameFormat),
	}, m)

	capab := detectCapability(cfg.Input)
	adapter, err := input.Build(cfg.Input, capab, m)
	if err != nil {
		return err
	}

	server := ws.NewServer(cfg, reg, dispatcher, staticHandler(cfg.Server))
	server.SetMetrics(m)
	server.SetInput(adapter)

	// Bind before starting the input loop so a taken port aborts startup
	// without touching the hardware.
	ln, err := server.Listen()
	if err != nil {
		adapter.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputDone := make(chan struct{})
	go adapter.Run(ctx)
	go func() {
		input.Forward(ctx, adapter.Events(), dispatcher)
		close(inputDone)
	}()

	slog.Info("keycast starting",
		"version", version,
		"addr", ln.Addr().String(),
		"echoToSender", cfg.Broadcast.EchoToSender,
		"frameFormat", cfg.Broadcast.FrameFormat,
		"input", capab.Present,
		"simulated", capab.Simulated,
	)

	err = server.Serve(ctx, ln)
	cancel()
	<-inputDone
	slog.Info("keycast stopped")
	return err
}
