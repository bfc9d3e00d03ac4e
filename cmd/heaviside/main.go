// Package main is the entry point for the Heaviside message bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/bridge"
	"github.com/dshills/heaviside/internal/config"
	"github.com/dshills/heaviside/internal/logging"
	"github.com/dshills/heaviside/internal/pubsub"
	"github.com/dshills/heaviside/internal/script"
	"github.com/dshills/heaviside/internal/window"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	Addr       string
	ScriptPath string
	LogLevel   string
	InitConfig bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	if opts.InitConfig {
		path := opts.ConfigPath
		if path == "" {
			path = config.DefaultPath()
		}
		wrote, err := config.WriteDefault(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if wrote {
			fmt.Printf("Wrote %s\n", path)
		} else {
			fmt.Printf("%s already exists\n", path)
		}
		return 0
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.ScriptPath != "" {
		cfg.Script.Path = opts.ScriptPath
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger := logging.New(cfg.LogConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("heaviside stopped")
		return 1
	}
	return 0
}

// serve runs the bridge until ctx is done. Inbound peer messages and the
// Lua script share the main frame's event loop.
func serve(ctx context.Context, cfg config.Config, logger *logrus.Entry) error {
	hubOpts, err := cfg.HubOptions()
	if err != nil {
		return err
	}
	hub := pubsub.NewHub(append(hubOpts, pubsub.WithLogger(logger))...)
	defer hub.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go watchStats(ctx, hup, hub, logger)

	host := window.NewHost(window.WithLogger(logger))
	defer host.Close()

	frame, err := host.Open(cfg.Server.Origin, window.WithName("main"))
	if err != nil {
		return fmt.Errorf("open main frame: %w", err)
	}

	var listenErr error
	if err := frame.Run(func() {
		_, listenErr = hub.Listen(frame)
	}); err != nil {
		return err
	}
	if listenErr != nil {
		return fmt.Errorf("listen on main frame: %w", listenErr)
	}

	srv := bridge.NewServer(
		bridge.WithLogger(logger),
		bridge.WithAllowedOrigins(cfg.Receiver.AllowedOrigins...),
	)
	defer srv.Close()
	srv.AddMessageListener(func(ev window.MessageEvent) {
		if err := frame.Deliver(ev); err != nil {
			logger.WithError(err).Debug("main frame is closed; dropping peer message")
		}
	})

	if cfg.Script.Path != "" {
		rt, err := startScript(ctx, frame, hub, srv, cfg.Script.Path, logger)
		if err != nil {
			return err
		}
		defer frame.Run(func() { rt.Close() })
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, srv)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   cfg.Server.Addr,
			"path":   cfg.Server.Path,
			"origin": cfg.Server.Origin,
		}).Info("bridge listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", cfg.Server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	logStats(logger, hub.Stats())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Close(); err != nil {
		logger.WithError(err).Warn("closing bridge")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// watchStats logs hub statistics each time sig fires and starts a new
// counting window.
func watchStats(ctx context.Context, sig <-chan os.Signal, hub *pubsub.Hub, logger *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			logStats(logger, hub.Stats())
			hub.ResetStats()
		}
	}
}

func logStats(logger *logrus.Entry, s pubsub.Stats) {
	logger.WithFields(logrus.Fields{
		"published":     s.Published,
		"delivered":     s.Delivered,
		"panics":        s.Panics,
		"posted":        s.Posted,
		"received":      s.Received,
		"rejected":      s.Rejected,
		"subscriptions": s.Subscriptions,
		"avg_callback":  time.Duration(s.AvgCallbackTimeNs).String(),
	}).Info("hub stats")
}

func startScript(ctx context.Context, frame *window.Frame, hub *pubsub.Hub, peers window.Window, path string, logger *logrus.Entry) (*script.Runtime, error) {
	rt, err := script.NewRuntime(hub,
		script.WithWindow("peers", peers),
		script.WithWindow("self", frame),
		script.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var runErr error
	if err := frame.Run(func() {
		runErr = rt.DoFile(ctx, path)
	}); err != nil {
		return nil, err
	}
	if runErr != nil {
		_ = frame.Run(func() { rt.Close() })
		return nil, fmt.Errorf("run script %s: %w", path, runErr)
	}
	logger.WithField("script", path).Info("script loaded")
	return rt, nil
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.Addr, "addr", "", "Listen address (overrides server.addr)")
	flag.StringVar(&opts.ScriptPath, "script", "", "Lua script to run against the hub")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.InitConfig, "init", false, "Write a default configuration file and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Heaviside - cross-window publish/subscribe bridge\n\n")
		fmt.Fprintf(os.Stderr, "Usage: heaviside [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  heaviside                         Serve with the default config\n")
		fmt.Fprintf(os.Stderr, "  heaviside -addr :9000             Serve on another port\n")
		fmt.Fprintf(os.Stderr, "  heaviside -script init.lua        Run a Lua script against the hub\n")
		fmt.Fprintf(os.Stderr, "  heaviside -init -c ./heaviside.toml\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Heaviside %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	return opts
}
