// Command floorlink runs the real-time gateway: the WebSocket listener,
// the hub, the NATS event ingest bridge and the observability API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/floorlink/floorlink/api"
	"github.com/floorlink/floorlink/auth"
	"github.com/floorlink/floorlink/config"
	"github.com/floorlink/floorlink/gateway"
	"github.com/floorlink/floorlink/hub"
	"github.com/floorlink/floorlink/ingest"
	"github.com/floorlink/floorlink/metric"
	"github.com/floorlink/floorlink/natsclient"
)

// version is stamped at build time
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "floorlink:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("floorlink", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("starting floorlink", "version", version)

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
	}

	h := hub.New(hub.Options{
		QueueCapacity:  cfg.Hub.QueueCapacity,
		ErrorThreshold: cfg.Hub.ErrorThreshold,
		WriteTimeout:   cfg.Gateway.WriteTimeout.Std(),
		Logger:         logger,
		Metrics:        registry,
	})
	dispatcher := hub.NewDispatcher(h)
	broadcaster := hub.NewBroadcaster(h, dispatcher)
	monitor := hub.NewMonitor(h, hub.MonitorOptions{
		ScanInterval: cfg.Hub.ScanInterval.Std(),
		StaleAfter:   cfg.Hub.StaleAfter.Std(),
		WarningPct:   cfg.Hub.WarningUnhealthyPct * 100,
		CriticalPct:  cfg.Hub.CriticalUnhealthyPct * 100,
	})
	commands := hub.NewCommandHandler(h, dispatcher, monitor)

	gw := gateway.New(h, dispatcher, commands, newVerifier(cfg.Auth), gateway.Options{
		WriteTimeout: cfg.Gateway.WriteTimeout.Std(),
		ReadTimeout:  cfg.Gateway.ReadTimeout.Std(),
		PingInterval: cfg.Gateway.PingInterval.Std(),
		MaxFrameSize: cfg.Gateway.MaxFrameSize,
		CommandRate:  cfg.Gateway.CommandRate,
		CommandBurst: cfg.Gateway.CommandBurst,
		AuthTimeout:  cfg.Auth.Timeout.Std(),
		Logger:       logger,
		Metrics:      registry,
	})

	var natsConn *natsclient.Client
	var bridge *ingest.Bridge
	if cfg.NATS.Enabled {
		natsConn, err = natsclient.Connect(natsclient.Options{
			URLs:          cfg.NATS.URLs,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait.Std(),
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		bridge = ingest.New(natsConn, broadcaster, ingest.Options{
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Logger:        logger,
			Metrics:       registry,
		})
		if err := bridge.Start(); err != nil {
			natsConn.Close()
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Gateway.Path, gw)

	gatewaySrv := &http.Server{Addr: cfg.Gateway.Addr, Handler: mux}
	apiSrv := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: api.New(monitor, api.Options{Logger: logger, Metrics: registry}).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.Gateway.Addr, "path", cfg.Gateway.Path)
		if err := gatewaySrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("api listening", "addr", cfg.API.Addr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		// Refuse new sessions, stop event intake, then close what remains.
		gw.Drain()
		if bridge != nil {
			bridge.Stop()
		}
		if natsConn != nil {
			natsConn.Close()
		}

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = gatewaySrv.Shutdown(shCtx)
		_ = apiSrv.Shutdown(shCtx)

		h.CloseAll("server shutdown")
		monitor.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}

// newLogger builds the process logger from configuration
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// newVerifier selects the token verifier from configuration
func newVerifier(cfg config.AuthConfig) auth.TokenVerifier {
	if cfg.Mode == "http" {
		return auth.NewHTTPVerifier(cfg.Endpoint, cfg.Timeout.Std())
	}
	return auth.NewStaticVerifier(cfg.Tokens)
}
