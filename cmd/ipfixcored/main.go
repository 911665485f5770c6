// Command ipfixcored runs the IPFIX collector core: a UDP listener, the
// template-aware packet dispatcher, and a downstream sink, wired together
// from a YAML config file and command-line overrides.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ipfixcore/internal/config"
	"ipfixcore/internal/dispatch"
	"ipfixcore/internal/exporter"
	"ipfixcore/internal/httpapi"
	"ipfixcore/internal/listener"
	"ipfixcore/internal/metrics"
	"ipfixcore/internal/monitor"
	"ipfixcore/internal/registry"
	"ipfixcore/internal/resolver"
	"ipfixcore/internal/sink"
)

func main() {
	cfgPath := peekConfigFlag(os.Args[1:])

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:   "ipfixcored",
		Short: "IPFIX collector core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	root.Flags().String("config", cfgPath, "path to a YAML config file")
	cfg.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// peekConfigFlag scans argv for --config before cobra's full flag parsing
// runs, since the config file must be loaded before flags bind to it.
func peekConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func run(cfg config.Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	m := metrics.New()
	promReg := prometheus.NewRegistry()
	m.Register(promReg)

	sk, closeSink, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("build sink: %w", err)
	}
	defer closeSink()

	reg := registry.New()
	exporters := exporter.NewRegistry()

	d := dispatch.NewDispatcher(reg, exporters, sk, m, log)
	if cfg.Sampling.OverwriteRate > 0 {
		log.Info("overwrite sampling rate configured; not applied to exporter sampling rates", zap.Uint64("rate", cfg.Sampling.OverwriteRate))
	}

	handler := func(src netip.Addr, data []byte, receivedAt time.Time) {
		if err := d.HandlePacket(src, data, receivedAt); err != nil {
			log.Warn("dropping malformed packet", zap.Stringer("source", src), zap.Error(err))
		}
	}

	lst := listener.New(cfg.Listener.Port, cfg.Listener.Workers, handler, m, log)
	if err := lst.Start(); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer lst.Stop()
	log.Info("listening", zap.Int("port", lst.Port()), zap.Int("workers", cfg.Listener.Workers))

	if cfg.Monitoring.Enabled {
		httpSrv := httpapi.NewServer(promReg)
		go func() {
			if err := httpSrv.ListenAndServe(cfg.Monitoring.PrometheusAddr); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Monitoring.PrometheusAddr))
	}

	var res *resolver.Resolver
	if cfg.Resolver.Enabled {
		res = resolver.New(cfg.Resolver.Server, 2*time.Second, 10*time.Minute)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitor.TUI {
		tui := monitor.NewTUI(exporters, res, m, time.Second)
		if err := tui.Run(); err != nil {
			return fmt.Errorf("run monitor: %w", err)
		}
		return nil
	}

	cli := monitor.NewCLI(exporters, res, time.Second)
	go cli.Start()
	defer cli.Stop()

	<-ctx.Done()
	log.Info("shutting down")
	return sk.Flush()
}

func buildSink(cfg config.Config) (sink.Sink, func(), error) {
	switch cfg.Sink.Kind {
	case "", "memory":
		return sink.NewMemory(), func() {}, nil
	case "postgres":
		pg, err := sink.NewPostgres(context.Background(), sink.PostgresConfig{
			Host:      cfg.Sink.Host,
			Port:      cfg.Sink.Port,
			Database:  cfg.Sink.Database,
			User:      cfg.Sink.User,
			Password:  cfg.Sink.Password,
			PoolSize:  cfg.Sink.PoolSize,
			BatchSize: cfg.Sink.Batch,
		})
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
