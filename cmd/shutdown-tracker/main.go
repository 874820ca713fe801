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
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/aggregator"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/api"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/logging"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/metrics"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/postprocess"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/sink"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/source"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store/memory"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store/postgres"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/tracker"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config, e.g. config.example.yaml (empty for defaults)")
		once    = flag.Bool("once", false, "run a single refresh cycle then exit")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	log.Info("shutdown-tracker starting", "version", Version, "store", cfg.Store.Type, "sources", len(cfg.Sources))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *once, log); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool, log *slog.Logger) error {
	var rec *metrics.Recorder
	if cfg.Metrics.Enable {
		rec = metrics.New(prometheus.DefaultRegisterer)
	}

	st, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	cls, err := postprocess.New(cfg.Post)
	if err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}
	srcs := make([]source.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		s, err := source.NewFromConfig(sc, cls)
		if err != nil {
			return fmt.Errorf("build source %q: %w", sc.Name, err)
		}
		srcs = append(srcs, s)
		log.Info("configured source", "source", s.Name(), "type", s.SourceType(), "interval", s.Interval())
	}

	pub := buildPublisher(cfg, rec, log)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("close sinks", "err", err)
		}
	}()

	agg := aggregator.New(aggregator.Options{
		Store:        st,
		StoreTimeout: cfg.Store.Timeout,
		Sources:      srcs,
		Interval:     cfg.Aggregator.Interval,
		Window:       cfg.Aggregator.Window,
		StatePath:    cfg.Aggregator.StatePath,
		Publisher:    pub,
		Metrics:      rec,
		Logger:       log,
	})
	if err := agg.WarmStart(); err != nil {
		log.Warn("warm start", "path", cfg.Aggregator.StatePath, "err", err)
	}

	if once {
		snap := agg.Refresh(ctx)
		log.Info("single cycle done", "cycle", snap.CycleID, "events", len(snap.Events), "stale", snap.Stale)
		return nil
	}

	if err := agg.Start(ctx); err != nil {
		return err
	}
	defer agg.Stop()

	h := api.NewRouter(tracker.New(agg, st), api.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        rec,
		MetricsPath:    cfg.Metrics.Path,
		RequestTimeout: cfg.Server.WriteTimeout,
		Logger:         log,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           h,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}

func openStore(ctx context.Context, c config.StoreConfig, log *slog.Logger) (store.Store, func(), error) {
	switch c.Type {
	case "postgres":
		pool, err := postgres.Open(ctx, c.DSN, c.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		if c.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		log.Info("postgres store ready", "max_conns", c.MaxConns)
		return postgres.New(pool, c.Timeout), pool.Close, nil
	default:
		st := memory.New()
		if strings.TrimSpace(c.SeedPath) != "" {
			n, err := memory.LoadSeed(ctx, st, c.SeedPath)
			if err != nil {
				return nil, nil, fmt.Errorf("seed %s: %w", c.SeedPath, err)
			}
			log.Info("memory store seeded", "path", c.SeedPath, "events", n)
		}
		return st, func() {}, nil
	}
}

func buildPublisher(cfg config.Config, rec *metrics.Recorder, log *slog.Logger) *sink.Publisher {
	var sinks []sink.Sink
	if cfg.KafkaEnabled() {
		sinks = append(sinks, sink.NewKafka(cfg.Sinks.Kafka))
		log.Info("kafka sink enabled", "topic", cfg.Sinks.Kafka.Topic, "brokers", cfg.Sinks.Kafka.Brokers)
	}
	if strings.TrimSpace(cfg.Sinks.Loki.URL) != "" {
		sinks = append(sinks, sink.NewLoki(cfg.Sinks.Loki))
		log.Info("loki sink enabled", "url", cfg.Sinks.Loki.URL)
	}
	if len(sinks) == 0 {
		return nil
	}
	var d *store.Dedup
	if cfg.Dedup.Enable {
		d = store.NewDedup(cfg.Dedup.MaxKeys, cfg.Dedup.TTL)
		log.Info("sink dedup enabled", "max", cfg.Dedup.MaxKeys, "ttl", cfg.Dedup.TTL)
	}
	return sink.NewPublisher(sinks, d, rec, log)
}

