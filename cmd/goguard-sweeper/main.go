// Command goguard-sweeper terminates expired sessions on a schedule. It reads
// the engine configuration plus a deployment section from one YAML file.
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

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/events"
	promexport "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/store/mongo"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type deployment struct {
	Mongo mongo.Config `yaml:"mongo"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
}

func loadDeployment(path string) (deployment, error) {
	var d deployment
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return d, fmt.Errorf("parse deployment config: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return d, err
	}
	if d.Mongo.URI == "" {
		d.Mongo.URI = os.Getenv("GOGUARD_MONGO_URI")
	}
	if d.Redis.Addr == "" {
		d.Redis.Addr = os.Getenv("GOGUARD_REDIS_ADDR")
	}
	if d.NATS.URL == "" {
		d.NATS.URL = os.Getenv("GOGUARD_NATS_URL")
	}
	return d, nil
}

func main() {
	var (
		configPath  = flag.String("config", "configs/goguard.yaml", "path to the YAML configuration")
		interval    = flag.Duration("interval", 0, "sweep interval; defaults to session.sweepInterval")
		once        = flag.Bool("once", false, "run a single sweep and exit")
		metricsAddr = flag.String("metrics-addr", "", "address serving /metrics; empty disables it")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*configPath, *interval, *once, *metricsAddr, logger); err != nil {
		logger.Fatal("goGuard: sweeper stopped", zap.Error(err))
	}
}

func run(configPath string, interval time.Duration, once bool, metricsAddr string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := goGuard.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dep, err := loadDeployment(configPath)
	if err != nil {
		return err
	}

	// -------- MONGO --------
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	client, db, err := mongo.Connect(connectCtx, dep.Mongo)
	cancel()
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	b := goGuard.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithRecordStore(mongo.NewMFAStore(db)).
		WithSessionRepository(mongo.NewSessionRepository(db)).
		WithEventStore(mongo.NewEventStore(db))

	// -------- REDIS --------
	if dep.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     dep.Redis.Addr,
			Password: dep.Redis.Password,
			DB:       dep.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("goGuard: redis unreachable, continuing without cache", zap.Error(err))
			_ = rdb.Close()
		} else {
			b.WithRedis(rdb)
		}
	}

	// -------- NATS --------
	if dep.NATS.URL != "" {
		nc, err := nats.Connect(dep.NATS.URL, nats.Name("goguard-sweeper"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		b.WithSink(events.NewNATSSink(nc, dep.NATS.SubjectPrefix, func(err error) {
			logger.Warn("goGuard: nats publish failed", zap.Error(err))
		}))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if once {
		n, err := engine.SweepExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("goGuard: sweep complete", zap.Int64("count", n))
		return nil
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promexport.Handler(promexport.NewCollector(engine)))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("goGuard: metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if !engine.StartSweeper(ctx, interval) {
		return errors.New("sweeper did not start: interval must be positive")
	}
	logger.Info("goGuard: sweeper running", zap.Duration("interval", effectiveInterval(interval, cfg)))
	<-ctx.Done()
	return nil
}

func effectiveInterval(flagValue time.Duration, cfg goGuard.Config) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return cfg.Session.SweepInterval
}
