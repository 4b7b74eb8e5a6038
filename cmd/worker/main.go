// Command worker runs the optimization poll loop: it loads configuration,
// connects to the input source and the shared store, and re-solves
// patient-to-ambulance-to-hospital assignments whenever the inputs change.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dhcsousa/hospitopt/internal/config"
	"github.com/dhcsousa/hospitopt/internal/ingest"
	"github.com/dhcsousa/hospitopt/internal/logging"
	"github.com/dhcsousa/hospitopt/internal/optimize"
	"github.com/dhcsousa/hospitopt/internal/routes"
	"github.com/dhcsousa/hospitopt/internal/solver"
	"github.com/dhcsousa/hospitopt/internal/store"
	"github.com/dhcsousa/hospitopt/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := os.Getenv("WORKER_CONFIG_FILE_PATH")
	if configPath == "" {
		logrus.Error("WORKER_CONFIG_FILE_PATH environment variable is not set")
		return 1
	}

	cfg, err := config.LoadWorker(configPath)
	if err != nil {
		logrus.WithError(err).Error("failed to load configuration")
		return 1
	}

	log, err := logging.Setup(os.Getenv("LOG_LEVEL"), cfg.Logging)
	if err != nil {
		logrus.WithError(err).Error("failed to set up logging")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	milp, err := solver.New(cfg.Solver.Backend)
	if err != nil {
		log.WithError(err).Error("solver backend unavailable")
		return 1
	}

	outStore, err := store.Open(cfg.DBConnection)
	if err != nil {
		log.WithError(err).Error("failed to connect to shared store")
		return 1
	}
	defer outStore.Close()
	if err := outStore.CheckConnection(ctx); err != nil {
		log.WithError(err).Error("shared store connection check failed")
		return 1
	}

	ingestor, cleanup, err := buildIngestor(ctx, cfg.Ingestion)
	if err != nil {
		log.WithError(err).Error("failed to set up ingestion")
		return 1
	}
	defer cleanup()

	oracle := routes.NewGoogleClient(cfg.GoogleMapsAPIKey, cfg.TravelMode, cfg.RoutingPreference)
	builderOpts := []routes.BuilderOption{}
	if cfg.RouteCache.Enabled {
		cache, err := routes.NewCache(cfg.RouteCache.URL, time.Duration(cfg.RouteCache.TTLSeconds)*time.Second, log)
		if err != nil {
			log.WithError(err).Error("failed to set up route cache")
			return 1
		}
		defer cache.Close()
		builderOpts = append(builderOpts, routes.WithCache(cache))
	}
	builder := routes.NewBuilder(oracle, log, builderOpts...)

	optimizer := optimize.New(builder, milp, log, optimize.WithSpeedFactor(cfg.SpeedFactor))
	interval := time.Duration(cfg.PollIntervalSeconds * float64(time.Second))
	w := worker.New(ingestor, optimizer, outStore, interval, log)

	log.WithFields(logrus.Fields{
		"poll_interval": interval,
		"ingestion":     cfg.Ingestion.Type,
	}).Info("worker starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })

	if err := g.Wait(); err != nil {
		var fatal *worker.FatalError
		if errors.As(err, &fatal) {
			log.WithError(err).Error("worker stopped on fatal error")
			return 1
		}
		log.WithError(err).Error("worker stopped")
		return 1
	}

	log.Info("worker shut down cleanly")
	return 0
}

// buildIngestor wires the input source selected by configuration. The db
// mode keeps its own connection pool, checked before the loop starts.
func buildIngestor(ctx context.Context, cfg config.Ingestion) (ingest.Ingestor, func(), error) {
	switch cfg.Type {
	case config.IngestionTypeAPI:
		return ingest.NewAPIIngestor(cfg.Host, cfg.APIKey), func() {}, nil
	case config.IngestionTypeDB:
		inStore, err := store.Open(cfg.DBConnection)
		if err != nil {
			return nil, nil, err
		}
		if err := inStore.CheckConnection(ctx); err != nil {
			inStore.Close()
			return nil, nil, err
		}
		return ingest.NewDBIngestor(inStore.DB()), func() { inStore.Close() }, nil
	default:
		return nil, nil, config.ErrUnknownIngestionType
	}
}
