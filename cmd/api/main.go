// Command api serves the read-only REST surface over the shared store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/dhcsousa/hospitopt/internal/api"
	"github.com/dhcsousa/hospitopt/internal/config"
	"github.com/dhcsousa/hospitopt/internal/logging"
	"github.com/dhcsousa/hospitopt/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := os.Getenv("API_CONFIG_FILE_PATH")
	if configPath == "" {
		logrus.Error("API_CONFIG_FILE_PATH environment variable is not set")
		return 1
	}

	cfg, err := config.LoadAPI(configPath)
	if err != nil {
		logrus.WithError(err).Error("failed to load configuration")
		return 1
	}

	log, err := logging.Setup(os.Getenv("LOG_LEVEL"), cfg.Logging)
	if err != nil {
		logrus.WithError(err).Error("failed to set up logging")
		return 1
	}

	st, err := store.Open(cfg.DBConnection)
	if err != nil {
		log.WithError(err).Error("failed to connect to shared store")
		return 1
	}
	defer st.Close()

	server := api.NewServer(st.DB(), cfg.APIKey, log)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("api server failed")
			return 1
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("api server forced to shut down")
		return 1
	}

	log.Info("api shut down cleanly")
	return 0
}
