package main

import (
	"log"

	"cityos/internal/config"
	"cityos/internal/infra/db"
	httpinfra "cityos/internal/infra/http"
	"cityos/internal/infra/logging"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to init store")
	}
	if !store.Enabled() {
		logger.Warn("POSTGRES_DSN not set; hostname resolution and the store registry are disabled")
	}

	srv := httpinfra.NewServer(cfg, store, logger)
	logger.WithFields(logrus.Fields{
		"addr":      cfg.HTTPAddr,
		"env":       cfg.Env,
		"auth_mode": cfg.AuthMode,
	}).Info("gateway listening")
	if err := srv.Run(); err != nil {
		logger.WithField("error", err.Error()).Fatal("server exited")
	}
}
