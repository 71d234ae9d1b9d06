package db

import (
	"context"
	"fmt"

	"cityos/internal/config"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens Postgres when POSTGRES_DSN is set. Without a DSN the store
// runs in no-db mode and hostname resolution is disabled.
func NewStore(cfg config.Config, logger logrus.FieldLogger) (*Store, error) {
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set; starting in no-db mode, hostname resolution disabled")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
