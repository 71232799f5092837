package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"flagroutes/internal/config"
	"flagroutes/internal/events"
	"flagroutes/internal/logging"
	"flagroutes/internal/store"
)

func (a *app) load() (config.Config, *logrus.Logger, io.Closer, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, log, closer, nil
}

// openSQL connects to the configured database; admin commands need a real one.
func openSQL(ctx context.Context, cfg config.Config) (*store.SQL, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database url is not configured (set DATABASE_URL)")
	}
	return store.OpenSQL(ctx, cfg.Database.Dialect(), cfg.Database.URL)
}

// openStore falls back to the in-memory store when no database is configured.
func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Store, func() error, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, using in-memory store")
		return store.NewMemory(), func() error { return nil }, nil
	}
	db, err := openSQL(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := db.Install(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.WithField("dialect", db.Dialect()).Info("route tables installed")
	}
	return db, db.Close, nil
}

func openBroker(cfg config.Config, log logrus.FieldLogger) (events.Broker, func() error, error) {
	if cfg.Redis.URL == "" {
		return events.NewMemory().WithLogger(log), func() error { return nil }, nil
	}
	b, err := events.NewRedis(cfg.Redis.URL, cfg.Redis.Prefix, log)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}
