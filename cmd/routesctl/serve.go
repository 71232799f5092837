package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flagroutes/internal/api"
	"flagroutes/internal/config"
	"flagroutes/internal/events"
	"flagroutes/internal/webhooks"
)

func (a *app) newServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg, log, closer, err := a.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()
			broker, closeBroker, err := openBroker(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeBroker() }()

			if len(cfg.Webhooks.URLs) > 0 {
				sub := broker.Subscribe(events.AllRoutes)
				defer broker.Unsubscribe(events.AllRoutes, sub)
				go webhooks.NewForwarder(cfg.Webhooks, log).Run(ctx, sub)
				log.WithField("targets", len(cfg.Webhooks.URLs)).Info("forwarding route events to webhooks")
			}

			s := api.NewServer(st, broker, api.Options{
				Log:       log,
				Flags:     cfg.Flags,
				RateRPS:   cfg.RateLimit.RPS,
				RateBurst: cfg.RateLimit.Burst,
				Settings:  settings(cfg),
			})
			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           s.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				// Open event streams end when the signal context is cancelled.
				BaseContext: func(net.Listener) context.Context { return ctx },
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.WithField("addr", srv.Addr).Info("API listening")

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "server error")
				}
				return nil
			case <-ctx.Done():
			}
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// settings is the /debug/info view of cfg. URLs are reduced to presence.
func settings(cfg config.Config) map[string]any {
	db := "memory"
	if cfg.Database.URL != "" {
		db = string(cfg.Database.Dialect())
	}
	return map[string]any{
		"port":                    cfg.Port,
		"database":                db,
		"hasRedis":                cfg.Redis.URL != "",
		"rateRps":                 cfg.RateLimit.RPS,
		"rateBurst":               cfg.RateLimit.Burst,
		"addonQuantitiesAdditive": cfg.Flags.AddonQuantitiesAdditive,
		"logLevel":                cfg.Log.Level,
		"webhookTargets":          len(cfg.Webhooks.URLs),
	}
}
