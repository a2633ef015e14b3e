package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inmoelegance/internal/adapters/api"
	"inmoelegance/internal/adapters/exports"
	"inmoelegance/internal/adapters/web"
	"inmoelegance/internal/auth"
	"inmoelegance/internal/core"
	"inmoelegance/internal/server"
	"inmoelegance/internal/wishlist"
)

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr      string
		traceFile string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site, the dashboard and the JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, traceFile)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "append JSON trace spans of service operations to this file")
	return cmd
}

func (c *cli) serve(ctx context.Context, traceFile string) error {
	cfg, logger := c.cfg, c.logger
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register service metrics: %w", err)
	}

	blobStore, err := openBlob(ctx, cfg)
	if err != nil {
		return err
	}
	images, err := newUploader(cfg, blobStore)
	if err != nil {
		return err
	}

	opts := []core.ServiceOption{core.WithMetricsRecorder(metrics), core.WithImageRemover(images)}
	if traceFile != "" {
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f, 0)))
	}
	a, err := openApp(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	sessions, err := auth.NewSessions(cfg.Auth.SessionSecret, cfg.SessionTTL())
	if err != nil {
		return err
	}
	gate := &auth.Gate{Sessions: sessions, Active: a.svc.AdminActive, Secure: cfg.Server.SecureCookies}
	proxies, err := auth.ParseProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	login := auth.NewThrottle(cfg.Auth.LoginPerMinute, cfg.Auth.LoginBurst, auth.TrustProxies(proxies))
	contact := auth.NewThrottle(cfg.Auth.ContactPerMinute, cfg.Auth.ContactBurst, auth.TrustProxies(proxies))
	visitors := wishlist.New(cfg.Site.WishlistCapacity)
	worker := exports.NewWorker(a.svc, blobStore, logger)

	apiHandler := api.NewHandler(api.Options{
		Service:      a.svc,
		Gate:         gate,
		Login:        login,
		Contact:      contact,
		Wishlist:     visitors,
		Images:       images,
		Exports:      worker,
		Logger:       logger,
		SimilarLimit: cfg.Site.SimilarLimit,
	})
	site, err := web.NewHandler(web.Options{
		Service:  a.svc,
		Gate:     gate,
		Login:    login,
		Contact:  contact,
		Wishlist: visitors,
		Images:   images,
		Logger:   logger,
		Site: web.Site{
			Name:          cfg.Site.Name,
			ContactEmail:  cfg.Site.ContactEmail,
			ContactPhone:  cfg.Site.ContactPhone,
			FeaturedLimit: cfg.Site.FeaturedLimit,
			SimilarLimit:  cfg.Site.SimilarLimit,
		},
	})
	if err != nil {
		return fmt.Errorf("build site: %w", err)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	srv, err := server.New(server.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.ReadTimeout(),
		WriteTimeout:    cfg.WriteTimeout(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		API:             apiHandler,
		Site:            site,
		Media:           blobStore,
		Registry:        registry,
		MetricsPath:     metricsPath,
		Gzip:            cfg.Server.Gzip,
		Logger:          logger,
		Jobs:            []server.Job{worker.Run},
	})
	if err != nil {
		return err
	}
	logger.Info("starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("media", cfg.Media.Driver),
	)
	return srv.Run(ctx)
}
