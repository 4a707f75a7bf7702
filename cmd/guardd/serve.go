package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autopilot-guard/internal/api"
	"autopilot-guard/internal/app"
	"autopilot-guard/internal/archive"
	"autopilot-guard/internal/config"
	"autopilot-guard/internal/store"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the guard and its HTTP surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogFormat, cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	deps := app.Deps{Redis: rdb, Logger: logger}

	var st *store.Store
	if cfg.PostgresDSN != "" {
		var err error
		st, err = store.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		deps.Auditor = st
	}

	if cfg.ArchiveBucket != "" {
		arc, err := archive.New(ctx, archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Prefix:    cfg.ArchivePrefix,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			PathStyle: cfg.ArchivePathStyle,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		})
		if err != nil {
			return err
		}
		deps.Archiver = arc
	}

	var policyFile *config.PolicyFile
	if cfg.PolicyFile != "" {
		pf, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return err
		}
		policyFile = &pf
	}

	guard, err := app.New(cfg, deps)
	if err != nil {
		return err
	}
	if policyFile != nil {
		if err := guard.ApplyPolicyFile(*policyFile); err != nil {
			return fmt.Errorf("apply policy file: %w", err)
		}
	}
	guard.Start()
	defer guard.Close()

	var alarms api.AlarmReader
	if st != nil {
		alarms = st
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.New(guard, alarms, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.PolicyFile != "" {
		g.Go(func() error {
			return config.WatchPolicyFile(gctx, cfg.PolicyFile, cfg.PolicyDebounce, guard.ApplyPolicyFile, logger)
		})
	}
	return g.Wait()
}
