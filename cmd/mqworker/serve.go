package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/mqworker/internal/api"
	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/dispatch"
	"github.com/gyaneshwarpardhi/mqworker/internal/logging"
	"github.com/gyaneshwarpardhi/mqworker/internal/mq"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
	"github.com/gyaneshwarpardhi/mqworker/internal/sink"
)

type serveFlags struct {
	addr string
	noMQ bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume events from the queue and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root, flags)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&flags.noMQ, "no-mq", false, "Serve the HTTP API only, without joining the queue group")
	return cmd
}

// reloader validates a fresh config and swaps in the plugin snapshot built
// from it.
type reloader struct {
	catalog  *plugin.Catalog
	registry *plugin.Registry
}

func (r *reloader) apply(cfg *config.Config) (*plugin.Snapshot, error) {
	if err := config.Validate(cfg, r.catalog.Types()); err != nil {
		return nil, err
	}
	return r.registry.Rebuild(func() (*plugin.Snapshot, error) { return r.catalog.Build(cfg) })
}

func serve(ctx context.Context, root *rootFlags, flags *serveFlags) error {
	catalog := newCatalog()
	loader, cfg, err := loadConfig(root, catalog, false)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log, "mqworker")

	snap, err := catalog.Build(cfg)
	if err != nil {
		return fmt.Errorf("build plugins: %w", err)
	}
	registry := plugin.NewRegistry(snap)
	log.Info().
		Int("plugins", registry.Current().Len()).
		Str("designated_field", registry.Current().DesignatedField()).
		Msg("plugin registry built")

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	pool := dispatch.NewPool(workerCtx, dispatch.New(registry, cfg.Dispatch.PluginTimeout()), cfg.Dispatch)

	out, err := sink.New(cfg.Sink)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer out.Close()

	// ── Hot reload ───────────────────────────────────────────────────────────
	rl := &reloader{catalog: catalog, registry: registry}
	loader.OnChange(func(next *config.Config) error {
		s, err := rl.apply(next)
		if err != nil {
			log.Warn().Err(err).Msg("hot-reload skipped")
			return err
		}
		log.Info().Int("plugins", s.Len()).Uint64("generation", s.Generation()).Msg("plugins hot-reloaded")
		return nil
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable (hot-reload disabled)")
	} else {
		defer stopWatch()
	}

	// ── Queue consumer ───────────────────────────────────────────────────────
	var consumer *mq.Consumer
	if !flags.noMQ {
		consumer = mq.NewConsumer(pool, out, cfg.MQ, cfg.Sink.SubjectPrefix)
		if err := consumer.Start(workerCtx); err != nil {
			return err
		}
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	addr := cfg.HTTP.Addr
	if flags.addr != "" {
		addr = flags.addr
	}
	handler := api.New(api.Options{
		Pool: pool,
		Reload: func() (*plugin.Snapshot, error) {
			if _, err := loader.Reload(); err != nil {
				return nil, err
			}
			return registry.Current(), nil
		},
		Sink:        out,
		TopicPrefix: cfg.Sink.SubjectPrefix,
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srvErr:
		log.Error().Err(runErr).Msg("server error")
	}
	log.Info().Msg("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Warn().Err(err).Msg("consumer drain failed")
		}
	}
	pool.Shutdown()
	log.Info().Msg("goodbye")
	return runErr
}
