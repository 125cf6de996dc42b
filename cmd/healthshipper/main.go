package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/health"
	"github.com/gyaneshwarpardhi/mqworker/internal/logging"
	"github.com/gyaneshwarpardhi/mqworker/internal/search"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	esServers  string
	mongoURI   string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "healthshipper",
		Short:         "Copy front-end health records from the search index to MongoDB",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "configs/mqworker.yaml", "Path to YAML config (health section)")
	root.PersistentFlags().StringVar(&f.esServers, "es-servers", "", "Comma-separated search servers (overrides health.es_servers)")
	root.PersistentFlags().StringVar(&f.mongoURI, "mongo-uri", "", "MongoDB URI (overrides health.mongo_uri)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Ship on every health.interval until interrupted",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return withShipper(ctx, f, func(s *health.Shipper) error {
					s.Run(ctx)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Ship a single window and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withShipper(cmd.Context(), f, func(s *health.Shipper) error {
					n, err := s.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					log.Info().Int("records", n).Msg("health shipped")
					return nil
				})
			},
		},
	)
	return root
}

func healthConfig(f *flags) (*config.Config, error) {
	loader, err := config.NewLoader(f.configPath)
	var cfg *config.Config
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	} else {
		cfg = loader.Config()
	}
	if f.esServers != "" {
		cfg.Health.ESServers = strings.Split(f.esServers, ",")
	}
	if f.mongoURI != "" {
		cfg.Health.MongoURI = f.mongoURI
	}
	return cfg, config.Validate(cfg, nil)
}

func withShipper(ctx context.Context, f *flags, fn func(*health.Shipper) error) error {
	cfg, err := healthConfig(f)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log, "healthshipper")

	backend, err := search.NewElastic(cfg.Health.ESServers, 30*time.Second)
	if err != nil {
		return err
	}
	store, err := health.NewMongoStore(ctx, cfg.Health.MongoURI, cfg.Health.Database, cfg.Health.Collection)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()
	return fn(health.NewShipper(backend, store, cfg.Health))
}
