package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin/snmptt"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin/tagger"
)

const defaultConfigPath = "configs/mqworker.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "mqworker",
		Short:         "Event enrichment worker: matches events to plugins and dispatches them in priority order",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "Path to YAML config")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newDispatchCmd(flags), newCompileCmd())
	return root
}

// newCatalog lists every plugin type this binary can build from config.
func newCatalog() *plugin.Catalog {
	c := plugin.NewCatalog()
	c.Register(snmptt.Type, snmptt.Factory)
	c.Register(tagger.Type, tagger.Factory)
	return c
}

// loadConfig reads and validates the config file. A missing file is only
// acceptable when optional is set; defaults are used then.
func loadConfig(flags *rootFlags, catalog *plugin.Catalog, optional bool) (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(flags.configPath)
	var cfg *config.Config
	switch {
	case err == nil:
		cfg = loader.Config()
	case optional && errors.Is(err, fs.ErrNotExist):
		loader, cfg = nil, config.Default()
	default:
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := config.Validate(cfg, catalog.Types()); err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}
