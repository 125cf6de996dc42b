package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/mqworker/internal/dispatch"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/logging"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

func newDispatchCmd(root *rootFlags) *cobra.Command {
	var planOnly bool
	cmd := &cobra.Command{
		Use:   "dispatch FILE.json",
		Short: "Run one event through the configured plugins and print the result (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := newCatalog()
			_, cfg, err := loadConfig(root, catalog, true)
			if err != nil {
				return err
			}
			logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log, "mqworker")

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			ev, err := event.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			snap, err := catalog.Build(cfg)
			if err != nil {
				return fmt.Errorf("build plugins: %w", err)
			}

			if planOnly {
				names := []string{}
				for _, d := range snap.PlanFor(ev) {
					names = append(names, d.Name)
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"plan": names})
			}
			d := dispatch.New(plugin.NewRegistry(snap), cfg.Dispatch.PluginTimeout())
			return printJSON(cmd.OutOrStdout(), d.Dispatch(cmd.Context(), ev))
		},
	}
	cmd.Flags().BoolVar(&planOnly, "plan", false, "Print the plugin plan without running it")
	return cmd
}

func newCompileCmd() *cobra.Command {
	var (
		expr string
		size int
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a query expression into a search request",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := query.Parse(expr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), query.Request(query.Compile(p), size))
		},
	}
	cmd.Flags().StringVarP(&expr, "query", "q", "", "Query expression, e.g. 'details.program:snmptt AND NOT summary:test'")
	cmd.Flags().IntVar(&size, "size", 10, "Maximum hits requested")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
