package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/optiwealth/internal/config"
	"github.com/aristath/optiwealth/internal/di"
	reporthandlers "github.com/aristath/optiwealth/internal/modules/report/handlers"
	"github.com/aristath/optiwealth/internal/modules/toppicks"
	"github.com/aristath/optiwealth/pkg/logger"
)

// app carries what the subcommands share
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	loadConfig func() (*config.Config, error)
	wire       func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*di.Container, error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{loadConfig: config.Load, wire: di.Wire})
}

func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "optiwealth",
		Short:         "OptiWealth portfolio analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				cfg.LogLevel = level
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true, Output: cmd.ErrOrStderr()})
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(newVersionCmd(), newAnalyzeCmd(a), newTopPicksCmd(a))
	return root
}

// --- Version Command ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "optiwealth %s (commit %s)\n", version, commit)
		},
	}
}

// --- Analyze Command ---

func newAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Generate a portfolio report from a holdings file",
		Long: `Generate a portfolio report and print it as JSON.

The holdings file is either the HTTP request body
  {"portfolioId": 2, "holdings": [{"symbol": "ITC", "quantity": 10, "avgCost": 380.36}]}
or just the holdings array.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("holdings")
			noSummary, _ := cmd.Flags().GetBool("no-summary")

			body, err := readHoldings(path)
			if err != nil {
				return err
			}
			req, err := reporthandlers.BuildRequest(body, a.cfg.Analytics.SymbolSuffix)
			if err != nil {
				return err
			}
			req.SkipSummary = noSummary

			if cmd.Flags().Changed("seed") {
				a.cfg.Analytics.Seed, _ = cmd.Flags().GetUint64("seed")
			}

			container, err := a.wire(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Analytics.RequestTimeout)
			defer cancel()

			result, err := container.Aggregator.Generate(ctx, req)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().String("holdings", "", "path to the holdings JSON file")
	cmd.Flags().Uint64("seed", 0, "fix the Monte Carlo seed for reproducible output")
	cmd.Flags().Bool("no-summary", false, "skip the AI summary")
	_ = cmd.MarkFlagRequired("holdings")
	return cmd
}

// --- Top Picks Commands ---

func newTopPicksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top-picks",
		Short: "Run or inspect the momentum ranking",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Rank the symbol universe once and store the picks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := a.wire(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.TopPicksJob.RunContext(cmd.Context()); err != nil {
				return fmt.Errorf("top picks run failed: %w", err)
			}

			picks, err := container.TopPicksRepo.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), picks)
		},
	}

	list := &cobra.Command{
		Use:   "list [period]",
		Short: "Print stored picks, optionally for one period (1M, 3M, 6M+)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := a.wire(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer container.Close()

			if len(args) == 0 {
				picks, err := container.TopPicksRepo.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), picks)
			}

			period, ok := toppicks.LookupPeriod(args[0])
			if !ok {
				return fmt.Errorf("unknown period %q", args[0])
			}
			picks, err := container.TopPicksRepo.ListByPeriod(cmd.Context(), period.Name)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), picks)
		},
	}

	cmd.AddCommand(run, list)
	return cmd
}

// readHoldings accepts a request body object or a bare holdings array
func readHoldings(path string) (reporthandlers.AnalyzeRequest, error) {
	var body reporthandlers.AnalyzeRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return body, fmt.Errorf("failed to read holdings file: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &body.Holdings)
	} else {
		err = json.Unmarshal(data, &body)
	}
	if err != nil {
		return body, fmt.Errorf("failed to parse holdings file: %w", err)
	}
	return body, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
