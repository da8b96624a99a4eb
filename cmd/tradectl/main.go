// tradectl runs the trading pipeline from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/app"
	"voice-trading-assistant-go/internal/leverage"
	"voice-trading-assistant-go/internal/trader"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "tradectl",
		Short:         "Voice trading assistant command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs", "Directory holding config.yml")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(etfsCmd())
	rootCmd.AddCommand(positionsCmd())
	rootCmd.AddCommand(accountCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp builds the application for the duration of fn.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := app.Bootstrap(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
	}()
	return fn(context.Background(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse and validate a trading command without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				analysis := a.Engine.Analyze(ctx, strings.Join(args, " "), trader.SourceCLI)
				return printJSON(cmd.OutOrStdout(), analysis)
			})
		},
	}
}

func etfsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "etfs",
		Short: "List the known leveraged ETFs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeCatalog(cmd.OutOrStdout())
		},
	}
}

func writeCatalog(w io.Writer) error {
	catalog := leverage.Catalog()
	symbols := make([]string, 0, len(catalog))
	for s := range catalog {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		info := catalog[s]
		if _, err := fmt.Fprintf(w, "%-6s %-6s %-12s %-18s %s\n", s, info.Leverage, info.Type, info.Underlying, info.Name); err != nil {
			return err
		}
	}
	return nil
}

func positionsCmd() *cobra.Command {
	var leveraged bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Show open positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if leveraged {
					view, err := a.Engine.LeveragedPositions(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), view)
				}
				positions, err := a.Engine.Positions(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), positions)
			})
		},
	}
	cmd.Flags().BoolVarP(&leveraged, "leveraged", "l", false, "Only show leveraged ETF positions, grouped by multiplier")
	return cmd
}

func accountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show account balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				account, err := a.Engine.Account(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), account)
			})
		},
	}
}
