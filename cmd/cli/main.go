package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/cmd/cli/commands"
	"github.com/inferloop/salesforecast/pkg/constants"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &commands.Globals{}

	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "Retail sales forecasting CLI",
		Long: `A command-line interface for forecasting product unit sales from
transaction history, comparing promotion and holiday scenarios, and
computing portfolio KPIs.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&g.ConfigFile, "config", "", "config file (default is ./salesforecast.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&g.Format, "format", "f", commands.FormatTable, "Output format (table, json, csv)")

	rootCmd.AddCommand(commands.NewProductsCmd(g))
	rootCmd.AddCommand(commands.NewForecastCmd(g))
	rootCmd.AddCommand(commands.NewScenarioCmd(g))
	rootCmd.AddCommand(commands.NewWeeklyCmd(g))
	rootCmd.AddCommand(commands.NewKPICmd(g))
	rootCmd.AddCommand(commands.NewExportCmd(g))
	rootCmd.AddCommand(commands.NewStoredCmd(g))
	rootCmd.AddCommand(commands.NewArtifactsCmd(g))

	return rootCmd
}
