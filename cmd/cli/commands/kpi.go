package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/models"
)

func NewKPICmd(g *Globals) *cobra.Command {
	var (
		horizon int
		monthly bool
	)

	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Portfolio predicted units and profit",
		Long: `Forecast every product and total the predicted units and profit.
Products that cannot be forecast are listed as skipped. --monthly prints
the portfolio total per future month with the peak months instead.`,
		Example: `  salesforecast kpi --horizon 12
  salesforecast kpi --monthly --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.checkFormat(); err != nil {
				return err
			}
			a, err := g.open(cmd, app.Options{SkipSink: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			snap := a.Store.Snapshot()
			if monthly {
				outlook, err := a.KPI.MonthlyOutlook(cmd.Context(), snap.Transactions, snap.Products, horizon)
				if err != nil {
					return err
				}
				return renderOutlook(cmd, g, outlook)
			}

			totals, err := a.KPI.CachedTotals(cmd.Context(), snap.Version, snap.Transactions, snap.Products, horizon)
			if err != nil {
				return err
			}
			return renderTotals(cmd, g, totals)
		},
	}

	cmd.Flags().IntVarP(&horizon, "horizon", "n", constants.DefaultHorizon, "Months to forecast")
	cmd.Flags().BoolVar(&monthly, "monthly", false, "Show the per-month portfolio outlook")

	return cmd
}

func renderTotals(cmd *cobra.Command, g *Globals, totals *models.KPITotals) error {
	rows := make([][]string, 0, len(totals.Products))
	for _, p := range totals.Products {
		rows = append(rows, []string{p.Product, itoa(p.Units), fmt.Sprintf("%.2f", p.ProfitPerUnit), fmt.Sprintf("%.2f", p.Profit)})
	}
	if err := g.render(cmd.OutOrStdout(), totals, []string{"product", "units", "profit_per_unit", "profit"}, rows); err != nil {
		return err
	}
	if g.Format != FormatTable {
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nHorizon: %d months  Total units: %d  Total profit: %d\n",
		totals.Horizon, totals.TotalUnits, totals.TotalProfit)
	for _, s := range totals.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", s.Product, s.Reason)
	}
	return nil
}

func renderOutlook(cmd *cobra.Command, g *Globals, outlook *models.MonthlyOutlook) error {
	rows := make([][]string, 0, len(outlook.Months))
	for _, m := range outlook.Months {
		rows = append(rows, []string{m.Period.Format("2006-01"), itoa(m.Units), m.Event})
	}
	if err := g.render(cmd.OutOrStdout(), outlook, []string{"month", "units", "event"}, rows); err != nil {
		return err
	}
	if g.Format != FormatTable {
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	for i, p := range outlook.Peaks {
		fmt.Fprintf(out, "Peak %d: %s (%d units)\n", i+1, p.Period.Format("2006-01"), p.Units)
	}
	if hp := outlook.HistoricalPeak; hp != nil {
		fmt.Fprintf(out, "Historical peak: %s (%d units), aligned: %t\n", hp.Period.Format("2006-01"), hp.Units, outlook.PeakAligned)
	}
	for _, s := range outlook.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", s.Product, s.Reason)
	}
	return nil
}
