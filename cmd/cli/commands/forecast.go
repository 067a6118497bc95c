package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/models"
)

type ForecastOptions struct {
	Product   string
	Horizon   int
	Promotion string
	Holiday   string
}

func NewForecastCmd(g *Globals) *cobra.Command {
	opts := &ForecastOptions{}

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast monthly units for one product",
		Long: `Forecast monthly unit sales for a product with the monthly sequence
model. Scenario flags apply to every forecast month.`,
		Example: `  # Twelve months for one product
  salesforecast forecast --product "Rifle X"

  # Six months under promotion class B, as JSON
  salesforecast forecast --product "Rifle X" --horizon 6 --promotion B --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd, g, opts)
		},
	}

	addForecastFlags(cmd, opts)
	cmd.MarkFlagRequired("product")

	return cmd
}

func NewScenarioCmd(g *Globals) *cobra.Command {
	opts := &ForecastOptions{}

	cmd := &cobra.Command{
		Use:     "scenario",
		Short:   "Compare a promotion or holiday scenario with the baseline",
		Example: `  salesforecast scenario --product "Rifle X" --promotion C --horizon 6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, g, opts)
		},
	}

	addForecastFlags(cmd, opts)
	cmd.MarkFlagRequired("product")

	return cmd
}

func addForecastFlags(cmd *cobra.Command, opts *ForecastOptions) {
	cmd.Flags().StringVarP(&opts.Product, "product", "p", "", "Product name (required)")
	cmd.Flags().IntVarP(&opts.Horizon, "horizon", "n", constants.DefaultHorizon, "Months to forecast")
	cmd.Flags().StringVar(&opts.Promotion, "promotion", "", "Promotion class (A, B, C)")
	cmd.Flags().StringVar(&opts.Holiday, "holiday", "", "Holiday class (A, B, C)")
}

func (o *ForecastOptions) scenario() models.Scenario {
	return models.Scenario{Promotion: o.Promotion, Holiday: o.Holiday}
}

func runForecast(cmd *cobra.Command, g *Globals, opts *ForecastOptions) error {
	if err := g.checkFormat(); err != nil {
		return err
	}
	a, err := g.open(cmd, app.Options{SkipSink: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	fc, err := a.Forecaster.ForecastSeries(cmd.Context(), a.Store.Transactions(), opts.Product, opts.Horizon, opts.scenario())
	if err != nil {
		return err
	}
	return renderForecast(cmd, g, fc)
}

func renderForecast(cmd *cobra.Command, g *Globals, fc *models.Forecast) error {
	rows := make([][]string, len(fc.Units))
	for i, u := range fc.Units {
		rows[i] = []string{period(fc.Periods[i]), itoa(u)}
	}
	if err := g.render(cmd.OutOrStdout(), fc, []string{"period", "units"}, rows); err != nil {
		return err
	}
	if g.Format == FormatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "\nProduct: %s  Scenario: %s  Total: %d\n",
			fc.Product, fc.Scenario.Label(), fc.Total())
	}
	return nil
}

func runScenario(cmd *cobra.Command, g *Globals, opts *ForecastOptions) error {
	if err := g.checkFormat(); err != nil {
		return err
	}
	a, err := g.open(cmd, app.Options{SkipSink: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	cmp, err := a.Forecaster.Simulate(cmd.Context(), a.Store.Transactions(), opts.Product, opts.Horizon, opts.scenario())
	if err != nil {
		return err
	}

	rows := make([][]string, len(cmp.Periods))
	baseTotal, scenTotal := 0, 0
	for i, p := range cmp.Periods {
		rows[i] = []string{period(p), itoa(cmp.Baseline[i]), itoa(cmp.Scenario[i]), itoa(cmp.Scenario[i] - cmp.Baseline[i])}
		baseTotal += cmp.Baseline[i]
		scenTotal += cmp.Scenario[i]
	}
	if err := g.render(cmd.OutOrStdout(), cmp, []string{"period", "baseline", cmp.Applied.Label(), "delta"}, rows); err != nil {
		return err
	}
	if g.Format == FormatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "\nBaseline: %d  Scenario: %d  Delta: %+d\n", baseTotal, scenTotal, scenTotal-baseTotal)
	}
	return nil
}
