package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/pkg/constants"
)

func NewWeeklyCmd(g *Globals) *cobra.Command {
	var (
		req         forecast.WeeklyRequest
		targetMonth int
	)

	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Forecast weekly units for one product",
		Long: `Forecast weekly unit sales with the product's own weekly model.
--target-month relabels the weeks from the first Monday of that month.`,
		Example: `  salesforecast weekly --product "Rifle X" --horizon 4 --target-month 12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.checkFormat(); err != nil {
				return err
			}
			req.TargetMonth = time.Month(targetMonth)

			a, err := g.open(cmd, app.Options{SkipSink: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			fc, err := a.Forecaster.ForecastWeekly(cmd.Context(), a.Store.Transactions(), req)
			if err != nil {
				return err
			}
			return renderForecast(cmd, g, fc)
		},
	}

	cmd.Flags().StringVarP(&req.Product, "product", "p", "", "Product name (required)")
	cmd.Flags().IntVarP(&req.Horizon, "horizon", "n", constants.DefaultWeeklyHorizon, "Weeks to forecast")
	cmd.Flags().IntVar(&targetMonth, "target-month", 0, "Month (1-12) whose first Monday starts the labels")
	cmd.Flags().StringVar(&req.Strategy, "strategy", constants.StrategyModel, "Forecast strategy (model, zigzag)")
	cmd.MarkFlagRequired("product")

	return cmd
}
