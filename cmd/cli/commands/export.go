package commands

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/internal/storage/implementations/influxdb"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

type ExportOptions struct {
	Products    []string
	Horizon     int
	Granularity string
	Promotion   string
	Holiday     string
	DryRun      bool
}

// ExportResult lists what an export wrote and what it skipped.
type ExportResult struct {
	Written []string                `json:"written"`
	Points  int                     `json:"points"`
	Skipped []models.SkippedProduct `json:"skipped,omitempty"`
}

func NewExportCmd(g *Globals) *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write forecasts to the InfluxDB sink",
		Long: `Forecast each product and write the points to InfluxDB (measurement
sales_forecast). Products that cannot be forecast are skipped, as are
products without weekly artifacts; a missing or invalid monthly model aborts
the export. --dry-run prints line protocol instead.`,
		Example: `  # Every product, twelve months
  salesforecast export

  # Two products, weekly, printed only
  salesforecast export --product "Rifle X" --product "Pistol Y" --granularity weekly --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, g, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Products, "product", "p", nil, "Product to export (repeatable, default all)")
	cmd.Flags().IntVarP(&opts.Horizon, "horizon", "n", 0, "Periods to forecast (default 12 monthly, 4 weekly)")
	cmd.Flags().StringVarP(&opts.Granularity, "granularity", "g", string(models.GranularityMonthly), "Granularity (monthly, weekly)")
	cmd.Flags().StringVar(&opts.Promotion, "promotion", "", "Promotion class for monthly forecasts")
	cmd.Flags().StringVar(&opts.Holiday, "holiday", "", "Holiday class for monthly forecasts")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print line protocol instead of writing")

	return cmd
}

func runExport(cmd *cobra.Command, g *Globals, opts *ExportOptions) error {
	if err := g.checkFormat(); err != nil {
		return err
	}
	granularity := models.Granularity(opts.Granularity)
	if granularity != models.GranularityMonthly && granularity != models.GranularityWeekly {
		return fmt.Errorf("unsupported granularity %q (monthly, weekly)", opts.Granularity)
	}
	if opts.Horizon == 0 {
		opts.Horizon = constants.DefaultHorizon
		if granularity == models.GranularityWeekly {
			opts.Horizon = constants.DefaultWeeklyHorizon
		}
	}

	a, err := g.open(cmd, app.Options{SkipSink: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	var sink *influxdb.ForecastSink
	if !opts.DryRun {
		if sink, err = app.OpenSink(cmd.Context(), a.Config, a.Logger); err != nil {
			return err
		}
		defer sink.Close()
	}

	products := opts.Products
	if len(products) == 0 {
		products = a.Store.Products()
	}
	txs := a.Store.Transactions()
	scenario := models.Scenario{Promotion: opts.Promotion, Holiday: opts.Holiday}

	result := &ExportResult{}
	for _, product := range products {
		var fc *models.Forecast
		if granularity == models.GranularityWeekly {
			fc, err = a.Forecaster.ForecastWeekly(cmd.Context(), txs, forecast.WeeklyRequest{Product: product, Horizon: opts.Horizon})
		} else {
			fc, err = a.Forecaster.ForecastSeries(cmd.Context(), txs, product, opts.Horizon, scenario)
		}
		if err != nil {
			if cmd.Context().Err() != nil || (errors.IsFatal(err) && granularity == models.GranularityMonthly) {
				return err
			}
			a.Logger.WithError(err).WithField("product", product).Warn("Skipping product")
			result.Skipped = append(result.Skipped, models.SkippedProduct{Product: product, Reason: err.Error()})
			continue
		}

		if opts.DryRun {
			points, err := influxdb.ForecastPoints(fc)
			if err != nil {
				return err
			}
			for _, p := range points {
				fmt.Fprint(cmd.OutOrStdout(), write.PointToLineProtocol(p, time.Second))
			}
		} else if err := sink.WriteForecast(cmd.Context(), fc); err != nil {
			return err
		}
		result.Written = append(result.Written, product)
		result.Points += len(fc.Units)
	}

	a.Logger.WithFields(logrus.Fields{
		"written": len(result.Written),
		"skipped": len(result.Skipped),
		"points":  result.Points,
		"dry_run": opts.DryRun,
	}).Info("Export finished")

	if opts.DryRun {
		return nil
	}
	rows := make([][]string, 0, len(result.Written)+len(result.Skipped))
	for _, p := range result.Written {
		rows = append(rows, []string{p, "written", ""})
	}
	for _, s := range result.Skipped {
		rows = append(rows, []string{s.Product, "skipped", s.Reason})
	}
	return g.render(cmd.OutOrStdout(), result, []string{"product", "status", "reason"}, rows)
}

func NewStoredCmd(g *Globals) *cobra.Command {
	var (
		product     string
		granularity string
		promotion   string
		holiday     string
		since       time.Duration
	)

	cmd := &cobra.Command{
		Use:     "stored",
		Short:   "Show a forecast previously exported to InfluxDB",
		Example: `  salesforecast stored --product "Rifle X" --since 8760h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.checkFormat(); err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			sink, err := app.OpenSink(cmd.Context(), cfg, g.logger(cmd, cfg))
			if err != nil {
				return err
			}
			defer sink.Close()

			scenario := models.Scenario{Promotion: promotion, Holiday: holiday}
			fc, err := sink.ReadForecast(cmd.Context(), product, models.Granularity(granularity), scenario, time.Now().Add(-since))
			if err != nil {
				return err
			}
			return renderForecast(cmd, g, fc)
		},
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "Product name (required)")
	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(models.GranularityMonthly), "Granularity (monthly, weekly)")
	cmd.Flags().StringVar(&promotion, "promotion", "", "Promotion class of the stored scenario")
	cmd.Flags().StringVar(&holiday, "holiday", "", "Holiday class of the stored scenario")
	cmd.Flags().DurationVar(&since, "since", 5*365*24*time.Hour, "How far back the stored periods start")
	cmd.MarkFlagRequired("product")

	return cmd
}
