package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/internal/dataset"
)

func NewProductsCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List products with their last twelve months of sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.checkFormat(); err != nil {
				return err
			}
			a, err := g.open(cmd, app.Options{SkipSink: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			summary := dataset.Summarize(a.Store.Transactions())
			rows := make([][]string, len(summary))
			for i, s := range summary {
				rows[i] = []string{s.Product, itoa(s.TotalUnits), fmt.Sprintf("%.2f", s.MeanPerRecord)}
			}
			return g.render(cmd.OutOrStdout(), summary, []string{"product", "total_units", "mean_per_record"}, rows)
		},
	}
}
