package commands

import (
	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
)

func NewArtifactsCmd(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Manage model and scaler artifacts",
	}
	cmd.AddCommand(newArtifactsSyncCmd(g))
	return cmd
}

func newArtifactsSyncCmd(g *Globals) *cobra.Command {
	var push bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror artifacts between S3 and artifacts.sync_dir",
		Long: `Download every *.json artifact under artifacts.s3.prefix into
artifacts.sync_dir, skipping files that are already up to date. --push
uploads the local directory instead.`,
		Example: `  salesforecast artifacts sync
  salesforecast artifacts sync --push`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.checkFormat(); err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			result, err := app.SyncArtifacts(cmd.Context(), cfg, g.logger(cmd, cfg), nil, push)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(result.Transferred)+len(result.Unchanged))
			for _, f := range result.Transferred {
				rows = append(rows, []string{f, "transferred"})
			}
			for _, f := range result.Unchanged {
				rows = append(rows, []string{f, "unchanged"})
			}
			return g.render(cmd.OutOrStdout(), result, []string{"file", "status"}, rows)
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "Upload local artifacts instead of downloading")
	return cmd
}
