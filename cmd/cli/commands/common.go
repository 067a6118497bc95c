package commands

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/internal/config"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Globals are the persistent flags shared by every command.
type Globals struct {
	ConfigFile string
	Verbose    bool
	Format     string
}

func (g *Globals) loadConfig() (*config.Config, error) {
	return config.Load(g.ConfigFile)
}

// logger writes to stderr so stdout carries only command output.
func (g *Globals) logger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logrus.WarnLevel)
	if g.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// open wires the application once per command invocation. The CLI never
// watches the dataset.
func (g *Globals) open(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	watch := false
	opts.Watch = &watch
	return app.New(cmd.Context(), cfg, g.logger(cmd, cfg), opts)
}

func (g *Globals) checkFormat() error {
	switch g.Format {
	case FormatTable, FormatJSON, FormatCSV:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (table, json, csv)", g.Format)
	}
}

// render writes v as JSON, or hands rows to a table or CSV writer.
func (g *Globals) render(w io.Writer, v interface{}, header []string, rows [][]string) error {
	switch g.Format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(header); err != nil {
			return err
		}
		if err := writer.WriteAll(rows); err != nil {
			return err
		}
		return writer.Error()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeTabRow(tw, header)
		for _, row := range rows {
			writeTabRow(tw, row)
		}
		return tw.Flush()
	}
}

func writeTabRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

func closeApp(a *app.App) {
	a.Close(context.Background())
}

func period(t time.Time) string {
	return t.Format("2006-01-02")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
