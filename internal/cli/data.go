package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nscan/internal/analysis"
	"nscan/internal/analysis/patterns"
	"nscan/internal/errors"
	"nscan/internal/ingest"
	"nscan/internal/models"
	"nscan/internal/report"
	"nscan/internal/store"
	"nscan/pkg/utils"
)

const syncBars = "bars"

func newImportCmd(app *App) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Import exported bar files into the local store",
		Long: `Read every export file in a directory and upsert its bars into the
SQLite store. Files that fail to parse are reported and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := commandContext(cmd)

			dir := app.Config.Data.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("pattern") {
				pattern = app.Config.Data.Pattern
			}

			s, err := app.Store()
			if err != nil {
				return err
			}
			res, err := importBars(ctx, app, s, ingest.NewDirSource(dir, pattern))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("✓ Imported %d bars for %d symbols", res.Bars, res.Symbols)
			for _, f := range res.Failed {
				output.Warning("  skipped %s: %s", f.Symbol, f.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", ingest.DefaultPattern, "glob matching export files")
	return cmd
}

type importResult struct {
	Symbols int       `json:"symbols"`
	Bars    int       `json:"bars"`
	Failed  []skipped `json:"failed,omitempty"`
}

func importBars(ctx context.Context, app *App, s store.DataStore, src *ingest.DirSource) (*importResult, error) {
	symbols, err := src.Symbols()
	if err != nil {
		return nil, err
	}

	res := &importResult{}
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := src.Load(ctx, symbol)
		if err != nil {
			app.Logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping unreadable export")
			res.Failed = append(res.Failed, skipped{Symbol: symbol, Reason: err.Error()})
			continue
		}
		if err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
			return s.SaveBars(ctx, symbol, series.Bars)
		}); err != nil {
			return nil, errors.Wrapf(err, "failed to save bars for %s", symbol)
		}
		res.Symbols++
		res.Bars += series.Len()
	}

	if err := s.SetLastSync(syncBars, time.Now()); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to record sync time")
	}
	app.Logger.Info().Int("symbols", res.Symbols).Int("bars", res.Bars).Int("failed", len(res.Failed)).Msg("Import finished")
	return res, nil
}

func newPatternsCmd(app *App) *cobra.Command {
	var (
		symbol string
		typ    string
		from   string
		to     string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List patterns saved by 'scan --save'",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			filter := store.PatternFilter{
				Symbol: strings.TrimSpace(symbol),
				Type:   analysis.PatternType(typ),
				Limit:  limit,
			}
			var err error
			if filter.StartDate, err = parseDay("from", from); err != nil {
				return err
			}
			if filter.EndDate, err = parseDay("to", to); err != nil {
				return err
			}

			s, err := app.Store()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			list, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]analysis.Pattern, error) {
				return s.GetPatterns(ctx, filter)
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return report.WriteJSON(output.Writer(), report.Document{GeneratedAt: time.Now(), Patterns: report.Rows(list)})
			}
			if len(list) == 0 {
				output.Warning("No stored patterns match")
				return nil
			}
			renderPatterns(output, list)
			if last := s.GetLastSync(syncBars); !last.IsZero() {
				output.Println()
				output.Dim("Bars last imported %s", last.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "filter by symbol")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "filter by type: positive, negative, direct_breakout")
	cmd.Flags().StringVar(&from, "from", "", "first confirmation day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last confirmation day (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows (0 for all)")
	return cmd
}

func newZonesCmd(app *App) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "zones <symbol|file>",
		Short: "List consolidation zones of one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			series, err := app.loadSeries(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			p := app.Config.ParamsFor(patterns.ModeBreakout)
			zones := patterns.NewConsolidationDetector(p).Detect(series.LastMonths(p.LookbackMonths))
			rows := report.ZoneRows(series.Symbol, zones)

			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return errors.Wrap(err, "failed to create output file")
				}
				defer f.Close()
				if err := report.WriteCSV(f, rows); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Warning("No consolidation zones in %s", series.Symbol)
				return nil
			}
			table := NewTable(output, "Start", "End", "Days", "Low", "High", "Volatility", "Avg Volume")
			for i, r := range rows {
				table.AddRow(r.Start, r.End, strconv.Itoa(r.Days), r.Low, r.High,
					r.VolatilityPct+"%", utils.FormatVolume(zones[i].AvgVolume))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "also write zones to this CSV file")
	return cmd
}

func newChipsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chips <symbol|file>",
		Short: "Show volume-at-price statistics and swing shapes of one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			series, err := app.loadSeries(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			stats := patterns.NewChipAnalyzer().Analyze(series.Bars)
			shapes := patterns.DescribeShapes(series.Bars, app.Config.ParamsFor(patterns.ModeStandalone).ExtremumWindow)

			if output.IsJSON() {
				return output.JSON(symbolExtra{Symbol: series.Symbol, Chips: stats, Shapes: shapes})
			}
			if stats == nil {
				output.Warning("%s has too few bars for chip statistics", series.Symbol)
			} else {
				renderChips(output, series.Symbol, stats)
			}
			for _, s := range shapes {
				output.Printf("  %-14s %s\n", s.Kind, s.Label)
			}
			return nil
		},
	}
}

// loadSeries reads a symbol from the data directory, or arg itself when it names a file.
func (a *App) loadSeries(ctx context.Context, arg string) (*models.Series, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		f, err := os.Open(arg)
		if err != nil {
			return nil, errors.NewDataError("file", arg, "open failed", err)
		}
		defer f.Close()
		symbol := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		bars, err := ingest.ReadBars(f, symbol)
		if err != nil {
			return nil, err
		}
		return models.NewSeries(symbol, bars)
	}
	return ingest.NewDirSource(a.Config.Data.Dir, a.Config.Data.Pattern).Load(ctx, arg)
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, "must be YYYY-MM-DD")
	}
	return t, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
