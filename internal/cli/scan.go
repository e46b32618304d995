package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nscan/internal/analysis"
	"nscan/internal/analysis/patterns"
	"nscan/internal/errors"
	"nscan/internal/ingest"
	"nscan/internal/report"
	"nscan/internal/scanner"
	"nscan/internal/store"
	"nscan/pkg/utils"
)

// scanRequest collects the options of one scan run.
type scanRequest struct {
	Symbols    []string
	Dir        string
	FromDB     bool
	Modes      string
	Month      string // YYYY-MM
	AutoMonth  bool
	RecentDays int
	Workers    int
	Timeout    time.Duration
	Out        string
	Export     bool
	Save       bool
	Chips      bool
	Shapes     bool
}

func newScanCmd(app *App) *cobra.Command {
	var req scanRequest

	cmd := &cobra.Command{
		Use:   "scan [symbols...]",
		Short: "Scan symbols for N patterns and zone breakouts",
		Long: `Scan every symbol in the data directory, or only the listed ones.

Modes:
  standalone  N patterns in recent bars, optionally limited to one month
  breakout    N patterns and direct breakouts after consolidation zones
  all         both of the above

Examples:
  nscan scan --dir ./export --mode all
  nscan scan --db --mode standalone --month 2024-03
  nscan scan SH600000 SZ000001 --recent-days 7 --out signals.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req.Symbols = args
			req.applyConfig(cmd, app)

			now := time.Now()
			rep, err := runScan(commandContext(cmd), app, req, now)
			if err != nil {
				return err
			}
			return renderScan(output, rep, now)
		},
	}

	cfg := app.Config.Scan
	cmd.Flags().StringVar(&req.Dir, "dir", app.Config.Data.Dir, "directory of exported bar files")
	cmd.Flags().BoolVar(&req.FromDB, "db", false, "read bars from the local store instead of --dir")
	cmd.Flags().StringVarP(&req.Modes, "mode", "m", cfg.Modes, "detection mode: standalone, breakout or all")
	cmd.Flags().StringVar(&req.Month, "month", "", "only report standalone confirmations in this month (YYYY-MM)")
	cmd.Flags().BoolVar(&req.AutoMonth, "auto-month", false, "use the month of yesterday as --month")
	cmd.Flags().IntVar(&req.RecentDays, "recent-days", cfg.RecentDays, "only report confirmations from the last N days (0 for all)")
	cmd.Flags().IntVarP(&req.Workers, "workers", "w", cfg.Workers, "number of symbols analyzed in parallel")
	cmd.Flags().DurationVar(&req.Timeout, "timeout", cfg.SymbolTimeout, "per-symbol analysis timeout")
	cmd.Flags().StringVarP(&req.Out, "out", "o", "", "write patterns to this file (.csv or .json)")
	cmd.Flags().BoolVar(&req.Export, "export", false, "write a dated CSV to the configured output directory")
	cmd.Flags().BoolVar(&req.Save, "save", false, "store confirmed patterns in the local database")
	cmd.Flags().BoolVar(&req.Chips, "chips", cfg.Chips, "attach volume-at-price statistics")
	cmd.Flags().BoolVar(&req.Shapes, "shapes", cfg.Shapes, "attach swing shape labels")

	return cmd
}

// runScan executes one scan run and writes or stores its patterns as requested.
func runScan(ctx context.Context, app *App, req scanRequest, now time.Time) (*scanner.Report, error) {
	modes, err := patterns.ParseModes(req.Modes)
	if err != nil {
		return nil, errors.NewValidationError("mode", req.Modes, err.Error())
	}

	params := make(map[patterns.Mode]patterns.Params, len(modes))
	for _, m := range modes {
		params[m] = app.Config.ParamsFor(m)
	}
	year, month, err := req.targetMonth(now)
	if err != nil {
		return nil, err
	}
	if p, ok := params[patterns.ModeStandalone]; ok && month != 0 {
		p = p.WithTargetMonth(year, month)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params[patterns.ModeStandalone] = p
	}

	symbols, provider, err := app.source(ctx, req)
	if err != nil {
		return nil, err
	}

	opts := scanner.Options{
		Workers:       req.Workers,
		SymbolTimeout: req.Timeout,
		Chips:         req.Chips,
		Shapes:        req.Shapes,
	}
	if req.RecentDays > 0 {
		opts.Window = scanner.RecentWindow(now, req.RecentDays)
	}

	app.Logger.Info().
		Int("symbols", len(symbols)).
		Str("modes", req.Modes).
		Int("workers", req.Workers).
		Msg("Starting scan")

	rep, err := scanner.New(params, modes, opts, app.Logger).Scan(ctx, symbols, provider)
	if err != nil {
		return nil, err
	}

	if req.Save {
		if err := app.savePatterns(ctx, rep.Patterns); err != nil {
			return nil, err
		}
	}

	path := req.Out
	if path == "" && req.Export {
		path = filepath.Join(app.Config.Scan.OutputDir, fmt.Sprintf("nscan_%s.csv", now.Format("20060102_150405")))
	}
	if path != "" {
		if err := report.WriteFile(path, rep.Patterns, now); err != nil {
			return nil, err
		}
		app.Logger.Info().Str("path", path).Int("patterns", len(rep.Patterns)).Msg("Patterns exported")
	}

	return rep, nil
}

// applyConfig fills unset flags from the active configuration, which may have been
// reloaded by --config after the flag defaults were bound.
func (r *scanRequest) applyConfig(cmd *cobra.Command, app *App) {
	cfg := app.Config
	flags := cmd.Flags()
	if !flags.Changed("dir") {
		r.Dir = cfg.Data.Dir
	}
	if !flags.Changed("mode") {
		r.Modes = cfg.Scan.Modes
	}
	if !flags.Changed("recent-days") {
		r.RecentDays = cfg.Scan.RecentDays
	}
	if !flags.Changed("workers") {
		r.Workers = cfg.Scan.Workers
	}
	if !flags.Changed("timeout") {
		r.Timeout = cfg.Scan.SymbolTimeout
	}
	if !flags.Changed("chips") {
		r.Chips = cfg.Scan.Chips
	}
	if !flags.Changed("shapes") {
		r.Shapes = cfg.Scan.Shapes
	}
}

// targetMonth resolves --month and --auto-month. A zero month disables the filter.
func (r scanRequest) targetMonth(now time.Time) (int, time.Month, error) {
	if r.Month != "" {
		t, err := time.Parse("2006-01", r.Month)
		if err != nil {
			return 0, 0, errors.NewValidationError("month", r.Month, "must be YYYY-MM")
		}
		return t.Year(), t.Month(), nil
	}
	if r.AutoMonth {
		y, m := scanner.AutoMonth(now)
		return y, m, nil
	}
	return 0, 0, nil
}

// source returns the symbols to scan and the loader that reads them.
func (a *App) source(ctx context.Context, req scanRequest) ([]string, scanner.SeriesProvider, error) {
	var (
		symbols  []string
		provider scanner.SeriesProvider
		err      error
	)

	if req.FromDB {
		s, serr := a.Store()
		if serr != nil {
			return nil, nil, serr
		}
		symbols, err = s.ListSymbols(ctx)
		provider = store.SeriesLoader{Store: s}.Load
	} else {
		src := ingest.NewDirSource(req.Dir, a.Config.Data.Pattern)
		symbols, err = src.Symbols()
		provider = src.Load
	}
	if err != nil {
		return nil, nil, err
	}

	if len(req.Symbols) > 0 {
		symbols = normalizeSymbols(req.Symbols)
	}
	return symbols, provider, nil
}

func (a *App) savePatterns(ctx context.Context, list []analysis.Pattern) error {
	s, err := a.Store()
	if err != nil {
		return err
	}
	if err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
		return s.SavePatterns(ctx, list)
	}); err != nil {
		return errors.Wrap(err, "failed to save patterns")
	}
	a.Logger.Info().Int("patterns", len(list)).Msg("Patterns saved")
	return nil
}

func normalizeSymbols(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		for _, s := range strings.Split(a, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// scanExtra carries the optional per-symbol attachments in JSON output.
type scanExtra struct {
	Symbols []symbolExtra `json:"symbols,omitempty"`
	Skipped []skipped     `json:"skipped,omitempty"`
}

type symbolExtra struct {
	Symbol string              `json:"symbol"`
	Chips  *patterns.ChipStats `json:"chips,omitempty"`
	Shapes []patterns.Shape    `json:"shapes,omitempty"`
}

type skipped struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

func renderScan(output *Output, rep *scanner.Report, now time.Time) error {
	if output.IsJSON() {
		var extra scanExtra
		for _, r := range rep.Symbols {
			if r.Err != nil {
				extra.Skipped = append(extra.Skipped, skipped{Symbol: r.Symbol, Reason: r.Err.Error()})
				continue
			}
			if r.Chips != nil || len(r.Shapes) > 0 {
				extra.Symbols = append(extra.Symbols, symbolExtra{Symbol: r.Symbol, Chips: r.Chips, Shapes: r.Shapes})
			}
		}
		doc := report.Document{GeneratedAt: now, Patterns: report.Rows(rep.Patterns)}
		if len(extra.Symbols) > 0 || len(extra.Skipped) > 0 {
			doc.Extra = extra
		}
		return report.WriteJSON(output.Writer(), doc)
	}

	if len(rep.Patterns) == 0 {
		output.Warning("No patterns confirmed")
	} else {
		renderPatterns(output, rep.Patterns)
	}

	for _, r := range rep.Symbols {
		if r.Err != nil {
			continue
		}
		if r.Chips != nil {
			output.Println()
			renderChips(output, r.Symbol, r.Chips)
		}
		if len(r.Shapes) > 0 {
			output.Println()
			output.Bold("%s shapes", r.Symbol)
			for _, s := range r.Shapes {
				output.Printf("  %-14s %s\n", s.Kind, s.Label)
			}
		}
	}

	output.Println()
	output.Dim("Scanned %d symbols, skipped %d, %d patterns in %s",
		len(rep.Symbols), rep.Skipped, len(rep.Patterns), rep.Duration.Round(time.Millisecond))
	return nil
}

func renderPatterns(output *Output, list []analysis.Pattern) {
	table := NewTable(output, "Symbol", "Type", "Confirm", "S1", "H1", "S2", "H2",
		"Retr", "Break", "Entry", "Stop", "Target", "R/R", "Zone")
	for _, p := range list {
		zone := "-"
		if p.Zone != nil {
			zone = fmt.Sprintf("%s~%s", p.Zone.StartDate.Format("01-02"), p.Zone.EndDate.Format("01-02"))
		}
		table.AddRow(
			p.Symbol,
			output.Direction(p.Type.Bullish(), string(p.Type)),
			p.ConfirmDate.Format("2006-01-02"),
			utils.FormatPrice(p.S1.Price),
			utils.FormatPrice(p.H1.Price),
			utils.FormatPrice(p.S2.Price),
			utils.FormatPrice(p.H2.Price),
			utils.FormatPercent(p.Retracement),
			utils.FormatPercent(p.BreakoutRatio),
			utils.FormatPrice(p.Entry),
			utils.FormatPrice(p.Stop),
			utils.FormatPrice(p.Target),
			utils.FormatRatio(p.RiskReward),
			zone,
		)
	}
	table.Render()
}

func renderChips(output *Output, symbol string, c *patterns.ChipStats) {
	output.Bold("%s chips", symbol)
	output.Printf("  Concentration:   %.1f%% (%s)\n", c.Concentration, c.Status)
	output.Printf("  Main Peak:       %s (%s)\n", utils.FormatPrice(c.PeakPrice), c.Position)
	output.Printf("  Profit Ratio:    %.1f%%\n", c.ProfitRatio)
	output.Printf("  Average Cost:    %s (%+.1f%%)\n", utils.FormatPrice(c.AvgCost), c.CostDeviation)
	output.Printf("  Total Volume:    %s\n", utils.FormatVolume(c.TotalVolume))
}
