// Package scanner runs pattern detection over many symbols in parallel and merges
// the per-symbol results into one report.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"nscan/internal/analysis"
	"nscan/internal/analysis/patterns"
	"nscan/internal/errors"
	"nscan/internal/logging"
	"nscan/internal/models"
)

// SeriesProvider loads the validated series for a symbol.
type SeriesProvider func(ctx context.Context, symbol string) (*models.Series, error)

// Options controls a scan run.
type Options struct {
	Workers       int
	SymbolTimeout time.Duration
	Window        Window
	Chips         bool
	Shapes        bool
}

// SymbolResult holds everything produced for one symbol.
type SymbolResult struct {
	Symbol   string
	Bars     int
	Results  []patterns.Result
	Chips    *patterns.ChipStats
	Shapes   []patterns.Shape
	Err      error
	Duration time.Duration
}

// Patterns returns the patterns of every mode in mode order.
func (r SymbolResult) Patterns() []analysis.Pattern {
	var out []analysis.Pattern
	for _, res := range r.Results {
		out = append(out, res.Patterns...)
	}
	return out
}

// Report is the merged output of a scan run.
type Report struct {
	Symbols  []SymbolResult
	Patterns []analysis.Pattern
	Skipped  int
	Duration time.Duration
}

// Scanner fans detection out over a bounded worker pool.
type Scanner struct {
	engines map[patterns.Mode]*patterns.Engine
	modes   []patterns.Mode
	chips   *patterns.ChipAnalyzer
	opts    Options
	logger  zerolog.Logger
}

// New creates a scanner that runs the given modes, each with its own parameters.
func New(params map[patterns.Mode]patterns.Params, modes []patterns.Mode, opts Options, logger zerolog.Logger) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	engines := make(map[patterns.Mode]*patterns.Engine, len(modes))
	for _, m := range modes {
		p, ok := params[m]
		if !ok {
			if m == patterns.ModeStandalone {
				p = patterns.StandaloneParams()
			} else {
				p = patterns.BreakoutParams()
			}
		}
		engines[m] = patterns.NewEngine(p)
	}
	return &Scanner{
		engines: engines,
		modes:   modes,
		chips:   patterns.NewChipAnalyzer(),
		opts:    opts,
		logger:  logger,
	}
}

// Scan analyzes every symbol and aggregates the confirmed patterns. A symbol whose
// data cannot be loaded or whose analysis overruns the per-symbol timeout is skipped
// and logged; it never fails the run.
func (s *Scanner) Scan(ctx context.Context, symbols []string, provider SeriesProvider) (*Report, error) {
	if len(symbols) == 0 {
		return &Report{}, nil
	}
	start := time.Now()

	p := pool.NewWithResults[SymbolResult]().WithMaxGoroutines(s.opts.Workers)
	for _, symbol := range symbols {
		symbol := symbol
		p.Go(func() SymbolResult {
			return s.scanSymbol(ctx, symbol, provider)
		})
	}
	results := p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "scan cancelled")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	report := &Report{Symbols: results}
	lists := make([][]analysis.Pattern, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			report.Skipped++
			continue
		}
		lists = append(lists, r.Patterns())
	}
	report.Patterns = Aggregate(lists, s.opts.Window)
	report.Duration = time.Since(start)

	logging.LogScanSummary(s.logger, len(symbols), report.Skipped, len(report.Patterns), report.Duration)
	return report, nil
}

// scanSymbol runs one symbol under its own deadline.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string, provider SeriesProvider) SymbolResult {
	logger := logging.WithSymbol(s.logger, symbol)
	start := time.Now()

	if s.opts.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SymbolTimeout)
		defer cancel()
	}

	done := make(chan SymbolResult, 1)
	go func() {
		done <- s.analyze(ctx, symbol, provider, logger)
	}()

	var result SymbolResult
	select {
	case result = <-done:
	case <-ctx.Done():
		err := ctx.Err()
		if err == context.DeadlineExceeded {
			err = errors.NewDataError("scan", symbol, "analysis timed out", errors.ErrTimeout)
		}
		result = SymbolResult{Symbol: symbol, Err: err}
	}
	result.Duration = time.Since(start)

	if result.Err != nil {
		logging.LogSymbolSkipped(logger, symbol, result.Err)
	}
	return result
}

func (s *Scanner) analyze(ctx context.Context, symbol string, provider SeriesProvider, logger zerolog.Logger) SymbolResult {
	series, err := provider(ctx, symbol)
	if err != nil {
		return SymbolResult{Symbol: symbol, Err: err}
	}

	result := SymbolResult{Symbol: symbol, Bars: series.Len()}
	for _, mode := range s.modes {
		res := s.engines[mode].Analyze(series, mode)
		modeLogger := logging.WithMode(logger, string(mode))
		modeLogger.Debug().
			Int("bars", res.Bars).
			Int("zones", len(res.Zones)).
			Int("patterns", len(res.Patterns)).
			Msg("Symbol analyzed")
		for _, p := range res.Patterns {
			logging.LogPattern(logger, symbol, string(p.Type), p.ConfirmDate, p.Entry, p.Stop, p.Target)
		}
		result.Results = append(result.Results, res)
	}

	if s.opts.Chips {
		result.Chips = s.chips.Analyze(series.Bars)
	}
	if s.opts.Shapes {
		window := patterns.StandaloneParams().ExtremumWindow
		if len(s.modes) > 0 {
			window = s.engines[s.modes[0]].Params().ExtremumWindow
		}
		result.Shapes = patterns.DescribeShapes(series.Bars, window)
	}
	return result
}

// AutoMonth returns the calendar month of the day before now, the month a daily
// scan run after the close should report on.
func AutoMonth(now time.Time) (int, time.Month) {
	d := now.AddDate(0, 0, -1)
	return d.Year(), d.Month()
}
