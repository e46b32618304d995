// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"nscan/internal/analysis"
	"nscan/internal/errors"
	"nscan/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol string, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
	GetBarsFreshness(ctx context.Context, symbol string) (time.Time, error)
	ListSymbols(ctx context.Context) ([]string, error)

	// Patterns
	SavePatterns(ctx context.Context, patterns []analysis.Pattern) error
	GetPatterns(ctx context.Context, filter PatternFilter) ([]analysis.Pattern, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// PatternFilter represents filters for querying stored patterns.
type PatternFilter struct {
	Symbol    string
	Type      analysis.PatternType
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// SeriesLoader adapts a DataStore to the per-symbol loader used by the scanner.
type SeriesLoader struct {
	Store DataStore
}

// Load reads every stored bar for symbol and validates it as a series.
func (l SeriesLoader) Load(ctx context.Context, symbol string) (*models.Series, error) {
	bars, err := l.Store.GetBars(ctx, symbol, time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, errors.NewDataError("bars", symbol, "no stored bars", errors.ErrSymbolNotFound)
	}
	return models.NewSeries(symbol, bars)
}
