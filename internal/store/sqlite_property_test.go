package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nscan/internal/analysis"
	"nscan/internal/errors"
	"nscan/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nscan.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: saving bars and reading them back yields the same bars in date order.
func TestProperty_BarRoundTripConsistency(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("bar round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(count int, basePrice float64, baseVolume float64) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("SH%06d", run)

			bars := generateTestBars(count, basePrice, baseVolume)
			if err := store.SaveBars(ctx, symbol, bars); err != nil {
				t.Logf("Failed to save bars: %v", err)
				return false
			}

			retrieved, err := store.GetBars(ctx, symbol, bars[0].Date, bars[len(bars)-1].Date)
			if err != nil {
				t.Logf("Failed to get bars: %v", err)
				return false
			}
			if len(retrieved) != len(bars) {
				t.Logf("Count mismatch: expected %d, got %d", len(bars), len(retrieved))
				return false
			}
			for i := range bars {
				if !barsEqual(bars[i], retrieved[i]) {
					t.Logf("Bar mismatch at index %d: saved=%+v, loaded=%+v", i, bars[i], retrieved[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.Float64Range(1.0, 500.0),
		gen.Float64Range(100, 1e7),
	))

	properties.TestingRun(t)
}

func TestSQLiteStore_SaveBarsUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bars := generateTestBars(5, 10, 1000)
	if err := store.SaveBars(ctx, "SZ000001", bars); err != nil {
		t.Fatal(err)
	}
	bars[2].Close = 99
	bars[2].High = 100
	if err := store.SaveBars(ctx, "SZ000001", bars[2:3]); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetBars(ctx, "SZ000001", time.Time{}, bars[4].Date)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || got[2].Close != 99 {
		t.Errorf("bars after upsert = %+v", got)
	}

	latest, err := store.GetBarsFreshness(ctx, "SZ000001")
	if err != nil {
		t.Fatal(err)
	}
	if !latest.Equal(bars[4].Date) {
		t.Errorf("freshness = %v, want %v", latest, bars[4].Date)
	}

	none, err := store.GetBarsFreshness(ctx, "UNKNOWN")
	if err != nil || !none.IsZero() {
		t.Errorf("freshness for unknown symbol = %v, %v", none, err)
	}
}

func TestSQLiteStore_ListSymbolsAndLoader(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, symbol := range []string{"SZ000002", "SH600000"} {
		if err := store.SaveBars(ctx, symbol, generateTestBars(8, 20, 5000)); err != nil {
			t.Fatal(err)
		}
	}

	symbols, err := store.ListSymbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "SH600000" || symbols[1] != "SZ000002" {
		t.Errorf("symbols = %v", symbols)
	}

	loader := SeriesLoader{Store: store}
	series, err := loader.Load(ctx, "SH600000")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if series.Len() != 8 || len(series.MA5Volume) != 8 {
		t.Errorf("series has %d bars", series.Len())
	}

	if _, err := loader.Load(ctx, "SH999999"); !errors.Is(err, errors.ErrSymbolNotFound) {
		t.Errorf("err = %v, want ErrSymbolNotFound", err)
	}
}

func TestSQLiteStore_PatternRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rr := 1.5

	zoned := analysis.Pattern{
		Symbol:         "SH600000",
		Type:           analysis.PatternPositiveN,
		Classification: analysis.PatternPositiveN.Classification(),
		S1:             analysis.Point{Index: 21, Date: base, Price: 10.8},
		H1:             analysis.Point{Index: 22, Date: base.AddDate(0, 0, 1), Price: 13},
		S2:             analysis.Point{Index: 23, Date: base.AddDate(0, 0, 2), Price: 12},
		H2:             analysis.Point{Index: 25, Date: base.AddDate(0, 0, 4), Price: 13.5},
		FirstLeg:       2.2,
		ConfirmDate:    base.AddDate(0, 0, 4),
		Zone: &analysis.ConsolidationZone{
			StartDate: base.AddDate(0, 0, -20),
			EndDate:   base.AddDate(0, 0, -1),
			Low:       9.9,
			High:      12,
		},
		Entry:      13.5,
		Stop:       11.76,
		Target:     16.8,
		RiskReward: &rr,
	}
	standalone := zoned
	standalone.Symbol = "SZ000001"
	standalone.Type = analysis.PatternNegativeN
	standalone.Zone = nil
	standalone.RiskReward = nil
	standalone.ConfirmDate = base.AddDate(0, 0, 10)

	if err := store.SavePatterns(ctx, []analysis.Pattern{standalone, zoned}); err != nil {
		t.Fatal(err)
	}
	// Saving again replaces rather than duplicates.
	if err := store.SavePatterns(ctx, []analysis.Pattern{zoned}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetPatterns(ctx, PatternFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("patterns = %d, want 2", len(got))
	}
	first := got[0]
	if first.Symbol != "SH600000" || first.Zone == nil || first.Zone.High != 12 {
		t.Errorf("first pattern = %+v", first)
	}
	if first.RiskReward == nil || *first.RiskReward != 1.5 {
		t.Errorf("risk reward = %v, want 1.5", first.RiskReward)
	}
	if first.H2.Index != 25 || !first.H2.Date.Equal(zoned.H2.Date) {
		t.Errorf("H2 = %+v", first.H2)
	}
	if got[1].Zone != nil || got[1].RiskReward != nil {
		t.Errorf("standalone pattern should have no zone or risk reward: %+v", got[1])
	}

	filtered, err := store.GetPatterns(ctx, PatternFilter{Type: analysis.PatternNegativeN})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Symbol != "SZ000001" {
		t.Errorf("filtered = %+v", filtered)
	}

	windowed, err := store.GetPatterns(ctx, PatternFilter{StartDate: base.AddDate(0, 0, 5)})
	if err != nil {
		t.Fatal(err)
	}
	if len(windowed) != 1 {
		t.Errorf("windowed = %d, want 1", len(windowed))
	}
}

func TestSQLiteStore_LastSync(t *testing.T) {
	store := newTestStore(t)
	if !store.GetLastSync("bars").IsZero() {
		t.Error("expected zero time before first sync")
	}
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := store.SetLastSync("bars", now); err != nil {
		t.Fatal(err)
	}
	if got := store.GetLastSync("bars"); !got.Equal(now) {
		t.Errorf("last sync = %v, want %v", got, now)
	}
}

func TestSQLiteStore_ClosedStoreReportsDatabaseError(t *testing.T) {
	store := newTestStore(t)
	store.Close()
	ctx := context.Background()

	if err := store.SaveBars(ctx, "SZ000001", generateTestBars(2, 10, 1000)); !errors.Is(err, errors.ErrDatabaseError) {
		t.Errorf("SaveBars on closed store = %v, want ErrDatabaseError", err)
	}
	if _, err := store.GetPatterns(ctx, PatternFilter{}); !errors.Is(err, errors.ErrDatabaseError) {
		t.Errorf("GetPatterns on closed store = %v, want ErrDatabaseError", err)
	}
	if err := store.SetLastSync("bars", time.Now()); !errors.Is(err, errors.ErrDatabaseError) {
		t.Errorf("SetLastSync on closed store = %v, want ErrDatabaseError", err)
	}
}

// generateTestBars creates valid daily bars for testing.
func generateTestBars(count int, basePrice, baseVolume float64) []models.Bar {
	bars := make([]models.Bar, count)
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5

		bars[i] = models.Bar{
			Date:   baseTime.AddDate(0, 0, i),
			Open:   roundToDecimal(open, 2),
			High:   roundToDecimal(math.Max(open, close)*1.01, 2),
			Low:    roundToDecimal(math.Min(open, close)*0.99, 2),
			Close:  roundToDecimal(close, 2),
			Volume: math.Round(baseVolume + float64(i*1000)),
		}
	}

	return bars
}

// roundToDecimal rounds a float to specified decimal places
func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

// barsEqual compares two bars for equality with floating point tolerance.
func barsEqual(a, b models.Bar) bool {
	const tolerance = 0.01

	if !a.Date.Equal(b.Date) {
		return false
	}
	return floatEqual(a.Open, b.Open, tolerance) &&
		floatEqual(a.High, b.High, tolerance) &&
		floatEqual(a.Low, b.Low, tolerance) &&
		floatEqual(a.Close, b.Close, tolerance) &&
		a.Volume == b.Volume
}

// floatEqual compares two floats with a tolerance.
func floatEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
