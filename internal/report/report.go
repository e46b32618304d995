// Package report renders confirmed patterns and zones for export.
package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"nscan/internal/analysis"
	"nscan/internal/errors"
)

const dateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// Row is the flat export form of a pattern. Prices are rounded to two places and
// ratios are expressed in percent.
type Row struct {
	Symbol            string `csv:"symbol" json:"symbol"`
	Type              string `csv:"type" json:"type"`
	Classification    string `csv:"classification" json:"classification"`
	ConfirmDate       string `csv:"confirm_date" json:"confirm_date"`
	S1Date            string `csv:"s1_date" json:"s1_date"`
	S1                string `csv:"s1" json:"s1"`
	H1Date            string `csv:"h1_date" json:"h1_date"`
	H1                string `csv:"h1" json:"h1"`
	S2Date            string `csv:"s2_date" json:"s2_date"`
	S2                string `csv:"s2" json:"s2"`
	H2Date            string `csv:"h2_date" json:"h2_date"`
	H2                string `csv:"h2" json:"h2"`
	FirstLeg          string `csv:"first_leg" json:"first_leg"`
	RetracementPct    string `csv:"retracement_pct" json:"retracement_pct"`
	BreakoutPct       string `csv:"breakout_pct" json:"breakout_pct"`
	Vol1              string `csv:"vol1" json:"vol1"`
	Vol2              string `csv:"vol2" json:"vol2"`
	Vol3              string `csv:"vol3" json:"vol3"`
	ZoneStart         string `csv:"zone_start" json:"zone_start,omitempty"`
	ZoneEnd           string `csv:"zone_end" json:"zone_end,omitempty"`
	ZoneLow           string `csv:"zone_low" json:"zone_low,omitempty"`
	ZoneHigh          string `csv:"zone_high" json:"zone_high,omitempty"`
	Entry             string `csv:"entry" json:"entry"`
	Stop              string `csv:"stop" json:"stop"`
	Target            string `csv:"target" json:"target"`
	RiskReward        string `csv:"risk_reward" json:"risk_reward,omitempty"`
	SuggestedBuyDate  string `csv:"suggested_buy_date" json:"suggested_buy_date"`
	SuggestedBuyPrice string `csv:"suggested_buy_price" json:"suggested_buy_price"`
}

// NewRow flattens a pattern.
func NewRow(p analysis.Pattern) Row {
	row := Row{
		Symbol:            p.Symbol,
		Type:              string(p.Type),
		Classification:    p.Classification,
		ConfirmDate:       formatDate(p.ConfirmDate),
		S1Date:            formatDate(p.S1.Date),
		S1:                Price(p.S1.Price),
		H1Date:            formatDate(p.H1.Date),
		H1:                Price(p.H1.Price),
		S2Date:            formatDate(p.S2.Date),
		S2:                Price(p.S2.Price),
		H2Date:            formatDate(p.H2.Date),
		H2:                Price(p.H2.Price),
		FirstLeg:          Price(p.FirstLeg),
		RetracementPct:    Percent(p.Retracement),
		BreakoutPct:       Percent(p.BreakoutRatio),
		Vol1:              Volume(p.Vol1),
		Vol2:              Volume(p.Vol2),
		Vol3:              Volume(p.Vol3),
		Entry:             Price(p.Entry),
		Stop:              Price(p.Stop),
		Target:            Price(p.Target),
		SuggestedBuyDate:  formatDate(p.SuggestedBuyDate),
		SuggestedBuyPrice: Price(p.SuggestedBuyPrice),
	}
	if p.Zone != nil {
		row.ZoneStart = formatDate(p.Zone.StartDate)
		row.ZoneEnd = formatDate(p.Zone.EndDate)
		row.ZoneLow = Price(p.Zone.Low)
		row.ZoneHigh = Price(p.Zone.High)
	}
	if p.RiskReward != nil {
		row.RiskReward = Price(*p.RiskReward)
	}
	return row
}

// Rows flattens patterns in order.
func Rows(patterns []analysis.Pattern) []Row {
	rows := make([]Row, len(patterns))
	for i, p := range patterns {
		rows[i] = NewRow(p)
	}
	return rows
}

// ZoneRow is the flat export form of a consolidation zone.
type ZoneRow struct {
	Symbol        string `csv:"symbol" json:"symbol"`
	Start         string `csv:"start" json:"start"`
	End           string `csv:"end" json:"end"`
	Days          int    `csv:"days" json:"days"`
	Low           string `csv:"low" json:"low"`
	High          string `csv:"high" json:"high"`
	VolatilityPct string `csv:"volatility_pct" json:"volatility_pct"`
	AvgVolume     string `csv:"avg_volume" json:"avg_volume"`
}

// ZoneRows flattens the zones of one symbol.
func ZoneRows(symbol string, zones []analysis.ConsolidationZone) []ZoneRow {
	rows := make([]ZoneRow, len(zones))
	for i, z := range zones {
		rows[i] = ZoneRow{
			Symbol:        symbol,
			Start:         formatDate(z.StartDate),
			End:           formatDate(z.EndDate),
			Days:          z.Days(),
			Low:           Price(z.Low),
			High:          Price(z.High),
			VolatilityPct: Percent(z.Volatility),
			AvgVolume:     Volume(z.AvgVolume),
		}
	}
	return rows
}

// Price rounds to two decimal places.
func Price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Percent renders a ratio as a percentage with two decimal places.
func Percent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Mul(hundred).StringFixed(2)
}

// Volume rounds to whole shares.
func Volume(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(0)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// WriteCSV writes rows with a header line. rows must be a slice of Row or ZoneRow.
func WriteCSV(w io.Writer, rows interface{}) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Wrap(err, "failed to write csv")
	}
	return nil
}

// Document is the JSON export envelope.
type Document struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Count       int         `json:"count"`
	Patterns    []Row       `json:"patterns"`
	Zones       []ZoneRow   `json:"zones,omitempty"`
	Extra       interface{} `json:"extra,omitempty"`
}

// WriteJSON writes an indented JSON document.
func WriteJSON(w io.Writer, doc Document) error {
	if doc.Patterns == nil {
		doc.Patterns = []Row{}
	}
	doc.Count = len(doc.Patterns)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return errors.Wrap(err, "failed to write json")
	}
	return nil
}

// WriteFile exports patterns to path, choosing JSON for a .json extension and CSV
// otherwise. Parent directories are created as needed.
func WriteFile(path string, patterns []analysis.Pattern, now time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create output directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	defer f.Close()

	rows := Rows(patterns)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return WriteJSON(f, Document{GeneratedAt: now, Patterns: rows})
	}
	return WriteCSV(f, rows)
}
