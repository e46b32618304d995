package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nscan/internal/analysis"
)

func samplePattern() analysis.Pattern {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rr := 1.5384615
	return analysis.Pattern{
		Symbol:            "SH600000",
		Type:              analysis.PatternPositiveN,
		Classification:    analysis.PatternPositiveN.Classification(),
		S1:                analysis.Point{Index: 21, Date: base, Price: 10.8},
		H1:                analysis.Point{Index: 22, Date: base.AddDate(0, 0, 1), Price: 13},
		S2:                analysis.Point{Index: 23, Date: base.AddDate(0, 0, 2), Price: 12},
		H2:                analysis.Point{Index: 25, Date: base.AddDate(0, 0, 4), Price: 13.5},
		FirstLeg:          2.2,
		Retracement:       0.454545,
		BreakoutRatio:     0.0384615,
		Vol1:              4000,
		Vol2:              2500,
		Vol3:              5000,
		ConfirmDate:       base.AddDate(0, 0, 4),
		Zone:              &analysis.ConsolidationZone{StartIndex: 6, EndIndex: 21, StartDate: base.AddDate(0, 0, -15), EndDate: base, Low: 9.9, High: 12, Volatility: 0.2121},
		Entry:             13.5,
		Stop:              11.76,
		Target:            16.8,
		RiskReward:        &rr,
		SuggestedBuyDate:  base.AddDate(0, 0, 2),
		SuggestedBuyPrice: 12.2,
	}
}

func TestNewRow(t *testing.T) {
	row := NewRow(samplePattern())

	checks := map[string][2]string{
		"entry":        {row.Entry, "13.50"},
		"stop":         {row.Stop, "11.76"},
		"target":       {row.Target, "16.80"},
		"risk_reward":  {row.RiskReward, "1.54"},
		"retracement":  {row.RetracementPct, "45.45"},
		"breakout":     {row.BreakoutPct, "3.85"},
		"vol1":         {row.Vol1, "4000"},
		"zone_end":     {row.ZoneEnd, "2024-03-01"},
		"confirm_date": {row.ConfirmDate, "2024-03-05"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
}

func TestNewRow_NoZoneNoRiskReward(t *testing.T) {
	p := samplePattern()
	p.Zone = nil
	p.RiskReward = nil
	row := NewRow(p)
	if row.ZoneStart != "" || row.ZoneHigh != "" || row.RiskReward != "" {
		t.Errorf("row = %+v, want empty zone and risk reward", row)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Rows([]analysis.Pattern{samplePattern()})); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header plus one row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "symbol,type,classification,confirm_date") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "SH600000,positive") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteCSV_EmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Rows(nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "symbol,") {
		t.Errorf("output = %q, want a header", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)
	if err := WriteJSON(&buf, Document{GeneratedAt: now, Patterns: Rows([]analysis.Pattern{samplePattern()})}); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Count    int                 `json:"count"`
		Patterns []map[string]string `json:"patterns"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc.Count != 1 || doc.Patterns[0]["entry"] != "13.50" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	csvPath := filepath.Join(dir, "out", "patterns.csv")
	if err := WriteFile(csvPath, []analysis.Pattern{samplePattern()}, now); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil || !strings.HasPrefix(string(data), "symbol,") {
		t.Errorf("csv file = %q, %v", data, err)
	}

	jsonPath := filepath.Join(dir, "patterns.JSON")
	if err := WriteFile(jsonPath, nil, now); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(jsonPath)
	if err != nil || !strings.Contains(string(data), `"patterns": []`) {
		t.Errorf("json file = %q, %v", data, err)
	}
}

func TestZoneRows(t *testing.T) {
	p := samplePattern()
	rows := ZoneRows("SH600000", []analysis.ConsolidationZone{*p.Zone})
	if len(rows) != 1 || rows[0].Days != 16 || rows[0].VolatilityPct != "21.21" {
		t.Errorf("rows = %+v", rows)
	}
}
