// Package ingest loads daily bar exports (TDX-style text/CSV files) into series.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"nscan/internal/errors"
	"nscan/internal/models"
)

// headerAliases maps recognised column titles to canonical names.
var headerAliases = map[string]string{
	"日期": "date", "date": "date", "时间": "date",
	"开盘": "open", "open": "open",
	"最高": "high", "high": "high",
	"最低": "low", "low": "low",
	"收盘": "close", "close": "close",
	"成交量": "volume", "volume": "volume",
}

var requiredColumns = []string{"date", "high", "low", "close", "volume"}

var dateLayouts = []string{"2006/01/02", "2006-01-02", "20060102", "2006/1/2", "2006-1-2"}

// barRecord is one row of an export after header normalisation.
type barRecord struct {
	Date   tradeDate `csv:"date"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`
}

type tradeDate struct {
	time.Time
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (d *tradeDate) UnmarshalCSV(s string) error {
	t, ok := parseDate(s)
	if !ok {
		return fmt.Errorf("unrecognised date %q", s)
	}
	d.Time = t
	return nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Decode converts raw file content to UTF-8. UTF-8 with or without a byte order
// mark is passed through; anything else is decoded as GB18030, which covers GBK
// and GB2312.
func Decode(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
		if err != nil {
			return "", errors.Wrap(errors.ErrUnsupportedEncoding, err.Error())
		}
		return string(text), nil
	}

	text, _, err := transform.Bytes(simplifiedchinese.GB18030.NewDecoder(), raw)
	if err != nil {
		return "", errors.Wrap(errors.ErrUnsupportedEncoding, err.Error())
	}
	return string(text), nil
}

// ReadBars parses an export and returns its bars sorted by date.
//
// Blank lines and lines starting with '#' are ignored. A leading line that is
// followed by a non-date line is treated as an instrument banner and dropped.
// Fields may be tab or comma separated. Body rows whose date does not parse, such
// as a trailing source footer, are skipped.
func ReadBars(r io.Reader, symbol string) ([]models.Bar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewDataError("csv", symbol, "read failed", err)
	}
	text, err := Decode(raw)
	if err != nil {
		return nil, errors.NewDataError("csv", symbol, "decode failed", err)
	}

	lines := contentLines(text)
	if len(lines) == 0 {
		return nil, errors.NewDataError("csv", symbol, "empty file", errors.ErrInsufficientData)
	}

	sep := ','
	if strings.Contains(lines[0], "\t") || (len(lines) > 1 && strings.Contains(lines[1], "\t")) {
		sep = '\t'
	}
	if len(lines) > 1 && !startsWithDate(lines[1], sep) {
		lines = lines[1:]
	}

	reader := &normalizingReader{r: csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))}
	reader.r.Comma = sep
	reader.r.FieldsPerRecord = -1
	reader.r.LazyQuotes = true
	reader.r.TrimLeadingSpace = true

	var records []barRecord
	if err := gocsv.UnmarshalCSV(reader, &records); err != nil {
		if errors.Is(err, errors.ErrMissingColumn) {
			return nil, errors.NewDataError("csv", symbol, "bad header", err)
		}
		return nil, errors.NewDataError("csv", symbol, "parse failed", err)
	}

	bars := make([]models.Bar, 0, len(records))
	for _, rec := range records {
		open := rec.Open
		if open == 0 {
			open = rec.Close
		}
		bars = append(bars, models.Bar{
			Date:   rec.Date.Time,
			Open:   open,
			High:   rec.High,
			Low:    rec.Low,
			Close:  rec.Close,
			Volume: rec.Volume,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	return bars, nil
}

func contentLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func startsWithDate(line string, sep rune) bool {
	first := line
	if i := strings.IndexRune(line, sep); i >= 0 {
		first = line[:i]
	}
	_, ok := parseDate(first)
	return ok
}

// normalizingReader feeds gocsv with canonical header names and drops body rows
// whose date column does not parse.
type normalizingReader struct {
	r       *csv.Reader
	header  bool
	dateCol int
}

func (n *normalizingReader) Read() ([]string, error) {
	for {
		row, err := n.r.Read()
		if err != nil {
			return nil, err
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}

		if !n.header {
			n.header = true
			if err := n.normalizeHeader(row); err != nil {
				return nil, err
			}
			return row, nil
		}

		if n.dateCol >= len(row) {
			continue
		}
		if _, ok := parseDate(row[n.dateCol]); !ok {
			continue
		}
		return row, nil
	}
}

func (n *normalizingReader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		row, err := n.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (n *normalizingReader) normalizeHeader(row []string) error {
	seen := make(map[string]bool, len(row))
	for i, title := range row {
		if canonical, ok := headerAliases[strings.ToLower(title)]; ok {
			row[i] = canonical
			seen[canonical] = true
			if canonical == "date" {
				n.dateCol = i
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(errors.ErrMissingColumn, "%s", strings.Join(missing, ", "))
	}
	return nil
}
