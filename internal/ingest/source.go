package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nscan/internal/errors"
	"nscan/internal/models"
)

// DefaultPattern matches TDX day exports.
const DefaultPattern = "*.txt"

// DirSource reads one export per symbol from a directory. The symbol is the file
// name without its extension.
type DirSource struct {
	Dir     string
	Pattern string
}

// NewDirSource creates a directory source. An empty pattern selects DefaultPattern.
func NewDirSource(dir, pattern string) *DirSource {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &DirSource{Dir: dir, Pattern: pattern}
}

// Symbols lists the symbols available in the directory in lexical order.
func (d *DirSource) Symbols() ([]string, error) {
	info, err := os.Stat(d.Dir)
	if err != nil {
		return nil, errors.NewDataError("dir", d.Dir, "cannot open data directory", errors.ErrDataNotFound)
	}
	if !info.IsDir() {
		return nil, errors.NewDataError("dir", d.Dir, "not a directory", errors.ErrDataNotFound)
	}

	matches, err := filepath.Glob(filepath.Join(d.Dir, d.Pattern))
	if err != nil {
		return nil, errors.Wrap(err, "invalid file pattern")
	}

	symbols := make([]string, 0, len(matches))
	for _, m := range matches {
		symbols = append(symbols, symbolFromPath(m))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Load reads and validates the series for one symbol.
func (d *DirSource) Load(ctx context.Context, symbol string) (*models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := d.pathFor(symbol)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataError("dir", symbol, "open failed", err)
	}
	defer f.Close()

	bars, err := ReadBars(f, symbol)
	if err != nil {
		return nil, err
	}
	return models.NewSeries(symbol, bars)
}

func (d *DirSource) pathFor(symbol string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.Dir, d.Pattern))
	if err != nil {
		return "", errors.Wrap(err, "invalid file pattern")
	}
	for _, m := range matches {
		if symbolFromPath(m) == symbol {
			return m, nil
		}
	}
	return "", errors.NewDataError("dir", symbol, "no export file", errors.ErrSymbolNotFound)
}

func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
