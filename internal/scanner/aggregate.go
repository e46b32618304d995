package scanner

import (
	"sort"
	"time"

	"nscan/internal/analysis"
)

// Window is an inclusive range of confirmation days. A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// RecentWindow returns the days confirmed in the last n days up to yesterday.
func RecentWindow(now time.Time, days int) Window {
	to := truncateDay(now).AddDate(0, 0, -1)
	return Window{From: to.AddDate(0, 0, -days), To: to}
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := truncateDay(t)
	if !w.From.IsZero() && d.Before(truncateDay(w.From)) {
		return false
	}
	if !w.To.IsZero() && d.After(truncateDay(w.To)) {
		return false
	}
	return true
}

// Aggregate flattens per-symbol pattern lists into one report list.
//
// Patterns outside the window are dropped. For each symbol and confirmation day only
// one pattern survives: the one anchored on the latest zone, where a pattern with no
// zone counts as oldest and ties keep the earlier entry. The result is ordered by
// confirmation date, then symbol, then type. The input slices are not modified.
func Aggregate(lists [][]analysis.Pattern, w Window) []analysis.Pattern {
	type key struct {
		symbol string
		day    time.Time
	}

	var order []key
	best := make(map[key]analysis.Pattern)

	for _, list := range lists {
		for _, p := range list {
			if !w.Contains(p.ConfirmDate) {
				continue
			}
			k := key{symbol: p.Symbol, day: truncateDay(p.ConfirmDate)}
			current, seen := best[k]
			if !seen {
				order = append(order, k)
				best[k] = p
				continue
			}
			if newerZone(p, current) {
				best[k] = p
			}
		}
	}

	out := make([]analysis.Pattern, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ConfirmDate.Equal(b.ConfirmDate) {
			return a.ConfirmDate.Before(b.ConfirmDate)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Type < b.Type
	})
	return out
}

// newerZone reports whether a is anchored on a strictly later zone than b.
func newerZone(a, b analysis.Pattern) bool {
	if a.Zone == nil {
		return false
	}
	if b.Zone == nil {
		return true
	}
	return a.Zone.EndDate.After(b.Zone.EndDate)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
