package report

import (
	"math"
	"slices"
)

// Tally counts categorical values and remembers the order they were first seen.
type Tally struct {
	order  []string
	counts map[string]int
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Add counts one occurrence of value.
func (t *Tally) Add(value string) {
	if _, seen := t.counts[value]; !seen {
		t.order = append(t.order, value)
	}
	t.counts[value]++
}

// Top returns up to n values by descending count. Equal counts keep first-seen order.
func (t *Tally) Top(n int) []string {
	ranked := slices.Clone(t.order)
	slices.SortStableFunc(ranked, func(a, b string) int {
		return t.counts[b] - t.counts[a]
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, value := range values {
		total += value
	}
	return total / float64(len(values))
}
