package generic

import (
	"sort"
	"time"
)

// =============================================================================
// GROUPS - Ordered accumulator keyed by group label
// =============================================================================

// Groups is an insertion-ordered map from group key to Totals.
//
// GetOrCreate is the only place a zero-valued group is created, so every key
// present in Groups has received at least one in-scope event and the sum of
// all groups equals the run's totals.
type Groups struct {
	keys   []string
	totals map[string]*Totals
}

func NewGroups() *Groups {
	return &Groups{totals: make(map[string]*Totals)}
}

// GetOrCreate returns the accumulator for key, creating a zero entry on
// first use.
func (g *Groups) GetOrCreate(key string) *Totals {
	if t, ok := g.totals[key]; ok {
		return t
	}
	t := &Totals{}
	g.totals[key] = t
	g.keys = append(g.keys, key)
	return t
}

// Get returns a copy of the totals for key.
func (g *Groups) Get(key string) (Totals, bool) {
	if g == nil {
		return Totals{}, false
	}
	t, ok := g.totals[key]
	if !ok {
		return Totals{}, false
	}
	return *t, true
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	if g == nil {
		return 0
	}
	return len(g.keys)
}

// Keys returns group keys in discovery order. Discovery order is not part
// of the contract; use SortedKeys for display.
func (g *Groups) Keys() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.keys...)
}

// SortedKeys orders keys chronologically when they are month names and
// alphabetically otherwise. UnknownLabel always sorts last.
func (g *Groups) SortedKeys() []string {
	keys := g.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if (a == UnknownLabel) != (b == UnknownLabel) {
			return b == UnknownLabel
		}
		ma, aok := monthIndex[a]
		mb, bok := monthIndex[b]
		if aok && bok {
			return ma < mb
		}
		return a < b
	})
	return keys
}

// Sum adds up every group. It equals the run's totals.
func (g *Groups) Sum() Totals {
	var sum Totals
	if g == nil {
		return sum
	}
	for _, k := range g.keys {
		sum = sum.add(g.totals[k].Income, g.totals[k].Expenses)
	}
	return sum
}

var monthIndex = func() map[string]time.Month {
	m := make(map[string]time.Month, 12)
	for month := time.January; month <= time.December; month++ {
		m[month.String()] = month
	}
	return m
}()
