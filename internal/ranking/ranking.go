package ranking

import "sort"

// Direction selects the sort order of TopN.
type Direction int

const (
	// Top sorts descending (gainers, net buyers).
	Top Direction = iota
	// Bottom sorts ascending (losers, net sellers).
	Bottom
)

func (d Direction) String() string {
	if d == Bottom {
		return "bottom"
	}
	return "top"
}

// TopN returns the first n items ordered by key in the given direction.
// Ties keep input order. items is not modified. n larger than the input
// returns every item; n <= 0 returns none.
func TopN[T any](items []T, key func(T) float64, n int, dir Direction) []T {
	if n <= 0 || len(items) == 0 {
		return []T{}
	}

	sorted := make([]T, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		if dir == Bottom {
			return key(sorted[i]) < key(sorted[j])
		}
		return key(sorted[i]) > key(sorted[j])
	})

	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
