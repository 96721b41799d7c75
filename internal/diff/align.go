package diff

import "sort"

// pair is one aligned position: index in old, index in new.
type pair struct{ old, new int }

// align returns the longest common subsequence of two sequences of unique
// keys as index pairs. With unique keys the LCS is the longest increasing
// run of old positions taken in new order, which runs in O(n log n).
func align(old, new []string) []pair {
	pos := make(map[string]int, len(old))
	for i, k := range old {
		pos[k] = i
	}
	var seq []pair
	for j, k := range new {
		if i, ok := pos[k]; ok {
			seq = append(seq, pair{i, j})
		}
	}
	if len(seq) == 0 {
		return nil
	}

	// tails[l] is the index in seq of the smallest tail of an increasing run of length l+1.
	tails := []int{}
	prev := make([]int, len(seq))
	for s, p := range seq {
		l := sort.Search(len(tails), func(x int) bool { return seq[tails[x]].old >= p.old })
		if l > 0 {
			prev[s] = tails[l-1]
		} else {
			prev[s] = -1
		}
		if l == len(tails) {
			tails = append(tails, s)
		} else {
			tails[l] = s
		}
	}

	out := make([]pair, len(tails))
	for s, l := tails[len(tails)-1], len(tails)-1; l >= 0; s, l = prev[s], l-1 {
		out[l] = seq[s]
	}
	return out
}

// columns splits two headers into common, added and removed names.
// Cells are matched by column name, so a moved column stays common.
// Common columns follow the new header order.
func columns(old, new []string) (common, added, removed []string) {
	inOld := make(map[string]bool, len(old))
	for _, c := range old {
		inOld[c] = true
	}
	inNew := make(map[string]bool, len(new))
	for _, c := range new {
		inNew[c] = true
		if inOld[c] {
			common = append(common, c)
		} else {
			added = append(added, c)
		}
	}
	for _, c := range old {
		if !inNew[c] {
			removed = append(removed, c)
		}
	}
	return common, added, removed
}
