package engine

import "unicode/utf8"

// withinLenDelta reports whether the rune lengths of a and b differ by at
// most delta. Cheap pre-filter before the edit-distance computation.
func withinLenDelta(a, b string, delta int) bool {
	diff := utf8.RuneCountInString(a) - utf8.RuneCountInString(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

// editDistance computes the Levenshtein distance between a and b with unit
// cost for insert, delete, and substitute, using a single-row DP table.
func editDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cur := row[j]
			if ra[i-1] == rb[j-1] {
				row[j] = prev
			} else {
				row[j] = 1 + min3(prev, row[j-1], row[j])
			}
			prev = cur
		}
	}
	return row[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
