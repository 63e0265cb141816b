package sheets

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var cellPattern = regexp.MustCompile(`^\$?[A-Za-z]{1,3}\$?([0-9]+)$`)

// ParseRowFromRange extracts the first row index from a range descriptor such
// as "'Tab'!A12:F12" or "Tab!A12".
func ParseRowFromRange(descriptor string) (int, error) {
	ref := strings.TrimSpace(descriptor)
	if idx := strings.LastIndex(ref, "!"); idx >= 0 {
		ref = ref[idx+1:]
	}
	if idx := strings.Index(ref, ":"); idx >= 0 {
		ref = ref[:idx]
	}
	match := cellPattern.FindStringSubmatch(ref)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrRangeFormat, descriptor)
	}
	row, err := strconv.Atoi(match[1])
	if err != nil || row < 1 {
		return 0, fmt.Errorf("%w: %q", ErrRangeFormat, descriptor)
	}
	return row, nil
}

// DescendingRows de-duplicates 1-based row indices and orders them highest
// first. Structural deletes must always consume rows in this order: removing a
// row shifts every row below it up by one, so any ascending step would hit a
// different logical row than intended.
func DescendingRows(rows []int) ([]int, error) {
	seen := make(map[int]struct{}, len(rows))
	out := make([]int, 0, len(rows))
	for _, row := range rows {
		if row < 1 {
			return nil, fmt.Errorf("sheets: invalid row %d", row)
		}
		if _, ok := seen[row]; ok {
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}
