package subtitle

import (
	"fmt"

	"github.com/karaforge/karaforge/internal/conv"
)

// OverlapPolicy decides between simultaneously displayed lines, which
// karaoke files use for duets and backing vocals. A chart holds one voice,
// so all but one line of each overlapping group must go.
type OverlapPolicy string

const (
	// OverlapKeepFirst keeps the earliest-starting line of each group.
	OverlapKeepFirst OverlapPolicy = "keep-first"

	// OverlapKeepLongest keeps the line with the most sung time.
	OverlapKeepLongest OverlapPolicy = "keep-longest"

	// OverlapIgnore leaves overlapping lines in place. The duration
	// adjuster will still force a structurally valid chart, but interleaved
	// voices rarely sing well.
	OverlapIgnore OverlapPolicy = "ignore"
)

// ParseOverlapPolicy maps a flag value onto a policy.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case OverlapKeepFirst, OverlapKeepLongest, OverlapIgnore:
		return OverlapPolicy(s), nil
	case "":
		return OverlapKeepFirst, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q (want keep-first, keep-longest or ignore)", s)
}

// filterOverlaps removes lines until no two remaining lines overlap in
// time. One discard per pass, then rescan, so a removal never hides a
// later overlap. Input must be sorted by start time.
func filterOverlaps(lines []assEvent, policy OverlapPolicy) ([]assEvent, []conv.Warning) {
	if policy == OverlapIgnore {
		return lines, nil
	}

	var warnings []conv.Warning
	for {
		discard := -1
		for i := 0; i < len(lines) && discard < 0; i++ {
			group := []int{i}
			for j := i + 1; j < len(lines); j++ {
				if lines[i].endMS > lines[j].startMS {
					group = append(group, j)
				} else {
					break
				}
			}
			if len(group) > 1 {
				discard = choose(lines, group, policy)
			}
		}
		if discard < 0 {
			return lines, warnings
		}

		warnings = append(warnings, conv.Warnf(conv.WarnOverlapDiscarded, lines[discard].lineNo,
			"line overlaps an earlier one and was discarded by the %s policy", policy))
		lines = append(lines[:discard:discard], lines[discard+1:]...)
	}
}

// choose picks the group member to discard.
func choose(lines []assEvent, group []int, policy OverlapPolicy) int {
	if policy == OverlapKeepFirst {
		return group[1]
	}

	// keep-longest: discard the shortest, preferring the later line on ties.
	shortest := group[0]
	for _, idx := range group[1:] {
		if lines[idx].durationMS() <= lines[shortest].durationMS() {
			shortest = idx
		}
	}
	return shortest
}
