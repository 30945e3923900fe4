package services

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// didYouMean returns a " (did you mean X?)" hint for the closest candidate,
// or "" when nothing is close enough.
func didYouMean(input string, candidates []string) string {
	if input == "" || len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindNormalizedFold(input, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return fmt.Sprintf(" (did you mean %s?)", ranks[0].Target)
	}

	best, bestDist := "", 3
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(input, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %s?)", best)
}
