package resolver

import (
	"regexp"
	"sort"
	"strings"
)

// similarityRatio is a Ratcliff-Obershelp/SequenceMatcher-equivalent
// similarity score in [0, 1]: twice the total length of matching blocks
// over the combined length of both strings. No example repo or common Go
// ecosystem package ships a maintained port of this algorithm, so it is
// implemented directly here rather than pulled in as an unvetted
// dependency for a well-specified, self-contained routine.
func similarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	matched := matchingBlockLength(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchingBlockLength recursively finds the longest common substring and
// sums its length with the matching-block lengths of the text either
// side of it — the classic Ratcliff-Obershelp recursion.
func matchingBlockLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	aStart, bStart, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}
	left := matchingBlockLength(a[:aStart], b[:bStart])
	right := matchingBlockLength(a[aStart+length:], b[bStart+length:])
	return left + length + right
}

func longestCommonSubstring(a, b string) (aStart, bStart, length int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	bestA, bestB := 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
					bestA, bestB = i-best, j-best
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return bestA, bestB, best
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			out[f] = true
		}
	}
	return out
}

func keywordOverlap(query, pkgText string) float64 {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	pTokens := tokenize(pkgText)
	hits := 0
	for t := range qTokens {
		if pTokens[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(qTokens))
}

var fragmentSplitRe = regexp.MustCompile(`[-_]`)

// hintBonus implements the highest-scoring hint-pattern match §4.6
// defines over a query of the shape ComfyUI node-picker suggestions
// take: "Node Name (hint)", "Node Name | Hint", "Node Name - Hint",
// "Node Name: Hint", or a package-id fragment appearing verbatim inside
// the node type name.
func hintBonus(query, nodeType, pkgID string) float64 {
	lowerQuery := strings.ToLower(query)
	lowerPkg := strings.ToLower(pkgID)

	if hint, ok := parenHint(lowerQuery); ok {
		if hint == lowerPkg {
			return 0.70
		}
		if strings.Contains(hint, lowerPkg) || strings.Contains(lowerPkg, hint) {
			return 0.60
		}
	}
	if idx := strings.Index(lowerQuery, " | "); idx >= 0 {
		hint := strings.TrimSpace(lowerQuery[idx+3:])
		if hint == lowerPkg || strings.Contains(hint, lowerPkg) {
			return 0.55
		}
	}
	for _, sep := range []string{" - ", ": "} {
		if idx := strings.Index(lowerQuery, sep); idx >= 0 {
			hint := strings.TrimSpace(lowerQuery[idx+len(sep):])
			if hint == lowerPkg || strings.Contains(hint, lowerPkg) {
				return 0.50
			}
		}
	}
	if nodeType != "" {
		lowerType := strings.ToLower(nodeType)
		for _, frag := range fragmentSplitRe.Split(lowerPkg, -1) {
			if len(frag) >= 5 && strings.Contains(lowerType, frag) {
				return 0.40
			}
		}
	}
	return 0
}

func parenHint(s string) (string, bool) {
	open := strings.LastIndex(s, "(")
	close := strings.LastIndex(s, ")")
	if open < 0 || close < 0 || close < open {
		return "", false
	}
	return strings.TrimSpace(s[open+1 : close]), true
}

// SearchPackages ranks every package in the mirror against query using
// the §4.6 heuristic: base string similarity against id and display
// name, a keyword-overlap term, the best-matching hint-pattern bonus, and
// a flat bonus for packages the environment already has installed.
// Results below the 0.3 threshold are dropped; the rest are sorted by
// score descending and capped at limit (0 means unlimited).
func (c *Context) SearchPackages(query string, installedOnly, includeRegistry bool, limit int) []SearchResult {
	var results []SearchResult
	for _, pkg := range c.Mirror.All() {
		_, isInstalled := c.InstalledPackages[pkg.ID]
		if installedOnly && !isInstalled {
			continue
		}
		if !includeRegistry && !isInstalled {
			continue
		}

		score := similarityRatio(strings.ToLower(query), strings.ToLower(pkg.ID))
		if nameScore := similarityRatio(strings.ToLower(query), strings.ToLower(pkg.DisplayName)); nameScore > score {
			score = nameScore
		}
		score += keywordOverlap(query, pkg.ID+" "+pkg.DisplayName+" "+pkg.Description) * 0.20
		score += hintBonus(query, "", pkg.ID)
		if isInstalled {
			score += 0.10
		}
		if score > 1.0 {
			score = 1.0
		}
		if score < 0.3 {
			continue
		}
		results = append(results, SearchResult{Package: pkg, Score: score, Confidence: confidenceLabel(score)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Package.ID < results[j].Package.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func confidenceLabel(score float64) string {
	switch {
	case score >= 0.85:
		return "high"
	case score >= 0.65:
		return "good"
	case score >= 0.45:
		return "possible"
	default:
		return "low"
	}
}
