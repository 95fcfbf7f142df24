package resolver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// sortVersionsDescending orders a mapping's version list newest-first so
// callers (the Progressive Writer choosing which version to install, a
// search result displaying "latest") don't have to re-parse semver
// themselves. Entries that don't parse as semver keep their relative
// order and sort after every valid one, since a malformed or
// non-semver tag carries no ordering information.
func sortVersionsDescending(versions []string) []string {
	if len(versions) < 2 {
		return versions
	}
	out := append([]string(nil), versions...)
	parsed := make(map[string]*semver.Version, len(out))
	for _, v := range out {
		if sv, err := semver.NewVersion(v); err == nil {
			parsed[v] = sv
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		vi, oki := parsed[out[i]]
		vj, okj := parsed[out[j]]
		if oki && okj {
			return vi.GreaterThan(vj)
		}
		if oki != okj {
			return oki // parsed versions sort before unparsed ones
		}
		return false
	})
	return out
}
