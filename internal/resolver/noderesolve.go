package resolver

import (
	"sort"
	"strings"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/noderegistry"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
)

// typeOnlySentinel is the signature-index key suffix a mapping is stored
// under when a package registers a node type with no distinguishing input
// signature — the tier-3 fallback before fuzzy matching kicks in.
const typeOnlySentinel = "_"

// inputSignature builds the deterministic "input signature" half of a
// mapping key from a node's connected input socket names: the set of
// socket names, sorted and comma-joined. Two nodes of the same type that
// wire up the same sockets produce the same signature regardless of what
// those sockets are connected to.
func inputSignature(inputs map[string]any) string {
	if len(inputs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func signatureKey(nodeType, signature string) string {
	return nodeType + "::" + signature
}

// ResolveNode resolves one unique node type through the five tiers §4.6
// defines: session cache, custom override, properties cnr_id, registry
// lookup, unresolved. node carries a representative occurrence of the
// type (inputs/properties are assumed uniform across all occurrences of
// one type within a workflow, as ComfyUI node defs guarantee).
func (c *Context) ResolveNode(node workflow.Node) (*analysiscache.NodeResolution, *analysiscache.NodeAmbiguity) {
	nodeType := node.Type

	if pkgID, ok := c.Session.Lookup(nodeType); ok {
		return &analysiscache.NodeResolution{
			NodeType: nodeType, PackageID: pkgID, MatchType: MatchSession,
		}, nil
	}

	if entry, ok := c.CustomNodeMap[nodeType]; ok {
		if entry.Skip {
			return nil, nil
		}
		c.Session.Record(nodeType, entry.PackageID)
		return &analysiscache.NodeResolution{
			NodeType: nodeType, PackageID: entry.PackageID, MatchType: MatchOverride,
		}, nil
	}

	if cnrID, ok := node.CNRID(); ok {
		if _, ok := c.Mirror.Package(cnrID); ok {
			var versions []string
			if ver, ok := node.Ver(); ok {
				versions = []string{ver}
			}
			c.Session.Record(nodeType, cnrID)
			return &analysiscache.NodeResolution{
				NodeType: nodeType, PackageID: cnrID, MatchType: MatchProperties, Versions: versions,
			}, nil
		}
	}

	if res, amb := c.resolveFromRegistry(nodeType, node.Inputs); res != nil || amb != nil {
		if res != nil {
			c.Session.Record(nodeType, res.PackageID)
		}
		return res, amb
	}

	return nil, nil
}

// resolveFromRegistry runs the registry tier's three internal attempts in
// order: exact signature, type-only sentinel, substring fuzzy.
func (c *Context) resolveFromRegistry(nodeType string, inputs map[string]any) (*analysiscache.NodeResolution, *analysiscache.NodeAmbiguity) {
	sig := inputSignature(inputs)
	if sig != "" {
		if mapping, ok := c.Mirror.MappingFor(signatureKey(nodeType, sig)); ok {
			return &analysiscache.NodeResolution{
				NodeType: nodeType, PackageID: mapping.PackageID,
				MatchType: MatchRegistry, Versions: sortVersionsDescending(mapping.Versions),
			}, nil
		}
	}

	if mapping, ok := c.Mirror.MappingFor(signatureKey(nodeType, typeOnlySentinel)); ok {
		return &analysiscache.NodeResolution{
			NodeType: nodeType, PackageID: mapping.PackageID,
			MatchType: MatchRegistry, Versions: sortVersionsDescending(mapping.Versions),
		}, nil
	}

	candidates := c.fuzzyNodeCandidates(nodeType)
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &analysiscache.NodeResolution{
			NodeType: nodeType, PackageID: candidates[0].PackageID,
			MatchType: MatchRegistry, Versions: sortVersionsDescending(candidates[0].Versions),
		}, nil
	default:
		ids := make([]string, len(candidates))
		for i, ref := range candidates {
			ids[i] = ref.PackageID
		}
		sort.Strings(ids)
		return nil, &analysiscache.NodeAmbiguity{NodeType: nodeType, Candidates: dedupStrings(ids)}
	}
}

// fuzzyNodeCandidates collects the distinct packages any signature-index
// key matches, substring-either-way against nodeType, per the original's
// resolve_single_node fuzzy strategy.
func (c *Context) fuzzyNodeCandidates(nodeType string) []noderegistry.PackageRef {
	needleLower := strings.ToLower(nodeType)
	seen := map[string]bool{}
	var refs []noderegistry.PackageRef
	// FuzzyMappings("") matches every key (Contains(_, "") is always
	// true) — this tier needs to compare every mapped type against
	// nodeType both ways, not filter by a substring of the key itself.
	for key, mapping := range c.Mirror.FuzzyMappings("") {
		mappedType := strings.SplitN(key, "::", 2)[0]
		mappedLower := strings.ToLower(mappedType)
		if !strings.Contains(needleLower, mappedLower) && !strings.Contains(mappedLower, needleLower) {
			continue
		}
		if seen[mapping.PackageID] {
			continue
		}
		seen[mapping.PackageID] = true
		refs = append(refs, noderegistry.PackageRef{PackageID: mapping.PackageID, Versions: mapping.Versions})
	}
	return refs
}

func dedupStrings(in []string) []string {
	out := make([]string, 0, len(in))
	var last string
	for i, s := range in {
		if i == 0 || s != last {
			out = append(out, s)
		}
		last = s
	}
	return out
}
