package resolver

import lru "github.com/hashicorp/golang-lru/v2"

const sessionCapacity = 512

// Session is the in-process, per-resolution-pass cache the node resolver
// consults before the registry mirror: once a node type resolves (by any
// tier), every later occurrence of that exact type within the same pass
// resolves instantly from here instead of re-walking the mirror.
type Session struct {
	nodeTypes *lru.Cache[string, string] // node type -> package id
}

// NewSession returns an empty session cache.
func NewSession() *Session {
	c, _ := lru.New[string, string](sessionCapacity)
	return &Session{nodeTypes: c}
}

// Lookup returns the package id previously recorded for nodeType, if any.
func (s *Session) Lookup(nodeType string) (string, bool) {
	return s.nodeTypes.Get(nodeType)
}

// Record remembers that nodeType resolved to packageID for the rest of
// this pass.
func (s *Session) Record(nodeType, packageID string) {
	s.nodeTypes.Add(nodeType, packageID)
}
