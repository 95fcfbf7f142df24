// Package strategy defines the external-collaborator protocols §6 names
// — NodeResolutionStrategy, ModelResolutionStrategy, ConflictResolver —
// plus two trivial, pure-policy implementations (NoOpResolver,
// AutoResolver) a caller can use without building a real UI-backed
// strategy. Nothing here performs I/O; every method is a pure decision
// over data the Resolver already produced.
package strategy

import (
	"context"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
)

// ResolvedNodePackage is what a NodeResolutionStrategy returns for one
// node type the Resolver left unresolved or ambiguous. MatchType
// "optional" records a deliberate skip rather than an actual match.
type ResolvedNodePackage struct {
	PackageID string
	MatchType string
}

// NodeResolutionStrategy lets an external collaborator pick among
// candidate packages for a node type the Resolver couldn't settle on its
// own. A nil result (with a nil error) means "leave unresolved" — not an
// error condition.
type NodeResolutionStrategy interface {
	ResolveUnknownNode(ctx context.Context, nodeType string, candidates []string) (*ResolvedNodePackage, error)
}

// ResolvedModel is what a ModelResolutionStrategy returns for one dedup
// group: a concrete resolution, a download intent (both carried in
// Resolution), or a deliberate optional-unresolved (Resolution nil,
// IsOptional true).
type ResolvedModel struct {
	Resolution *analysiscache.ModelResolution
	IsOptional bool
}

// ModelResolutionStrategy lets an external collaborator settle one model
// dedup group the Resolver left unresolved or ambiguous. A nil result
// means "leave unresolved" without marking it optional.
type ModelResolutionStrategy interface {
	ResolveModel(ctx context.Context, group analysiscache.ModelGroup, candidates []string) (*ResolvedModel, error)
}

// ConflictKind names which of the three merge conflict categories a
// ConflictResolver is being asked to settle.
type ConflictKind string

const (
	ConflictWorkflow   ConflictKind = "workflow"
	ConflictNode       ConflictKind = "node"
	ConflictDependency ConflictKind = "dependency"
)

// ConflictChoice is the outcome a ConflictResolver returns for a single
// conflict: keep the base side, keep the incoming (target) side, or
// drop the entry entirely.
type ConflictChoice string

const (
	TakeBase   ConflictChoice = "take_base"
	TakeTarget ConflictChoice = "take_target"
	SkipEntry  ConflictChoice = "skip"
)

// ConflictResolver settles merge conflicts encountered while combining
// two manifests, one conflict at a time, identified by name.
type ConflictResolver interface {
	Resolve(ctx context.Context, kind ConflictKind, name string) (ConflictChoice, error)
}
