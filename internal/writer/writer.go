package writer

import (
	"context"
	"sort"

	"github.com/comfygit-ai/comfygit-core/engine/core"
	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/modelrepo"
	"github.com/comfygit-ai/comfygit-core/internal/resolver"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
	"github.com/comfygit-ai/comfygit-core/pkg/logger"
)

// Writer applies one user decision at a time to a manifest already loaded
// by its caller, saving after every decision so a Ctrl-C between
// questions never loses progress and never leaves a torn write. It does
// not own the Manifest's lifecycle — the caller Loads it once at the
// start of a fix-resolution pass and keeps it across every decision,
// consistent with the single-writer-per-manifest concurrency rule.
type Writer struct {
	Store  *manifest.Store
	Repo   *modelrepo.Repository
	Cache  *analysiscache.Cache
	Config *config.EngineConfig

	Environment string
	pending     []PendingPathUpdate
}

// New returns a Writer for one environment's manifest/model-repository/
// cache triple. Cache may be nil when download-intent invalidation isn't
// needed (e.g. a dry-run preview).
func New(store *manifest.Store, repo *modelrepo.Repository, cache *analysiscache.Cache, cfg *config.EngineConfig, environment string) *Writer {
	return &Writer{Store: store, Repo: repo, Cache: cache, Config: cfg, Environment: environment}
}

// ApplyNodeDecision records a node-type resolution: the custom_node_map
// entry and the workflow's nodes list are updated together, then the
// manifest is saved before the next question is asked.
func (w *Writer) ApplyNodeDecision(ctx context.Context, m *manifest.Manifest, d NodeDecision) error {
	decisionID := core.MustNewID()
	entry, ok := m.Workflows[d.WorkflowName]
	if !ok {
		return core.NewError(nil, core.ErrWorkflowMissing, map[string]any{"workflow": d.WorkflowName})
	}
	if entry.CustomNodeMap == nil {
		entry.CustomNodeMap = map[string]manifest.CustomNodeMapEntry{}
	}
	entry.CustomNodeMap[d.NodeType] = manifest.CustomNodeMapEntry{PackageID: d.PackageID, Skip: d.Skip}
	if !d.Skip && d.PackageID != "" {
		entry.Nodes = appendUnique(entry.Nodes, d.PackageID)
	}
	m.Workflows[d.WorkflowName] = entry

	if err := w.Store.Save(ctx, m); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("applied node decision",
		"decision_id", decisionID.String(), "workflow", d.WorkflowName, "node_type", d.NodeType)
	return nil
}

// ApplyModelDecision builds one WorkflowModel for a dedup group and
// inserts it into the workflow's models list, replacing any prior entry
// for the same filename regardless of that entry's status — the
// root-cause fix for a model appearing as both resolved and unresolved
// at once. A resolved group also gets (or updates) its global models
// table row; a download intent persists its source and target path and
// invalidates this workflow's cache entry, since the next analysis pass
// must re-derive dependencies against the now-different manifest.
func (w *Writer) ApplyModelDecision(ctx context.Context, m *manifest.Manifest, d ModelDecision) error {
	decisionID := core.MustNewID()
	entry, ok := m.Workflows[d.WorkflowName]
	if !ok {
		return core.NewError(nil, core.ErrWorkflowMissing, map[string]any{"workflow": d.WorkflowName})
	}

	category := categoryForNodeType(w.Config, d.Group.NodeType, d.Group.Filename)
	criticality := defaultCriticalityFor(category)
	if d.Optional {
		criticality = manifest.CriticalityOptional
	}

	wm := manifest.WorkflowModel{
		Filename:    d.Group.Filename,
		Category:    category,
		Criticality: criticality,
		Status:      manifest.StatusUnresolved,
		Nodes:       toManifestRefs(d.Group.Refs),
	}

	switch {
	case d.Resolution == nil:
		// leave unresolved, no sources — an explicit skip.

	case d.Resolution.MatchType == resolver.MatchDownloadIntent:
		wm.Sources = nil
		if d.Resolution.Source != nil {
			wm.Sources = []manifest.ModelSource{*d.Resolution.Source}
		}
		wm.RelativePath = d.Resolution.TargetPath
		if w.Cache != nil {
			if err := w.Cache.Invalidate(ctx, w.Environment, d.WorkflowName); err != nil {
				return err
			}
		}

	default:
		wm.Status = manifest.StatusResolved
		wm.Hash = d.Resolution.Hash
		sources, err := w.sourcesForHash(ctx, d.Resolution.Hash)
		if err != nil {
			return err
		}
		wm.Sources = sources
		if err := w.upsertGlobalModel(ctx, m, d.Resolution.Hash, category, sources); err != nil {
			return err
		}
	}

	entry.Models = replaceByFilename(entry.Models, wm)
	m.Workflows[d.WorkflowName] = entry

	if err := w.Store.Save(ctx, m); err != nil {
		return err
	}

	// Only a resolved group has an on-disk path worth writing back into
	// the widget value; a download intent has no file yet, and a plain
	// unresolved/skip leaves the widget exactly as authored.
	if wm.Status == manifest.StatusResolved {
		for _, ref := range d.Group.Refs {
			w.queuePathUpdate(d.WorkflowName, ref, wm)
		}
	}
	logger.FromContext(ctx).Info("applied model decision",
		"decision_id", decisionID.String(), "workflow", d.WorkflowName, "filename", d.Group.Filename)
	return nil
}

func (w *Writer) sourcesForHash(ctx context.Context, hash string) ([]manifest.ModelSource, error) {
	srcs, err := w.Repo.GetSources(ctx, hash)
	if err != nil {
		return nil, err
	}
	out := make([]manifest.ModelSource, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, manifest.ModelSource{URL: s.URL, Kind: s.Kind})
	}
	return out, nil
}

func (w *Writer) upsertGlobalModel(ctx context.Context, m *manifest.Manifest, hash, category string, sources []manifest.ModelSource) error {
	model, ok, err := w.Repo.FindByHash(ctx, hash)
	if err != nil {
		return err
	}
	if !ok {
		return core.NewError(nil, core.ErrNotFound, map[string]any{"hash": hash})
	}
	locs, err := w.Repo.GetLocations(ctx, hash)
	if err != nil {
		return err
	}
	relativePath := model.Filename
	if len(locs) > 0 {
		relativePath = locs[0].RelativePath
	}
	m.GlobalModels[hash] = manifest.GlobalModel{
		Hash:         hash,
		Filename:     model.Filename,
		SizeBytes:    model.SizeBytes,
		RelativePath: relativePath,
		Category:     category,
		Sources:      sources,
	}
	return nil
}

// queuePathUpdate records the workflow-JSON widget rewrite this decision
// implies without touching the JSON file yet — §4.7 batches every path
// update into one pass at the end of a fix-resolution run so node ids are
// looked up once against a single parse.
func (w *Writer) queuePathUpdate(workflowName string, ref workflow.WorkflowNodeWidgetRef, wm manifest.WorkflowModel) {
	value := wm.Filename
	if value == "" {
		return
	}
	w.pending = append(w.pending, PendingPathUpdate{WorkflowName: workflowName, Ref: ref, NewValue: value})
}

// Pending returns every path update queued since the writer was created
// (or since the last DrainPending), grouped by workflow name for the
// batch pass.
func (w *Writer) Pending() map[string][]PendingPathUpdate {
	byWorkflow := map[string][]PendingPathUpdate{}
	for _, p := range w.pending {
		byWorkflow[p.WorkflowName] = append(byWorkflow[p.WorkflowName], p)
	}
	return byWorkflow
}

// DrainPending returns and clears the queued path updates — called once,
// at end-of-fix, immediately before applying the batch.
func (w *Writer) DrainPending() map[string][]PendingPathUpdate {
	out := w.Pending()
	w.pending = nil
	return out
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

// replaceByFilename inserts wm into models, dropping any prior entry that
// shares its filename irrespective of status — the same filename can
// never legitimately appear twice in one workflow's models list, whether
// the earlier entry was resolved or unresolved.
func replaceByFilename(models []manifest.WorkflowModel, wm manifest.WorkflowModel) []manifest.WorkflowModel {
	out := make([]manifest.WorkflowModel, 0, len(models)+1)
	for _, existing := range models {
		if existing.Filename == wm.Filename {
			continue
		}
		out = append(out, existing)
	}
	out = append(out, wm)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

func toManifestRefs(refs []workflow.WorkflowNodeWidgetRef) []manifest.WorkflowNodeWidgetRef {
	out := make([]manifest.WorkflowNodeWidgetRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, manifest.WorkflowNodeWidgetRef{NodeID: r.NodeID, NodeType: r.NodeType, WidgetIndex: r.WidgetIndex})
	}
	return out
}
