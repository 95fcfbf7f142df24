package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/engine/core"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

// Reconcile walks a manifest against the filesystem across the three
// axes §4.8 names: python dependencies (recorded only — sync itself
// happens in an external collaborator before this is called),
// custom nodes, and the host's model path configuration. It never
// touches workflow JSON. A failure on one axis is recorded in
// SyncResult.Errors and does not stop the others from running.
func Reconcile(
	ctx context.Context,
	m *manifest.Manifest,
	fs afero.Fs,
	cfg *config.EngineConfig,
	layout Layout,
	policy Policy,
	pythonDepsSynced bool,
) (*SyncResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result := &SyncResult{PythonDepsSynced: pythonDepsSynced}

	reconcileNodes(fs, m, layout, policy, time.Now(), result)

	if err := reconcileModelPaths(fs, cfg, layout, result); err != nil {
		result.Errors = append(result.Errors, "model path configuration: "+err.Error())
	}

	if !pythonDepsSynced {
		result.Errors = append(result.Errors, "python dependency sync reported failure")
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

// Checkout reconciles the environment against target instead of the
// manifest currently on disk, restoring the prior manifest on failure:
// reconcileNodes never deletes a dev custom-node directory (an untracked
// one is only renamed to .disabled), but a checkout that fails
// partway through (an install or model-path rewrite erroring out) must
// not leave the on-disk manifest pointing at a target whose reconciliation
// never completed. current is deep-copied into an in-memory snapshot
// before the pass runs — not re-read from store, which could itself
// observe the partially-applied state — and written back verbatim if
// Reconcile returns an error or an unsuccessful SyncResult.
func Checkout(
	ctx context.Context,
	store *manifest.Store,
	current *manifest.Manifest,
	target *manifest.Manifest,
	fs afero.Fs,
	cfg *config.EngineConfig,
	layout Layout,
	policy Policy,
	pythonDepsSynced bool,
) (*SyncResult, error) {
	snapshot, err := core.DeepCopy(current)
	if err != nil {
		return nil, fmt.Errorf("snapshotting current manifest before checkout: %w", err)
	}

	result, err := Reconcile(ctx, target, fs, cfg, layout, policy, pythonDepsSynced)
	if err != nil || !result.Success {
		if saveErr := store.Save(ctx, snapshot); saveErr != nil {
			return result, fmt.Errorf("checkout failed and rollback could not be saved: %w (original error: %v)", saveErr, err)
		}
		if err != nil {
			return nil, fmt.Errorf("checkout failed, rolled back to prior manifest: %w", err)
		}
		return result, nil
	}

	if err := store.Save(ctx, target); err != nil {
		if saveErr := store.Save(ctx, snapshot); saveErr != nil {
			return result, fmt.Errorf("committing checkout failed and rollback could not be saved: %w (original error: %v)", saveErr, err)
		}
		return nil, fmt.Errorf("committing checkout failed, rolled back to prior manifest: %w", err)
	}
	return result, nil
}
