// Command comfygit-core is a thin demonstration of how the packages in
// this module wire together for one environment: load configuration,
// open the manifest and its supporting indexes, resolve a workflow's
// dependencies against them, and reconcile the result onto disk. It is
// not a CLI — there is no flag parsing, prompting or TUI; an actual
// front end composes these same packages behind its own interaction
// model, however it chooses to collect decisions from a user.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/modelrepo"
	"github.com/comfygit-ai/comfygit-core/internal/noderegistry"
	"github.com/comfygit-ai/comfygit-core/internal/reconciler"
	"github.com/comfygit-ai/comfygit-core/internal/resolver"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
	"github.com/comfygit-ai/comfygit-core/pkg/logger"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "comfygit-core:", err)
		os.Exit(1)
	}
}

// run resolves a single workflow inside envDir against envDir's manifest
// and reports what the resolver and reconciler decided. args[0] is the
// environment directory; args[1] is the workflow JSON file to resolve.
func run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: comfygit-core <environment-dir> <workflow.json>")
	}
	envDir, workflowPath := args[0], args[1]

	manager := config.NewManager(nil)
	defer manager.Close(ctx)
	cfg, err := manager.Load(ctx, config.NewDefaultProvider(), config.NewDotEnvProvider(filepath.Join(envDir, ".env")), config.NewEnvProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.NewLogger(logger.DefaultConfig())
	ctx = logger.ContextWithLogger(ctx, log)

	fs := afero.NewOsFs()

	store := manifest.NewStore(fs, filepath.Join(envDir, "pyproject.toml"))
	m, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	repo, err := modelrepo.Open(filepath.Join(cfg.CacheRoot, "models.db"))
	if err != nil {
		return fmt.Errorf("opening model repository: %w", err)
	}
	defer repo.Close()

	cache, err := analysiscache.Open(filepath.Join(cfg.CacheRoot, "analysis.db"))
	if err != nil {
		return fmt.Errorf("opening analysis cache: %w", err)
	}
	defer cache.Close()

	mirror, err := noderegistry.Load(fs, filepath.Join(cfg.CacheRoot, "node-mapping.json"))
	if err != nil {
		return fmt.Errorf("loading node registry mirror: %w", err)
	}

	raw, err := afero.ReadFile(fs, workflowPath)
	if err != nil {
		return fmt.Errorf("reading workflow file: %w", err)
	}
	wf, err := workflow.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing workflow: %w", err)
	}

	workflowName := filepath.Base(workflowPath)
	entry, ok := m.Workflows[workflowName]
	if !ok {
		entry = manifest.WorkflowEntry{Name: workflowName, Path: workflowPath}
	}

	builtinTypes := make(map[string]bool, len(cfg.BuiltinNodeTypes))
	for _, t := range cfg.BuiltinNodeTypes {
		builtinTypes[t] = true
	}
	builtin, nonBuiltin := workflow.ClassifyNodes(wf, builtinTypes)
	modelRefs := workflow.ExtractModelRefs(wf, cfg)

	manifestHash := analysiscache.ManifestHash(m)
	cached, err := cache.Get(ctx, fs, envDir, workflowName, workflowPath, manifestHash)
	if err != nil {
		return fmt.Errorf("checking analysis cache: %w", err)
	}

	var result *analysiscache.ResolutionResult
	if cached.Dependencies != nil && cached.Resolution != nil {
		log.Info("analysis cache hit", "workflow", workflowName)
		result = cached.Resolution
	} else {
		resolveCtx, err := resolver.NewContext(m.Nodes, entry.CustomNodeMap, entry.Models, repo, mirror, cfg)
		if err != nil {
			return fmt.Errorf("building resolution context: %w", err)
		}
		result, err = resolveCtx.Resolve(ctx, workflowName, nonBuiltin, modelRefs)
		if err != nil {
			return fmt.Errorf("resolving workflow: %w", err)
		}
		deps := &analysiscache.Dependencies{BuiltinNodes: builtin, NonBuiltinNodes: nonBuiltin, ModelRefs: modelRefs}
		if err := cache.Set(ctx, fs, envDir, workflowName, workflowPath, manifestHash, deps, result); err != nil {
			return fmt.Errorf("updating analysis cache: %w", err)
		}
	}

	log.Info("resolved workflow",
		"workflow", workflowName,
		"nodes_resolved", len(result.NodesResolved),
		"nodes_unresolved", len(result.NodesUnresolved),
		"nodes_ambiguous", len(result.NodesAmbiguous),
		"models_resolved", len(result.ModelsResolved),
		"models_unresolved", len(result.ModelsUnresolved),
		"models_ambiguous", len(result.ModelsAmbiguous),
	)

	layout := reconciler.Layout{
		CustomNodesDir:      filepath.Join(envDir, "custom_nodes"),
		ModelsRoot:          filepath.Join(envDir, "models"),
		ExtraModelPathsFile: filepath.Join(envDir, "extra_model_paths.toml"),
	}
	policy := reconciler.Policy{RemoveExtra: false, SystemNodeAllowlist: []string{"comfygit-manager"}}

	sync, err := reconciler.Reconcile(ctx, m, fs, cfg, layout, policy, true)
	if err != nil {
		return fmt.Errorf("reconciling environment: %w", err)
	}

	log.Info("reconciled environment",
		"nodes_to_install", len(sync.NodesToInstall),
		"nodes_disabled", len(sync.NodesDisabled),
		"nodes_removed", len(sync.NodesRemoved),
		"model_paths_configured", sync.ModelPathsConfigured,
		"success", sync.Success,
	)

	return nil
}
