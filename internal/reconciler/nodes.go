package reconciler

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/internal/manifest"
)

// reconcileNodes compares layout.CustomNodesDir against m.Nodes and
// appends the outcome to result. It only plans or performs filesystem
// moves/deletes on the custom node directories themselves; workflow JSON
// is never touched here.
func reconcileNodes(fs afero.Fs, m *manifest.Manifest, layout Layout, policy Policy, now time.Time, result *SyncResult) {
	onDisk, err := listNodeDirs(fs, layout.CustomNodesDir)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing custom nodes: %v", err))
		return
	}

	for packageID, install := range m.Nodes {
		if _, present := onDisk[packageID]; present {
			continue
		}
		if install.IsDev() {
			result.DevNodesMissing = append(result.DevNodesMissing, packageID)
			continue
		}
		result.NodesToInstall = append(result.NodesToInstall, PlannedNodeInstall{
			PackageID: packageID, Source: install.Source, Version: install.Version,
		})
	}

	for name := range onDisk {
		if policy.isSystemNode(name) {
			continue
		}
		if _, tracked := m.Nodes[name]; tracked {
			continue
		}

		dir := filepath.Join(layout.CustomNodesDir, name)
		if isDevelopmentNode(fs, dir) {
			if err := disableNode(fs, layout.CustomNodesDir, name, now); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("disabling %q: %v", name, err))
				continue
			}
			result.NodesDisabled = append(result.NodesDisabled, name)
			continue
		}

		if !policy.RemoveExtra {
			result.NodesWarned = append(result.NodesWarned, name)
			continue
		}
		if err := fs.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("removing %q: %v", name, err))
			continue
		}
		result.NodesRemoved = append(result.NodesRemoved, name)
	}
}

func listNodeDirs(fs afero.Fs, customNodesDir string) (map[string]struct{}, error) {
	exists, err := afero.DirExists(fs, customNodesDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]struct{}{}, nil
	}
	entries, err := afero.ReadDir(fs, customNodesDir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), ".disabled") {
			continue
		}
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

// isDevelopmentNode reports whether dir should be treated as an
// actively-edited local checkout rather than an installed registry/git
// clone: it's development if there's no .git directory at all, or there
// is one but the working tree carries uncommitted changes. go-git's
// PlainOpen is read-only — reconciliation never clones, fetches, or
// commits — and operates directly against the real filesystem path,
// since go-git has no afero adapter; the afero.Fs parameter is used only
// for the cheap existence check and for the eventual rename/remove.
func isDevelopmentNode(fs afero.Fs, dir string) bool {
	hasGit, _ := afero.DirExists(fs, filepath.Join(dir, ".git"))
	if !hasGit {
		return true
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return true
	}
	status, err := wt.Status()
	if err != nil {
		return true
	}
	return !status.IsClean()
}

// disableNode renames dir -> dir.disabled, never deleting. If a prior
// dir.disabled already exists, it's rotated to dir.<UTC-timestamp>.disabled
// first, so repeated disables never clobber an earlier one.
func disableNode(fs afero.Fs, customNodesDir, name string, now time.Time) error {
	dir := filepath.Join(customNodesDir, name)
	disabledPath := dir + ".disabled"

	exists, err := afero.Exists(fs, disabledPath)
	if err != nil {
		return err
	}
	if exists {
		rotated := fmt.Sprintf("%s.%s.disabled", dir, now.UTC().Format("20060102T150405Z"))
		if err := fs.Rename(disabledPath, rotated); err != nil {
			return err
		}
	}
	return fs.Rename(dir, disabledPath)
}
