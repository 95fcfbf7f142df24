// Package pytorchcfg reads and writes the two machine-specific PyTorch
// configuration files §6 describes: the `.pytorch-backend` pin and the
// `pytorch-cache.toml` discovered-version cache. Neither file is part of
// the portable manifest — both are gitignored so different machines can
// share one environment's pyproject.toml while probing (or pinning)
// their own GPU backend independently. No GPU probing happens here; that
// requires a live Python/CUDA environment and is an external
// collaborator's job. This package only owns the file formats' read,
// validate and write contract.
package pytorchcfg

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// Backend is a validated PyTorch backend token, e.g. "cu128", "cpu",
// "rocm6.2", "xpu".
type Backend string

const backendFileName = ".pytorch-backend"

var backendPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^cu\d{2,3}$`),
	regexp.MustCompile(`^cpu$`),
	regexp.MustCompile(`^rocm\d+\.\d+$`),
	regexp.MustCompile(`^xpu$`),
}

func isValidBackend(s string) bool {
	for _, p := range backendPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ReadBackend reads and validates envDir's pinned PyTorch backend.
// Absence or an empty/invalid value is a hard error — the core refuses
// to compute a backend-specific Python configuration without one.
func ReadBackend(fs afero.Fs, envDir string) (Backend, error) {
	path := filepath.Join(envDir, backendFileName)
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", core.NewError(nil, core.ErrBackendMissing, map[string]any{"path": path})
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", core.NewError(nil, core.ErrBackendMissing, map[string]any{"path": path})
	}
	if !isValidBackend(value) {
		return "", core.NewError(nil, core.ErrBackendInvalid, map[string]any{"path": path, "value": value})
	}
	return Backend(value), nil
}

// WriteBackend pins envDir's PyTorch backend, written atomically (temp
// file then rename), and ensures the backend file is gitignored since
// the choice is machine-specific and never committed.
func WriteBackend(fs afero.Fs, envDir string, backend Backend) error {
	if !isValidBackend(string(backend)) {
		return core.NewError(nil, core.ErrBackendInvalid, map[string]any{"value": string(backend)})
	}
	path := filepath.Join(envDir, backendFileName)
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, []byte(backend), 0o644); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		return err
	}
	return ensureGitignoreEntry(fs, envDir)
}

// HasBackend reports whether envDir already carries a valid pinned
// backend.
func HasBackend(fs afero.Fs, envDir string) bool {
	_, err := ReadBackend(fs, envDir)
	return err == nil
}

func ensureGitignoreEntry(fs afero.Fs, envDir string) error {
	path := filepath.Join(envDir, ".gitignore")
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if !exists {
		content := fmt.Sprintf("# PyTorch backend configuration (machine-specific)\n%s\n", backendFileName)
		return afero.WriteFile(fs, path, []byte(content), 0o644)
	}

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		stripped := strings.TrimSpace(strings.SplitN(line, "#", 2)[0])
		if stripped == backendFileName {
			return nil
		}
	}

	content := string(raw)
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += fmt.Sprintf("\n# PyTorch backend configuration (machine-specific)\n%s\n", backendFileName)
	return afero.WriteFile(fs, path, []byte(content), 0o644)
}
