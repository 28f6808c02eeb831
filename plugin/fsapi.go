package plugin

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/opnet-chain/opnetd/errors"
)

// FSAPI permits a plugin access to exactly two roots under the plugin
// runtime's base directory: {base}/{id}/config and {base}/{id}/temp.
// Every requested path is resolved and must lie within one of them;
// `..` traversal and absolute paths outside these roots are rejected,
// per spec.md §4.8.
type FSAPI struct {
	configRoot string
	tempRoot   string
}

// NewFSAPI builds an FSAPI scoped to pluginID under baseDir.
func NewFSAPI(baseDir, pluginID string) *FSAPI {
	root := filepath.Join(baseDir, pluginID)
	return &FSAPI{
		configRoot: filepath.Join(root, "config"),
		tempRoot:   filepath.Join(root, "temp"),
	}
}

// resolve maps a plugin-relative path under one of the two roots to its
// absolute filesystem path, rejecting anything that would escape it.
func (f *FSAPI) resolve(root, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", errors.NewAccessDeniedError("access denied: absolute path %q not permitted", relPath)
	}

	joined := filepath.Join(root, relPath)
	cleanRoot := filepath.Clean(root)

	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(os.PathSeparator)) {
		return "", errors.NewAccessDeniedError("access denied: path %q escapes plugin root", relPath)
	}
	return joined, nil
}

// ReadConfig reads relPath under the plugin's config root.
func (f *FSAPI) ReadConfig(relPath string) ([]byte, error) {
	path, err := f.resolve(f.configRoot, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteConfig writes relPath under the plugin's config root.
func (f *FSAPI) WriteConfig(relPath string, data []byte) error {
	path, err := f.resolve(f.configRoot, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageError("create config directory for %q", relPath, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadTemp reads relPath under the plugin's temp root.
func (f *FSAPI) ReadTemp(relPath string) ([]byte, error) {
	path, err := f.resolve(f.tempRoot, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteTemp writes relPath under the plugin's temp root.
func (f *FSAPI) WriteTemp(relPath string, data []byte) error {
	path, err := f.resolve(f.tempRoot, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageError("create temp directory for %q", relPath, err)
	}
	return os.WriteFile(path, data, 0o644)
}
