// Package manifest handles croc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a croc.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Modules Modules `toml:"modules"`
	Runtime Runtime `toml:"runtime"`
	Hooks   Hooks   `toml:"hooks"`

	// Dir is the directory containing the croc.toml file (set at load
	// time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Modules configures compiled module locations.
type Modules struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
	Cache string   `toml:"cache"` // module cache database path
}

// Runtime configures VM limits. Zero values take the VM defaults.
type Runtime struct {
	MaxStack     int    `toml:"max-stack"`
	MaxCallDepth int    `toml:"max-call-depth"`
	MaxEHFrames  int    `toml:"max-eh-frames"`
	GCThreshold  uint64 `toml:"gc-threshold"`
}

// Hooks configures debug hook behavior.
type Hooks struct {
	Trace bool `toml:"trace"`
	Delay int  `toml:"delay"`
}

// Load parses a croc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "croc.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Modules.Dirs) == 0 {
		m.Modules.Dirs = []string{"modules"}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a croc.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "croc.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ModuleDirPaths returns absolute paths for the configured module
// directories.
func (m *Manifest) ModuleDirPaths() []string {
	var paths []string
	for _, d := range m.Modules.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// CachePath returns the module cache database path, defaulting to
// .croc/modcache.db under the project directory.
func (m *Manifest) CachePath() string {
	if m.Modules.Cache != "" {
		if filepath.IsAbs(m.Modules.Cache) {
			return m.Modules.Cache
		}
		return filepath.Join(m.Dir, m.Modules.Cache)
	}
	return filepath.Join(m.Dir, ".croc", "modcache.db")
}
