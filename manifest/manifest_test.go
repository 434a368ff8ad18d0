package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "croc.toml"), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"

[modules]
dirs = ["build", "deps"]
entry = "main"
cache = "cache/mods.db"

[runtime]
max-stack = 4096
max-call-depth = 256
gc-threshold = 65536

[hooks]
trace = true
delay = 100
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "demo" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if len(m.Modules.Dirs) != 2 || m.Modules.Entry != "main" {
		t.Errorf("modules = %+v", m.Modules)
	}
	if m.Runtime.MaxStack != 4096 || m.Runtime.MaxCallDepth != 256 || m.Runtime.GCThreshold != 65536 {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if !m.Hooks.Trace || m.Hooks.Delay != 100 {
		t.Errorf("hooks = %+v", m.Hooks)
	}

	paths := m.ModuleDirPaths()
	if len(paths) != 2 || !filepath.IsAbs(paths[0]) {
		t.Errorf("module dir paths = %v", paths)
	}
	if m.CachePath() != filepath.Join(m.Dir, "cache", "mods.db") {
		t.Errorf("cache path = %s", m.CachePath())
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "bare"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Modules.Dirs) != 1 || m.Modules.Dirs[0] != "modules" {
		t.Errorf("default module dirs = %v", m.Modules.Dirs)
	}
	if m.CachePath() != filepath.Join(m.Dir, ".croc", "modcache.db") {
		t.Errorf("default cache path = %s", m.CachePath())
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"up\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "up" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Error("expected no manifest")
	}
}
