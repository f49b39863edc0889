package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/config"
)

func TestResolveRuntimeDir(t *testing.T) {
	env := func(values map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}
	}

	if got := ResolveRuntimeDir(" /run/kiosk/ ", env(nil)); got != "/run/kiosk" {
		t.Fatalf("expected configured dir, got %s", got)
	}
	if got := ResolveRuntimeDir("", env(map[string]string{"XDG_RUNTIME_DIR": "/run/user/1000"})); got != filepath.Join("/run/user/1000", "statusscreen") {
		t.Fatalf("expected XDG dir, got %s", got)
	}
	got := ResolveRuntimeDir("", env(nil))
	if !strings.HasPrefix(filepath.Base(got), "statusscreen-") {
		t.Fatalf("expected per-user temp dir, got %s", got)
	}
}

func TestBuildLayoutAndEnsureFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "session")
	layout := BuildLayout(root)
	if layout.PausePath != filepath.Join(root, "paused_until") {
		t.Fatalf("unexpected pause path %s", layout.PausePath)
	}
	if err := EnsureFilesystem(layout); err != nil {
		t.Fatalf("EnsureFilesystem failed: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected runtime dir: %v", err)
	}
	if err := EnsureFilesystem(Layout{}); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	layout := BuildLayout(dir)
	cfg := config.Default()
	cfg.Source = "explicit"
	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	man := New(Options{PID: 42, StartedAt: now, Hostname: "kiosk", AppVersion: "test", Config: cfg})
	if man.StartedAt.Location() != time.UTC {
		t.Fatalf("expected StartedAt in UTC")
	}
	if man.Settings.PatternLength != 11 || man.State != StateStarting {
		t.Fatalf("unexpected manifest %+v", man)
	}
	man.Subsystems = []SubsystemStatus{{Name: "effect", Enabled: true, State: SubsystemStateActive}}
	man.MarkStopped(StateStopped, now.Add(time.Hour))

	if err := Save(man, layout.ManifestPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(layout.ManifestPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PID != 42 || loaded.ConfigSource != "explicit" || loaded.State != StateStopped {
		t.Fatalf("unexpected loaded manifest %+v", loaded)
	}
	if loaded.StoppedAt == nil || !loaded.StoppedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected stop time %v", loaded.StoppedAt)
	}
	if len(loaded.Subsystems) != 1 || loaded.Subsystems[0].Name != "effect" {
		t.Fatalf("unexpected subsystems %+v", loaded.Subsystems)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the manifest, found %d entries", len(entries))
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}
