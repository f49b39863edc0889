// Package session owns the per-login runtime directory: the pause state
// shared by every statusscreen process and the manifest of the running daemon.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/config"
)

// SchemaVersion captures the manifest version for compatibility checks.
const SchemaVersion = 1

const appDirName = "statusscreen"

// Layout represents the absolute filesystem locations for a session.
type Layout struct {
	Root         string
	PausePath    string
	DatabasePath string
	ManifestPath string
}

// Daemon lifecycle states recorded in the manifest.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateFailed   = "failed"
)

// Subsystem outcome states.
const (
	SubsystemStateActive      = "active"
	SubsystemStateDisabled    = "disabled"
	SubsystemStateUnavailable = "unavailable"
)

// SubsystemStatus captures availability details for one subsystem.
type SubsystemStatus struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Available  bool   `json:"available"`
	State      string `json:"state"`
	Provider   string `json:"provider,omitempty"`
	Permission string `json:"permission,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Settings records the effective configuration of the daemon.
type Settings struct {
	IntervalSeconds int    `json:"interval_seconds"`
	PauseSeconds    int    `json:"pause_seconds"`
	PauseBackend    string `json:"pause_backend"`
	EffectEnabled   bool   `json:"effect_enabled"`
	PatternLength   int    `json:"pattern_length"`
}

// Manifest describes the daemon currently owning the session.
type Manifest struct {
	SchemaVersion int               `json:"schema_version"`
	PID           int               `json:"pid"`
	Hostname      string            `json:"hostname"`
	AppVersion    string            `json:"app_version"`
	ConfigSource  string            `json:"config_source"`
	StartedAt     time.Time         `json:"started_at"`
	StoppedAt     *time.Time        `json:"stopped_at,omitempty"`
	State         string            `json:"state"`
	Settings      Settings          `json:"settings"`
	Subsystems    []SubsystemStatus `json:"subsystems,omitempty"`
}

// Options captures the knobs for creating a new manifest.
type Options struct {
	PID        int
	StartedAt  time.Time
	Hostname   string
	AppVersion string
	Config     config.Config
}

// New constructs a manifest in the starting state.
func New(opts Options) Manifest {
	return Manifest{
		SchemaVersion: SchemaVersion,
		PID:           opts.PID,
		Hostname:      opts.Hostname,
		AppVersion:    opts.AppVersion,
		ConfigSource:  opts.Config.Source,
		StartedAt:     opts.StartedAt.UTC(),
		State:         StateStarting,
		Settings: Settings{
			IntervalSeconds: opts.Config.Autoscroll.IntervalSeconds,
			PauseSeconds:    opts.Config.Autoscroll.PauseSeconds,
			PauseBackend:    opts.Config.Pause.Backend,
			EffectEnabled:   opts.Config.Effect.Enabled,
			PatternLength:   len(opts.Config.Sequence.Pattern),
		},
	}
}

// MarkStopped records a terminal state.
func (m *Manifest) MarkStopped(state string, at time.Time) {
	stopped := at.UTC()
	m.State = state
	m.StoppedAt = &stopped
}

// ResolveRuntimeDir picks the session directory: the configured value, else
// $XDG_RUNTIME_DIR/statusscreen, else a per-user directory under the system
// temp dir.
func ResolveRuntimeDir(configured string, lookupEnv func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if xdg, ok := lookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName+"-"+strconv.Itoa(os.Getuid()))
}

// BuildLayout creates an absolute filesystem layout under root.
func BuildLayout(root string) Layout {
	return Layout{
		Root:         root,
		PausePath:    filepath.Join(root, "paused_until"),
		DatabasePath: filepath.Join(root, "state.db"),
		ManifestPath: filepath.Join(root, "session.json"),
	}
}

// EnsureFilesystem creates the session directory, private to the user.
func EnsureFilesystem(layout Layout) error {
	if strings.TrimSpace(layout.Root) == "" {
		return errors.New("runtime directory must not be empty")
	}
	if err := os.MkdirAll(layout.Root, 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	return nil
}

// Save writes the manifest JSON atomically.
func Save(man Manifest, path string) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Load reads a manifest JSON file from disk.
func Load(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	return man, nil
}
