package permissions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeLookup map[string]string

func (f fakeLookup) get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func TestInterpretPermissionFlag(t *testing.T) {
	cases := map[string]struct {
		value    string
		expected Status
	}{
		"granted":     {"granted", StatusGranted},
		"denied":      {"denied", StatusDenied},
		"unsupported": {"unsupported", StatusUnavailable},
		"unknown":     {"", StatusUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := interpretPermissionFlag("test", tc.value)
			if res.Status != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, res.Status)
			}
		})
	}
}

func TestProbeReadableHonoursEnv(t *testing.T) {
	lookup := fakeLookup{EnvFramebuffer: "denied"}
	res := ProbeReadable("/dev/fb0", EnvFramebuffer, lookup.get)
	if res.Status != StatusDenied {
		t.Fatalf("expected denied, got %s", res.Status)
	}
	if res.Guidance == "" {
		t.Fatalf("expected guidance when denied")
	}
}

func TestProbeReadableInspectsFilesystem(t *testing.T) {
	empty := fakeLookup{}
	dir := t.TempDir()
	path := filepath.Join(dir, "fb")
	if err := os.WriteFile(path, []byte{0, 1}, 0o644); err != nil {
		t.Fatalf("write fake device: %v", err)
	}

	if res := ProbeWritable(path, EnvFramebuffer, empty.get); res.Status != StatusGranted {
		t.Fatalf("expected granted, got %s (%s)", res.Status, res.Message)
	}
	if res := ProbeReadable(filepath.Join(dir, "missing"), EnvInput, empty.get); res.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", res.Status)
	}
	if res := ProbeReadable("", EnvInput, empty.get); res.Status != StatusUnavailable {
		t.Fatalf("expected unavailable for empty path, got %s", res.Status)
	}
}

func TestProbeCommand(t *testing.T) {
	found := func(string) (string, error) { return "/usr/bin/xdotool", nil }
	missing := func(string) (string, error) { return "", errors.New("not found") }

	if res := ProbeCommand("xdotool key ctrl+Tab", found); res.Status != StatusGranted {
		t.Fatalf("expected granted, got %s", res.Status)
	}
	if res := ProbeCommand("xdotool key ctrl+Tab", missing); res.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", res.Status)
	}
	if res := ProbeCommand("", found); res.Status != StatusUnavailable {
		t.Fatalf("expected unavailable for empty command, got %s", res.Status)
	}
}
