package permissions

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// Status enumerates coarse access results for devices and helper binaries.
type Status string

const (
	// StatusUnknown indicates no explicit signal about access state.
	StatusUnknown Status = "unknown"
	// StatusGranted signals that the resource can be used.
	StatusGranted Status = "granted"
	// StatusDenied indicates the resource exists but the process may not use it.
	StatusDenied Status = "denied"
	// StatusUnavailable reports that the resource does not exist.
	StatusUnavailable Status = "unavailable"
)

// Env overrides consulted before touching the filesystem.
const (
	EnvFramebuffer = "STATUSSCREEN_FRAMEBUFFER"
	EnvInput       = "STATUSSCREEN_INPUT"
)

// ProbeResult represents the coarse state for a resource.
type ProbeResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// lookupEnv is declared for swapping in tests.
var lookupEnv = func(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ProbeReadable reports whether path can be opened for reading. envKey, when
// set in the environment, forces the result.
func ProbeReadable(path, envKey string, lookup LookupEnvFunc) ProbeResult {
	return probeOpen(path, envKey, lookup, os.O_RDONLY)
}

// ProbeWritable reports whether path can be opened for reading and writing.
func ProbeWritable(path, envKey string, lookup LookupEnvFunc) ProbeResult {
	return probeOpen(path, envKey, lookup, os.O_RDWR)
}

// ProbeCommand reports whether the first word of command resolves on PATH.
func ProbeCommand(command string, lookPath func(string) (string, error)) ProbeResult {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ProbeResult{Status: StatusUnavailable, Message: "no command configured"}
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(fields[0]); err != nil {
		return ProbeResult{Status: StatusUnavailable, Message: fields[0] + " not found on PATH", Guidance: "install it or set an absolute path in config.yaml"}
	}
	return ProbeResult{Status: StatusGranted, Message: fields[0] + " found"}
}

func probeOpen(path, envKey string, lookup LookupEnvFunc, flag int) ProbeResult {
	if lookup == nil {
		lookup = lookupEnv
	}
	if envKey != "" {
		if value, ok := lookup(envKey); ok {
			return interpretPermissionFlag(path, value)
		}
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{Status: StatusUnavailable, Message: "no path configured"}
	}

	file, err := os.OpenFile(path, flag, 0)
	switch {
	case err == nil:
		file.Close()
		return ProbeResult{Status: StatusGranted, Message: path + " accessible"}
	case errors.Is(err, fs.ErrNotExist):
		return ProbeResult{Status: StatusUnavailable, Message: path + " does not exist"}
	case errors.Is(err, fs.ErrPermission):
		return ProbeResult{Status: StatusDenied, Message: path + " permission denied", Guidance: "add the kiosk user to the video/input group"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: err.Error()}
	}
}

func interpretPermissionFlag(name, value string) ProbeResult {
	normalised := strings.ToLower(strings.TrimSpace(value))
	switch normalised {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: name + " access pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: name + " access denied via env override", Guidance: "unset STATUSSCREEN_* overrides to probe the device"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: name + " unavailable via env override"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: name + " access state unknown"}
	}
}

// StatusString returns the string representation used in doctor output.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}
