package input

import (
	"runtime"

	"github.com/offlinefirst/statusscreen/pkg/permissions"
)

// Environment summarises input backend support.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

const (
	providerEvdev = "evdev"
	providerNone  = "none"
)

// DetectEnvironment reports whether the configured gamepad device can be read.
func DetectEnvironment(device string) Environment {
	if device == "" {
		return Environment{
			Provider:   providerNone,
			Available:  false,
			Permission: "not_applicable",
			Message:    "no input device configured",
			Guidance:   "set input.device to a /dev/input/event* node",
		}
	}

	probe := permissions.ProbeReadable(device, permissions.EnvInput, nil)
	env := Environment{
		Provider:   providerEvdev,
		Permission: probe.StatusString(),
		Message:    probe.Message,
		Guidance:   probe.Guidance,
		Available:  probe.Status == permissions.StatusGranted,
	}
	if runtime.GOOS != "linux" {
		env.Available = false
		env.Message = "evdev devices are only available on linux"
	}
	return env
}
