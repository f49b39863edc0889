package effect

import (
	"github.com/offlinefirst/statusscreen/pkg/permissions"
)

// Environment summarises effect backend availability.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

const (
	providerFramebuffer = "framebuffer"
	providerDisabled    = "disabled"
)

// DetectEnvironment reports whether the framebuffer can be captured and
// restored and whether the effect command resolves.
func DetectEnvironment(framebuffer, command string) Environment {
	if command == "" {
		return Environment{
			Provider:   providerDisabled,
			Permission: "not_applicable",
			Message:    "no effect command configured",
			Guidance:   "set effect.command to enable the secret code effect",
		}
	}

	probe := permissions.ProbeWritable(framebuffer, permissions.EnvFramebuffer, nil)
	env := Environment{
		Provider:   providerFramebuffer,
		Permission: probe.StatusString(),
		Message:    probe.Message,
		Guidance:   probe.Guidance,
		Available:  probe.Status == permissions.StatusGranted,
	}
	if env.Available {
		if cmd := permissions.ProbeCommand(command, nil); cmd.Status != permissions.StatusGranted {
			env.Available = false
			env.Message = cmd.Message
			env.Guidance = cmd.Guidance
		}
	}
	return env
}
