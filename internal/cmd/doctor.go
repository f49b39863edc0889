package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/offlinefirst/statusscreen/pkg/effect"
	"github.com/offlinefirst/statusscreen/pkg/input"
	"github.com/offlinefirst/statusscreen/pkg/permissions"
	"github.com/offlinefirst/statusscreen/pkg/session"
)

func newDoctorCommand() command {
	return command{
		name:        "doctor",
		description: "Check devices, helper commands and the runtime directory",
		run:         runDoctor,
	}
}

type check struct {
	name     string
	status   string
	message  string
	guidance string
}

func runDoctor(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := ctx.Config
	layout := sessionLayout(cfg)

	var checks []check

	runtimeCheck := check{name: "runtime_dir", status: string(permissions.StatusGranted), message: layout.Root}
	if err := session.EnsureFilesystem(layout); err != nil {
		runtimeCheck.status = string(permissions.StatusDenied)
		runtimeCheck.message = err.Error()
	} else if probe := probeDirWritable(layout.Root); probe != nil {
		runtimeCheck.status = string(permissions.StatusDenied)
		runtimeCheck.message = probe.Error()
	}
	checks = append(checks, runtimeCheck)

	fx := effect.DetectEnvironment(cfg.Effect.Framebuffer, cfg.Effect.Command)
	checks = append(checks, check{name: "effect", status: fx.Permission, message: fx.Provider + ": " + fx.Message, guidance: fx.Guidance})

	in := input.DetectEnvironment(cfg.Input.Device)
	checks = append(checks, check{name: "gamepad", status: in.Permission, message: in.Provider + ": " + in.Message, guidance: in.Guidance})

	for _, cmd := range []struct{ name, command string }{
		{"advance_command", cfg.Browser.AdvanceCommand},
		{"key_command", cfg.Browser.KeyCommand},
	} {
		probe := permissions.ProbeCommand(cmd.command, nil)
		checks = append(checks, check{name: cmd.name, status: probe.StatusString(), message: probe.Message, guidance: probe.Guidance})
	}

	fmt.Fprintf(stdout, "statusscreen doctor (config: %s)\n", cfg.Source)
	for _, c := range checks {
		fmt.Fprintf(stdout, "  %-16s %-12s %s\n", c.name, c.status, c.message)
		if c.guidance != "" {
			fmt.Fprintf(stdout, "  %-16s %-12s hint: %s\n", "", "", c.guidance)
		}
	}
	ctx.Logger.Debug("doctor finished", "checks", len(checks))
	return nil
}

func probeDirWritable(dir string) error {
	file, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := file.Name()
	file.Close()
	return os.Remove(name)
}
