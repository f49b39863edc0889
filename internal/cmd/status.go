package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/daemon"
	"github.com/offlinefirst/statusscreen/pkg/session"
)

func newStatusCommand() command {
	return command{
		name:        "status",
		description: "Show the pause state and the running coordinator",
		run:         runStatus,
	}
}

func runStatus(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	layout := sessionLayout(ctx.Config)

	store, coordinator, err := daemon.OpenPause(ctx.Config, layout, ctx.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	now := timeNow()
	fmt.Fprintf(stdout, "Runtime directory: %s\n", layout.Root)
	until, ok := coordinator.PausedUntil(context.Background())
	switch {
	case !ok:
		fmt.Fprintln(stdout, "Autoscroll: active (no pause recorded)")
	case until.After(now):
		fmt.Fprintf(stdout, "Autoscroll: paused until %s (%s remaining)\n", until.UTC().Format(time.RFC3339), until.Sub(now).Round(time.Second))
	default:
		fmt.Fprintf(stdout, "Autoscroll: active (last activity %s)\n", until.UTC().Format(time.RFC3339))
	}

	manifest, err := session.Load(layout.ManifestPath)
	if err != nil {
		fmt.Fprintln(stdout, "Coordinator: no session manifest")
		return nil
	}
	fmt.Fprintf(stdout, "Coordinator: %s (pid %d, version %s, started %s)\n", manifest.State, manifest.PID, manifest.AppVersion, manifest.StartedAt.Format(time.RFC3339))
	if manifest.StoppedAt != nil {
		fmt.Fprintf(stdout, "  stopped %s\n", manifest.StoppedAt.Format(time.RFC3339))
	}
	printSubsystems(stdout, manifest.Subsystems)
	return nil
}
