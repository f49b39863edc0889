package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/offlinefirst/statusscreen/internal/buildinfo"
	"github.com/offlinefirst/statusscreen/pkg/daemon"
	"github.com/offlinefirst/statusscreen/pkg/session"
	"github.com/offlinefirst/statusscreen/pkg/telemetry"
)

func newRunCommand() command {
	return command{
		name:        "run",
		description: "Run the kiosk coordinator until interrupted",
		configure: func(fs *flag.FlagSet) {
			fs.Bool("plan-only", false, "Print the resolved configuration without starting")
			fs.Bool("no-scroll", false, "Disable the autoscroll loop")
			fs.Bool("no-effect", false, "Disable the secret code effect")
		},
		run: runDaemon,
	}
}

var (
	timeNow      = time.Now
	hostname     = os.Hostname
	manifestSave = session.Save
	daemonRun    = daemon.Run
	// runContext scopes the daemon to process signals.
	runContext = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	}
)

func runDaemon(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	planOnly := boolFlag(fs, "plan-only")
	layout := sessionLayout(ctx.Config)
	ctx.Logger.Info("run command invoked", "plan_only", planOnly, "runtime_dir", layout.Root, "config_source", ctx.Config.Source)

	if planOnly {
		printRunPlan(ctx, layout, stdout)
		return nil
	}

	if err := session.EnsureFilesystem(layout); err != nil {
		return fmt.Errorf("prepare runtime directory: %w", err)
	}

	runCtx, stop := runContext()
	defer stop()

	shutdownTracing, err := telemetry.Setup(runCtx, ctx.Config.Telemetry.Endpoint, ctx.Config.Telemetry.ServiceName)
	if err != nil {
		ctx.Logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			ctx.Logger.Warn("flush traces", "error", err)
		}
	}()

	host, err := hostname()
	if err != nil {
		host = "unknown"
	}

	manifest := session.New(session.Options{
		PID:        os.Getpid(),
		StartedAt:  timeNow(),
		Hostname:   host,
		AppVersion: buildinfo.Version(),
		Config:     ctx.Config,
	})
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	summary, err := daemonRun(runCtx, daemon.Options{
		Config:        ctx.Config,
		Layout:        layout,
		Logger:        ctx.Logger,
		Clock:         timeNow,
		DisableScroll: boolFlag(fs, "no-scroll"),
		DisableEffect: boolFlag(fs, "no-effect"),
		OnStarted: func(subsystems []session.SubsystemStatus) {
			manifest.State = session.StateRunning
			manifest.Subsystems = subsystems
			if err := manifestSave(manifest, layout.ManifestPath); err != nil {
				ctx.Logger.Warn("update manifest", "error", err)
			}
		},
	})

	if len(summary.Subsystems) > 0 {
		manifest.Subsystems = append([]session.SubsystemStatus(nil), summary.Subsystems...)
	}
	if err != nil {
		manifest.MarkStopped(session.StateFailed, timeNow())
		ctx.Logger.Error("coordinator failed", "error", err)
		if saveErr := manifestSave(manifest, layout.ManifestPath); saveErr != nil {
			return fmt.Errorf("run coordinator: %v (additionally failed to persist manifest: %w)", err, saveErr)
		}
		return fmt.Errorf("run coordinator: %w", err)
	}

	manifest.MarkStopped(session.StateStopped, timeNow())
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("finalise manifest: %w", err)
	}

	ctx.Logger.Info("coordinator stopped", "termination", summary.Termination,
		"forwarded", summary.Relay.Forwarded, "matched", summary.Relay.Matched, "dropped", summary.Relay.Dropped)
	fmt.Fprintf(stdout, "Runtime directory: %s\n", layout.Root)
	fmt.Fprintf(stdout, "Manifest: %s\n", layout.ManifestPath)
	fmt.Fprintf(stdout, "Stopped (%s) after %s\n", summary.Termination, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	fmt.Fprintf(stdout, "Input: %d forwarded, %d codes entered, %d dropped from matching\n", summary.Relay.Forwarded, summary.Relay.Matched, summary.Relay.Dropped)
	printSubsystems(stdout, manifest.Subsystems)
	return nil
}

func printSubsystems(stdout io.Writer, subsystems []session.SubsystemStatus) {
	if len(subsystems) == 0 {
		return
	}
	fmt.Fprintf(stdout, "Subsystem status summary:\n")
	for _, subsystem := range subsystems {
		fmt.Fprintf(stdout, "  - %s: state=%s enabled=%t available=%t", subsystem.Name, subsystem.State, subsystem.Enabled, subsystem.Available)
		if subsystem.Provider != "" {
			fmt.Fprintf(stdout, " provider=%s", subsystem.Provider)
		}
		if subsystem.Permission != "" {
			fmt.Fprintf(stdout, " permission=%s", subsystem.Permission)
		}
		if subsystem.Message != "" {
			fmt.Fprintf(stdout, " (%s)", subsystem.Message)
		}
		fmt.Fprintln(stdout)
	}
}

func printRunPlan(ctx *AppContext, layout session.Layout, stdout io.Writer) {
	cfg := ctx.Config
	fmt.Fprintf(stdout, "Resolved configuration (source: %s)\n", cfg.Source)
	fmt.Fprintf(stdout, "  runtime_dir: %s\n", layout.Root)
	fmt.Fprintf(stdout, "  autoscroll.interval_seconds: %d\n", cfg.Autoscroll.IntervalSeconds)
	fmt.Fprintf(stdout, "  autoscroll.pause_seconds: %d\n", cfg.Autoscroll.PauseSeconds)
	fmt.Fprintf(stdout, "  autoscroll.startup_multiplier: %d\n", cfg.Autoscroll.StartupMultiplier)
	fmt.Fprintf(stdout, "  pause.backend: %s\n", cfg.Pause.Backend)
	fmt.Fprintf(stdout, "  sequence.pattern: %s\n", strings.Join(cfg.Sequence.Pattern, " "))
	fmt.Fprintf(stdout, "  effect.enabled: %t\n", cfg.Effect.Enabled)
	fmt.Fprintf(stdout, "  effect.framebuffer: %s\n", cfg.Effect.Framebuffer)
	fmt.Fprintf(stdout, "  effect.duration_seconds: %d\n", cfg.Effect.DurationSeconds)
	fmt.Fprintf(stdout, "  browser.advance_command: %s\n", cfg.Browser.AdvanceCommand)
	fmt.Fprintf(stdout, "  input.device: %s\n", cfg.Input.Device)
	fmt.Fprintf(stdout, "  input.feed: %s\n", cfg.Input.Feed)
	fmt.Fprintf(stdout, "  input.listen: %s\n", cfg.Input.Listen)

	symbols := make([]string, 0, len(cfg.Input.Bindings))
	for symbol := range cfg.Input.Bindings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		fmt.Fprintf(stdout, "  input.bindings.%s: %s\n", symbol, cfg.Input.Bindings[symbol])
	}
	fmt.Fprintf(stdout, "  logging.level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(stdout, "  logging.format: %s\n", cfg.Logging.Format)
}

func boolFlag(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	value, err := strconv.ParseBool(f.Value.String())
	if err != nil {
		return false
	}
	return value
}
