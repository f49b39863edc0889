package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/offlinefirst/statusscreen/pkg/config"
	"github.com/offlinefirst/statusscreen/pkg/daemon"
	"github.com/offlinefirst/statusscreen/pkg/scroll"
)

// newAdvancer is swapped in tests so no browser command runs.
var newAdvancer = daemon.NewAdvancer

func newToggleCommand() command {
	return command{
		name:        "toggle",
		description: "Pause autoscroll, or advance and resume when already paused",
		run:         runToggle,
	}
}

func newTickCommand() command {
	return command{
		name:        "tick",
		description: "Run one autoscroll check: advance unless paused",
		run:         runTick,
	}
}

func runToggle(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	warnMemoryBackend(ctx)

	store, coordinator, err := daemon.OpenPause(ctx.Config, sessionLayout(ctx.Config), ctx.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	trigger, err := scroll.NewTrigger(scroll.TriggerOptions{
		Pause:    coordinator,
		Advancer: newAdvancer(ctx.Config),
		Timing:   scroll.StaticTiming(daemon.TimingFromConfig(ctx.Config)),
		Clock:    timeNow,
		Logger:   ctx.Logger,
	})
	if err != nil {
		return err
	}
	outcome, err := trigger.Invoke(context.Background())
	if err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	fmt.Fprintln(stdout, outcome)
	return nil
}

func runTick(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	warnMemoryBackend(ctx)

	store, coordinator, err := daemon.OpenPause(ctx.Config, sessionLayout(ctx.Config), ctx.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	scroller, err := scroll.NewScroller(scroll.Options{
		Pause:    coordinator,
		Advancer: newAdvancer(ctx.Config),
		Timing:   scroll.StaticTiming(daemon.TimingFromConfig(ctx.Config)),
		Clock:    timeNow,
		Logger:   ctx.Logger,
	})
	if err != nil {
		return err
	}
	outcome := scroller.Tick(context.Background())
	fmt.Fprintln(stdout, outcome)
	if outcome == scroll.OutcomeFailed {
		return fmt.Errorf("tick: advance failed")
	}
	return nil
}

func warnMemoryBackend(ctx *AppContext) {
	if ctx.Config.Pause.Backend == config.BackendMemory {
		ctx.Logger.Warn("memory pause backend is not shared with the running daemon")
	}
}
