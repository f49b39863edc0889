// Package daemon assembles the kiosk coordinator from configuration and
// supervises its long-running actors.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/offlinefirst/statusscreen/pkg/config"
	"github.com/offlinefirst/statusscreen/pkg/effect"
	"github.com/offlinefirst/statusscreen/pkg/input"
	"github.com/offlinefirst/statusscreen/pkg/pause"
	"github.com/offlinefirst/statusscreen/pkg/relay"
	"github.com/offlinefirst/statusscreen/pkg/scroll"
	"github.com/offlinefirst/statusscreen/pkg/sequence"
	"github.com/offlinefirst/statusscreen/pkg/session"
	"github.com/offlinefirst/statusscreen/pkg/shell"
)

// Termination causes recorded in the summary.
const (
	TerminationSignal    = "signal"
	TerminationCompleted = "completed"
)

// Options controls daemon assembly. Zero-valued overrides are built from Config.
type Options struct {
	Config config.Config
	Layout session.Layout
	Logger *slog.Logger
	Clock  func() time.Time

	DisableScroll bool
	DisableEffect bool

	// Sources replaces the configured device, feed and websocket sources.
	Sources  []input.EventSource
	Advancer scroll.Advancer
	Surface  effect.Surface
	Launcher effect.Launcher

	// OnStarted receives subsystem status once every actor is assembled.
	OnStarted func([]session.SubsystemStatus)
}

// Summary reports how the daemon ran.
type Summary struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Termination string
	Subsystems  []session.SubsystemStatus
	Relay       relay.Stats
}

// Run starts every enabled actor and blocks until ctx is cancelled or all of
// them have stopped. Actor failures are logged and never stop the others.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Logger == nil {
		return Summary{}, errors.New("logger must be provided")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg := opts.Config
	logger := opts.Logger
	summary := Summary{StartedAt: clock().UTC()}

	store, coordinator, err := OpenPause(cfg, opts.Layout, logger)
	if err != nil {
		return summary, err
	}
	defer store.Close()
	if err := coordinator.Init(ctx, clock()); err != nil {
		return summary, err
	}

	timing := NewLiveTiming(cfg)
	advancer := opts.Advancer
	if advancer == nil {
		advancer = NewAdvancer(cfg)
	}
	trigger, err := scroll.NewTrigger(scroll.TriggerOptions{
		Pause:    coordinator,
		Advancer: advancer,
		Timing:   timing.Get,
		Clock:    clock,
		Logger:   logger.With("component", "trigger"),
	})
	if err != nil {
		return summary, fmt.Errorf("initialise manual trigger: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)

	if opts.DisableScroll {
		summary.Subsystems = append(summary.Subsystems, disabled("autoscroll", "disabled via flag"))
		logger.Info("autoscroll disabled via flag")
	} else {
		scroller, err := scroll.NewScroller(scroll.Options{
			Pause:             coordinator,
			Advancer:          advancer,
			Timing:            timing.Get,
			Clock:             clock,
			Logger:            logger.With("component", "autoscroll"),
			StartupMultiplier: cfg.Autoscroll.StartupMultiplier,
		})
		if err != nil {
			return summary, fmt.Errorf("initialise autoscroll: %w", err)
		}
		group.Go(func() error {
			return quiet(logger, "autoscroll", scroller.Run(gctx))
		})
		summary.Subsystems = append(summary.Subsystems, active("autoscroll", "", ""))
	}

	runner, status, err := buildEffect(cfg, opts, logger)
	if err != nil {
		return summary, err
	}
	summary.Subsystems = append(summary.Subsystems, status)

	matcher, err := sequence.NewMatcher(sequence.Options{Pattern: cfg.Sequence.Pattern, Alphabet: cfg.Sequence.Alphabet})
	if err != nil {
		return summary, fmt.Errorf("initialise sequence matcher: %w", err)
	}

	sources := opts.Sources
	if sources == nil {
		var statuses []session.SubsystemStatus
		sources, statuses = buildSources(cfg, logger, clock)
		summary.Subsystems = append(summary.Subsystems, statuses...)
	}

	var rel *relay.Relay
	if len(sources) == 0 {
		logger.Warn("no input sources configured; manual control and the secret code are unavailable")
	} else {
		dispatcher, err := input.NewDispatcher(cfg.Input.Bindings, Actions(trigger, cfg, logger), logger.With("component", "dispatcher"))
		if err != nil {
			return summary, fmt.Errorf("initialise dispatcher: %w", err)
		}
		var onMatch func(context.Context)
		if runner != nil {
			onMatch = func(ctx context.Context) { runner.Trigger(ctx) }
		}
		rel, err = relay.New(relay.Options{
			Source:     input.MergeSources(sources...),
			Downstream: dispatcher,
			Matcher:    matcher,
			OnMatch:    onMatch,
			Logger:     logger.With("component", "relay"),
		})
		if err != nil {
			return summary, fmt.Errorf("initialise relay: %w", err)
		}
		group.Go(func() error {
			return quiet(logger, "relay", rel.Run(gctx))
		})
	}

	if path := cfg.Source; path != "" && !strings.HasPrefix(path, "<") {
		group.Go(func() error {
			err := config.Watch(gctx, path, logger.With("component", "config"), func(updated config.Config) {
				timing.Store(updated)
			})
			return quiet(logger, "config watcher", err)
		})
	}

	if opts.OnStarted != nil {
		opts.OnStarted(append([]session.SubsystemStatus(nil), summary.Subsystems...))
	}
	logger.Info("statusscreen running", "pause_backend", cfg.Pause.Backend, "pattern_length", matcher.Len(), "sources", len(sources))

	waitErr := group.Wait()
	if runner != nil {
		runner.Wait()
	}
	if rel != nil {
		summary.Relay = rel.Stats()
	}

	summary.FinishedAt = clock().UTC()
	summary.Termination = TerminationCompleted
	if ctx.Err() != nil {
		summary.Termination = TerminationSignal
	}
	return summary, waitErr
}

// quiet logs an actor failure and swallows it so the other actors keep
// running. Cancellation is not a failure.
func quiet(logger *slog.Logger, name string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	logger.Error("actor stopped", "actor", name, "error", err)
	return nil
}

// OpenPause opens the configured pause store and wraps it in a coordinator.
// The caller closes the store.
func OpenPause(cfg config.Config, layout session.Layout, logger *slog.Logger) (pause.Store, *pause.Coordinator, error) {
	if cfg.Pause.Backend != config.BackendMemory {
		if err := session.EnsureFilesystem(layout); err != nil {
			return nil, nil, err
		}
	}
	store, err := pause.Open(cfg.Pause.Backend, layout.PausePath, layout.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open pause store: %w", err)
	}
	coordinator, err := pause.NewCoordinator(store, logger.With("component", "pause"))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, coordinator, nil
}

// NewAdvancer runs the configured browser advance command.
func NewAdvancer(cfg config.Config) scroll.Advancer {
	return scroll.CommandAdvancer{Command: cfg.Browser.AdvanceCommand}
}

// TimingFromConfig converts the autoscroll settings.
func TimingFromConfig(cfg config.Config) scroll.Timing {
	return scroll.Timing{
		Interval: time.Duration(cfg.Autoscroll.IntervalSeconds) * time.Second,
		Pause:    time.Duration(cfg.Autoscroll.PauseSeconds) * time.Second,
	}
}

// LiveTiming holds the latest autoscroll timing across config reloads.
type LiveTiming struct {
	current atomic.Pointer[scroll.Timing]
}

// NewLiveTiming starts from cfg.
func NewLiveTiming(cfg config.Config) *LiveTiming {
	lt := &LiveTiming{}
	lt.Store(cfg)
	return lt
}

// Store replaces the timing with the values from cfg.
func (lt *LiveTiming) Store(cfg config.Config) {
	timing := TimingFromConfig(cfg)
	lt.current.Store(&timing)
}

// Get returns the current timing; it satisfies scroll.TimingFunc.
func (lt *LiveTiming) Get() scroll.Timing {
	return *lt.current.Load()
}

// Actions binds dispatcher actions to the manual trigger and browser commands.
func Actions(trigger *scroll.Trigger, cfg config.Config, logger *slog.Logger) input.Actions {
	keyCommand := strings.TrimSpace(cfg.Browser.KeyCommand)
	return input.Actions{
		Toggle: func(ctx context.Context) error {
			outcome, err := trigger.Invoke(ctx)
			if err != nil {
				return err
			}
			logger.Info("manual trigger", "outcome", string(outcome))
			return nil
		},
		Advance: trigger.Resume,
		Keys: func(_ context.Context, keys string) error {
			return shell.Start(keyCommand + " " + keys)
		},
		Exec: func(_ context.Context, command string) error {
			return shell.Start(command)
		},
	}
}

func buildEffect(cfg config.Config, opts Options, logger *slog.Logger) (*effect.Runner, session.SubsystemStatus, error) {
	switch {
	case opts.DisableEffect:
		return nil, disabled("effect", "disabled via flag"), nil
	case !cfg.Effect.Enabled:
		return nil, disabled("effect", "disabled via config"), nil
	}

	surface := opts.Surface
	launcher := opts.Launcher
	status := active("effect", "custom", "")
	if surface == nil || launcher == nil {
		env := effect.DetectEnvironment(cfg.Effect.Framebuffer, cfg.Effect.Command)
		status = session.SubsystemStatus{
			Name:       "effect",
			Enabled:    true,
			Available:  env.Available,
			State:      session.SubsystemStateActive,
			Provider:   env.Provider,
			Permission: env.Permission,
			Message:    env.Message,
		}
		if strings.TrimSpace(cfg.Effect.Command) == "" {
			status.State = session.SubsystemStateDisabled
			logger.Info("effect disabled: no effect command configured")
			return nil, status, nil
		}
		if !env.Available {
			// The device may appear later (fbdev loaded after login), so keep
			// the runner and let each run report its own failure.
			status.State = session.SubsystemStateUnavailable
			logger.Warn("effect backend unavailable", "message", env.Message, "guidance", env.Guidance)
		}
		if surface == nil {
			surface = effect.FramebufferSurface{Path: cfg.Effect.Framebuffer}
		}
		if launcher == nil {
			launcher = effect.CommandLauncher{Command: cfg.Effect.Command}
		}
	}

	runner, err := effect.NewRunner(effect.Options{
		Surface:  surface,
		Launcher: launcher,
		Duration: time.Duration(cfg.Effect.DurationSeconds) * time.Second,
		Logger:   logger.With("component", "effect"),
	})
	if err != nil {
		return nil, status, fmt.Errorf("initialise effect runner: %w", err)
	}
	return runner, status, nil
}

func buildSources(cfg config.Config, logger *slog.Logger, clock func() time.Time) ([]input.EventSource, []session.SubsystemStatus) {
	var (
		sources  []input.EventSource
		statuses []session.SubsystemStatus
	)

	if device := strings.TrimSpace(cfg.Input.Device); device != "" {
		env := input.DetectEnvironment(device)
		source, err := input.NewDeviceSource(input.DeviceOptions{Path: device, Logger: logger.With("component", "gamepad"), Clock: clock})
		status := session.SubsystemStatus{
			Name:       "gamepad",
			Enabled:    true,
			Available:  env.Available,
			State:      session.SubsystemStateActive,
			Provider:   env.Provider,
			Permission: env.Permission,
			Message:    env.Message,
		}
		if err != nil {
			status.State = session.SubsystemStateUnavailable
			status.Message = err.Error()
		} else {
			sources = append(sources, source)
		}
		statuses = append(statuses, status)
	} else {
		statuses = append(statuses, disabled("gamepad", "no input.device configured"))
	}

	if feed := strings.TrimSpace(cfg.Input.Feed); feed != "" {
		source, err := input.NewLineSource(input.LineOptions{Path: feed, Logger: logger.With("component", "feed"), Clock: clock})
		if err != nil {
			statuses = append(statuses, unavailable("feed", err.Error()))
		} else {
			sources = append(sources, source)
			statuses = append(statuses, active("feed", "line", feed))
		}
	}

	if listen := strings.TrimSpace(cfg.Input.Listen); listen != "" {
		source, err := input.NewWebsocketSource(input.WebsocketOptions{Listen: listen, Logger: logger.With("component", "page"), Clock: clock})
		if err != nil {
			statuses = append(statuses, unavailable("page", err.Error()))
		} else {
			sources = append(sources, source)
			statuses = append(statuses, active("page", "websocket", listen+input.WebsocketPath))
		}
	}

	return sources, statuses
}

func active(name, provider, message string) session.SubsystemStatus {
	return session.SubsystemStatus{Name: name, Enabled: true, Available: true, State: session.SubsystemStateActive, Provider: provider, Message: message}
}

func disabled(name, message string) session.SubsystemStatus {
	return session.SubsystemStatus{Name: name, State: session.SubsystemStateDisabled, Message: message}
}

func unavailable(name, message string) session.SubsystemStatus {
	return session.SubsystemStatus{Name: name, Enabled: true, State: session.SubsystemStateUnavailable, Message: message}
}
