package scroll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/offlinefirst/statusscreen/pkg/logging"
	"github.com/offlinefirst/statusscreen/pkg/telemetry"
)

// Options configure a Scroller.
type Options struct {
	Pause    PauseState
	Advancer Advancer
	Timing   TimingFunc
	Clock    func() time.Time
	Sleeper  func(context.Context, time.Duration) error
	Logger   *slog.Logger
	Tracer   trace.Tracer
	// StartupMultiplier stretches the first wait while the browser loads.
	StartupMultiplier int
}

// Scroller advances the display on a fixed cadence unless paused.
type Scroller struct {
	pause      PauseState
	advancer   Advancer
	timing     TimingFunc
	clock      func() time.Time
	sleeper    func(context.Context, time.Duration) error
	logger     *slog.Logger
	tracer     trace.Tracer
	multiplier int
}

// NewScroller validates options and returns a scroller instance.
func NewScroller(opts Options) (*Scroller, error) {
	if opts.Pause == nil {
		return nil, errors.New("scroller requires pause state")
	}
	if opts.Advancer == nil {
		return nil, errors.New("scroller requires an advancer")
	}
	timing := opts.Timing
	if timing == nil {
		timing = StaticTiming(DefaultTiming())
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	multiplier := opts.StartupMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	return &Scroller{
		pause:      opts.Pause,
		advancer:   opts.Advancer,
		timing:     timing,
		clock:      clock,
		sleeper:    sleeper,
		logger:     logging.OrDiscard(opts.Logger),
		tracer:     tracer,
		multiplier: multiplier,
	}, nil
}

// Tick performs one check: skip while paused, otherwise advance and clear
// any expired pause.
func (s *Scroller) Tick(ctx context.Context) Outcome {
	ctx, span := s.tracer.Start(ctx, "scroll.tick")
	defer span.End()

	outcome := s.tick(ctx)
	span.SetAttributes(attribute.String("scroll.outcome", string(outcome)))
	return outcome
}

func (s *Scroller) tick(ctx context.Context) Outcome {
	now := s.clock()
	if s.pause.IsPaused(ctx, now) {
		s.logger.Debug("autoscroll paused, skipping")
		return OutcomeSkipped
	}
	if err := s.advancer.Advance(ctx); err != nil {
		s.logger.Warn("autoscroll advance failed", "error", err)
		return OutcomeFailed
	}
	if err := s.pause.MarkActive(ctx, now); err != nil {
		s.logger.Warn("unable to clear pause state", "error", err)
	}
	s.logger.Debug("autoscroll advanced")
	return OutcomeAdvanced
}

// Run ticks until ctx is cancelled. The first wait is the interval times the
// startup multiplier.
func (s *Scroller) Run(ctx context.Context) error {
	wait := s.interval() * time.Duration(s.multiplier)
	s.logger.Info("autoscroll started", "first_tick_in", wait.String())
	for {
		if err := s.sleeper(ctx, wait); err != nil {
			return err
		}
		s.Tick(ctx)
		wait = s.interval()
	}
}

func (s *Scroller) interval() time.Duration {
	interval := s.timing().Interval
	if interval <= 0 {
		return DefaultTiming().Interval
	}
	return interval
}

func defaultSleeper(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
