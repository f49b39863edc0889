package scroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/offlinefirst/statusscreen/pkg/logging"
	"github.com/offlinefirst/statusscreen/pkg/telemetry"
)

// TriggerOptions configure a manual Trigger.
type TriggerOptions struct {
	Pause    PauseState
	Advancer Advancer
	Timing   TimingFunc
	Clock    func() time.Time
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Trigger is the manual control: the first press pauses autoscroll, a press
// while paused advances and resumes.
type Trigger struct {
	pause    PauseState
	advancer Advancer
	timing   TimingFunc
	clock    func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewTrigger validates options.
func NewTrigger(opts TriggerOptions) (*Trigger, error) {
	if opts.Pause == nil {
		return nil, errors.New("trigger requires pause state")
	}
	if opts.Advancer == nil {
		return nil, errors.New("trigger requires an advancer")
	}
	timing := opts.Timing
	if timing == nil {
		timing = StaticTiming(DefaultTiming())
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	return &Trigger{
		pause:    opts.Pause,
		advancer: opts.Advancer,
		timing:   timing,
		clock:    clock,
		logger:   logging.OrDiscard(opts.Logger),
		tracer:   tracer,
	}, nil
}

// Invoke applies one manual activation.
func (t *Trigger) Invoke(ctx context.Context) (outcome Outcome, err error) {
	ctx, span := t.tracer.Start(ctx, "scroll.trigger")
	defer func() {
		span.SetAttributes(attribute.String("scroll.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	now := t.clock()
	if t.pause.IsPaused(ctx, now) {
		if err := t.advancer.Advance(ctx); err != nil {
			return OutcomeFailed, fmt.Errorf("advance: %w", err)
		}
		if err := t.pause.MarkActive(ctx, now); err != nil {
			return OutcomeFailed, fmt.Errorf("resume autoscroll: %w", err)
		}
		t.logger.Info("manual advance, autoscroll resumed")
		return OutcomeAdvanced, nil
	}

	pause := t.timing().Pause
	if pause <= 0 {
		pause = DefaultTiming().Pause
	}
	if err := t.pause.ExtendPause(ctx, now, pause); err != nil {
		return OutcomeFailed, fmt.Errorf("pause autoscroll: %w", err)
	}
	return OutcomePaused, nil
}

// Resume advances and clears any pause, the way navigating by hand does.
func (t *Trigger) Resume(ctx context.Context) error {
	if err := t.advancer.Advance(ctx); err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	return t.pause.MarkActive(ctx, t.clock())
}
