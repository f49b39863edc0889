// Package effect shows a short visual effect over the kiosk display and puts
// the display back exactly as it was afterwards.
package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/offlinefirst/statusscreen/pkg/logging"
	"github.com/offlinefirst/statusscreen/pkg/telemetry"
)

// ErrBusy is returned by Run while another effect is on screen.
var ErrBusy = errors.New("effect already running")

// Options configure a Runner.
type Options struct {
	Surface  Surface
	Launcher Launcher
	// Duration is how long the effect stays on screen.
	Duration time.Duration
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Runner runs at most one effect at a time.
type Runner struct {
	surface  Surface
	launcher Launcher
	duration time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewRunner validates options.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Surface == nil {
		return nil, errors.New("effect runner requires a surface")
	}
	if opts.Launcher == nil {
		return nil, errors.New("effect runner requires a launcher")
	}
	if opts.Duration <= 0 {
		return nil, errors.New("effect duration must be positive")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	return &Runner{
		surface:  opts.Surface,
		launcher: opts.Launcher,
		duration: opts.Duration,
		logger:   logging.OrDiscard(opts.Logger),
		tracer:   tracer,
	}, nil
}

// Trigger starts an effect in the background. It returns false, and does
// nothing, when an effect is already in progress; triggers are never queued.
func (r *Runner) Trigger(ctx context.Context) bool {
	if !r.busy.CompareAndSwap(false, true) {
		r.logger.Info("effect already running, trigger dropped")
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)
		if err := r.run(ctx); err != nil {
			r.logger.Error("effect failed", "error", err)
		}
	}()
	return true
}

// Run performs one effect synchronously, or returns ErrBusy.
func (r *Runner) Run(ctx context.Context) error {
	if !r.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer r.busy.Store(false)
	return r.run(ctx)
}

// Running reports whether an effect is in progress.
func (r *Runner) Running() bool {
	return r.busy.Load()
}

// Wait blocks until effects started by Trigger have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) (err error) {
	ctx, span := r.tracer.Start(ctx, "effect.run",
		trace.WithAttributes(attribute.Int64("effect.duration_ms", r.duration.Milliseconds())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	snapshot, err := r.surface.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture display: %w", err)
	}
	span.SetAttributes(attribute.Int("effect.snapshot_bytes", len(snapshot)))

	proc, err := r.launcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("start effect: %w", err)
	}
	r.logger.Info("effect started", "duration", r.duration.String())

	timer := time.NewTimer(r.duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	// The effect is stopped at the deadline even if it already exited.
	termErr := proc.Terminate()
	if termErr != nil {
		r.logger.Warn("effect did not terminate cleanly", "error", termErr)
		termErr = fmt.Errorf("terminate effect: %w", termErr)
	}

	restoreErr := r.surface.Restore(context.WithoutCancel(ctx), snapshot)
	snapshot = nil
	if restoreErr != nil {
		restoreErr = fmt.Errorf("restore display: %w", restoreErr)
	} else {
		r.logger.Info("display restored")
	}

	return errors.Join(termErr, restoreErr)
}
