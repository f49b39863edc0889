// Package scroll drives the periodic screen advance and the manual
// pause/advance trigger. Both share one pause window.
package scroll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/shell"
)

// Outcome is what a tick or a manual trigger did.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeAdvanced Outcome = "advanced"
	OutcomePaused   Outcome = "paused"
	OutcomeFailed   Outcome = "failed"
)

// Timing carries the autoscroll cadence and the manual pause length.
type Timing struct {
	Interval time.Duration
	Pause    time.Duration
}

// DefaultTiming matches the stock kiosk configuration.
func DefaultTiming() Timing {
	return Timing{Interval: 20 * time.Second, Pause: 900 * time.Second}
}

// TimingFunc returns the current timing; it is consulted on every tick so
// configuration reloads take effect without a restart.
type TimingFunc func() Timing

// StaticTiming returns a TimingFunc that always yields t.
func StaticTiming(t Timing) TimingFunc {
	return func() Timing { return t }
}

// PauseState is the pause protocol shared with the coordinator.
type PauseState interface {
	IsPaused(ctx context.Context, now time.Time) bool
	ExtendPause(ctx context.Context, now time.Time, d time.Duration) error
	MarkActive(ctx context.Context, now time.Time) error
}

// Advancer moves the display to the next screen.
type Advancer interface {
	Advance(ctx context.Context) error
}

// AdvancerFunc adapts a function to Advancer.
type AdvancerFunc func(ctx context.Context) error

// Advance calls f.
func (f AdvancerFunc) Advance(ctx context.Context) error {
	return f(ctx)
}

// CommandAdvancer runs a shell command, typically a browser key press. The
// command is started and not waited on.
type CommandAdvancer struct {
	Command string
}

// Advance starts the command.
func (c CommandAdvancer) Advance(ctx context.Context) error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("advance command must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return shell.Start(c.Command)
}
