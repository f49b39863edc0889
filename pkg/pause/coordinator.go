package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/logging"
)

// Coordinator evaluates and updates the shared pause timestamp. Every decision
// is a pure function of the caller's now and the latest stored value; a
// missing or unreadable value counts as not paused.
type Coordinator struct {
	store  Store
	logger *slog.Logger
}

// NewCoordinator wraps store.
func NewCoordinator(store Store, logger *slog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("pause store must be provided")
	}
	return &Coordinator{store: store, logger: logging.OrDiscard(logger)}, nil
}

// Init records now as the pause timestamp unless a readable value already
// exists. Calling it repeatedly is harmless.
func (c *Coordinator) Init(ctx context.Context, now time.Time) error {
	_, err := c.store.Load(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoState):
		c.logger.Debug("initialising pause state", "paused_until", now)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		c.logger.Warn("replacing unreadable pause state", "error", err)
	}
	if err := c.store.Save(ctx, now); err != nil {
		return fmt.Errorf("initialise pause state: %w", err)
	}
	return nil
}

// IsPaused reports whether the stored timestamp lies after now.
func (c *Coordinator) IsPaused(ctx context.Context, now time.Time) bool {
	until, ok := c.PausedUntil(ctx)
	if !ok {
		return false
	}
	return until.After(now)
}

// PausedUntil returns the stored timestamp and whether it could be read.
func (c *Coordinator) PausedUntil(ctx context.Context) (time.Time, bool) {
	until, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoState) {
			c.logger.Debug("no pause state, treating as active")
		} else {
			c.logger.Warn("pause state unreadable, treating as active", "error", err)
		}
		return time.Time{}, false
	}
	return until, true
}

// ExtendPause suppresses advancing until now+d, replacing any earlier value.
func (c *Coordinator) ExtendPause(ctx context.Context, now time.Time, d time.Duration) error {
	until := now.Add(d)
	if err := c.store.Save(ctx, until); err != nil {
		return fmt.Errorf("extend pause: %w", err)
	}
	c.logger.Info("paused", "paused_until", until.UTC().Format(time.RFC3339))
	return nil
}

// MarkActive clears any pause by moving the timestamp to now.
func (c *Coordinator) MarkActive(ctx context.Context, now time.Time) error {
	if err := c.store.Save(ctx, now); err != nil {
		return fmt.Errorf("mark active: %w", err)
	}
	return nil
}
