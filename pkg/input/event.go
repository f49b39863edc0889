// Package input turns raw gamepad records, line feeds and kiosk page messages
// into a single stream of named symbols, and dispatches symbols to browser
// actions.
package input

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event is one discrete input symbol in arrival order.
type Event struct {
	Symbol string
	Source string
	At     time.Time
}

// EventSource emits input events until the context ends or the feed closes.
// emit is never called concurrently by a single source.
type EventSource interface {
	Stream(ctx context.Context, emit func(Event) error) error
}

// EventSourceFunc adapts a function literal to the EventSource interface.
type EventSourceFunc func(ctx context.Context, emit func(Event) error) error

// Stream calls the underlying function.
func (f EventSourceFunc) Stream(ctx context.Context, emit func(Event) error) error {
	return f(ctx, emit)
}

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9_+-]{1,16}$`)

// ParseSymbol validates a textual symbol. Malformed tokens are rejected so
// they are never relayed.
func ParseSymbol(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !symbolPattern.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}

// MergeSources fans several sources into one. Each source keeps its own order and
// calls to emit are serialised. MergeSources returns when every source has returned;
// the first non-nil error is reported.
func MergeSources(sources ...EventSource) EventSource {
	return EventSourceFunc(func(ctx context.Context, emit func(Event) error) error {
		active := make([]EventSource, 0, len(sources))
		for _, source := range sources {
			if source != nil {
				active = append(active, source)
			}
		}
		if len(active) == 0 {
			return errors.New("no input sources configured")
		}
		if len(active) == 1 {
			return active[0].Stream(ctx, emit)
		}

		var mu sync.Mutex
		serialised := func(event Event) error {
			mu.Lock()
			defer mu.Unlock()
			return emit(event)
		}

		errs := make(chan error, len(active))
		for _, source := range active {
			go func(source EventSource) {
				errs <- source.Stream(ctx, serialised)
			}(source)
		}

		var first error
		for range active {
			if err := <-errs; err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
