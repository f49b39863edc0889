// Package relay forwards the input stream to its consumer unchanged while a
// side path watches the same events for the secret code.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/offlinefirst/statusscreen/pkg/input"
	"github.com/offlinefirst/statusscreen/pkg/logging"
	"github.com/offlinefirst/statusscreen/pkg/sequence"
)

const defaultBuffer = 64

// Consumer receives every relayed event in arrival order.
type Consumer interface {
	Consume(ctx context.Context, event input.Event)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, event input.Event)

// Consume calls f.
func (f ConsumerFunc) Consume(ctx context.Context, event input.Event) {
	f(ctx, event)
}

// Options configure a Relay.
type Options struct {
	Source     input.EventSource
	Downstream Consumer
	Matcher    *sequence.Matcher
	// OnMatch runs on the match goroutine each time the pattern completes.
	OnMatch func(ctx context.Context)
	Logger  *slog.Logger
	// Buffer bounds the events waiting for the matcher. Events beyond it are
	// dropped from matching but still forwarded.
	Buffer int
}

// Stats counts relay activity since construction.
type Stats struct {
	Forwarded uint64
	Observed  uint64
	Dropped   uint64
	Matched   uint64
}

// Relay connects one event source to one consumer and one matcher.
type Relay struct {
	source     input.EventSource
	downstream Consumer
	matcher    *sequence.Matcher
	onMatch    func(ctx context.Context)
	logger     *slog.Logger
	buffer     int

	forwarded atomic.Uint64
	observed  atomic.Uint64
	dropped   atomic.Uint64
	matched   atomic.Uint64
}

// New validates options and returns a relay.
func New(opts Options) (*Relay, error) {
	if opts.Source == nil {
		return nil, errors.New("relay requires an event source")
	}
	if opts.Downstream == nil {
		return nil, errors.New("relay requires a downstream consumer")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Relay{
		source:     opts.Source,
		downstream: opts.Downstream,
		matcher:    opts.Matcher,
		onMatch:    opts.OnMatch,
		logger:     logging.OrDiscard(opts.Logger),
		buffer:     buffer,
	}, nil
}

// Run relays events until the source ends or ctx is done. The matcher runs on
// its own goroutine; nothing it does can delay or alter forwarding.
func (r *Relay) Run(ctx context.Context) error {
	var (
		queue chan input.Event
		wg    sync.WaitGroup
	)
	if r.matcher != nil {
		queue = make(chan input.Event, r.buffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.matchLoop(ctx, queue)
		}()
	}

	err := r.source.Stream(ctx, func(event input.Event) error {
		r.forward(ctx, event)
		if queue != nil {
			select {
			case queue <- event:
			default:
				if r.dropped.Add(1) == 1 {
					r.logger.Warn("matcher falling behind; dropping events from code matching", "buffer", r.buffer, "symbol", event.Symbol)
				}
			}
		}
		return nil
	})

	if queue != nil {
		close(queue)
		wg.Wait()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("input source: %w", err)
	}
	return err
}

func (r *Relay) forward(ctx context.Context, event input.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("downstream consumer panicked", "symbol", event.Symbol, "panic", fmt.Sprint(rec))
		}
	}()
	r.forwarded.Add(1)
	r.downstream.Consume(ctx, event)
}

func (r *Relay) matchLoop(ctx context.Context, queue <-chan input.Event) {
	for event := range queue {
		r.observe(ctx, event)
	}
}

func (r *Relay) observe(ctx context.Context, event input.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("sequence match panicked", "symbol", event.Symbol, "panic", fmt.Sprint(rec))
		}
	}()

	r.observed.Add(1)
	if !r.matcher.Observe(event.Symbol) {
		if progress := r.matcher.Progress(); progress > 0 {
			r.logger.Debug("code progress", "progress", progress, "length", r.matcher.Len())
		}
		return
	}
	r.matched.Add(1)
	r.logger.Info("secret code entered", "source", event.Source)
	if r.onMatch != nil {
		r.onMatch(ctx)
	}
}

// Stats returns a snapshot of the counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Forwarded: r.forwarded.Load(),
		Observed:  r.observed.Load(),
		Dropped:   r.dropped.Load(),
		Matched:   r.matched.Load(),
	}
}
