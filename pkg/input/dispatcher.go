package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/offlinefirst/statusscreen/pkg/logging"
)

// Binding actions.
const (
	ActionPause   = "pause"
	ActionAdvance = "advance"
	keyPrefix     = "key:"
	execPrefix    = "exec:"
)

// Actions are the downstream effects a binding can invoke.
type Actions struct {
	// Toggle runs the manual pause/advance trigger.
	Toggle func(ctx context.Context) error
	// Advance moves to the next screen and clears any pause.
	Advance func(ctx context.Context) error
	// Keys sends a key chord to the browser.
	Keys func(ctx context.Context, keys string) error
	// Exec runs an arbitrary command.
	Exec func(ctx context.Context, command string) error
}

type binding struct {
	kind string
	arg  string
}

// Dispatcher is the downstream consumer of relayed events.
type Dispatcher struct {
	bindings map[string]binding
	actions  Actions
	logger   *slog.Logger
}

// NewDispatcher parses bindings of the form symbol -> action.
func NewDispatcher(bindings map[string]string, actions Actions, logger *slog.Logger) (*Dispatcher, error) {
	parsed := make(map[string]binding, len(bindings))
	for symbol, action := range bindings {
		b, err := parseBinding(action)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", symbol, err)
		}
		parsed[symbol] = b
	}
	return &Dispatcher{
		bindings: parsed,
		actions:  actions,
		logger:   logging.OrDiscard(logger),
	}, nil
}

func parseBinding(action string) (binding, error) {
	action = strings.TrimSpace(action)
	switch {
	case action == ActionPause, action == ActionAdvance:
		return binding{kind: action}, nil
	case strings.HasPrefix(action, keyPrefix):
		keys := strings.TrimSpace(strings.TrimPrefix(action, keyPrefix))
		if keys == "" {
			return binding{}, errors.New("key binding needs keys")
		}
		return binding{kind: keyPrefix, arg: keys}, nil
	case strings.HasPrefix(action, execPrefix):
		command := strings.TrimSpace(strings.TrimPrefix(action, execPrefix))
		if command == "" {
			return binding{}, errors.New("exec binding needs a command")
		}
		return binding{kind: execPrefix, arg: command}, nil
	default:
		return binding{}, fmt.Errorf("unknown action %q", action)
	}
}

// Symbols lists bound symbols in sorted order.
func (d *Dispatcher) Symbols() []string {
	symbols := make([]string, 0, len(d.bindings))
	for symbol := range d.bindings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Consume runs the action bound to the event's symbol. Action failures are
// logged; the event stream continues.
func (d *Dispatcher) Consume(ctx context.Context, event Event) {
	b, ok := d.bindings[event.Symbol]
	if !ok {
		d.logger.Debug("unbound input", "symbol", event.Symbol, "source", event.Source)
		return
	}

	var err error
	switch b.kind {
	case ActionPause:
		err = call(d.actions.Toggle, ctx)
	case ActionAdvance:
		err = call(d.actions.Advance, ctx)
	case keyPrefix:
		err = callArg(d.actions.Keys, ctx, b.arg)
	case execPrefix:
		err = callArg(d.actions.Exec, ctx, b.arg)
	}
	if err != nil {
		d.logger.Warn("input action failed", "symbol", event.Symbol, "action", b.kind, "error", err)
		return
	}
	d.logger.Debug("input action", "symbol", event.Symbol, "action", b.kind)
}

var errNoAction = errors.New("action not configured")

func call(fn func(context.Context) error, ctx context.Context) error {
	if fn == nil {
		return errNoAction
	}
	return fn(ctx)
}

func callArg(fn func(context.Context, string) error, ctx context.Context, arg string) error {
	if fn == nil {
		return errNoAction
	}
	return fn(ctx, arg)
}
