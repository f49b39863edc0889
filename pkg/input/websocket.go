package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/offlinefirst/statusscreen/pkg/logging"
)

// WebsocketPath is where the kiosk page connects to send symbols.
const WebsocketPath = "/input"

const maxMessageSize = 64

// WebsocketSource accepts symbols from the kiosk page over a websocket. Every
// text message is one symbol.
type WebsocketSource struct {
	listen   string
	name     string
	logger   *slog.Logger
	clock    func() time.Time
	upgrader websocket.Upgrader
}

// WebsocketOptions configure a WebsocketSource.
type WebsocketOptions struct {
	Listen string
	Name   string
	Logger *slog.Logger
	Clock  func() time.Time
}

// NewWebsocketSource validates options.
func NewWebsocketSource(opts WebsocketOptions) (*WebsocketSource, error) {
	if opts.Listen == "" {
		return nil, errors.New("listen address must not be empty")
	}
	name := opts.Name
	if name == "" {
		name = "page"
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &WebsocketSource{
		listen: opts.Listen,
		name:   name,
		logger: logging.OrDiscard(opts.Logger),
		clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
			// The page is served from a local file:// origin.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Stream serves WebsocketPath on the listen address until ctx is done or an
// emit fails.
func (w *WebsocketSource) Stream(ctx context.Context, emit func(Event) error) error {
	listener, err := net.Listen("tcp", w.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", w.listen, err)
	}
	return w.serve(ctx, listener, emit)
}

func (w *WebsocketSource) serve(ctx context.Context, listener net.Listener, emit func(Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once    sync.Once
		emitErr error
	)
	fail := func(err error) {
		once.Do(func() {
			emitErr = err
			cancel()
		})
	}

	mux := http.NewServeMux()
	mux.Handle(WebsocketPath, w.Handler(ctx, emit, fail))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(listener)
	}()
	w.logger.Info("listening for page input", "address", listener.Addr().String(), "path", WebsocketPath)

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("websocket server shutdown", "error", err)
	}
	if emitErr != nil {
		return emitErr
	}
	return ctx.Err()
}

// Handler upgrades requests and emits every valid text message. Calls to
// emit are serialised across connections. fail, when set, receives the first
// emit error.
func (w *WebsocketSource) Handler(ctx context.Context, emit func(Event) error, fail func(error)) http.Handler {
	var mu sync.Mutex
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := w.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			w.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessageSize)

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
					w.logger.Debug("page connection closed", "remote", r.RemoteAddr, "error", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			symbol, ok := ParseSymbol(string(payload))
			if !ok {
				w.logger.Debug("discarding malformed page message", "remote", r.RemoteAddr)
				continue
			}

			mu.Lock()
			err = emit(Event{Symbol: symbol, Source: w.name, At: w.clock()})
			mu.Unlock()
			if err != nil {
				if fail != nil {
					fail(err)
				}
				return
			}
		}
	})
}
