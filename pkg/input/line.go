package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/logging"
)

// StdinPath selects standard input as a line feed.
const StdinPath = "-"

// LineSource reads one symbol per line from a file, a named pipe or stdin.
type LineSource struct {
	path   string
	name   string
	logger *slog.Logger
	clock  func() time.Time
	stdin  io.Reader
}

// LineOptions configure a LineSource.
type LineOptions struct {
	Path   string
	Name   string
	Logger *slog.Logger
	Clock  func() time.Time
	// Stdin replaces os.Stdin when Path is "-".
	Stdin io.Reader
}

// NewLineSource validates options.
func NewLineSource(opts LineOptions) (*LineSource, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("feed path must not be empty")
	}
	name := opts.Name
	if name == "" {
		name = "feed"
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	return &LineSource{
		path:   path,
		name:   name,
		logger: logging.OrDiscard(opts.Logger),
		clock:  clock,
		stdin:  stdin,
	}, nil
}

// Stream emits each valid line until the feed ends or ctx is done. A named
// pipe is opened read-write so it stays open across writers and never
// reports EOF.
func (l *LineSource) Stream(ctx context.Context, emit func(Event) error) error {
	if l.path == StdinPath {
		return l.scan(ctx, l.stdin, emit)
	}

	flag := os.O_RDONLY
	if info, err := os.Stat(l.path); err == nil && info.Mode()&os.ModeNamedPipe != 0 {
		flag = os.O_RDWR
	}
	file, err := os.OpenFile(l.path, flag, 0)
	if err != nil {
		return fmt.Errorf("open feed %q: %w", l.path, err)
	}
	l.logger.Info("reading input feed", "feed", l.name, "path", l.path)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		file.Close()
	}()

	err = l.scan(ctx, file, emit)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// maxLineLength bounds a feed line. Longer lines are discarded whole.
const maxLineLength = 1024

// scan reads on its own goroutine so that cancellation returns promptly even
// when the reader cannot be closed, as with stdin.
func (l *LineSource) scan(ctx context.Context, r io.Reader, emit func(Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		errc <- l.readLines(r, func(line string) bool {
			select {
			case lines <- line:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			symbol, valid := ParseSymbol(line)
			if !valid {
				l.logger.Debug("skipping malformed input line", "feed", l.name, "line", truncate(line, 32))
				continue
			}
			if err := emit(Event{Symbol: symbol, Source: l.name, At: l.clock()}); err != nil {
				return err
			}
		}
	}
}

// readLines passes each line to deliver until EOF or deliver returns false.
func (l *LineSource) readLines(r io.Reader, deliver func(string) bool) error {
	reader := bufio.NewReaderSize(r, maxLineLength)
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read feed %q: %w", l.path, err)
		}
		if isPrefix {
			discarded := len(chunk)
			for isPrefix {
				chunk, isPrefix, err = reader.ReadLine()
				if err != nil {
					break
				}
				discarded += len(chunk)
			}
			l.logger.Debug("skipping oversized input line", "feed", l.name, "bytes", discarded)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read feed %q: %w", l.path, err)
			}
			continue
		}
		if !deliver(string(chunk)) {
			return nil
		}
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
