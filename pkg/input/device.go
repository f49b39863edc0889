package input

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/logging"
)

// Linux input event types and codes (from <linux/input.h>).
const (
	evKey = 0x01
	evAbs = 0x03

	absX = 0x00
	absY = 0x01

	btnGamepadFirst = 288 // BTN_JOYSTICK / BTN_TRIGGER
	btnGamepadLast  = 303
	btnExtraFirst   = 704 // BTN_TRIGGER_HAPPY1
	btnExtraLast    = 712

	// Hat axes on the kiosk pads rest at 127.
	absCentre = 127

	evValuePress = 1

	// struct input_event on 64-bit platforms: timeval (16), type, code, value.
	recordSize = 24
)

// buttonSymbols names the face and shoulder buttons by decoded button id.
var buttonSymbols = map[int]string{
	0: "X",
	1: "A",
	2: "B",
	3: "Y",
	4: "LB",
	5: "RB",
	8: "E", // select
	9: "S", // start
}

// DeviceSource reads a gamepad through its evdev node.
type DeviceSource struct {
	path   string
	name   string
	retry  time.Duration
	logger *slog.Logger
	clock  func() time.Time
}

// DeviceOptions configure a DeviceSource.
type DeviceOptions struct {
	Path   string
	Name   string
	Retry  time.Duration
	Logger *slog.Logger
	Clock  func() time.Time
}

// NewDeviceSource validates options.
func NewDeviceSource(opts DeviceOptions) (*DeviceSource, error) {
	if opts.Path == "" {
		return nil, errors.New("device path must not be empty")
	}
	name := opts.Name
	if name == "" {
		name = "gamepad"
	}
	retry := opts.Retry
	if retry <= 0 {
		retry = time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &DeviceSource{
		path:   opts.Path,
		name:   name,
		retry:  retry,
		logger: logging.OrDiscard(opts.Logger),
		clock:  clock,
	}, nil
}

// Stream opens the device and decodes events, reopening it after errors
// until ctx is done.
func (d *DeviceSource) Stream(ctx context.Context, emit func(Event) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		file, err := os.Open(d.path)
		if err != nil {
			d.logger.Error("unable to open input device", "device", d.name, "path", d.path, "error", err)
		} else {
			d.logger.Info("opened input device", "device", d.name, "path", d.path)
			err = d.readFile(ctx, file, emit)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, errEmit) {
				return err
			}
			d.logger.Error("error reading input events", "device", d.name, "error", err)
		}

		timer := time.NewTimer(d.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var errEmit = errors.New("emit failed")

func (d *DeviceSource) readFile(ctx context.Context, file *os.File, emit func(Event) error) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// Unblocks the pending read when the context ends.
		select {
		case <-ctx.Done():
		case <-stop:
		}
		file.Close()
	}()

	return ReadEvents(file, d.name, d.clock, emit)
}

// ReadEvents decodes input_event records from r and emits one Event per
// recognised key press or hat movement. Other records are ignored. It
// returns when r fails; io.EOF is reported as-is.
func ReadEvents(r io.Reader, source string, clock func() time.Time, emit func(Event) error) error {
	if clock == nil {
		clock = time.Now
	}
	reader := bufio.NewReaderSize(r, recordSize*64)
	record := make([]byte, recordSize)
	for {
		if _, err := io.ReadFull(reader, record); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("truncated input record: %w", err)
			}
			return err
		}
		typ, code, value := decodeRecord(record)
		symbol, ok := symbolFor(typ, code, value)
		if !ok {
			continue
		}
		if err := emit(Event{Symbol: symbol, Source: source, At: clock()}); err != nil {
			return fmt.Errorf("%w: %v", errEmit, err)
		}
	}
}

func decodeRecord(record []byte) (typ, code uint16, value int32) {
	typ = binary.NativeEndian.Uint16(record[16:18])
	code = binary.NativeEndian.Uint16(record[18:20])
	value = int32(binary.NativeEndian.Uint32(record[20:24]))
	return typ, code, value
}

func symbolFor(typ, code uint16, value int32) (string, bool) {
	switch typ {
	case evKey:
		if value != evValuePress {
			return "", false
		}
		switch {
		case code >= btnGamepadFirst && code <= btnGamepadLast:
			return buttonSymbol(int(code - btnGamepadFirst)), true
		case code >= btnExtraFirst && code <= btnExtraLast:
			return buttonSymbol(int(code-btnExtraFirst) + 16), true
		}
	case evAbs:
		switch code {
		case absX:
			if value < absCentre {
				return "L", true
			}
			if value > absCentre {
				return "R", true
			}
		case absY:
			if value < absCentre {
				return "U", true
			}
			if value > absCentre {
				return "D", true
			}
		}
	}
	return "", false
}

func buttonSymbol(id int) string {
	if symbol, ok := buttonSymbols[id]; ok {
		return symbol
	}
	return "BTN" + strconv.Itoa(id)
}
