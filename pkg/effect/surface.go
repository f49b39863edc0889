package effect

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Surface is the display whose contents an effect temporarily replaces.
type Surface interface {
	// Capture returns an exact copy of the visible contents.
	Capture(ctx context.Context) ([]byte, error)
	// Restore writes a previous capture back.
	Restore(ctx context.Context, snapshot []byte) error
}

// FramebufferSurface reads and writes a Linux framebuffer device as raw bytes.
type FramebufferSurface struct {
	Path string
}

// Capture reads the whole device.
func (f FramebufferSurface) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Path == "" {
		return nil, errors.New("framebuffer path must not be empty")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read framebuffer %s: %w", f.Path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("framebuffer %s is empty", f.Path)
	}
	return data, nil
}

// Restore writes snapshot from offset zero.
func (f FramebufferSurface) Restore(ctx context.Context, snapshot []byte) error {
	if len(snapshot) == 0 {
		return errors.New("nothing to restore")
	}
	file, err := os.OpenFile(f.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open framebuffer %s: %w", f.Path, err)
	}
	defer file.Close()

	if _, err := file.WriteAt(snapshot, 0); err != nil {
		return fmt.Errorf("write framebuffer %s: %w", f.Path, err)
	}
	// Devices have a fixed size; regular files (tests, fbdev dumps) may have grown.
	if info, err := file.Stat(); err == nil && info.Mode().IsRegular() && info.Size() != int64(len(snapshot)) {
		if err := file.Truncate(int64(len(snapshot))); err != nil {
			return fmt.Errorf("truncate %s: %w", f.Path, err)
		}
	}
	return nil
}
