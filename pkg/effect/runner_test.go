package effect

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type memorySurface struct {
	mu       sync.Mutex
	pixels   []byte
	captures int
	restores int
}

func (m *memorySurface) Capture(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures++
	return append([]byte(nil), m.pixels...), nil
}

func (m *memorySurface) Restore(_ context.Context, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores++
	m.pixels = append(m.pixels[:0], snapshot...)
	return nil
}

func (m *memorySurface) scribble() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pixels {
		m.pixels[i] = 0xFF
	}
	m.pixels = append(m.pixels, 0xAA)
}

func (m *memorySurface) snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.pixels...)
}

// endlessLauncher draws over the surface and never exits on its own.
type endlessLauncher struct {
	surface      *memorySurface
	terminateErr error
	mu           sync.Mutex
	starts       int
	terminated   int
}

func (l *endlessLauncher) Start(context.Context) (Process, error) {
	l.mu.Lock()
	l.starts++
	l.mu.Unlock()
	l.surface.scribble()
	return &endlessProcess{launcher: l, done: make(chan struct{})}, nil
}

type endlessProcess struct {
	launcher *endlessLauncher
	done     chan struct{}
	once     sync.Once
}

func (p *endlessProcess) Terminate() error {
	p.launcher.mu.Lock()
	p.launcher.terminated++
	err := p.launcher.terminateErr
	p.launcher.mu.Unlock()
	if err != nil {
		return err
	}
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *endlessProcess) Done() <-chan struct{} { return p.done }

func newSurface() *memorySurface {
	pixels := make([]byte, 4096)
	for i := range pixels {
		pixels[i] = byte(i * 7)
	}
	return &memorySurface{pixels: pixels}
}

func TestRunRestoresDisplayBitForBit(t *testing.T) {
	surface := newSurface()
	original := surface.snapshot()
	launcher := &endlessLauncher{surface: surface}

	runner, err := NewRunner(Options{Surface: surface, Launcher: launcher, Duration: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !bytes.Equal(surface.snapshot(), original) {
		t.Fatalf("display not restored")
	}
	if launcher.starts != 1 || launcher.terminated != 1 {
		t.Fatalf("expected one start and one terminate, got %d/%d", launcher.starts, launcher.terminated)
	}
	if runner.Running() {
		t.Fatalf("runner still busy after run")
	}
}

func TestRunRestoresEvenWhenTerminateFails(t *testing.T) {
	surface := newSurface()
	original := surface.snapshot()
	launcher := &endlessLauncher{surface: surface, terminateErr: errors.New("stuck")}

	runner, err := NewRunner(Options{Surface: surface, Launcher: launcher, Duration: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	err = runner.Run(context.Background())
	if err == nil {
		t.Fatalf("expected terminate error to be reported")
	}
	if !bytes.Equal(surface.snapshot(), original) {
		t.Fatalf("display not restored after terminate failure")
	}
}

func TestRunRestoresWhenCancelled(t *testing.T) {
	surface := newSurface()
	original := surface.snapshot()
	launcher := &endlessLauncher{surface: surface}

	runner, err := NewRunner(Options{Surface: surface, Launcher: launcher, Duration: time.Hour})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !bytes.Equal(surface.snapshot(), original) {
		t.Fatalf("display not restored after cancel")
	}
}

func TestConcurrentTriggerIsDropped(t *testing.T) {
	surface := newSurface()
	original := surface.snapshot()
	launcher := &endlessLauncher{surface: surface}

	runner, err := NewRunner(Options{Surface: surface, Launcher: launcher, Duration: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if !runner.Trigger(context.Background()) {
		t.Fatalf("first trigger should start an effect")
	}
	if runner.Trigger(context.Background()) {
		t.Fatalf("second trigger should be dropped while busy")
	}
	if err := runner.Run(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	runner.Wait()

	if launcher.starts != 1 {
		t.Fatalf("expected a single effect, got %d", launcher.starts)
	}
	if surface.captures != 1 || surface.restores != 1 {
		t.Fatalf("expected one capture and restore, got %d/%d", surface.captures, surface.restores)
	}
	if !bytes.Equal(surface.snapshot(), original) {
		t.Fatalf("display not restored")
	}
	if !runner.Trigger(context.Background()) {
		t.Fatalf("trigger after completion should start a new effect")
	}
	runner.Wait()
}

type failingSurface struct{}

func (failingSurface) Capture(context.Context) ([]byte, error) { return nil, errors.New("no fb") }
func (failingSurface) Restore(context.Context, []byte) error  { return nil }

func TestCaptureFailureSkipsEffect(t *testing.T) {
	launcher := &endlessLauncher{surface: newSurface()}
	runner, err := NewRunner(Options{Surface: failingSurface{}, Launcher: launcher, Duration: time.Millisecond})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected capture error")
	}
	if launcher.starts != 0 {
		t.Fatalf("effect must not start without a capture")
	}
}

func TestFramebufferSurfaceWithCommandLauncher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb0")
	original := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 256)
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatalf("write framebuffer: %v", err)
	}

	runner, err := NewRunner(Options{
		Surface:  FramebufferSurface{Path: path},
		Launcher: CommandLauncher{Command: "printf 'garbage garbage' > " + path + "; exec sleep 30", Grace: time.Second},
		Duration: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read framebuffer: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Fatalf("framebuffer not restored bit for bit")
	}
}

func TestNewRunnerValidates(t *testing.T) {
	surface := newSurface()
	launcher := &endlessLauncher{surface: surface}
	if _, err := NewRunner(Options{Launcher: launcher, Duration: time.Second}); err == nil {
		t.Fatalf("expected error without surface")
	}
	if _, err := NewRunner(Options{Surface: surface, Duration: time.Second}); err == nil {
		t.Fatalf("expected error without launcher")
	}
	if _, err := NewRunner(Options{Surface: surface, Launcher: launcher}); err == nil {
		t.Fatalf("expected error without duration")
	}
}

func TestDetectEnvironmentDisabledWithoutCommand(t *testing.T) {
	env := DetectEnvironment("/dev/fb0", "")
	if env.Available || env.Provider != providerDisabled {
		t.Fatalf("unexpected environment %+v", env)
	}
}
