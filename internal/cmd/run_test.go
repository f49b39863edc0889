package cmd

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/config"
	"github.com/offlinefirst/statusscreen/pkg/daemon"
	"github.com/offlinefirst/statusscreen/pkg/scroll"
	"github.com/offlinefirst/statusscreen/pkg/session"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.RuntimeDir = t.TempDir()
	cfg.Effect.Enabled = false
	return cfg
}

func runFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	newRunCommand().configure(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

type countingAdvancer struct{ calls int }

func (a *countingAdvancer) Advance(context.Context) error {
	a.calls++
	return nil
}

func stubAdvancer(t *testing.T) *countingAdvancer {
	t.Helper()
	advancer := &countingAdvancer{}
	orig := newAdvancer
	newAdvancer = func(config.Config) scroll.Advancer { return advancer }
	t.Cleanup(func() { newAdvancer = orig })
	return advancer
}

func TestRunCommandPlanOnly(t *testing.T) {
	ctx := &AppContext{Config: testConfig(t), Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runDaemon(runFlags(t, "-plan-only"), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runDaemon returned error: %v", err)
	}
	for _, want := range []string{"Resolved configuration", "sequence.pattern: U U D D L R L R B A S", "input.bindings.click: pause"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("expected %q in plan output, got %q", want, stdout.String())
		}
	}
}

func TestRunCommandWritesManifest(t *testing.T) {
	cfg := testConfig(t)
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	origTime := timeNow
	timeNow = func() time.Time { return now }
	defer func() { timeNow = origTime }()

	origHost := hostname
	hostname = func() (string, error) { return "kiosk-1", nil }
	defer func() { hostname = origHost }()

	var sawRunning bool
	origRun := daemonRun
	daemonRun = func(ctx context.Context, opts daemon.Options) (daemon.Summary, error) {
		if !opts.DisableScroll || opts.DisableEffect {
			t.Errorf("unexpected flags: scroll disabled=%t effect disabled=%t", opts.DisableScroll, opts.DisableEffect)
		}
		statuses := []session.SubsystemStatus{{Name: "autoscroll", State: session.SubsystemStateDisabled}}
		opts.OnStarted(statuses)
		man, err := session.Load(opts.Layout.ManifestPath)
		sawRunning = err == nil && man.State == session.StateRunning
		return daemon.Summary{StartedAt: now, FinishedAt: now.Add(time.Minute), Termination: daemon.TerminationSignal, Subsystems: statuses}, nil
	}
	defer func() { daemonRun = origRun }()

	var stdout bytes.Buffer
	if err := runDaemon(runFlags(t, "-no-scroll"), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runDaemon returned error: %v", err)
	}
	if !sawRunning {
		t.Fatalf("expected running manifest while the daemon runs")
	}

	man, err := session.Load(sessionLayout(cfg).ManifestPath)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if man.State != session.StateStopped || man.StoppedAt == nil {
		t.Fatalf("expected stopped manifest, got %+v", man)
	}
	if man.Hostname != "kiosk-1" || len(man.Subsystems) != 1 {
		t.Fatalf("unexpected manifest %+v", man)
	}
	if !strings.Contains(stdout.String(), "Stopped (signal) after 1m0s") {
		t.Fatalf("expected stop summary, got %q", stdout.String())
	}
}

func TestRunCommandStopsOnSignalContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Autoscroll.IntervalSeconds = 3600
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}
	stubAdvancer(t)

	origCtx := runContext
	runContext = func() (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)
		return ctx, cancel
	}
	defer func() { runContext = origCtx }()

	var stdout bytes.Buffer
	if err := runDaemon(runFlags(t), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runDaemon returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "Stopped (signal)") {
		t.Fatalf("expected signal termination, got %q", stdout.String())
	}
}

func TestToggleThenStatusThenToggle(t *testing.T) {
	cfg := testConfig(t)
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}
	advancer := stubAdvancer(t)

	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	origTime := timeNow
	timeNow = func() time.Time { return now }
	defer func() { timeNow = origTime }()

	var out bytes.Buffer
	if err := runToggle(nil, nil, ctx, &out, io.Discard); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if strings.TrimSpace(out.String()) != string(scroll.OutcomePaused) {
		t.Fatalf("expected paused, got %q", out.String())
	}

	out.Reset()
	if err := runStatus(nil, nil, ctx, &out, io.Discard); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "paused until 2024-05-12T09:45:00Z (15m0s remaining)") {
		t.Fatalf("unexpected status %q", out.String())
	}

	out.Reset()
	if err := runTick(nil, nil, ctx, &out, io.Discard); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if strings.TrimSpace(out.String()) != string(scroll.OutcomeSkipped) {
		t.Fatalf("expected tick to skip while paused, got %q", out.String())
	}

	out.Reset()
	if err := runToggle(nil, nil, ctx, &out, io.Discard); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if strings.TrimSpace(out.String()) != string(scroll.OutcomeAdvanced) {
		t.Fatalf("expected advanced, got %q", out.String())
	}
	if advancer.calls != 1 {
		t.Fatalf("expected one advance, got %d", advancer.calls)
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	ctx := &AppContext{Config: testConfig(t), Logger: newTestLogger()}
	var out bytes.Buffer
	if err := runDoctor(nil, nil, ctx, &out, io.Discard); err != nil {
		t.Fatalf("doctor: %v", err)
	}
	for _, name := range []string{"runtime_dir", "effect", "gamepad", "advance_command"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("expected %s check, got %q", name, out.String())
		}
	}
}

func TestRootCommandDispatches(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOutput(&stdout, &stderr)

	if err := root.Execute([]string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if stdout.Len() == 0 {
		t.Fatalf("expected version output")
	}
	if err := root.Execute([]string{"bogus"}); err == nil {
		t.Fatalf("expected unknown command error")
	}

	stdout.Reset()
	if err := root.Execute(nil); err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"run", "toggle", "tick", "status", "doctor"} {
		if !strings.Contains(stdout.String(), name) {
			t.Fatalf("expected %s in help, got %q", name, stdout.String())
		}
	}
}
