package effect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/shell"
)

const defaultGrace = 2 * time.Second

// Launcher starts the visual effect.
type Launcher interface {
	Start(ctx context.Context) (Process, error)
}

// Process is a running effect.
type Process interface {
	// Terminate stops the effect and waits for it to exit.
	Terminate() error
	// Done is closed once the effect has exited.
	Done() <-chan struct{}
}

// CommandLauncher runs the effect as a shell command in its own process group.
type CommandLauncher struct {
	Command string
	// Grace is the time between SIGTERM and SIGKILL.
	Grace time.Duration
}

// Start launches the command. Cancelling ctx does not stop the process;
// the runner terminates it explicitly so the display can be restored after.
func (l CommandLauncher) Start(ctx context.Context) (Process, error) {
	if strings.TrimSpace(l.Command) == "" {
		return nil, errors.New("effect command must not be empty")
	}
	cmd, err := shell.Command(context.WithoutCancel(ctx), l.Command)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start effect: %w", err)
	}

	grace := l.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	proc := &commandProcess{cmd: cmd, grace: grace, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()
	return proc, nil
}

type commandProcess struct {
	cmd   *exec.Cmd
	grace time.Duration
	done  chan struct{}
}

func (p *commandProcess) Terminate() error {
	return shell.Terminate(p.cmd, p.done, p.grace)
}

func (p *commandProcess) Done() <-chan struct{} {
	return p.done
}
