// Package shell starts external commands through `sh -c`, the way the kiosk
// scripts and the browser glue expect to be invoked.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Interpreter is the shell used to run command strings.
var Interpreter = "sh"

// Command builds an exec.Cmd running command through the shell in its own
// process group, so the whole tree can be signalled at once.
func Command(ctx context.Context, command string) (*exec.Cmd, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return nil, errors.New("command must not be empty")
	}
	cmd := exec.CommandContext(ctx, Interpreter, "-c", trimmed)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd, nil
}

// Start launches command without waiting for it. The child is reaped in the
// background; its exit status is not observed.
func Start(command string) error {
	// Detached from any request context: the command outlives the caller.
	cmd, err := Command(context.Background(), command)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Run executes command and waits for it to exit.
func Run(ctx context.Context, command string) error {
	cmd, err := Command(ctx, command)
	if err != nil {
		return err
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("run %q: %w (%s)", command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Terminate signals the process group of a started command with SIGTERM and
// escalates to SIGKILL when the group has not gone within grace. done must be
// closed when the group leader has been reaped. The group is signalled even
// after the leader exits, since background children stay in it.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return errors.New("process not started")
	}

	pgid := -cmd.Process.Pid
	if err := signalGroup(pgid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process group: %w", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(groupPollInterval)
	defer ticker.Stop()
	for {
		if reaped(done) && !groupAlive(pgid) {
			return nil
		}
		select {
		case <-timer.C:
			if err := signalGroup(pgid, syscall.SIGKILL); err != nil {
				return fmt.Errorf("kill process group: %w", err)
			}
			<-done
			return nil
		case <-ticker.C:
		}
	}
}

const groupPollInterval = 20 * time.Millisecond

// signalGroup treats a group that no longer exists as signalled.
func signalGroup(pgid int, sig syscall.Signal) error {
	if err := syscall.Kill(pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func groupAlive(pgid int) bool {
	return syscall.Kill(pgid, 0) == nil
}

func reaped(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
