package converter

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// terminateGrace is how long a terminated converter may take to exit before it is killed.
const terminateGrace = 10 * time.Second

// Process is a running converter instance.
type Process interface {
	// Alive reports whether the process is still running.
	Alive() bool
	// Wait blocks until the process exits or timeout elapses and reports
	// whether it exited.
	Wait(timeout time.Duration) bool
	// Terminate stops the process, forcing it after a grace period.
	Terminate() error
	// ExitCode returns the exit status, -1 while running or when killed by a signal.
	ExitCode() int
}

// Launcher starts converter processes.
type Launcher interface {
	// Start runs executable with args, sending combined stdout and stderr to outputPath.
	Start(executable string, args []string, outputPath string) (Process, error)
}

// ExecLauncher starts converters with os/exec.
type ExecLauncher struct{}

// Start implements Launcher.
func (ExecLauncher) Start(executable string, args []string, outputPath string) (Process, error) {
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create console output: %w", err)
	}

	cmd := exec.Command(executable, args...) //nolint:gosec
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("start %s: %w", executable, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{}), exitCode: -1}
	go func() {
		err := cmd.Wait()
		_ = out.Close()
		p.mu.Lock()
		p.exitCode = exitCodeOf(cmd, err)
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	mu       sync.Mutex
	exitCode int
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *execProcess) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return !p.Alive()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

func (p *execProcess) Terminate() error {
	if !p.Alive() {
		return nil
	}
	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal converter: %w", err)
	}
	if p.Wait(terminateGrace) {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill converter: %w", err)
	}
	<-p.done
	return nil
}

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
