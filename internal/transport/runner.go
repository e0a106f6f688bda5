package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/st3v3nmw/mutexcheck/internal/logging"
	"github.com/st3v3nmw/mutexcheck/internal/topology"
	"github.com/st3v3nmw/mutexcheck/pkg/threadsafe"
)

// Runner starts every node of an experiment and waits for all of them.
type Runner struct {
	transport       Transport
	processes       *threadsafe.Map[int, *Process]
	workingDir      string
	runID           string
	shutdownTimeout time.Duration
}

// Process is one running node.
type Process struct {
	cmd     *exec.Cmd
	launch  topology.LaunchCommand
	logFile *os.File
	logPath string

	done chan struct{}
	err  error
}

// Result is how a node process ended.
type Result struct {
	Node     int
	Host     string
	ExitCode int
	LogPath  string
	Err      error
}

// Failed reports whether the node exited abnormally.
func (r Result) Failed() bool {
	return r.Err != nil || r.ExitCode != 0
}

// NewRunner creates a runner whose node logs go to a fresh run directory
// under baseDir.
func NewRunner(t Transport, baseDir string, shutdownTimeout time.Duration) (*Runner, error) {
	// Build working directory path with timestamp
	runID := uuid.NewString()[:8]
	timestamp := time.Now().Format("20060102-150405")
	workingDir := filepath.Join(baseDir, fmt.Sprintf("run-%s-%s", timestamp, runID))

	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	return &Runner{
		transport:       t,
		processes:       threadsafe.NewMap[int, *Process](),
		workingDir:      workingDir,
		runID:           runID,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// WorkingDir is the directory holding this run's node logs.
func (r *Runner) WorkingDir() string {
	return r.workingDir
}

// Run starts one process per command and waits until all have exited. If ctx
// is cancelled first, every node is stopped and ctx's error is returned along
// with the results.
func (r *Runner) Run(ctx context.Context, commands []topology.LaunchCommand) ([]Result, error) {
	logger := logging.FromContext(ctx).With("run", r.runID)

	for _, cmd := range commands {
		if err := r.start(cmd); err != nil {
			r.stopAll()
			return nil, err
		}
		logger.Debug("started node", "node", cmd.Node, "host", cmd.Host, "log", r.logPath(cmd.Node))
	}
	logger.Info("nodes started", "count", r.processes.Len(), "dir", r.workingDir)

	finished := make(chan struct{})
	defer close(finished)

	go func() {
		select {
		case <-ctx.Done():
			logger.Warn("stopping nodes", "reason", ctx.Err())
			r.stopAll()
		case <-finished:
		}
	}()

	results := make([]Result, 0, len(commands))
	for _, cmd := range commands {
		proc, _ := r.processes.Get(cmd.Node)
		<-proc.done

		result := proc.result()
		if result.Failed() {
			logger.Error("node failed", "node", result.Node, "exit", result.ExitCode, "err", result.Err)
		} else {
			logger.Debug("node exited", "node", result.Node)
		}
		results = append(results, result)
	}

	return results, ctx.Err()
}

func (r *Runner) logPath(node int) string {
	return filepath.Join(r.workingDir, fmt.Sprintf("node-%d.log", node))
}

// start launches one node in its own process group
func (r *Runner) start(launch topology.LaunchCommand) error {
	cmd := r.transport.Command(launch)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Redirect stdout/stderr to log file
	logPath := r.logPath(launch.Node)
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start node %d: %w", launch.Node, err)
	}

	proc := &Process{
		cmd:     cmd,
		launch:  launch,
		logFile: logFile,
		logPath: logPath,
		done:    make(chan struct{}),
	}

	go func() {
		proc.err = cmd.Wait()
		proc.logFile.Close()
		close(proc.done)
	}()

	r.processes.Set(launch.Node, proc)
	return nil
}

func (p *Process) result() Result {
	result := Result{
		Node:     p.launch.Node,
		Host:     p.launch.Host,
		ExitCode: p.cmd.ProcessState.ExitCode(),
		LogPath:  p.logPath,
	}

	var exitErr *exec.ExitError
	if p.err != nil && !errors.As(p.err, &exitErr) {
		result.Err = p.err
	}

	return result
}

// stop sends SIGTERM to the node's process group, then SIGKILL after the
// shutdown timeout
func (r *Runner) stop(proc *Process) {
	select {
	case <-proc.done:
		return
	default:
	}

	pgid := proc.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return
	}

	select {
	case <-proc.done:
		// Process exited gracefully
	case <-time.After(r.shutdownTimeout):
		syscall.Kill(-pgid, syscall.SIGKILL)
		<-proc.done
	}
}

func (r *Runner) stopAll() {
	var wg sync.WaitGroup
	r.processes.Range(func(_ int, proc *Process) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.stop(proc)
		}()
		return true
	})
	wg.Wait()
}
