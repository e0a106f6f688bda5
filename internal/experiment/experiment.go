package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/st3v3nmw/mutexcheck/internal/config"
	"github.com/st3v3nmw/mutexcheck/internal/logging"
	"github.com/st3v3nmw/mutexcheck/internal/topology"
	"github.com/st3v3nmw/mutexcheck/internal/trace"
	"github.com/st3v3nmw/mutexcheck/internal/transport"
)

// Experiment is one end-to-end run of the protocol under test: distribute the
// topology, launch every node, then audit the merged trace.
type Experiment struct {
	Config    *config.Config
	Topology  string
	Transport transport.Transport

	// SkipLaunch verifies whatever trace is already on disk.
	SkipLaunch bool
	// Fresh removes the trace file before launching so a previous run's
	// events are not audited again.
	Fresh bool
}

// Outcome is everything an experiment produced, up to the step that failed.
type Outcome struct {
	Cluster  *topology.Cluster
	Commands []topology.LaunchCommand
	Results  []transport.Result
	Verdict  *trace.Verdict
}

// Run executes the experiment, reporting each step to out. The returned error
// is that of the first failing step.
func (e *Experiment) Run(ctx context.Context, out io.Writer) (*Outcome, error) {
	logger := logging.FromContext(ctx)
	outcome := &Outcome{}

	plan := NewPlan(out).
		Step("Parse topology", func(ctx context.Context) error {
			cluster, err := topology.ParseFile(e.Topology)
			if err != nil {
				return err
			}

			outcome.Cluster = cluster
			logger.Debug("parsed topology", "path", e.Topology, "nodes", cluster.N,
				"d", cluster.Delay, "c", cluster.Contention, "iters", cluster.Iterations)
			return nil
		}).
		Step("Build launch commands", func(ctx context.Context) error {
			outcome.Commands = outcome.Cluster.LaunchCommands(e.Config.Command...)
			for _, cmd := range outcome.Commands {
				logger.Debug("launch command", "node", cmd.Node, "cmd", transport.Render(e.Transport, cmd))
			}
			return nil
		}).
		Step("Reset trace", func(ctx context.Context) error {
			if !e.Fresh || e.SkipLaunch {
				return ErrSkipped
			}

			err := os.Remove(e.Config.Trace.Path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove old trace: %w", err)
			}
			return nil
		}).
		Step("Launch nodes", func(ctx context.Context) error {
			if e.SkipLaunch {
				return ErrSkipped
			}

			runner, err := transport.NewRunner(e.Transport, e.Config.Run.WorkingDir, e.Config.ShutdownTimeout())
			if err != nil {
				return err
			}

			results, err := runner.Run(ctx, outcome.Commands)
			outcome.Results = results
			if err != nil {
				return err
			}

			var failures []error
			for _, result := range results {
				if result.Failed() {
					failures = append(failures, fmt.Errorf("node %d on %s exited with status %d (log: %s)",
						result.Node, result.Host, result.ExitCode, result.LogPath))
				}
			}
			return errors.Join(failures...)
		}).
		Step("Verify trace", func(ctx context.Context) error {
			verdict, err := trace.VerifyFile(e.Config.Trace.Path, e.Config.TraceOptions())
			if err != nil {
				return err
			}

			outcome.Verdict = &verdict
			logger.Debug("verified trace", "path", e.Config.Trace.Path, "status", verdict.Status, "events", verdict.Events)
			return verdict.Err()
		})

	return outcome, plan.Run(ctx)
}
