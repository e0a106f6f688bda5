package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	commands "github.com/urfave/cli/v3"

	"github.com/st3v3nmw/mutexcheck/internal/config"
	"github.com/st3v3nmw/mutexcheck/internal/experiment"
	"github.com/st3v3nmw/mutexcheck/internal/logging"
	"github.com/st3v3nmw/mutexcheck/internal/report"
	"github.com/st3v3nmw/mutexcheck/internal/topology"
	"github.com/st3v3nmw/mutexcheck/internal/trace"
	"github.com/st3v3nmw/mutexcheck/internal/transport"
)

func loadConfig(cmd *commands.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("transport") {
		cfg.Transport = cmd.String("transport")
	}

	return cfg, nil
}

func Launch(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("topology file is required\nUsage: mutexcheck launch <topology>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cluster, err := topology.ParseFile(cmd.Args().First())
	if err != nil {
		return err
	}

	t, err := transport.New(cfg)
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	launches := cluster.LaunchCommands(cfg.Command...)

	if !cmd.Bool("exec") {
		if cmd.Bool("json") {
			return report.CommandsJSON(out, t, launches)
		}

		report.Commands(out, t, launches)
		return nil
	}

	runner, err := transport.NewRunner(t, cfg.Run.WorkingDir, cfg.ShutdownTimeout())
	if err != nil {
		return err
	}

	results, err := runner.Run(ctx, launches)
	report.Results(out, results)
	if err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if result.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d nodes failed, logs are in %s", failed, len(results), runner.WorkingDir())
	}

	return nil
}

func traceOptions(cmd *commands.Command, cfg *config.Config) trace.Options {
	opts := cfg.TraceOptions()

	if cmd.IsSet("format") {
		opts.Format = trace.Format(cmd.String("format"))
	}

	if cmd.IsSet("identity") {
		opts.Identity = trace.Identity(cmd.String("identity"))
	}

	if cmd.IsSet("allow-unclosed") {
		opts.AllowUnclosed = cmd.Bool("allow-unclosed")
	}

	if cmd.IsSet("strict") {
		opts.Strict = cmd.Bool("strict")
	}

	if cmd.IsSet("kind-path") {
		opts.KindPath = cmd.String("kind-path")
	}

	if cmd.IsSet("node-path") {
		opts.NodePath = cmd.String("node-path")
	}

	return opts
}

func Verify(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() > 1 {
		return fmt.Errorf("too many arguments\nUsage: mutexcheck verify [trace|-]")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	source := cfg.Trace.Path
	if cmd.NArg() == 1 {
		source = cmd.Args().First()
	}

	opts := traceOptions(cmd, cfg)

	var verdict trace.Verdict
	if source == "-" {
		verdict, err = trace.Verify(cmd.Root().Reader, opts)
	} else {
		verdict, err = trace.VerifyFile(source, opts)
	}
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Debug("verified trace", "trace", source, "format", opts.Format, "status", verdict.Status)

	out := cmd.Root().Writer
	if cmd.Bool("json") {
		if err := report.VerdictJSON(out, source, verdict); err != nil {
			return fmt.Errorf("failed to write verdict: %w", err)
		}
	} else {
		report.Verdict(out, source, verdict)
	}

	return verdict.Err()
}

func Run(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("topology file is required\nUsage: mutexcheck run <topology>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	t, err := transport.New(cfg)
	if err != nil {
		return err
	}

	exp := &experiment.Experiment{
		Config:     cfg,
		Topology:   cmd.Args().First(),
		Transport:  t,
		SkipLaunch: cmd.Bool("no-launch"),
		Fresh:      cmd.Bool("fresh"),
	}

	out := cmd.Root().Writer
	outcome, err := exp.Run(ctx, out)

	if len(outcome.Results) > 0 {
		fmt.Fprintln(out)
		report.Results(out, outcome.Results)
	}

	if outcome.Verdict != nil {
		fmt.Fprintln(out)
		report.Verdict(out, cfg.Trace.Path, *outcome.Verdict)
	}

	return err
}

func Init(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() > 1 {
		return fmt.Errorf("too many arguments\nUsage: mutexcheck init [path]")
	}

	path := config.DefaultPath
	if cmd.NArg() == 1 {
		path = cmd.Args().First()
	}

	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists\nUse --force to overwrite it", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	if err := config.SaveTo(config.Default(), path); err != nil {
		return err
	}

	out := cmd.Root().Writer
	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "Set command to the program that runs one node, then run 'mutexcheck run <topology>'.")

	return nil
}
