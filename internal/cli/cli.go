package cli

import (
	"context"
	"errors"

	commands "github.com/urfave/cli/v3"

	"github.com/st3v3nmw/mutexcheck/internal/config"
	"github.com/st3v3nmw/mutexcheck/internal/logging"
	"github.com/st3v3nmw/mutexcheck/internal/trace"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitViolation = 1
	ExitError     = 2
)

// New returns the mutexcheck command tree.
func New() *commands.Command {
	return &commands.Command{
		Name:  "mutexcheck",
		Usage: "Launch a quorum mutual exclusion experiment and audit its trace",
		Flags: []commands.Flag{
			&commands.StringFlag{
				Name:    "config",
				Usage:   "Path to the config file (default: " + config.DefaultPath + " if present)",
				Aliases: []string{"c"},
			},
			&commands.BoolFlag{
				Name:    "verbose",
				Usage:   "Show debug logs",
				Aliases: []string{"v"},
				Value:   false,
			},
		},
		Before: func(ctx context.Context, cmd *commands.Command) (context.Context, error) {
			logger := logging.New(cmd.Root().ErrWriter, cmd.Bool("verbose"))
			return logging.NewContext(ctx, logger), nil
		},
		Commands: []*commands.Command{
			{
				Name:      "launch",
				Usage:     "Print, or run, the command that starts each node",
				ArgsUsage: "<topology>",
				Flags: []commands.Flag{
					&commands.StringFlag{
						Name:  "transport",
						Usage: "How nodes are started: ssh or local",
					},
					&commands.BoolFlag{
						Name:  "exec",
						Usage: "Start the nodes and wait for them to exit",
					},
					&commands.BoolFlag{
						Name:  "json",
						Usage: "Print the commands as JSON",
					},
				},
				Action: Launch,
			},
			{
				Name:      "verify",
				Usage:     "Check a merged trace for mutual exclusion violations",
				ArgsUsage: "[trace|-]",
				Flags:     verifyFlags(),
				Action:    Verify,
			},
			{
				Name:      "run",
				Usage:     "Launch every node, wait, then verify the trace",
				ArgsUsage: "<topology>",
				Flags: []commands.Flag{
					&commands.StringFlag{
						Name:  "transport",
						Usage: "How nodes are started: ssh or local",
					},
					&commands.BoolFlag{
						Name:  "fresh",
						Usage: "Remove the trace file before launching",
					},
					&commands.BoolFlag{
						Name:  "no-launch",
						Usage: "Only verify the trace already on disk",
					},
				},
				Action: Run,
			},
			{
				Name:      "init",
				Usage:     "Write a default config file",
				ArgsUsage: "[path]",
				Flags: []commands.Flag{
					&commands.BoolFlag{
						Name:    "force",
						Usage:   "Overwrite an existing file",
						Aliases: []string{"f"},
					},
				},
				Action: Init,
			},
		},
	}
}

func verifyFlags() []commands.Flag {
	return []commands.Flag{
		&commands.StringFlag{
			Name:  "format",
			Usage: "Trace format: short, maekawa or jsonl",
		},
		&commands.StringFlag{
			Name:  "identity",
			Usage: "How node ids are compared: full or first-char",
		},
		&commands.BoolFlag{
			Name:  "allow-unclosed",
			Usage: "Accept a trace that ends inside the critical section",
		},
		&commands.BoolFlag{
			Name:  "strict",
			Usage: "Reject lines that are not events",
		},
		&commands.StringFlag{
			Name:  "kind-path",
			Usage: "gjson path of the event kind in jsonl traces",
		},
		&commands.StringFlag{
			Name:  "node-path",
			Usage: "gjson path of the node id in jsonl traces",
		},
		&commands.BoolFlag{
			Name:  "json",
			Usage: "Print the verdict as JSON",
		},
	}
}

// ExitCode maps an error returned by the command tree to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, trace.ErrViolation):
		return ExitViolation
	default:
		return ExitError
	}
}
