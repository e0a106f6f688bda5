package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/st3v3nmw/mutexcheck/internal/topology"
	"github.com/st3v3nmw/mutexcheck/internal/trace"
	"github.com/st3v3nmw/mutexcheck/internal/transport"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func checkMark() string { return green("✓") }
func crossMark() string { return red("✗") }

// Verdict prints a one-line verdict for the trace read from source.
func Verdict(w io.Writer, source string, v trace.Verdict) {
	if v.OK() {
		fmt.Fprintf(w, "%s %s: %s\n", checkMark(), bold(source), v)
		return
	}

	fmt.Fprintf(w, "%s %s: %s\n", crossMark(), bold(source), red(v))
}

type verdictJSON struct {
	Trace string `json:"trace"`
	OK    bool   `json:"ok"`
	trace.Verdict
	Message string `json:"message"`
}

// VerdictJSON writes the verdict as a single JSON object.
func VerdictJSON(w io.Writer, source string, v trace.Verdict) error {
	return json.NewEncoder(w).Encode(verdictJSON{
		Trace:   source,
		OK:      v.OK(),
		Verdict: v,
		Message: v.String(),
	})
}

// Commands prints each node's invocation as a shell command line.
func Commands(w io.Writer, t transport.Transport, commands []topology.LaunchCommand) {
	for _, cmd := range commands {
		fmt.Fprintln(w, faint(fmt.Sprintf("# node %d on %s", cmd.Node, cmd.Host)))
		fmt.Fprintln(w, transport.Render(t, cmd))
	}
}

// Results prints how each launched node exited.
func Results(w io.Writer, results []transport.Result) {
	for _, result := range results {
		if !result.Failed() {
			fmt.Fprintf(w, "%s node %d on %s %s\n", checkMark(), result.Node, result.Host, faint("(log: "+result.LogPath+")"))
			continue
		}

		detail := fmt.Sprintf("exited with status %d", result.ExitCode)
		switch {
		case result.Err != nil:
			detail = result.Err.Error()
		case result.ExitCode < 0:
			detail = "was killed by a signal"
		}
		fmt.Fprintf(w, "%s node %d on %s %s %s\n", crossMark(), result.Node, result.Host, red(detail), faint("(log: "+result.LogPath+")"))
	}
}

type commandJSON struct {
	topology.LaunchCommand
	Command string `json:"command"`
}

// CommandsJSON writes the commands as a JSON array.
func CommandsJSON(w io.Writer, t transport.Transport, commands []topology.LaunchCommand) error {
	out := make([]commandJSON, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, commandJSON{LaunchCommand: cmd, Command: transport.Render(t, cmd)})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
