package transport

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/st3v3nmw/mutexcheck/internal/config"
	"github.com/st3v3nmw/mutexcheck/internal/topology"
)

// Transport turns a node's launch command into the local process that starts
// it.
type Transport interface {
	Command(cmd topology.LaunchCommand) *exec.Cmd
}

var (
	_ Transport = SSH{}
	_ Transport = Local{}
)

// New returns the transport the config selects.
func New(cfg *config.Config) (Transport, error) {
	switch cfg.Transport {
	case "ssh":
		return SSH{User: cfg.SSH.User, Options: cfg.SSH.Options, RemoteDir: cfg.RemoteDir}, nil
	case "local":
		dir := cfg.RemoteDir
		if rest, ok := strings.CutPrefix(dir, "~/"); ok {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
			}
			dir = filepath.Join(home, rest)
		}
		return Local{Dir: dir}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// quoteDir quotes a directory for a remote shell, leaving a leading "~/"
// outside the quotes so the remote shell still expands it.
func quoteDir(dir string) string {
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		if rest == "" {
			return "~/"
		}
		return "~/" + shellescape.Quote(rest)
	}

	return shellescape.Quote(dir)
}

// SSH starts each node on its own host over ssh.
type SSH struct {
	User string
	// Options are passed to ssh as "-o <option>".
	Options   []string
	RemoteDir string
}

func (s SSH) Command(cmd topology.LaunchCommand) *exec.Cmd {
	args := make([]string, 0, 2*len(s.Options)+2)
	for _, opt := range s.Options {
		args = append(args, "-o", opt)
	}

	target := cmd.Host
	if s.User != "" {
		target = s.User + "@" + cmd.Host
	}

	return exec.Command("ssh", append(args, target, s.Remote(cmd))...)
}

// Remote returns the shell command line run on the node's host.
func (s SSH) Remote(cmd topology.LaunchCommand) string {
	var b commandBuilder
	b.add(cmd.Argv...)

	if s.RemoteDir == "" {
		return b.String()
	}

	return "cd " + quoteDir(s.RemoteDir) + " && " + b.String()
}

// Local runs every node on this machine, ignoring its host.
type Local struct {
	// Dir is the working directory of the node processes.
	Dir string
}

func (l Local) Command(cmd topology.LaunchCommand) *exec.Cmd {
	proc := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	proc.Dir = l.Dir
	return proc
}

// Render returns the invocation as a copy-pasteable shell command line.
func Render(t Transport, cmd topology.LaunchCommand) string {
	proc := t.Command(cmd)

	var b commandBuilder
	if proc.Dir != "" {
		b = append(b, "cd", quoteDir(proc.Dir), "&&")
	}
	b.add(proc.Args...)
	return b.String()
}
