package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/st3v3nmw/mutexcheck/internal/trace"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "mutexcheck.yaml"

type SSH struct {
	User    string   `yaml:"user,omitempty"`
	Options []string `yaml:"options"`
}

type JSONFields struct {
	Kind string `yaml:"kind"`
	Node string `yaml:"node"`
}

type Trace struct {
	Path          string     `yaml:"path"`
	Format        string     `yaml:"format"`
	Identity      string     `yaml:"identity"`
	AllowUnclosed bool       `yaml:"allow_unclosed"`
	Strict        bool       `yaml:"strict"`
	JSON          JSONFields `yaml:"json"`
}

type Run struct {
	WorkingDir      string `yaml:"working_dir"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// Config is the harness configuration: how nodes are invoked and how their
// trace is read back.
type Config struct {
	// Command is the invocation target every node's arguments are appended to.
	Command   []string `yaml:"command"`
	Transport string   `yaml:"transport"`
	// RemoteDir is changed into before the command runs on the node.
	RemoteDir string `yaml:"remote_dir,omitempty"`

	SSH   SSH   `yaml:"ssh"`
	Trace Trace `yaml:"trace"`
	Run   Run   `yaml:"run"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Command:   []string{"java", "Maekawa"},
		Transport: "ssh",
		SSH: SSH{
			Options: []string{"StrictHostKeyChecking=no"},
		},
		Trace: Trace{
			Path:     "Maekawa.txt",
			Format:   string(trace.FormatMaekawa),
			Identity: string(trace.IdentityFull),
			JSON:     JSONFields{Kind: "kind", Node: "node"},
		},
		Run: Run{
			WorkingDir:      ".mutexcheck",
			ShutdownTimeout: "10s",
		},
	}
}

// Load reads the config at path. An empty path means DefaultPath, which may
// be absent, in which case the defaults are returned.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultPath
	}

	// Parse config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if optional {
			return Default(), nil
		}
		return nil, fmt.Errorf("config file %s not found\nRun 'mutexcheck init' to create one", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validate(path, data); err != nil {
		return nil, err
	}

	var cfg Config
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	merged := withDefaults(&cfg)

	// Validation
	if _, err := time.ParseDuration(merged.Run.ShutdownTimeout); err != nil {
		return nil, fmt.Errorf("invalid run.shutdown_timeout: %w", err)
	}

	return merged, nil
}

// withDefaults fills every unset field of cfg from Default.
func withDefaults(cfg *Config) *Config {
	merged := Default()

	if len(cfg.Command) > 0 {
		merged.Command = cfg.Command
	}

	if cfg.Transport != "" {
		merged.Transport = cfg.Transport
	}

	merged.RemoteDir = cfg.RemoteDir
	merged.SSH.User = cfg.SSH.User

	if cfg.SSH.Options != nil {
		merged.SSH.Options = cfg.SSH.Options
	}

	if cfg.Trace.Path != "" {
		merged.Trace.Path = cfg.Trace.Path
	}

	if cfg.Trace.Format != "" {
		merged.Trace.Format = cfg.Trace.Format
	}

	if cfg.Trace.Identity != "" {
		merged.Trace.Identity = cfg.Trace.Identity
	}

	merged.Trace.AllowUnclosed = cfg.Trace.AllowUnclosed
	merged.Trace.Strict = cfg.Trace.Strict

	if cfg.Trace.JSON.Kind != "" {
		merged.Trace.JSON.Kind = cfg.Trace.JSON.Kind
	}

	if cfg.Trace.JSON.Node != "" {
		merged.Trace.JSON.Node = cfg.Trace.JSON.Node
	}

	if cfg.Run.WorkingDir != "" {
		merged.Run.WorkingDir = cfg.Run.WorkingDir
	}

	if cfg.Run.ShutdownTimeout != "" {
		merged.Run.ShutdownTimeout = cfg.Run.ShutdownTimeout
	}

	return merged
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// TraceOptions returns the verifier options the config describes.
func (c *Config) TraceOptions() trace.Options {
	return trace.Options{
		Format:        trace.Format(c.Trace.Format),
		Identity:      trace.Identity(c.Trace.Identity),
		AllowUnclosed: c.Trace.AllowUnclosed,
		Strict:        c.Trace.Strict,
		KindPath:      c.Trace.JSON.Kind,
		NodePath:      c.Trace.JSON.Node,
	}
}

// ShutdownTimeout returns how long stopped nodes get before SIGKILL.
func (c *Config) ShutdownTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Run.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}

	return timeout
}
