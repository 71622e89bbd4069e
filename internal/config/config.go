// Package config loads and validates the optional .synthkit YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by Load.
const FileName = ".synthkit"

// Default values for runner configuration.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxOutput = 1 << 20 // 1 MB
)

// Tool names.
const (
	ABC   = "abc"
	Yosys = "yosys"
)

// CommandPlaceholder in a tool's args is replaced by the composite
// command. Without it the composite is written to standard input.
const CommandPlaceholder = "{command}"

// Config holds the parsed .synthkit configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int        `yaml:"version"`
	RawTimeout   string     `yaml:"timeout"`    // e.g. "5m", "30s"
	RawMaxOutput int        `yaml:"max_output"` // bytes
	MergeOutput  *bool      `yaml:"merge_output"`
	ResultsDir   string     `yaml:"results_dir"` // outcome store; temp dir when empty
	ABC          ToolConfig `yaml:"abc"`
	Yosys        ToolConfig `yaml:"yosys"`
}

// ToolConfig describes how to drive one external tool.
type ToolConfig struct {
	Binary       string         `yaml:"binary"`
	Args         []string       `yaml:"args"`          // argv after the binary
	Separator    string         `yaml:"separator"`     // sub-command separator, one character
	Marker       *string        `yaml:"marker"`        // command printing a boundary marker; "" disables
	ErrorMarkers []string       `yaml:"error_markers"` // case-insensitive substrings meaning failure
	Lengths      map[string]int `yaml:"lengths"`       // verb -> exact output length in bytes
	StatsCommand string         `yaml:"stats_command"` // verb of the statistics sub-command
	StatsLength  int            `yaml:"stats_length"`  // output length of StatsCommand; 0 = unknown
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// MergeOutputStreams reports whether stderr is captured into the same
// stream as stdout. Defaults to true so error text stays in order.
func (c *Config) MergeOutputStreams() bool {
	if c.MergeOutput != nil {
		return *c.MergeOutput
	}
	return true
}

// Tool returns the effective configuration for the named tool with
// defaults filled in.
func (c *Config) Tool(name string) (ToolConfig, error) {
	var user ToolConfig
	switch name {
	case ABC:
		user = c.ABC
	case Yosys:
		user = c.Yosys
	default:
		return ToolConfig{}, fmt.Errorf("unknown tool %q", name)
	}
	return user.withDefaults(defaultTools[name]), nil
}

func strPtr(s string) *string { return &s }

var defaultTools = map[string]ToolConfig{
	ABC: {
		Binary:       "abc",
		Args:         []string{"-c", CommandPlaceholder},
		Separator:    ";",
		Marker:       strPtr("echo %"),
		ErrorMarkers: []string{"error", "cannot open", "unknown command", "command not found"},
		Lengths: map[string]int{
			"read":         0,
			"read_verilog": 0,
			"read_blif":    0,
			"strash":       0,
			"balance":      0,
			"rewrite":      0,
			"refactor":     0,
			"map":          0,
			"write":        0,
			"write_bench":  0,
		},
		StatsCommand: "print_stats",
	},
	Yosys: {
		Binary:       "yosys",
		Args:         []string{"-p", CommandPlaceholder},
		Separator:    ";",
		Marker:       strPtr("log %"),
		ErrorMarkers: []string{"ERROR:"},
		StatsCommand: "stat",
	},
}

func (t ToolConfig) withDefaults(d ToolConfig) ToolConfig {
	if t.Binary == "" {
		t.Binary = d.Binary
	}
	if len(t.Args) == 0 {
		t.Args = d.Args
	}
	if t.Separator == "" {
		t.Separator = d.Separator
	}
	if t.Marker == nil {
		t.Marker = d.Marker
	}
	if len(t.ErrorMarkers) == 0 {
		t.ErrorMarkers = d.ErrorMarkers
	}
	lengths := make(map[string]int, len(d.Lengths)+len(t.Lengths))
	for k, v := range d.Lengths {
		lengths[k] = v
	}
	for k, v := range t.Lengths {
		lengths[k] = v
	}
	if t.StatsCommand == "" {
		t.StatsCommand = d.StatsCommand
	}
	if t.StatsLength > 0 && t.StatsCommand != "" {
		lengths[t.StatsCommand] = t.StatsLength
	}
	t.Lengths = lengths
	return t
}

// MarkerCommand returns the marker template, or "" when markers are disabled.
func (t ToolConfig) MarkerCommand() string {
	if t.Marker == nil {
		return ""
	}
	return *t.Marker
}

// Validate checks a tool configuration for mistakes that would make
// every run fail.
func (t ToolConfig) Validate() error {
	if t.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if len(t.Separator) != 1 {
		return fmt.Errorf("separator must be a single character, got %q", t.Separator)
	}
	if m := t.MarkerCommand(); m != "" && strings.Count(m, "%") != 1 {
		return fmt.Errorf("marker must contain exactly one %% placeholder, got %q", m)
	}
	for verb, n := range t.Lengths {
		if n < 0 {
			return fmt.Errorf("length of %q must not be negative", verb)
		}
	}
	return nil
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .synthkit; falls back to workspace
}

// Load reads the .synthkit file. The file is discovered by walking upward
// from workspace. If none exists, a default Config rooted at workspace is
// returned.
func Load(workspace string) (*LoadResult, error) {
	path, err := findConfig(workspace)
	if err != nil {
		abs, absErr := filepath.Abs(workspace)
		if absErr != nil {
			return nil, fmt.Errorf("resolving workspace: %w", absErr)
		}
		return &LoadResult{Config: &Config{}, Root: abs}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	for _, name := range []string{ABC, Yosys} {
		tc, err := cfg.Tool(name)
		if err != nil {
			return nil, err
		}
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", FileName, name, err)
		}
	}
	return &LoadResult{Config: cfg, Root: filepath.Dir(path)}, nil
}

// findConfig walks upward from dir looking for a .synthkit file.
func findConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
