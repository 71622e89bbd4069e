package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/runner"
)

// fakeRunner is a test double for CommandRunner. It plays the tool: each
// sub-command of the composite it receives prints Outputs[verb], and
// "echo X" or "log X" prints X, so injected markers come back like they
// would from a real tool.
type fakeRunner struct {
	Outputs  map[string]string
	ExitCode int
	Err      error
	// Raw, when set, is returned verbatim instead of simulating.
	Raw *string

	mu    sync.Mutex
	calls []fakeCall
}

type fakeCall struct {
	Argv  []string
	Cwd   string
	Stdin string
}

func (f *fakeRunner) Run(_ context.Context, argv []string, cwd string, stdin string) (*runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Argv: argv, Cwd: cwd, Stdin: stdin})
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Raw != nil {
		return &runner.Result{RunID: "fake", ExitCode: f.ExitCode, Output: []byte(*f.Raw)}, nil
	}

	composite := stdin
	if composite == "" {
		composite = argv[len(argv)-1]
	}
	var b strings.Builder
	for _, sub := range command.Split(composite, ';') {
		if rest, ok := strings.CutPrefix(sub, "echo "); ok {
			b.WriteString(rest + "\n")
			continue
		}
		if rest, ok := strings.CutPrefix(sub, "log "); ok {
			b.WriteString(rest + "\n")
			continue
		}
		b.WriteString(f.Outputs[command.Verb(sub)])
	}
	return &runner.Result{RunID: "fake", ExitCode: f.ExitCode, Output: []byte(b.String())}, nil
}

func (f *fakeRunner) lastCall() fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return fakeCall{}
	}
	return f.calls[len(f.calls)-1]
}

func newFakeEngine(f *fakeRunner) *Engine {
	return &Engine{Config: &config.Config{}, Runner: f}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"", "adder.v", "adder.v"},
		{".", "adder.v", "adder.v"},
		{"circuits", "adder.v", "circuits/adder.v"},
		{"circuits", "/abs/adder.v", "/abs/adder.v"},
		{"circuits", "", ""},
	}
	for _, tt := range tests {
		if got := ResolvePath(tt.dir, tt.name); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.dir, tt.name, got, tt.want)
		}
	}
}

func TestQuoteArg(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"adder.v", "adder.v"},
		{"my adder.v", `"my adder.v"`},
		{"a;b.v", `"a;b.v"`},
		{`say"hi".v`, `"say\"hi\".v"`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := QuoteArg(tt.in, ';'); got != tt.want {
			t.Errorf("QuoteArg(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteArg_SurvivesSplit(t *testing.T) {
	composite := "read " + QuoteArg("dir;x/my file.v", ';') + "; strash"
	parts := command.Split(composite, ';')
	if len(parts) != 2 {
		t.Fatalf("Split(%q) = %q, want 2 parts", composite, parts)
	}
}

func TestErrToolUnavailable_KnownTool(t *testing.T) {
	err := NewErrToolUnavailable("abc")
	msg := err.Error()
	if !strings.Contains(msg, "abc not found") {
		t.Errorf("message = %q, want 'abc not found'", msg)
	}
	if !strings.Contains(msg, "berkeley-abc") {
		t.Errorf("message = %q, want homepage", msg)
	}
	if !strings.Contains(msg, "Install:") {
		t.Errorf("message = %q, want install instructions", msg)
	}
}

func TestErrToolUnavailable_UnknownTool(t *testing.T) {
	err := NewErrToolUnavailable("/opt/bin/mystery")
	if err.Info != nil {
		t.Error("Info should be nil for unknown tool")
	}
	if strings.Contains(err.Error(), "Install:") {
		t.Errorf("message = %q, want no install section", err.Error())
	}
}

func TestErrToolUnavailable_As(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), NewErrToolUnavailable("yosys"))
	var target ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find ErrToolUnavailable")
	}
	if target.Name != "yosys" {
		t.Errorf("Name = %q, want yosys", target.Name)
	}
}

func TestCheckTool(t *testing.T) {
	e := &Engine{Config: &config.Config{
		ABC:   config.ToolConfig{Binary: "sh"},
		Yosys: config.ToolConfig{Binary: "definitely-not-a-synthesis-tool"},
	}}
	if err := e.CheckTool(config.ABC); err != nil {
		t.Errorf("CheckTool(abc with sh) = %v, want nil", err)
	}
	err := e.CheckTool(config.Yosys)
	var unavailable ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Errorf("CheckTool(missing) = %v, want ErrToolUnavailable", err)
	}
	if err := e.CheckTool("vivado"); err == nil {
		t.Error("CheckTool(unknown tool) should error")
	}
}

func TestBuildArgv_Placeholder(t *testing.T) {
	tc := config.ToolConfig{Binary: "abc", Args: []string{"-q", "-c", config.CommandPlaceholder}}
	argv, stdin := buildArgv(tc, "read a.v; strash")
	want := []string{"abc", "-q", "-c", "read a.v; strash"}
	if strings.Join(argv, "|") != strings.Join(want, "|") {
		t.Errorf("argv = %q, want %q", argv, want)
	}
	if stdin != "" {
		t.Errorf("stdin = %q, want empty", stdin)
	}
}

func TestBuildArgv_Stdin(t *testing.T) {
	tc := config.ToolConfig{Binary: "yosys", Args: []string{"-q"}}
	argv, stdin := buildArgv(tc, "read_verilog a.v; proc")
	if len(argv) != 2 || argv[1] != "-q" {
		t.Errorf("argv = %q, want [yosys -q]", argv)
	}
	if stdin != "read_verilog a.v; proc\n" {
		t.Errorf("stdin = %q", stdin)
	}
}
