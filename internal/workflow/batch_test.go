package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/report"
	"github.com/deixis/synthkit/internal/runner"
)

// newShellEngine returns an engine whose "abc" is sh, so composites are
// shell scripts and the default "echo %" marker works unchanged.
func newShellEngine(t *testing.T, timeout time.Duration) *Engine {
	t.Helper()
	ws := t.TempDir()
	log := zaptest.NewLogger(t)
	return &Engine{
		Config: &config.Config{
			ABC: config.ToolConfig{Binary: "sh", Args: []string{"-c", config.CommandPlaceholder}},
		},
		Runner: &runner.Runner{
			Workspace:   ws,
			Timeout:     timeout,
			MergeOutput: true,
			Logger:      log,
		},
		Workspace: ws,
		Logger:    log,
	}
}

func TestRun_StandardSplitsPerSubCommand(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	o, err := e.Run(context.Background(), Request{
		Tool:     config.ABC,
		Template: "echo %; echo %",
		Values:   []any{"first", "second"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !o.Correct {
		t.Fatalf("Correct = false (%s: %s), outputs %q", o.Failure, o.Detail, o.Outputs)
	}
	want := map[string]string{
		"echo first":  "first\n",
		"echo second": "second\n",
	}
	if diff := cmp.Diff(want, o.Outputs); diff != "" {
		t.Errorf("Outputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"echo first", "echo second"}, o.Keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	if o.Command != "echo first; echo second" {
		t.Errorf("Command = %q", o.Command)
	}
	if o.Mode != string(command.Standard) {
		t.Errorf("Mode = %q, want standard", o.Mode)
	}
	if o.ID == "" {
		t.Error("ID is empty")
	}
}

func TestRun_DuplicateSubCommands(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	o, err := e.Batch(context.Background(), config.ABC, "echo x; echo y; echo x", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	want := map[string]string{
		"echo x":   "x\n",
		"echo y":   "y\n",
		"echo x#2": "x\n",
	}
	if diff := cmp.Diff(want, o.Outputs); diff != "" {
		t.Errorf("Outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_SilentSubCommandGetsEmptyEntry(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	o, err := e.Batch(context.Background(), config.ABC, "true; echo done", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	out, ok := o.Outputs["true"]
	if !ok || out != "" {
		t.Errorf(`Outputs["true"] = %q, %v; want "", true`, out, ok)
	}
	if !o.Correct {
		t.Errorf("Correct = false: %s", o.Detail)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	o, err := e.Batch(context.Background(), config.ABC, "echo ok; exit 3", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if o.Correct {
		t.Fatal("Correct = true, want false")
	}
	if o.Failure != report.ToolError {
		t.Errorf("Failure = %q, want %q", o.Failure, report.ToolError)
	}
	if o.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", o.ExitCode)
	}
	if o.Outputs["echo ok"] != "ok\n" {
		t.Errorf(`Outputs["echo ok"] = %q, want "ok\n"`, o.Outputs["echo ok"])
	}
	if !strings.Contains(o.Outputs[o.Command], "exit status 3") {
		t.Errorf("diagnostic = %q, want exit status", o.Outputs[o.Command])
	}
}

func TestRun_ErrorMarkerFailsBatch(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	o, err := e.Batch(context.Background(), config.ABC, "echo reading; echo Cannot open file missing.v", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if o.Correct {
		t.Fatal("Correct = true, want false")
	}
	if o.Failure != report.ToolError {
		t.Errorf("Failure = %q, want %q", o.Failure, report.ToolError)
	}
	if o.Outputs["echo reading"] != "reading\n" {
		t.Errorf("earlier output lost: %q", o.Outputs["echo reading"])
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	e.Config.ABC.Binary = "definitely-not-a-synthesis-tool"

	o, err := e.Run(context.Background(), Request{
		Tool:     config.ABC,
		Template: "read %; strash",
		Values:   []any{"a.v"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Correct {
		t.Fatal("Correct = true, want false")
	}
	if o.Failure != report.LaunchFailure {
		t.Errorf("Failure = %q, want %q", o.Failure, report.LaunchFailure)
	}
	if len(o.Outputs) != 1 {
		t.Errorf("Outputs = %q, want only the diagnostic", o.Outputs)
	}
	diag, ok := o.Outputs["read a.v; strash"]
	if !ok {
		t.Fatalf("no diagnostic under the command text; keys %q", o.Keys)
	}
	if !strings.Contains(diag, "not found") {
		t.Errorf("diagnostic = %q, want 'not found'", diag)
	}
}

func TestRun_Timeout(t *testing.T) {
	e := newShellEngine(t, 200*time.Millisecond)
	start := time.Now()
	o, err := e.Batch(context.Background(), config.ABC, "echo started; sleep 30", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("took %v, want prompt kill", elapsed)
	}
	if o.Correct {
		t.Fatal("Correct = true, want false")
	}
	if o.Failure != report.Timeout {
		t.Errorf("Failure = %q, want %q", o.Failure, report.Timeout)
	}
	if o.Outputs["echo started"] != "started\n" {
		t.Errorf("partial output lost: %q", o.Outputs)
	}
}

func TestRun_ArgumentCountMismatch(t *testing.T) {
	f := &fakeRunner{}
	e := newFakeEngine(f)
	_, err := e.Run(context.Background(), Request{
		Tool:     config.ABC,
		Template: "read %; write %",
		Values:   []any{"a.v"},
	})
	if !errors.Is(err, command.ErrArgumentCountMismatch) {
		t.Fatalf("err = %v, want ErrArgumentCountMismatch", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("tool was launched %d times, want 0", len(f.calls))
	}
}

func TestRun_UnknownTool(t *testing.T) {
	e := newFakeEngine(&fakeRunner{})
	if _, err := e.Batch(context.Background(), "vivado", "synth", command.Standard); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRun_MarkersInjectedButNotReported(t *testing.T) {
	f := &fakeRunner{Outputs: map[string]string{"strash": "strashed\n"}}
	e := newFakeEngine(f)
	o, err := e.Batch(context.Background(), config.ABC, "read a.v; strash", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	call := f.lastCall()
	sent := call.Argv[len(call.Argv)-1]
	if strings.Count(sent, "echo @@synthkit:") != 2 {
		t.Errorf("sent = %q, want two marker commands", sent)
	}
	for k := range o.Outputs {
		if strings.Contains(k, "@@synthkit") {
			t.Errorf("marker leaked into key %q", k)
		}
	}
	if o.Outputs["strash"] != "strashed\n" {
		t.Errorf(`Outputs["strash"] = %q`, o.Outputs["strash"])
	}
	if o.Outputs["read a.v"] != "" {
		t.Errorf(`Outputs["read a.v"] = %q, want empty`, o.Outputs["read a.v"])
	}
}

func TestRun_MarkersDisabled(t *testing.T) {
	off := ""
	f := &fakeRunner{Outputs: map[string]string{"read": "r\n", "strash": "s\n"}}
	e := newFakeEngine(f)
	e.Config.ABC.Marker = &off

	o, err := e.Batch(context.Background(), config.ABC, "read a.v; strash", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if !o.Unattributed {
		t.Error("Unattributed = false, want true")
	}
	if o.Outputs[report.AllKey] != "r\ns\n" {
		t.Errorf("AllKey = %q", o.Outputs[report.AllKey])
	}
	if !o.Correct {
		t.Errorf("Correct = false: %s", o.Detail)
	}
}

func TestRun_StatisticsMode(t *testing.T) {
	raw := "stats: 10 gates\nDONE"
	f := &fakeRunner{Raw: &raw}
	e := newFakeEngine(f)
	e.Config.ABC = config.ToolConfig{
		Lengths:     map[string]int{"read_lib": 0},
		StatsLength: 16,
	}

	o, err := e.Run(context.Background(), Request{
		Tool:     config.ABC,
		Template: "read_lib %; read %; map; print_stats",
		Values:   []any{"lib.lib", "a.v"},
		Mode:     command.Statistics,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Mode != string(command.Statistics) {
		t.Fatalf("Mode = %q, want statistics", o.Mode)
	}
	if got := o.Outputs["print_stats"]; got != "stats: 10 gates\n" {
		t.Errorf(`Outputs["print_stats"] = %q`, got)
	}
	if got := o.Outputs[report.RestKey]; got != "DONE" {
		t.Errorf("RestKey = %q, want DONE", got)
	}
	if o.Outputs["print_stats"]+o.Outputs[report.RestKey] != raw {
		t.Error("regions do not reassemble the raw output")
	}
	if !o.Correct {
		t.Errorf("Correct = false: %s", o.Detail)
	}
	sent := f.lastCall().Argv
	if strings.Contains(sent[len(sent)-1], "@@synthkit") {
		t.Errorf("statistics mode should not inject markers: %q", sent)
	}
}

func TestRun_StatisticsShortOutputIsMalformed(t *testing.T) {
	raw := "stats"
	f := &fakeRunner{Raw: &raw}
	e := newFakeEngine(f)
	e.Config.ABC = config.ToolConfig{StatsLength: 16}

	o, err := e.Batch(context.Background(), config.ABC, "read a.v; print_stats", command.Statistics)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if o.Correct {
		t.Error("Correct = true, want false")
	}
	if o.Failure != report.Malformed {
		t.Errorf("Failure = %q, want %q", o.Failure, report.Malformed)
	}
}

func TestRun_StatisticsFallsBackWhenOffsetUnknown(t *testing.T) {
	f := &fakeRunner{Outputs: map[string]string{"print_stats": "and = 10\n"}}
	e := newFakeEngine(f)

	o, err := e.Batch(context.Background(), config.ABC, "read_lib lib.lib; read a.v; print_stats", command.Statistics)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if o.Mode != string(command.Standard) {
		t.Errorf("Mode = %q, want standard fallback", o.Mode)
	}
	if o.Outputs["print_stats"] != "and = 10\n" {
		t.Errorf(`Outputs["print_stats"] = %q`, o.Outputs["print_stats"])
	}
}

func TestRun_Stdin(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	e.Config.ABC.Args = []string{"-s"}
	o, err := e.Batch(context.Background(), config.ABC, "echo via; echo stdin", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if !o.Correct {
		t.Fatalf("Correct = false: %s", o.Detail)
	}
	if o.Outputs["echo stdin"] != "stdin\n" {
		t.Errorf("Outputs = %q", o.Outputs)
	}
}

func TestRun_EmptyComposite(t *testing.T) {
	f := &fakeRunner{}
	e := newFakeEngine(f)
	o, err := e.Batch(context.Background(), config.ABC, "", command.Standard)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(o.Outputs) != 0 {
		t.Errorf("Outputs = %q, want empty", o.Outputs)
	}
}

func TestRun_Concurrent(t *testing.T) {
	e := newShellEngine(t, 10*time.Second)
	var wg sync.WaitGroup
	outcomes := make([]*report.Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := e.Run(context.Background(), Request{
				Tool:     config.ABC,
				Template: "echo %; echo done",
				Values:   []any{i},
			})
			if err != nil {
				t.Errorf("Run %d: %v", i, err)
				return
			}
			outcomes[i] = o
		}(i)
	}
	wg.Wait()

	for i, o := range outcomes {
		if o == nil {
			continue
		}
		if !o.Correct {
			t.Errorf("run %d: Correct = false: %s", i, o.Detail)
		}
		key := "echo " + strings.TrimSpace(o.Outputs[o.Keys[0]])
		if key != o.Keys[0] {
			t.Errorf("run %d: output %q attributed to %q", i, o.Outputs[o.Keys[0]], o.Keys[0])
		}
	}
}
