package runner

import "time"

// Result holds the output of a command execution.
type Result struct {
	RunID     string        // unique identifier for this run
	PID       int           // process ID; also the process group ID on Unix
	ExitCode  int           // process exit code, -1 when killed by a signal
	Output    []byte        // merged output, or stdout followed by stderr
	Stdout    []byte        // captured stdout when output is not merged
	Stderr    []byte        // captured stderr when output is not merged
	Truncated bool          // true if output exceeded the size cap
	TimedOut  bool          // true if the timeout elapsed and the process was killed
	Duration  time.Duration // wall time from start to exit
}
