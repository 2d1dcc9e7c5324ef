package command

import (
	"time"
)

// defaultShell is the interpreter used to run a step's cmd string, the
// same way the teacher's bash tool always shells out through "bash -c"
// rather than trying to parse the command line itself.
const defaultShell = "bash"

// StepRequest builds a command Request for a Shell or Claude step: both
// kinds carry the same {cmd, env, timeout} shape and dispatch through the
// same Command Executor, the only difference being which binary `cmd`
// happens to invoke (a shell pipeline for Shell, a `claude`/`opencode`
// CLI invocation for Claude).
func StepRequest(cmd string, env map[string]string, dir string, timeout time.Duration) Request {
	return Request{
		Program:       defaultShell,
		Args:          []string{"-c", cmd},
		Dir:           dir,
		Env:           env,
		Timeout:       timeout,
		CaptureStdout: true,
		CaptureStderr: true,
	}
}
