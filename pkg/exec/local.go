// SPDX-License-Identifier: Apache-2.0

package exec

import (
	"io"
	osexec "os/exec"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/relicforge/rescompserver/pkg/errors"
)

// LocalCmd wraps os/exec.Cmd, implementing Cmd.
type LocalCmd struct {
	*osexec.Cmd
}

var _ Cmd = &LocalCmd{}

// LocalCmder is a Cmder backed by the real OS.
type LocalCmder struct{}

var _ Cmder = &LocalCmder{}

// Command returns a new Cmd backed by os/exec.
func (c *LocalCmder) Command(name string, arg ...string) Cmd {
	return &LocalCmd{Cmd: osexec.Command(name, arg...)}
}

// SetEnv sets the child environment, replacing any inherited value.
func (cmd *LocalCmd) SetEnv(env ...string) Cmd {
	cmd.Env = env
	return cmd
}

// SetStdin sets stdin.
func (cmd *LocalCmd) SetStdin(r io.Reader) Cmd {
	cmd.Stdin = r
	return cmd
}

// SetStdout sets stdout.
func (cmd *LocalCmd) SetStdout(w io.Writer) Cmd {
	cmd.Stdout = w
	return cmd
}

// SetStderr sets stderr.
func (cmd *LocalCmd) SetStderr(w io.Writer) Cmd {
	cmd.Stderr = w
	return cmd
}

// Run starts the child process and blocks until it exits. On a non-zero
// exit or spawn failure it returns a *RunError, wrapped with a stack trace,
// carrying the command line and the underlying error. The command's output
// goes only to the writers set with SetStdout/SetStderr.
func (cmd *LocalCmd) Run() error {
	err := cmd.Cmd.Run()
	if err != nil {
		return errors.WithStack(&RunError{
			Command: PrettyCommand(cmd.Path, cmd.Args[1:]...),
			Inner:   err,
		})
	}
	return nil
}

// RunError is returned when a compiler subprocess fails to start or exits
// with an unexpected status, so callers can recover the original command
// line and exit code for diagnostics.
type RunError struct {
	Command string
	Inner    error
}

func (e *RunError) Error() string {
	return "command \"" + e.Command + "\" failed: " + e.Inner.Error()
}

// Cause mimics github.com/pkg/errors's Cause pattern.
func (e *RunError) Cause() error { return e.Inner }

// ExitCode returns the process exit code carried by Inner, or -1 if Inner
// does not expose one (e.g. the process never started).
func (e *RunError) ExitCode() int {
	if coder, ok := e.Inner.(interface{ ExitCode() int }); ok {
		return coder.ExitCode()
	}
	return -1
}

// PrettyCommand renders name and args as a string that could be pasted
// into a shell, for logs and error messages.
func PrettyCommand(name string, args ...string) string {
	var out strings.Builder
	out.WriteString(shellescape.Quote(name))
	for _, arg := range args {
		out.WriteByte(' ')
		out.WriteString(shellescape.Quote(arg))
	}
	return out.String()
}
