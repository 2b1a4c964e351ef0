// SPDX-License-Identifier: Apache-2.0

package exec

import "io"

// FakeCmder is a Cmder that hands out a fixed FakeCmd for every Command
// call, by value, so tests can script subprocess behavior without touching
// the real OS. Setting Error to NewExitError(code) scripts the exit code
// the subprocess reports.
type FakeCmder struct {
	FakeCmd
}

var _ Cmder = &FakeCmder{}

// FakeCmd is a scriptable stand-in for a compiler subprocess invocation.
type FakeCmd struct {
	Out    []byte
	Error  error
	Stdout io.Writer
	Stderr io.Writer
}

func (f *FakeCmder) Command(name string, arg ...string) Cmd {
	cmd := f.FakeCmd
	return &cmd
}

func (f *FakeCmd) Run() error {
	if f.Stdout != nil {
		_, _ = f.Stdout.Write(f.Out)
	}
	return f.Error
}

func (f *FakeCmd) SetEnv(...string) Cmd      { return f }
func (f *FakeCmd) SetStdin(io.Reader) Cmd    { return f }
func (f *FakeCmd) SetStdout(w io.Writer) Cmd { f.Stdout = w; return f }
func (f *FakeCmd) SetStderr(w io.Writer) Cmd { f.Stderr = w; return f }

// exitError implements enough of the os/exec.ExitError surface for
// RunError.ExitCode to report a scripted exit code in tests.
type exitError struct{ code int }

func (e *exitError) Error() string { return "exit status scripted" }
func (e *exitError) ExitCode() int { return e.code }

// NewExitError builds an error that RunError.ExitCode will read back as
// code, for scripting FakeCmd.Error in worker-pool tests.
func NewExitError(code int) error { return &exitError{code: code} }
