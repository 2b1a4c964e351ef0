// SPDX-License-Identifier: Apache-2.0

package exec

import "bytes"

// CombinedOutput runs cmd with stdout and stderr merged into a single
// buffer (spec.md §4.5/§6: "combine stdout and stderr") and returns the
// captured text alongside cmd.Run's error.
func CombinedOutput(cmd Cmd) (string, error) {
	var buf bytes.Buffer
	cmd.SetStdout(&buf)
	cmd.SetStderr(&buf)
	err := cmd.Run()
	return buf.String(), err
}

// RunErrorFrom walks err's Cause chain looking for a *RunError, letting
// callers recover the command line and exit code even after it has been
// wrapped by pkg/errors.
func RunErrorFrom(err error) *RunError {
	for err != nil {
		if runErr, ok := err.(*RunError); ok {
			return runErr
		}
		causer, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = causer.Cause()
	}
	return nil
}
