// SPDX-License-Identifier: Apache-2.0

package log

// NoopLogger discards everything. Useful as a safe default for library
// callers that have not wired a real logger.
type NoopLogger struct{}

var _ Logger = NoopLogger{}

func (NoopLogger) Warn(string)                    {}
func (NoopLogger) Warnf(string, ...interface{})   {}
func (NoopLogger) Error(string)                   {}
func (NoopLogger) Errorf(string, ...interface{})  {}
func (NoopLogger) V(Level) InfoLogger             { return noopInfo{} }

type noopInfo struct{}

func (noopInfo) Info(string)                  {}
func (noopInfo) Infof(string, ...interface{}) {}
func (noopInfo) Enabled() bool                { return false }
