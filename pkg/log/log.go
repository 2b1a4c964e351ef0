// SPDX-License-Identifier: Apache-2.0

// Package log defines the leveled logging interface used throughout
// rescompserver. Consumers inject a Logger into the server/worker pool;
// there is no package-level global.
package log

// Level is a verbosity level for Info-level logs, lower is less verbose.
type Level int32

const (
	// LevelDefault is printed unconditionally through Info.
	LevelDefault Level = 0
	// LevelSubprocess covers compiler subprocess start/stop and record-store writes.
	LevelSubprocess Level = 1
	// LevelNode covers per dependency-node detail during tree construction.
	LevelNode Level = 2
)

// Logger is the logging interface used by every package in this module.
type Logger interface {
	Warn(message string)
	Warnf(format string, args ...interface{})
	Error(message string)
	Errorf(format string, args ...interface{})
	V(Level) InfoLogger
}

// InfoLogger is the leveled-info half of Logger, similar to klog.Verbose.
type InfoLogger interface {
	Info(message string)
	Infof(format string, args ...interface{})
	Enabled() bool
}
