// SPDX-License-Identifier: Apache-2.0

// Package request implements the client-visible unit of work (spec.md
// §3 "Request", §4.4) including its status machine and timing invariants.
package request

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// Origin identifies who asked for a resource to be compiled.
type Origin int

const (
	// UserRequested is an interactive request from a tool user.
	UserRequested Origin = iota
	// Package causes the launcher to add a packaging flag (spec.md §4.4).
	Package
	// Internal is a request issued by the server itself (e.g. to satisfy
	// a dependency of another request).
	Internal
)

func (o Origin) String() string {
	switch o {
	case UserRequested:
		return "UserRequested"
	case Package:
		return "Package"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Status is a request's position in its lifecycle (spec.md §3, §4.4).
type Status int

const (
	Pending Status = iota
	UpToDateCheck
	Compiling
	SucceededUpToDate
	Succeeded
	SucceededWithWarnings
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case UpToDateCheck:
		return "UpToDateCheck"
	case Compiling:
		return "Compiling"
	case SucceededUpToDate:
		return "SucceededUpToDate"
	case Succeeded:
		return "Succeeded"
	case SucceededWithWarnings:
		return "SucceededWithWarnings"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is a final status; once terminal, a
// Request is immutable except for reading (spec.md §3).
func (s Status) IsTerminal() bool {
	switch s {
	case SucceededUpToDate, Succeeded, SucceededWithWarnings, Failed:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether s represents a successful terminal status.
func (s Status) IsSuccess() bool {
	switch s {
	case SucceededUpToDate, Succeeded, SucceededWithWarnings:
		return true
	default:
		return false
	}
}

// Timing records the monotone-non-decreasing lifecycle timestamps named in
// spec.md §4.4: up_to_date_check_started ≤ up_to_date_check_finished ≤
// compile_started ≤ compile_finished.
type Timing struct {
	UpToDateCheckStarted  time.Time
	UpToDateCheckFinished time.Time
	CompileStarted        time.Time
	CompileFinished        time.Time
}

// Request is the unit of client-visible work dispatched to the worker pool.
type Request struct {
	mu sync.Mutex

	ID              string
	Origin          Origin
	ResourceID      resourceid.ID
	SourcePath      string
	DestinationPath string
	CompilerArgs    string
	ForceRecompile  bool

	status Status
	log    strings.Builder

	Timing Timing

	CompilerVersion     int32
	FileTimestamp       uint64
	SourceTimestampHash uint64
}

// New creates a Pending request for resourceID.
func New(origin Origin, resourceID resourceid.ID) *Request {
	return &Request{
		ID:         uuid.NewString(),
		Origin:     origin,
		ResourceID: resourceID,
		status:     Pending,
	}
}

// Status returns the request's current status.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// validTransitions enumerates the status machine from spec.md §4.4:
//
//	Pending -> UpToDateCheck -> {SucceededUpToDate | Compiling | Failed}
//	Compiling -> {Succeeded | SucceededWithWarnings | Failed}
var validTransitions = map[Status]map[Status]bool{
	Pending: {UpToDateCheck: true},
	UpToDateCheck: {
		SucceededUpToDate: true,
		Compiling:         true,
		Failed:            true,
	},
	Compiling: {
		Succeeded:             true,
		SucceededWithWarnings: true,
		Failed:                true,
	},
}

// TransitionError reports an attempt to move a Request between two
// statuses not permitted by spec.md §4.4.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid request status transition: %s -> %s", e.From, e.To)
}

// SetStatus transitions the request to next, returning a *TransitionError
// if the move is not allowed, or if the request is already terminal.
func (r *Request) SetStatus(next Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.IsTerminal() {
		return &TransitionError{From: r.status, To: next}
	}
	if !validTransitions[r.status][next] {
		return &TransitionError{From: r.status, To: next}
	}
	r.status = next
	return nil
}

// Log appends a diagnostic line. On failure the log must contain at least
// one line explaining why (spec.md §4.4); callers are expected to call Log
// before transitioning to Failed.
func (r *Request) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log.Len() > 0 {
		r.log.WriteByte('\n')
	}
	r.log.WriteString(line)
}

// LogText returns the accumulated diagnostic log.
func (r *Request) LogText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.String()
}

// IsComplete reports whether the request has reached a terminal status.
func (r *Request) IsComplete() bool { return r.Status().IsTerminal() }

// HasSucceeded reports whether the request's terminal status is a success.
func (r *Request) HasSucceeded() bool { return r.Status().IsSuccess() }

// RequiresForcedRecompilation reports whether the request must compile
// even if the dependency tree reports up to date (spec.md §4.5 step 8).
func (r *Request) RequiresForcedRecompilation() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ForceRecompile
}
