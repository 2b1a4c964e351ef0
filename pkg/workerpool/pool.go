// SPDX-License-Identifier: Apache-2.0

// Package workerpool implements the fixed pool of long-lived workers that
// run a request's up-to-date check and, if needed, its compiler subprocess
// (spec.md §4.5 "Worker Pool").
package workerpool

import (
	"fmt"
	"sync"

	"github.com/relicforge/rescompserver/pkg/errors"
	"github.com/relicforge/rescompserver/pkg/eventbus"
	"github.com/relicforge/rescompserver/pkg/exec"
	"github.com/relicforge/rescompserver/pkg/log"
	"github.com/relicforge/rescompserver/pkg/recordstore"
	"github.com/relicforge/rescompserver/pkg/request"
	"github.com/relicforge/rescompserver/pkg/rescontext"
	"github.com/relicforge/rescompserver/pkg/resolver"
)

// RecordStore is the subset of recordstore.Store the pool needs. Reads feed
// the resolver's freshness decision; writes persist successful compiles
// (spec.md §4.5 "On success").
type RecordStore interface {
	resolver.RecordLookup
	Put(record recordstore.Record) error
}

// ErrShuttingDown is returned by Submit once the server context's
// is_exiting flag is set (spec.md §4.5 "Cancellation").
var ErrShuttingDown = fmt.Errorf("workerpool: server is shutting down")

// Pool is a fixed-size pool of long-lived workers. Each worker processes at
// most one request at a time (spec.md §4.5).
//
// mu guards both the closed flag and the jobs channel: Submit and Shutdown
// take mu before touching either, so a submitter can never observe "not
// closed" and then lose a race to a concurrent close(jobs) before it sends
// (spec.md §4.5 "Cancellation" requires shutdown never to crash the
// server).
type Pool struct {
	ctx         *rescontext.ServerContext
	records     RecordStore
	descriptors resolver.DescriptorReader
	fs          resolver.FileSystem
	destFS      DestinationFS
	cmder       exec.Cmder
	logger      log.Logger
	events      *eventbus.Bus

	mu     sync.Mutex
	closed bool
	jobs   chan *request.Request

	wg       sync.WaitGroup
	workerMu sync.Mutex
	errs     []error
}

// Option customizes a Pool at construction.
type Option func(*Pool)

// WithFileSystem overrides the probe the up-to-date check and the resolver
// use for source and compiled-target existence, primarily for tests.
func WithFileSystem(fs resolver.FileSystem) Option {
	return func(p *Pool) { p.fs = fs }
}

// WithDestinationFS overrides the writable-output-tree probe, primarily
// for tests.
func WithDestinationFS(fs DestinationFS) Option {
	return func(p *Pool) { p.destFS = fs }
}

// WithCmder overrides the subprocess launcher, primarily for tests.
func WithCmder(c exec.Cmder) Option {
	return func(p *Pool) { p.cmder = c }
}

// WithLogger overrides the logger, default log.NoopLogger{}.
func WithLogger(l log.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithEventBus attaches a bus that is notified once a request reaches a
// terminal status (spec.md §2: "notifies subscribers through the Event
// Bus"). With no bus attached, notification is a no-op.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(p *Pool) { p.events = bus }
}

// New builds a Pool of numWorkers long-lived goroutines, reading off a
// queue buffered to queueDepth pending requests.
func New(ctx *rescontext.ServerContext, records RecordStore, descriptors resolver.DescriptorReader, numWorkers, queueDepth int, opts ...Option) *Pool {
	p := &Pool{
		ctx:         ctx,
		records:     records,
		descriptors: descriptors,
		fs:          resolver.OSFileSystem{},
		destFS:      OSDestinationFS{},
		cmder:       exec.DefaultCmder,
		logger:      log.NoopLogger{},
		jobs:        make(chan *request.Request, queueDepth),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.runWorker(); err != nil {
				p.workerMu.Lock()
				p.errs = append(p.errs, err)
				p.workerMu.Unlock()
			}
		}()
	}

	return p
}

// runWorker drains the job queue until it is closed. A panic inside a
// single request's processing is recovered here rather than taking down
// the whole pool; it ends this worker, which then takes no further
// requests, and is reported back as this worker's error (collected and
// aggregated by Shutdown, the same "run concurrently, collect every
// error" shape as kind's pkg/concurrent.Coalesce).
func (p *Pool) runWorker() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerpool: worker panicked: %v", r)
		}
	}()
	for req := range p.jobs {
		p.process(req)
	}
	return nil
}

// Submit enqueues req for processing. It refuses new work once the server
// context has begun shutting down (spec.md §4.5 "Cancellation"); requests
// already in flight are allowed to complete. The exiting check and the
// channel send happen under the same lock Shutdown uses to close the
// channel, so a Submit can never land on a closed channel.
func (p *Pool) Submit(req *request.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.ctx.IsExiting() {
		return ErrShuttingDown
	}
	p.jobs <- req
	return nil
}

// Run processes req synchronously on the calling goroutine, bypassing the
// queue entirely. It is meant for one-shot callers (e.g. the `compile` CLI
// subcommand) that want a single request's outcome without standing up
// the full async pool; it does not consult is_exiting.
func (p *Pool) Run(req *request.Request) {
	p.process(req)
}

// Shutdown begins graceful shutdown: no further Submit calls are accepted,
// the queue is drained by the existing workers, and Shutdown blocks until
// every worker goroutine has returned. It returns the aggregate of every
// worker's error (nil if none failed).
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	p.ctx.BeginShutdown()
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()

	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	return errors.NewAggregate(p.errs)
}
