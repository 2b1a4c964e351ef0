// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/relicforge/rescompserver/pkg/eventbus"
	"github.com/relicforge/rescompserver/pkg/log"
	"github.com/relicforge/rescompserver/pkg/request"
	"github.com/relicforge/rescompserver/pkg/resolver"
	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// process runs one request's full worker lifecycle: Idle -> Check ->
// (Compile) -> Complete (spec.md §4.5 "Worker lifecycle").
func (p *Pool) process(req *request.Request) {
	defer p.notify(req)

	p.logger.V(log.LevelDefault).Infof("request %s: checking %s", req.ID, req.ResourceID)

	if err := req.SetStatus(request.UpToDateCheck); err != nil {
		p.logger.Errorf("request %s: %v", req.ID, err)
		return
	}
	req.Timing.UpToDateCheckStarted = time.Now()

	proceed := p.checkUpToDate(req)
	req.Timing.UpToDateCheckFinished = time.Now()
	if !proceed {
		p.logger.V(log.LevelDefault).Infof("request %s: failed: %s", req.ID, req.Status())
		return
	}

	if req.Status() != request.Compiling {
		p.logger.V(log.LevelDefault).Infof("request %s: already up to date", req.ID)
		return // decided SucceededUpToDate, nothing more to do
	}

	req.Timing.CompileStarted = time.Now()
	p.compile(req)
	req.Timing.CompileFinished = time.Now()
	p.logger.V(log.LevelDefault).Infof("request %s: finished: %s", req.ID, req.Status())
}

// notify publishes a terminal-status event on the pool's event bus, if
// one is attached (spec.md §2 "Event Bus").
func (p *Pool) notify(req *request.Request) {
	if p.events == nil {
		return
	}
	status := req.Status()
	if !status.IsTerminal() {
		return
	}
	p.events.Publish(eventbus.Event{
		RequestID:  req.ID,
		ResourceID: req.ResourceID,
		Status:     status,
	})
}

// checkUpToDate implements the up-to-date check phase from spec.md §4.5,
// steps 1-8, short-circuiting on the first failure. It returns false once
// req has been failed.
func (p *Pool) checkUpToDate(req *request.Request) bool {
	id := req.ResourceID

	// Step 1: look up the compiler by resource type.
	desc, ok := p.ctx.Compilers.Get(id.Type())
	if !ok {
		req.Fail(request.NoCompiler, fmt.Sprintf("no compiler found for resource type (%s)", id.Type().String()), nil)
		return false
	}

	srcPath, err := resourceid.ToSourcePath(id, p.ctx.SourceRoot)
	if err != nil {
		req.Fail(request.InvalidResource, err.Error(), err)
		return false
	}
	req.SourcePath = srcPath

	// Step 2: check source existence if the compiler requires an input.
	if desc.InputFileRequired {
		if exists, _ := p.fs.Stat(srcPath); !exists {
			req.Fail(request.MissingInput, fmt.Sprintf("source file does not exist: %s", srcPath), nil)
			return false
		}
	}

	destPath, err := resourceid.ToTargetPath(id, p.ctx.CompiledRoot)
	if err != nil {
		req.Fail(request.InvalidResource, err.Error(), err)
		return false
	}
	req.DestinationPath = destPath

	// Step 3: ensure the destination directory exists.
	if err := p.destFS.EnsureDir(destDirOf(destPath)); err != nil {
		req.Fail(request.DestinationUnavailable, fmt.Sprintf("cannot create destination directory: %v", err), err)
		return false
	}

	// Step 4: the destination file, if present, must be writable.
	if exists, readOnly := p.destFS.Stat(destPath); exists && readOnly {
		req.Fail(request.DestinationReadOnly, fmt.Sprintf("destination is read-only: %s", destPath), nil)
		return false
	}

	// Step 5: build the dependency tree.
	res := &resolver.Resolver{
		SourceRoot:   p.ctx.SourceRoot,
		CompiledRoot: p.ctx.CompiledRoot,
		Compilers:    p.ctx.Compilers,
		Records:      p.records,
		Descriptors:  p.descriptors,
		FS:           p.fs,
	}
	tree, err := res.Build(id)
	if err != nil {
		req.Fail(buildErrorKind(err), err.Error(), err)
		return false
	}
	p.logTreeDetail(req, tree.Root)

	// Step 6: copy compiler_version, timestamp, combined_hash onto the
	// request.
	req.CompilerVersion = tree.Root.CompilerVersion
	req.FileTimestamp = tree.Root.Timestamp
	req.SourceTimestampHash = tree.CombinedHash()

	// Step 7 + 8: decide SucceededUpToDate vs Pending(-> Compiling), with
	// forced recompilation demoting an up-to-date decision back to
	// Compiling. The request's own status machine only admits Compiling
	// (not Pending) as a transition target from UpToDateCheck, so "proceed
	// to compile" is modeled as a direct move to Compiling.
	if tree.IsUpToDate() && !req.RequiresForcedRecompilation() {
		if err := req.SetStatus(request.SucceededUpToDate); err != nil {
			p.logger.Errorf("request %s: %v", req.ID, err)
			return false
		}
		return true
	}

	if err := req.SetStatus(request.Compiling); err != nil {
		p.logger.Errorf("request %s: %v", req.ID, err)
		return false
	}
	return true
}

// logTreeDetail emits node-level dependency-tree detail at LevelNode
// (spec.md §A.1 "V(2) dependency-tree node-level detail"). The Enabled()
// guard skips the walk entirely when the level is off, since req's tree
// can be arbitrarily deep.
func (p *Pool) logTreeDetail(req *request.Request, n *resolver.Node) {
	v := p.logger.V(log.LevelNode)
	if !v.Enabled() {
		return
	}
	v.Infof("request %s: node %s source=%s target=%s timestamp=%d compilerVersion=%d combinedHash=%d",
		req.ID, n.ID, n.SourcePath, n.TargetPath, n.Timestamp, n.CompilerVersion, n.CombinedHash)
	for _, dep := range n.Dependencies {
		p.logTreeDetail(req, dep)
	}
}

// buildErrorKind maps a resolver.BuildError onto the request error
// taxonomy (spec.md §7).
func buildErrorKind(err error) request.Kind {
	var be *resolver.BuildError
	if stderrors.As(err, &be) {
		switch be.Kind {
		case resolver.DescriptorReadFailed:
			return request.DescriptorReadFailed
		case resolver.CircularDependency:
			return request.CircularDependency
		}
	}
	return request.InvalidResource
}
