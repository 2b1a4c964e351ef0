// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"fmt"
	"os"

	"github.com/relicforge/rescompserver/pkg/exec"
	"github.com/relicforge/rescompserver/pkg/log"
	"github.com/relicforge/rescompserver/pkg/recordstore"
	"github.com/relicforge/rescompserver/pkg/request"
)

// compile implements the compile phase from spec.md §4.5: spawn the
// compiler subprocess, capture its combined output, and map its exit code
// to a terminal status.
func (p *Pool) compile(req *request.Request) {
	args := []string{"-compile", req.CompilerArgs}
	if req.Origin == request.Package {
		args = append(args, "-package")
	}

	cmd := p.cmder.Command(p.ctx.CompilerExecutablePath, args...)
	cmd.SetEnv(os.Environ()...)

	p.logger.V(log.LevelSubprocess).Infof("request %s: starting %s %v", req.ID, p.ctx.CompilerExecutablePath, args)
	output, err := exec.CombinedOutput(cmd)
	p.logger.V(log.LevelSubprocess).Infof("request %s: compiler subprocess stopped", req.ID)
	if output != "" {
		req.Log(output)
	}

	if err == nil {
		if serr := req.SetStatus(request.Succeeded); serr != nil {
			p.logger.Errorf("request %s: %v", req.ID, serr)
			return
		}
		p.persistRecord(req)
		return
	}

	code, hasCode := exitCodeOf(err)
	if !hasCode {
		req.Fail(request.SubprocessStartFailed, "Resource compiler failed to start", err)
		return
	}

	switch {
	case code == 1:
		if serr := req.SetStatus(request.SucceededWithWarnings); serr != nil {
			p.logger.Errorf("request %s: %v", req.ID, serr)
			return
		}
		p.persistRecord(req)
	case code >= 0:
		req.Fail(request.CompilerFailed, fmt.Sprintf("compiler exited with code %d", code), err)
	default:
		req.Fail(request.SubprocessStartFailed, "Resource compiler failed to start", err)
	}
}

// exitCodeOf walks err's Cause chain (if any) looking for a value
// exposing ExitCode() int, the way os/exec.ExitError and this module's
// exec.RunError / scripted test errors do. It reports false when no
// exit code was ever observed, i.e. the subprocess never started.
func exitCodeOf(err error) (int, bool) {
	for e := err; e != nil; {
		if coder, ok := e.(interface{ ExitCode() int }); ok {
			return coder.ExitCode(), true
		}
		causer, ok := e.(interface{ Cause() error })
		if !ok {
			return 0, false
		}
		e = causer.Cause()
	}
	return 0, false
}

// persistRecord upserts the compile record on success (spec.md §4.5 "On
// success"). A store failure here is StoreUnavailable-during-write: it is
// logged and the request keeps its terminal success status; the next
// request for this resource will simply recompile (spec.md §7).
func (p *Pool) persistRecord(req *request.Request) {
	rec := recordstore.Record{
		ID:                  req.ResourceID,
		CompilerVersion:     req.CompilerVersion,
		FileTimestamp:       req.FileTimestamp,
		SourceTimestampHash: req.SourceTimestampHash,
	}
	if err := p.records.Put(rec); err != nil {
		p.logger.Errorf("request %s: failed to persist compile record: %v", req.ID, err)
		return
	}
	p.logger.V(log.LevelSubprocess).Infof("request %s: wrote compile record", req.ID)
}
