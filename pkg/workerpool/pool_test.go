// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relicforge/rescompserver/pkg/compilerregistry"
	"github.com/relicforge/rescompserver/pkg/eventbus"
	execpkg "github.com/relicforge/rescompserver/pkg/exec"
	"github.com/relicforge/rescompserver/pkg/recordstore"
	"github.com/relicforge/rescompserver/pkg/request"
	"github.com/relicforge/rescompserver/pkg/rescontext"
	"github.com/relicforge/rescompserver/pkg/resourceid"
)

type fakeSourceFS struct{ mtimes map[string]uint64 }

func newFakeSourceFS() *fakeSourceFS { return &fakeSourceFS{mtimes: make(map[string]uint64)} }
func (f *fakeSourceFS) set(path string, mtime uint64) { f.mtimes[path] = mtime }
func (f *fakeSourceFS) Stat(path string) (bool, uint64) {
	ts, ok := f.mtimes[path]
	return ok, ts
}

type fakeDestFS struct {
	dirs     map[string]bool
	present  map[string]bool
	readOnly map[string]bool
}

func newFakeDestFS() *fakeDestFS {
	return &fakeDestFS{dirs: map[string]bool{}, present: map[string]bool{}, readOnly: map[string]bool{}}
}
func (f *fakeDestFS) EnsureDir(dir string) error { f.dirs[dir] = true; return nil }
func (f *fakeDestFS) Stat(path string) (bool, bool) {
	return f.present[path], f.present[path] && f.readOnly[path]
}
func (f *fakeDestFS) markPresent(path string, readOnly bool) {
	f.present[path] = true
	f.readOnly[path] = readOnly
}

type fakeDescriptors struct{ deps map[string][]resourceid.ID }

func newFakeDescriptors() *fakeDescriptors { return &fakeDescriptors{deps: map[string][]resourceid.ID{}} }
func (f *fakeDescriptors) ReadCompileDependencies(sourcePath string) ([]resourceid.ID, error) {
	return f.deps[sourcePath], nil
}

type fakeRecordStore struct{ byKey map[resourceid.Key]recordstore.Record }

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{byKey: map[resourceid.Key]recordstore.Record{}}
}
func (f *fakeRecordStore) Get(id resourceid.ID) (recordstore.Record, bool, error) {
	rec, ok := f.byKey[id.Key()]
	return rec, ok, nil
}
func (f *fakeRecordStore) Put(record recordstore.Record) error {
	f.byKey[record.ID.Key()] = record
	return nil
}

func mustTag(t *testing.T, s string) resourceid.TypeTag {
	t.Helper()
	tag, err := resourceid.ParseTypeTag(s)
	require.NoError(t, err)
	return tag
}

type fixture struct {
	pool    *Pool
	fs      *fakeSourceFS
	destFS  *fakeDestFS
	descs   *fakeDescriptors
	records *fakeRecordStore
	cmder   *execpkg.FakeCmder
	ctx     *rescontext.ServerContext
}

func newFixture(t *testing.T, registerCompilers func(*compilerregistry.Registry)) *fixture {
	t.Helper()

	reg := compilerregistry.NewRegistry()
	if registerCompilers != nil {
		registerCompilers(reg)
	}

	ctx, err := rescontext.New("/source", "/output", "/bin/rescompiler", rescontext.NewTypeRegistry(), reg)
	require.NoError(t, err)

	fx := &fixture{
		fs:      newFakeSourceFS(),
		destFS:  newFakeDestFS(),
		descs:   newFakeDescriptors(),
		records: newFakeRecordStore(),
		cmder:   &execpkg.FakeCmder{},
		ctx:     ctx,
	}

	fx.pool = New(ctx, fx.records, fx.descs, 1, 1,
		WithFileSystem(fx.fs),
		WithDestinationFS(fx.destFS),
		WithCmder(fx.cmder),
	)
	return fx
}

func TestWorkerPool_FirstCompile(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:           3,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "anim")},
		}))
	})
	fx.fs.set("/source/chars/hero/run.anim", 1000)
	fx.cmder.FakeCmd = execpkg.FakeCmd{}

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)
	req := request.New(request.UserRequested, id)

	fx.pool.process(req)

	require.Equal(t, request.Succeeded, req.Status())
	rec, ok, _ := fx.records.Get(id)
	require.True(t, ok)
	require.EqualValues(t, 3, rec.CompilerVersion)
	require.EqualValues(t, 1000, rec.FileTimestamp)
	require.EqualValues(t, 1000, rec.SourceTimestampHash)
	require.True(t, fx.destFS.dirs["/output/chars/hero"])
}

func TestWorkerPool_SecondRequestIsUpToDate(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:           3,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "anim")},
		}))
	})
	fx.fs.set("/source/chars/hero/run.anim", 1000)

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)

	first := request.New(request.UserRequested, id)
	fx.pool.process(first)
	require.Equal(t, request.Succeeded, first.Status())
	fx.destFS.markPresent("/output/chars/hero/run.anim", false)
	// The resolver probes the compiled target through the same FileSystem
	// as the sources, so the target must exist there too.
	fx.fs.set("/output/chars/hero/run.anim", 1)

	// Simulate a compiler that would fail the test if invoked again.
	fx.cmder.FakeCmd = execpkg.FakeCmd{Error: execpkg.NewExitError(17)}

	second := request.New(request.UserRequested, id)
	fx.pool.process(second)

	require.Equal(t, request.SucceededUpToDate, second.Status())
}

func TestWorkerPool_DependencyChangeRecompiles(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:                  3,
			InputFileRequired:        true,
			ProducedTypes:            []resourceid.TypeTag{mustTag(t, "anim")},
			RecursesIntoDependencies: true,
		}))
		require.NoError(t, r.Register("skel-compiler", compilerregistry.Descriptor{
			Version:       1,
			ProducedTypes: []resourceid.TypeTag{mustTag(t, "skel")},
		}))
	})

	runID, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)
	skelID, err := resourceid.Parse("skel/hero.skel", "skel")
	require.NoError(t, err)

	fx.fs.set("/source/chars/hero/run.anim", 1000)
	fx.fs.set("/source/skel/hero.skel", 500)
	fx.descs.deps["/source/chars/hero/run.anim"] = []resourceid.ID{skelID}
	fx.records.Put(recordstore.Record{ID: skelID, CompilerVersion: 1, FileTimestamp: 500, SourceTimestampHash: 500})

	first := request.New(request.UserRequested, runID)
	fx.pool.process(first)
	require.Equal(t, request.Succeeded, first.Status())
	require.EqualValues(t, 1500, first.SourceTimestampHash)
	fx.destFS.markPresent("/output/chars/hero/run.anim", false)

	fx.fs.set("/source/skel/hero.skel", 700)

	second := request.New(request.UserRequested, runID)
	fx.pool.process(second)
	require.Equal(t, request.Succeeded, second.Status())
	require.EqualValues(t, 1700, second.SourceTimestampHash)

	rec, ok, _ := fx.records.Get(runID)
	require.True(t, ok)
	require.EqualValues(t, 1700, rec.SourceTimestampHash)
}

func TestWorkerPool_CircularDependencyFails(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("x-compiler", compilerregistry.Descriptor{
			Version:                  1,
			ProducedTypes:            []resourceid.TypeTag{mustTag(t, "x")},
			RecursesIntoDependencies: true,
		}))
	})

	aID, err := resourceid.Parse("a.x", "x")
	require.NoError(t, err)
	bID, err := resourceid.Parse("b.x", "x")
	require.NoError(t, err)
	fx.fs.set("/source/a.x", 1)
	fx.fs.set("/source/b.x", 1)
	fx.descs.deps["/source/a.x"] = []resourceid.ID{bID}
	fx.descs.deps["/source/b.x"] = []resourceid.ID{aID}

	req := request.New(request.UserRequested, aID)
	fx.pool.process(req)

	require.Equal(t, request.Failed, req.Status())
	require.Contains(t, req.LogText(), "a.x")
	require.Contains(t, req.LogText(), "b.x")
}

func TestWorkerPool_NoCompilerFails(t *testing.T) {
	fx := newFixture(t, nil)

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)

	req := request.New(request.UserRequested, id)
	fx.pool.process(req)

	require.Equal(t, request.Failed, req.Status())
	require.Contains(t, req.LogText(), "no compiler found")
	require.Empty(t, fx.destFS.dirs, "no filesystem writes should happen when no compiler is registered")
}

func TestWorkerPool_CompilerWarning(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("tex-compiler", compilerregistry.Descriptor{
			Version:           1,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "tex")},
		}))
	})
	fx.fs.set("/source/tex/logo.tex", 1000)
	fx.cmder.FakeCmd = execpkg.FakeCmd{Out: []byte("warning: downsampled"), Error: execpkg.NewExitError(1)}

	id, err := resourceid.Parse("tex/logo.tex", "tex")
	require.NoError(t, err)
	req := request.New(request.UserRequested, id)

	fx.pool.process(req)

	require.Equal(t, request.SucceededWithWarnings, req.Status())
	require.Contains(t, req.LogText(), "warning: downsampled")
	_, ok, _ := fx.records.Get(id)
	require.True(t, ok)
}

func TestWorkerPool_SubprocessStartFailure(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("tex-compiler", compilerregistry.Descriptor{
			Version:           1,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "tex")},
		}))
	})
	fx.fs.set("/source/tex/logo.tex", 1000)
	fx.cmder.FakeCmd = execpkg.FakeCmd{Error: errNotFound{}}

	id, err := resourceid.Parse("tex/logo.tex", "tex")
	require.NoError(t, err)
	req := request.New(request.UserRequested, id)

	fx.pool.process(req)

	require.Equal(t, request.Failed, req.Status())
	require.Contains(t, req.LogText(), "failed to start")
}

func TestWorkerPool_DestinationReadOnlyFails(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("tex-compiler", compilerregistry.Descriptor{
			Version:           1,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "tex")},
		}))
	})
	fx.fs.set("/source/tex/logo.tex", 1000)
	fx.destFS.markPresent("/output/tex/logo.tex", true)

	id, err := resourceid.Parse("tex/logo.tex", "tex")
	require.NoError(t, err)
	req := request.New(request.UserRequested, id)

	fx.pool.process(req)

	require.Equal(t, request.Failed, req.Status())
	require.Equal(t, request.DestinationReadOnly, mustFailKind(t, req))
}

func TestWorkerPool_PackageOriginAddsFlag(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:           1,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "anim")},
		}))
	})
	fx.fs.set("/source/chars/hero/run.anim", 1000)

	cmder := &recordingCmder{}
	fx.pool = New(fx.ctx, fx.records, fx.descs, 1, 1,
		WithFileSystem(fx.fs), WithDestinationFS(fx.destFS), WithCmder(cmder))

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)
	req := request.New(request.Package, id)
	req.CompilerArgs = "--foo"

	fx.pool.process(req)

	require.Equal(t, request.Succeeded, req.Status())
	require.Equal(t, []string{"-compile", "--foo", "-package"}, cmder.args)
}

func TestWorkerPool_PublishesTerminalEvent(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:           3,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "anim")},
		}))
	})
	fx.fs.set("/source/chars/hero/run.anim", 1000)

	bus := eventbus.New()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	fx.pool = New(fx.ctx, fx.records, fx.descs, 1, 1,
		WithFileSystem(fx.fs), WithDestinationFS(fx.destFS), WithCmder(fx.cmder), WithEventBus(bus))

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)
	req := request.New(request.UserRequested, id)

	fx.pool.process(req)

	ev := <-ch
	require.Equal(t, req.ID, ev.RequestID)
	require.Equal(t, request.Succeeded, ev.Status)
}

// TestPool_ConcurrentSubmitDuringShutdownNeverPanics drives the race a
// SIGTERM handler calling Shutdown concurrently with in-flight Submit
// callers would hit in production (cmd/rescompserver/cmd/serve.go): many
// goroutines racing Submit against one Shutdown must never panic with
// "send on closed channel".
func TestPool_ConcurrentSubmitDuringShutdownNeverPanics(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:           3,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "anim")},
		}))
	})
	fx.fs.set("/source/chars/hero/run.anim", 1000)
	fx.cmder.FakeCmd = execpkg.FakeCmd{}

	// Rebuild with a real queue and several workers so Submit/Shutdown
	// race through actual goroutines, not the process() shortcut the
	// other tests in this file use.
	fx.pool = New(fx.ctx, fx.records, fx.descs, 4, 8,
		WithFileSystem(fx.fs), WithDestinationFS(fx.destFS), WithCmder(fx.cmder))

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)

	const submitters = 32
	var wg sync.WaitGroup
	panics := make(chan interface{}, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panics <- r
				}
			}()
			req := request.New(request.UserRequested, id)
			// Either outcome is fine: ErrShuttingDown once Shutdown has
			// begun, or nil if this Submit won the race and got queued
			// before Shutdown closed the channel. A panic is the only
			// failure.
			_ = fx.pool.Submit(req)
		}()
	}

	require.NoError(t, fx.pool.Shutdown())
	wg.Wait()
	close(panics)

	for p := range panics {
		t.Fatalf("Submit panicked during concurrent Shutdown: %v", p)
	}
}

// panicSourceFS simulates a worker-fatal bug (as opposed to an ordinary
// missing-file condition, which fakeSourceFS.Stat reports by returning
// false, not by panicking).
type panicSourceFS struct{}

func (panicSourceFS) Stat(string) (bool, uint64) { panic("boom") }

func TestPool_Shutdown_AggregatesWorkerPanics(t *testing.T) {
	fx := newFixture(t, func(r *compilerregistry.Registry) {
		require.NoError(t, r.Register("anim-compiler", compilerregistry.Descriptor{
			Version:           3,
			InputFileRequired: true,
			ProducedTypes:     []resourceid.TypeTag{mustTag(t, "anim")},
		}))
	})
	fx.pool = New(fx.ctx, fx.records, fx.descs, 1, 1,
		WithFileSystem(panicSourceFS{}), WithDestinationFS(fx.destFS), WithCmder(fx.cmder))

	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)
	req := request.New(request.UserRequested, id)
	require.NoError(t, fx.pool.Submit(req))

	err = fx.pool.Shutdown()
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

// errNotFound mimics a process that never started: it has no ExitCode
// method, matching os/exec's behavior when Start itself fails.
type errNotFound struct{}

func (errNotFound) Error() string { return "exec: \"rescompiler\": executable file not found in $PATH" }

// recordingCmder is a FakeCmder that remembers the arguments of the last
// Command call.
type recordingCmder struct {
	execpkg.FakeCmder
	args []string
}

func (c *recordingCmder) Command(name string, arg ...string) execpkg.Cmd {
	c.args = arg
	return c.FakeCmder.Command(name, arg...)
}

func mustFailKind(t *testing.T, req *request.Request) request.Kind {
	t.Helper()
	// The Kind isn't directly exposed on Request; recover it from the log
	// line Fail wrote, which is formatted as "<Kind>: <message>".
	line := req.LogText()
	for _, k := range []request.Kind{
		request.InvalidResource, request.NoCompiler, request.MissingInput,
		request.DestinationReadOnly, request.DestinationUnavailable,
		request.DescriptorReadFailed, request.CircularDependency,
		request.StoreUnavailable, request.SubprocessStartFailed,
		request.SubprocessJoinFailed, request.CompilerFailed,
	} {
		if len(line) >= len(k.String()) && line[:len(k.String())] == k.String() {
			return k
		}
	}
	t.Fatalf("could not recover failure kind from log: %q", line)
	return request.InvalidResource
}
