// SPDX-License-Identifier: Apache-2.0

package request

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

func newTestRequest(t *testing.T) *Request {
	t.Helper()
	id, err := resourceid.Parse("chars/hero/run.anim", "anim")
	require.NoError(t, err)
	return New(UserRequested, id)
}

func TestStatusTransitions_HappyPath(t *testing.T) {
	r := newTestRequest(t)
	require.NoError(t, r.SetStatus(UpToDateCheck))
	require.NoError(t, r.SetStatus(Compiling))
	require.NoError(t, r.SetStatus(Succeeded))
	require.True(t, r.IsComplete())
	require.True(t, r.HasSucceeded())
}

func TestStatusTransitions_RejectsSkippingUpToDateCheck(t *testing.T) {
	r := newTestRequest(t)
	err := r.SetStatus(Compiling)
	var transErr *TransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestStatusTransitions_TerminalIsImmutable(t *testing.T) {
	r := newTestRequest(t)
	require.NoError(t, r.SetStatus(UpToDateCheck))
	require.NoError(t, r.SetStatus(SucceededUpToDate))

	err := r.SetStatus(Compiling)
	require.Error(t, err)
}

func TestFail_SetsLogAndTerminalStatus(t *testing.T) {
	r := newTestRequest(t)
	require.NoError(t, r.SetStatus(UpToDateCheck))

	rerr := r.Fail(NoCompiler, "no compiler found for resource type (anim)", nil)
	require.Equal(t, Failed, r.Status())
	require.Contains(t, r.LogText(), "no compiler found for resource type (anim)")
	require.Equal(t, NoCompiler, rerr.Kind)
}

func TestFail_IsIdempotentOnceTerminal(t *testing.T) {
	r := newTestRequest(t)
	require.NoError(t, r.SetStatus(UpToDateCheck))
	require.NoError(t, r.SetStatus(SucceededUpToDate))

	r.Fail(MissingInput, "should not override terminal success", nil)
	require.Equal(t, SucceededUpToDate, r.Status())
}

func TestOriginPackage_String(t *testing.T) {
	require.Equal(t, "Package", Package.String())
}
