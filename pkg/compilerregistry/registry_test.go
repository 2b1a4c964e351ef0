// SPDX-License-Identifier: Apache-2.0

package compilerregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

func tag(t *testing.T, s string) resourceid.TypeTag {
	t.Helper()
	tg, err := resourceid.ParseTypeTag(s)
	require.NoError(t, err)
	return tg
}

func TestRegister_DuplicateProducedTypeRejected(t *testing.T) {
	r := NewRegistry()
	anim := tag(t, "anim")

	require.NoError(t, r.Register("anim-compiler", Descriptor{
		Version:       1,
		ProducedTypes: []resourceid.TypeTag{anim},
	}))

	err := r.Register("other-compiler", Descriptor{
		Version:       1,
		ProducedTypes: []resourceid.TypeTag{anim},
	})
	var dup *DuplicateProducedTypeError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, anim, dup.Type)
}

func TestVersionOf_PanicsForUnknownType(t *testing.T) {
	r := NewRegistry()
	require.Panics(t, func() {
		r.VersionOf(tag(t, "xyz "))
	})
}

func TestHasCompiler(t *testing.T) {
	r := NewRegistry()
	skel := tag(t, "skel")
	require.NoError(t, r.Register("skel-compiler", Descriptor{Version: 1, ProducedTypes: []resourceid.TypeTag{skel}}))

	require.True(t, r.HasCompiler(skel))
	require.False(t, r.HasCompiler(tag(t, "map ")))
}
