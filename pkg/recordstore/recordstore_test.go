// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustID(t *testing.T, path, typ string) resourceid.ID {
	t.Helper()
	id, err := resourceid.Parse(path, typ)
	require.NoError(t, err)
	return id
}

func TestGet_MissingReturnsNoneWithoutError(t *testing.T) {
	s := openTemp(t)
	id := mustID(t, "chars/hero/run.anim", "anim")

	_, ok, err := s.Get(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutThenGet_RoundTrip(t *testing.T) {
	s := openTemp(t)
	id := mustID(t, "chars/hero/run.anim", "anim")

	want := Record{ID: id, CompilerVersion: 3, FileTimestamp: 1000, SourceTimestampHash: 1000}
	require.NoError(t, s.Put(want))

	got, ok, err := s.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want.CompilerVersion, got.CompilerVersion)
	require.Equal(t, want.FileTimestamp, got.FileTimestamp)
	require.Equal(t, want.SourceTimestampHash, got.SourceTimestampHash)
}

func TestPut_UpsertReplacesOnKeyCollision(t *testing.T) {
	s := openTemp(t)
	id := mustID(t, "chars/hero/run.anim", "anim")

	require.NoError(t, s.Put(Record{ID: id, CompilerVersion: 3, FileTimestamp: 1000, SourceTimestampHash: 1500}))
	require.NoError(t, s.Put(Record{ID: id, CompilerVersion: 3, FileTimestamp: 1000, SourceTimestampHash: 1700}))

	got, ok, err := s.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1700), got.SourceTimestampHash)
}

func TestKeyUniqueness_SamePathDifferentTypeAreDistinctRows(t *testing.T) {
	s := openTemp(t)
	animID := mustID(t, "chars/hero/run", "anim")
	skelID := mustID(t, "chars/hero/run", "skel")

	require.NoError(t, s.Put(Record{ID: animID, CompilerVersion: 1, FileTimestamp: 1, SourceTimestampHash: 1}))
	require.NoError(t, s.Put(Record{ID: skelID, CompilerVersion: 2, FileTimestamp: 2, SourceTimestampHash: 2}))

	got, ok, err := s.Get(animID)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, got.CompilerVersion)

	got, ok, err = s.Get(skelID)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, got.CompilerVersion)
}

func TestGet_IsCaseInsensitiveOnPath(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Put(Record{ID: mustID(t, "Chars/Hero/Run.anim", "anim"), CompilerVersion: 1, FileTimestamp: 1, SourceTimestampHash: 1}))

	_, ok, err := s.Get(mustID(t, "chars/hero/run.anim", "anim"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClose_Idempotent(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestClean_DropsAllRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(Record{ID: mustID(t, "a.tex", "tex"), CompilerVersion: 1, FileTimestamp: 1, SourceTimestampHash: 1}))
	require.NoError(t, s.Close())

	require.NoError(t, Clean(path))

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	_, ok, err := s2.Get(mustID(t, "a.tex", "tex"))
	require.NoError(t, err)
	require.False(t, ok)
}
