// Copyright 2023 The recfs Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/recfs/recfs/internal/fid"
	"github.com/recfs/recfs/internal/fidmap"
	"github.com/recfs/recfs/internal/rec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A scripted lister: listings per fid, with call counting.
type fakeLister struct {
	listings map[fid.Fid][]rec.Entry
	disks    map[fid.Fid]rec.DiskType
	calls    map[fid.Fid]int
	failAll  bool
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		listings: make(map[fid.Fid][]rec.Entry),
		disks:    make(map[fid.Fid]rec.DiskType),
		calls:    make(map[fid.Fid]int),
	}
}

func (l *fakeLister) List(ctx context.Context, f fid.Fid, disk rec.DiskType) ([]rec.Entry, error) {
	l.calls[f]++
	l.disks[f] = disk
	if l.failAll {
		return nil, errors.New("transport down")
	}
	entries, ok := l.listings[f]
	if !ok {
		return nil, errors.New("no such directory")
	}
	return entries, nil
}

func (l *fakeLister) totalCalls() int {
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

func mustFid(t *testing.T, s string) fid.Fid {
	t.Helper()
	f, err := fid.Parse(s)
	require.NoError(t, err)
	return f
}

func twoLevelTree(t *testing.T) (*fakeLister, fid.Fid, fid.Fid) {
	t.Helper()
	x := mustFid(t, "00000000-0000-0000-0000-00000000000a")
	y := mustFid(t, "00000000-0000-0000-0000-00000000000b")

	l := newFakeLister()
	l.listings[fid.Root()] = []rec.Entry{{Fid: x, Name: "x", Kind: rec.KindDirectory}}
	l.listings[x] = []rec.Entry{{Fid: y, Name: "y", Kind: rec.KindFile, Size: 7}}
	return l, x, y
}

func TestResolveEmptyPath(t *testing.T) {
	l := newFakeLister()
	l.listings[fid.Root()] = nil
	r := New(fidmap.NewListingCache(), l, false)

	for _, path := range []string{"", "/"} {
		f, parent, err := r.Resolve(context.Background(), path)
		require.NoError(t, err, "path %q", path)
		assert.Equal(t, fid.Root(), f)
		assert.Nil(t, parent)
	}
}

func TestResolveCacheReuse(t *testing.T) {
	l, x, y := twoLevelTree(t)
	r := New(fidmap.NewListingCache(), l, false)

	f, parent, err := r.Resolve(context.Background(), "/x/y")
	require.NoError(t, err)
	assert.Equal(t, y, f)
	require.NotNil(t, parent)
	assert.Equal(t, x, *parent)

	// Both components were listed exactly once: root and x. The final
	// object is a file, so no third call.
	assert.Equal(t, 2, l.totalCalls())

	// The second resolution is served from the cache alone.
	f, parent, err = r.Resolve(context.Background(), "/x/y")
	require.NoError(t, err)
	assert.Equal(t, y, f)
	require.NotNil(t, parent)
	assert.Equal(t, x, *parent)
	assert.Equal(t, 2, l.totalCalls())
}

func TestResolveNoFastPath(t *testing.T) {
	l, _, y := twoLevelTree(t)
	r := New(fidmap.NewListingCache(), l, true)

	_, _, err := r.Resolve(context.Background(), "/x/y")
	require.NoError(t, err)
	calls := l.totalCalls()

	f, _, err := r.Resolve(context.Background(), "/x/y")
	require.NoError(t, err)
	assert.Equal(t, y, f)

	// Every component cost a fresh remote list again.
	assert.Equal(t, calls+2, l.totalCalls())
}

func TestResolveFinalDirectoryIsListed(t *testing.T) {
	l, x, _ := twoLevelTree(t)
	cache := fidmap.NewListingCache()
	r := New(cache, l, false)

	f, _, err := r.Resolve(context.Background(), "/x")
	require.NoError(t, err)
	assert.Equal(t, x, f)

	// The walk listed the root; the final-fid precondition listed x.
	assert.Equal(t, 1, l.calls[fid.Root()])
	assert.Equal(t, 1, l.calls[x])

	listing, ok := cache.Lookup(x)
	require.True(t, ok)
	assert.True(t, listing.IsDir())
}

func TestResolveFinalFileMarkedNonDir(t *testing.T) {
	l, x, y := twoLevelTree(t)
	cache := fidmap.NewListingCache()
	r := New(cache, l, false)

	_, _, err := r.Resolve(context.Background(), "/x/y")
	require.NoError(t, err)

	listing, ok := cache.Lookup(y)
	require.True(t, ok)
	assert.False(t, listing.IsDir())
	assert.Equal(t, 0, l.calls[y])

	// The parent map was populated along the walk.
	p, known := cache.Parent(y)
	require.True(t, known)
	require.NotNil(t, p)
	assert.Equal(t, x, *p)
}

func TestResolveMissingName(t *testing.T) {
	l, _, _ := twoLevelTree(t)
	r := New(fidmap.NewListingCache(), l, false)

	_, _, err := r.Resolve(context.Background(), "/nope")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestResolveListFailure(t *testing.T) {
	l := newFakeLister()
	l.failAll = true
	r := New(fidmap.NewListingCache(), l, false)

	_, _, err := r.Resolve(context.Background(), "/anything")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestResolveInvalidComponent(t *testing.T) {
	l, _, _ := twoLevelTree(t)
	r := New(fidmap.NewListingCache(), l, false)

	_, _, err := r.Resolve(context.Background(), "/\xff\xfe")
	assert.Equal(t, syscall.EINVAL, err)
}

func TestSyntheticRootsInjected(t *testing.T) {
	l := newFakeLister()
	l.listings[fid.Root()] = []rec.Entry{
		{Fid: mustFid(t, "00000000-0000-0000-0000-00000000000a"), Name: "real", Kind: rec.KindDirectory},
	}
	cache := fidmap.NewListingCache()
	r := New(cache, l, false)

	_, _, err := r.Resolve(context.Background(), "/")
	require.NoError(t, err)

	listing, ok := cache.Lookup(fid.Root())
	require.True(t, ok)

	names := make([]string, 0, len(listing.Children))
	for _, e := range listing.Children {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "real")
	assert.Contains(t, names, BackupName)
	assert.Contains(t, names, RecycleName)
}

func TestSyntheticRootDiskTypes(t *testing.T) {
	inner := mustFid(t, "00000000-0000-0000-0000-00000000000c")

	l := newFakeLister()
	l.listings[fid.Root()] = nil
	l.listings[fid.BackupRoot()] = []rec.Entry{{Fid: inner, Name: "snap", Kind: rec.KindDirectory}}
	l.listings[fid.RecycleRoot()] = nil
	l.listings[inner] = nil

	r := New(fidmap.NewListingCache(), l, false)

	f, parent, err := r.Resolve(context.Background(), "/"+BackupName)
	require.NoError(t, err)
	assert.Equal(t, fid.BackupRoot(), f)
	require.NotNil(t, parent)
	assert.Equal(t, fid.Root(), *parent)
	assert.Equal(t, rec.DiskBackup, l.disks[fid.BackupRoot()])

	_, _, err = r.Resolve(context.Background(), "/"+RecycleName)
	require.NoError(t, err)
	assert.Equal(t, rec.DiskRecycle, l.disks[fid.RecycleRoot()])

	// Children of a synthetic root resolve like any other directory.
	got, _, err := r.Resolve(context.Background(), "/"+BackupName+"/snap")
	require.NoError(t, err)
	assert.Equal(t, inner, got)
}

func TestDuplicateNameFirstWins(t *testing.T) {
	a := mustFid(t, "00000000-0000-0000-0000-00000000000a")
	b := mustFid(t, "00000000-0000-0000-0000-00000000000b")

	l := newFakeLister()
	l.listings[fid.Root()] = []rec.Entry{
		{Fid: a, Name: "dup", Kind: rec.KindFile},
		{Fid: b, Name: "dup", Kind: rec.KindFile},
	}
	r := New(fidmap.NewListingCache(), l, false)

	f, _, err := r.Resolve(context.Background(), "/dup")
	require.NoError(t, err)
	assert.Equal(t, a, f)
}
