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

package fs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/recfs/recfs/internal/contentcache"
	"github.com/recfs/recfs/internal/fid"
	"github.com/recfs/recfs/internal/pathfs"
	"github.com/recfs/recfs/internal/rec"
	"github.com/recfs/recfs/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////
// Fake remote
////////////////////////////////////////////////////////////////////////

type fakeClient struct {
	listings map[fid.Fid][]rec.Entry
	urls     map[fid.Fid]string
	info     rec.AccountInfo

	statErr  error
	mkdirErr error

	listCalls     atomic.Int32
	downloadCalls atomic.Int32
}

func (c *fakeClient) List(ctx context.Context, f fid.Fid, disk rec.DiskType) ([]rec.Entry, error) {
	c.listCalls.Add(1)
	entries, ok := c.listings[f]
	if !ok {
		return nil, errors.New("no such directory")
	}
	return entries, nil
}

func (c *fakeClient) DownloadURL(ctx context.Context, f fid.Fid) (string, error) {
	c.downloadCalls.Add(1)
	u, ok := c.urls[f]
	if !ok {
		return "", errors.New("no such file")
	}
	return u, nil
}

func (c *fakeClient) Stat(ctx context.Context) (rec.AccountInfo, error) {
	if c.statErr != nil {
		return rec.AccountInfo{}, c.statErr
	}
	return c.info, nil
}

func (c *fakeClient) Mkdir(ctx context.Context, parent fid.Fid, name string) error {
	if c.mkdirErr != nil {
		return c.mkdirErr
	}
	child := fid.FromUUID(uuid.New())
	c.listings[child] = nil
	c.listings[parent] = append(c.listings[parent], rec.Entry{
		Fid:       child,
		Name:      name,
		Kind:      rec.KindDirectory,
		UpdatedAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	return nil
}

////////////////////////////////////////////////////////////////////////
// Fixture
////////////////////////////////////////////////////////////////////////

type fixture struct {
	fs     pathfs.FileSystem
	client *fakeClient
	docs   fid.Fid
	note   fid.Fid
	body   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	docs := fid.FromUUID(uuid.MustParse("00000000-0000-0000-0000-00000000000a"))
	note := fid.FromUUID(uuid.MustParse("00000000-0000-0000-0000-00000000000b"))
	body := []byte("the quick brown fox jumps over the lazy dog")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, note.String()) {
			w.Write(body)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	updated := time.Date(2023, 5, 1, 16, 0, 0, 0, time.UTC)
	client := &fakeClient{
		listings: map[fid.Fid][]rec.Entry{
			fid.Root(): {
				{Fid: docs, Name: "docs", Kind: rec.KindDirectory, UpdatedAt: updated},
			},
			docs: {
				{Fid: note, Name: "note.txt", Kind: rec.KindFile, Size: uint64(len(body)), UpdatedAt: updated},
			},
			fid.BackupRoot():  {},
			fid.RecycleRoot(): {},
		},
		urls: map[fid.Fid]string{note: srv.URL + "/sign/" + note.String()},
		info: rec.AccountInfo{TotalSpace: 1 << 30, UsedSpace: 1 << 29},
	}

	scratch := filepath.Join(t.TempDir(), "scratch")
	require.NoError(t, os.MkdirAll(scratch, 0700))

	return &fixture{
		fs: NewFileSystem(&ServerConfig{
			Client:       client,
			ContentCache: contentcache.New(scratch, &http.Client{Timeout: time.Minute}),
		}),
		client: client,
		docs:   docs,
		note:   note,
		body:   body,
	}
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func TestGetAttrRoot(t *testing.T) {
	fx := newFixture(t)

	attrs, validity, err := fx.fs.GetAttr(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.True(t, attrs.Mode.IsDir())
	assert.Equal(t, os.FileMode(0600), attrs.Mode.Perm())
	assert.Equal(t, uint32(0), attrs.Uid)
	assert.Equal(t, uint32(0), attrs.Gid)
	assert.Equal(t, time.Second, validity)
}

func TestGetAttrFile(t *testing.T) {
	fx := newFixture(t)

	attrs, _, err := fx.fs.GetAttr(context.Background(), "/docs/note.txt", nil)
	require.NoError(t, err)
	assert.False(t, attrs.Mode.IsDir())
	assert.Equal(t, uint64(len(fx.body)), attrs.Size)
	assert.Equal(t, time.Date(2023, 5, 1, 16, 0, 0, 0, time.UTC), attrs.Mtime)
	assert.Equal(t, attrs.Mtime, attrs.Atime)
}

func TestGetAttrMissing(t *testing.T) {
	fx := newFixture(t)

	_, _, err := fx.fs.GetAttr(context.Background(), "/nope", nil)
	assert.Equal(t, syscall.ENOENT, err)
}

func TestGetAttrByHandle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.OpenDir(ctx, "/docs")
	require.NoError(t, err)

	attrs, _, err := fx.fs.GetAttr(ctx, "", &h)
	require.NoError(t, err)
	assert.True(t, attrs.Mode.IsDir())

	bogus := uint64(12345)
	_, _, err = fx.fs.GetAttr(ctx, "", &bogus)
	assert.Equal(t, syscall.EBADF, err)
}

func TestGetAttrByHandleAfterRelease(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.OpenDir(ctx, "/docs")
	require.NoError(t, err)
	require.NoError(t, fx.fs.ReleaseDir(ctx, h))

	_, _, err = fx.fs.GetAttr(ctx, "", &h)
	assert.Equal(t, syscall.EBADF, err)
}

func TestOpenDirOnFile(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.fs.OpenDir(context.Background(), "/docs/note.txt")
	assert.Equal(t, syscall.ENOTDIR, err)
}

func TestReadDir(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.OpenDir(ctx, "/")
	require.NoError(t, err)

	calls := fx.client.listCalls.Load()
	entries, err := fx.fs.ReadDir(ctx, h)
	require.NoError(t, err)
	// ReadDir is cache-only.
	assert.Equal(t, calls, fx.client.listCalls.Load())

	names := make(map[string]fuseutil.DirentType)
	for _, e := range entries {
		names[e.Name] = e.Type
	}
	assert.Equal(t, fuseutil.DT_Directory, names["docs"])
	assert.Equal(t, fuseutil.DT_Directory, names[resolver.BackupName])
	assert.Equal(t, fuseutil.DT_Directory, names[resolver.RecycleName])
}

func TestReadDirBadHandle(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.fs.ReadDir(context.Background(), 999)
	assert.Equal(t, syscall.EBADF, err)
}

func TestReadDirOnFileHandle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.Open(ctx, "/docs/note.txt", 0)
	require.NoError(t, err)

	_, err = fx.fs.ReadDir(ctx, h)
	assert.Equal(t, syscall.ENOTDIR, err)
}

func TestOpenRejectsWriteFlags(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for _, flags := range []uint32{
		uint32(syscall.O_WRONLY),
		uint32(syscall.O_RDWR),
		uint32(syscall.O_APPEND),
		uint32(syscall.O_CREAT),
		uint32(syscall.O_TRUNC),
	} {
		_, err := fx.fs.Open(ctx, "/docs/note.txt", flags)
		assert.Equal(t, syscall.ENOSYS, err, "flags %#o", flags)
	}
}

func TestOpenDirectory(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.fs.Open(context.Background(), "/docs", 0)
	assert.Equal(t, syscall.EISDIR, err)
}

func TestReadWholeFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.Open(ctx, "/docs/note.txt", 0)
	require.NoError(t, err)

	data, err := fx.fs.Read(ctx, h, 0, len(fx.body))
	require.NoError(t, err)
	assert.Equal(t, fx.body, data)
	assert.Equal(t, int32(1), fx.client.downloadCalls.Load())

	// Later reads are served from the cache without a new URL.
	data, err = fx.fs.Read(ctx, h, 0, len(fx.body))
	require.NoError(t, err)
	assert.Equal(t, fx.body, data)
	assert.Equal(t, int32(1), fx.client.downloadCalls.Load())
}

func TestReadFromOffsetToEOF(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.Open(ctx, "/docs/note.txt", 0)
	require.NoError(t, err)

	// The size hint is ignored; the read runs to end-of-file.
	data, err := fx.fs.Read(ctx, h, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, fx.body[4:], data)

	// Reading at or past the end yields no bytes.
	data, err = fx.fs.Read(ctx, h, int64(len(fx.body)+10), 1)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestReadBadHandle(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.fs.Read(context.Background(), 999, 0, 1)
	assert.Equal(t, syscall.EBADF, err)
}

func TestReadDownloadFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	h, err := fx.fs.Open(ctx, "/docs/note.txt", 0)
	require.NoError(t, err)

	// Break the signed URL.
	fx.client.urls[fx.note] = "http://127.0.0.1:0/nope"
	_, err = fx.fs.Read(ctx, h, 0, 1)
	assert.Equal(t, syscall.EIO, err)
}

func TestStatFS(t *testing.T) {
	fx := newFixture(t)

	st, err := fx.fs.StatFS(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(512), st.BlockSize)
	assert.Equal(t, uint64(1<<30)/512, st.Blocks)
	assert.Equal(t, uint64(1<<29)/512, st.BlocksFree)
	assert.Equal(t, st.BlocksFree, st.BlocksAvailable)
	assert.Equal(t, uint32(255), st.NameLen)
	assert.Equal(t, uint64(0), st.Inodes)
}

func TestStatFSError(t *testing.T) {
	fx := newFixture(t)
	fx.client.statErr = errors.New("transport down")

	_, err := fx.fs.StatFS(context.Background())
	assert.Equal(t, syscall.EIO, err)
}

func TestMkdir(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	attrs, validity, err := fx.fs.Mkdir(ctx, "/docs", "fresh")
	require.NoError(t, err)
	assert.True(t, attrs.Mode.IsDir())
	assert.Equal(t, time.Second, validity)

	// The new child resolves through the refreshed cache.
	got, _, err := fx.fs.GetAttr(ctx, "/docs/fresh", nil)
	require.NoError(t, err)
	assert.True(t, got.Mode.IsDir())
}

func TestMkdirUnderFile(t *testing.T) {
	fx := newFixture(t)

	_, _, err := fx.fs.Mkdir(context.Background(), "/docs/note.txt", "x")
	assert.Equal(t, syscall.ENOTDIR, err)
}

func TestMkdirRemoteFailure(t *testing.T) {
	fx := newFixture(t)
	fx.client.mkdirErr = fmt.Errorf("denied")

	_, _, err := fx.fs.Mkdir(context.Background(), "/docs", "x")
	assert.Equal(t, syscall.EIO, err)
}
