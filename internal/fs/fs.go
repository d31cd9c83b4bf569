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

// Package fs implements the path-addressed file system over the remote
// account: identifiers and listings come from the remote client through
// the resolver's cache, file bodies through the content cache.
package fs

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/recfs/recfs/internal/contentcache"
	"github.com/recfs/recfs/internal/fid"
	"github.com/recfs/recfs/internal/fidmap"
	"github.com/recfs/recfs/internal/logger"
	"github.com/recfs/recfs/internal/pathfs"
	"github.com/recfs/recfs/internal/rec"
	"github.com/recfs/recfs/internal/resolver"
)

// How long the kernel may cache attributes and entries.
const attrValidity = time.Second

// Space accounting is reported in 512-byte blocks.
const blockSize = 512

// A Client is the remote capability the file system consumes.
type Client interface {
	List(ctx context.Context, f fid.Fid, disk rec.DiskType) ([]rec.Entry, error)
	DownloadURL(ctx context.Context, f fid.Fid) (string, error)
	Stat(ctx context.Context) (rec.AccountInfo, error)
	Mkdir(ctx context.Context, parent fid.Fid, name string) error
}

type ServerConfig struct {
	// The remote client everything is served from.
	Client Client

	// The disk-backed body store.
	ContentCache *contentcache.Cache

	// Force a remote list on every path component instead of serving
	// repeated walks from the listing cache. Debug aid.
	DisableFastPath bool
}

// NewFileSystem creates a file system over the supplied remote client and
// content cache.
func NewFileSystem(cfg *ServerConfig) pathfs.FileSystem {
	listings := fidmap.NewListingCache()
	fs := &recFS{
		client:   cfg.Client,
		content:  cfg.ContentCache,
		listings: listings,
		handles:  fidmap.NewHandleTable(listings),
		resolver: resolver.New(listings, cfg.Client, cfg.DisableFastPath),
	}
	return fs
}

// The file system proper. All mutable state lives in the caches, each with
// its own synchronization; none of their locks is ever held across a
// remote call or disk I/O.
type recFS struct {
	client   Client
	content  *contentcache.Cache
	listings *fidmap.ListingCache
	handles  *fidmap.HandleTable
	resolver *resolver.Resolver
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Find the target of an upcall: by handle when one is supplied, by path
// otherwise.
func (fs *recFS) target(ctx context.Context, path string, handle *uint64) (f fid.Fid, parent *fid.Fid, err error) {
	if handle != nil {
		var ok bool
		if f, ok = fs.handles.Lookup(*handle); !ok {
			err = syscall.EBADF
			return
		}
		parent, _ = fs.handles.ParentOf(f)
		return
	}
	return fs.resolver.Resolve(ctx, path)
}

// Produce the listing entry describing f, looked up in its parent's cached
// listing. A nil parent denotes the account root, which no listing
// describes.
func (fs *recFS) item(ctx context.Context, f fid.Fid, parent *fid.Fid) (rec.Entry, error) {
	if parent == nil {
		return rec.Root(), nil
	}

	listing, ok := fs.listings.Lookup(*parent)
	if !ok || !listing.IsDir() {
		// The parent's listing is gone despite a live child reference.
		// Refetch rather than failing the stat.
		logger.Debugf("fs: no cached listing for parent %v of %v", *parent, f)
		children, err := fs.resolver.Refresh(ctx, *parent)
		if err != nil {
			return rec.Entry{}, err
		}
		listing = fidmap.Listing{Children: children}
	}

	for _, e := range listing.Children {
		if e.Fid == f {
			return e, nil
		}
	}
	return rec.Entry{}, syscall.ENOENT
}

func attrsFromEntry(e rec.Entry) fuseops.InodeAttributes {
	mode := os.FileMode(0600)
	if e.Kind == rec.KindDirectory {
		mode = os.ModeDir | 0600
	}

	epoch := time.Unix(0, 0).UTC()
	return fuseops.InodeAttributes{
		Size:   e.Size,
		Nlink:  1,
		Mode:   mode,
		Atime:  e.UpdatedAt,
		Mtime:  e.UpdatedAt,
		Ctime:  epoch,
		Crtime: epoch,
		Uid:    0,
		Gid:    0,
	}
}

////////////////////////////////////////////////////////////////////////
// Attributes and file system stats
////////////////////////////////////////////////////////////////////////

func (fs *recFS) GetAttr(ctx context.Context, path string, handle *uint64) (fuseops.InodeAttributes, time.Duration, error) {
	f, parent, err := fs.target(ctx, path, handle)
	if err != nil {
		return fuseops.InodeAttributes{}, 0, err
	}

	e, err := fs.item(ctx, f, parent)
	if err != nil {
		return fuseops.InodeAttributes{}, 0, err
	}
	return attrsFromEntry(e), attrValidity, nil
}

func (fs *recFS) StatFS(ctx context.Context) (pathfs.Statfs, error) {
	info, err := fs.client.Stat(ctx)
	if err != nil {
		logger.Warnf("fs: statting account: %v", err)
		return pathfs.Statfs{}, syscall.EIO
	}

	free := uint64(0)
	if info.TotalSpace > info.UsedSpace {
		free = info.TotalSpace - info.UsedSpace
	}
	return pathfs.Statfs{
		BlockSize:       blockSize,
		Blocks:          info.TotalSpace / blockSize,
		BlocksFree:      free / blockSize,
		BlocksAvailable: free / blockSize,
		IoSize:          blockSize,
		NameLen:         255,
	}, nil
}
