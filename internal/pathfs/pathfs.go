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

// Package pathfs exposes a path-addressed file system over the
// inode-addressed FUSE protocol. Implementations see absolute paths and
// integer handles; the server in this package keeps the kernel's inode
// namespace mapped onto paths.
package pathfs

import (
	"context"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// A DirEntry is one name within a directory, as returned by ReadDir.
type DirEntry struct {
	Name string
	Type fuseutil.DirentType
}

// Statfs reports file system wide numbers for statfs(2).
type Statfs struct {
	BlockSize       uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	IoSize          uint32
	Inodes          uint64
	InodesFree      uint64

	// Maximum name length. The fuse library does not transport this field,
	// so it is advisory.
	NameLen uint32
}

// A FileSystem handles path-addressed upcalls. The server delivers calls
// concurrently; implementations must be safe for concurrent use. Errors
// must be POSIX error numbers (syscall.Errno).
type FileSystem interface {
	// Return attributes for the object at path, preferring the handle when
	// one is supplied, plus the duration the kernel may cache them.
	GetAttr(ctx context.Context, path string, handle *uint64) (fuseops.InodeAttributes, time.Duration, error)

	// Open the directory at path and return a handle for it.
	OpenDir(ctx context.Context, path string) (uint64, error)

	// List the directory previously opened under the given handle.
	ReadDir(ctx context.Context, handle uint64) ([]DirEntry, error)

	// Release a directory handle.
	ReleaseDir(ctx context.Context, handle uint64) error

	// Open the file at path with the given open(2) flags and return a
	// handle for it.
	Open(ctx context.Context, path string, flags uint32) (uint64, error)

	// Read from the file previously opened under the given handle,
	// starting at offset. size is a hint; the result may be shorter or
	// longer, and the server truncates it to the kernel's buffer.
	Read(ctx context.Context, handle uint64, offset int64, size int) ([]byte, error)

	// Release a file handle.
	Release(ctx context.Context, handle uint64) error

	// Report file system wide numbers.
	StatFS(ctx context.Context) (Statfs, error)

	// Create a directory called name under the directory at parentPath and
	// return the new child's attributes plus their validity duration.
	Mkdir(ctx context.Context, parentPath string, name string) (fuseops.InodeAttributes, time.Duration, error)
}
