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
	"io"
	"os"
	"syscall"

	"github.com/recfs/recfs/internal/logger"
)

// Open flags that would imply writing. Any of them gets ENOSYS: there is
// no write path.
const writeFlags = uint32(syscall.O_WRONLY | syscall.O_RDWR | syscall.O_APPEND |
	syscall.O_CREAT | syscall.O_TRUNC)

func (fs *recFS) Open(ctx context.Context, path string, flags uint32) (uint64, error) {
	if flags&writeFlags != 0 {
		return 0, syscall.ENOSYS
	}

	f, parent, err := fs.resolver.Resolve(ctx, path)
	if err != nil {
		return 0, err
	}

	listing, ok := fs.listings.Lookup(f)
	if !ok {
		logger.Debugf("fs: open %q: no cache entry for %v after resolve", path, f)
		return 0, syscall.EIO
	}
	if listing.IsDir() {
		return 0, syscall.EISDIR
	}

	return fs.handles.Bind(f, parent), nil
}

// Read returns the bytes from offset to end-of-file; the size hint from
// the kernel is informational only and the dispatcher truncates to its
// buffer. The first read of a file downloads the body into the content
// cache; later reads are local.
func (fs *recFS) Read(ctx context.Context, handle uint64, offset int64, size int) ([]byte, error) {
	f, ok := fs.handles.Lookup(handle)
	if !ok {
		return nil, syscall.EBADF
	}

	path, ok := fs.content.Probe(f)
	if !ok {
		url, err := fs.client.DownloadURL(ctx, f)
		if err != nil {
			logger.Warnf("fs: obtaining download URL for %v: %v", f, err)
			return nil, syscall.EIO
		}
		if err := fs.content.Fetch(ctx, f, url); err != nil {
			logger.Warnf("fs: fetching body of %v: %v", f, err)
			return nil, syscall.EIO
		}
		if path, ok = fs.content.Probe(f); !ok {
			logger.Warnf("fs: body of %v missing after fetch", f)
			return nil, syscall.EIO
		}
	}

	body, err := os.Open(path)
	if err != nil {
		logger.Warnf("fs: opening cached body %s: %v", path, err)
		return nil, syscall.EIO
	}
	defer body.Close()

	if _, err := body.Seek(offset, io.SeekStart); err != nil {
		logger.Warnf("fs: seeking cached body %s: %v", path, err)
		return nil, syscall.EIO
	}
	data, err := io.ReadAll(body)
	if err != nil {
		logger.Warnf("fs: reading cached body %s: %v", path, err)
		return nil, syscall.EIO
	}
	return data, nil
}

func (fs *recFS) Release(ctx context.Context, handle uint64) error {
	fs.handles.Release(handle)
	return nil
}
