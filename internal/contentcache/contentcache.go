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

// Package contentcache stores downloaded file bodies in a scratch
// directory on local disk. A body at its final path is complete and
// immutable; presence of the final path is the only cache-hit signal.
package contentcache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/recfs/recfs/internal/fid"
	"github.com/recfs/recfs/internal/logger"
	"github.com/recfs/recfs/internal/rec"
)

const downloadSuffix = ".download"

// A Cache is a disk-backed body store. Concurrent fetches of the same
// identifier are collapsed to a single download via an exclusive advisory
// lock on the in-progress file; the lock also coordinates other processes
// sharing the scratch directory and is released implicitly on a crash.
type Cache struct {
	dir        string
	httpClient *http.Client
}

// New creates a cache over the given scratch directory, which must exist.
// A nil client selects a default with the standard request timeout.
func New(dir string, client *http.Client) *Cache {
	if client == nil {
		client = &http.Client{Timeout: rec.DefaultTimeout}
	}
	return &Cache{dir: dir, httpClient: client}
}

// Dir returns the scratch directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Probe returns the local path of f's body if it is fully cached. A bare
// stat, no locking.
func (c *Cache) Probe(f fid.Fid) (path string, ok bool) {
	path = c.finalPath(f)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Fetch ensures f's body is present at its final path, downloading it from
// url if necessary. Safe to call concurrently with identical arguments: at
// most one download proceeds, the rest block on the lock and find the
// published body.
func (c *Cache) Fetch(ctx context.Context, f fid.Fid, url string) error {
	final := c.finalPath(f)
	download := final + downloadSuffix

	lock := flock.New(download)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", download, err)
	}
	defer lock.Unlock()

	// Someone else may have finished while we waited for the lock.
	if _, err := os.Stat(final); err == nil {
		// The lock call recreates the download file if it lost the race
		// entirely; don't leave that residue behind.
		_ = os.Remove(download)
		return nil
	}

	if err := c.download(ctx, url, download); err != nil {
		return err
	}

	// Publish. Readers never observe a partial body: the rename is atomic
	// and the final path did not exist before.
	if err := os.Rename(download, final); err != nil {
		return fmt.Errorf("publishing %s: %w", final, err)
	}
	return nil
}

// Stream the response body into the locked in-progress file. A truncated
// previous attempt is overwritten from the start.
func (c *Cache) download(ctx context.Context, url, download string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading body: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading body: unexpected HTTP status %d", resp.StatusCode)
	}

	out, err := os.OpenFile(download, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", download, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", download, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", download, err)
	}
	return nil
}

func (c *Cache) finalPath(f fid.Fid) string {
	return filepath.Join(c.dir, f.String())
}

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ScratchDir returns the per-mount scratch location under the system
// temporary directory.
func ScratchDir() string {
	nonce := make([]byte, 10)
	for i := range nonce {
		nonce[i] = nonceAlphabet[rand.Intn(len(nonceAlphabet))]
	}
	return filepath.Join(os.TempDir(), "recfs", string(nonce))
}

// Init prepares the scratch directory. A fresh directory is created
// silently; an existing one is wiped only after the user confirms on in,
// and reused otherwise.
func Init(dir string, in io.Reader, out io.Writer) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating scratch directory: %w", err)
		}
		return nil
	}

	fmt.Fprintf(out, "Remove folder %s for initialization? [y/N] ", dir)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading answer: %w", err)
	}

	if strings.TrimSpace(answer) == "y" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("wiping scratch directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating scratch directory: %w", err)
		}
		return nil
	}

	logger.Warnf("Reusing existing scratch directory %s", dir)
	return nil
}
