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

package rec

import (
	"time"

	"github.com/recfs/recfs/internal/fid"
)

// Kind distinguishes the two object kinds the remote tree contains.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
)

// DiskType selects the remote storage area a listing call addresses.
type DiskType string

const (
	DiskCloud   DiskType = "cloud"
	DiskBackup  DiskType = "backup"
	DiskRecycle DiskType = "recycle"
)

// An Entry is one child within a directory listing, as produced by a single
// list call. Entries are immutable once produced.
type Entry struct {
	// The child's identifier.
	Fid fid.Fid

	// Display name: the remote name field, with the extension appended as
	// "name.ext" when the extension is non-empty.
	Name string

	// Body length in bytes. Zero when the server reports the size as a
	// string sentinel rather than a number.
	Size uint64

	// Content hash as reported by the server; empty when omitted.
	Hash string

	// Directory or regular file.
	Kind Kind

	// Last update time, converted to UTC on ingest.
	UpdatedAt time.Time
}

// Root returns the synthesized entry for the account root, which never
// appears in any server listing.
func Root() Entry {
	return Entry{
		Fid:       fid.Root(),
		Kind:      KindDirectory,
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
}

// DisplayName composes the user-visible name from the remote name and
// extension fields.
func DisplayName(name, ext string) string {
	if ext == "" {
		return name
	}
	return name + "." + ext
}
