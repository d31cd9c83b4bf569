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

// Package fid defines the identifier type used by the remote API to address
// objects. Identifiers are small immutable values, cheap to copy and usable
// as map keys.
package fid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// The variant tag. Remote objects carry a UUID; the three roots and the
// local-write placeholder are produced only on our side and never appear in
// server payloads.
type variant uint8

const (
	variantRoot variant = iota
	variantBackupRoot
	variantRecycleRoot
	variantRemote
	variantLocalWrite
)

const (
	rootText        = "0"
	backupRootText  = "B_0"
	recycleRootText = "R_0"
	localWritePfx   = "write-"
)

// A Fid identifies one object in the remote tree. The zero value is the
// account root.
type Fid struct {
	v variant

	// The remote object's UUID. Meaningful only for variantRemote.
	id uuid.UUID

	// The local allocation counter. Meaningful only for variantLocalWrite.
	seq uint64
}

// Root returns the identifier of the account root.
func Root() Fid {
	return Fid{v: variantRoot}
}

// BackupRoot returns the identifier of the synthetic backup subtree root.
func BackupRoot() Fid {
	return Fid{v: variantBackupRoot}
}

// RecycleRoot returns the identifier of the synthetic recycle subtree root.
func RecycleRoot() Fid {
	return Fid{v: variantRecycleRoot}
}

// FromUUID returns the identifier of the remote object with the given UUID.
func FromUUID(id uuid.UUID) Fid {
	return Fid{v: variantRemote, id: id}
}

// LocalWrite returns the placeholder identifier for the n-th locally created,
// not-yet-uploaded object.
func LocalWrite(n uint64) Fid {
	return Fid{v: variantLocalWrite, seq: n}
}

// Parse converts the textual form used by the remote API back into a Fid.
// Accepted forms: a UUID, the literals "0", "B_0" and "R_0", and
// "write-<n>" with a non-negative decimal n. Anything else is an error.
func Parse(s string) (Fid, error) {
	if id, err := uuid.Parse(s); err == nil {
		return FromUUID(id), nil
	}

	switch s {
	case rootText:
		return Root(), nil
	case backupRootText:
		return BackupRoot(), nil
	case recycleRootText:
		return RecycleRoot(), nil
	}

	if rest, ok := strings.CutPrefix(s, localWritePfx); ok {
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Fid{}, fmt.Errorf("invalid fid %q: %w", s, err)
		}
		return LocalWrite(n), nil
	}

	return Fid{}, fmt.Errorf("invalid fid %q", s)
}

// String returns the textual form consumed verbatim by the remote API.
func (f Fid) String() string {
	switch f.v {
	case variantRoot:
		return rootText
	case variantBackupRoot:
		return backupRootText
	case variantRecycleRoot:
		return recycleRootText
	case variantRemote:
		return f.id.String()
	case variantLocalWrite:
		return localWritePfx + strconv.FormatUint(f.seq, 10)
	default:
		panic(fmt.Sprintf("unexpected fid variant %d", f.v))
	}
}

// IsRoot reports whether f is the account root.
func (f Fid) IsRoot() bool {
	return f.v == variantRoot
}

// IsBackupRoot reports whether f is the synthetic backup root.
func (f Fid) IsBackupRoot() bool {
	return f.v == variantBackupRoot
}

// IsRecycleRoot reports whether f is the synthetic recycle root.
func (f Fid) IsRecycleRoot() bool {
	return f.v == variantRecycleRoot
}

// IsLocalWrite reports whether f is a placeholder for a locally created
// object that has not reached the server yet.
func (f Fid) IsLocalWrite() bool {
	return f.v == variantLocalWrite
}

// Less defines a total order over identifiers: variants in declaration
// order, then UUID bytes, then the local-write counter.
func (f Fid) Less(other Fid) bool {
	if f.v != other.v {
		return f.v < other.v
	}
	switch f.v {
	case variantRemote:
		return strings.Compare(f.id.String(), other.id.String()) < 0
	case variantLocalWrite:
		return f.seq < other.seq
	default:
		return false
	}
}
