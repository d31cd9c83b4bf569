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

package pathfs

import (
	"context"
	"fmt"
	"path"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// The inode value placed in directory entries. The kernel treats it as
// "no inode information"; stable inode numbers are not guaranteed here.
const unknownInode = fuseops.InodeID(0xffffffff)

// NewServer wraps fs in a fuse server that translates the kernel's
// inode-addressed operations into path-addressed calls.
func NewServer(fs FileSystem, clock timeutil.Clock) fuse.Server {
	return fuseutil.NewFileSystemServer(newServer(fs, clock))
}

////////////////////////////////////////////////////////////////////////
// server type
////////////////////////////////////////////////////////////////////////

type inodeRecord struct {
	// The absolute path the inode was issued for.
	path string

	// Outstanding kernel references, per LookUpInode minus ForgetInode.
	lookupCount uint64
}

// A server tracks which path each kernel-visible inode denotes. The root
// inode is bound to "/" for the lifetime of the mount; other inodes are
// issued on lookup and retired when the kernel forgets them.
type server struct {
	fuseutil.NotImplementedFileSystem

	fs    FileSystem
	clock timeutil.Clock

	mu syncutil.InvariantMutex

	// INVARIANT: inodes and byPath are inverses of each other.
	// INVARIANT: For all records r, r.lookupCount > 0.
	//
	// GUARDED_BY(mu)
	inodes map[fuseops.InodeID]*inodeRecord

	// GUARDED_BY(mu)
	byPath map[string]fuseops.InodeID

	// The next inode ID to hand out. Never reused within a mount, which at
	// plausible lookup rates cannot wrap.
	//
	// GUARDED_BY(mu)
	nextInode fuseops.InodeID
}

func newServer(fs FileSystem, clock timeutil.Clock) *server {
	s := &server{
		fs:        fs,
		clock:     clock,
		inodes:    make(map[fuseops.InodeID]*inodeRecord),
		byPath:    make(map[string]fuseops.InodeID),
		nextInode: fuseops.RootInodeID + 1,
	}
	s.inodes[fuseops.RootInodeID] = &inodeRecord{path: "/", lookupCount: 1}
	s.byPath["/"] = fuseops.RootInodeID
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

func (s *server) checkInvariants() {
	if len(s.inodes) != len(s.byPath) {
		panic(fmt.Sprintf("map sizes disagree: %d vs. %d", len(s.inodes), len(s.byPath)))
	}
	for id, r := range s.inodes {
		if got, ok := s.byPath[r.path]; !ok || got != id {
			panic(fmt.Sprintf("inode %d and path %q not inverse", id, r.path))
		}
		if r.lookupCount == 0 {
			panic(fmt.Sprintf("inode %d has zero lookup count", id))
		}
	}
}

// Return the path bound to the given inode.
//
// LOCKS_EXCLUDED(s.mu)
func (s *server) pathOf(id fuseops.InodeID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.inodes[id]
	if !ok {
		return "", syscall.ENOENT
	}
	return r.path, nil
}

// Issue (or re-reference) the inode for a path.
//
// LOCKS_EXCLUDED(s.mu)
func (s *server) issueInode(p string) fuseops.InodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPath[p]; ok {
		s.inodes[id].lookupCount++
		return id
	}

	id := s.nextInode
	s.nextInode++
	s.inodes[id] = &inodeRecord{path: p, lookupCount: 1}
	s.byPath[p] = id
	return id
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (s *server) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parentPath, err := s.pathOf(op.Parent)
	if err != nil {
		return err
	}
	childPath := path.Join(parentPath, op.Name)

	attrs, validity, err := s.fs.GetAttr(ctx, childPath, nil)
	if err != nil {
		return err
	}

	expiry := s.clock.Now().Add(validity)
	op.Entry = fuseops.ChildInodeEntry{
		Child:                s.issueInode(childPath),
		Attributes:           attrs,
		AttributesExpiration: expiry,
		EntryExpiration:      expiry,
	}
	return nil
}

func (s *server) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	p, err := s.pathOf(op.Inode)
	if err != nil {
		return err
	}

	attrs, validity, err := s.fs.GetAttr(ctx, p, nil)
	if err != nil {
		return err
	}

	op.Attributes = attrs
	op.AttributesExpiration = s.clock.Now().Add(validity)
	return nil
}

func (s *server) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	if op.Inode == fuseops.RootInodeID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.inodes[op.Inode]
	if !ok {
		return nil
	}
	if op.N >= r.lookupCount {
		delete(s.inodes, op.Inode)
		delete(s.byPath, r.path)
	} else {
		r.lookupCount -= op.N
	}
	return nil
}

func (s *server) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	p, err := s.pathOf(op.Inode)
	if err != nil {
		return err
	}

	h, err := s.fs.OpenDir(ctx, p)
	if err != nil {
		return err
	}
	op.Handle = fuseops.HandleID(h)
	return nil
}

func (s *server) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	entries, err := s.fs.ReadDir(ctx, uint64(op.Handle))
	if err != nil {
		return err
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return syscall.EINVAL
	}

	for i := int(op.Offset); i < len(entries); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  unknownInode,
			Name:   entries[i].Name,
			Type:   entries[i].Type,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (s *server) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return s.fs.ReleaseDir(ctx, uint64(op.Handle))
}

func (s *server) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	p, err := s.pathOf(op.Inode)
	if err != nil {
		return err
	}

	// The kernel's open flags are not forwarded: the file system always
	// sees a read-only open, so write modes are not rejected here. Writes
	// themselves fail with ENOSYS, since no write op is implemented.
	h, err := s.fs.Open(ctx, p, uint32(syscall.O_RDONLY))
	if err != nil {
		return err
	}
	op.Handle = fuseops.HandleID(h)
	return nil
}

func (s *server) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	data, err := s.fs.Read(ctx, uint64(op.Handle), op.Offset, len(op.Dst))
	if err != nil {
		return err
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (s *server) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return s.fs.Release(ctx, uint64(op.Handle))
}

func (s *server) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	st, err := s.fs.StatFS(ctx)
	if err != nil {
		return err
	}

	op.BlockSize = st.BlockSize
	op.Blocks = st.Blocks
	op.BlocksFree = st.BlocksFree
	op.BlocksAvailable = st.BlocksAvailable
	op.IoSize = st.IoSize
	op.Inodes = st.Inodes
	op.InodesFree = st.InodesFree
	return nil
}

func (s *server) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parentPath, err := s.pathOf(op.Parent)
	if err != nil {
		return err
	}

	attrs, validity, err := s.fs.Mkdir(ctx, parentPath, op.Name)
	if err != nil {
		return err
	}

	expiry := s.clock.Now().Add(validity)
	op.Entry = fuseops.ChildInodeEntry{
		Child:                s.issueInode(path.Join(parentPath, op.Name)),
		Attributes:           attrs,
		AttributesExpiration: expiry,
		EntryExpiration:      expiry,
	}
	return nil
}
