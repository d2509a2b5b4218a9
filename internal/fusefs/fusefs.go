// Package fusefs adapts the virtual filesystem engine to the kernel
// FUSE protocol. The engine owns inode numbers, so the adapter sits on
// go-fuse's raw interface rather than the path/inode-managing fs API:
// every request is translated into an engine call and every engine
// error into the nearest OS error code.
package fusefs

import (
	"errors"
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/ykpmusicstudio/remarkablemount/internal/engine"
	"github.com/ykpmusicstudio/remarkablemount/internal/logging"
)

// BlockSize is the advertised filesystem block size, used only for
// block-count rounding in attribute replies.
const BlockSize = 512

// FSName is the advertised filesystem name.
const FSName = "remarkablemount"

// FS is the read-only FUSE frontend over the engine.
type FS struct {
	fuse.RawFileSystem

	engine *engine.Engine
}

// New wraps an engine in a FUSE adapter.
func New(e *engine.Engine) *FS {
	return &FS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		engine:        e,
	}
}

// Mount mounts the filesystem read-only at the given path. The caller
// runs Serve on the returned server and Unmount on teardown.
func (f *FS) Mount(mountPoint string) (*fuse.Server, error) {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	opts := &fuse.MountOptions{
		FsName:  FSName,
		Name:    FSName,
		Options: []string{"ro"},
	}
	server, err := fuse.NewServer(f, mountPoint, opts)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountPoint, err)
	}
	return server, nil
}

func (f *FS) String() string {
	return FSName
}

// Init is the mount initialization hook. The engine seeds its sentinel
// nodes at construction, so there is nothing left that can fail here.
func (f *FS) Init(server *fuse.Server) {
	logging.Info("filesystem initialized")
}

// Lookup resolves a name within a directory. A missing child is
// ENOENT; a broken parent is ENOSYS so callers can tell the two apart.
func (f *FS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	attr, found, err := f.engine.Lookup(header.NodeId, name)
	if err != nil {
		logging.Error("lookup failed",
			zap.Uint64("parent", header.NodeId), zap.String("name", name), zap.Error(err))
		return fuse.ENOSYS
	}
	if !found {
		return fuse.ENOENT
	}

	out.NodeId = attr.Ino
	fillAttr(&out.Attr, attr)
	return fuse.OK
}

// GetAttr renders the attribute block for an inode.
func (f *FS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	attr, err := f.engine.Attr(input.NodeId)
	if err != nil {
		return errnoStatus(err)
	}
	fillAttr(&out.Attr, attr)
	return fuse.OK
}

// OpenDir accepts every directory open; listing state lives on the
// node, not the handle.
func (f *FS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	return fuse.OK
}

// ReadDir lists a directory starting at the request offset. The reply
// sink signalling full is backpressure, not an error: emitted entries
// carry absolute offsets so a resumed read continues where it stopped.
func (f *FS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, err := f.engine.ListDirectory(input.NodeId, int(input.Offset))
	if err != nil {
		logging.Error("readdir failed",
			zap.Uint64("ino", input.NodeId), zap.Error(err))
		return errnoStatus(err)
	}

	for _, e := range entries {
		de := fuse.DirEntry{
			Ino:  e.Ino,
			Off:  uint64(e.Off) + 1,
			Mode: entryMode(e.Kind),
			Name: e.Name,
		}
		if !out.AddDirEntry(de) {
			break
		}
	}
	return fuse.OK
}

// ReadDirPlus is ReadDir with inline attribute blocks.
func (f *FS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, err := f.engine.ListDirectory(input.NodeId, int(input.Offset))
	if err != nil {
		return errnoStatus(err)
	}

	for _, e := range entries {
		de := fuse.DirEntry{
			Ino:  e.Ino,
			Off:  uint64(e.Off) + 1,
			Mode: entryMode(e.Kind),
			Name: e.Name,
		}
		entryOut := out.AddDirLookupEntry(de)
		if entryOut == nil {
			break
		}
		attr, err := f.engine.Attr(e.Ino)
		if err != nil {
			continue
		}
		entryOut.NodeId = attr.Ino
		fillAttr(&entryOut.Attr, attr)
	}
	return fuse.OK
}

// ReleaseDir has no per-handle state to drop.
func (f *FS) ReleaseDir(input *fuse.ReleaseIn) {}

// Open acquires a handle; the handle value is the node's new open
// count.
func (f *FS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	h, err := f.engine.Open(input.NodeId)
	if err != nil {
		return errnoStatus(err)
	}
	out.Fh = h
	return fuse.OK
}

// Read fetches the requested byte range from the document's rendered
// target on the device.
func (f *FS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	data, err := f.engine.Read(input.NodeId, int64(input.Offset), int(input.Size))
	if err != nil {
		logging.Error("read failed",
			zap.Uint64("ino", input.NodeId), zap.Error(err))
		return nil, errnoStatus(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

// Release drops a handle.
func (f *FS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	if err := f.engine.Release(input.NodeId); err != nil {
		logging.Error("release failed",
			zap.Uint64("ino", input.NodeId), zap.Error(err))
	}
}

// StatFs advertises the fixed block size; the store's true capacity is
// not visible through the descriptor interface.
func (f *FS) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = BlockSize
	out.NameLen = 255
	return fuse.OK
}

func fillAttr(out *fuse.Attr, a engine.Attr) {
	out.Ino = a.Ino
	out.Size = uint64(a.Size)
	out.Blocks = (uint64(a.Size) + BlockSize - 1) / BlockSize
	out.Blksize = BlockSize
	out.Atime = uint64(a.Atime)
	out.Mtime = uint64(a.Mtime)
	out.Ctime = uint64(a.Ctime)
	out.Mode = entryMode(a.Kind) | a.Perm
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.UID, Gid: a.GID}
}

func entryMode(k engine.EntryKind) uint32 {
	if k == engine.EntryFile {
		return fuse.S_IFREG
	}
	return fuse.S_IFDIR
}

// errnoStatus maps engine errors onto FUSE status codes: NotFound to
// ENOENT, handle misuse to its errno, invalid input to EINVAL, and
// everything else (transport, decode) to EIO.
func errnoStatus(err error) fuse.Status {
	var nf *engine.NotFoundError
	if errors.As(err, &nf) {
		return fuse.ENOENT
	}
	var he *engine.HandleError
	if errors.As(err, &he) {
		return fuse.Status(he.Errno)
	}
	if errors.Is(err, engine.ErrInvalidArgument) {
		return fuse.EINVAL
	}
	return fuse.EIO
}
