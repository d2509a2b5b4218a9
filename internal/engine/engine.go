// Package engine is the virtual filesystem core: the inode table, the
// lazy tree materializer that reconstructs hierarchy from the device's
// flat descriptor store, and the read path against rendered targets.
//
// The device has no directory structure; each descriptor embeds a
// parent id, and a directory listing is a remote search for descriptors
// declaring the listed node as their parent. Results are folded into
// the inode table, which lives for the whole mount session.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ykpmusicstudio/remarkablemount/internal/logging"
	"github.com/ykpmusicstudio/remarkablemount/internal/metrics"
	"github.com/ykpmusicstudio/remarkablemount/internal/record"
	"github.com/ykpmusicstudio/remarkablemount/internal/remote"
)

// Transport is the remote session surface the engine consumes. All
// calls are synchronous and blocking.
type Transport interface {
	Stat(path string) (remote.FileStat, error)
	ReadAll(path string) (string, error)
	ReadAt(path string, offset int64, buf []byte) (int, error)
	FindDescriptorsByParent(root, parentID string) ([]remote.FileStat, error)
}

// Attr is a rendered attribute snapshot handed to the adapter.
type Attr struct {
	Ino   uint64
	Size  int64
	Kind  EntryKind
	Perm  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Atime int64
	Mtime int64
	Ctime int64
}

// Engine owns the inode table. The FUSE dispatcher delivers operations
// on multiple goroutines, so every entry point serializes on one lock;
// the uid index and the node arena must always move together.
type Engine struct {
	mu        sync.Mutex
	transport Transport
	docRoot   string
	table     *Table
}

// New builds an engine over a connected transport. The table is seeded
// with the invalid, root and trash sentinels.
func New(t Transport, docRoot string) *Engine {
	e := &Engine{
		transport: t,
		docRoot:   docRoot,
		table:     NewTable(),
	}
	metrics.SetNodeCount(e.table.Len())
	return e
}

// Attr renders the attribute block for an inode.
func (e *Engine) Attr(ino uint64) (Attr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.table.Get(ino)
	if err != nil {
		return Attr{}, err
	}
	return attrOf(node), nil
}

// Lookup resolves a child name within a directory. A missing child is
// reported with found=false and no error; an invalid parent is an
// error so callers can tell "child absent" from "parent broken".
func (e *Engine) Lookup(parent uint64, name string) (Attr, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ino, found, err := e.table.ResolveChild(parent, name)
	if err != nil {
		return Attr{}, false, err
	}
	if !found {
		return Attr{}, false, nil
	}
	node, err := e.table.Get(ino)
	if err != nil {
		return Attr{}, false, err
	}
	return attrOf(node), true, nil
}

// ListDirectory returns the directory's entries starting at offset. An
// offset of zero synchronizes the child set with the device first; any
// other offset only re-slices the listing assembled by the most recent
// offset-zero call. Offsets past the end yield an empty slice.
func (e *Engine) ListDirectory(ino uint64, offset int) ([]ChildEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if offset == 0 {
		if err := e.syncChildren(ino); err != nil {
			return nil, err
		}
	}

	node, err := e.table.Get(ino)
	if err != nil {
		return nil, err
	}
	if offset >= len(node.children) {
		return nil, nil
	}
	out := make([]ChildEntry, len(node.children)-offset)
	copy(out, node.children[offset:])
	return out, nil
}

// syncChildren performs a full resync of a directory's child set: query
// descriptors declaring this node as parent, fold each into the table,
// and replace the children list wholesale so remotely removed entries
// disappear. Per-entry decode failures drop that entry and continue.
func (e *Engine) syncChildren(ino uint64) error {
	start := time.Now()

	if _, err := e.table.Get(ino); err != nil {
		return err
	}
	uid, err := e.table.UniqueID(ino)
	if err != nil {
		return err
	}

	found, err := e.transport.FindDescriptorsByParent(e.docRoot, uid)
	if err != nil {
		return err
	}
	candidates := staticChildren(ino)
	candidates = append(candidates, found...)

	entries := make([]ChildEntry, 0, len(candidates))
	for _, st := range candidates {
		child, err := e.addOrUpdateNode(ino, st)
		if err != nil {
			logging.Warn("dropping unreadable entry",
				zap.String("path", st.Path), zap.Error(err))
			continue
		}
		entries = append(entries, ChildEntry{
			Ino:  child.ino,
			Off:  len(entries),
			Kind: child.Kind(),
			Name: child.VisibleName(),
		})
	}

	node, err := e.table.Get(ino)
	if err != nil {
		return err
	}
	node.children = entries

	metrics.SetNodeCount(e.table.Len())
	metrics.ObserveListing(time.Since(start).Seconds())
	logging.Debug("directory synchronized",
		zap.Uint64("ino", ino), zap.Int("entries", len(entries)))
	return nil
}

// staticChildren returns the synthetic always-present children of a
// directory: the trash entry under root, nothing elsewhere.
func staticChildren(ino uint64) []remote.FileStat {
	if ino == RootIno {
		return []remote.FileStat{remote.SyntheticDir(TrashUID)}
	}
	return nil
}

// addOrUpdateNode folds one observed descriptor stat into the table.
// New or stale nodes get a full metadata fetch; documents additionally
// fetch their content record, and renderable documents take the stat of
// their pdf/epub target as the authoritative size source.
func (e *Engine) addOrUpdateNode(parent uint64, st remote.FileStat) (*Node, error) {
	uid := st.UniqueID()
	ino, needsRefresh := e.table.AllocateOrTouch(uid, parent, st)
	node, err := e.table.Get(ino)
	if err != nil {
		return nil, err
	}
	if !needsRefresh {
		return node, nil
	}

	logging.Debug("refreshing node",
		zap.Uint64("ino", ino), zap.String("uid", uid))

	// Stage every remote fetch before touching the node. A refresh
	// that fails part-way must leave the node exactly as it was, so
	// the staleness rule retries the whole fetch on the next listing.
	text, err := e.transport.ReadAll(st.Path)
	if err != nil {
		return nil, err
	}
	meta, err := record.DecodeMetadata(text)
	if err != nil {
		return nil, &DecodeError{Path: st.Path, Err: err}
	}

	var (
		content   *record.Content
		targetSt  remote.FileStat
		hasTarget bool
	)
	if meta.IsDocument() {
		cpath := contentPath(e.docRoot, uid)
		ctext, err := e.transport.ReadAll(cpath)
		if err != nil {
			return nil, err
		}
		content, err = record.DecodeContent(ctext)
		if err != nil {
			return nil, &DecodeError{Path: cpath, Err: err}
		}

		if target, ok := targetPath(e.docRoot, uid, content); ok {
			targetSt, err = e.transport.Stat(target)
			if err != nil {
				return nil, err
			}
			hasTarget = true
		}
	}

	node.setMetadata(meta, parent, st)
	if content != nil {
		node.setContent(content)
	}
	if hasTarget {
		node.setTargetStat(targetSt)
	}
	return node, nil
}

// Read returns min(size, declared-size - offset) bytes of the node's
// rendered target, read at the byte offset. Reads at or past the
// declared size return no data and no error. A zero size or negative
// offset is invalid input.
func (e *Engine) Read(ino uint64, offset int64, size int) ([]byte, error) {
	if size <= 0 || offset < 0 {
		return nil, ErrInvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.table.Get(ino)
	if err != nil {
		return nil, err
	}
	target, ok := node.TargetPath(e.docRoot)
	if !ok {
		return nil, &NotFoundError{Ino: ino}
	}

	declared := node.Size()
	if offset >= declared {
		return []byte{}, nil
	}
	want := declared - offset
	if int64(size) < want {
		want = int64(size)
	}

	buf := make([]byte, want)
	n, err := e.transport.ReadAt(target, offset, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Open acquires a handle on a node and returns the new handle count.
func (e *Engine) Open(ino uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.table.Get(ino)
	if err != nil {
		return 0, err
	}
	h, err := node.open()
	if err != nil {
		return 0, err
	}
	metrics.HandleOpened()
	return h, nil
}

// Release drops a handle on a node.
func (e *Engine) Release(ino uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.table.Get(ino)
	if err != nil {
		return err
	}
	if _, err := node.close(); err != nil {
		return err
	}
	metrics.HandleReleased()
	return nil
}

func attrOf(n *Node) Attr {
	return Attr{
		Ino:   n.ino,
		Size:  n.Size(),
		Kind:  n.Kind(),
		Perm:  n.stat.Perm,
		Nlink: n.Links(),
		UID:   n.stat.UID,
		GID:   n.stat.GID,
		Atime: n.stat.Atime,
		Mtime: n.stat.Mtime,
		Ctime: n.stat.Mtime,
	}
}
