package remote

import (
	"path"
	"strings"
	"time"
)

// InvalidUID is the unique id reported for stats whose path carries no
// usable base name.
const InvalidUID = "INVALID-UID-0000"

// FileStat is a point-in-time snapshot of a remote file's attributes,
// keyed by the path that was queried.
type FileStat struct {
	Path  string
	Size  int64
	UID   uint32
	GID   uint32
	Perm  uint32
	Atime int64
	Mtime int64
}

// SyntheticDir builds a stat for sentinel entries (root, trash) that have
// no backing file on the device.
func SyntheticDir(p string) FileStat {
	now := time.Now().Unix()
	return FileStat{
		Path:  p,
		Perm:  0o444,
		Atime: now,
		Mtime: now,
	}
}

// UniqueID derives the remote unique id from the stat's path: the base
// name with its extension stripped. Descriptor files are named
// <uuid>.metadata, so this recovers the uuid.
func (s FileStat) UniqueID() string {
	base := path.Base(s.Path)
	if base == "." || base == "/" || base == "" {
		return InvalidUID
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		return InvalidUID
	}
	return base
}

// MoreRecentThan reports whether this stat's modify time is strictly
// newer than the other's.
func (s FileStat) MoreRecentThan(old FileStat) bool {
	return s.Mtime > old.Mtime
}
