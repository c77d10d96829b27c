// Package fsadapter is the thin user-space file-system adapter shim: a
// transcription of a standard POSIX callback table onto whichever volume
// backs the mount (volume.Volume or memoryfs.FS). It is deliberately out
// of core scope — no actual kernel-level mount syscalls are issued here;
// Dispatch routes one callback at a time, the way a FUSE main loop would
// hand requests to a registered operations table.
package fsadapter

import (
	"time"
)

// Attr is the adapter-level attribute shape, with the same fields as
// volume.Attr and memoryfs.Attr. Filesystem has no Getattr method, so
// nothing in this package returns it.
type Attr struct {
	Mode       uint32
	Size       uint64
	UID        uint32
	GID        uint32
	AccessedAt time.Time
	ModifiedAt time.Time
	Nlink      uint32
}

// Filesystem is the callback table a mounted volume must implement. Both
// volume.Volume and memoryfs.FS satisfy it structurally; open/release are
// deliberately left out since volume.Volume's Open returns a Handle
// carrying the file's first block, a shape memoryfs has no use for.
type Filesystem interface {
	Create(path string, mode, uid, gid uint32) error
	Unlink(path string) error
	Rename(oldPath, newPath string) error
	Chmod(path string, mode uint32) error
	Chown(path string, uid, gid uint32) error
	Truncate(path string, newSize uint64) error
	Write(path string, offset int64, data []byte) (int, error)
	Read(path string, offset int64, buf []byte) (int, error)
	Readdir(path string) ([]string, error)
}

// Adapter routes named operations to an underlying Filesystem. It holds no
// state beyond the Filesystem itself; the single-threaded cooperative
// model means callbacks run strictly in the order they're dispatched.
type Adapter struct {
	fs Filesystem
}

// New returns an Adapter dispatching onto fs.
func New(fs Filesystem) *Adapter {
	return &Adapter{fs: fs}
}

// Dispatch is the single entry point a real FUSE main loop would call per
// incoming request; op names the POSIX operation and args/results are
// passed through untyped since the wire format of a real adapter is out of
// scope here.
func (a *Adapter) Dispatch(op string, call func(fs Filesystem) error) error {
	return call(a.fs)
}
