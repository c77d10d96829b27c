// Package memoryfs implements the trivial in-memory volume variant: a flat
// mapping of name to byte sequence plus metadata, with no backing container
// and no block-chain allocation. It exists alongside volume.Volume as the
// other mount kind named in the external interface; it shares only the
// shape of that interface, not its machinery.
package memoryfs

import (
	"time"

	"github.com/MGZeroes/bslab/errors"
)

// MaxNameLength, NumDirEntries, and NumOpenFiles mirror the on-disk
// volume's bounds so the two variants are interchangeable at the adapter
// boundary.
const (
	MaxNameLength = 255
	NumDirEntries = 64
	NumOpenFiles  = 64
)

// ModeRegular and ModeDirectory match volume.ModeRegular/ModeDirectory.
const (
	ModeRegular   = 0o100000
	ModeDirectory = 0o040000
)

// entry is one file's content and metadata, the direct analogue of the
// original MyFsMemoryInfo record: content plus uid/gid/mode/atime/mtime
// /ctime.
type entry struct {
	content []byte
	uid     uint32
	gid     uint32
	mode    uint32
	atime   time.Time
	mtime   time.Time
	ctime   time.Time
}

// Attr is the subset of POSIX stat(2) fields reported for a path.
type Attr struct {
	Mode       uint32
	Size       uint64
	UID        uint32
	GID        uint32
	AccessedAt time.Time
	ModifiedAt time.Time
	Nlink      uint32
}

// FSStat holds the name and file-count fields of volume.FSStat for
// aggregate reporting; the in-memory variant has no block fields.
type FSStat struct {
	MaxNameLength int
	MaxFiles      int
	UsedFiles     int
}

// FS is one mounted instance of the in-memory variant. It is not safe for
// concurrent use, matching the single-threaded cooperative model.
type FS struct {
	entries map[string]*entry
	order   []string
	open    map[string]bool
	now     func() time.Time
}

// New returns an empty, freshly formatted in-memory file system.
func New() *FS {
	return &FS{
		entries: make(map[string]*entry),
		open:    make(map[string]bool),
		now:     time.Now,
	}
}

// Create makes a new, empty regular file at path.
func (fs *FS) Create(path string, mode, uid, gid uint32) error {
	if len(path)-1 > MaxNameLength {
		return errors.ErrNameTooLong
	}
	if len(fs.order) >= NumDirEntries {
		return errors.ErrNoSpace
	}
	if _, exists := fs.entries[path]; exists {
		return errors.ErrExists
	}

	now := fs.now()
	fs.entries[path] = &entry{
		uid:   uid,
		gid:   gid,
		mode:  mode | ModeRegular,
		atime: now,
		mtime: now,
		ctime: now,
	}
	fs.order = append(fs.order, path)
	return nil
}

// Unlink removes path and its content.
func (fs *FS) Unlink(path string) error {
	if _, ok := fs.entries[path]; !ok {
		return errors.ErrNotFound
	}
	delete(fs.entries, path)
	for i, p := range fs.order {
		if p == path {
			fs.order = append(fs.order[:i], fs.order[i+1:]...)
			break
		}
	}
	return nil
}

// Rename moves the record at oldPath to newPath.
func (fs *FS) Rename(oldPath, newPath string) error {
	e, ok := fs.entries[oldPath]
	if !ok {
		return errors.ErrNotFound
	}
	if _, exists := fs.entries[newPath]; exists {
		return errors.ErrExists
	}
	if len(newPath)-1 > MaxNameLength {
		return errors.ErrNameTooLong
	}

	e.ctime = fs.now()
	fs.entries[newPath] = e
	delete(fs.entries, oldPath)
	for i, p := range fs.order {
		if p == oldPath {
			fs.order[i] = newPath
			break
		}
	}
	return nil
}

// Chmod sets the permission bits of path's mode, leaving type bits intact.
func (fs *FS) Chmod(path string, mode uint32) error {
	e, ok := fs.entries[path]
	if !ok {
		return errors.ErrNotFound
	}
	e.mode = (e.mode &^ 0o777) | (mode & 0o777)
	e.ctime = fs.now()
	return nil
}

// Chown sets path's owning uid/gid.
func (fs *FS) Chown(path string, uid, gid uint32) error {
	e, ok := fs.entries[path]
	if !ok {
		return errors.ErrNotFound
	}
	e.uid = uid
	e.gid = gid
	e.ctime = fs.now()
	return nil
}

// Truncate grows or shrinks path's content to exactly newSize bytes,
// zero-filling any newly added bytes.
func (fs *FS) Truncate(path string, newSize uint64) error {
	e, ok := fs.entries[path]
	if !ok {
		return errors.ErrNotFound
	}

	switch {
	case uint64(len(e.content)) < newSize:
		grown := make([]byte, newSize)
		copy(grown, e.content)
		e.content = grown
	case uint64(len(e.content)) > newSize:
		e.content = e.content[:newSize]
	}
	e.mtime = fs.now()
	e.ctime = fs.now()
	return nil
}

// Write overlays data at offset into path's content, growing it if
// necessary, and returns the number of bytes written.
func (fs *FS) Write(path string, offset int64, data []byte) (int, error) {
	if offset < 0 {
		return 0, errors.ErrBadArgument
	}
	e, ok := fs.entries[path]
	if !ok {
		return 0, errors.ErrNotFound
	}

	needed := uint64(offset) + uint64(len(data))
	if uint64(len(e.content)) < needed {
		grown := make([]byte, needed)
		copy(grown, e.content)
		e.content = grown
	}
	copy(e.content[offset:], data)

	e.mtime = fs.now()
	e.ctime = fs.now()
	return len(data), nil
}

// Read fills buf starting at offset in path's content and returns the
// number of bytes actually read. Reading at or past the end of the file
// returns 0 bytes, not an error.
func (fs *FS) Read(path string, offset int64, buf []byte) (int, error) {
	if offset < 0 {
		return 0, errors.ErrBadArgument
	}
	e, ok := fs.entries[path]
	if !ok {
		return 0, errors.ErrNotFound
	}
	if uint64(offset) >= uint64(len(e.content)) {
		return 0, nil
	}

	n := copy(buf, e.content[offset:])
	return n, nil
}

// Getattr returns POSIX-style attributes for path. The root directory is
// synthetic and always exists.
func (fs *FS) Getattr(path string) (Attr, error) {
	if path == "/" {
		return Attr{Mode: ModeDirectory | 0o755, Nlink: 2}, nil
	}
	e, ok := fs.entries[path]
	if !ok {
		return Attr{}, errors.ErrNotFound
	}
	return Attr{
		Mode:       e.mode,
		Size:       uint64(len(e.content)),
		UID:        e.uid,
		GID:        e.gid,
		AccessedAt: e.atime,
		ModifiedAt: e.mtime,
		Nlink:      1,
	}, nil
}

// Readdir lists the names in the root directory, including "." and "..".
func (fs *FS) Readdir(path string) ([]string, error) {
	if path != "/" {
		return nil, errors.ErrNotFound
	}
	names := []string{".", ".."}
	for _, p := range fs.order {
		names = append(names, p[1:])
	}
	return names, nil
}

// Open registers path as open. It fails if the path is already open or the
// registry is at capacity.
func (fs *FS) Open(path string) error {
	if _, ok := fs.entries[path]; !ok {
		return errors.ErrNotFound
	}
	if fs.open[path] {
		return errors.ErrInUse
	}
	if len(fs.open) >= NumOpenFiles {
		return errors.ErrTooManyOpen
	}
	fs.open[path] = true
	return nil
}

// Release closes a previously opened path.
func (fs *FS) Release(path string) {
	delete(fs.open, path)
}

// Stat returns aggregate volume information.
func (fs *FS) Stat() FSStat {
	return FSStat{
		MaxNameLength: MaxNameLength,
		MaxFiles:      NumDirEntries,
		UsedFiles:     len(fs.order),
	}
}
