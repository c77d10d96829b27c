package volume

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/MGZeroes/bslab/errors"
	"github.com/gocarina/gocsv"
)

// direntRecordSize is the fixed on-disk size of one directory record, per
// §6: a 255-byte name, size, first_block, uid, gid, mode, and three
// timestamps.
const direntRecordSize = 255 + 8 + 2 + 4 + 4 + 4 + 8 + 8 + 8

// Dirent is a directory entry's metadata, keyed by canonical path ("/name")
// in the owning directory table.
type Dirent struct {
	Name       string
	Size       uint64
	FirstBlock uint16
	UID        uint32
	GID        uint32
	Mode       uint32
	AccessedAt time.Time
	ModifiedAt time.Time
	ChangedAt  time.Time
}

func (d *Dirent) encode() []byte {
	buf := make([]byte, direntRecordSize)
	copy(buf[0:255], d.Name)
	binary.LittleEndian.PutUint64(buf[255:263], d.Size)
	binary.LittleEndian.PutUint16(buf[263:265], d.FirstBlock)
	binary.LittleEndian.PutUint32(buf[265:269], d.UID)
	binary.LittleEndian.PutUint32(buf[269:273], d.GID)
	binary.LittleEndian.PutUint32(buf[273:277], d.Mode)
	binary.LittleEndian.PutUint64(buf[277:285], uint64(d.AccessedAt.Unix()))
	binary.LittleEndian.PutUint64(buf[285:293], uint64(d.ModifiedAt.Unix()))
	binary.LittleEndian.PutUint64(buf[293:301], uint64(d.ChangedAt.Unix()))
	return buf
}

func decodeDirent(buf []byte) Dirent {
	name := string(buf[0:255])
	if idx := strings.IndexByte(name, 0); idx >= 0 {
		name = name[:idx]
	}
	return Dirent{
		Name:       name,
		Size:       binary.LittleEndian.Uint64(buf[255:263]),
		FirstBlock: binary.LittleEndian.Uint16(buf[263:265]),
		UID:        binary.LittleEndian.Uint32(buf[265:269]),
		GID:        binary.LittleEndian.Uint32(buf[269:273]),
		Mode:       binary.LittleEndian.Uint32(buf[273:277]),
		AccessedAt: time.Unix(int64(binary.LittleEndian.Uint64(buf[277:285])), 0),
		ModifiedAt: time.Unix(int64(binary.LittleEndian.Uint64(buf[285:293])), 0),
		ChangedAt:  time.Unix(int64(binary.LittleEndian.Uint64(buf[293:301])), 0),
	}
}

// directory is the flat, in-memory mapping of canonical path to directory
// record that backs the on-disk ROOT region. There is exactly one
// directory in the volume.
type directory struct {
	entries map[string]*Dirent
	// order preserves insertion order so that flush writes records back
	// into deterministic slots, matching the teacher's "iteration order"
	// convention for flat tables.
	order []string
}

func newEmptyDirectory() directory {
	return directory{entries: make(map[string]*Dirent)}
}

func canonicalPath(name string) string {
	return "/" + name
}

// lookup returns the record for path, if any.
func (dt *directory) lookup(path string) (*Dirent, bool) {
	d, ok := dt.entries[path]
	return d, ok
}

// insert adds a new record at path.
func (dt *directory) insert(path string, record Dirent) error {
	if len(path)-1 > MaxNameLength {
		return errors.ErrNameTooLong
	}
	if len(dt.order) >= NumDirEntries {
		return errors.ErrNoSpace
	}
	if _, exists := dt.entries[path]; exists {
		return errors.ErrExists
	}

	record.Name = path[1:]
	dt.entries[path] = &record
	dt.order = append(dt.order, path)
	return nil
}

// erase removes the record at path and, if it owned a non-empty chain,
// returns the chain through the allocator.
func (dt *directory) erase(path string, alloc *allocator) error {
	record, ok := dt.entries[path]
	if !ok {
		return errors.ErrNotFound
	}

	if record.Size > 0 {
		if err := alloc.freeTail(uint32(record.FirstBlock), 0); err != nil {
			return err
		}
	}

	delete(dt.entries, path)
	for i, p := range dt.order {
		if p == path {
			dt.order = append(dt.order[:i], dt.order[i+1:]...)
			break
		}
	}
	return nil
}

// rename moves the record at oldPath to newPath, updating its changed time.
func (dt *directory) rename(oldPath, newPath string, now time.Time) error {
	record, ok := dt.entries[oldPath]
	if !ok {
		return errors.ErrNotFound
	}
	if _, exists := dt.entries[newPath]; exists {
		return errors.ErrExists
	}
	if len(newPath)-1 > MaxNameLength {
		return errors.ErrNameTooLong
	}

	record.Name = newPath[1:]
	record.ChangedAt = now
	dt.entries[newPath] = record
	delete(dt.entries, oldPath)

	for i, p := range dt.order {
		if p == oldPath {
			dt.order[i] = newPath
			break
		}
	}
	return nil
}

// list returns every directory record, in stable insertion order.
func (dt *directory) list() []*Dirent {
	out := make([]*Dirent, 0, len(dt.order))
	for _, p := range dt.order {
		out = append(out, dt.entries[p])
	}
	return out
}

// direntCSVRow is the flattened, tagged shape gocsv marshals one directory
// record into, in the teacher's disks.DiskGeometry style.
type direntCSVRow struct {
	Name       string `csv:"name"`
	Size       uint64 `csv:"size"`
	FirstBlock uint16 `csv:"first_block"`
	UID        uint32 `csv:"uid"`
	GID        uint32 `csv:"gid"`
	Mode       uint32 `csv:"mode"`
	ModifiedAt int64  `csv:"mtime"`
}

// DumpDirectoryCSV renders the current directory table as CSV, one row per
// entry, for diagnostics.
func (dt *directory) DumpDirectoryCSV() (string, error) {
	rows := make([]direntCSVRow, 0, len(dt.order))
	for _, p := range dt.order {
		d := dt.entries[p]
		rows = append(rows, direntCSVRow{
			Name:       d.Name,
			Size:       d.Size,
			FirstBlock: d.FirstBlock,
			UID:        d.UID,
			GID:        d.GID,
			Mode:       d.Mode,
			ModifiedAt: d.ModifiedAt.Unix(),
		})
	}
	return gocsv.MarshalString(&rows)
}

// load clears the mapping and repopulates it from the ROOT region.
func (dt *directory) load(dev *BlockDevice) error {
	dt.entries = make(map[string]*Dirent)
	dt.order = dt.order[:0]

	for i := uint32(0); i < rootBlocks; i++ {
		buf := zeroBlock()
		if err := dev.ReadBlock(rootOffset+i, buf); err != nil {
			return errors.NewFromError(errors.ErrIO.Errno, err)
		}
		if buf[0] == 0 {
			continue
		}

		record := decodeDirent(buf[:direntRecordSize])
		path := canonicalPath(record.Name)
		dt.entries[path] = &record
		dt.order = append(dt.order, path)
	}
	return nil
}

// flush clears the ROOT region, then writes records back into the first
// min(len(order), NumDirEntries) slots in iteration order.
func (dt *directory) flush(dev *BlockDevice) error {
	blank := zeroBlock()
	for i := uint32(0); i < rootBlocks; i++ {
		if err := dev.WriteBlock(rootOffset+i, blank); err != nil {
			return errors.NewFromError(errors.ErrIO.Errno, err)
		}
	}

	n := len(dt.order)
	if n > NumDirEntries {
		n = NumDirEntries
	}
	for i := 0; i < n; i++ {
		record := dt.entries[dt.order[i]]
		buf := zeroBlock()
		copy(buf, record.encode())
		if err := dev.WriteBlock(rootOffset+uint32(i), buf); err != nil {
			return errors.NewFromError(errors.ErrIO.Errno, err)
		}
	}
	return nil
}
