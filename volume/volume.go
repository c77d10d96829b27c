package volume

import (
	"log"
	"time"

	"github.com/MGZeroes/bslab/errors"
	"github.com/hashicorp/go-multierror"
)

// ModeRegular and ModeDirectory are the S_IFREG and S_IFDIR mode bits this
// volume understands; it only
// ever stores regular files (see spec Non-goals), but getattr on the
// synthetic root reports a directory.
const (
	ModeRegular   = 0o100000
	ModeDirectory = 0o040000
)

// Attr is the subset of POSIX stat(2) fields the external interface
// reports for a path.
type Attr struct {
	Mode       uint32
	Size       uint64
	UID        uint32
	GID        uint32
	AccessedAt time.Time
	ModifiedAt time.Time
	Nlink      uint32
}

// Volume is one mounted instantiation of the file system, owning the
// superblock, DMAP, FAT, directory table, and open-file registry for the
// lifetime of the mount. It is not safe for concurrent use; the spec
// mandates a single-threaded cooperative operation stream.
type Volume struct {
	dev *BlockDevice

	sb   superblock
	dm   dmap
	ft   fat
	dir  directory
	open openFiles

	alloc allocator
	io    fileIO

	now    func() time.Time
	logger *log.Logger
}

// Handle is what Open() hands back to the caller: the path and the file's
// first block at the time of the open. Read and Write take a path and do
// their own directory lookup; they do not accept a Handle.
type Handle struct {
	Path       string
	FirstBlock uint32
}

func newVolume(dev *BlockDevice, logger *log.Logger) *Volume {
	v := &Volume{
		dev:    dev,
		open:   newOpenFiles(),
		now:    time.Now,
		logger: logger,
	}
	v.alloc = allocator{dmap: &v.dm, fat: &v.ft, sb: &v.sb}
	v.io = fileIO{dev: dev, fat: &v.ft}
	return v
}

// logf logs via v.logger if one was given at Mount; it is silent otherwise.
func (v *Volume) logf(format string, args ...any) {
	if v.logger != nil {
		v.logger.Printf(format, args...)
	}
}

// Mount opens a volume on dev. If existed is false, the device is treated
// as unformatted and is formatted in place; otherwise its metadata regions
// are loaded from disk. logger is optional; pass nil to mount silently.
func Mount(dev *BlockDevice, existed bool, logger *log.Logger) (*Volume, error) {
	v := newVolume(dev, logger)

	if existed {
		v.logf("loading existing volume metadata")
		if err := v.loadAll(); err != nil {
			return nil, err
		}
		return v, nil
	}

	v.logf("formatting new volume")
	if err := v.format(); err != nil {
		return nil, err
	}
	return v, nil
}

// format writes a freshly initialized superblock, zeroed DMAP and FAT
// regions, and an empty directory region, then forces the container to
// its full length by writing a zeroed block at the last data-area index.
func (v *Volume) format() error {
	v.sb = newFormattedSuperblock()
	v.dm = newFormattedDMap()
	v.ft = newFormattedFAT()
	v.dir = newEmptyDirectory()

	if err := v.flushAll(); err != nil {
		return err
	}

	lastBlock := uint32(dataOffset + dataBlocks - 1)
	if err := v.dev.WriteBlock(lastBlock, zeroBlock()); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	v.logf("formatted volume: %d blocks, %d free", TotalBlocks, v.sb.numFreeBlocks)
	return nil
}

// Close releases the backing container.
func (v *Volume) Close() error {
	return v.dev.Close()
}

// loadAll refreshes every in-memory metadata region from disk. Every file
// operation, mutating or read-only, loads at entry; Open, Release and
// Getattr of the synthetic root do not.
func (v *Volume) loadAll() error {
	var result *multierror.Error
	if err := v.sb.load(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.dm.load(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.ft.load(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.dir.load(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// flushAll writes every in-memory metadata region back to disk. Only
// mutating operations call this; read-only operations must not.
func (v *Volume) flushAll() error {
	var result *multierror.Error
	if err := v.sb.flush(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.dm.flush(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.ft.flush(v.dev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.dir.flush(v.dev); err != nil {
		result = multierror.Append(result, err)
	}

	err := result.ErrorOrNil()
	if err != nil {
		v.logf("flush failed: %s", err)
	} else {
		v.logf("flushed metadata: %d free blocks", v.sb.numFreeBlocks)
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////
// Mutating operations: load, mutate, flush.

// Create makes a new, empty regular file at path.
func (v *Volume) Create(path string, mode, uid, gid uint32) error {
	if err := v.loadAll(); err != nil {
		return err
	}

	now := v.now()
	record := Dirent{
		Size:       0,
		FirstBlock: 0,
		UID:        uid,
		GID:        gid,
		Mode:       mode | ModeRegular,
		AccessedAt: now,
		ModifiedAt: now,
		ChangedAt:  now,
	}
	if err := v.dir.insert(path, record); err != nil {
		return err
	}

	return v.flushAll()
}

// Unlink deletes the file at path, freeing its block chain.
func (v *Volume) Unlink(path string) error {
	if err := v.loadAll(); err != nil {
		return err
	}
	if err := v.dir.erase(path, &v.alloc); err != nil {
		return err
	}
	return v.flushAll()
}

// Rename moves the file at oldPath to newPath.
func (v *Volume) Rename(oldPath, newPath string) error {
	if err := v.loadAll(); err != nil {
		return err
	}
	if err := v.dir.rename(oldPath, newPath, v.now()); err != nil {
		return err
	}
	return v.flushAll()
}

// Chmod changes the mode bits of the file at path.
func (v *Volume) Chmod(path string, mode uint32) error {
	if err := v.loadAll(); err != nil {
		return err
	}
	record, ok := v.dir.lookup(path)
	if !ok {
		return errors.ErrNotFound
	}
	record.Mode = (record.Mode &^ 0o777) | (mode & 0o777)
	record.ChangedAt = v.now()
	return v.flushAll()
}

// Chown changes the owning uid/gid of the file at path.
func (v *Volume) Chown(path string, uid, gid uint32) error {
	if err := v.loadAll(); err != nil {
		return err
	}
	record, ok := v.dir.lookup(path)
	if !ok {
		return errors.ErrNotFound
	}
	record.UID = uid
	record.GID = gid
	record.ChangedAt = v.now()
	return v.flushAll()
}

// Truncate resizes the file at path to exactly newSize bytes, allocating
// or freeing blocks as needed and zero-filling any newly extended region.
func (v *Volume) Truncate(path string, newSize uint64) error {
	if err := v.loadAll(); err != nil {
		return err
	}
	record, ok := v.dir.lookup(path)
	if !ok {
		return errors.ErrNotFound
	}

	// Clamp at the same N_DATA*B capacity boundary as Write, rather than
	// let resize attempt to allocate more blocks than the volume has.
	if newSize > maxFileBytes {
		newSize = maxFileBytes
	}

	if err := v.resize(record, newSize); err != nil {
		return err
	}
	record.ModifiedAt = v.now()
	record.ChangedAt = v.now()

	return v.flushAll()
}

// resize grows or shrinks record's block chain to match newSize, zeroing
// any newly extended bytes, and updates record.Size/record.FirstBlock.
func (v *Volume) resize(record *Dirent, newSize uint64) error {
	oldSize := record.Size
	currentBlocks := blocksForSize(oldSize)
	wantBlocks := blocksForSize(newSize)

	switch {
	case wantBlocks > currentBlocks:
		if oldSize == 0 {
			head, err := v.alloc.allocate(-1, wantBlocks)
			if err != nil {
				return err
			}
			record.FirstBlock = uint16(head)
		} else {
			if _, err := v.alloc.allocate(int32(record.FirstBlock), wantBlocks-currentBlocks); err != nil {
				return err
			}
		}

	case wantBlocks < currentBlocks:
		if err := v.alloc.freeTail(uint32(record.FirstBlock), wantBlocks); err != nil {
			return err
		}
		if wantBlocks == 0 {
			record.FirstBlock = 0
		}
	}

	if newSize > oldSize {
		gap := newSize - oldSize
		zeros := make([]byte, gap)
		if err := v.io.write(uint32(record.FirstBlock), int64(oldSize), zeros); err != nil {
			return err
		}
	}

	record.Size = newSize
	return nil
}

// maxFileBytes is the largest offset the data area can address: N_DATA * B.
const maxFileBytes = uint64(NumDataBlocks) * BlockSize

// Write overlays data at offset into the file at path, growing it if
// necessary, and returns the number of bytes actually written. Writes that
// would grow the file past N_DATA blocks are clamped.
func (v *Volume) Write(path string, offset int64, data []byte) (int, error) {
	if offset < 0 {
		return 0, errors.ErrBadArgument
	}

	if err := v.loadAll(); err != nil {
		return 0, err
	}
	record, ok := v.dir.lookup(path)
	if !ok {
		return 0, errors.ErrNotFound
	}

	writeLen := len(data)
	if uint64(offset) >= maxFileBytes {
		writeLen = 0
	} else if uint64(offset)+uint64(writeLen) > maxFileBytes {
		writeLen = int(maxFileBytes - uint64(offset))
	}

	if writeLen == 0 {
		// Nothing fits at this offset; still run the flush cycle so the
		// operation's load/flush contract holds, but touch no metadata.
		if err := v.flushAll(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	payload := data[:writeLen]

	neededSize := uint64(offset) + uint64(writeLen)
	currentBlocks := blocksForSize(record.Size)
	neededBlocks := blocksForSize(neededSize)

	if neededBlocks > currentBlocks {
		if record.Size == 0 {
			head, err := v.alloc.allocate(-1, neededBlocks)
			if err != nil {
				return 0, err
			}
			record.FirstBlock = uint16(head)
		} else {
			if _, err := v.alloc.allocate(int32(record.FirstBlock), neededBlocks-currentBlocks); err != nil {
				return 0, err
			}
		}
	}

	if writeLen > 0 {
		if err := v.io.write(uint32(record.FirstBlock), offset, payload); err != nil {
			return 0, err
		}
	}

	if neededSize > record.Size {
		record.Size = neededSize
	}
	record.ModifiedAt = v.now()
	record.ChangedAt = v.now()

	if err := v.flushAll(); err != nil {
		return 0, err
	}
	return writeLen, nil
}

////////////////////////////////////////////////////////////////////////////////
// Read-only operations: load, but never flush.

// Read fills buf starting at offset in the file at path and returns the
// number of bytes actually read. Reading at or past the end of the file
// returns 0 bytes, not an error.
func (v *Volume) Read(path string, offset int64, buf []byte) (int, error) {
	if offset < 0 {
		return 0, errors.ErrBadArgument
	}
	if err := v.loadAll(); err != nil {
		return 0, err
	}
	record, ok := v.dir.lookup(path)
	if !ok {
		return 0, errors.ErrNotFound
	}

	if uint64(offset) >= record.Size {
		return 0, nil
	}

	readLen := len(buf)
	if remaining := record.Size - uint64(offset); uint64(readLen) > remaining {
		readLen = int(remaining)
	}
	if readLen == 0 {
		return 0, nil
	}

	if err := v.io.read(uint32(record.FirstBlock), offset, buf[:readLen]); err != nil {
		return 0, err
	}
	return readLen, nil
}

// Getattr returns POSIX-style attributes for path. The root directory is
// synthetic and always exists.
func (v *Volume) Getattr(path string) (Attr, error) {
	if path == "/" {
		return Attr{Mode: ModeDirectory | 0o755, Nlink: 2}, nil
	}

	if err := v.loadAll(); err != nil {
		return Attr{}, err
	}
	record, ok := v.dir.lookup(path)
	if !ok {
		return Attr{}, errors.ErrNotFound
	}

	return Attr{
		Mode:       record.Mode,
		Size:       record.Size,
		UID:        record.UID,
		GID:        record.GID,
		AccessedAt: record.AccessedAt,
		ModifiedAt: record.ModifiedAt,
		Nlink:      1,
	}, nil
}

// Readdir lists the names in the root directory, including "." and "..".
// The file system has a single flat namespace, so path must be "/".
func (v *Volume) Readdir(path string) ([]string, error) {
	if path != "/" {
		return nil, errors.ErrNotFound
	}

	if err := v.loadAll(); err != nil {
		return nil, err
	}

	names := []string{".", ".."}
	for _, record := range v.dir.list() {
		names = append(names, record.Name)
	}
	return names, nil
}

////////////////////////////////////////////////////////////////////////////////
// Open-file registry: in-memory only, no metadata load/flush.

// Open registers path as open and returns a Handle carrying its first
// block. It fails if the path is already open or
// the registry is at capacity.
func (v *Volume) Open(path string) (Handle, error) {
	record, ok := v.dir.lookup(path)
	if !ok {
		return Handle{}, errors.ErrNotFound
	}
	if err := v.open.open(path); err != nil {
		return Handle{}, err
	}
	return Handle{Path: path, FirstBlock: uint32(record.FirstBlock)}, nil
}

// Release closes a previously opened path.
func (v *Volume) Release(path string) {
	v.open.release(path)
}

// FSStat reports aggregate information about the volume, for statfs-style
// reporting. It is read-only.
type FSStat struct {
	BlockSize     uint32
	TotalBlocks   uint32
	FreeBlocks    uint32
	MaxNameLength int
	MaxFiles      int
	UsedFiles     int
}

// Stat returns aggregate volume information.
func (v *Volume) Stat() (FSStat, error) {
	if err := v.loadAll(); err != nil {
		return FSStat{}, err
	}
	return FSStat{
		BlockSize:     BlockSize,
		TotalBlocks:   TotalBlocks,
		FreeBlocks:    v.sb.numFreeBlocks,
		MaxNameLength: MaxNameLength,
		MaxFiles:      NumDirEntries,
		UsedFiles:     len(v.dir.order),
	}, nil
}

// DumpDirectoryCSV renders the current directory table as CSV, for the CLI's
// --dump-dir diagnostic flag.
func (v *Volume) DumpDirectoryCSV() (string, error) {
	if err := v.loadAll(); err != nil {
		return "", err
	}
	return v.dir.DumpDirectoryCSV()
}
