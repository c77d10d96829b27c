// Package volume implements the on-disk volume layout and block-chain
// allocation engine: the superblock, free-block map, file allocation
// table, and directory table layered on top of an abstract fixed-block
// backing store.
package volume

import (
	"io"
	"os"

	"github.com/MGZeroes/bslab/errors"
	"github.com/xaionaro-go/bytesextra"
)

// BlockSize is B, the fixed size of a block in bytes.
const BlockSize = 512

// NumDataBlocks is N_DATA, the number of data blocks in the volume.
const NumDataBlocks = 65536

// NumDirEntries is N_DIR, the maximum number of directory entries.
const NumDirEntries = 64

// NumOpenFiles is N_OPEN, the maximum number of simultaneously open files.
const NumOpenFiles = 64

// MaxNameLength is L_NAME, the maximum file name length, excluding the
// leading '/'.
const MaxNameLength = 255

// Region offsets and sizes, in blocks.
const (
	superblockOffset = 0
	superblockBlocks = 1

	dmapOffset = 1
	dmapBlocks = 128

	fatOffset = 129
	fatBlocks = 512

	rootOffset = 641
	rootBlocks = 64

	dataOffset = 705
	dataBlocks = NumDataBlocks
)

// TotalBlocks is the total size of a formatted container, in blocks.
const TotalBlocks = dataOffset + dataBlocks

// BlockDevice is a fixed-size-block abstraction around an io.ReadWriteSeeker.
// It is the only component that talks to the actual backing container,
// be it a host file or an in-memory buffer.
type BlockDevice struct {
	stream io.ReadWriteSeeker
}

// OpenContainerFile opens (or creates, if absent) a host file to back a
// BlockDevice. The caller is responsible for calling Close on the returned
// device when done.
func OpenContainerFile(path string) (*BlockDevice, bool, error) {
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}

	flags := os.O_RDWR | os.O_CREATE
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, false, err
	}

	return &BlockDevice{stream: file}, existed, nil
}

// NewMemoryBlockDevice creates a BlockDevice backed entirely by process
// memory, formatted to the size of a full container (TotalBlocks blocks).
// It never "exists" on the host, so it always needs formatting.
func NewMemoryBlockDevice() *BlockDevice {
	buf := make([]byte, TotalBlocks*BlockSize)
	return &BlockDevice{stream: bytesextra.NewReadWriteSeeker(buf)}
}

// Close releases the backing container, if it supports it.
func (d *BlockDevice) Close() error {
	if closer, ok := d.stream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReadBlock fills buf (which must be exactly BlockSize bytes) with the
// contents of block idx.
func (d *BlockDevice) ReadBlock(idx uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return errors.NewWithMessage(errors.ErrBadArgument.Errno, "buffer must be one block")
	}
	if _, err := d.stream.Seek(int64(idx)*BlockSize, io.SeekStart); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	return nil
}

// WriteBlock writes buf (which must be exactly BlockSize bytes) to block idx.
func (d *BlockDevice) WriteBlock(idx uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return errors.NewWithMessage(errors.ErrBadArgument.Errno, "buffer must be one block")
	}
	if _, err := d.stream.Seek(int64(idx)*BlockSize, io.SeekStart); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	if _, err := d.stream.Write(buf); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	return nil
}

// ReadBlocks reads count consecutive blocks starting at idx into a single
// count*BlockSize buffer.
func (d *BlockDevice) ReadBlocks(idx uint32, count int) ([]byte, error) {
	buf := make([]byte, count*BlockSize)
	if _, err := d.stream.Seek(int64(idx)*BlockSize, io.SeekStart); err != nil {
		return nil, errors.NewFromError(errors.ErrIO.Errno, err)
	}
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return nil, errors.NewFromError(errors.ErrIO.Errno, err)
	}
	return buf, nil
}

// WriteBlocks writes a buffer whose length is a multiple of BlockSize
// starting at block idx.
func (d *BlockDevice) WriteBlocks(idx uint32, buf []byte) error {
	if len(buf)%BlockSize != 0 {
		return errors.NewWithMessage(errors.ErrBadArgument.Errno, "buffer must be a multiple of the block size")
	}
	if _, err := d.stream.Seek(int64(idx)*BlockSize, io.SeekStart); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	if _, err := d.stream.Write(buf); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	return nil
}

// zeroBlock returns a fresh all-zero block-sized buffer.
func zeroBlock() []byte {
	return make([]byte, BlockSize)
}
