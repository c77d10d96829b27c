package volume

import (
	"github.com/MGZeroes/bslab/errors"
	"github.com/noxer/bytewriter"
)

// fileIO translates (offset, length) on a given starting block into a walk
// of the FAT chain and a sequence of full-block reads/writes, handling
// head/tail partial blocks via a scratch buffer.
type fileIO struct {
	dev *BlockDevice
	fat *fat
}

// blocksForSize returns the number of blocks a chain holds for a file of
// the given size in bytes.
func blocksForSize(size uint64) uint32 {
	if size == 0 {
		return 0
	}
	return uint32((size + BlockSize - 1) / BlockSize)
}

// read fills buf (len(buf) == size) starting at byte offset offset in the
// chain rooted at firstBlock.
func (fio *fileIO) read(firstBlock uint32, offset int64, buf []byte) error {
	size := len(buf)
	if size == 0 {
		return nil
	}

	blockOffset := uint32(offset / BlockSize)
	byteOffset := int(offset % BlockSize)
	spanBlocks := (byteOffset + size + BlockSize - 1) / BlockSize

	chainBlocks, err := fio.walk(firstBlock, blockOffset, uint32(spanBlocks))
	if err != nil {
		return err
	}

	scratch := make([]byte, spanBlocks*BlockSize)
	for i, b := range chainBlocks {
		if err := fio.dev.ReadBlock(b, scratch[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}

	copy(buf, scratch[byteOffset:byteOffset+size])
	return nil
}

// write overlays payload onto the chain rooted at firstBlock at byte
// offset offset, preserving untouched bytes in partial head/tail blocks.
// The caller is responsible for ensuring the chain is already long enough
// to cover [offset, offset+len(payload)).
func (fio *fileIO) write(firstBlock uint32, offset int64, payload []byte) error {
	size := len(payload)
	if size == 0 {
		return nil
	}

	blockOffset := uint32(offset / BlockSize)
	byteOffset := int(offset % BlockSize)
	spanBlocks := (byteOffset + size + BlockSize - 1) / BlockSize

	chainBlocks, err := fio.walk(firstBlock, blockOffset, uint32(spanBlocks))
	if err != nil {
		return err
	}

	scratch := make([]byte, spanBlocks*BlockSize)
	for i, b := range chainBlocks {
		if err := fio.dev.ReadBlock(b, scratch[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}

	w := bytewriter.New(scratch)
	if _, err := w.Seek(int64(byteOffset), 0); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	if _, err := w.Write(payload); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}

	for i, b := range chainBlocks {
		if err := fio.dev.WriteBlock(b, scratch[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

// walk hops blockOffset steps from firstBlock, then collects the next
// spanBlocks chain entries starting there. Hitting is_last before reaching
// blockOffset is a file table overflow.
func (fio *fileIO) walk(firstBlock uint32, blockOffset uint32, spanBlocks uint32) ([]uint32, error) {
	current := firstBlock
	for i := uint32(0); i < blockOffset; i++ {
		if fio.fat.isLast(current) {
			return nil, errors.ErrFileTableOverflow
		}
		current = uint32(fio.fat.next(current))
	}

	chain := make([]uint32, 0, spanBlocks)
	for i := uint32(0); i < spanBlocks; i++ {
		chain = append(chain, current)
		if i+1 < spanBlocks {
			if fio.fat.isLast(current) {
				return nil, errors.ErrFileTableOverflow
			}
			current = uint32(fio.fat.next(current))
		}
	}
	return chain, nil
}
