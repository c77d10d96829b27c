package volume

import (
	"encoding/binary"

	"github.com/MGZeroes/bslab/errors"
)

// fatEntrySize is the on-disk size of one FAT entry: a 16-bit next-block
// index plus a one-byte is-last flag, padded to the entry's natural
// 3-byte-logical/4-byte-physical alignment so entriesPerBlock divides
// evenly into a block.
const fatEntrySize = 4
const fatEntriesPerBlock = BlockSize / fatEntrySize

// fatEntry is one (next, is_last) pair, meaningful only for allocated
// blocks.
type fatEntry struct {
	next   uint16
	isLast bool
}

// fat is the file allocation table: one entry per data block, forming
// singly linked chains terminated by isLast.
type fat struct {
	entries []fatEntry
}

func newFormattedFAT() fat {
	return fat{entries: make([]fatEntry, NumDataBlocks)}
}

func (f *fat) next(idx uint32) uint16 {
	return f.entries[idx].next
}

func (f *fat) setNext(idx uint32, n uint16) {
	f.entries[idx].next = n
}

func (f *fat) isLast(idx uint32) bool {
	return f.entries[idx].isLast
}

func (f *fat) setLast(idx uint32, flag bool) {
	f.entries[idx].isLast = flag
}

func (f *fat) load(dev *BlockDevice) error {
	raw, err := dev.ReadBlocks(fatOffset, fatBlocks)
	if err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}

	entries := make([]fatEntry, NumDataBlocks)
	for i := 0; i < NumDataBlocks; i++ {
		off := i * fatEntrySize
		entries[i] = fatEntry{
			next:   binary.LittleEndian.Uint16(raw[off : off+2]),
			isLast: raw[off+2] != 0,
		}
	}
	f.entries = entries
	return nil
}

func (f *fat) flush(dev *BlockDevice) error {
	raw := make([]byte, fatBlocks*BlockSize)
	for i, e := range f.entries {
		off := i * fatEntrySize
		binary.LittleEndian.PutUint16(raw[off:off+2], e.next)
		if e.isLast {
			raw[off+2] = 1
		}
	}
	return dev.WriteBlocks(fatOffset, raw)
}
