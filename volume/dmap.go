package volume

import (
	"github.com/MGZeroes/bslab/errors"
	"github.com/boljen/go-bitmap"
)

// dmapEntriesPerBlock is how many one-byte-per-block DMAP entries fit in a
// single on-disk block.
const dmapEntriesPerBlock = BlockSize

// dmap is the free-block map: one bit per data block, true meaning free.
// It occupies dmapBlocks contiguous blocks right after the superblock.
type dmap struct {
	bits bitmap.Bitmap
}

func newFormattedDMap() dmap {
	bm := bitmap.New(NumDataBlocks)
	for i := 0; i < NumDataBlocks; i++ {
		bm.Set(i, true)
	}
	return dmap{bits: bm}
}

// isFree reports whether data block idx is currently unallocated.
func (m *dmap) isFree(idx uint32) bool {
	return m.bits.Get(int(idx))
}

// markUsed flips a free block to used. It requires the block was
// previously free.
func (m *dmap) markUsed(idx uint32) error {
	if !m.bits.Get(int(idx)) {
		return errors.NewWithMessage(errors.ErrIO.Errno, "block already in use")
	}
	m.bits.Set(int(idx), false)
	return nil
}

// markFree flips a used block to free. It requires the block was
// previously used.
func (m *dmap) markFree(idx uint32) error {
	if m.bits.Get(int(idx)) {
		return errors.NewWithMessage(errors.ErrIO.Errno, "block already free")
	}
	m.bits.Set(int(idx), true)
	return nil
}

// countFree returns the number of free entries in the map.
func (m *dmap) countFree() uint32 {
	var n uint32
	for i := 0; i < NumDataBlocks; i++ {
		if m.bits.Get(i) {
			n++
		}
	}
	return n
}

// load reads the dmapBlocks region starting at dmapOffset into m.
func (m *dmap) load(dev *BlockDevice) error {
	raw, err := dev.ReadBlocks(dmapOffset, dmapBlocks)
	if err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}

	bm := bitmap.New(NumDataBlocks)
	for i := 0; i < NumDataBlocks; i++ {
		bm.Set(i, raw[i] != 0)
	}
	m.bits = bm
	return nil
}

// flush writes the dmap back to its region.
func (m *dmap) flush(dev *BlockDevice) error {
	raw := make([]byte, dmapBlocks*BlockSize)
	for i := 0; i < NumDataBlocks; i++ {
		if m.bits.Get(i) {
			raw[i] = 1
		}
	}
	return dev.WriteBlocks(dmapOffset, raw)
}
