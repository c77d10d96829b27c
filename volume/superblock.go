package volume

import (
	"encoding/binary"

	"github.com/MGZeroes/bslab/errors"
)

// superblockRecordSize is the number of meaningful bytes at the head of
// block 0. The rest of the block is zero padding.
const superblockRecordSize = 7 * 4

// superblock holds the global layout constants and the free-block counter.
// It lives in block 0 of the container.
type superblock struct {
	blockSize     uint32
	numBlocks     uint32
	numFreeBlocks uint32
	dmapOffset    uint32
	fatOffset     uint32
	rootOffset    uint32
	fileOffset    uint32
}

// newFormattedSuperblock returns a superblock with canonical layout
// constants and a full complement of free data blocks.
func newFormattedSuperblock() superblock {
	return superblock{
		blockSize:     BlockSize,
		numBlocks:     TotalBlocks,
		numFreeBlocks: NumDataBlocks,
		dmapOffset:    dmapOffset,
		fatOffset:     fatOffset,
		rootOffset:    rootOffset,
		fileOffset:    dataOffset,
	}
}

func (sb *superblock) encode() []byte {
	buf := zeroBlock()
	binary.LittleEndian.PutUint32(buf[0:4], sb.blockSize)
	binary.LittleEndian.PutUint32(buf[4:8], sb.numBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], sb.numFreeBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.dmapOffset)
	binary.LittleEndian.PutUint32(buf[16:20], sb.fatOffset)
	binary.LittleEndian.PutUint32(buf[20:24], sb.rootOffset)
	binary.LittleEndian.PutUint32(buf[24:28], sb.fileOffset)
	return buf
}

func decodeSuperblock(buf []byte) superblock {
	return superblock{
		blockSize:     binary.LittleEndian.Uint32(buf[0:4]),
		numBlocks:     binary.LittleEndian.Uint32(buf[4:8]),
		numFreeBlocks: binary.LittleEndian.Uint32(buf[8:12]),
		dmapOffset:    binary.LittleEndian.Uint32(buf[12:16]),
		fatOffset:     binary.LittleEndian.Uint32(buf[16:20]),
		rootOffset:    binary.LittleEndian.Uint32(buf[20:24]),
		fileOffset:    binary.LittleEndian.Uint32(buf[24:28]),
	}
}

// load reads block 0 from the device and populates sb.
func (sb *superblock) load(dev *BlockDevice) error {
	buf := zeroBlock()
	if err := dev.ReadBlock(superblockOffset, buf); err != nil {
		return errors.NewFromError(errors.ErrIO.Errno, err)
	}
	*sb = decodeSuperblock(buf)
	return nil
}

// flush writes the superblock back to block 0.
func (sb *superblock) flush(dev *BlockDevice) error {
	return dev.WriteBlock(superblockOffset, sb.encode())
}
