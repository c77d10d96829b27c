package volume

import "github.com/MGZeroes/bslab/errors"

// allocator converts "grow chain by N blocks" / "shrink chain to N blocks"
// requests into DMAP/FAT edits. It owns no state of its own beyond
// references to the dmap, fat and superblock it mutates.
type allocator struct {
	dmap *dmap
	fat  *fat
	sb   *superblock
}

// findFreeBlock performs the deterministic lowest-index linear scan for a
// free data block mandated by the spec's tie-break rule.
func (a *allocator) findFreeBlock() (uint32, error) {
	for i := uint32(0); i < NumDataBlocks; i++ {
		if a.dmap.isFree(i) {
			return i, nil
		}
	}
	return 0, errors.ErrNoSpace
}

func (a *allocator) take(idx uint32) error {
	if err := a.dmap.markUsed(idx); err != nil {
		return err
	}
	a.sb.numFreeBlocks--
	return nil
}

func (a *allocator) release(idx uint32) error {
	if err := a.dmap.markFree(idx); err != nil {
		return err
	}
	a.sb.numFreeBlocks++
	return nil
}

// allocate creates a new chain of wantBlocks blocks when existingHead < 0,
// or extends the chain rooted at existingHead by wantBlocks additional
// blocks. It returns the chain's head block index.
func (a *allocator) allocate(existingHead int32, wantBlocks uint32) (uint32, error) {
	if wantBlocks == 0 {
		if existingHead >= 0 {
			return uint32(existingHead), nil
		}
		return 0, errors.NewWithMessage(errors.ErrBadArgument.Errno, "cannot create a zero-block chain")
	}

	if uint32(a.sb.numFreeBlocks) < wantBlocks {
		return 0, errors.ErrNoSpace
	}

	var head uint32
	var tail uint32

	if existingHead < 0 {
		first, err := a.findFreeBlock()
		if err != nil {
			return 0, err
		}
		if err := a.take(first); err != nil {
			return 0, err
		}
		a.fat.setLast(first, true)
		head = first
		tail = first
		wantBlocks--
	} else {
		head = uint32(existingHead)
		t, err := a.tailOf(head)
		if err != nil {
			return 0, err
		}
		tail = t
	}

	for i := uint32(0); i < wantBlocks; i++ {
		next, err := a.findFreeBlock()
		if err != nil {
			return 0, err
		}
		if err := a.take(next); err != nil {
			return 0, err
		}

		a.fat.setLast(tail, false)
		a.fat.setNext(tail, uint16(next))
		a.fat.setLast(next, true)
		tail = next
	}

	return head, nil
}

// tailOf walks the FAT from head until it finds the entry with isLast set,
// and returns that entry's block index. It bounds the walk at NumDataBlocks
// hops to detect a looping or corrupted chain.
func (a *allocator) tailOf(head uint32) (uint32, error) {
	current := head
	for i := 0; i < NumDataBlocks+1; i++ {
		if a.fat.isLast(current) {
			return current, nil
		}
		current = uint32(a.fat.next(current))
	}
	return 0, errors.ErrIO
}

// chainOf collects the full list of block indices in the chain rooted at
// head, in order. It bounds the walk at NumDataBlocks hops to detect a
// looping or corrupted chain.
func (a *allocator) chainOf(head uint32) ([]uint32, error) {
	chain := make([]uint32, 0, 16)
	current := head
	for i := 0; i < NumDataBlocks+1; i++ {
		chain = append(chain, current)
		if a.fat.isLast(current) {
			return chain, nil
		}
		current = uint32(a.fat.next(current))
	}
	return nil, errors.ErrIO
}

// freeTail keeps the first keepBlocks blocks of the chain rooted at head
// and returns the rest to the DMAP. If keepBlocks is 0, the entire chain
// is freed and the caller must clear its first-block reference.
func (a *allocator) freeTail(head uint32, keepBlocks uint32) error {
	chain, err := a.chainOf(head)
	if err != nil {
		return err
	}

	for i, block := range chain {
		pos := uint32(i)
		if pos >= keepBlocks {
			if err := a.release(block); err != nil {
				return err
			}
		}
		if pos+1 == keepBlocks {
			a.fat.setLast(block, true)
		}
	}
	return nil
}
