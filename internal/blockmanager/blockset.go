package blockmanager

import (
	"github.com/gostonefire/bucketheap/internal/conf"
	"slices"
)

// blockSet - Set of block numbers kept in ascending order so the lowest number is always first
type blockSet struct {
	blocks []int64
}

// add - Adds blockIndex unless already present
func (S *blockSet) add(blockIndex int64) {
	i, found := slices.BinarySearch(S.blocks, blockIndex)
	if found {
		return
	}
	S.blocks = slices.Insert(S.blocks, i, blockIndex)
}

// remove - Removes blockIndex if present
func (S *blockSet) remove(blockIndex int64) {
	i, found := slices.BinarySearch(S.blocks, blockIndex)
	if !found {
		return
	}
	S.blocks = slices.Delete(S.blocks, i, i+1)
}

// contains - Returns true if blockIndex is in the set
func (S *blockSet) contains(blockIndex int64) bool {
	_, found := slices.BinarySearch(S.blocks, blockIndex)
	return found
}

// popMin - Removes and returns the lowest block number, or conf.NoBlock if the set is empty
func (S *blockSet) popMin() int64 {
	if len(S.blocks) == 0 {
		return conf.NoBlock
	}

	blockIndex := S.blocks[0]
	S.blocks = slices.Delete(S.blocks, 0, 1)

	return blockIndex
}

// len - Returns the number of block numbers in the set
func (S *blockSet) len() int {
	return len(S.blocks)
}

// values - Returns a copy of the block numbers in ascending order
func (S *blockSet) values() []int64 {
	return slices.Clone(S.blocks)
}
