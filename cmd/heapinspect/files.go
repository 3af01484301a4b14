package main

import (
	"fmt"

	"github.com/gostonefire/bucketheap/internal/blockmanager"
	"github.com/gostonefire/bucketheap/internal/heap"
	"github.com/gostonefire/bucketheap/internal/storage"
)

// heapFiles - Read only view of the data and metadata files of one heap. Nothing is ever written, so
// inspecting a heap does not change its free lists.
type heapFiles struct {
	name                 string
	blockSize            int64
	totalBlocks          int64
	emptyBlocks          []int64
	partiallyEmptyBlocks []int64
	data                 *storage.File
}

// openHeapFiles - Opens the files of heap name. An empty data file is a heap without blocks.
func openHeapFiles(name string) (heapFile *heapFiles, err error) {
	blockSize, emptyBlocks, partiallyEmptyBlocks, err := blockmanager.ReadMetadata(storage.GetMetaFileName(name))
	if err != nil {
		return
	}
	if blockSize <= 0 {
		err = fmt.Errorf("metadata of %s holds invalid block size %d", name, blockSize)
		return
	}

	data, err := storage.OpenFileReadOnly(storage.GetDataFileName(name))
	if err != nil {
		return
	}

	size, err := data.Size()
	if err != nil {
		_ = data.Close()
		return
	}
	if size%blockSize != 0 {
		_ = data.Close()
		err = fmt.Errorf("data file size %d of %s is not a multiple of block size %d", size, name, blockSize)
		return
	}

	heapFile = &heapFiles{
		name:                 name,
		blockSize:            blockSize,
		totalBlocks:          size / blockSize,
		emptyBlocks:          emptyBlocks,
		partiallyEmptyBlocks: partiallyEmptyBlocks,
		data:                 data,
	}

	return
}

// readBlock - Reads block blockNo into b
func (H *heapFiles) readBlock(blockNo int64, b heap.Serializable) (err error) {
	if blockNo < 0 || blockNo >= H.totalBlocks {
		return fmt.Errorf("block %d outside of %s with %d blocks", blockNo, H.name, H.totalBlocks)
	}

	buf, err := H.data.ReadAt(blockNo*H.blockSize, H.blockSize)
	if err != nil {
		return
	}

	return b.FromBytes(buf)
}

func (H *heapFiles) close() error {
	return H.data.Close()
}
