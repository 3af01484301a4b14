package blockmanager

import (
	"encoding/binary"
	"fmt"
	"github.com/gostonefire/bucketheap/bherrors"
	"github.com/gostonefire/bucketheap/internal/conf"
	"github.com/gostonefire/bucketheap/internal/storage"
	"go.uber.org/zap"
	"os"
)

// BlockManager - Keeps track of which blocks in a heap are empty and which are partially empty.
// A block number is in at most one of the two lists, a full block is in none of them.
// The lists are persisted in a metadata file which is fully rewritten on every save.
type BlockManager struct {
	metaFile             *storage.File
	blockSize            int64
	emptyBlocks          blockSet
	partiallyEmptyBlocks blockSet
	logger               *zap.Logger
}

// NewBlockManager - Returns a pointer to a new BlockManager with empty free lists.
// It always creates a new metadata file (or truncates an existing one) and writes the initial state to it.
//   - metaFileName is the name of the metadata file
//   - blockSize is the block size of the heap, it is persisted for use when reopening the heap
//   - logger is used for debug logging, nil disables logging
func NewBlockManager(metaFileName string, blockSize int64, logger *zap.Logger) (blockManager *BlockManager, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	metaFile, err := storage.CreateFile(metaFileName)
	if err != nil {
		return
	}

	blockManager = &BlockManager{
		metaFile:  metaFile,
		blockSize: blockSize,
		logger:    logger,
	}

	err = blockManager.SaveToFile()
	if err != nil {
		_ = metaFile.Close()
		blockManager = nil
	}

	return
}

// NewBlockManagerFromFile - Returns a pointer to a BlockManager restored from an existing metadata file.
// A missing or empty metadata file is a configuration error reported as bherrors.MissingMetadata.
func NewBlockManagerFromFile(metaFileName string, logger *zap.Logger) (blockManager *BlockManager, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stat, err := os.Stat(metaFileName)
	if err != nil {
		err = fmt.Errorf("metadata file %s not found: %w", metaFileName, bherrors.MissingMetadata{})
		return
	}
	if stat.Size() == 0 {
		err = fmt.Errorf("metadata file %s is empty: %w", metaFileName, bherrors.MissingMetadata{})
		return
	}

	metaFile, err := storage.OpenFile(metaFileName)
	if err != nil {
		return
	}

	blockManager = &BlockManager{metaFile: metaFile, logger: logger}

	err = blockManager.load(stat.Size())
	if err != nil {
		_ = metaFile.Close()
		blockManager = nil
		return
	}

	logger.Debug("free lists restored",
		zap.String("file", metaFileName),
		zap.Int("empty", blockManager.emptyBlocks.len()),
		zap.Int("partiallyEmpty", blockManager.partiallyEmptyBlocks.len()))

	return
}

// ReadMetadata - Reads block size and free lists from a metadata file without keeping the file open.
// The file is never written to.
func ReadMetadata(metaFileName string) (blockSize int64, emptyBlocks, partiallyEmptyBlocks []int64, err error) {
	metaFile, err := storage.OpenFileReadOnly(metaFileName)
	if err != nil {
		err = fmt.Errorf("%s: %w", err, bherrors.MissingMetadata{})
		return
	}
	defer func() { _ = metaFile.Close() }()

	size, err := metaFile.Size()
	if err != nil {
		return
	}
	if size == 0 {
		err = fmt.Errorf("metadata file %s is empty: %w", metaFileName, bherrors.MissingMetadata{})
		return
	}

	buf, err := metaFile.ReadAt(0, size)
	if err != nil {
		return
	}

	var blockManager BlockManager
	err = blockManager.fromBytes(buf)
	if err != nil {
		err = fmt.Errorf("error while parsing metadata file %s: %s", metaFileName, err)
		return
	}

	return blockManager.blockSize, blockManager.emptyBlocks.values(), blockManager.partiallyEmptyBlocks.values(), nil
}

// BlockSize - Returns the block size of the managed heap
func (B *BlockManager) BlockSize() int64 {
	return B.blockSize
}

// EmptyBlocks - Returns the empty block numbers in ascending order
func (B *BlockManager) EmptyBlocks() []int64 {
	return B.emptyBlocks.values()
}

// PartiallyEmptyBlocks - Returns the partially empty block numbers in ascending order
func (B *BlockManager) PartiallyEmptyBlocks() []int64 {
	return B.partiallyEmptyBlocks.values()
}

// GetNextPartiallyEmptyBlock - Removes and returns the lowest partially empty block number, or conf.NoBlock if none
func (B *BlockManager) GetNextPartiallyEmptyBlock() int64 {
	return B.partiallyEmptyBlocks.popMin()
}

// GetNextEmptyBlock - Removes and returns the lowest empty block number, or conf.NoBlock if none
func (B *BlockManager) GetNextEmptyBlock() int64 {
	return B.emptyBlocks.popMin()
}

// UpdateAfterInsert - Puts blockIndex in the list matching its valid count after an insert
func (B *BlockManager) UpdateAfterInsert(blockIndex, validCount, blockingFactor int64) {
	B.update(blockIndex, validCount, blockingFactor)
}

// UpdateAfterDelete - Puts blockIndex in the list matching its valid count after a delete
func (B *BlockManager) UpdateAfterDelete(blockIndex, validCount, blockingFactor int64) {
	B.update(blockIndex, validCount, blockingFactor)
}

// ManageEmptyBlock - Marks blockIndex as empty
func (B *BlockManager) ManageEmptyBlock(blockIndex int64) {
	B.partiallyEmptyBlocks.remove(blockIndex)
	B.emptyBlocks.add(blockIndex)
}

// ManagePartiallyEmptyBlock - Marks blockIndex as partially empty
func (B *BlockManager) ManagePartiallyEmptyBlock(blockIndex int64) {
	B.emptyBlocks.remove(blockIndex)
	B.partiallyEmptyBlocks.add(blockIndex)
}

// update - Removes blockIndex from both lists and adds it to the one matching validCount, if any
func (B *BlockManager) update(blockIndex, validCount, blockingFactor int64) {
	B.emptyBlocks.remove(blockIndex)
	B.partiallyEmptyBlocks.remove(blockIndex)

	switch {
	case validCount == 0:
		B.emptyBlocks.add(blockIndex)
	case validCount < blockingFactor:
		B.partiallyEmptyBlocks.add(blockIndex)
	}
}

// SaveToFile - Rewrites the metadata file with the current free lists
func (B *BlockManager) SaveToFile() (err error) {
	buf := B.toBytes()

	err = B.metaFile.Truncate(0)
	if err != nil {
		return
	}

	err = B.metaFile.WriteAt(0, buf)
	if err != nil {
		err = fmt.Errorf("error while writing free lists to metadata file: %s", err)
	}

	return
}

// Close - Saves the free lists and closes the metadata file
func (B *BlockManager) Close() (err error) {
	if B.metaFile == nil {
		return
	}

	err = B.SaveToFile()
	if err != nil {
		B.logger.Error("unable to save free lists", zap.String("file", B.metaFile.Name()), zap.Error(err))
	}

	closeErr := B.metaFile.Close()
	if err == nil {
		err = closeErr
	}
	B.metaFile = nil

	return
}

// load - Reads the free lists from the metadata file
func (B *BlockManager) load(size int64) (err error) {
	buf, err := B.metaFile.ReadAt(0, size)
	if err != nil {
		return
	}

	err = B.fromBytes(buf)
	if err != nil {
		err = fmt.Errorf("error while parsing metadata file %s: %s", B.metaFile.Name(), err)
	}

	return
}

// toBytes - Converts state to the metadata layout: block size, empty count, empty block numbers,
// partially empty count and partially empty block numbers, all big endian int32.
func (B *BlockManager) toBytes() (buf []byte) {
	empty := B.emptyBlocks.values()
	partial := B.partiallyEmptyBlocks.values()

	buf = make([]byte, conf.Int32Length*int64(3+len(empty)+len(partial)))

	binary.BigEndian.PutUint32(buf[conf.MetaBlockSizeOffset:], uint32(B.blockSize))
	offset := conf.MetaBlockSizeOffset + conf.Int32Length
	for _, list := range [][]int64{empty, partial} {
		binary.BigEndian.PutUint32(buf[offset:], uint32(len(list)))
		offset += conf.Int32Length
		for _, blockIndex := range list {
			binary.BigEndian.PutUint32(buf[offset:], uint32(blockIndex))
			offset += conf.Int32Length
		}
	}

	return
}

// fromBytes - Restores state from the metadata layout
func (B *BlockManager) fromBytes(buf []byte) (err error) {
	readInt := func(offset int64) (int64, error) {
		if offset+conf.Int32Length > int64(len(buf)) {
			return 0, fmt.Errorf("metadata truncated at offset %d", offset)
		}
		return int64(int32(binary.BigEndian.Uint32(buf[offset:]))), nil
	}

	B.blockSize, err = readInt(conf.MetaBlockSizeOffset)
	if err != nil {
		return
	}

	offset := conf.MetaBlockSizeOffset + conf.Int32Length
	lists := []*blockSet{&B.emptyBlocks, &B.partiallyEmptyBlocks}
	var count, blockIndex int64
	for _, list := range lists {
		count, err = readInt(offset)
		if err != nil {
			return
		}
		if count < 0 {
			err = fmt.Errorf("negative block count %d at offset %d", count, offset)
			return
		}
		offset += conf.Int32Length

		for i := int64(0); i < count; i++ {
			blockIndex, err = readInt(offset)
			if err != nil {
				return
			}
			list.add(blockIndex)
			offset += conf.Int32Length
		}
	}

	return
}
