package heap

import (
	"fmt"
	"github.com/gostonefire/bucketheap/bherrors"
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/block"
	"github.com/gostonefire/bucketheap/internal/blockmanager"
	"github.com/gostonefire/bucketheap/internal/conf"
	"github.com/gostonefire/bucketheap/internal/logging"
	"github.com/gostonefire/bucketheap/internal/metrics"
	"github.com/gostonefire/bucketheap/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Serializable - Any block type that can be written to and read from a heap
type Serializable interface {
	ToBytes() (buf []byte, err error)
	FromBytes(buf []byte) (err error)
}

// HeapConf - Is a struct to be passed in the call to NewHeap and NewHeapFromExistingFiles and contains
// configuration that affects file processing.
//   - Name is the name to base data and metadata file names on
//   - BlockSize is the size of each block in bytes, ignored when opening existing files
//   - RecordType is the factory for records stored in the heap
//   - TrailerLength is the number of bytes after the valid count reserved for block type specific fields
//   - NewEmptyBlock returns an empty block of the type stored in the heap, used when the file is extended.
//     If nil a plain block.Block is used.
//   - Role is the metrics label telling what the heap is used for, defaults to "heap"
//   - Logger is an optional zap logger
//   - Registerer is an optional Prometheus registerer
type HeapConf struct {
	Name          string
	BlockSize     int64
	RecordType    interfaces.RecordType
	TrailerLength int64
	NewEmptyBlock func(blockingFactor, blockSize int64) Serializable
	Role          string
	Logger        *zap.Logger
	Registerer    prometheus.Registerer
}

// Heap - File backed store of fixed size blocks. Block number n is stored at offset n * blockSize in the data
// file, and a BlockManager keeps track of blocks with free slots.
type Heap struct {
	dataFileName   string
	metaFileName   string
	dataFile       *storage.File
	blockManager   *blockmanager.BlockManager
	recordType     interfaces.RecordType
	blockSize      int64
	blockingFactor int64
	trailerLength  int64
	totalBlocks    int64
	newEmptyBlock  func(blockingFactor, blockSize int64) Serializable
	logger         *zap.Logger
	metrics        *metrics.Collector
}

// NewHeap - Returns a pointer to a new Heap. It always creates new files (or truncates existing files).
//   - heapConf is a HeapConf struct providing configuration parameters
//
// It returns:
//   - heap which is a pointer to the created instance
//   - err which is a standard Go type of error
func NewHeap(heapConf HeapConf) (heap *Heap, err error) {
	heap, err = newHeap(heapConf)
	if err != nil {
		return
	}

	heap.blockSize = heapConf.BlockSize
	heap.blockingFactor, err = block.BlockingFactor(heap.blockSize, heap.recordType.Size(), heap.trailerLength)
	if err != nil {
		heap.metrics.Unregister()
		return nil, err
	}

	heap.dataFile, err = storage.CreateFile(heap.dataFileName)
	if err != nil {
		heap.metrics.Unregister()
		return nil, err
	}

	heap.blockManager, err = blockmanager.NewBlockManager(heap.metaFileName, heap.blockSize, heap.logger)
	if err != nil {
		_ = heap.dataFile.Close()
		heap.metrics.Unregister()
		return nil, err
	}

	heap.logger.Info("heap created",
		zap.Int64("blockSize", heap.blockSize),
		zap.Int64("blockingFactor", heap.blockingFactor))

	return
}

// NewHeapFromExistingFiles - Returns a pointer to a Heap on existing data and metadata files. The block size is
// taken from the metadata file. It fails if any of the files is missing or if the data file size is not a whole
// number of blocks.
func NewHeapFromExistingFiles(heapConf HeapConf) (heap *Heap, err error) {
	heap, err = newHeap(heapConf)
	if err != nil {
		return
	}

	heap.blockManager, err = blockmanager.NewBlockManagerFromFile(heap.metaFileName, heap.logger)
	if err != nil {
		heap.metrics.Unregister()
		return nil, err
	}

	heap.blockSize = heap.blockManager.BlockSize()
	heap.blockingFactor, err = block.BlockingFactor(heap.blockSize, heap.recordType.Size(), heap.trailerLength)
	if err != nil {
		_ = heap.blockManager.Close()
		heap.metrics.Unregister()
		return nil, err
	}

	heap.dataFile, err = storage.OpenFile(heap.dataFileName)
	if err != nil {
		_ = heap.blockManager.Close()
		heap.metrics.Unregister()
		return nil, err
	}

	size, err := heap.dataFile.Size()
	if err != nil {
		_ = heap.Close()
		return nil, err
	}
	if size%heap.blockSize != 0 {
		_ = heap.Close()
		return nil, fmt.Errorf("data file size %d is not a multiple of block size %d", size, heap.blockSize)
	}
	heap.totalBlocks = size / heap.blockSize
	heap.metrics.Blocks.Set(float64(heap.totalBlocks))

	heap.logger.Info("heap opened",
		zap.Int64("blockSize", heap.blockSize),
		zap.Int64("blockingFactor", heap.blockingFactor),
		zap.Int64("totalBlocks", heap.totalBlocks))

	return
}

// newHeap - Validates configuration and returns a Heap without files
func newHeap(heapConf HeapConf) (heap *Heap, err error) {
	if heapConf.Name == "" {
		err = fmt.Errorf("name can not be empty, it will be used to name physical files")
		return
	}
	if heapConf.RecordType == nil {
		err = fmt.Errorf("a record type must be given")
		return
	}
	if heapConf.TrailerLength < 0 {
		err = fmt.Errorf("trailer length can not be negative")
		return
	}

	role := heapConf.Role
	if role == "" {
		role = "heap"
	}

	collector, err := metrics.New(heapConf.Registerer, heapConf.Name, role)
	if err != nil {
		return
	}

	heap = &Heap{
		dataFileName:  storage.GetDataFileName(heapConf.Name),
		metaFileName:  storage.GetMetaFileName(heapConf.Name),
		recordType:    heapConf.RecordType,
		trailerLength: heapConf.TrailerLength,
		newEmptyBlock: heapConf.NewEmptyBlock,
		logger:        logging.OrNop(heapConf.Logger).With(zap.String("heap", heapConf.Name), zap.String("role", role)),
		metrics:       collector,
	}

	return
}

// Close - Saves free lists, closes data and metadata files and unregisters the heap's metrics
func (H *Heap) Close() (err error) {
	H.metrics.Unregister()

	if H.blockManager != nil {
		err = H.blockManager.Close()
		H.blockManager = nil
	}

	if H.dataFile != nil {
		closeErr := H.dataFile.Close()
		if err == nil {
			err = closeErr
		}
		H.dataFile = nil
	}

	H.logger.Info("heap closed", zap.Int64("totalBlocks", H.totalBlocks))

	return
}

// RemoveFiles - Removes data and metadata files, make sure to close them first before calling this function
func (H *Heap) RemoveFiles() (err error) {
	err = storage.RemoveFile(H.dataFileName)
	if err != nil {
		return
	}

	err = storage.RemoveFile(H.metaFileName)

	return
}

// BlockSize - Returns the block size in bytes
func (H *Heap) BlockSize() int64 {
	return H.blockSize
}

// BlockingFactor - Returns the max number of records per block
func (H *Heap) BlockingFactor() int64 {
	return H.blockingFactor
}

// TotalBlocks - Returns the number of blocks in the data file
func (H *Heap) TotalBlocks() int64 {
	return H.totalBlocks
}

// RecordType - Returns the record type stored in the heap
func (H *Heap) RecordType() interfaces.RecordType {
	return H.recordType
}

// EmptyBlocks - Returns block numbers currently tracked as empty
func (H *Heap) EmptyBlocks() []int64 {
	return H.blockManager.EmptyBlocks()
}

// PartiallyEmptyBlocks - Returns block numbers currently tracked as partially empty
func (H *Heap) PartiallyEmptyBlocks() []int64 {
	return H.blockManager.PartiallyEmptyBlocks()
}

// Metrics - Returns the metrics collector of the heap
func (H *Heap) Metrics() *metrics.Collector {
	return H.metrics
}

// NewBlock - Returns a new empty plain block sized for this heap
func (H *Heap) NewBlock() *block.Block {
	return block.NewBlock(H.recordType, H.blockingFactor, H.blockSize)
}

// Insert - Inserts a record in the lowest partially empty block, or else the lowest empty block, or else in a
// new block appended to the data file.
//
// It returns:
//   - blockNo is the number of the block the record was stored in
//   - err is a standard error, if something went wrong
func (H *Heap) Insert(record interfaces.Record) (blockNo int64, err error) {
	var b *block.Block
	for {
		partiallyEmpty := true
		blockNo = H.blockManager.GetNextPartiallyEmptyBlock()
		if blockNo == conf.NoBlock {
			partiallyEmpty = false
			blockNo = H.blockManager.GetNextEmptyBlock()
		}

		if blockNo == conf.NoBlock || blockNo >= H.totalBlocks {
			blockNo = H.totalBlocks
			b = H.NewBlock()
		} else {
			b, err = H.ReadBlock(blockNo)
			if err != nil {
				H.releaseBlock(blockNo, partiallyEmpty)
				return
			}
		}

		if b.AddRecord(record) {
			break
		}

		// Free list claimed room in a full block, resync and try next
		H.logger.Warn("free list out of sync", zap.Int64("block", blockNo), zap.Int64("validCount", b.ValidCount()))
		H.blockManager.UpdateAfterInsert(blockNo, b.ValidCount(), H.blockingFactor)
	}

	err = H.WriteBlock(blockNo, b)
	if err != nil {
		if blockNo < H.totalBlocks {
			// Block on file still holds the records it had before the add
			H.blockManager.UpdateAfterInsert(blockNo, b.ValidCount()-1, H.blockingFactor)
		}
		err = fmt.Errorf("error while inserting record in block %d: %s", blockNo, err)
		return
	}

	H.blockManager.UpdateAfterInsert(blockNo, b.ValidCount(), H.blockingFactor)
	H.metrics.RecordsInserted.Inc()

	return
}

// releaseBlock - Returns a block number taken from a free list to the list it was taken from
func (H *Heap) releaseBlock(blockNo int64, partiallyEmpty bool) {
	if partiallyEmpty {
		H.blockManager.ManagePartiallyEmptyBlock(blockNo)
	} else {
		H.blockManager.ManageEmptyBlock(blockNo)
	}
}

// Get - Gets the record in block blockNo that is partially equal to partial.
//
// It returns:
//   - record is the matching record if found, if not found (also if blockNo is out of range) an error of type
//     bherrors.NoRecordFound is returned.
//   - err is either of type bherrors.NoRecordFound or a standard error, if something went wrong
func (H *Heap) Get(blockNo int64, partial interfaces.Record) (record interfaces.Record, err error) {
	if blockNo < 0 || blockNo >= H.totalBlocks {
		err = bherrors.NoRecordFound{}
		return
	}

	b, err := H.ReadBlock(blockNo)
	if err != nil {
		return
	}

	record, found := b.GetRecord(partial)
	if !found {
		err = bherrors.NoRecordFound{}
	}

	return
}

// Delete - Deletes the record in block blockNo that is partially equal to partial.
//
// It returns:
//   - deleted is true if a record was deleted
//   - err is a standard error, if something went wrong
func (H *Heap) Delete(blockNo int64, partial interfaces.Record) (deleted bool, err error) {
	if blockNo < 0 || blockNo >= H.totalBlocks {
		return
	}

	b, err := H.ReadBlock(blockNo)
	if err != nil {
		return
	}

	if !b.Delete(partial) {
		return
	}

	err = H.WriteBlock(blockNo, b)
	if err != nil {
		err = fmt.Errorf("error while deleting record in block %d: %s", blockNo, err)
		return
	}

	H.blockManager.UpdateAfterDelete(blockNo, b.ValidCount(), H.blockingFactor)
	H.metrics.RecordsDeleted.Inc()
	deleted = true

	return
}

// EnsureBlockExists - Extends the data file with empty blocks so that block blockNo exists
func (H *Heap) EnsureBlockExists(blockNo int64) (err error) {
	return H.ExtendToBlockCount(blockNo + 1)
}

// ExtendToBlockCount - Extends the data file with empty blocks until it holds count blocks.
// New blocks are tracked as empty. Nothing happens if the file already holds count blocks or more.
func (H *Heap) ExtendToBlockCount(count int64) (err error) {
	if count <= H.totalBlocks {
		return
	}

	buf, err := H.emptyBlockBytes()
	if err != nil {
		return
	}

	for blockNo := H.totalBlocks; blockNo < count; blockNo++ {
		err = H.writeBlockBytes(blockNo, buf)
		if err != nil {
			err = fmt.Errorf("error while extending data file to %d blocks: %s", count, err)
			return
		}
		H.blockManager.ManageEmptyBlock(blockNo)
	}

	H.logger.Debug("data file extended", zap.Int64("totalBlocks", H.totalBlocks))

	return
}

// AppendBlock - Writes b as a new block at the end of the data file and returns its block number
func (H *Heap) AppendBlock(b Serializable) (blockNo int64, err error) {
	blockNo = H.totalBlocks
	err = H.WriteBlock(blockNo, b)
	if err != nil {
		blockNo = conf.NoBlock
	}

	return
}

// NextEmptyBlock - Removes and returns the lowest block number tracked as empty, or conf.NoBlock if none
func (H *Heap) NextEmptyBlock() int64 {
	return H.blockManager.GetNextEmptyBlock()
}

// UpdateFreeSpace - Resyncs the free lists for blockNo with its valid count. Used by callers that write blocks
// directly with WriteBlock.
func (H *Heap) UpdateFreeSpace(blockNo, validCount int64) {
	H.blockManager.UpdateAfterInsert(blockNo, validCount, H.blockingFactor)
}

// ReadBlock - Reads block blockNo as a plain block
func (H *Heap) ReadBlock(blockNo int64) (b *block.Block, err error) {
	b = H.NewBlock()
	err = H.ReadBlockInto(blockNo, b)
	if err != nil {
		b = nil
	}

	return
}

// ReadBlockInto - Reads block blockNo into b without touching the free lists
func (H *Heap) ReadBlockInto(blockNo int64, b Serializable) (err error) {
	if blockNo < 0 || blockNo >= H.totalBlocks {
		err = fmt.Errorf("block number %d outside of data file with %d blocks", blockNo, H.totalBlocks)
		return
	}

	buf, err := H.dataFile.ReadAt(blockNo*H.blockSize, H.blockSize)
	if err != nil {
		return
	}
	H.metrics.BlockReads.Inc()

	err = b.FromBytes(buf)
	if err != nil {
		err = fmt.Errorf("error while decoding block %d: %s", blockNo, err)
	}

	return
}

// WriteBlock - Writes b as block blockNo without touching the free lists. Writing at blockNo equal to the
// number of blocks appends a block, writing beyond that is an error.
func (H *Heap) WriteBlock(blockNo int64, b Serializable) (err error) {
	buf, err := b.ToBytes()
	if err != nil {
		return
	}

	err = H.writeBlockBytes(blockNo, buf)

	return
}

// writeBlockBytes - Writes an already serialized block
func (H *Heap) writeBlockBytes(blockNo int64, buf []byte) (err error) {
	if blockNo < 0 || blockNo > H.totalBlocks {
		err = fmt.Errorf("block number %d outside of data file with %d blocks", blockNo, H.totalBlocks)
		return
	}
	if int64(len(buf)) != H.blockSize {
		err = fmt.Errorf("serialized block is %d bytes, expected %d: %w", len(buf), H.blockSize, bherrors.BlockTooSmall{})
		return
	}

	err = H.dataFile.WriteAt(blockNo*H.blockSize, buf)
	if err != nil {
		return
	}
	H.metrics.BlockWrites.Inc()

	if blockNo == H.totalBlocks {
		H.totalBlocks++
		H.metrics.Blocks.Set(float64(H.totalBlocks))
		H.logger.Debug("block allocated", zap.Int64("block", blockNo))
	}

	return
}

// emptyBlockBytes - Returns the serialized form of an empty block of the type stored in the heap
func (H *Heap) emptyBlockBytes() (buf []byte, err error) {
	var b Serializable
	if H.newEmptyBlock != nil {
		b = H.newEmptyBlock(H.blockingFactor, H.blockSize)
	} else {
		b = H.NewBlock()
	}

	buf, err = b.ToBytes()

	return
}
