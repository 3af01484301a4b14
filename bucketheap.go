package bucketheap

import (
	"errors"
	"fmt"
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/bucket"
	"github.com/gostonefire/bucketheap/internal/conf"
	"github.com/gostonefire/bucketheap/internal/heap"
	"github.com/gostonefire/bucketheap/internal/logging"
	"github.com/gostonefire/bucketheap/internal/overflow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NoBlock - Block number used for "no block", e.g. the end of an overflow chain
const NoBlock = conf.NoBlock

// BucketHeapConf - Is a struct to be passed in the call to NewBucketHeap and NewBucketHeapFromExistingFiles
//   - Name is the name to base all file names on, the main bucket files are named <Name>-main-data.bin and
//     <Name>-main-meta.bin and the overflow files <Name>-ovfl-data.bin and <Name>-ovfl-meta.bin
//   - BucketBlockSize is the size in bytes of each bucket, ignored when opening existing files
//   - OverflowBlockSize is the size in bytes of each overflow block, ignored when opening existing files
//   - RecordType is the factory for records stored in the bucket heap
//   - ReuseOverflowBlocks set to true makes new overflow blocks be taken from blocks emptied earlier before the
//     overflow file is extended, and makes ClearOverflowChain empty the blocks of the cleared chain
//   - Logger is an optional zap logger
//   - Registerer is an optional Prometheus registerer
type BucketHeapConf struct {
	Name                string
	BucketBlockSize     int64
	OverflowBlockSize   int64
	RecordType          interfaces.RecordType
	ReuseOverflowBlocks bool
	Logger              *zap.Logger
	Registerer          prometheus.Registerer
}

// HeapStat - Statistics on the overall usage and distribution over buckets
//   - Records is the total number of records stored
//   - BucketRecords is the number of records stored in the buckets themselves
//   - OverflowRecords is the number of records that has ended up in overflow blocks
//   - Buckets is the number of buckets in the main bucket file
//   - OverflowBlocks is the number of blocks in the overflow file, linked or not
//   - LinkedOverflowBlocks is the number of overflow blocks that are part of a chain
//   - BucketDistribution is the number of records stored in each bucket including its chain
type HeapStat struct {
	Records              int64
	BucketRecords        int64
	OverflowRecords      int64
	Buckets              int64
	OverflowBlocks       int64
	LinkedOverflowBlocks int64
	BucketDistribution   []int64
}

// BucketHeap - A heap of buckets where each bucket is a block in the main bucket file. Records that do not fit
// in their bucket go to a chain of overflow blocks in the overflow file.
type BucketHeap struct {
	name                string
	main                *heap.Heap
	overflow            *heap.Heap
	recordType          interfaces.RecordType
	reuseOverflowBlocks bool
	logger              *zap.Logger
}

// NewBucketHeap - Returns a pointer to a new BucketHeap. It always creates new files (or truncates existing
// files), and the heap starts without any buckets.
//   - bucketHeapConf is a BucketHeapConf struct providing configuration parameters
//
// It returns:
//   - bucketHeap which is a pointer to the created instance
//   - err which is a standard Go type of error
func NewBucketHeap(bucketHeapConf BucketHeapConf) (bucketHeap *BucketHeap, err error) {
	return newBucketHeap(bucketHeapConf, heap.NewHeap)
}

// NewBucketHeapFromExistingFiles - Returns a pointer to a BucketHeap restored from files created earlier.
// Block sizes are read from the metadata files.
//   - bucketHeapConf is a BucketHeapConf struct providing configuration parameters
//
// It returns:
//   - bucketHeap which is a pointer to the restored instance
//   - err which is either of type bherrors.MissingMetadata (possibly wrapped) or a standard error
func NewBucketHeapFromExistingFiles(bucketHeapConf BucketHeapConf) (bucketHeap *BucketHeap, err error) {
	return newBucketHeap(bucketHeapConf, heap.NewHeapFromExistingFiles)
}

// newBucketHeap - Sets up main and overflow heaps using the given heap constructor
func newBucketHeap(bucketHeapConf BucketHeapConf, newHeap func(heap.HeapConf) (*heap.Heap, error)) (bucketHeap *BucketHeap, err error) {
	if bucketHeapConf.Name == "" {
		err = fmt.Errorf("bucket heap name can not be empty")
		return
	}
	if bucketHeapConf.RecordType == nil {
		err = fmt.Errorf("record type is required")
		return
	}

	logger := logging.OrNop(bucketHeapConf.Logger).With(zap.String("bucketHeap", bucketHeapConf.Name))
	recordType := bucketHeapConf.RecordType

	mainHeap, err := newHeap(heap.HeapConf{
		Name:          bucketHeapConf.Name + "-main",
		BlockSize:     bucketHeapConf.BucketBlockSize,
		RecordType:    recordType,
		TrailerLength: conf.BucketTrailerLength,
		NewEmptyBlock: func(blockingFactor, blockSize int64) heap.Serializable {
			return bucket.NewBucket(recordType, blockingFactor, blockSize)
		},
		Role:       "main",
		Logger:     logger,
		Registerer: bucketHeapConf.Registerer,
	})
	if err != nil {
		err = fmt.Errorf("error while setting up main bucket file: %w", err)
		return
	}

	overflowHeap, err := newHeap(heap.HeapConf{
		Name:          bucketHeapConf.Name + "-ovfl",
		BlockSize:     bucketHeapConf.OverflowBlockSize,
		RecordType:    recordType,
		TrailerLength: conf.OverflowTrailerLength,
		NewEmptyBlock: func(blockingFactor, blockSize int64) heap.Serializable {
			return bucket.NewOverflowBlock(recordType, blockingFactor, blockSize)
		},
		Role:       "overflow",
		Logger:     logger,
		Registerer: bucketHeapConf.Registerer,
	})
	if err != nil {
		_ = mainHeap.Close()
		err = fmt.Errorf("error while setting up overflow file: %w", err)
		return
	}

	bucketHeap = &BucketHeap{
		name:                bucketHeapConf.Name,
		main:                mainHeap,
		overflow:            overflowHeap,
		recordType:          recordType,
		reuseOverflowBlocks: bucketHeapConf.ReuseOverflowBlocks,
		logger:              logger,
	}

	logger.Info("bucket heap opened",
		zap.Int64("buckets", mainHeap.TotalBlocks()),
		zap.Int64("overflowBlocks", overflowHeap.TotalBlocks()),
		zap.Bool("reuseOverflowBlocks", bucketHeapConf.ReuseOverflowBlocks),
	)

	return
}

// Close - Saves free lists and closes all files. Use this preferably in a "defer" directly after
// NewBucketHeap or NewBucketHeapFromExistingFiles.
func (B *BucketHeap) Close() (err error) {
	mainErr := B.main.Close()
	ovflErr := B.overflow.Close()

	return errors.Join(mainErr, ovflErr)
}

// RemoveFiles - Removes all files of the bucket heap, make sure to call Close first
func (B *BucketHeap) RemoveFiles() (err error) {
	err = B.main.RemoveFiles()
	if err != nil {
		return
	}

	err = B.overflow.RemoveFiles()

	return
}

// GetTotalBuckets - Returns the number of buckets in the main bucket file
func (B *BucketHeap) GetTotalBuckets() int64 {
	return B.main.TotalBlocks()
}

// GetTotalOverflowBlocks - Returns the number of blocks in the overflow file
func (B *BucketHeap) GetTotalOverflowBlocks() int64 {
	return B.overflow.TotalBlocks()
}

// GetBlockingFactor - Returns the max number of records in a bucket
func (B *BucketHeap) GetBlockingFactor() int64 {
	return B.main.BlockingFactor()
}

// GetOverflowBlockingFactor - Returns the max number of records in an overflow block
func (B *BucketHeap) GetOverflowBlockingFactor() int64 {
	return B.overflow.BlockingFactor()
}

// GetEmptyOverflowBlocks - Returns overflow block numbers currently tracked as empty
func (B *BucketHeap) GetEmptyOverflowBlocks() []int64 {
	return B.overflow.EmptyBlocks()
}

// EnsureBucketExists - Extends the main bucket file with empty buckets so that bucket bucketNo exists
func (B *BucketHeap) EnsureBucketExists(bucketNo int64) (err error) {
	return B.main.EnsureBlockExists(bucketNo)
}

// ExtendToBucketCount - Extends the main bucket file with empty buckets until it holds count buckets
func (B *BucketHeap) ExtendToBucketCount(count int64) (err error) {
	return B.main.ExtendToBlockCount(count)
}

// GetBucket - Returns a bucket and an iterator over its overflow blocks
//   - bucketNo is the bucket number in the main bucket file
func (B *BucketHeap) GetBucket(bucketNo int64) (b *bucket.Bucket, overflowIterator *overflow.Nodes, err error) {
	b, err = B.getBucket(bucketNo)
	if err != nil {
		return
	}

	overflowIterator = overflow.NewNodes(B.getOverflowBlock, b.FirstOverflowBlock, b.OverflowBucketCount)

	return
}

// Stat - Walks through the entire set of buckets and their overflow chains and produce a HeapStat struct.
//   - includeDistribution set to true will include a slice of length Buckets with number of records per bucket,
//     false will set HeapStat.BucketDistribution to nil.
func (B *BucketHeap) Stat(includeDistribution bool) (heapStat *HeapStat, err error) {
	var hs HeapStat
	hs.Buckets = B.main.TotalBlocks()
	hs.OverflowBlocks = B.overflow.TotalBlocks()

	if includeDistribution {
		hs.BucketDistribution = make([]int64, hs.Buckets)
	}

	for i := int64(0); i < hs.Buckets; i++ {
		b, iter, gErr := B.GetBucket(i)
		if gErr != nil {
			err = gErr
			return
		}

		count := b.ValidCount()
		hs.BucketRecords += count

		for iter.HasNext() {
			_, node, nErr := iter.Next()
			if nErr != nil {
				err = nErr
				return
			}
			hs.LinkedOverflowBlocks++
			hs.OverflowRecords += node.ValidCount()
			count += node.ValidCount()
		}

		hs.Records += count
		if includeDistribution {
			hs.BucketDistribution[i] = count
		}
	}

	heapStat = &hs
	return
}

// getBucket - Reads bucket bucketNo from the main bucket file
func (B *BucketHeap) getBucket(bucketNo int64) (b *bucket.Bucket, err error) {
	b = bucket.NewBucket(B.recordType, B.main.BlockingFactor(), B.main.BlockSize())
	err = B.main.ReadBlockInto(bucketNo, b)
	if err != nil {
		b = nil
	}

	return
}

// setBucket - Writes bucket bucketNo and resyncs the main file free lists
func (B *BucketHeap) setBucket(bucketNo int64, b *bucket.Bucket) (err error) {
	err = B.main.WriteBlock(bucketNo, b)
	if err != nil {
		err = fmt.Errorf("error while writing bucket %d: %w", bucketNo, err)
		return
	}

	B.main.UpdateFreeSpace(bucketNo, b.ValidCount())

	return
}

// getOverflowBlock - Reads block blockNo from the overflow file
func (B *BucketHeap) getOverflowBlock(blockNo int64) (node *bucket.OverflowBlock, err error) {
	node = B.newOverflowBlock()
	err = B.overflow.ReadBlockInto(blockNo, node)
	if err != nil {
		node = nil
	}

	return
}

// setOverflowBlock - Writes block blockNo in the overflow file and resyncs the overflow file free lists
func (B *BucketHeap) setOverflowBlock(blockNo int64, node *bucket.OverflowBlock) (err error) {
	err = B.overflow.WriteBlock(blockNo, node)
	if err != nil {
		err = fmt.Errorf("error while writing overflow block %d: %w", blockNo, err)
		return
	}

	B.overflow.UpdateFreeSpace(blockNo, node.ValidCount())

	return
}

// newOverflowBlock - Returns a new empty overflow block sized for the overflow file
func (B *BucketHeap) newOverflowBlock() *bucket.OverflowBlock {
	return bucket.NewOverflowBlock(B.recordType, B.overflow.BlockingFactor(), B.overflow.BlockSize())
}
