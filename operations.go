package bucketheap

import (
	"fmt"
	"github.com/gostonefire/bucketheap/bherrors"
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/bucket"
	"github.com/gostonefire/bucketheap/internal/overflow"
	"go.uber.org/zap"
)

// InsertIntoBucket - Inserts a record in a bucket, or in the bucket's overflow chain if the bucket is full.
// The main bucket file is extended if bucketNo is beyond its current end.
//   - bucketNo is the bucket number to insert the record in
//   - record is the record to insert, it is not checked for duplicates
//
// It returns:
//   - blockNo is the bucket number if the record was stored in the bucket itself, or else the number of the
//     overflow block the record was stored in
//   - inOverflow is true if the record was stored in an overflow block
//   - err is a standard error, if something went wrong
func (B *BucketHeap) InsertIntoBucket(bucketNo int64, record interfaces.Record) (blockNo int64, inOverflow bool, err error) {
	if bucketNo < 0 {
		err = fmt.Errorf("bucket number can not be negative, got %d", bucketNo)
		return
	}
	if record == nil {
		err = fmt.Errorf("record can not be nil")
		return
	}

	err = B.EnsureBucketExists(bucketNo)
	if err != nil {
		return
	}

	b, err := B.getBucket(bucketNo)
	if err != nil {
		return
	}

	if b.AddRecord(record) {
		b.TotalElementCount++
		err = B.setBucket(bucketNo, b)
		if err != nil {
			return
		}
		B.main.Metrics().RecordsInserted.Inc()
		blockNo = bucketNo
		return
	}

	blockNo, err = B.insertIntoOverflow(bucketNo, b, record)
	if err != nil {
		err = fmt.Errorf("error while inserting record in overflow of bucket %d: %w", bucketNo, err)
		return
	}
	B.overflow.Metrics().RecordsInserted.Inc()
	inOverflow = true

	return
}

// Get - Gets the record in bucket bucketNo, or in its overflow chain, that is partially equal to partial.
//
// It returns:
//   - record is the matching record if found, if not found (also if bucketNo is out of range) an error of type
//     bherrors.NoRecordFound is returned.
//   - err is either of type bherrors.NoRecordFound or a standard error, if something went wrong
func (B *BucketHeap) Get(bucketNo int64, partial interfaces.Record) (record interfaces.Record, err error) {
	if bucketNo < 0 || bucketNo >= B.main.TotalBlocks() {
		err = bherrors.NoRecordFound{}
		return
	}

	b, iter, err := B.GetBucket(bucketNo)
	if err != nil {
		return
	}

	record, found := b.GetRecord(partial)
	if found {
		return
	}

	var node *bucket.OverflowBlock
	for iter.HasNext() {
		_, node, err = iter.Next()
		if err != nil {
			return
		}

		record, found = node.GetRecord(partial)
		if found {
			return
		}
	}

	record = nil
	err = bherrors.NoRecordFound{}

	return
}

// Delete - Deletes the record in bucket bucketNo, or in its overflow chain, that is partially equal to partial.
// An overflow block that becomes empty is unlinked from the chain.
//
// It returns:
//   - deleted is true if a record was deleted
//   - err is a standard error, if something went wrong
func (B *BucketHeap) Delete(bucketNo int64, partial interfaces.Record) (deleted bool, err error) {
	if bucketNo < 0 || bucketNo >= B.main.TotalBlocks() {
		return
	}

	b, err := B.getBucket(bucketNo)
	if err != nil {
		return
	}

	if b.Delete(partial) {
		b.TotalElementCount--
		err = B.setBucket(bucketNo, b)
		if err != nil {
			return
		}
		B.main.Metrics().RecordsDeleted.Inc()
		deleted = true
		return
	}

	deleted, err = B.deleteFromOverflow(bucketNo, b, partial)
	if err != nil {
		err = fmt.Errorf("error while deleting record in overflow of bucket %d: %w", bucketNo, err)
		return
	}
	if deleted {
		B.overflow.Metrics().RecordsDeleted.Inc()
	}

	return
}

// CollectAllRecords - Returns all records in bucket bucketNo followed by the records of its overflow chain in
// chain order. A bucket beyond the end of the main bucket file has no records.
func (B *BucketHeap) CollectAllRecords(bucketNo int64) (records []interfaces.Record, err error) {
	if bucketNo < 0 || bucketNo >= B.main.TotalBlocks() {
		return
	}

	b, iter, err := B.GetBucket(bucketNo)
	if err != nil {
		return
	}

	records = b.Records()
	for iter.HasNext() {
		_, node, nErr := iter.Next()
		if nErr != nil {
			return nil, nErr
		}
		records = append(records, node.Records()...)
	}

	return
}

// ClearOverflowChain - Detaches the overflow chain from bucket bucketNo. The bucket's element count is set to
// what the bucket itself holds. Unless the bucket heap reuses overflow blocks the detached blocks are left as
// they are in the overflow file, otherwise they are emptied and become available for new chains.
func (B *BucketHeap) ClearOverflowChain(bucketNo int64) (err error) {
	if bucketNo < 0 || bucketNo >= B.main.TotalBlocks() {
		return
	}

	b, iter, err := B.GetBucket(bucketNo)
	if err != nil {
		return
	}
	if !b.HasOverflow() {
		return
	}

	if B.reuseOverflowBlocks {
		err = B.emptyChain(iter)
		if err != nil {
			err = fmt.Errorf("error while clearing overflow chain of bucket %d: %w", bucketNo, err)
			return
		}
	}

	B.logger.Debug("overflow chain cleared",
		zap.Int64("bucket", bucketNo),
		zap.Int64("firstOverflowBlock", b.FirstOverflowBlock),
		zap.Int64("overflowBucketCount", b.OverflowBucketCount),
	)

	b.FirstOverflowBlock = NoBlock
	b.OverflowBucketCount = 0
	b.TotalElementCount = b.ValidCount()
	err = B.setBucket(bucketNo, b)

	return
}

// insertIntoOverflow - Inserts record in the first non-full block of the bucket's overflow chain, or in a new
// block linked after the last block of the chain. The new block is written before the block pointing at it.
func (B *BucketHeap) insertIntoOverflow(bucketNo int64, b *bucket.Bucket, record interfaces.Record) (blockNo int64, err error) {
	iter := overflow.NewNodes(B.getOverflowBlock, b.FirstOverflowBlock, b.OverflowBucketCount)

	lastNo := NoBlock
	var last *bucket.OverflowBlock
	for iter.HasNext() {
		var node *bucket.OverflowBlock
		blockNo, node, err = iter.Next()
		if err != nil {
			return
		}

		if node.AddRecord(record) {
			err = B.setOverflowBlock(blockNo, node)
			if err != nil {
				return
			}
			b.TotalElementCount++
			err = B.setBucket(bucketNo, b)
			return
		}

		lastNo, last = blockNo, node
	}

	// Every block in the chain is full (or there is no chain), link in a new one
	node := B.newOverflowBlock()
	node.AddRecord(record)
	blockNo, err = B.allocateOverflowBlock(node)
	if err != nil {
		return
	}

	if last == nil {
		b.FirstOverflowBlock = blockNo
		b.OverflowBucketCount = 1
	} else {
		last.NextOverflowBlock = blockNo
		err = B.setOverflowBlock(lastNo, last)
		if err != nil {
			return
		}
		b.OverflowBucketCount++
	}
	b.TotalElementCount++

	err = B.setBucket(bucketNo, b)
	if err != nil {
		return
	}

	B.logger.Debug("overflow block linked",
		zap.Int64("bucket", bucketNo),
		zap.Int64("overflowBlock", blockNo),
		zap.Int64("previousBlock", lastNo),
		zap.Int64("overflowBucketCount", b.OverflowBucketCount),
	)

	return
}

// deleteFromOverflow - Deletes the first record matching partial in the bucket's overflow chain, keeping track of
// the previous block in the chain so an emptied block can be unlinked without walking the chain again.
func (B *BucketHeap) deleteFromOverflow(bucketNo int64, b *bucket.Bucket, partial interfaces.Record) (deleted bool, err error) {
	iter := overflow.NewNodes(B.getOverflowBlock, b.FirstOverflowBlock, b.OverflowBucketCount)

	prevNo := NoBlock
	var prev *bucket.OverflowBlock
	for iter.HasNext() {
		blockNo, node, nErr := iter.Next()
		if nErr != nil {
			err = nErr
			return
		}

		if !node.Delete(partial) {
			prevNo, prev = blockNo, node
			continue
		}

		if node.IsEmpty() {
			if prev == nil {
				b.FirstOverflowBlock = node.NextOverflowBlock
			} else {
				prev.NextOverflowBlock = node.NextOverflowBlock
				err = B.setOverflowBlock(prevNo, prev)
				if err != nil {
					return
				}
			}
			b.OverflowBucketCount--
			node.NextOverflowBlock = NoBlock

			B.overflow.Metrics().OverflowUnlinked.Inc()
			B.logger.Debug("overflow block unlinked",
				zap.Int64("bucket", bucketNo),
				zap.Int64("overflowBlock", blockNo),
				zap.Int64("previousBlock", prevNo),
				zap.Int64("overflowBucketCount", b.OverflowBucketCount),
			)
		}

		err = B.setOverflowBlock(blockNo, node)
		if err != nil {
			return
		}

		b.TotalElementCount--
		err = B.setBucket(bucketNo, b)
		if err != nil {
			return
		}

		deleted = true
		return
	}

	return
}

// allocateOverflowBlock - Writes node to a reused empty overflow block if reuse is enabled and one is available,
// or else to a new block at the end of the overflow file.
func (B *BucketHeap) allocateOverflowBlock(node *bucket.OverflowBlock) (blockNo int64, err error) {
	if B.reuseOverflowBlocks {
		blockNo = B.overflow.NextEmptyBlock()
		if blockNo != NoBlock {
			err = B.setOverflowBlock(blockNo, node)
			if err != nil {
				B.overflow.UpdateFreeSpace(blockNo, 0)
				blockNo = NoBlock
			}
			return
		}
	}

	blockNo, err = B.overflow.AppendBlock(node)
	if err != nil {
		return
	}
	B.overflow.UpdateFreeSpace(blockNo, node.ValidCount())
	B.overflow.Metrics().OverflowAppended.Inc()

	return
}

// emptyChain - Empties every block in a chain and marks them as empty in the overflow free lists
func (B *BucketHeap) emptyChain(iter *overflow.Nodes) (err error) {
	for iter.HasNext() {
		blockNo, node, nErr := iter.Next()
		if nErr != nil {
			return nErr
		}

		node.Clear()
		node.NextOverflowBlock = NoBlock
		err = B.setOverflowBlock(blockNo, node)
		if err != nil {
			return
		}
		B.overflow.Metrics().OverflowUnlinked.Inc()
	}

	return
}
