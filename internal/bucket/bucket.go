package bucket

import (
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/block"
	"github.com/gostonefire/bucketheap/internal/conf"
)

// Bucket - A block in the main bucket file. Besides its own slots it points out the first block of its overflow
// chain in the overflow file and keeps count of chained blocks and of records in bucket and chain together.
// The bucket number is the block number in the main bucket file.
type Bucket struct {
	*block.Block
	FirstOverflowBlock  int64
	OverflowBucketCount int64
	TotalElementCount   int64
}

// OverflowBlock - A block in the overflow file, linked to the next block in the same chain
type OverflowBlock struct {
	*block.Block
	NextOverflowBlock int64
}

// NewBucket - Returns a pointer to a new empty Bucket without overflow chain
func NewBucket(recordType interfaces.RecordType, blockingFactor, blockSize int64) *Bucket {
	return &Bucket{
		Block:              block.NewBlock(recordType, blockingFactor, blockSize),
		FirstOverflowBlock: conf.NoBlock,
	}
}

// NewOverflowBlock - Returns a pointer to a new empty OverflowBlock terminating a chain
func NewOverflowBlock(recordType interfaces.RecordType, blockingFactor, blockSize int64) *OverflowBlock {
	return &OverflowBlock{
		Block:             block.NewBlock(recordType, blockingFactor, blockSize),
		NextOverflowBlock: conf.NoBlock,
	}
}

// HasOverflow - Returns true if the bucket has an overflow chain
func (B *Bucket) HasOverflow() bool {
	return B.FirstOverflowBlock != conf.NoBlock
}

// ToBytes - Serializes the bucket, the bucket fields follow the valid count
func (B *Bucket) ToBytes() (buf []byte, err error) {
	return B.Block.ToBytesWithTrailer(bucketTrailerToBytes(B))
}

// FromBytes - Populates the bucket from bytes produced by ToBytes
func (B *Bucket) FromBytes(buf []byte) (err error) {
	trailer, err := B.Block.FromBytesWithTrailer(buf, conf.BucketTrailerLength)
	if err != nil {
		return
	}

	bytesToBucketTrailer(trailer, B)

	return
}

// ToBytes - Serializes the overflow block, the next overflow block number follows the valid count
func (O *OverflowBlock) ToBytes() (buf []byte, err error) {
	return O.Block.ToBytesWithTrailer(overflowTrailerToBytes(O))
}

// FromBytes - Populates the overflow block from bytes produced by ToBytes
func (O *OverflowBlock) FromBytes(buf []byte) (err error) {
	trailer, err := O.Block.FromBytesWithTrailer(buf, conf.OverflowTrailerLength)
	if err != nil {
		return
	}

	bytesToOverflowTrailer(trailer, O)

	return
}
