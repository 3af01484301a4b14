package bucket

import (
	"encoding/binary"
	"github.com/gostonefire/bucketheap/internal/conf"
)

// bucketTrailerToBytes - Converts bucket specific fields to bytes
func bucketTrailerToBytes(bucket *Bucket) (buf []byte) {
	buf = make([]byte, conf.BucketTrailerLength)
	binary.BigEndian.PutUint32(buf[conf.FirstOverflowBlockOffset:], uint32(bucket.FirstOverflowBlock))
	binary.BigEndian.PutUint32(buf[conf.OverflowBucketCountOffset:], uint32(bucket.OverflowBucketCount))
	binary.BigEndian.PutUint32(buf[conf.TotalElementCountOffset:], uint32(bucket.TotalElementCount))

	return
}

// bytesToBucketTrailer - Converts bucket trailer raw data to bucket fields
func bytesToBucketTrailer(buf []byte, bucket *Bucket) {
	bucket.FirstOverflowBlock = getInt32(buf[conf.FirstOverflowBlockOffset:])
	bucket.OverflowBucketCount = getInt32(buf[conf.OverflowBucketCountOffset:])
	bucket.TotalElementCount = getInt32(buf[conf.TotalElementCountOffset:])
}

// overflowTrailerToBytes - Converts overflow block specific fields to bytes
func overflowTrailerToBytes(overflowBlock *OverflowBlock) (buf []byte) {
	buf = make([]byte, conf.OverflowTrailerLength)
	binary.BigEndian.PutUint32(buf[conf.NextOverflowBlockOffset:], uint32(overflowBlock.NextOverflowBlock))

	return
}

// bytesToOverflowTrailer - Converts overflow trailer raw data to overflow block fields
func bytesToOverflowTrailer(buf []byte, overflowBlock *OverflowBlock) {
	overflowBlock.NextOverflowBlock = getInt32(buf[conf.NextOverflowBlockOffset:])
}

// getInt32 - Reads a signed big endian int32, so that -1 survives the round trip
func getInt32(buf []byte) int64 {
	return int64(int32(binary.BigEndian.Uint32(buf)))
}
