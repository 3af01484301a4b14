package conf

// NoBlock - Sentinel block number meaning "none", used both as allocator answer and as chain terminator
const NoBlock int64 = -1

// Int32Length - Length of every integer field in block trailers and in the metadata file
const Int32Length int64 = 4

// ValidCountLength - Length of the valid count that follows the slot array in every block
const ValidCountLength int64 = Int32Length

// BucketTrailerLength - Length of the bucket specific fields following the valid count:
// first overflow block, overflow bucket count and total element count - 3 x 4 bytes
const BucketTrailerLength int64 = 3 * Int32Length

// OverflowTrailerLength - Length of the overflow block specific field following the valid count:
// next overflow block - 4 bytes
const OverflowTrailerLength int64 = Int32Length

// FirstOverflowBlockOffset - Bucket trailer offset to the first overflow block number - 4 bytes
const FirstOverflowBlockOffset int64 = 0

// OverflowBucketCountOffset - Bucket trailer offset to the number of chained overflow blocks - 4 bytes
const OverflowBucketCountOffset int64 = 4

// TotalElementCountOffset - Bucket trailer offset to the total number of records in bucket and chain - 4 bytes
const TotalElementCountOffset int64 = 8

// NextOverflowBlockOffset - Overflow block trailer offset to the next overflow block number - 4 bytes
const NextOverflowBlockOffset int64 = 0

// MetaBlockSizeOffset - Metadata file offset to the block size - 4 bytes
const MetaBlockSizeOffset int64 = 0

// FileMode - Permissions used when creating data and metadata files
const FileMode = 0644
