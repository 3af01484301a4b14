package block

import (
	"encoding/binary"
	"fmt"
	"github.com/gostonefire/bucketheap/bherrors"
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/conf"
)

// Slot - One record position in a block. A slot not in use holds no record.
type Slot struct {
	InUse  bool
	Record interfaces.Record
}

// Block - Fixed capacity array of record slots together with the number of slots in use.
// Slots in use are always the first validCount slots.
type Block struct {
	recordType     interfaces.RecordType
	recordSize     int64
	blockingFactor int64
	blockSize      int64
	validCount     int64
	slots          []Slot
}

// BlockingFactor - Returns the number of records that fits in a block of blockSize bytes given the record size
// and the length of any block type specific trailer following the valid count.
func BlockingFactor(blockSize, recordSize, trailerLength int64) (blockingFactor int64, err error) {
	if recordSize <= 0 {
		err = fmt.Errorf("record size must be a positive value higher than 0 (zero)")
		return
	}

	blockingFactor = (blockSize - conf.ValidCountLength - trailerLength) / recordSize
	if blockingFactor < 1 {
		blockingFactor = 0
		err = fmt.Errorf("block size %d can not hold a single record of size %d: %w", blockSize, recordSize, bherrors.BlockTooSmall{})
	}

	return
}

// NewBlock - Returns a pointer to a new empty Block
//   - recordType is the factory for records stored in the block
//   - blockingFactor is the maximum number of records in the block
//   - blockSize is the size in bytes of the serialized block
func NewBlock(recordType interfaces.RecordType, blockingFactor, blockSize int64) *Block {
	return &Block{
		recordType:     recordType,
		recordSize:     recordType.Size(),
		blockingFactor: blockingFactor,
		blockSize:      blockSize,
		slots:          make([]Slot, blockingFactor),
	}
}

// ValidCount - Returns number of records in the block
func (B *Block) ValidCount() int64 {
	return B.validCount
}

// BlockingFactor - Returns the maximum number of records in the block
func (B *Block) BlockingFactor() int64 {
	return B.blockingFactor
}

// BlockSize - Returns the serialized size of the block
func (B *Block) BlockSize() int64 {
	return B.blockSize
}

// IsFull - Returns true if there are no free slots
func (B *Block) IsFull() bool {
	return B.validCount >= B.blockingFactor
}

// IsEmpty - Returns true if no slot is in use
func (B *Block) IsEmpty() bool {
	return B.validCount == 0
}

// Slots - Returns a copy of all slots, including the ones not in use
func (B *Block) Slots() []Slot {
	slots := make([]Slot, len(B.slots))
	copy(slots, B.slots)

	return slots
}

// Records - Returns the records in use in slot order
func (B *Block) Records() (records []interfaces.Record) {
	records = make([]interfaces.Record, 0, B.validCount)
	for i := int64(0); i < B.validCount; i++ {
		records = append(records, B.slots[i].Record)
	}

	return
}

// AddRecord - Adds a record in the first free slot, returns false if the block is full
func (B *Block) AddRecord(record interfaces.Record) bool {
	if B.IsFull() {
		return false
	}

	B.slots[B.validCount] = Slot{InUse: true, Record: record}
	B.validCount++

	return true
}

// FindRecordIndex - Returns the slot index of the first record partially equal to partial, or -1 if none matches
func (B *Block) FindRecordIndex(partial interfaces.Record) int64 {
	for i := int64(0); i < B.validCount; i++ {
		if B.slots[i].Record.IsPartialEqual(partial) {
			return i
		}
	}

	return -1
}

// GetRecord - Returns the first record partially equal to partial
func (B *Block) GetRecord(partial interfaces.Record) (record interfaces.Record, found bool) {
	i := B.FindRecordIndex(partial)
	if i < 0 {
		return
	}

	return B.slots[i].Record, true
}

// Delete - Removes the first record partially equal to partial and shifts following records one slot down.
// Returns true if a record was removed.
func (B *Block) Delete(partial interfaces.Record) bool {
	i := B.FindRecordIndex(partial)
	if i < 0 {
		return false
	}

	copy(B.slots[i:B.validCount], B.slots[i+1:B.validCount])
	B.validCount--
	B.slots[B.validCount] = Slot{}

	return true
}

// Clear - Removes all records
func (B *Block) Clear() {
	for i := range B.slots {
		B.slots[i] = Slot{}
	}
	B.validCount = 0
}

// ToBytes - Serializes the block into exactly blockSize bytes
func (B *Block) ToBytes() (buf []byte, err error) {
	return B.ToBytesWithTrailer(nil)
}

// ToBytesWithTrailer - Serializes the block into exactly blockSize bytes with trailer written directly after
// the valid count. The layout is all slots (unused ones zero filled), valid count as big endian int32, trailer
// and finally zero padding.
func (B *Block) ToBytesWithTrailer(trailer []byte) (buf []byte, err error) {
	slotsLength := B.blockingFactor * B.recordSize
	used := slotsLength + conf.ValidCountLength + int64(len(trailer))
	if used > B.blockSize {
		err = fmt.Errorf("block needs %d bytes but block size is %d: %w", used, B.blockSize, bherrors.BlockTooSmall{})
		return
	}

	buf = make([]byte, B.blockSize)

	var rec []byte
	for i := int64(0); i < B.validCount; i++ {
		rec, err = B.slots[i].Record.ToBytes()
		if err != nil {
			buf = nil
			err = fmt.Errorf("error while encoding record in slot %d: %s", i, err)
			return
		}
		if int64(len(rec)) != B.recordSize {
			buf = nil
			err = fmt.Errorf("record in slot %d encoded to %d bytes, expected %d: %w", i, len(rec), B.recordSize, bherrors.RecordEncoding{})
			return
		}
		copy(buf[i*B.recordSize:], rec)
	}

	binary.BigEndian.PutUint32(buf[slotsLength:], uint32(B.validCount))
	copy(buf[slotsLength+conf.ValidCountLength:], trailer)

	return
}

// FromBytes - Populates the block from bytes produced by ToBytes
func (B *Block) FromBytes(buf []byte) (err error) {
	_, err = B.FromBytesWithTrailer(buf, 0)

	return
}

// FromBytesWithTrailer - Populates the block from bytes produced by ToBytesWithTrailer and returns the
// trailerLength bytes following the valid count. Only the first validCount slots are decoded, whatever is
// stored in the remaining slots is ignored.
func (B *Block) FromBytesWithTrailer(buf []byte, trailerLength int64) (trailer []byte, err error) {
	slotsLength := B.blockingFactor * B.recordSize
	expected := slotsLength + conf.ValidCountLength + trailerLength
	if int64(len(buf)) < expected {
		err = fmt.Errorf("length of data in buf (%d) less than block content size (%d)", len(buf), expected)
		return
	}

	validCount := int64(binary.BigEndian.Uint32(buf[slotsLength:]))
	if validCount > B.blockingFactor {
		err = fmt.Errorf("valid count %d exceeds blocking factor %d", validCount, B.blockingFactor)
		return
	}

	B.Clear()

	var record interfaces.Record
	for i := int64(0); i < validCount; i++ {
		record = B.recordType.Blank()
		err = record.FromBytes(buf[i*B.recordSize : (i+1)*B.recordSize])
		if err != nil {
			B.Clear()
			err = fmt.Errorf("error while decoding record in slot %d: %s", i, err)
			return
		}
		B.slots[i] = Slot{InUse: true, Record: record}
	}
	B.validCount = validCount

	trailer = make([]byte, trailerLength)
	copy(trailer, buf[slotsLength+conf.ValidCountLength:expected])

	return
}
