package bucketheap

import (
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/heap"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HeapConf - Is a struct to be passed in the call to NewHeap and OpenHeap
//   - Name is the name to base file names on, files are named <Name>-data.bin and <Name>-meta.bin
//   - BlockSize is the size in bytes of each block, ignored when opening existing files
//   - RecordType is the factory for records stored in the heap
//   - Logger is an optional zap logger
//   - Registerer is an optional Prometheus registerer
type HeapConf struct {
	Name       string
	BlockSize  int64
	RecordType interfaces.RecordType
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Heap - A file backed heap of fixed size records without buckets. Records are placed by the heap itself and
// addressed by the block number returned from Insert.
type Heap struct {
	heap *heap.Heap
}

// NewHeap - Returns a pointer to a new Heap. It always creates new files (or truncates existing files).
func NewHeap(heapConf HeapConf) (h *Heap, err error) {
	return openHeap(heapConf, heap.NewHeap)
}

// OpenHeap - Returns a pointer to a Heap restored from files created earlier
func OpenHeap(heapConf HeapConf) (h *Heap, err error) {
	return openHeap(heapConf, heap.NewHeapFromExistingFiles)
}

func openHeap(heapConf HeapConf, newHeap func(heap.HeapConf) (*heap.Heap, error)) (h *Heap, err error) {
	inner, err := newHeap(heap.HeapConf{
		Name:       heapConf.Name,
		BlockSize:  heapConf.BlockSize,
		RecordType: heapConf.RecordType,
		Role:       "heap",
		Logger:     heapConf.Logger,
		Registerer: heapConf.Registerer,
	})
	if err != nil {
		return
	}

	h = &Heap{heap: inner}

	return
}

// Insert - Inserts a record in the lowest block with a free slot, preferring partially filled blocks over
// empty ones and empty ones over a new block.
//
// It returns:
//   - blockNo is the number of the block the record was stored in
//   - err is a standard error, if something went wrong
func (H *Heap) Insert(record interfaces.Record) (blockNo int64, err error) {
	return H.heap.Insert(record)
}

// Get - Gets the record in block blockNo that is partially equal to partial. An error of type
// bherrors.NoRecordFound is returned if there is no such record or block.
func (H *Heap) Get(blockNo int64, partial interfaces.Record) (record interfaces.Record, err error) {
	return H.heap.Get(blockNo, partial)
}

// Delete - Deletes the record in block blockNo that is partially equal to partial, returns true if a record was
// deleted
func (H *Heap) Delete(blockNo int64, partial interfaces.Record) (deleted bool, err error) {
	return H.heap.Delete(blockNo, partial)
}

// GetRecords - Returns the records stored in block blockNo in slot order
func (H *Heap) GetRecords(blockNo int64) (records []interfaces.Record, err error) {
	b, err := H.heap.ReadBlock(blockNo)
	if err != nil {
		return
	}

	records = b.Records()

	return
}

// EnsureBlockExists - Extends the data file with empty blocks so that block blockNo exists
func (H *Heap) EnsureBlockExists(blockNo int64) (err error) {
	return H.heap.EnsureBlockExists(blockNo)
}

// ExtendToBlockCount - Extends the data file with empty blocks until it holds count blocks
func (H *Heap) ExtendToBlockCount(count int64) (err error) {
	return H.heap.ExtendToBlockCount(count)
}

// GetTotalBlocks - Returns the number of blocks in the data file
func (H *Heap) GetTotalBlocks() int64 {
	return H.heap.TotalBlocks()
}

// GetBlockingFactor - Returns the max number of records per block
func (H *Heap) GetBlockingFactor() int64 {
	return H.heap.BlockingFactor()
}

// GetFreeLists - Returns block numbers currently tracked as empty and as partially empty
func (H *Heap) GetFreeLists() (empty, partial []int64) {
	return H.heap.EmptyBlocks(), H.heap.PartiallyEmptyBlocks()
}

// Close - Saves free lists and closes the files
func (H *Heap) Close() (err error) {
	return H.heap.Close()
}

// RemoveFiles - Removes data and metadata files, make sure to call Close first
func (H *Heap) RemoveFiles() (err error) {
	return H.heap.RemoveFiles()
}
