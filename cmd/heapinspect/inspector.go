package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/block"
	"github.com/gostonefire/bucketheap/internal/bucket"
	"github.com/gostonefire/bucketheap/internal/conf"
	"github.com/gostonefire/bucketheap/internal/overflow"
	"go.uber.org/zap"
)

// inspector - Executes inspection commands against the files of a heap or a bucket heap
type inspector struct {
	layout         string
	recordType     interfaces.RecordType
	main           *heapFiles
	overflow       *heapFiles
	blockingFactor int64
	ovflFactor     int64
	out            io.Writer
	logger         *zap.Logger
}

// newInspector - Opens the files given by config. For the bucket layout main holds the buckets and overflow the
// overflow blocks, for the plain layout only main is used.
func newInspector(config Config, out io.Writer, logger *zap.Logger) (insp *inspector, err error) {
	insp = &inspector{
		layout:     config.Layout,
		recordType: recordTypes[config.RecordType],
		out:        out,
		logger:     logger,
	}

	if config.Layout == layoutPlain {
		insp.main, err = openHeapFiles(config.Name)
		if err != nil {
			return nil, err
		}
		insp.blockingFactor, err = block.BlockingFactor(insp.main.blockSize, insp.recordType.Size(), 0)
		if err != nil {
			_ = insp.close()
			return nil, err
		}
		return
	}

	insp.main, err = openHeapFiles(config.Name + "-main")
	if err != nil {
		return nil, err
	}
	insp.overflow, err = openHeapFiles(config.Name + "-ovfl")
	if err != nil {
		_ = insp.close()
		return nil, err
	}

	insp.blockingFactor, err = block.BlockingFactor(insp.main.blockSize, insp.recordType.Size(), conf.BucketTrailerLength)
	if err == nil {
		insp.ovflFactor, err = block.BlockingFactor(insp.overflow.blockSize, insp.recordType.Size(), conf.OverflowTrailerLength)
	}
	if err != nil {
		_ = insp.close()
		return nil, err
	}

	return
}

// close - Closes all opened files
func (I *inspector) close() (err error) {
	if I.main != nil {
		err = I.main.close()
	}
	if I.overflow != nil {
		if ovflErr := I.overflow.close(); err == nil {
			err = ovflErr
		}
	}

	return
}

// processCommand - Executes one command given as its fields
//
// It returns:
//   - quit is true if the command asks the inspector to stop
//   - err is a standard error, if the command failed
func (I *inspector) processCommand(args []string) (quit bool, err error) {
	if len(args) == 0 {
		return
	}

	command := strings.ToLower(args[0])
	I.logger.Debug("command", zap.String("command", command), zap.Strings("args", args[1:]))

	switch command {
	case "meta":
		I.printMeta()
	case "block":
		var blockNo int64
		blockNo, err = blockArg(args)
		if err == nil {
			err = I.printBlock(blockNo)
		}
	case "bucket":
		if I.layout != layoutBucket {
			err = fmt.Errorf("bucket command requires the bucket layout")
			return
		}
		var bucketNo int64
		bucketNo, err = blockArg(args)
		if err == nil {
			err = I.printBucket(bucketNo)
		}
	case "stat":
		err = I.printStat()
	case "help":
		I.printHelp()
	case "quit", "exit":
		quit = true
	default:
		err = fmt.Errorf("unknown command %q, type help for a list of commands", command)
	}

	return
}

// blockArg - Parses the block number argument of a command
func blockArg(args []string) (blockNo int64, err error) {
	if len(args) < 2 {
		err = fmt.Errorf("%s command requires a block number", args[0])
		return
	}

	blockNo, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		err = fmt.Errorf("invalid block number %q", args[1])
	}

	return
}

func (I *inspector) printHelp() {
	_, _ = fmt.Fprintln(I.out, "Commands:")
	_, _ = fmt.Fprintln(I.out, "  meta          free lists and sizes")
	if I.layout == layoutBucket {
		_, _ = fmt.Fprintln(I.out, "  block <n>     slots of overflow block n")
		_, _ = fmt.Fprintln(I.out, "  bucket <n>    slots of bucket n and its overflow chain")
	} else {
		_, _ = fmt.Fprintln(I.out, "  block <n>     slots of block n")
	}
	_, _ = fmt.Fprintln(I.out, "  stat          record counts")
	_, _ = fmt.Fprintln(I.out, "  help")
	_, _ = fmt.Fprintln(I.out, "  quit / exit")
}

func (I *inspector) printMeta() {
	if I.layout == layoutPlain {
		I.printHeapMeta("heap", I.main, I.blockingFactor)
		return
	}

	I.printHeapMeta("buckets", I.main, I.blockingFactor)
	I.printHeapMeta("overflow", I.overflow, I.ovflFactor)
}

func (I *inspector) printHeapMeta(label string, heapFile *heapFiles, blockingFactor int64) {
	_, _ = fmt.Fprintf(I.out, "%s: block size %d, blocking factor %d, blocks %d\n",
		label, heapFile.blockSize, blockingFactor, heapFile.totalBlocks)
	_, _ = fmt.Fprintf(I.out, "  empty: %v\n", heapFile.emptyBlocks)
	_, _ = fmt.Fprintf(I.out, "  partially empty: %v\n", heapFile.partiallyEmptyBlocks)
}

// printBlock - Prints a plain block, or an overflow block for the bucket layout
func (I *inspector) printBlock(blockNo int64) (err error) {
	if I.layout == layoutPlain {
		b := block.NewBlock(I.recordType, I.blockingFactor, I.main.blockSize)
		err = I.main.readBlock(blockNo, b)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(I.out, "block %d: %d of %d slots used\n", blockNo, b.ValidCount(), b.BlockingFactor())
		I.printSlots(b)
		return
	}

	node, err := I.readOverflowBlock(blockNo)
	if err != nil {
		return
	}
	I.printOverflowBlock(blockNo, node)

	return
}

// printBucket - Prints a bucket followed by every block in its overflow chain
func (I *inspector) printBucket(bucketNo int64) (err error) {
	b := bucket.NewBucket(I.recordType, I.blockingFactor, I.main.blockSize)
	err = I.main.readBlock(bucketNo, b)
	if err != nil {
		return
	}

	_, _ = fmt.Fprintf(I.out, "bucket %d: %d of %d slots used, first overflow %d, overflow blocks %d, elements %d\n",
		bucketNo, b.ValidCount(), b.BlockingFactor(), b.FirstOverflowBlock, b.OverflowBucketCount, b.TotalElementCount)
	I.printSlots(b.Block)

	iter := overflow.NewNodes(I.readOverflowBlock, b.FirstOverflowBlock, b.OverflowBucketCount)
	for iter.HasNext() {
		blockNo, node, nErr := iter.Next()
		if nErr != nil {
			return nErr
		}
		I.printOverflowBlock(blockNo, node)
	}

	return
}

func (I *inspector) printOverflowBlock(blockNo int64, node *bucket.OverflowBlock) {
	_, _ = fmt.Fprintf(I.out, "overflow block %d: %d of %d slots used, next %d\n",
		blockNo, node.ValidCount(), node.BlockingFactor(), node.NextOverflowBlock)
	I.printSlots(node.Block)
}

func (I *inspector) printSlots(b *block.Block) {
	for i, slot := range b.Slots() {
		if slot.InUse {
			_, _ = fmt.Fprintf(I.out, "  [%d] %v\n", i, slot.Record)
		} else {
			_, _ = fmt.Fprintf(I.out, "  [%d] -\n", i)
		}
	}
}

// printStat - Prints record counts, walking every block or every bucket and chain
func (I *inspector) printStat() (err error) {
	if I.layout == layoutPlain {
		var records, full int64
		for blockNo := int64(0); blockNo < I.main.totalBlocks; blockNo++ {
			b := block.NewBlock(I.recordType, I.blockingFactor, I.main.blockSize)
			err = I.main.readBlock(blockNo, b)
			if err != nil {
				return
			}
			records += b.ValidCount()
			if b.IsFull() {
				full++
			}
		}
		_, _ = fmt.Fprintf(I.out, "records %d, blocks %d, full %d, partially empty %d, empty %d\n",
			records, I.main.totalBlocks, full, len(I.main.partiallyEmptyBlocks), len(I.main.emptyBlocks))
		return
	}

	var bucketRecords, overflowRecords, linked, longest int64
	for bucketNo := int64(0); bucketNo < I.main.totalBlocks; bucketNo++ {
		b := bucket.NewBucket(I.recordType, I.blockingFactor, I.main.blockSize)
		err = I.main.readBlock(bucketNo, b)
		if err != nil {
			return
		}
		bucketRecords += b.ValidCount()

		var length int64
		iter := overflow.NewNodes(I.readOverflowBlock, b.FirstOverflowBlock, b.OverflowBucketCount)
		for iter.HasNext() {
			_, node, nErr := iter.Next()
			if nErr != nil {
				return nErr
			}
			overflowRecords += node.ValidCount()
			length++
		}
		linked += length
		longest = max(longest, length)
	}

	_, _ = fmt.Fprintf(I.out, "records %d, in buckets %d, in overflow %d\n",
		bucketRecords+overflowRecords, bucketRecords, overflowRecords)
	_, _ = fmt.Fprintf(I.out, "buckets %d, overflow blocks %d, linked %d, longest chain %d\n",
		I.main.totalBlocks, I.overflow.totalBlocks, linked, longest)

	return
}

// readOverflowBlock - Reads block blockNo of the overflow file
func (I *inspector) readOverflowBlock(blockNo int64) (node *bucket.OverflowBlock, err error) {
	node = bucket.NewOverflowBlock(I.recordType, I.ovflFactor, I.overflow.blockSize)
	err = I.overflow.readBlock(blockNo, node)
	if err != nil {
		node = nil
	}

	return
}
