package overflow

import (
	"fmt"
	"github.com/gostonefire/bucketheap/bherrors"
	"github.com/gostonefire/bucketheap/internal/bucket"
	"github.com/gostonefire/bucketheap/internal/conf"
)

// Nodes - Is used to iterate over the overflow blocks of a bucket one by one, starting at the bucket.
// At most the number of blocks recorded in the bucket are visited, so a damaged chain can not make the
// iteration loop forever.
type Nodes struct {
	getOvflFunc   func(int64) (*bucket.OverflowBlock, error)
	overflowBlock int64
	remaining     int64
}

// NewNodes - Returns a pointer to a new Nodes struct
//   - getOvflFunc reads an overflow block given its block number
//   - firstOverflowBlock is the first block of the chain, conf.NoBlock if none
//   - overflowBucketCount is the number of blocks in the chain
func NewNodes(getOvflFunc func(int64) (*bucket.OverflowBlock, error), firstOverflowBlock, overflowBucketCount int64) *Nodes {
	return &Nodes{
		getOvflFunc:   getOvflFunc,
		overflowBlock: firstOverflowBlock,
		remaining:     overflowBucketCount,
	}
}

// HasNext - Returns true if there are more overflow blocks to be fetched from a call to Next.
func (O *Nodes) HasNext() bool {
	return O.overflowBlock != conf.NoBlock && O.remaining > 0
}

// Next - Returns the next overflow block.
// It returns:
//   - blockNo is the block number of the overflow block in the overflow file
//   - node is the overflow block
//   - err is either a standard error or if there are no more blocks when calling this function an error of type bherrors.NoRecordFound is returned.
func (O *Nodes) Next() (blockNo int64, node *bucket.OverflowBlock, err error) {
	if !O.HasNext() {
		err = bherrors.NoRecordFound{}
		return
	}

	blockNo = O.overflowBlock
	node, err = O.getOvflFunc(blockNo)
	if err != nil {
		err = fmt.Errorf("error while retrieving block %d from overflow file: %s", blockNo, err)
		return
	}

	O.overflowBlock = node.NextOverflowBlock
	O.remaining--

	return
}
