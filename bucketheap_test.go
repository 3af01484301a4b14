package bucketheap

import (
	"errors"
	"github.com/gostonefire/bucketheap/bherrors"
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/heap"
	"github.com/gostonefire/bucketheap/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// Buckets hold 4 persons ((256 - 4 - 12) / 56) and overflow blocks hold 2 persons ((128 - 4 - 4) / 56)
const (
	testBucketBlockSize   int64 = 256
	testOverflowBlockSize int64 = 128
)

func newTestBucketHeap(t *testing.T, reuse bool) (bucketHeap *BucketHeap, name string) {
	name = filepath.Join(t.TempDir(), "test")
	bucketHeap, err := NewBucketHeap(BucketHeapConf{
		Name:                name,
		BucketBlockSize:     testBucketBlockSize,
		OverflowBlockSize:   testOverflowBlockSize,
		RecordType:          record.PersonType{},
		ReuseOverflowBlocks: reuse,
	})
	require.NoError(t, err, "create new bucket heap")

	return
}

func person(seq int) *record.Person {
	return record.Generate(rand.New(rand.NewSource(int64(seq))), seq)
}

func partial(seq int) *record.Person {
	return &record.Person{ID: person(seq).ID}
}

// insertPersons - Inserts persons with sequence numbers from through to-1 in bucket bucketNo
func insertPersons(t *testing.T, bucketHeap *BucketHeap, bucketNo int64, from, to int) {
	for i := from; i < to; i++ {
		_, _, err := bucketHeap.InsertIntoBucket(bucketNo, person(i))
		require.NoErrorf(t, err, "inserts person %d", i)
	}
}

// chainOf - Returns the block numbers of the overflow chain of bucketNo in chain order
func chainOf(t *testing.T, bucketHeap *BucketHeap, bucketNo int64) (chain []int64) {
	_, iter, err := bucketHeap.GetBucket(bucketNo)
	require.NoError(t, err, "gets bucket")

	for iter.HasNext() {
		blockNo, _, err := iter.Next()
		require.NoError(t, err, "gets overflow block")
		chain = append(chain, blockNo)
	}

	return
}

func ids(records []interfaces.Record) (result []string) {
	for _, r := range records {
		result = append(result, r.(*record.Person).ID)
	}

	return
}

// checkFreeLists - Asserts that every block of h is in the free list matching its actual valid count
func checkFreeLists(t *testing.T, file string, h *heap.Heap) {
	empty := make(map[int64]bool)
	for _, n := range h.EmptyBlocks() {
		empty[n] = true
	}
	partial := make(map[int64]bool)
	for _, n := range h.PartiallyEmptyBlocks() {
		partial[n] = true
	}

	for n := int64(0); n < h.TotalBlocks(); n++ {
		b, err := h.ReadBlock(n)
		require.NoErrorf(t, err, "reads %s block %d", file, n)
		assert.Falsef(t, empty[n] && partial[n], "%s block %d in both lists", file, n)
		assert.Equalf(t, b.IsEmpty(), empty[n], "%s block %d empty list membership", file, n)
		assert.Equalf(t, !b.IsEmpty() && !b.IsFull(), partial[n], "%s block %d partially empty list membership", file, n)
	}
}

// checkBuckets - Asserts chain integrity and element counts for every bucket, and free lists of both files
func checkBuckets(t *testing.T, bucketHeap *BucketHeap) {
	checkFreeLists(t, "main", bucketHeap.main)
	checkFreeLists(t, "overflow", bucketHeap.overflow)

	linked := make(map[int64]int64)
	for bucketNo := int64(0); bucketNo < bucketHeap.GetTotalBuckets(); bucketNo++ {
		b, err := bucketHeap.getBucket(bucketNo)
		require.NoErrorf(t, err, "reads bucket %d", bucketNo)

		total := b.ValidCount()
		var length int64
		next := b.FirstOverflowBlock
		for next != NoBlock {
			owner, seen := linked[next]
			require.Falsef(t, seen, "overflow block %d linked from bucket %d and %d", next, owner, bucketNo)
			linked[next] = bucketNo

			node, err := bucketHeap.getOverflowBlock(next)
			require.NoErrorf(t, err, "reads overflow block %d", next)
			assert.Falsef(t, node.IsEmpty(), "linked overflow block %d is not empty", next)

			total += node.ValidCount()
			length++
			next = node.NextOverflowBlock
		}

		assert.Equalf(t, b.OverflowBucketCount, length, "chain length of bucket %d", bucketNo)
		assert.Equalf(t, b.TotalElementCount, total, "element count of bucket %d", bucketNo)
	}
}

func TestNewBucketHeap(t *testing.T) {
	t.Run("creates a new bucket heap", func(t *testing.T) {
		// Execute
		bucketHeap, name := newTestBucketHeap(t, false)

		// Check
		assert.Equal(t, int64(4), bucketHeap.GetBlockingFactor(), "bucket blocking factor")
		assert.Equal(t, int64(2), bucketHeap.GetOverflowBlockingFactor(), "overflow blocking factor")
		assert.Zero(t, bucketHeap.GetTotalBuckets(), "no buckets")
		assert.Zero(t, bucketHeap.GetTotalOverflowBlocks(), "no overflow blocks")

		files := []string{name + "-main-data.bin", name + "-main-meta.bin", name + "-ovfl-data.bin", name + "-ovfl-meta.bin"}
		for _, file := range files {
			_, err := os.Stat(file)
			assert.NoErrorf(t, err, "file %s exists", file)
		}

		// Clean up
		assert.NoError(t, bucketHeap.Close(), "closes bucket heap")
		assert.NoError(t, bucketHeap.RemoveFiles(), "removes files")
		for _, file := range files {
			_, err := os.Stat(file)
			assert.Truef(t, os.IsNotExist(err), "file %s removed", file)
		}
	})

	t.Run("fails on bad configuration", func(t *testing.T) {
		dir := t.TempDir()
		tests := []struct {
			name           string
			bucketHeapConf BucketHeapConf
		}{
			{name: "empty name", bucketHeapConf: BucketHeapConf{BucketBlockSize: 256, OverflowBlockSize: 128, RecordType: record.PersonType{}}},
			{name: "no record type", bucketHeapConf: BucketHeapConf{Name: filepath.Join(dir, "a"), BucketBlockSize: 256, OverflowBlockSize: 128}},
			{name: "bucket too small", bucketHeapConf: BucketHeapConf{Name: filepath.Join(dir, "b"), BucketBlockSize: 64, OverflowBlockSize: 128, RecordType: record.PersonType{}}},
			{name: "overflow block too small", bucketHeapConf: BucketHeapConf{Name: filepath.Join(dir, "c"), BucketBlockSize: 256, OverflowBlockSize: 60, RecordType: record.PersonType{}}},
		}

		for _, test := range tests {
			// Execute
			bucketHeap, err := NewBucketHeap(test.bucketHeapConf)

			// Check
			assert.Errorf(t, err, "%s fails", test.name)
			assert.Nilf(t, bucketHeap, "%s returns no bucket heap", test.name)
		}
	})

	t.Run("fails to open missing files", func(t *testing.T) {
		// Execute
		_, err := NewBucketHeapFromExistingFiles(BucketHeapConf{Name: filepath.Join(t.TempDir(), "none"), RecordType: record.PersonType{}})

		// Check
		assert.True(t, errors.Is(err, bherrors.MissingMetadata{}), "missing metadata")
	})
}

func TestBucketHeap_InsertIntoBucket(t *testing.T) {
	t.Run("fills bucket before overflow", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()

		// Execute and check
		for i := 0; i < 4; i++ {
			blockNo, inOverflow, err := bucketHeap.InsertIntoBucket(3, person(i))
			require.NoError(t, err, "inserts in bucket")
			assert.Equal(t, int64(3), blockNo, "stored in bucket")
			assert.False(t, inOverflow, "not in overflow")
		}
		assert.Equal(t, int64(4), bucketHeap.GetTotalBuckets(), "buckets 0 through 3 exist")
		assert.Zero(t, bucketHeap.GetTotalOverflowBlocks(), "no overflow yet")

		expected := []int64{0, 0, 1, 1, 2}
		for i, exp := range expected {
			blockNo, inOverflow, err := bucketHeap.InsertIntoBucket(3, person(4+i))
			require.NoError(t, err, "inserts in overflow")
			assert.Equalf(t, exp, blockNo, "overflow block for record %d", 4+i)
			assert.True(t, inOverflow, "in overflow")
		}

		b, err := bucketHeap.getBucket(3)
		require.NoError(t, err, "reads bucket")
		assert.Equal(t, int64(0), b.FirstOverflowBlock, "chain starts at block 0")
		assert.Equal(t, int64(3), b.OverflowBucketCount, "three blocks in chain")
		assert.Equal(t, int64(9), b.TotalElementCount, "nine elements")
		assert.Equal(t, []int64{0, 1, 2}, chainOf(t, bucketHeap, 3), "chain order")

		for n := int64(0); n < 3; n++ {
			b, err = bucketHeap.getBucket(n)
			require.NoError(t, err, "reads empty bucket")
			assert.True(t, b.IsEmpty(), "created bucket is empty")
			assert.Equal(t, NoBlock, b.FirstOverflowBlock, "created bucket has no overflow")
		}
		checkBuckets(t, bucketHeap)
	})

	t.Run("fills holes in chain before growing it", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 9)
		deleted, err := bucketHeap.Delete(0, partial(4))
		require.NoError(t, err, "deletes record in first overflow block")
		require.True(t, deleted, "deleted")

		// Execute
		blockNo, inOverflow, err := bucketHeap.InsertIntoBucket(0, person(100))

		// Check
		assert.NoError(t, err, "inserts")
		assert.True(t, inOverflow, "in overflow")
		assert.Equal(t, int64(0), blockNo, "first non full block in chain")
		assert.Equal(t, []int64{0, 1, 2}, chainOf(t, bucketHeap, 0), "chain unchanged")
		checkBuckets(t, bucketHeap)
	})

	t.Run("chains of different buckets interleave in overflow file", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()

		// Execute
		insertPersons(t, bucketHeap, 0, 0, 6)
		insertPersons(t, bucketHeap, 1, 6, 12)
		insertPersons(t, bucketHeap, 0, 12, 14)

		// Check
		assert.Equal(t, []int64{0, 2}, chainOf(t, bucketHeap, 0), "chain of bucket 0")
		assert.Equal(t, []int64{1}, chainOf(t, bucketHeap, 1), "chain of bucket 1")
		checkBuckets(t, bucketHeap)
	})

	t.Run("fails on bad input", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()

		// Execute
		_, _, err1 := bucketHeap.InsertIntoBucket(-1, person(1))
		_, _, err2 := bucketHeap.InsertIntoBucket(0, nil)

		// Check
		assert.Error(t, err1, "negative bucket")
		assert.Error(t, err2, "nil record")
		assert.Zero(t, bucketHeap.GetTotalBuckets(), "nothing created")
	})
}

func TestBucketHeap_Get(t *testing.T) {
	// Prepare
	bucketHeap, _ := newTestBucketHeap(t, false)
	defer func() { _ = bucketHeap.Close() }()
	insertPersons(t, bucketHeap, 1, 0, 9)

	t.Run("gets records from bucket and chain", func(t *testing.T) {
		for i := 0; i < 9; i++ {
			// Execute
			r, err := bucketHeap.Get(1, partial(i))

			// Check
			require.NoErrorf(t, err, "gets record %d", i)
			assert.Equalf(t, person(i), r, "record %d matches", i)
		}
	})

	t.Run("reports missing records", func(t *testing.T) {
		tests := []struct {
			name     string
			bucketNo int64
			seq      int
		}{
			{name: "not stored", bucketNo: 1, seq: 9},
			{name: "other bucket", bucketNo: 0, seq: 1},
			{name: "beyond last bucket", bucketNo: 2, seq: 1},
			{name: "negative bucket", bucketNo: -1, seq: 1},
		}

		for _, test := range tests {
			// Execute
			r, err := bucketHeap.Get(test.bucketNo, partial(test.seq))

			// Check
			assert.Nilf(t, r, "%s returns no record", test.name)
			assert.Truef(t, errors.Is(err, bherrors.NoRecordFound{}), "%s is NoRecordFound", test.name)
		}
	})

	t.Run("gets record by id longer than stored field", func(t *testing.T) {
		// Prepare
		p := &record.Person{BirthDate: 19700101, Name: "Anna", Surname: "Olsson", ID: "ABCDEFGHIJKLMNOPQRST"}
		_, _, err := bucketHeap.InsertIntoBucket(3, p)
		require.NoError(t, err, "inserts")

		// Execute
		r, err := bucketHeap.Get(3, &record.Person{ID: p.ID})
		require.NoError(t, err, "gets record")
		deleted, dErr := bucketHeap.Delete(3, &record.Person{ID: p.ID})

		// Check
		assert.Equal(t, "ABCDEFGHIJKLMNO", r.(*record.Person).ID, "stored id")
		assert.NoError(t, dErr, "deletes")
		assert.True(t, deleted, "deleted by full id")
	})
}

func TestBucketHeap_Delete(t *testing.T) {
	t.Run("deletes from bucket", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 3)

		// Execute
		deleted, err := bucketHeap.Delete(0, partial(1))

		// Check
		assert.NoError(t, err, "deletes")
		assert.True(t, deleted, "deleted")
		records, err := bucketHeap.CollectAllRecords(0)
		assert.NoError(t, err, "collects records")
		assert.Equal(t, []string{person(0).ID, person(2).ID}, ids(records), "remaining records")
		checkBuckets(t, bucketHeap)
	})

	t.Run("unlinks emptied chain head", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 7)

		// Execute
		for _, seq := range []int{4, 5} {
			deleted, err := bucketHeap.Delete(0, partial(seq))
			require.NoError(t, err, "deletes")
			require.True(t, deleted, "deleted")
		}

		// Check
		b, err := bucketHeap.getBucket(0)
		require.NoError(t, err, "reads bucket")
		assert.Equal(t, int64(1), b.FirstOverflowBlock, "second block is new head")
		assert.Equal(t, int64(1), b.OverflowBucketCount, "one block left")
		assert.Equal(t, int64(5), b.TotalElementCount, "five elements left")
		assert.Equal(t, []int64{0}, bucketHeap.GetEmptyOverflowBlocks(), "unlinked block tracked as empty")
		r, err := bucketHeap.Get(0, partial(6))
		assert.NoError(t, err, "record after unlinked block still found")
		assert.Equal(t, person(6), r, "correct record")
		checkBuckets(t, bucketHeap)
	})

	t.Run("unlinks emptied block in middle and end of chain", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 9)

		// Execute
		for _, seq := range []int{6, 7} {
			deleted, err := bucketHeap.Delete(0, partial(seq))
			require.NoError(t, err, "deletes")
			require.True(t, deleted, "deleted")
		}

		// Check
		assert.Equal(t, []int64{0, 2}, chainOf(t, bucketHeap, 0), "middle block unlinked")
		records, err := bucketHeap.CollectAllRecords(0)
		assert.NoError(t, err, "collects records")
		assert.Equal(t,
			[]string{person(0).ID, person(1).ID, person(2).ID, person(3).ID, person(4).ID, person(5).ID, person(8).ID},
			ids(records), "order preserved")
		checkBuckets(t, bucketHeap)

		// Execute
		deleted, err := bucketHeap.Delete(0, partial(8))

		// Check
		assert.NoError(t, err, "deletes")
		assert.True(t, deleted, "deleted")
		assert.Equal(t, []int64{0}, chainOf(t, bucketHeap, 0), "last block unlinked")
		node, err := bucketHeap.getOverflowBlock(0)
		require.NoError(t, err, "reads overflow block")
		assert.Equal(t, NoBlock, node.NextOverflowBlock, "chain terminated")
		assert.Equal(t, []int64{1, 2}, bucketHeap.GetEmptyOverflowBlocks(), "unlinked blocks tracked as empty")
		checkBuckets(t, bucketHeap)
	})

	t.Run("reports missing records", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 6)

		// Execute
		deleted1, err1 := bucketHeap.Delete(0, partial(10))
		deleted2, err2 := bucketHeap.Delete(5, partial(1))
		deleted3, err3 := bucketHeap.Delete(-1, partial(1))

		// Check
		assert.NoError(t, err1, "no error for missing record")
		assert.False(t, deleted1, "missing record not deleted")
		assert.NoError(t, err2, "no error beyond last bucket")
		assert.False(t, deleted2, "nothing deleted beyond last bucket")
		assert.NoError(t, err3, "no error for negative bucket")
		assert.False(t, deleted3, "nothing deleted for negative bucket")
		checkBuckets(t, bucketHeap)
	})
}

func TestBucketHeap_OverflowReuse(t *testing.T) {
	tests := []struct {
		name          string
		reuse         bool
		expectedBlock int64
		expectedTotal int64
	}{
		{name: "always appends without reuse", reuse: false, expectedBlock: 2, expectedTotal: 3},
		{name: "takes lowest empty block with reuse", reuse: true, expectedBlock: 0, expectedTotal: 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Prepare
			bucketHeap, _ := newTestBucketHeap(t, test.reuse)
			defer func() { _ = bucketHeap.Close() }()
			insertPersons(t, bucketHeap, 0, 0, 7)
			for _, seq := range []int{4, 5} {
				_, err := bucketHeap.Delete(0, partial(seq))
				require.NoError(t, err, "deletes")
			}
			insertPersons(t, bucketHeap, 1, 10, 14)

			// Execute
			blockNo, inOverflow, err := bucketHeap.InsertIntoBucket(1, person(14))

			// Check
			assert.NoError(t, err, "inserts")
			assert.True(t, inOverflow, "in overflow")
			assert.Equal(t, test.expectedBlock, blockNo, "overflow block")
			assert.Equal(t, test.expectedTotal, bucketHeap.GetTotalOverflowBlocks(), "overflow file size")
			assert.Equal(t, []int64{test.expectedBlock}, chainOf(t, bucketHeap, 1), "new chain")
			checkBuckets(t, bucketHeap)
		})
	}
}

func TestBucketHeap_ClearOverflowChain(t *testing.T) {
	t.Run("detaches chain without reuse", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 8)

		// Execute
		err := bucketHeap.ClearOverflowChain(0)

		// Check
		assert.NoError(t, err, "clears chain")
		b, err := bucketHeap.getBucket(0)
		require.NoError(t, err, "reads bucket")
		assert.Equal(t, NoBlock, b.FirstOverflowBlock, "no chain")
		assert.Zero(t, b.OverflowBucketCount, "no chained blocks")
		assert.Equal(t, int64(4), b.TotalElementCount, "only bucket records counted")
		_, err = bucketHeap.Get(0, partial(5))
		assert.True(t, errors.Is(err, bherrors.NoRecordFound{}), "chained record gone")

		node, err := bucketHeap.getOverflowBlock(0)
		require.NoError(t, err, "reads detached block")
		assert.Equal(t, int64(2), node.ValidCount(), "detached block left as is")
		assert.Empty(t, bucketHeap.GetEmptyOverflowBlocks(), "detached blocks not reclaimed")

		blockNo, _, err := bucketHeap.InsertIntoBucket(0, person(20))
		assert.NoError(t, err, "inserts")
		assert.Equal(t, int64(2), blockNo, "new chain appended")
		checkBuckets(t, bucketHeap)
	})

	t.Run("empties chain with reuse", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, true)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 8)

		// Execute
		err := bucketHeap.ClearOverflowChain(0)

		// Check
		assert.NoError(t, err, "clears chain")
		assert.Equal(t, []int64{0, 1}, bucketHeap.GetEmptyOverflowBlocks(), "chain blocks reclaimed")
		node, err := bucketHeap.getOverflowBlock(1)
		require.NoError(t, err, "reads emptied block")
		assert.True(t, node.IsEmpty(), "block emptied")
		assert.Equal(t, NoBlock, node.NextOverflowBlock, "block unlinked")

		blockNo, _, err := bucketHeap.InsertIntoBucket(0, person(20))
		assert.NoError(t, err, "inserts")
		assert.Equal(t, int64(0), blockNo, "reclaimed block reused")
		assert.Equal(t, int64(2), bucketHeap.GetTotalOverflowBlocks(), "overflow file not extended")
		checkBuckets(t, bucketHeap)
	})

	t.Run("ignores bucket without chain", func(t *testing.T) {
		// Prepare
		bucketHeap, _ := newTestBucketHeap(t, false)
		defer func() { _ = bucketHeap.Close() }()
		insertPersons(t, bucketHeap, 0, 0, 2)

		// Execute
		err1 := bucketHeap.ClearOverflowChain(0)
		err2 := bucketHeap.ClearOverflowChain(7)

		// Check
		assert.NoError(t, err1, "no chain")
		assert.NoError(t, err2, "no bucket")
		records, err := bucketHeap.CollectAllRecords(0)
		assert.NoError(t, err, "collects records")
		assert.Len(t, records, 2, "bucket records kept")
	})
}

func TestBucketHeap_ExtendToBucketCount(t *testing.T) {
	// Prepare
	bucketHeap, _ := newTestBucketHeap(t, false)
	defer func() { _ = bucketHeap.Close() }()

	// Execute
	err := bucketHeap.ExtendToBucketCount(10)
	require.NoError(t, err, "extends")
	err = bucketHeap.ExtendToBucketCount(5)
	require.NoError(t, err, "does not shrink")

	// Check
	assert.Equal(t, int64(10), bucketHeap.GetTotalBuckets(), "ten buckets")
	records, err := bucketHeap.CollectAllRecords(9)
	assert.NoError(t, err, "collects records")
	assert.Empty(t, records, "empty bucket")
	records, err = bucketHeap.CollectAllRecords(10)
	assert.NoError(t, err, "collects records beyond last bucket")
	assert.Empty(t, records, "no bucket")
	checkBuckets(t, bucketHeap)
}

func TestBucketHeap_Reopen(t *testing.T) {
	// Prepare
	bucketHeap, name := newTestBucketHeap(t, false)
	insertPersons(t, bucketHeap, 2, 0, 9)
	insertPersons(t, bucketHeap, 0, 9, 15)
	_, err := bucketHeap.Delete(2, partial(6))
	require.NoError(t, err, "deletes")
	_, err = bucketHeap.Delete(2, partial(7))
	require.NoError(t, err, "deletes")
	require.NoError(t, bucketHeap.Close(), "closes")

	// Execute
	bucketHeap, err = NewBucketHeapFromExistingFiles(BucketHeapConf{Name: name, RecordType: record.PersonType{}})
	require.NoError(t, err, "reopens")
	defer func() { _ = bucketHeap.Close() }()

	// Check
	assert.Equal(t, int64(4), bucketHeap.GetBlockingFactor(), "bucket size restored")
	assert.Equal(t, int64(2), bucketHeap.GetOverflowBlockingFactor(), "overflow block size restored")
	assert.Equal(t, int64(3), bucketHeap.GetTotalBuckets(), "buckets restored")
	assert.Equal(t, int64(4), bucketHeap.GetTotalOverflowBlocks(), "overflow blocks restored")
	assert.Equal(t, []int64{1}, bucketHeap.GetEmptyOverflowBlocks(), "overflow free list restored")
	assert.Equal(t, []int64{0, 2}, chainOf(t, bucketHeap, 2), "chain of bucket 2 restored")
	assert.Equal(t, []int64{3}, chainOf(t, bucketHeap, 0), "chain of bucket 0 restored")

	for i := 0; i < 15; i++ {
		bucketNo := int64(0)
		if i < 9 {
			bucketNo = 2
		}
		r, err := bucketHeap.Get(bucketNo, partial(i))
		if i == 6 || i == 7 {
			assert.Truef(t, errors.Is(err, bherrors.NoRecordFound{}), "deleted record %d gone", i)
			continue
		}
		assert.NoErrorf(t, err, "gets record %d", i)
		assert.Equalf(t, person(i), r, "record %d matches", i)
	}
	checkBuckets(t, bucketHeap)
}

func TestBucketHeap_Stat(t *testing.T) {
	// Prepare
	bucketHeap, _ := newTestBucketHeap(t, false)
	defer func() { _ = bucketHeap.Close() }()
	insertPersons(t, bucketHeap, 0, 0, 7)
	insertPersons(t, bucketHeap, 2, 7, 9)

	// Execute
	withDist, err1 := bucketHeap.Stat(true)
	noDist, err2 := bucketHeap.Stat(false)

	// Check
	require.NoError(t, err1, "stat with distribution")
	require.NoError(t, err2, "stat without distribution")
	assert.Equal(t, int64(9), withDist.Records, "records")
	assert.Equal(t, int64(6), withDist.BucketRecords, "bucket records")
	assert.Equal(t, int64(3), withDist.OverflowRecords, "overflow records")
	assert.Equal(t, int64(3), withDist.Buckets, "buckets")
	assert.Equal(t, int64(2), withDist.OverflowBlocks, "overflow blocks")
	assert.Equal(t, int64(2), withDist.LinkedOverflowBlocks, "linked overflow blocks")
	assert.Equal(t, []int64{7, 0, 2}, withDist.BucketDistribution, "distribution")
	assert.Nil(t, noDist.BucketDistribution, "no distribution")
	assert.Equal(t, withDist.Records, noDist.Records, "same records")
}

func TestBucketHeap_Metrics(t *testing.T) {
	newConf := func(registry *prometheus.Registry, name string) BucketHeapConf {
		return BucketHeapConf{
			Name:              name,
			BucketBlockSize:   testBucketBlockSize,
			OverflowBlockSize: testOverflowBlockSize,
			RecordType:        record.PersonType{},
			Registerer:        registry,
		}
	}

	t.Run("counts operations per file", func(t *testing.T) {
		// Prepare
		registry := prometheus.NewRegistry()
		bucketHeap, err := NewBucketHeap(newConf(registry, filepath.Join(t.TempDir(), "test")))
		require.NoError(t, err, "creates bucket heap")
		defer func() { _ = bucketHeap.Close() }()

		// Execute
		insertPersons(t, bucketHeap, 0, 0, 7)
		for _, seq := range []int{0, 4, 5} {
			_, err = bucketHeap.Delete(0, partial(seq))
			require.NoError(t, err, "deletes")
		}

		// Check
		assert.Equal(t, float64(4), testutil.ToFloat64(bucketHeap.main.Metrics().RecordsInserted), "records inserted in buckets")
		assert.Equal(t, float64(3), testutil.ToFloat64(bucketHeap.overflow.Metrics().RecordsInserted), "records inserted in overflow")
		assert.Equal(t, float64(1), testutil.ToFloat64(bucketHeap.main.Metrics().RecordsDeleted), "records deleted in buckets")
		assert.Equal(t, float64(2), testutil.ToFloat64(bucketHeap.overflow.Metrics().RecordsDeleted), "records deleted in overflow")
		assert.Equal(t, float64(2), testutil.ToFloat64(bucketHeap.overflow.Metrics().OverflowAppended), "overflow blocks appended")
		assert.Equal(t, float64(1), testutil.ToFloat64(bucketHeap.overflow.Metrics().OverflowUnlinked), "overflow blocks unlinked")
		assert.Equal(t, float64(2), testutil.ToFloat64(bucketHeap.overflow.Metrics().Blocks), "overflow blocks")

		families, err := registry.Gather()
		assert.NoError(t, err, "gathers metrics")
		assert.NotEmpty(t, families, "metrics registered")
	})

	t.Run("reopens on the same registry after close", func(t *testing.T) {
		// Prepare
		registry := prometheus.NewRegistry()
		name := filepath.Join(t.TempDir(), "test")
		bucketHeap, err := NewBucketHeap(newConf(registry, name))
		require.NoError(t, err, "creates bucket heap")
		insertPersons(t, bucketHeap, 0, 0, 7)
		require.NoError(t, bucketHeap.Close(), "closes bucket heap")
		count, err := testutil.GatherAndCount(registry)
		require.NoError(t, err, "gathers metrics")
		require.Zero(t, count, "close unregisters metrics")

		// Execute
		bucketHeap, err = NewBucketHeapFromExistingFiles(newConf(registry, name))

		// Check
		require.NoError(t, err, "reopens bucket heap")
		assert.Equal(t, float64(2), testutil.ToFloat64(bucketHeap.overflow.Metrics().Blocks), "overflow blocks gauge restored")
		r, err := bucketHeap.Get(0, partial(6))
		assert.NoError(t, err, "gets record after reopen")
		assert.Equal(t, person(6), r, "correct record")

		// Clean up
		assert.NoError(t, bucketHeap.Close(), "closes bucket heap")
	})

	t.Run("retries on the same registry after failed setup", func(t *testing.T) {
		// Prepare
		registry := prometheus.NewRegistry()
		name := filepath.Join(t.TempDir(), "test")
		badConf := newConf(registry, name)
		badConf.OverflowBlockSize = 10
		_, err := NewBucketHeap(badConf)
		require.Error(t, err, "overflow block too small")
		_, err = NewBucketHeapFromExistingFiles(newConf(registry, filepath.Join(t.TempDir(), "none")))
		require.Error(t, err, "no files to open")
		count, err := testutil.GatherAndCount(registry)
		require.NoError(t, err, "gathers metrics")
		require.Zero(t, count, "failed setups leave no metrics")

		// Execute
		bucketHeap, err := NewBucketHeap(newConf(registry, name))

		// Check
		assert.NoError(t, err, "creates bucket heap")
		assert.NotNil(t, bucketHeap, "bucket heap returned")

		// Clean up
		if bucketHeap != nil {
			assert.NoError(t, bucketHeap.Close(), "closes bucket heap")
		}
	})
}

func TestBucketHeap_RandomOperations(t *testing.T) {
	for _, reuse := range []bool{false, true} {
		t.Run(map[bool]string{false: "without reuse", true: "with reuse"}[reuse], func(t *testing.T) {
			// Prepare
			bucketHeap, _ := newTestBucketHeap(t, reuse)
			defer func() { _ = bucketHeap.Close() }()

			const buckets = 8
			rnd := rand.New(rand.NewSource(42))
			shadow := make([]map[string]*record.Person, buckets)
			shadowIDs := make([][]string, buckets)
			for i := range shadow {
				shadow[i] = make(map[string]*record.Person)
			}

			// Execute
			seq := 0
			for op := 0; op < 4000; op++ {
				bucketNo := int64(rnd.Intn(buckets))
				bucketShadow := shadow[bucketNo]

				if len(bucketShadow) == 0 || rnd.Intn(100) < 55 {
					p := record.Generate(rnd, seq)
					seq++
					_, _, err := bucketHeap.InsertIntoBucket(bucketNo, p)
					require.NoError(t, err, "inserts")
					bucketShadow[p.ID] = p
					shadowIDs[bucketNo] = append(shadowIDs[bucketNo], p.ID)
				} else {
					bucketIDs := shadowIDs[bucketNo]
					i := rnd.Intn(len(bucketIDs))
					id := bucketIDs[i]
					deleted, err := bucketHeap.Delete(bucketNo, &record.Person{ID: id})
					require.NoError(t, err, "deletes")
					require.Truef(t, deleted, "deletes %s from bucket %d", id, bucketNo)
					delete(bucketShadow, id)
					bucketIDs[i] = bucketIDs[len(bucketIDs)-1]
					shadowIDs[bucketNo] = bucketIDs[:len(bucketIDs)-1]
				}

				if op%500 == 0 {
					checkBuckets(t, bucketHeap)
				}
			}

			// Check
			checkBuckets(t, bucketHeap)
			var total int64
			for bucketNo := int64(0); bucketNo < bucketHeap.GetTotalBuckets(); bucketNo++ {
				records, err := bucketHeap.CollectAllRecords(bucketNo)
				require.NoError(t, err, "collects records")
				assert.Lenf(t, records, len(shadow[bucketNo]), "record count of bucket %d", bucketNo)
				for _, r := range records {
					p := r.(*record.Person)
					assert.Equalf(t, shadow[bucketNo][p.ID], p, "record %s in bucket %d", p.ID, bucketNo)
				}
				total += int64(len(records))
			}

			stat, err := bucketHeap.Stat(false)
			require.NoError(t, err, "stat")
			assert.Equal(t, total, stat.Records, "stat agrees with records")
			if reuse {
				assert.LessOrEqual(t, stat.OverflowBlocks, stat.LinkedOverflowBlocks+int64(len(bucketHeap.GetEmptyOverflowBlocks())), "no leaked overflow blocks")
			}
		})
	}
}
