package interfaces

// Record - Interface that any record type stored in a heap must implement.
// A record always encodes to exactly the same number of bytes, and two records are considered to be the same
// record for lookup and delete purposes if their key fields match (see IsPartialEqual).
type Record interface {
	// ToBytes - Returns the fixed size byte representation of the record
	ToBytes() (buf []byte, err error)
	// FromBytes - Populates the record from a byte representation produced by ToBytes
	FromBytes(buf []byte) (err error)
	// IsPartialEqual - Returns true if the key bearing fields of other matches the ones of the record,
	// other fields are not compared.
	IsPartialEqual(other Record) bool
}

// RecordType - Interface for the factory of a record type. It is given once when a heap is created or opened
// and is then used to create blank records for decoding and to know the fixed size of a record.
type RecordType interface {
	// Blank - Returns a new empty record that can be populated using FromBytes
	Blank() Record
	// Size - Returns the fixed encoded size of a record in bytes
	Size() int64
}
