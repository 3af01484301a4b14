package record

import (
	"encoding/binary"
	"fmt"
	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/utils"
	"math/rand"
)

// stringFieldLength - Fixed width of each string field, followed by one length byte
const stringFieldLength = 15

// birthDateLength - Length of the birth date field (YYYYMMDD as big endian int64)
const birthDateLength int64 = 8

// PersonSize - Encoded size of a Person record: 8 byte birth date and three 15+1 byte string fields
const PersonSize = birthDateLength + 3*(stringFieldLength+1)

// Person - Illustrative record type. Only ID takes part in partial equality. String fields are stored in 15 bytes,
// longer values are cut at a rune boundary, so ids equal in their first 15 bytes are the same id.
type Person struct {
	BirthDate int64
	Name      string
	Surname   string
	ID        string
}

// PersonType - The interfaces.RecordType for Person
type PersonType struct{}

// Blank - Returns an empty Person to decode into
func (PersonType) Blank() interfaces.Record {
	return &Person{}
}

// Size - Returns the encoded size of a Person
func (PersonType) Size() int64 {
	return PersonSize
}

// ToBytes - Encodes the Person as birth date, name, surname and id. Strings longer than 15 bytes are truncated.
func (P *Person) ToBytes() (buf []byte, err error) {
	buf = make([]byte, PersonSize)
	binary.BigEndian.PutUint64(buf, uint64(P.BirthDate))

	offset := birthDateLength
	for _, s := range []string{P.Name, P.Surname, P.ID} {
		utils.PutFixedString(buf[offset:], s, stringFieldLength)
		offset += stringFieldLength + 1
	}

	return
}

// FromBytes - Decodes a Person from bytes produced by ToBytes
func (P *Person) FromBytes(buf []byte) (err error) {
	if int64(len(buf)) < PersonSize {
		err = fmt.Errorf("length of data in buf (%d) less than person size (%d)", len(buf), PersonSize)
		return
	}

	P.BirthDate = int64(binary.BigEndian.Uint64(buf))

	offset := birthDateLength
	P.Name = utils.GetFixedString(buf[offset:], stringFieldLength)
	offset += stringFieldLength + 1
	P.Surname = utils.GetFixedString(buf[offset:], stringFieldLength)
	offset += stringFieldLength + 1
	P.ID = utils.GetFixedString(buf[offset:], stringFieldLength)

	return
}

// IsPartialEqual - Two persons are the same record if their ID match
func (P *Person) IsPartialEqual(other interfaces.Record) bool {
	o, ok := other.(*Person)
	if !ok || o == nil {
		return false
	}

	return utils.TruncateFixedString(o.ID, stringFieldLength) == utils.TruncateFixedString(P.ID, stringFieldLength)
}

// String - Human readable form used by the inspection tool
func (P *Person) String() string {
	return fmt.Sprintf("%s %s (%d) id=%s", P.Name, P.Surname, P.BirthDate, P.ID)
}

var firstNames = []string{"Anna", "Erik", "Maja", "Lars", "Sofia", "Nils", "Elsa", "Johan", "Ingrid", "Oskar"}
var lastNames = []string{"Andersson", "Johansson", "Karlsson", "Nilsson", "Eriksson", "Larsson", "Olsson", "Persson"}

// Generate - Returns a pseudo random Person with the id built from seq, so ids are unique per seq
func Generate(rnd *rand.Rand, seq int) *Person {
	year := 1930 + rnd.Intn(90)
	month := 1 + rnd.Intn(12)
	day := 1 + rnd.Intn(28)

	return &Person{
		BirthDate: int64(year*10000 + month*100 + day),
		Name:      firstNames[rnd.Intn(len(firstNames))],
		Surname:   lastNames[rnd.Intn(len(lastNames))],
		ID:        fmt.Sprintf("P%09d", seq),
	}
}
