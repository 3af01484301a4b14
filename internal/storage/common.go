package storage

import (
	"fmt"
	"github.com/gostonefire/bucketheap/internal/conf"
	"io"
	"os"
)

// File - Random access byte file used by heaps and block managers.
// Any failure is returned to the caller as is, nothing is retried.
type File struct {
	name string
	file *os.File
}

// GetDataFileName - Return the data file name given the heap name
func GetDataFileName(name string) (fileName string) {
	return fmt.Sprintf("%s-data.bin", name)
}

// GetMetaFileName - Return the metadata file name given the heap name
func GetMetaFileName(name string) (fileName string) {
	return fmt.Sprintf("%s-meta.bin", name)
}

// CreateFile - Creates a new file, or truncates an existing one to zero length
func CreateFile(fileName string) (file *File, err error) {
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_RDWR, conf.FileMode)
	if err != nil {
		err = fmt.Errorf("error while open/create new file %s: %w", fileName, err)
		return
	}

	file = &File{name: fileName, file: f}

	return
}

// OpenFile - Opens an existing file for reading and writing
func OpenFile(fileName string) (file *File, err error) {
	f, err := os.OpenFile(fileName, os.O_RDWR, conf.FileMode)
	if err != nil {
		err = fmt.Errorf("unable to open existing file %s: %w", fileName, err)
		return
	}

	file = &File{name: fileName, file: f}

	return
}

// OpenFileReadOnly - Opens an existing file for reading only
func OpenFileReadOnly(fileName string) (file *File, err error) {
	f, err := os.Open(fileName)
	if err != nil {
		err = fmt.Errorf("unable to open existing file %s: %w", fileName, err)
		return
	}

	file = &File{name: fileName, file: f}

	return
}

// Name - Returns the file name
func (F *File) Name() string {
	return F.name
}

// Seek - Positions the file at offset from start of file
func (F *File) Seek(offset int64) (err error) {
	_, err = F.file.Seek(offset, io.SeekStart)
	if err != nil {
		err = fmt.Errorf("error while seeking to %d in %s: %w", offset, F.name, err)
	}

	return
}

// Read - Reads exactly n bytes from current position, a short read is an error
func (F *File) Read(n int64) (buf []byte, err error) {
	buf = make([]byte, n)
	_, err = io.ReadFull(F.file, buf)
	if err != nil {
		buf = nil
		err = fmt.Errorf("error while reading %d bytes from %s: %w", n, F.name, err)
	}

	return
}

// Write - Writes buf at current position
func (F *File) Write(buf []byte) (err error) {
	_, err = F.file.Write(buf)
	if err != nil {
		err = fmt.Errorf("error while writing %d bytes to %s: %w", len(buf), F.name, err)
	}

	return
}

// ReadAt - Seeks to offset and reads exactly n bytes
func (F *File) ReadAt(offset, n int64) (buf []byte, err error) {
	err = F.Seek(offset)
	if err != nil {
		return
	}

	buf, err = F.Read(n)

	return
}

// WriteAt - Seeks to offset and writes buf
func (F *File) WriteAt(offset int64, buf []byte) (err error) {
	err = F.Seek(offset)
	if err != nil {
		return
	}

	err = F.Write(buf)

	return
}

// Size - Returns the current size of the file
func (F *File) Size() (size int64, err error) {
	stat, err := F.file.Stat()
	if err != nil {
		err = fmt.Errorf("error while getting size of %s: %w", F.name, err)
		return
	}

	size = stat.Size()

	return
}

// Truncate - Changes the size of the file, zero filling if it grows
func (F *File) Truncate(size int64) (err error) {
	err = F.file.Truncate(size)
	if err != nil {
		err = fmt.Errorf("error while truncate %s to length %d: %w", F.name, size, err)
	}

	return
}

// Close - Syncs and closes the file
func (F *File) Close() (err error) {
	if F.file == nil {
		return
	}

	_ = F.file.Sync()
	err = F.file.Close()
	F.file = nil
	if err != nil {
		err = fmt.Errorf("error while closing %s: %w", F.name, err)
	}

	return
}

// RemoveFile - Removes a file if it exists and is not a directory, make sure to close it first
func RemoveFile(fileName string) (err error) {
	// Only try to remove if exists, and are not by accident directories (could happen when testing things out)
	if stat, ok := os.Stat(fileName); ok == nil {
		if !stat.IsDir() {
			err = os.Remove(fileName)
			if err != nil {
				err = fmt.Errorf("error while removing file %s: %w", fileName, err)
				return
			}
		}
	}

	return
}
