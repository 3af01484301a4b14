package storage

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestFileNames(t *testing.T) {
	t.Run("derives data and metadata file names", func(t *testing.T) {
		assert.Equal(t, "test-data.bin", GetDataFileName("test"), "data file name")
		assert.Equal(t, "test-meta.bin", GetMetaFileName("test"), "metadata file name")
	})
}

func TestFile(t *testing.T) {
	t.Run("writes and reads at offsets", func(t *testing.T) {
		// Prepare
		fileName := filepath.Join(t.TempDir(), "testfile")
		file, err := CreateFile(fileName)
		require.NoError(t, err, "creates a file")

		// Execute
		err = file.WriteAt(10, []byte{1, 2, 3, 4})
		require.NoError(t, err, "writes at offset")
		buf, err := file.ReadAt(8, 6)

		// Check
		require.NoError(t, err, "reads at offset")
		assert.Equal(t, []byte{0, 0, 1, 2, 3, 4}, buf, "gap zero filled and data read back")
		size, err := file.Size()
		assert.NoError(t, err, "gets size")
		assert.Equal(t, int64(14), size, "file has correct size")

		// Clean up
		assert.NoError(t, file.Close(), "closes file")
	})

	t.Run("short read is an error", func(t *testing.T) {
		// Prepare
		fileName := filepath.Join(t.TempDir(), "testfile")
		file, err := CreateFile(fileName)
		require.NoError(t, err, "creates a file")
		require.NoError(t, file.Truncate(4), "sets file size")

		// Execute
		buf, err := file.ReadAt(2, 4)

		// Check
		assert.Error(t, err, "reading past end fails")
		assert.Nil(t, buf, "no data returned")

		// Clean up
		assert.NoError(t, file.Close(), "closes file")
	})

	t.Run("open fails on missing file", func(t *testing.T) {
		// Execute
		_, err := OpenFile(filepath.Join(t.TempDir(), "missing"))

		// Check
		assert.Error(t, err, "missing file not opened")
	})

	t.Run("read only file can not be written", func(t *testing.T) {
		// Prepare
		fileName := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(fileName, []byte{1, 2, 3}, 0644), "creates file")

		// Execute
		file, err := OpenFileReadOnly(fileName)
		require.NoError(t, err, "opens file")
		buf, readErr := file.ReadAt(0, 3)
		writeErr := file.WriteAt(0, []byte{9})

		// Check
		assert.NoError(t, readErr, "reads")
		assert.Equal(t, []byte{1, 2, 3}, buf, "content read")
		assert.Error(t, writeErr, "write rejected")

		// Clean up
		assert.NoError(t, file.Close(), "closes file")
	})

	t.Run("removes existing file and ignores missing", func(t *testing.T) {
		// Prepare
		fileName := filepath.Join(t.TempDir(), "testfile")
		file, err := CreateFile(fileName)
		require.NoError(t, err, "creates a file")
		require.NoError(t, file.Close(), "closes file")

		// Execute
		err = RemoveFile(fileName)

		// Check
		assert.NoError(t, err, "removes file")
		_, err = os.Stat(fileName)
		assert.True(t, os.IsNotExist(err), "file removed")
		assert.NoError(t, RemoveFile(fileName), "missing file ignored")
	})
}
