package msc

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softgadget/pkg"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage(4*DefaultBlockSize, DefaultBlockSize, false, false)
	assert.Equal(t, uint64(4), s.BlockCount())
	assert.True(t, s.IsPresent())

	block := make([]byte, DefaultBlockSize)
	block[0] = 0xAA
	n, err := s.Write(3, 1, block)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	out := make([]byte, DefaultBlockSize)
	_, err = s.Read(3, 1, out)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), out[0])

	_, err = s.Read(4, 1, out)
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Read(0, 2, out)
	assert.ErrorIs(t, err, io.ErrShortBuffer)

	assert.ErrorIs(t, s.Eject(), os.ErrPermission)
	assert.True(t, s.IsPresent())
}

func TestMemoryStorage_ReadOnlyRemovable(t *testing.T) {
	s := NewMemoryStorage(2*DefaultBlockSize+100, DefaultBlockSize, true, true)
	assert.Equal(t, uint64(2), s.BlockCount())

	block := make([]byte, DefaultBlockSize)
	_, err := s.Write(0, 1, block)
	assert.ErrorIs(t, err, os.ErrPermission)
	_, err = s.Read(2, 1, block)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Eject())
	assert.False(t, s.IsPresent())
	_, err = s.Read(0, 1, block)
	assert.ErrorIs(t, err, io.EOF)
}

func TestEmptyStorage(t *testing.T) {
	s := NewEmptyStorage(DefaultBlockSize)
	assert.True(t, s.IsRemovable())
	assert.False(t, s.IsPresent())
	assert.Zero(t, s.BlockCount())

	_, err := s.Read(0, 1, make([]byte, DefaultBlockSize))
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, s.Close())
}

func writeImage(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestMmapStorage_ReadWrite(t *testing.T) {
	path := writeImage(t, 8*DefaultBlockSize+100)

	s, err := NewMmapStorage(path, DefaultBlockSize, false, true)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Equal(t, uint64(8), s.BlockCount())

	block := make([]byte, DefaultBlockSize)
	for i := range block {
		block[i] = byte(i)
	}
	_, err = s.Write(7, 1, block)
	require.NoError(t, err)

	_, err = s.Write(8, 1, block)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())
	assert.False(t, s.IsPresent())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, block, raw[7*DefaultBlockSize:8*DefaultBlockSize])
}

func TestMmapStorage_ReadOnly(t *testing.T) {
	path := writeImage(t, 2*DefaultBlockSize)

	s, err := NewMmapStorage(path, DefaultBlockSize, true, false)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write(0, 1, make([]byte, DefaultBlockSize))
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.ErrorIs(t, s.Eject(), os.ErrPermission)

	_, err = s.Read(1, 1, make([]byte, DefaultBlockSize))
	assert.NoError(t, err)
}

func TestMmapStorage_TooSmall(t *testing.T) {
	path := writeImage(t, DefaultBlockSize-1)

	_, err := NewMmapStorage(path, DefaultBlockSize, false, false)
	assert.ErrorIs(t, err, pkg.ErrInvalidConfig)

	_, err = NewMmapStorage(filepath.Join(t.TempDir(), "missing.img"), DefaultBlockSize, false, false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
