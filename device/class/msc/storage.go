package msc

import (
	"io"
	"os"
	"sync"
)

// Storage is the block device behind a logical unit.
type Storage interface {
	BlockSize() uint32
	BlockCount() uint64

	// Read copies blocks starting at lba into buf and returns the number
	// of blocks read.
	Read(lba uint64, blocks uint32, buf []byte) (uint32, error)

	// Write copies blocks from buf starting at lba and returns the number
	// of blocks written.
	Write(lba uint64, blocks uint32, buf []byte) (uint32, error)

	Sync() error
	IsReadOnly() bool
	IsRemovable() bool

	// IsPresent reports whether a medium is loaded.
	IsPresent() bool

	// Eject unloads a removable medium.
	Eject() error

	Close() error
}

// blockSpan returns the byte range of blocks at lba on a medium of size
// bytes. A trailing partial block is not addressable.
func blockSpan(size uint64, blockSize uint32, lba uint64, blocks uint32, buf []byte) (uint64, uint64, error) {
	offset := lba * uint64(blockSize)
	length := uint64(blocks) * uint64(blockSize)
	if offset+length > size/uint64(blockSize)*uint64(blockSize) {
		return 0, 0, io.EOF
	}
	if uint64(len(buf)) < length {
		return 0, 0, io.ErrShortBuffer
	}
	return offset, length, nil
}

// MemoryStorage is a medium held in memory. Its contents are lost on
// Close.
type MemoryStorage struct {
	data      []byte
	blockSize uint32
	readOnly  bool
	removable bool
	mutex     sync.RWMutex
}

// NewMemoryStorage allocates a medium of size bytes.
func NewMemoryStorage(size uint64, blockSize uint32, readOnly, removable bool) *MemoryStorage {
	return &MemoryStorage{
		data:      make([]byte, size),
		blockSize: blockSize,
		readOnly:  readOnly,
		removable: removable,
	}
}

// NewEmptyStorage creates a removable drive with no medium loaded.
func NewEmptyStorage(blockSize uint32) *MemoryStorage {
	return &MemoryStorage{blockSize: blockSize, removable: true}
}

func (m *MemoryStorage) BlockSize() uint32 {
	return m.blockSize
}

func (m *MemoryStorage) BlockCount() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return uint64(len(m.data)) / uint64(m.blockSize)
}

func (m *MemoryStorage) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	offset, length, err := blockSpan(uint64(len(m.data)), m.blockSize, lba, blocks, buf)
	if err != nil {
		return 0, err
	}
	copy(buf, m.data[offset:offset+length])
	return blocks, nil
}

func (m *MemoryStorage) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.readOnly {
		return 0, os.ErrPermission
	}
	offset, length, err := blockSpan(uint64(len(m.data)), m.blockSize, lba, blocks, buf)
	if err != nil {
		return 0, err
	}
	copy(m.data[offset:offset+length], buf)
	return blocks, nil
}

func (m *MemoryStorage) Sync() error {
	return nil
}

func (m *MemoryStorage) IsReadOnly() bool {
	return m.readOnly
}

func (m *MemoryStorage) IsRemovable() bool {
	return m.removable
}

func (m *MemoryStorage) IsPresent() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.data != nil
}

// Eject drops the medium if it is removable.
func (m *MemoryStorage) Eject() error {
	if !m.removable {
		return os.ErrPermission
	}
	return m.Close()
}

func (m *MemoryStorage) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data = nil
	return nil
}
