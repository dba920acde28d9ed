package msc

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/ardnew/softgadget/pkg"
)

// MmapStorage implements Storage by memory-mapping a backing file. The
// file size must be a non-zero multiple of the block size; a trailing
// partial block is ignored.
type MmapStorage struct {
	path      string
	file      *os.File
	data      mmap.MMap
	blockSize uint32
	readOnly  bool
	removable bool
	mutex     sync.RWMutex
}

// NewMmapStorage maps the file at path. If readOnly is true the file is
// opened and mapped read-only.
func NewMmapStorage(path string, blockSize uint32, readOnly, removable bool) (*MmapStorage, error) {
	flags, prot := os.O_RDWR, mmap.RDWR
	if readOnly {
		flags, prot = os.O_RDONLY, mmap.RDONLY
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backing file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.Size() < int64(blockSize) {
		f.Close()
		return nil, fmt.Errorf("%w: backing file %s is smaller than one %d-byte block",
			pkg.ErrInvalidConfig, path, blockSize)
	}

	data, err := mmap.Map(f, prot, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	pkg.LogDebug(pkg.ComponentFunction, "backing file mapped",
		"path", path,
		"size", len(data),
		"readOnly", readOnly)

	return &MmapStorage{
		path:      path,
		file:      f,
		data:      data,
		blockSize: blockSize,
		readOnly:  readOnly,
		removable: removable,
	}, nil
}

// Path returns the backing file path.
func (s *MmapStorage) Path() string {
	return s.path
}

// BlockSize returns the block size.
func (s *MmapStorage) BlockSize() uint32 {
	return s.blockSize
}

// BlockCount returns the number of whole blocks in the mapping.
func (s *MmapStorage) BlockCount() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return uint64(len(s.data)) / uint64(s.blockSize)
}

// span validates a block range. Must be called with the mutex held.
func (s *MmapStorage) span(lba uint64, blocks uint32, buf []byte) (uint64, uint64, error) {
	if s.data == nil {
		return 0, 0, io.EOF
	}
	return blockSpan(uint64(len(s.data)), s.blockSize, lba, blocks, buf)
}

// Read copies blocks from the mapping into buf.
func (s *MmapStorage) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	offset, length, err := s.span(lba, blocks, buf)
	if err != nil {
		return 0, err
	}
	copy(buf, s.data[offset:offset+length])
	return blocks, nil
}

// Write copies blocks from buf into the mapping.
func (s *MmapStorage) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.readOnly {
		return 0, os.ErrPermission
	}
	offset, length, err := s.span(lba, blocks, buf)
	if err != nil {
		return 0, err
	}
	copy(s.data[offset:offset+length], buf)
	return blocks, nil
}

// Sync flushes the mapping to the backing file.
func (s *MmapStorage) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.readOnly || s.data == nil {
		return nil
	}
	return s.data.Flush()
}

// IsReadOnly returns whether the storage is read-only.
func (s *MmapStorage) IsReadOnly() bool {
	return s.readOnly
}

// IsRemovable returns whether the medium is removable.
func (s *MmapStorage) IsRemovable() bool {
	return s.removable
}

// IsPresent returns true while the file is mapped.
func (s *MmapStorage) IsPresent() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data != nil
}

// Eject unmaps the file if the medium is removable.
func (s *MmapStorage) Eject() error {
	if !s.removable {
		return os.ErrPermission
	}
	return s.Close()
}

// Close flushes, unmaps and closes the backing file.
func (s *MmapStorage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var err error
	if s.data != nil {
		if !s.readOnly {
			if e := s.data.Flush(); e != nil {
				err = e
			}
		}
		if e := s.data.Unmap(); e != nil {
			err = e
		}
		s.data = nil
	}
	if s.file != nil {
		if e := s.file.Close(); e != nil {
			err = e
		}
		s.file = nil
	}
	return err
}
