package flash

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// assert that Mapped implements the Device interface
var _ Device = (*Mapped)(nil)

// Mapped is a flash device backed by a memory mapped image file.
type Mapped struct {
	mu        sync.RWMutex
	file      *os.File
	mmap      mmap.MMap
	blockSize uint32
}

// OpenMapped maps the image at path. A new or empty file is grown to size
// and erased; an existing file must already be size bytes long.
func OpenMapped(path string, size, blockSize uint32) (*Mapped, error) {
	if blockSize == 0 || size == 0 || size%blockSize != 0 {
		return nil, fmt.Errorf("flash: size %d not multiple of erase size %d", size, blockSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error stating file: %w", err)
	}

	fresh := info.Size() == 0
	switch {
	case fresh:
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("error allocating file: %w", err)
		}
	case info.Size() != int64(size):
		_ = f.Close()
		return nil, fmt.Errorf("flash image %q is %d bytes, want %d", path, info.Size(), size)
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error mapping file: %w", err)
	}

	if fresh {
		fillErased(mm)
	}

	return &Mapped{
		file:      f,
		mmap:      mm,
		blockSize: blockSize,
	}, nil
}

func (m *Mapped) SizeBytes() uint32       { return uint32(len(m.mmap)) }
func (m *Mapped) EraseBlockBytes() uint32 { return m.blockSize }

func (m *Mapped) ReadAt(p []byte, off uint32) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.mmap == nil {
		return 0, ErrClosed
	}
	p, err := clip(p, off, uint32(len(m.mmap)))
	if err != nil {
		return 0, err
	}
	return copy(p, m.mmap[off:]), nil
}

func (m *Mapped) WriteAt(p []byte, off uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mmap == nil {
		return 0, ErrClosed
	}
	p, err := clip(p, off, uint32(len(m.mmap)))
	if err != nil {
		return 0, err
	}
	dst := m.mmap[off : int(off)+len(p)]
	if i := programmable(dst, p); i >= 0 {
		return 0, fmt.Errorf("flash write at %d: %w", int(off)+i, ErrRequiresErase)
	}
	return copy(dst, p), nil
}

func (m *Mapped) Erase(off, size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mmap == nil {
		return ErrClosed
	}
	if size == 0 {
		return nil
	}
	if err := checkErase(off, size, m.blockSize, uint32(len(m.mmap))); err != nil {
		return err
	}
	fillErased(m.mmap[off : off+size])
	return nil
}

func (m *Mapped) Status() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mmap == nil {
		return ErrClosed
	}
	return nil
}

func (m *Mapped) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mmap == nil {
		return nil
	}

	flushErr := m.mmap.Flush()
	mmapErr := m.mmap.Unmap()
	closeErr := m.file.Close()
	m.mmap = nil

	return errors.Join(flushErr, mmapErr, closeErr)
}
