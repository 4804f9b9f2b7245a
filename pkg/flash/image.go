package flash

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// assert that Image implements the Device interface
var _ Device = (*Image)(nil)

// Image is a flash device backed by an image file. Erased bytes are stored
// as 0xFF, so a dump of the file is a dump of the chip.
type Image struct {
	mu        sync.Mutex
	file      afero.File
	size      uint32
	blockSize uint32
	blank     []byte
}

// OpenImage opens or creates the image at path on fs. A new or empty file
// is grown to size and erased; an existing file keeps its contents and its
// size must match.
func OpenImage(fs afero.Fs, path string, size, blockSize uint32) (*Image, error) {
	if blockSize == 0 || size == 0 || size%blockSize != 0 {
		return nil, fmt.Errorf("flash: size %d not multiple of erase size %d", size, blockSize)
	}

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash image %q: %w", path, err)
	}

	img := &Image{
		file:      f,
		size:      size,
		blockSize: blockSize,
		blank:     make([]byte, blockSize),
	}
	fillErased(img.blank)

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat flash image %q: %w", path, err)
	}

	switch info.Size() {
	case 0:
		if err := img.Erase(0, size); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("erase flash image %q: %w", path, err)
		}
	case int64(size):
	default:
		_ = f.Close()
		return nil, fmt.Errorf("flash image %q is %d bytes, want %d", path, info.Size(), size)
	}

	return img, nil
}

func (img *Image) SizeBytes() uint32       { return img.size }
func (img *Image) EraseBlockBytes() uint32 { return img.blockSize }

func (img *Image) ReadAt(p []byte, off uint32) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.file == nil {
		return 0, ErrClosed
	}
	p, err := clip(p, off, img.size)
	if err != nil {
		return 0, err
	}
	n, err := img.file.ReadAt(p, int64(off))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(p)) {
		return n, fmt.Errorf("flash read at %d: %w", off, err)
	}
	return n, nil
}

func (img *Image) WriteAt(p []byte, off uint32) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.file == nil {
		return 0, ErrClosed
	}
	p, err := clip(p, off, img.size)
	if err != nil {
		return 0, err
	}

	prev := make([]byte, len(p))
	if _, err := img.file.ReadAt(prev, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	if i := programmable(prev, p); i >= 0 {
		return 0, fmt.Errorf("flash write at %d: %w", int(off)+i, ErrRequiresErase)
	}

	n, err := img.file.WriteAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash write at %d: %w", off, err)
	}
	return n, nil
}

func (img *Image) Erase(off, size uint32) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.file == nil {
		return ErrClosed
	}
	if size == 0 {
		return nil
	}
	if err := checkErase(off, size, img.blockSize, img.size); err != nil {
		return err
	}

	for size > 0 {
		if _, err := img.file.WriteAt(img.blank, int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += img.blockSize
		size -= img.blockSize
	}
	return nil
}

// Status reports whether the backing file is still open.
func (img *Image) Status() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.file == nil {
		return ErrClosed
	}
	return nil
}

// Close should be called when you're done with the Image.
func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.file == nil {
		return nil
	}
	err := img.file.Close()
	img.file = nil
	return err
}
