package flash

import (
	"errors"
	"fmt"
)

// Device provides raw access to a NOR style flash medium.
//
// It is intentionally low-level: byte addresses and erase blocks only.
// WriteAt programs bytes and may only clear bits; the target region must
// have been erased since it was last programmed.
type Device interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Erased is the value every byte holds after an erase.
const Erased byte = 0xFF

var (
	ErrRequiresErase = errors.New("flash write requires erase")
	ErrUnaligned     = errors.New("flash erase not block aligned")
	ErrOutOfRange    = errors.New("flash address out of range")
	ErrClosed        = errors.New("flash is closed")
)

// checkErase validates an erase request against the device geometry.
func checkErase(off, size, blockSize, total uint32) error {
	if blockSize == 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrUnaligned)
	}
	if off%blockSize != 0 || size%blockSize != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrUnaligned)
	}
	if uint64(off)+uint64(size) > uint64(total) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrOutOfRange)
	}
	return nil
}

// clip trims p so that it ends at the device boundary.
func clip(p []byte, off, total uint32) ([]byte, error) {
	if off >= total {
		return nil, fmt.Errorf("flash access at %d: %w", off, ErrOutOfRange)
	}
	if maxN := int(total - off); len(p) > maxN {
		p = p[:maxN]
	}
	return p, nil
}

// programmable reports the first index at which next sets a bit that prev
// has cleared, or -1 if next can be programmed over prev.
func programmable(prev, next []byte) int {
	for i := range next {
		if prev[i]&next[i] != next[i] {
			return i
		}
	}
	return -1
}

func fillErased(b []byte) {
	for i := range b {
		b[i] = Erased
	}
}
