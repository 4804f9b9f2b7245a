package flash

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// ScanBlank reads every erase block of dev and returns the set of block
// indexes whose bytes are all in the erased state.
func ScanBlank(dev Device) (*bitset.BitSet, error) {
	blockSize := dev.EraseBlockBytes()
	if blockSize == 0 {
		return nil, fmt.Errorf("flash scan: %w", ErrUnaligned)
	}

	count := dev.SizeBytes() / blockSize
	blank := bitset.New(uint(count))
	buf := make([]byte, blockSize)

	for i := uint32(0); i < count; i++ {
		n, err := dev.ReadAt(buf, i*blockSize)
		if err != nil {
			return nil, fmt.Errorf("flash scan block %d: %w", i, err)
		}
		if n != len(buf) {
			return nil, fmt.Errorf("flash scan block %d: short read of %d bytes", i, n)
		}
		if isErased(buf) {
			blank.Set(uint(i))
		}
	}
	return blank, nil
}

// EraseAll erases the whole device one block at a time.
func EraseAll(dev Device) error {
	blockSize := dev.EraseBlockBytes()
	if blockSize == 0 {
		return fmt.Errorf("flash erase: %w", ErrUnaligned)
	}
	for off := uint32(0); off < dev.SizeBytes(); off += blockSize {
		if err := dev.Erase(off, blockSize); err != nil {
			return err
		}
	}
	return nil
}

func isErased(b []byte) bool {
	for _, v := range b {
		if v != Erased {
			return false
		}
	}
	return true
}
