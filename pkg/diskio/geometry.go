package diskio

import (
	"fmt"

	"github.com/OffBroadway/flashdisk/pkg/flash"
)

const (
	DefaultSectorSize  = 512
	DefaultSectorCount = 4096 - 1024 // top 512 KiB of a 2 MiB part stays raw
	DefaultBlockSize   = 4096
)

// Geometry describes the logical disk laid over the flash medium. It is
// fixed once built. Only values from NewGeometry or DefaultGeometry are
// valid; the zero Geometry describes an empty disk that fits no flash.
type Geometry struct {
	sectorSize  uint32
	sectorCount uint64
	blockSize   uint32
}

// DefaultGeometry is 3072 sectors of 512 bytes on 4 KiB erase blocks.
var DefaultGeometry = Geometry{
	sectorSize:  DefaultSectorSize,
	sectorCount: DefaultSectorCount,
	blockSize:   DefaultBlockSize,
}

// NewGeometry validates and builds a Geometry. blockSize must be a
// non-zero multiple of sectorSize.
func NewGeometry(sectorSize uint32, sectorCount uint64, blockSize uint32) (Geometry, error) {
	if sectorSize == 0 {
		return Geometry{}, fmt.Errorf("geometry: zero sector size: %w", ErrParameter)
	}
	if blockSize < sectorSize || blockSize%sectorSize != 0 {
		return Geometry{}, fmt.Errorf("geometry: block size %d not a multiple of sector size %d: %w",
			blockSize, sectorSize, ErrParameter)
	}
	return Geometry{
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		blockSize:   blockSize,
	}, nil
}

func (g Geometry) SectorSize() uint32  { return g.sectorSize }
func (g Geometry) SectorCount() uint64 { return g.sectorCount }
func (g Geometry) BlockSize() uint32   { return g.blockSize }

func (g Geometry) SectorsPerBlock() uint32 {
	if g.sectorSize == 0 {
		return 0
	}
	return g.blockSize / g.sectorSize
}

// Capacity is the logical size in bytes.
func (g Geometry) Capacity() uint64 { return g.sectorCount * uint64(g.sectorSize) }

// Offset is the flash byte address of sector.
func (g Geometry) Offset(sector uint64) uint64 { return sector * uint64(g.sectorSize) }

// BlockStart aligns addr down to its erase block.
func (g Geometry) BlockStart(addr uint64) uint64 {
	if g.blockSize == 0 {
		return addr
	}
	return addr - addr%uint64(g.blockSize)
}

// Contains reports whether [sector, sector+count) lies on the disk.
func (g Geometry) Contains(sector uint64, count uint32) bool {
	return sector <= g.sectorCount && uint64(count) <= g.sectorCount-sector
}

// Fits checks that the disk can be laid over dev: the logical capacity must
// not exceed the medium and blocks must be whole device erase blocks.
func (g Geometry) Fits(dev flash.Device) error {
	if g.sectorSize == 0 {
		return fmt.Errorf("geometry: zero sector size: %w", ErrParameter)
	}
	if g.Capacity() > uint64(dev.SizeBytes()) {
		return fmt.Errorf("geometry: capacity %d exceeds flash size %d: %w",
			g.Capacity(), dev.SizeBytes(), ErrParameter)
	}
	erase := dev.EraseBlockBytes()
	if erase == 0 || g.blockSize%erase != 0 {
		return fmt.Errorf("geometry: block size %d not a multiple of flash erase size %d: %w",
			g.blockSize, erase, ErrParameter)
	}
	// the block holding the last sector is rewritten whole
	if g.sectorCount > 0 && g.BlockStart(g.Capacity()-1)+uint64(g.blockSize) > uint64(dev.SizeBytes()) {
		return fmt.Errorf("geometry: last block runs past flash size %d: %w", dev.SizeBytes(), ErrParameter)
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d x %d B sectors, %d B blocks", g.sectorCount, g.sectorSize, g.blockSize)
}
