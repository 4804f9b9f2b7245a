package diskio

import (
	"fmt"
	"math"
)

// Command is a control query code, numbered like FatFs diskio.h.
type Command uint8

const (
	CtrlSync       Command = 0 /* Complete pending write process */
	GetSectorCount Command = 1 /* Get media size */
	GetSectorSize  Command = 2 /* Get sector size */
	GetBlockSize   Command = 3 /* Get erase block size */
)

func (c Command) String() string {
	switch c {
	case CtrlSync:
		return "CTRL_SYNC"
	case GetSectorCount:
		return "GET_SECTOR_COUNT"
	case GetSectorSize:
		return "GET_SECTOR_SIZE"
	case GetBlockSize:
		return "GET_BLOCK_SIZE"
	default:
		return fmt.Sprintf("0x%02x", uint8(c))
	}
}

// Ioctl answers a control query. arg receives the value and must be a
// *uint16, *uint32, *uint64 or *int; it is left untouched on error.
// CtrlSync is a no-op since nothing is cached between calls.
func (t *Translator) Ioctl(cmd Command, arg any) error {
	switch cmd {
	case CtrlSync:
		return nil
	case GetSectorCount:
		return storeUint(arg, t.geo.SectorCount())
	case GetSectorSize:
		return storeUint(arg, uint64(t.geo.SectorSize()))
	case GetBlockSize:
		return storeUint(arg, uint64(t.geo.BlockSize()))
	default:
		t.logger.Warn("unhandled disk_ioctl", "cmd", uint8(cmd))
		return fmt.Errorf("ioctl %s: %w", cmd, ErrParameter)
	}
}

func storeUint(arg any, v uint64) error {
	switch p := arg.(type) {
	case *uint16:
		if p == nil || v > math.MaxUint16 {
			break
		}
		*p = uint16(v)
		return nil
	case *uint32:
		if p == nil || v > math.MaxUint32 {
			break
		}
		*p = uint32(v)
		return nil
	case *uint64:
		if p == nil {
			break
		}
		*p = v
		return nil
	case *int:
		if p == nil || v > math.MaxInt {
			break
		}
		*p = int(v)
		return nil
	}
	return fmt.Errorf("ioctl argument %T cannot hold %d: %w", arg, v, ErrParameter)
}
