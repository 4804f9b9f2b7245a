package export

import (
	"errors"
	"fmt"
	"io"
	"sync"

	log "github.com/fclairamb/go-log"
	"github.com/fclairamb/go-log/noop"

	"github.com/OffBroadway/flashdisk/pkg/diskio"
)

// sectors moved per device call
const chunkSectors = 64

var ErrVolumeFull = errors.New("volume is full")

// Volume gives byte addressed access to a BlockDevice. Unaligned writes
// are turned into sector read-modify-writes. Every device call is made
// under one mutex, so a Volume can be shared by concurrent clients while
// the device underneath sees a single serial caller.
type Volume struct {
	mu     sync.Mutex
	dev    diskio.BlockDevice
	logger log.Logger

	sectorSize int64
	size       int64
}

func NewVolume(dev diskio.BlockDevice, logger log.Logger) *Volume {
	if logger == nil {
		logger = noop.NewNoOpLogger()
	}
	sectorSize := int64(dev.GetSectorSize())
	return &Volume{
		dev:        dev,
		logger:     logger,
		sectorSize: sectorSize,
		size:       int64(dev.GetSectorCount()) * sectorSize,
	}
}

// Size is the volume size in bytes.
func (v *Volume) Size() int64 { return v.size }

func (v *Volume) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, diskio.ErrParameter)
	}
	if off >= v.size {
		return 0, io.EOF
	}

	var eof error
	if int64(len(p)) > v.size-off {
		p = p[:v.size-off]
		eof = io.EOF
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	buf := make([]byte, chunkSectors*v.sectorSize)
	for n < len(p) {
		pos := off + int64(n)
		first := pos / v.sectorSize
		count := v.span(pos, len(p)-n)
		chunk := buf[:int64(count)*v.sectorSize]

		if err := v.dev.ReadSectors(uint64(first), count, chunk); err != nil {
			return n, err
		}
		n += copy(p[n:], chunk[pos-first*v.sectorSize:])
	}
	return n, eof
}

func (v *Volume) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("write at %d: %w", off, diskio.ErrParameter)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= v.size {
		return 0, ErrVolumeFull
	}

	var full error
	if int64(len(p)) > v.size-off {
		p = p[:v.size-off]
		full = ErrVolumeFull
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	buf := make([]byte, chunkSectors*v.sectorSize)
	for n < len(p) {
		pos := off + int64(n)
		first := pos / v.sectorSize
		count := v.span(pos, len(p)-n)
		chunk := buf[:int64(count)*v.sectorSize]
		head := pos - first*v.sectorSize

		// keep the bytes of partially covered sectors
		if head != 0 || int64(len(p)-n) < int64(len(chunk))-head {
			v.logger.Debug("Partial sector write", "sector", first, "count", count)
			if err := v.dev.ReadSectors(uint64(first), count, chunk); err != nil {
				return n, err
			}
		}

		m := copy(chunk[head:], p[n:])
		if err := v.dev.WriteSectors(uint64(first), count, chunk); err != nil {
			return n, err
		}
		n += m
	}
	return n, full
}

// Sync asks the device to complete pending writes.
func (v *Volume) Sync() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.dev.(diskio.Controller); ok {
		return c.Ioctl(diskio.CtrlSync, nil)
	}
	return nil
}

// span is the number of sectors, at most chunkSectors, that hold the n
// bytes starting at pos.
func (v *Volume) span(pos int64, n int) uint32 {
	first := pos / v.sectorSize
	last := (pos + int64(n) - 1) / v.sectorSize
	return uint32(min(last-first+1, chunkSectors))
}
