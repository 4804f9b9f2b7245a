package diskio

import (
	"fmt"
	"io"

	log "github.com/fclairamb/go-log"
	"github.com/fclairamb/go-log/noop"

	"github.com/OffBroadway/flashdisk/pkg/flash"
)

// assert that Translator implements the BlockDevice and Controller interfaces
var (
	_ BlockDevice = (*Translator)(nil)
	_ Controller  = (*Translator)(nil)
)

// Translator lays a sector addressed disk over a flash device. Sector n
// lives at bytes [n*SectorSize, (n+1)*SectorSize) of the flash with no
// header or spare area.
//
// Writes are read-modify-erase-write cycles over the whole erase block that
// holds the sector. The cycle is not atomic: if the program step fails or
// power is lost after the erase, the block is left erased and every sector
// in it is lost, not just the one being written. Layer a journal above the
// translator if that matters.
//
// A Translator holds no state besides its configuration and takes no locks.
// Callers sharing one between goroutines must serialise every call.
type Translator struct {
	dev      flash.Device
	geo      Geometry
	logger   log.Logger
	coalesce bool
}

type Option func(*Translator)

func WithLogger(logger log.Logger) Option {
	return func(t *Translator) {
		t.logger = logger
	}
}

// WithCoalescedWrites makes a multi-sector write run one erase cycle per
// erase block it touches instead of one per sector.
func WithCoalescedWrites() Option {
	return func(t *Translator) {
		t.coalesce = true
	}
}

// NewTranslator checks that geo fits on dev and returns a Translator for it.
func NewTranslator(dev flash.Device, geo Geometry, opts ...Option) (*Translator, error) {
	if err := geo.Fits(dev); err != nil {
		return nil, err
	}

	t := &Translator{
		dev:    dev,
		geo:    geo,
		logger: noop.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Translator) Geometry() Geometry { return t.geo }

func (t *Translator) GetSectorSize() uint64  { return uint64(t.geo.SectorSize()) }
func (t *Translator) GetSectorCount() uint64 { return t.geo.SectorCount() }
func (t *Translator) GetBlockSize() uint64   { return uint64(t.geo.BlockSize()) }

// Initialize has nothing to set up; it reports the same readiness as Status.
func (t *Translator) Initialize() error {
	return t.Status()
}

// Status reports whether the flash is usable with this geometry.
func (t *Translator) Status() error {
	if s, ok := t.dev.(interface{ Status() error }); ok {
		if err := s.Status(); err != nil {
			return fmt.Errorf("flash status: %w: %w", ErrNotReady, err)
		}
	}
	if err := t.geo.Fits(t.dev); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// ReadSectors copies count sectors starting at sector into buff. On error
// the content of buff is undefined.
func (t *Translator) ReadSectors(sector uint64, count uint32, buff []byte) error {
	if err := t.check(sector, count, len(buff)); err != nil {
		return err
	}

	size := uint64(t.geo.SectorSize())
	for i := uint64(0); i < uint64(count); i++ {
		addr := t.geo.Offset(sector + i)
		if err := t.readFull(buff[i*size:(i+1)*size], addr); err != nil {
			return ioError("read sector", sector+i, err)
		}
	}
	return nil
}

// WriteSectors stores count sectors from buff starting at sector. It stops
// at the first failing sector; sectors before it are already written.
func (t *Translator) WriteSectors(sector uint64, count uint32, buff []byte) error {
	if err := t.check(sector, count, len(buff)); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	size := uint64(t.geo.SectorSize())
	scratch := make([]byte, t.geo.BlockSize())

	for i := uint64(0); i < uint64(count); {
		addr := t.geo.Offset(sector + i)

		n := uint64(1)
		if t.coalesce {
			// sectors left in this block, capped by the request
			end := t.geo.BlockStart(addr) + uint64(t.geo.BlockSize())
			n = min((end-addr)/size, uint64(count)-i)
		}

		if err := t.rewrite(scratch, addr, buff[i*size:(i+n)*size]); err != nil {
			return fmt.Errorf("write sector %d: %w", sector+i, err)
		}
		i += n
	}
	return nil
}

// rewrite merges data into the erase block holding addr and reprograms the
// block.
func (t *Translator) rewrite(scratch []byte, addr uint64, data []byte) error {
	blockAddr := t.geo.BlockStart(addr)
	t.logger.Debug("Rewriting block", "block", blockAddr, "addr", addr, "len", len(data))

	if err := t.readFull(scratch, blockAddr); err != nil {
		return ioError("read block", blockAddr, err)
	}

	copy(scratch[addr-blockAddr:], data)

	if err := t.dev.Erase(uint32(blockAddr), t.geo.BlockSize()); err != nil {
		return ioError("erase block", blockAddr, err)
	}

	// The block is blank until the program below completes.
	n, err := t.dev.WriteAt(scratch, uint32(blockAddr))
	if err == nil && n != len(scratch) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.logger.Error("Block left erased", "block", blockAddr, "err", err)
		return ioError("program block", blockAddr, err)
	}
	return nil
}

func (t *Translator) readFull(p []byte, addr uint64) error {
	n, err := t.dev.ReadAt(p, uint32(addr))
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (t *Translator) check(sector uint64, count uint32, buffLen int) error {
	if !t.geo.Contains(sector, count) {
		return fmt.Errorf("sectors [%d, %d) of %d: %w",
			sector, sector+uint64(count), t.geo.SectorCount(), ErrOutOfRange)
	}
	if need := uint64(count) * uint64(t.geo.SectorSize()); uint64(buffLen) < need {
		return fmt.Errorf("buffer too small: need %d bytes, got %d: %w", need, buffLen, ErrParameter)
	}
	return nil
}
