package diskio

import (
	"sync"

	log "github.com/fclairamb/go-log"
	"github.com/fclairamb/go-log/noop"
)

var (
	mu        sync.RWMutex
	deviceMap = make(map[uint8]BlockDevice)
	logger    log.Logger = noop.NewNoOpLogger()
)

// SetLogger sets the logger used by the drive level functions.
func SetLogger(l log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// RegisterBlockDevice associates a BlockDevice with a drive number.
func RegisterBlockDevice(pdrv uint8, dev BlockDevice) {
	mu.Lock()
	defer mu.Unlock()
	deviceMap[pdrv] = dev
}

func UnregisterBlockDevice(pdrv uint8) {
	mu.Lock()
	defer mu.Unlock()
	delete(deviceMap, pdrv)
}

func lookup(pdrv uint8) (BlockDevice, log.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	bd, ok := deviceMap[pdrv]
	return bd, logger.With("pdrv", pdrv), ok
}

// DiskStatus reports the state of drive pdrv.
func DiskStatus(pdrv uint8) Status {
	bd, _, ok := lookup(pdrv)
	if !ok {
		return StatusNoInit | StatusNoDisk
	}
	if err := bd.Status(); err != nil {
		return StatusNoInit
	}
	return 0
}

// DiskInitialize prepares drive pdrv and reports its state.
func DiskInitialize(pdrv uint8) Status {
	bd, l, ok := lookup(pdrv)
	if !ok {
		return StatusNoInit | StatusNoDisk
	}
	if err := bd.Initialize(); err != nil {
		l.Warn("diskInitialize error", "err", err)
		return StatusNoInit
	}
	return 0
}

// DiskRead reads count sectors starting at sector into buff.
func DiskRead(pdrv uint8, buff []byte, sector uint64, count uint32) Result {
	bd, l, ok := lookup(pdrv)
	if !ok {
		return ResultNotReady
	}
	if err := bd.ReadSectors(sector, count, buff); err != nil {
		l.Error("diskRead error", "sector", sector, "count", count, "err", err)
		return resultOf(err)
	}
	return ResultOK
}

// DiskWrite writes count sectors from buff starting at sector.
func DiskWrite(pdrv uint8, buff []byte, sector uint64, count uint32) Result {
	bd, l, ok := lookup(pdrv)
	if !ok {
		return ResultNotReady
	}
	if err := bd.WriteSectors(sector, count, buff); err != nil {
		l.Error("diskWrite error", "sector", sector, "count", count, "err", err)
		return resultOf(err)
	}
	return ResultOK
}

// DiskIoctl runs a control query against drive pdrv. Devices that are not
// a Controller are answered from their BlockDevice getters.
func DiskIoctl(pdrv uint8, cmd Command, arg any) Result {
	bd, l, ok := lookup(pdrv)
	if !ok {
		return ResultNotReady
	}
	if c, ok := bd.(Controller); ok {
		return resultOf(c.Ioctl(cmd, arg))
	}

	var err error
	switch cmd {
	case CtrlSync:
	case GetSectorCount:
		err = storeUint(arg, bd.GetSectorCount())
	case GetSectorSize:
		err = storeUint(arg, bd.GetSectorSize())
	case GetBlockSize:
		var size uint64 = 1 // unknown erase size
		if b, ok := bd.(interface{ GetBlockSize() uint64 }); ok {
			size = b.GetBlockSize()
		}
		err = storeUint(arg, size)
	default:
		l.Warn("unhandled disk_ioctl", "cmd", uint8(cmd))
		return ResultParameterError
	}
	return resultOf(err)
}
