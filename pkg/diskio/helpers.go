package diskio

import (
	"errors"
	"fmt"
)

var (
	ErrIO         = errors.New("disk I/O error")
	ErrParameter  = errors.New("invalid parameter")
	ErrOutOfRange = errors.New("sector out of range")
	ErrNotReady   = errors.New("drive not ready")
)

// Result is the outcome of a drive level call, numbered like FatFs DRESULT.
type Result uint8

const (
	ResultOK             Result = 0 /* Successful */
	ResultError          Result = 1 /* R/W Error */
	ResultWriteProtected Result = 2 /* Write Protected */
	ResultNotReady       Result = 3 /* Not Ready */
	ResultParameterError Result = 4 /* Invalid Parameter */
)

func (r Result) Error() string {
	var msg string
	switch r {
	case ResultOK:
		msg = "(0) Successful"
	case ResultError:
		msg = "(1) A hard error occurred in the low level disk I/O layer"
	case ResultWriteProtected:
		msg = "(2) The physical drive is write protected"
	case ResultNotReady:
		msg = "(3) The physical drive cannot work"
	case ResultParameterError:
		msg = "(4) Given parameter is invalid"
	default:
		msg = "unknown disk result"
	}
	return "diskio: " + msg
}

// Err returns nil for ResultOK and r otherwise.
func (r Result) Err() error {
	if r == ResultOK {
		return nil
	}
	return r
}

// Status is a drive status bitmask, numbered like FatFs DSTATUS.
type Status uint8

const (
	StatusNoInit  Status = 0x01 /* Drive not initialized */
	StatusNoDisk  Status = 0x02 /* No medium in the drive */
	StatusProtect Status = 0x04 /* Write protected */
)

func (s Status) Ready() bool { return s&(StatusNoInit|StatusNoDisk) == 0 }

func (s Status) String() string {
	if s == 0 {
		return "ready"
	}
	var out string
	for _, f := range []struct {
		bit  Status
		name string
	}{{StatusNoInit, "noinit"}, {StatusNoDisk, "nodisk"}, {StatusProtect, "protect"}} {
		if s&f.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += f.name
	}
	return out
}

// resultOf maps an error from a BlockDevice onto a Result.
func resultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrParameter), errors.Is(err, ErrOutOfRange):
		return ResultParameterError
	case errors.Is(err, ErrNotReady):
		return ResultNotReady
	default:
		return ResultError
	}
}

// ioError tags a flash failure as ErrIO while keeping the cause reachable.
func ioError(op string, addr uint64, err error) error {
	return fmt.Errorf("%s at %d: %w: %w", op, addr, ErrIO, err)
}
