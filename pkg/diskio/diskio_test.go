package diskio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OffBroadway/flashdisk/pkg/flash"
)

func TestNewGeometry(t *testing.T) {
	geo, err := NewGeometry(512, 3072, 4096)
	require.NoError(t, err)
	assert.Equal(t, DefaultGeometry, geo)
	assert.Equal(t, uint32(8), geo.SectorsPerBlock())
	assert.Equal(t, uint64(3072*512), geo.Capacity())
	assert.Equal(t, uint64(4096), geo.BlockStart(5000))
	assert.Equal(t, uint64(1024), geo.Offset(2))

	_, err = NewGeometry(0, 10, 4096)
	assert.ErrorIs(t, err, ErrParameter)
	_, err = NewGeometry(512, 10, 256)
	assert.ErrorIs(t, err, ErrParameter)
	_, err = NewGeometry(512, 10, 1000)
	assert.ErrorIs(t, err, ErrParameter)
}

func TestZeroGeometry(t *testing.T) {
	var geo Geometry
	assert.Zero(t, geo.SectorsPerBlock())
	assert.Equal(t, uint64(12345), geo.BlockStart(12345))
	assert.Zero(t, geo.Capacity())

	mem, err := flash.NewMemory(4*4096, 4096)
	require.NoError(t, err)
	assert.ErrorIs(t, geo.Fits(mem), ErrParameter)
	_, err = NewTranslator(mem, geo)
	assert.ErrorIs(t, err, ErrParameter)
}

func TestDefaultGeometryFitsTwoMegabytePart(t *testing.T) {
	mem, err := flash.NewMemory(2*1024*1024, 4096)
	require.NoError(t, err)
	require.NoError(t, DefaultGeometry.Fits(mem))
}

func TestIoctlGeometryConsistency(t *testing.T) {
	tr, mem := newTestTranslator(t)

	var sectorSize uint16
	var sectorCount, blockSize uint32
	require.NoError(t, tr.Ioctl(GetSectorSize, &sectorSize))
	require.NoError(t, tr.Ioctl(GetSectorCount, &sectorCount))
	require.NoError(t, tr.Ioctl(GetBlockSize, &blockSize))

	assert.Equal(t, uint16(testSectorSize), sectorSize)
	assert.Equal(t, uint32(testSectorCount), sectorCount)
	assert.Equal(t, uint32(testBlockSize), blockSize)
	assert.Zero(t, blockSize%uint32(sectorSize))
	assert.LessOrEqual(t, uint64(sectorCount)*uint64(sectorSize), uint64(mem.SizeBytes()))

	require.NoError(t, tr.Ioctl(CtrlSync, nil))
}

func TestIoctlArgumentTypes(t *testing.T) {
	tr, _ := newTestTranslator(t)

	var n int
	require.NoError(t, tr.Ioctl(GetBlockSize, &n))
	assert.Equal(t, testBlockSize, n)

	var wide uint64
	require.NoError(t, tr.Ioctl(GetSectorCount, &wide))
	assert.Equal(t, uint64(testSectorCount), wide)

	var s string
	assert.ErrorIs(t, tr.Ioctl(GetSectorSize, &s), ErrParameter)
	assert.ErrorIs(t, tr.Ioctl(GetSectorSize, (*uint32)(nil)), ErrParameter)
	assert.ErrorIs(t, tr.Ioctl(GetSectorSize, uint32(0)), ErrParameter)
}

func TestIoctlNarrowArgumentUntouched(t *testing.T) {
	mem, err := flash.NewMemory(1<<25, 4096)
	require.NoError(t, err)
	geo, err := NewGeometry(512, 1<<16, 4096)
	require.NoError(t, err)
	tr, err := NewTranslator(mem, geo)
	require.NoError(t, err)

	narrow := uint16(7)
	assert.ErrorIs(t, tr.Ioctl(GetSectorCount, &narrow), ErrParameter)
	assert.Equal(t, uint16(7), narrow)
}

func TestIoctlUnrecognized(t *testing.T) {
	rec := newRecordingLogger()
	tr, _ := newTestTranslator(t, WithLogger(rec))

	buf := uint32(0xDEADBEEF)
	err := tr.Ioctl(Command(0xFF), &buf)
	require.ErrorIs(t, err, ErrParameter)
	assert.Equal(t, uint32(0xDEADBEEF), buf)

	lines := rec.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "unhandled disk_ioctl")
	assert.Contains(t, lines[0], "255")
}

func TestDriveRegistry(t *testing.T) {
	tr, mem := newTestTranslator(t)

	RegisterBlockDevice(0, tr)
	defer UnregisterBlockDevice(0)

	assert.Equal(t, Status(0), DiskInitialize(0))
	assert.True(t, DiskStatus(0).Ready())
	assert.False(t, DiskStatus(1).Ready())
	assert.Equal(t, "noinit|nodisk", DiskStatus(1).String())

	data := pattern(0xAA, 2)
	assert.Equal(t, ResultOK, DiskWrite(0, data, 3, 2))
	got := make([]byte, len(data))
	assert.Equal(t, ResultOK, DiskRead(0, got, 3, 2))
	assert.Equal(t, data, got)

	assert.Equal(t, ResultParameterError, DiskRead(0, got, testSectorCount-1, 2))
	assert.Equal(t, ResultNotReady, DiskRead(1, got, 0, 1))

	mem.FailAfter(flash.OpErase, 0)
	assert.Equal(t, ResultError, DiskWrite(0, data, 0, 1))

	var blockSize uint32
	assert.Equal(t, ResultOK, DiskIoctl(0, GetBlockSize, &blockSize))
	assert.Equal(t, uint32(testBlockSize), blockSize)
	assert.Equal(t, ResultParameterError, DiskIoctl(0, Command(0xFF), &blockSize))
	assert.Equal(t, ResultNotReady, DiskIoctl(1, CtrlSync, nil))
}

// plainDevice is a BlockDevice with no control query support.
type plainDevice struct{ *Translator }

func (plainDevice) Ioctl() {}

func TestDiskIoctlFallback(t *testing.T) {
	tr, _ := newTestTranslator(t)
	RegisterBlockDevice(2, plainDevice{tr})
	defer UnregisterBlockDevice(2)

	var size uint16
	assert.Equal(t, ResultOK, DiskIoctl(2, GetSectorSize, &size))
	assert.Equal(t, uint16(testSectorSize), size)

	var blockSize uint64
	assert.Equal(t, ResultOK, DiskIoctl(2, GetBlockSize, &blockSize))
	assert.Equal(t, uint64(testBlockSize), blockSize)

	assert.Equal(t, ResultOK, DiskIoctl(2, CtrlSync, nil))
	assert.Equal(t, ResultParameterError, DiskIoctl(2, Command(9), &blockSize))
}

func TestResultError(t *testing.T) {
	assert.NoError(t, ResultOK.Err())
	assert.EqualError(t, ResultParameterError.Err(), "diskio: (4) Given parameter is invalid")
}
