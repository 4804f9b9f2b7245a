package flash

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBlockSize = 4096
	testSize      = 8 * testBlockSize
)

func devices(t *testing.T) map[string]Device {
	t.Helper()

	mem, err := NewMemory(testSize, testBlockSize)
	require.NoError(t, err)

	img, err := OpenImage(afero.NewMemMapFs(), "/flash.bin", testSize, testBlockSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	mapped, err := OpenMapped(filepath.Join(t.TempDir(), "flash.bin"), testSize, testBlockSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mapped.Close() })

	return map[string]Device{
		"memory": mem,
		"image":  img,
		"mmap":   mapped,
	}
}

func TestDevicesStartErased(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, uint32(testSize), dev.SizeBytes())
			assert.Equal(t, uint32(testBlockSize), dev.EraseBlockBytes())

			buf := make([]byte, testSize)
			n, err := dev.ReadAt(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, testSize, n)
			assert.Equal(t, bytes.Repeat([]byte{Erased}, testSize), buf)
		})
	}
}

func TestDevicesNORSemantics(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xA5}, 16)
			n, err := dev.WriteAt(data, 100)
			require.NoError(t, err)
			assert.Equal(t, len(data), n)

			// clearing more bits is allowed
			_, err = dev.WriteAt(bytes.Repeat([]byte{0x05}, 16), 100)
			require.NoError(t, err)

			// setting bits back needs an erase
			_, err = dev.WriteAt(bytes.Repeat([]byte{0xFF}, 16), 100)
			require.ErrorIs(t, err, ErrRequiresErase)

			require.NoError(t, dev.Erase(0, testBlockSize))
			got := make([]byte, 16)
			_, err = dev.ReadAt(got, 100)
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{Erased}, 16), got)
		})
	}
}

func TestDevicesEraseBounds(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, dev.Erase(1, testBlockSize), ErrUnaligned)
			assert.ErrorIs(t, dev.Erase(0, testBlockSize+1), ErrUnaligned)
			assert.ErrorIs(t, dev.Erase(testSize, testBlockSize), ErrOutOfRange)
			assert.NoError(t, dev.Erase(0, 0))

			_, err := dev.ReadAt(make([]byte, 1), testSize)
			assert.ErrorIs(t, err, ErrOutOfRange)
			_, err = dev.WriteAt(make([]byte, 1), testSize)
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestMemoryCountsAndFaults(t *testing.T) {
	mem, err := NewMemory(testSize, testBlockSize)
	require.NoError(t, err)

	require.NoError(t, mem.Erase(testBlockSize, 2*testBlockSize))
	assert.Equal(t, 0, mem.EraseCount(0))
	assert.Equal(t, 1, mem.EraseCount(1))
	assert.Equal(t, 1, mem.EraseCount(2))
	assert.Equal(t, 2, mem.Stats().Erases)

	mem.FailAfter(OpProgram, 1)
	_, err = mem.WriteAt([]byte{0}, 0)
	require.NoError(t, err)
	_, err = mem.WriteAt([]byte{0}, 1)
	require.ErrorIs(t, err, ErrInjected)
	_, err = mem.WriteAt([]byte{0}, 1)
	require.NoError(t, err, "fault fires once")
	assert.Equal(t, 2, mem.Stats().Programs)
}

func TestNewMemoryRejectsBadGeometry(t *testing.T) {
	_, err := NewMemory(testBlockSize+1, testBlockSize)
	assert.Error(t, err)
	_, err = NewMemory(testSize, 0)
	assert.Error(t, err)
}

func TestImageKeepsContents(t *testing.T) {
	fs := afero.NewMemMapFs()

	img, err := OpenImage(fs, "/flash.bin", testSize, testBlockSize)
	require.NoError(t, err)
	_, err = img.WriteAt([]byte("persisted"), 10)
	require.NoError(t, err)
	require.NoError(t, img.Close())

	_, err = img.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, img.Status(), ErrClosed)

	img, err = OpenImage(fs, "/flash.bin", testSize, testBlockSize)
	require.NoError(t, err)
	defer img.Close()

	got := make([]byte, 9)
	_, err = img.ReadAt(got, 10)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))

	_, err = OpenImage(fs, "/flash.bin", 2*testSize, testBlockSize)
	assert.Error(t, err, "size mismatch")
}

func TestMappedKeepsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")

	m, err := OpenMapped(path, testSize, testBlockSize)
	require.NoError(t, err)
	_, err = m.WriteAt([]byte("mapped"), testBlockSize)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Status(), ErrClosed)

	m, err = OpenMapped(path, testSize, testBlockSize)
	require.NoError(t, err)
	defer m.Close()

	got := make([]byte, 6)
	_, err = m.ReadAt(got, testBlockSize)
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(got))
}

func TestScanBlank(t *testing.T) {
	mem, err := NewMemory(testSize, testBlockSize)
	require.NoError(t, err)

	_, err = mem.WriteAt([]byte{0x00}, 3*testBlockSize+7)
	require.NoError(t, err)

	blank, err := ScanBlank(mem)
	require.NoError(t, err)
	assert.Equal(t, uint(7), blank.Count())
	assert.False(t, blank.Test(3))
	assert.True(t, blank.Test(0))

	require.NoError(t, EraseAll(mem))
	blank, err = ScanBlank(mem)
	require.NoError(t, err)
	assert.Equal(t, uint(8), blank.Count())
	assert.Equal(t, 8, mem.Stats().Erases)
}
