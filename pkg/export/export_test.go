package export

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OffBroadway/flashdisk/pkg/diskio"
	"github.com/OffBroadway/flashdisk/pkg/flash"
)

const (
	sectorSize  = 512
	blockSize   = 4096
	sectorCount = 200
	volumeSize  = sectorCount * sectorSize
)

func newTestFs(t *testing.T) (*VolumeFs, *diskio.Translator) {
	t.Helper()

	mem, err := flash.NewMemory(32*blockSize, blockSize)
	require.NoError(t, err)
	geo, err := diskio.NewGeometry(sectorSize, sectorCount, blockSize)
	require.NoError(t, err)
	tr, err := diskio.NewTranslator(mem, geo, diskio.WithCoalescedWrites())
	require.NoError(t, err)

	return NewVolumeFs(NewVolume(tr, nil), "disk.img"), tr
}

func TestVolumeUnalignedWrite(t *testing.T) {
	fs, tr := newTestFs(t)
	vol := fs.Volume()
	assert.Equal(t, int64(volumeSize), vol.Size())

	data := []byte("hello across a sector boundary")
	off := int64(3*sectorSize - 10)
	n, err := vol.WriteAt(data, off)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = vol.ReadAt(got, off)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, got)

	// neighbours of the written bytes are still erased
	sectors := make([]byte, 2*sectorSize)
	require.NoError(t, tr.ReadSectors(2, 2, sectors))
	assert.Equal(t, bytes.Repeat([]byte{flash.Erased}, sectorSize-10), sectors[:sectorSize-10])
	assert.Equal(t, data, sectors[sectorSize-10:sectorSize-10+len(data)])
	assert.Equal(t, flash.Erased, sectors[len(sectors)-1])
}

func TestVolumeLargeWriteSpansChunks(t *testing.T) {
	fs, _ := newTestFs(t)
	vol := fs.Volume()

	data := make([]byte, (chunkSectors+10)*sectorSize+123)
	for i := range data {
		data[i] = byte(i * 7)
	}
	_, err := vol.WriteAt(data, 17)
	require.NoError(t, err)

	got := make([]byte, len(data))
	_, err = vol.ReadAt(got, 17)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestVolumeBounds(t *testing.T) {
	fs, _ := newTestFs(t)
	vol := fs.Volume()

	n, err := vol.WriteAt(make([]byte, 100), volumeSize-40)
	assert.ErrorIs(t, err, ErrVolumeFull)
	assert.Equal(t, 40, n)

	_, err = vol.WriteAt([]byte{1}, volumeSize)
	assert.ErrorIs(t, err, ErrVolumeFull)

	n, err = vol.ReadAt(make([]byte, 100), volumeSize-40)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 40, n)

	_, err = vol.ReadAt(make([]byte, 1), volumeSize)
	assert.Equal(t, io.EOF, err)

	_, err = vol.ReadAt(make([]byte, 1), -1)
	assert.ErrorIs(t, err, diskio.ErrParameter)
}

func TestVolumeFsEntries(t *testing.T) {
	fs, _ := newTestFs(t)

	info, err := fs.Stat("/disk.img")
	require.NoError(t, err)
	assert.Equal(t, int64(volumeSize), info.Size())
	assert.False(t, info.IsDir())

	info, err = fs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = fs.Stat("/other")
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir, err := fs.Open("/")
	require.NoError(t, err)
	names, err := dir.Readdirnames(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"disk.img"}, names)
	require.NoError(t, dir.Close())

	_, err = fs.Create("/new.txt")
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.ErrorIs(t, fs.Mkdir("/d", 0o755), os.ErrPermission)
	assert.ErrorIs(t, fs.Remove("/disk.img"), os.ErrPermission)
	assert.ErrorIs(t, fs.Rename("/disk.img", "/x"), os.ErrPermission)
	assert.NoError(t, fs.MkdirAll("/", 0o755))
}

func TestVolumeFileStreaming(t *testing.T) {
	fs, _ := newTestFs(t)

	f, err := fs.Create("disk.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(0))

	_, err = f.Seek(1000, io.SeekStart)
	require.NoError(t, err)
	_, err = f.WriteString("streamed")
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
	_, err = f.Write([]byte{1})
	assert.ErrorIs(t, err, os.ErrClosed)

	f, err = fs.Open("/disk.img")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte{1})
	assert.ErrorIs(t, err, os.ErrPermission, "opened read only")

	pos, err := f.Seek(-int64(volumeSize)+1000, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pos)

	got := make([]byte, 8)
	_, err = io.ReadFull(f, got)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(got))

	all, err := io.ReadAll(io.NewSectionReader(f, 0, volumeSize))
	require.NoError(t, err)
	assert.Len(t, all, volumeSize)
}

func TestVolumeFsWithAferoHelpers(t *testing.T) {
	fs, _ := newTestFs(t)

	payload := bytes.Repeat([]byte("flash"), 1000)
	f, err := fs.OpenFile("/disk.img", os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := afero.ReadFile(fs, "/disk.img")
	require.NoError(t, err)
	require.Len(t, got, volumeSize)
	assert.Equal(t, payload, got[:len(payload)])
}
