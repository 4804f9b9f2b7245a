package export

import (
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// VolumeFile is an open handle on the VolumeFs root or on the volume.
type VolumeFile struct {
	fs       *VolumeFs
	dir      bool
	writable bool

	mu     sync.Mutex
	pos    int64
	listed bool
	closed bool
}

var _ afero.File = (*VolumeFile)(nil)

// Name returns the name of the file as presented to OpenFile
func (f *VolumeFile) Name() string {
	if f.dir {
		return "/"
	}
	return f.fs.name
}

func (f *VolumeFile) Stat() (os.FileInfo, error) {
	if f.dir {
		return f.fs.rootInfo(), nil
	}
	return f.fs.volumeInfo(), nil
}

func (f *VolumeFile) Readdir(count int) ([]os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("readdir", false); err != nil {
		return nil, err
	}
	if !f.dir {
		return nil, f.pathErr("readdir", os.ErrInvalid)
	}
	if f.listed && count > 0 {
		return nil, io.EOF
	}
	f.listed = true
	return []os.FileInfo{f.fs.volumeInfo()}, nil
}

func (f *VolumeFile) Readdirnames(n int) (names []string, err error) {
	infos, err := f.Readdir(n)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

// Read from the volume at the current position
func (f *VolumeFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("read", false); err != nil {
		return 0, err
	}
	n, err := f.fs.vol.ReadAt(p, f.pos)
	f.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *VolumeFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("read", false); err != nil {
		return 0, err
	}
	return f.fs.vol.ReadAt(p, off)
}

// Write to the volume at the current position
func (f *VolumeFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("write", true); err != nil {
		return 0, err
	}
	n, err := f.fs.vol.WriteAt(p, f.pos)
	f.pos += int64(n)
	if n > 0 {
		f.fs.touch()
	}
	return n, err
}

func (f *VolumeFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("write", true); err != nil {
		return 0, err
	}
	n, err := f.fs.vol.WriteAt(p, off)
	if n > 0 {
		f.fs.touch()
	}
	return n, err
}

func (f *VolumeFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Seek changes the position of the file
func (f *VolumeFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("seek", false); err != nil {
		return 0, err
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.pos
	case io.SeekEnd:
		offset += f.fs.vol.Size()
	default:
		return 0, f.pathErr("seek", os.ErrInvalid)
	}
	if offset < 0 {
		return 0, f.pathErr("seek", os.ErrInvalid)
	}
	f.pos = offset
	return offset, nil
}

func (f *VolumeFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("sync", false); err != nil {
		return err
	}
	return f.fs.vol.Sync()
}

// Truncate only accepts the current size; the volume cannot grow or shrink.
// Zero is accepted too so uploads that truncate first can proceed.
func (f *VolumeFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("truncate", true); err != nil {
		return err
	}
	if size != 0 && size != f.fs.vol.Size() {
		return f.pathErr("truncate", os.ErrPermission)
	}
	return nil
}

func (f *VolumeFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.pathErr("close", os.ErrClosed)
	}
	f.closed = true
	return nil
}

func (f *VolumeFile) check(op string, write bool) error {
	if f.closed {
		return f.pathErr(op, os.ErrClosed)
	}
	if f.dir && op != "readdir" && op != "seek" && op != "sync" {
		return f.pathErr(op, os.ErrInvalid)
	}
	if write && !f.writable {
		return f.pathErr(op, os.ErrPermission)
	}
	return nil
}

func (f *VolumeFile) pathErr(op string, err error) error {
	return &os.PathError{Op: op, Path: f.Name(), Err: err}
}
