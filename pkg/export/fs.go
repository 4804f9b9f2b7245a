package export

import (
	"os"
	"path"
	"sync"
	"time"

	log "github.com/fclairamb/go-log"
	"github.com/spf13/afero"
)

// VolumeFs is a flat afero filesystem whose only entry is the volume image.
// It lets file protocols (FTP, WebDAV) read and write the raw disk.
type VolumeFs struct {
	vol    *Volume
	name   string
	logger log.Logger

	mu      sync.Mutex
	modTime time.Time
}

var _ afero.Fs = (*VolumeFs)(nil)

// NewVolumeFs exposes vol as the file /name.
func NewVolumeFs(vol *Volume, name string) *VolumeFs {
	return &VolumeFs{
		vol:     vol,
		name:    name,
		logger:  vol.logger.With("volume", name),
		modTime: time.Now(),
	}
}

func (f *VolumeFs) Name() string {
	return "VolumeFs"
}

func (f *VolumeFs) Volume() *Volume { return f.vol }

func (f *VolumeFs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (f *VolumeFs) Open(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens the root directory or the volume. O_CREATE and O_TRUNC are
// accepted on the volume since it always exists and has a fixed size.
func (f *VolumeFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f.logger.Debug("OpenFile", "path", name, "flag", flag, "perm", uint32(perm))

	switch f.lookup(name) {
	case entryRoot:
		if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
		}
		return &VolumeFile{fs: f, dir: true}, nil
	case entryVolume:
		if flag&os.O_APPEND != 0 {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
		}
		return &VolumeFile{
			fs:       f,
			writable: flag&(os.O_WRONLY|os.O_RDWR) != 0,
		}, nil
	default:
		if flag&os.O_CREATE != 0 {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
		}
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
}

func (f *VolumeFs) Stat(name string) (os.FileInfo, error) {
	switch f.lookup(name) {
	case entryRoot:
		return f.rootInfo(), nil
	case entryVolume:
		return f.volumeInfo(), nil
	default:
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
}

func (f *VolumeFs) Mkdir(name string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrPermission}
}

func (f *VolumeFs) MkdirAll(path string, perm os.FileMode) error {
	if f.lookup(path) == entryRoot {
		return nil
	}
	return &os.PathError{Op: "mkdir", Path: path, Err: os.ErrPermission}
}

func (f *VolumeFs) Remove(name string) error {
	return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
}

func (f *VolumeFs) RemoveAll(path string) error {
	return &os.PathError{Op: "remove", Path: path, Err: os.ErrPermission}
}

func (f *VolumeFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
}

// Chmod and Chown are accepted and ignored, clients issue them after
// uploads.
func (f *VolumeFs) Chmod(name string, mode os.FileMode) error {
	if f.lookup(name) == entryNone {
		return &os.PathError{Op: "chmod", Path: name, Err: os.ErrNotExist}
	}
	return nil
}

func (f *VolumeFs) Chown(name string, uid, gid int) error {
	if f.lookup(name) == entryNone {
		return &os.PathError{Op: "chown", Path: name, Err: os.ErrNotExist}
	}
	return nil
}

func (f *VolumeFs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	if f.lookup(name) != entryVolume {
		return &os.PathError{Op: "chtimes", Path: name, Err: os.ErrPermission}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modTime = mtime
	return nil
}

func (f *VolumeFs) touch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modTime = time.Now()
}

type entry uint8

const (
	entryNone entry = iota
	entryRoot
	entryVolume
)

func (f *VolumeFs) lookup(name string) entry {
	switch path.Clean("/" + name) {
	case "/":
		return entryRoot
	case "/" + f.name:
		return entryVolume
	default:
		return entryNone
	}
}

func (f *VolumeFs) rootInfo() *FileInfo {
	return &FileInfo{
		name:    "/",
		isDir:   true,
		modTime: time.Unix(0, 0),
		mode:    os.ModeDir | 0o555,
	}
}

func (f *VolumeFs) volumeInfo() *FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &FileInfo{
		name:    f.name,
		size:    f.vol.Size(),
		modTime: f.modTime,
		mode:    0o644,
	}
}

type FileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
	mode    os.FileMode
}

func (fi FileInfo) Name() string       { return fi.name }
func (fi FileInfo) Size() int64        { return fi.size }
func (fi FileInfo) IsDir() bool        { return fi.isDir }
func (fi FileInfo) ModTime() time.Time { return fi.modTime }
func (fi FileInfo) Mode() os.FileMode  { return fi.mode }
func (fi FileInfo) Sys() interface{}   { return nil }

var _ os.FileInfo = FileInfo{}
