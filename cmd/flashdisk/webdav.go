package main

import (
	"context"
	"net"
	"net/http"
	"os"

	log "github.com/fclairamb/go-log"
	"github.com/gorilla/handlers"
	"github.com/spf13/afero"
	"golang.org/x/net/webdav"
)

// FS adapts an afero.Fs to webdav.FileSystem.
type FS struct {
	afero.Fs
	logger log.Logger
}

func newFS(fs afero.Fs, logger log.Logger) *FS {
	return &FS{
		Fs:     fs,
		logger: logger,
	}
}

func (f *FS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	f.logger.Debug("webdav Mkdir", "path", name)
	return f.Fs.Mkdir(name, perm)
}

func (f *FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	f.logger.Debug("webdav OpenFile", "path", name, "flag", flag)
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *FS) RemoveAll(ctx context.Context, name string) error {
	f.logger.Debug("webdav RemoveAll", "path", name)
	return f.Fs.RemoveAll(name)
}

func (f *FS) Rename(ctx context.Context, oldName, newName string) error {
	f.logger.Debug("webdav Rename", "old", oldName, "new", newName)
	return f.Fs.Rename(oldName, newName)
}

func (f *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	f.logger.Debug("webdav Stat", "path", name)
	return f.Fs.Stat(name)
}

func newHandler(fs webdav.FileSystem, prefix string, logger log.Logger) http.Handler {
	return &webdav.Handler{
		Prefix:     prefix,
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Warn("webdav request failed", "method", r.Method, "path", r.URL.Path, "err", err)
			}
		},
	}
}

func newWebDAVServer(fs afero.Fs, logger log.Logger) *http.Server {
	h := newHandler(newFS(fs, logger), "/mount", logger)
	return &http.Server{
		Handler: handlers.LoggingHandler(os.Stdout, h),
	}
}

func serveWebDAV(server *http.Server, listener net.Listener) error {
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
