package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OffBroadway/flashdisk/pkg/export"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Export the disk image over FTP and WebDAV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	tr, _, release, err := a.openDisk()
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			a.logger.Error("Closing flash", "err", err)
		}
	}()

	if err := tr.Initialize(); err != nil {
		return err
	}

	vol := export.NewVolume(tr, a.logger.With("component", "volume"))
	fs := export.NewVolumeFs(vol, a.cfg.VolumeName)

	srv := ftpserver.NewFtpServer(
		&FTPServer{
			Settings: &ftpserver.Settings{
				ListenAddr: a.cfg.FTPAddr,
			},
			FileSystem: fs,
			User:       a.cfg.FTPUser,
			Password:   a.cfg.FTPPassword,
			Logger:     a.logger.With("component", "ftp"),
		},
	)
	srv.Logger = a.logger.With("component", "ftpserver")

	ln, err := net.Listen("tcp", a.cfg.WebDAVAddr)
	if err != nil {
		return err
	}
	// bound before the group starts so a cancelled context always finds a
	// listener to close
	if err := srv.Listen(); err != nil {
		_ = ln.Close()
		return err
	}
	dav := newWebDAVServer(fs, a.logger.With("component", "webdav"))

	a.logger.Info("Serving volume",
		"geometry", tr.Geometry().String(),
		"ftp", srv.Addr(),
		"webdav", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve()
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return serveWebDAV(dav, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Stopping servers")
		if err := srv.Stop(); err != nil {
			a.logger.Warn("Stopping FTP server", "err", err)
		}
		return dav.Shutdown(context.Background())
	})

	return g.Wait()
}
