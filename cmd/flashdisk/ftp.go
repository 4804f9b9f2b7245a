package main

import (
	"crypto/tls"
	"errors"
	"fmt"

	ftpserver "github.com/fclairamb/ftpserverlib"
	log "github.com/fclairamb/go-log"
	"github.com/spf13/afero"
)

var errBadCredentials = errors.New("bad credentials")

// FTPServer is the ftpserverlib main driver. Every authenticated client
// gets the same FileSystem.
type FTPServer struct {
	Settings   *ftpserver.Settings
	FileSystem afero.Fs
	User       string
	Password   string
	Logger     log.Logger
}

var _ ftpserver.MainDriver = (*FTPServer)(nil)

func (s *FTPServer) GetSettings() (*ftpserver.Settings, error) {
	return s.Settings, nil
}

func (s *FTPServer) GetTLSConfig() (*tls.Config, error) {
	return nil, errors.New("TLS is not configured")
}

func (s *FTPServer) ClientConnected(cc ftpserver.ClientContext) (string, error) {
	s.Logger.Info("Client connected", "clientId", cc.ID(), "remoteAddr", cc.RemoteAddr())
	return "flashdisk FTP", nil
}

func (s *FTPServer) ClientDisconnected(cc ftpserver.ClientContext) {
	s.Logger.Info("Client disconnected", "clientId", cc.ID())
}

// AuthUser accepts anyone when no user is configured.
func (s *FTPServer) AuthUser(cc ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if s.User != "" && (user != s.User || pass != s.Password) {
		s.Logger.Warn("Authentication failed", "user", user)
		return nil, fmt.Errorf("user %q: %w", user, errBadCredentials)
	}
	return s.FileSystem, nil
}
