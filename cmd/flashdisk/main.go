package main

import (
	"fmt"
	"os"

	log "github.com/fclairamb/go-log"
	adapter "github.com/fclairamb/go-log/logrus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/OffBroadway/flashdisk/internal/config"
	"github.com/OffBroadway/flashdisk/pkg/diskio"
	"github.com/OffBroadway/flashdisk/pkg/flash"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flashdisk:", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	cfg    config.Config
	logger log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	var (
		backend  string
		path     string
		coalesce bool
		logLevel string
	)

	root := &cobra.Command{
		Use:           "flashdisk",
		Short:         "Sector disk over block-erase flash",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("backend") {
				cfg.Backend = backend
			}
			if flags.Changed("path") {
				cfg.Path = path
			}
			if flags.Changed("coalesce") {
				cfg.Coalesce = coalesce
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logger
			diskio.SetLogger(logger.With("component", "diskio"))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&backend, "backend", config.BackendFile, "flash backend: file, mmap or memory")
	pf.StringVar(&path, "path", "flash.bin", "flash image path")
	pf.BoolVar(&coalesce, "coalesce", false, "one erase cycle per block instead of per sector")
	pf.StringVar(&logLevel, "log-level", "info", "log level")

	root.AddCommand(
		newServeCmd(a),
		newInfoCmd(a),
		newInspectCmd(a),
		newEraseCmd(a),
	)
	return root
}

func newLogger(level string) (log.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	return adapter.NewWrap(l), nil
}

// openFlash opens the configured flash backend. The returned func releases
// it.
func (a *app) openFlash() (flash.Device, func() error, error) {
	cfg := a.cfg
	switch cfg.Backend {
	case config.BackendMemory:
		mem, err := flash.NewMemory(cfg.FlashSize, cfg.EraseSize)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() error { return nil }, nil
	case config.BackendMmap:
		m, err := flash.OpenMapped(cfg.Path, cfg.FlashSize, cfg.EraseSize)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		img, err := flash.OpenImage(afero.NewOsFs(), cfg.Path, cfg.FlashSize, cfg.EraseSize)
		if err != nil {
			return nil, nil, err
		}
		return img, img.Close, nil
	}
}

// openDisk opens the flash and lays the configured geometry over it.
func (a *app) openDisk() (*diskio.Translator, flash.Device, func() error, error) {
	dev, release, err := a.openFlash()
	if err != nil {
		return nil, nil, nil, err
	}

	geo, err := a.cfg.Geometry()
	if err != nil {
		_ = release()
		return nil, nil, nil, err
	}

	opts := []diskio.Option{diskio.WithLogger(a.logger.With("component", "translator"))}
	if a.cfg.Coalesce {
		opts = append(opts, diskio.WithCoalescedWrites())
	}

	tr, err := diskio.NewTranslator(dev, geo, opts...)
	if err != nil {
		_ = release()
		return nil, nil, nil, err
	}
	return tr, dev, release, nil
}
