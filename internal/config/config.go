package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/OffBroadway/flashdisk/pkg/diskio"
)

const envPrefix = "FLASHDISK_"

const (
	BackendFile   = "file"
	BackendMmap   = "mmap"
	BackendMemory = "memory"
)

type Config struct {
	Backend   string `env:"BACKEND" envDefault:"file"`
	Path      string `env:"PATH" envDefault:"flash.bin"`
	FlashSize uint32 `env:"FLASH_SIZE" envDefault:"2097152"`
	EraseSize uint32 `env:"ERASE_SIZE" envDefault:"4096"`

	SectorSize  uint32 `env:"SECTOR_SIZE" envDefault:"512"`
	SectorCount uint64 `env:"SECTOR_COUNT" envDefault:"3072"`
	BlockSize   uint32 `env:"BLOCK_SIZE" envDefault:"4096"`
	Coalesce    bool   `env:"COALESCE" envDefault:"false"`

	VolumeName  string `env:"VOLUME_NAME" envDefault:"disk.img"`
	FTPAddr     string `env:"FTP_ADDR" envDefault:"0.0.0.0:7021"`
	FTPUser     string `env:"FTP_USER"`
	FTPPassword string `env:"FTP_PASSWORD"`
	WebDAVAddr  string `env:"WEBDAV_ADDR" envDefault:"0.0.0.0:7080"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Parse reads the configuration from FLASHDISK_* environment variables.
func Parse() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: envPrefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendMmap, BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.EraseSize == 0 || c.FlashSize%c.EraseSize != 0 {
		return fmt.Errorf("config: flash size %d not multiple of erase size %d", c.FlashSize, c.EraseSize)
	}
	_, err := c.Geometry()
	return err
}

func (c Config) Geometry() (diskio.Geometry, error) {
	return diskio.NewGeometry(c.SectorSize, c.SectorCount, c.BlockSize)
}
