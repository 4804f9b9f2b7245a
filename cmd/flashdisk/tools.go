package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OffBroadway/flashdisk/pkg/diskio"
	"github.com/OffBroadway/flashdisk/pkg/flash"
)

const infoDrive = 0

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Report the drive status and geometry",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			tr, _, release, err := a.openDisk()
			if err != nil {
				return err
			}
			defer closeFlash(release, &err)
			return a.info(cmd.OutOrStdout(), tr)
		},
	}
}

// info queries the disk the way a filesystem would at mount time.
func (a *app) info(w io.Writer, dev diskio.BlockDevice) error {
	diskio.RegisterBlockDevice(infoDrive, dev)
	defer diskio.UnregisterBlockDevice(infoDrive)

	if st := diskio.DiskInitialize(infoDrive); !st.Ready() {
		return fmt.Errorf("drive %d: %s", infoDrive, st)
	}

	var (
		sectorCount uint32
		sectorSize  uint16
		blockSize   uint32
	)
	for _, q := range []struct {
		cmd diskio.Command
		arg any
	}{
		{diskio.GetSectorCount, &sectorCount},
		{diskio.GetSectorSize, &sectorSize},
		{diskio.GetBlockSize, &blockSize},
	} {
		if res := diskio.DiskIoctl(infoDrive, q.cmd, q.arg); res != diskio.ResultOK {
			return fmt.Errorf("ioctl %s: %w", q.cmd, res)
		}
	}

	fmt.Fprintf(w, "status:       %s\n", diskio.DiskStatus(infoDrive))
	fmt.Fprintf(w, "sector size:  %d\n", sectorSize)
	fmt.Fprintf(w, "sector count: %d\n", sectorCount)
	fmt.Fprintf(w, "block size:   %d\n", blockSize)
	fmt.Fprintf(w, "capacity:     %d\n", uint64(sectorCount)*uint64(sectorSize))
	return nil
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List the erase blocks of the flash that hold data",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			dev, release, err := a.openFlash()
			if err != nil {
				return err
			}
			defer closeFlash(release, &err)
			return a.inspect(cmd.OutOrStdout(), dev)
		},
	}
}

func (a *app) inspect(w io.Writer, dev flash.Device) error {
	blank, err := flash.ScanBlank(dev)
	if err != nil {
		return err
	}

	total := uint(dev.SizeBytes() / dev.EraseBlockBytes())
	fmt.Fprintf(w, "erase blocks: %d x %d B, %d blank\n", total, dev.EraseBlockBytes(), blank.Count())

	perBlock := uint64(dev.EraseBlockBytes()) / uint64(a.cfg.SectorSize)
	for i := uint(0); i < total; i++ {
		if blank.Test(i) {
			continue
		}
		addr := uint64(i) * uint64(dev.EraseBlockBytes())
		if perBlock == 0 {
			fmt.Fprintf(w, "block %5d  @0x%08x\n", i, addr)
			continue
		}
		first := uint64(i) * perBlock
		fmt.Fprintf(w, "block %5d  @0x%08x  sectors %d-%d\n", i, addr, first, first+perBlock-1)
	}
	return nil
}

func newEraseCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase the whole flash",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !yes {
				return fmt.Errorf("refusing to erase %s without --yes", a.cfg.Path)
			}
			dev, release, err := a.openFlash()
			if err != nil {
				return err
			}
			defer closeFlash(release, &err)

			if err := flash.EraseAll(dev); err != nil {
				return err
			}
			a.logger.Info("Flash erased", "bytes", dev.SizeBytes())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the erase")
	return cmd
}

// closeFlash releases the flash. A failed close is reported through err
// unless err is already set.
func closeFlash(release func() error, err *error) {
	if cerr := release(); cerr != nil && *err == nil {
		*err = fmt.Errorf("closing flash: %w", cerr)
	}
}
