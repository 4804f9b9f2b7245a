package diskio

// BlockDevice is the sector interface a filesystem drives.
type BlockDevice interface {
	ReadSectors(sector uint64, count uint32, buff []byte) error
	WriteSectors(sector uint64, count uint32, buff []byte) error
	GetSectorSize() uint64
	GetSectorCount() uint64
	Initialize() error
	Status() error
}

// Controller is implemented by devices that answer control queries
// themselves. DiskIoctl falls back to the BlockDevice getters otherwise.
type Controller interface {
	Ioctl(cmd Command, arg any) error
}
