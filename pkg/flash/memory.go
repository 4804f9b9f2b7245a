package flash

import (
	"errors"
	"fmt"
	"sync"
)

// Op identifies a raw flash operation.
type Op uint8

const (
	OpRead Op = iota
	OpErase
	OpProgram
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpErase:
		return "erase"
	case OpProgram:
		return "program"
	default:
		return "invalid/unknown"
	}
}

var ErrInjected = errors.New("injected flash fault")

// Stats counts the operations a Memory device has served.
type Stats struct {
	Reads    int
	Erases   int // erase blocks, not calls
	Programs int
}

// assert that Memory implements the Device interface
var _ Device = (*Memory)(nil)

// Memory is a byte slice backed flash model. It enforces NOR semantics:
// erase sets whole blocks to 0xFF and programming can only clear bits.
type Memory struct {
	mu        sync.Mutex
	data      []byte
	blockSize uint32
	erases    []int
	stats     Stats
	faults    map[Op]int
}

// NewMemory creates an erased device of size bytes. size must be a
// non-zero multiple of blockSize.
func NewMemory(size, blockSize uint32) (*Memory, error) {
	if blockSize == 0 || size == 0 || size%blockSize != 0 {
		return nil, fmt.Errorf("flash: size %d not multiple of erase size %d", size, blockSize)
	}
	m := &Memory{
		data:      make([]byte, size),
		blockSize: blockSize,
		erases:    make([]int, size/blockSize),
		faults:    make(map[Op]int),
	}
	fillErased(m.data)
	return m, nil
}

func (m *Memory) SizeBytes() uint32       { return uint32(len(m.data)) }
func (m *Memory) EraseBlockBytes() uint32 { return m.blockSize }

func (m *Memory) ReadAt(p []byte, off uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(OpRead, off); err != nil {
		return 0, err
	}
	p, err := clip(p, off, uint32(len(m.data)))
	if err != nil {
		return 0, err
	}
	m.stats.Reads++
	return copy(p, m.data[off:]), nil
}

func (m *Memory) WriteAt(p []byte, off uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(OpProgram, off); err != nil {
		return 0, err
	}
	p, err := clip(p, off, uint32(len(m.data)))
	if err != nil {
		return 0, err
	}
	dst := m.data[off : int(off)+len(p)]
	if i := programmable(dst, p); i >= 0 {
		return 0, fmt.Errorf("flash write at %d: %w", int(off)+i, ErrRequiresErase)
	}
	m.stats.Programs++
	return copy(dst, p), nil
}

func (m *Memory) Erase(off, size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size == 0 {
		return nil
	}
	if err := checkErase(off, size, m.blockSize, uint32(len(m.data))); err != nil {
		return err
	}
	if err := m.fault(OpErase, off); err != nil {
		return err
	}
	fillErased(m.data[off : off+size])
	for b := off / m.blockSize; b < (off+size)/m.blockSize; b++ {
		m.erases[b]++
		m.stats.Erases++
	}
	return nil
}

// EraseCount returns how many times erase block index has been erased.
func (m *Memory) EraseCount(index int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erases[index]
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Bytes returns a copy of the whole medium.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// FailAfter makes the op fail with ErrInjected once n more calls of that
// kind have succeeded. The fault fires once. It models an I/O error or a
// power cut at that point of a sequence.
func (m *Memory) FailAfter(op Op, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = n + 1
}

func (m *Memory) fault(op Op, off uint32) error {
	left, ok := m.faults[op]
	if !ok {
		return nil
	}
	left--
	if left > 0 {
		m.faults[op] = left
		return nil
	}
	delete(m.faults, op)
	return fmt.Errorf("flash %s at %d: %w", op, off, ErrInjected)
}
