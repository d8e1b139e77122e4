// Package container implements the single-file binary container that backs
// one partition of one acquisition batch.
//
// A container holds a root metadata record and one or more named datasets.
// Datasets are sequences of fixed-size sample frames that grow along the
// sample axis only; growth is chunked so appends never reallocate
// per sample.
//
// File format (all integers little-endian):
//
//	Header:     8 bytes magic + 4 bytes version + 4 bytes metadata capacity
//	            + 4 bytes dataset slot count + 4 bytes reserved
//	Superblock: 8 bytes allocation tail + 4 bytes dataset count + 4 bytes crc32
//	Metadata:   4 bytes length + 4 bytes crc32 + payload (fixed capacity,
//	            rewritten in place on every committed write)
//	Slots:      fixed 128-byte dataset descriptors
//	Data:       extent directories and data extents, allocated from the tail
//
// Each dataset owns an extent directory (a fixed-capacity table of extent
// offsets) and a chain of equally sized extents of chunkFrames frames each.
// The frame index maps to (extent, offset) by simple division, so a sample
// range read touches only the extents that cover it.
package container

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	rootcfg "github.com/xtxerr/beamstore/config"
	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/flock"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Mode selects how a container is opened.
type Mode int

const (
	// ModeRead opens an existing container read-only.
	ModeRead Mode = iota
	// ModeReadWrite opens an existing container for appending.
	ModeReadWrite
	// ModeCreate creates a new container; the path must not exist.
	ModeCreate
)

const (
	containerMagic   = 0x4254_5343_4f4e_5431 // "BTSCONT1"
	containerVersion = 1

	headerSize     = 24
	superblockOff  = headerSize
	superblockSize = 16
	metaOff        = superblockOff + superblockSize
	metaHeaderSize = 8

	slotSize    = 128
	maxNameLen  = 63
	maxSlotDims = 4

	// defaultDirCapacity bounds the extent directory when the caller does
	// not size it from the roll-over threshold.
	defaultDirCapacity = 4096
)

// Options configures container opening.
type Options struct {
	// UseLock takes an exclusive advisory lock for writable modes. The lock
	// is held for the handle's lifetime and released on Close.
	UseLock bool

	// MetadataCapacity is the byte capacity reserved for the root metadata
	// record. Only honoured by ModeCreate; existing containers keep the
	// capacity they were created with. Default: 8192.
	MetadataCapacity int

	// DatasetSlots is the number of dataset slots reserved by ModeCreate.
	// Default: 8.
	DatasetSlots int
}

// Container is an open handle on a single partition file.
type Container struct {
	f       *os.File
	path    string
	mode    Mode
	lock    *flock.Lock
	closed  bool
	metaCap int
	slotCap int
	tail    int64
	slots   []*slot
}

type slot struct {
	c           *Container
	index       int
	name        string
	dtype       types.DataType
	dims        []int
	frameBytes  int
	chunkFrames int
	samples     uint64
	extDirOff   int64
	extDirCap   int
	extents     []int64
}

// Open opens or creates a container at path.
//
// ModeRead and ModeReadWrite fail with ErrNotFound when the path does not
// exist. Every parse failure closes the file and releases any lock before
// returning, so no handle leaks on any path.
func Open(path string, mode Mode, opts Options) (*Container, error) {
	if opts.MetadataCapacity <= 0 {
		opts.MetadataCapacity = rootcfg.DefaultMetadataCapacity
	}
	if opts.DatasetSlots <= 0 {
		opts.DatasetSlots = rootcfg.DefaultDatasetSlots
	}

	var (
		f   *os.File
		err error
	)
	switch mode {
	case ModeRead:
		f, err = os.Open(path)
	case ModeReadWrite:
		f, err = os.OpenFile(path, os.O_RDWR, 0644)
	case ModeCreate:
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	default:
		return nil, errors.IOf("open %s: unknown mode %d", path, mode)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Notfoundf("container %s", path)
		}
		return nil, errors.IOf("open %s: %v", path, err)
	}

	c := &Container{f: f, path: path, mode: mode}

	if mode != ModeRead && opts.UseLock {
		lock, err := flock.Acquire(f)
		if err != nil {
			f.Close()
			if mode == ModeCreate {
				os.Remove(path)
			}
			return nil, errors.IOf("lock %s: %v", path, err)
		}
		c.lock = lock
	}

	if mode == ModeCreate {
		c.metaCap = opts.MetadataCapacity
		c.slotCap = opts.DatasetSlots
		if err := c.initialize(); err != nil {
			c.Close()
			os.Remove(path)
			return nil, err
		}
		return c, nil
	}

	if err := c.parse(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the container file path.
func (c *Container) Path() string { return c.path }

// Close flushes pending writes, releases the advisory lock and closes the
// file. Close is idempotent.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if c.mode != ModeRead {
		if err := c.f.Sync(); err != nil && firstErr == nil {
			firstErr = errors.IOf("sync %s: %v", c.path, err)
		}
	}
	if c.lock != nil {
		if err := c.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.f.Close(); err != nil && firstErr == nil {
		firstErr = errors.IOf("close %s: %v", c.path, err)
	}
	return firstErr
}

func (c *Container) initialize() error {
	c.tail = c.slotTableOff() + int64(c.slotCap*slotSize)

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(header[0:8], containerMagic)
	binary.LittleEndian.PutUint32(header[8:12], containerVersion)
	binary.LittleEndian.PutUint32(header[12:16], uint32(c.metaCap))
	binary.LittleEndian.PutUint32(header[16:20], uint32(c.slotCap))
	if _, err := c.f.WriteAt(header, 0); err != nil {
		return errors.IOf("write header %s: %v", c.path, err)
	}

	if err := c.writeSuperblock(); err != nil {
		return err
	}

	// Empty metadata region and zeroed slot table.
	zero := make([]byte, metaHeaderSize+c.metaCap+c.slotCap*slotSize)
	if _, err := c.f.WriteAt(zero, metaOff); err != nil {
		return errors.IOf("write regions %s: %v", c.path, err)
	}
	if err := c.f.Truncate(c.tail); err != nil {
		return errors.IOf("truncate %s: %v", c.path, err)
	}
	return nil
}

func (c *Container) parse() error {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(c.f, 0, headerSize), header); err != nil {
		return errors.Integrityf("container %s: short header", c.path)
	}
	if binary.LittleEndian.Uint64(header[0:8]) != containerMagic {
		return errors.Integrityf("container %s: bad magic", c.path)
	}
	if v := binary.LittleEndian.Uint32(header[8:12]); v != containerVersion {
		return errors.Integrityf("container %s: unsupported version %d", c.path, v)
	}
	c.metaCap = int(binary.LittleEndian.Uint32(header[12:16]))
	c.slotCap = int(binary.LittleEndian.Uint32(header[16:20]))
	if c.metaCap <= 0 || c.slotCap <= 0 {
		return errors.Integrityf("container %s: corrupt header", c.path)
	}

	super := make([]byte, superblockSize)
	if _, err := c.f.ReadAt(super, superblockOff); err != nil {
		return errors.Integrityf("container %s: short superblock", c.path)
	}
	if crc32.ChecksumIEEE(super[:12]) != binary.LittleEndian.Uint32(super[12:16]) {
		return errors.Integrityf("container %s: superblock checksum", c.path)
	}
	c.tail = int64(binary.LittleEndian.Uint64(super[0:8]))
	dsCount := int(binary.LittleEndian.Uint32(super[8:12]))
	if dsCount > c.slotCap {
		return errors.Integrityf("container %s: dataset count %d exceeds slots %d", c.path, dsCount, c.slotCap)
	}

	for i := 0; i < dsCount; i++ {
		s, err := c.readSlot(i)
		if err != nil {
			return err
		}
		c.slots = append(c.slots, s)
	}
	return nil
}

func (c *Container) slotTableOff() int64 {
	return metaOff + metaHeaderSize + int64(c.metaCap)
}

func (c *Container) writeSuperblock() error {
	buf := make([]byte, superblockSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(c.tail))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(c.slots)))
	binary.LittleEndian.PutUint32(buf[12:16], crc32.ChecksumIEEE(buf[:12]))
	if _, err := c.f.WriteAt(buf, superblockOff); err != nil {
		return errors.IOf("write superblock %s: %v", c.path, err)
	}
	return nil
}

// WriteMetadata stores the root metadata record payload, replacing any
// previous record. The payload must fit the capacity reserved at creation.
func (c *Container) WriteMetadata(payload []byte) error {
	if c.mode == ModeRead {
		return errors.IOf("container %s: metadata write on read-only handle", c.path)
	}
	if len(payload) > c.metaCap {
		return errors.IOf("container %s: metadata record %d bytes exceeds capacity %d",
			c.path, len(payload), c.metaCap)
	}
	buf := make([]byte, metaHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], crc32.ChecksumIEEE(payload))
	copy(buf[metaHeaderSize:], payload)
	if _, err := c.f.WriteAt(buf, metaOff); err != nil {
		return errors.IOf("write metadata %s: %v", c.path, err)
	}
	return nil
}

// ReadMetadata returns the root metadata record payload. A container that
// never committed a record reports ErrNotFound; a corrupt record reports
// ErrIntegrity.
func (c *Container) ReadMetadata() ([]byte, error) {
	head := make([]byte, metaHeaderSize)
	if _, err := c.f.ReadAt(head, metaOff); err != nil {
		return nil, errors.IOf("read metadata %s: %v", c.path, err)
	}
	length := int(binary.LittleEndian.Uint32(head[0:4]))
	if length == 0 {
		return nil, errors.Notfoundf("container %s: no metadata record", c.path)
	}
	if length > c.metaCap {
		return nil, errors.Integrityf("container %s: metadata length %d exceeds capacity", c.path, length)
	}
	payload := make([]byte, length)
	if _, err := c.f.ReadAt(payload, metaOff+metaHeaderSize); err != nil {
		return nil, errors.IOf("read metadata %s: %v", c.path, err)
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(head[4:8]) {
		return nil, errors.Integrityf("container %s: metadata checksum", c.path)
	}
	return payload, nil
}

// CreateDataset adds a named dataset with the given element type and
// per-sample frame dimensions. chunkFrames is the growth granularity in
// samples; dirCapacity bounds how many extents the dataset may ever own
// (0 selects a default suited to small containers).
func (c *Container) CreateDataset(name string, dt types.DataType, frameDims []int, chunkFrames, dirCapacity int) (*Dataset, error) {
	if c.mode == ModeRead {
		return nil, errors.IOf("container %s: dataset create on read-only handle", c.path)
	}
	if len(name) == 0 || len(name) > maxNameLen {
		return nil, errors.IOf("container %s: dataset name %q out of range", c.path, name)
	}
	if len(frameDims) == 0 || len(frameDims) > maxSlotDims {
		return nil, errors.Shapef("container %s: dataset %s has %d frame dims", c.path, name, len(frameDims))
	}
	if len(c.slots) >= c.slotCap {
		return nil, errors.IOf("container %s: dataset slots exhausted", c.path)
	}
	for _, s := range c.slots {
		if s.name == name {
			return nil, errors.IOf("container %s: dataset %s already exists", c.path, name)
		}
	}
	if chunkFrames <= 0 {
		chunkFrames = rootcfg.DefaultResizeChunk
	}
	if dirCapacity <= 0 {
		dirCapacity = defaultDirCapacity
	}

	frameBytes := dt.Size()
	for _, d := range frameDims {
		if d <= 0 {
			return nil, errors.Shapef("container %s: dataset %s has dim %d", c.path, name, d)
		}
		frameBytes *= d
	}

	s := &slot{
		c:           c,
		index:       len(c.slots),
		name:        name,
		dtype:       dt,
		dims:        append([]int(nil), frameDims...),
		frameBytes:  frameBytes,
		chunkFrames: chunkFrames,
		extDirOff:   c.tail,
		extDirCap:   dirCapacity,
	}

	// Reserve the extent directory. The region is extended by Truncate
	// below, not written: bytes past the old end read as zeros, which is
	// exactly an empty directory.
	c.tail += int64(dirCapacity) * 8

	c.slots = append(c.slots, s)
	if err := c.writeSlot(s); err != nil {
		return nil, err
	}
	if err := c.writeSuperblock(); err != nil {
		return nil, err
	}
	if err := c.f.Truncate(c.tail); err != nil {
		return nil, errors.IOf("truncate %s: %v", c.path, err)
	}
	return &Dataset{s: s}, nil
}

// DataBytes returns the committed frame bytes summed over all datasets.
// Reserved directory and extent capacity does not count.
func (c *Container) DataBytes() int64 {
	var n int64
	for _, s := range c.slots {
		n += int64(s.samples) * int64(s.frameBytes)
	}
	return n
}

// Dataset returns an existing dataset by name.
func (c *Container) Dataset(name string) (*Dataset, error) {
	for _, s := range c.slots {
		if s.name == name {
			return &Dataset{s: s}, nil
		}
	}
	return nil, errors.Notfoundf("container %s: dataset %s", c.path, name)
}

// Datasets returns the names of all datasets in creation order.
func (c *Container) Datasets() []string {
	names := make([]string, len(c.slots))
	for i, s := range c.slots {
		names[i] = s.name
	}
	return names
}

func (c *Container) writeSlot(s *slot) error {
	buf := make([]byte, slotSize)
	buf[0] = byte(len(s.name))
	copy(buf[1:1+maxNameLen], s.name)
	binary.LittleEndian.PutUint16(buf[64:66], uint16(s.dtype))
	buf[66] = byte(len(s.dims))
	for i, d := range s.dims {
		binary.LittleEndian.PutUint32(buf[68+4*i:], uint32(d))
	}
	binary.LittleEndian.PutUint32(buf[84:88], uint32(s.frameBytes))
	binary.LittleEndian.PutUint32(buf[88:92], uint32(s.chunkFrames))
	binary.LittleEndian.PutUint64(buf[92:100], s.samples)
	binary.LittleEndian.PutUint64(buf[100:108], uint64(s.extDirOff))
	binary.LittleEndian.PutUint32(buf[108:112], uint32(s.extDirCap))
	binary.LittleEndian.PutUint32(buf[112:116], uint32(len(s.extents)))
	binary.LittleEndian.PutUint32(buf[116:120], crc32.ChecksumIEEE(buf[:116]))

	off := c.slotTableOff() + int64(s.index*slotSize)
	if _, err := c.f.WriteAt(buf, off); err != nil {
		return errors.IOf("write slot %s/%s: %v", c.path, s.name, err)
	}
	return nil
}

func (c *Container) readSlot(i int) (*slot, error) {
	buf := make([]byte, slotSize)
	off := c.slotTableOff() + int64(i*slotSize)
	if _, err := c.f.ReadAt(buf, off); err != nil {
		return nil, errors.Integrityf("container %s: short slot %d", c.path, i)
	}
	if crc32.ChecksumIEEE(buf[:116]) != binary.LittleEndian.Uint32(buf[116:120]) {
		return nil, errors.Integrityf("container %s: slot %d checksum", c.path, i)
	}

	nameLen := int(buf[0])
	if nameLen == 0 || nameLen > maxNameLen {
		return nil, errors.Integrityf("container %s: slot %d name length %d", c.path, i, nameLen)
	}
	s := &slot{
		c:           c,
		index:       i,
		name:        string(buf[1 : 1+nameLen]),
		dtype:       types.DataType(binary.LittleEndian.Uint16(buf[64:66])),
		frameBytes:  int(binary.LittleEndian.Uint32(buf[84:88])),
		chunkFrames: int(binary.LittleEndian.Uint32(buf[88:92])),
		samples:     binary.LittleEndian.Uint64(buf[92:100]),
		extDirOff:   int64(binary.LittleEndian.Uint64(buf[100:108])),
		extDirCap:   int(binary.LittleEndian.Uint32(buf[108:112])),
	}
	ndim := int(buf[66])
	if ndim == 0 || ndim > maxSlotDims {
		return nil, errors.Integrityf("container %s: slot %d has %d dims", c.path, i, ndim)
	}
	for d := 0; d < ndim; d++ {
		s.dims = append(s.dims, int(binary.LittleEndian.Uint32(buf[68+4*d:])))
	}

	extCount := int(binary.LittleEndian.Uint32(buf[112:116]))
	if extCount > s.extDirCap {
		return nil, errors.Integrityf("container %s: slot %d extent count %d exceeds directory %d",
			c.path, i, extCount, s.extDirCap)
	}
	if extCount > 0 {
		dir := make([]byte, extCount*8)
		if _, err := c.f.ReadAt(dir, s.extDirOff); err != nil {
			return nil, errors.Integrityf("container %s: slot %d short extent directory", c.path, i)
		}
		for e := 0; e < extCount; e++ {
			s.extents = append(s.extents, int64(binary.LittleEndian.Uint64(dir[e*8:])))
		}
	}
	return s, nil
}
