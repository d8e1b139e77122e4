package container

import (
	"encoding/binary"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Dataset is a named, append-only sequence of fixed-size sample frames
// inside a container.
type Dataset struct {
	s *slot
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.s.name }

// DataType returns the element type.
func (d *Dataset) DataType() types.DataType { return d.s.dtype }

// FrameDims returns the per-sample frame dimensions.
func (d *Dataset) FrameDims() []int {
	return append([]int(nil), d.s.dims...)
}

// FrameBytes returns the byte size of one sample frame.
func (d *Dataset) FrameBytes() int { return d.s.frameBytes }

// Samples returns the number of committed sample frames.
func (d *Dataset) Samples() uint64 { return d.s.samples }

// Append commits whole frames at the end of the dataset. len(frames) must be
// a multiple of the frame size. New extents are allocated as needed.
func (d *Dataset) Append(frames []byte) error {
	s := d.s
	c := s.c
	if c.mode == ModeRead {
		return errors.IOf("container %s: append on read-only handle", c.path)
	}
	if len(frames) == 0 {
		return nil
	}
	if len(frames)%s.frameBytes != 0 {
		return errors.Shapef("dataset %s: %d bytes is not a whole number of %d-byte frames",
			s.name, len(frames), s.frameBytes)
	}

	n := uint64(len(frames) / s.frameBytes)
	written := uint64(0)
	for written < n {
		frame := s.samples + written
		extIdx := int(frame / uint64(s.chunkFrames))
		extOff := int(frame % uint64(s.chunkFrames))

		if extIdx == len(s.extents) {
			if err := s.allocExtent(); err != nil {
				return err
			}
		}

		// Fill the current extent as far as it goes.
		room := uint64(s.chunkFrames - extOff)
		take := n - written
		if take > room {
			take = room
		}
		at := s.extents[extIdx] + int64(extOff*s.frameBytes)
		from := written * uint64(s.frameBytes)
		to := (written + take) * uint64(s.frameBytes)
		if _, err := c.f.WriteAt(frames[from:to], at); err != nil {
			return errors.IOf("append %s/%s: %v", c.path, s.name, err)
		}
		written += take
	}

	s.samples += n
	if err := c.writeSlot(s); err != nil {
		return err
	}
	return nil
}

// ReadRange returns count frames starting at frame index start. The range
// must lie inside the committed sample count.
func (d *Dataset) ReadRange(start, count uint64) ([]byte, error) {
	s := d.s
	c := s.c
	if count == 0 {
		return nil, nil
	}
	if start+count > s.samples {
		return nil, errors.IOf("dataset %s: range [%d, %d) beyond %d committed samples",
			s.name, start, start+count, s.samples)
	}

	out := make([]byte, count*uint64(s.frameBytes))
	read := uint64(0)
	for read < count {
		frame := start + read
		extIdx := int(frame / uint64(s.chunkFrames))
		extOff := int(frame % uint64(s.chunkFrames))

		room := uint64(s.chunkFrames - extOff)
		take := count - read
		if take > room {
			take = room
		}
		at := s.extents[extIdx] + int64(extOff*s.frameBytes)
		from := read * uint64(s.frameBytes)
		to := (read + take) * uint64(s.frameBytes)
		if _, err := c.f.ReadAt(out[from:to], at); err != nil {
			return nil, errors.IOf("read %s/%s: %v", c.path, s.name, err)
		}
		read += take
	}
	return out, nil
}

// ReadAll returns every committed frame.
func (d *Dataset) ReadAll() ([]byte, error) {
	return d.ReadRange(0, d.s.samples)
}

func (s *slot) allocExtent() error {
	c := s.c
	if len(s.extents) >= s.extDirCap {
		return errors.IOf("dataset %s: extent directory exhausted (%d extents)", s.name, s.extDirCap)
	}

	off := c.tail
	size := int64(s.chunkFrames) * int64(s.frameBytes)
	c.tail += size

	var entry [8]byte
	binary.LittleEndian.PutUint64(entry[:], uint64(off))
	at := s.extDirOff + int64(len(s.extents)*8)
	if _, err := c.f.WriteAt(entry[:], at); err != nil {
		c.tail -= size
		return errors.IOf("extend %s/%s: %v", c.path, s.name, err)
	}

	s.extents = append(s.extents, off)
	if err := c.writeSlot(s); err != nil {
		return err
	}
	if err := c.writeSuperblock(); err != nil {
		return err
	}
	// Grow the file to cover the new extent.
	if err := c.f.Truncate(c.tail); err != nil {
		return errors.IOf("truncate %s: %v", c.path, err)
	}
	return nil
}
