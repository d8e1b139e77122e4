package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/format"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/partition"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// read performs a sample-based read of the object's most recent batch. The
// manager shape config is recovered from the stored metadata, so no flags
// beyond format and object are needed.
func (s *shell) read(formatName, objectArg, nArg string, rest []string) error {
	f, ok := types.ParseFormatPrefix(formatName)
	if !ok {
		return fmt.Errorf("unknown format %q", formatName)
	}
	objectID, err := strconv.Atoi(objectArg)
	if err != nil {
		return fmt.Errorf("object id %q: %w", objectArg, err)
	}
	nSamples, err := strconv.Atoi(nArg)
	if err != nil {
		return fmt.Errorf("sample count %q: %w", nArg, err)
	}
	offset := 0
	if len(rest) == 1 {
		if offset, err = strconv.Atoi(rest[0]); err != nil {
			return fmt.Errorf("sample offset %q: %w", rest[0], err)
		}
	}

	mode, fields, err := s.describeObject(f, objectID)
	if err != nil {
		return err
	}
	m, err := s.buildManager(f, mode, fields)
	if err != nil {
		return err
	}

	res, err := m.Read(format.ReadRequest{
		ObjectID:     objectID,
		NSamples:     nSamples,
		SampleOffset: offset,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d samples, dtype %s, shape %v\n", res.Samples(), res.DataType, res.Shape)
	if res.Samples() > 0 {
		fmt.Printf("timestamps [%f .. %f]\n",
			res.Timestamps[0], res.Timestamps[res.Samples()-1])
	}
	if len(res.Packets) > 0 {
		total := uint64(0)
		for _, p := range res.Packets {
			total += uint64(p)
		}
		fmt.Printf("packets total %d\n", total)
	}
	return nil
}

// describeObject finds one partition of the object and returns its
// acquisition mode and metadata fields.
func (s *shell) describeObject(f types.Format, objectID int) (types.Mode, meta.Fields, error) {
	dir := s.engine.Config().DataDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.ModeNone, nil, err
	}
	for _, e := range entries {
		info, ok := partition.ParseFilename(e.Name())
		if !ok || info.Format != f || info.ObjectID != objectID {
			continue
		}
		c, err := container.Open(filepath.Join(dir, e.Name()), container.ModeRead, container.Options{})
		if err != nil {
			return types.ModeNone, nil, err
		}
		payload, err := c.ReadMetadata()
		if err != nil {
			c.Close()
			return types.ModeNone, nil, err
		}
		fields, err := meta.Decode(payload)
		c.Close()
		if err != nil {
			return types.ModeNone, nil, err
		}
		return info.Mode, fields, nil
	}
	return types.ModeNone, nil, fmt.Errorf("no %s containers for object %d", f, objectID)
}

// buildManager reconstructs the format manager from stored metadata.
func (s *shell) buildManager(f types.Format, mode types.Mode, fields meta.Fields) (format.Manager, error) {
	opts := format.Options{
		Dir:           s.engine.Config().DataDir,
		Mode:          mode,
		RolloverBytes: s.engine.Config().Storage.RolloverBytes,
	}

	dtypeTag, err := fields.Str(meta.FieldDataType)
	if err != nil {
		return nil, err
	}
	dt, err := types.ParseDataType(dtypeTag)
	if err != nil {
		return nil, err
	}

	dim := func(name string) (int, error) {
		v, err := fields.Int(name)
		return int(v), err
	}

	switch f {
	case types.FormatRaw:
		ants, err := dim(meta.FieldNAntennas)
		if err != nil {
			return nil, err
		}
		pols, err := dim(meta.FieldNPols)
		if err != nil {
			return nil, err
		}
		return format.NewRaw(opts, format.RawConfig{NAntennas: ants, NPols: pols, DataType: dt})
	case types.FormatChannel:
		chans, err := dim(meta.FieldNChans)
		if err != nil {
			return nil, err
		}
		ants, err := dim(meta.FieldNAntennas)
		if err != nil {
			return nil, err
		}
		pols, err := dim(meta.FieldNPols)
		if err != nil {
			return nil, err
		}
		return format.NewChannel(opts, format.ChannelConfig{NChannels: chans, NAntennas: ants, NPols: pols, DataType: dt})
	case types.FormatCorrelation:
		chans, err := dim(meta.FieldNChans)
		if err != nil {
			return nil, err
		}
		baselines, err := dim(meta.FieldNBaselines)
		if err != nil {
			return nil, err
		}
		stokes, err := dim(meta.FieldNStokes)
		if err != nil {
			return nil, err
		}
		return format.NewCorrelation(opts, format.CorrelationConfig{NChannels: chans, NBaselines: baselines, NStokes: stokes, DataType: dt})
	case types.FormatStationBeam:
		chans, err := dim(meta.FieldNChans)
		if err != nil {
			return nil, err
		}
		pols, err := dim(meta.FieldNPols)
		if err != nil {
			return nil, err
		}
		return format.NewStationBeam(opts, format.StationBeamConfig{NChannels: chans, NPols: pols, DataType: dt})
	default:
		return nil, fmt.Errorf("format %s has no manager", f)
	}
}
