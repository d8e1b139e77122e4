package format

import (
	"os"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/layout"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

const rawDataset = "raw_/data"

// RawConfig describes the shape of raw antenna voltage data.
type RawConfig struct {
	NAntennas int
	NPols     int

	// DataType is the element type; default signed 8-bit complex.
	DataType types.DataType
}

// Raw persists raw antenna voltages, shaped [antennas][pols][samples] on
// the reader side. Producer data arrives in the same order.
type Raw struct {
	base
	cfg      RawConfig
	required []string
}

// NewRaw creates the raw-format manager.
func NewRaw(opts Options, cfg RawConfig) (*Raw, error) {
	if cfg.NAntennas <= 0 || cfg.NPols <= 0 {
		return nil, errors.Shapef("raw config: antennas %d, pols %d", cfg.NAntennas, cfg.NPols)
	}
	// The DataType zero value is already the signed 8-bit complex default.
	return &Raw{
		base: newBase(types.FormatRaw, opts),
		cfg:  cfg,
		required: []string{
			meta.FieldTimestamp, meta.FieldDateTime, meta.FieldTileID,
			meta.FieldNSamples, meta.FieldNBlocks, meta.FieldType,
			meta.FieldDataType, meta.FieldTsStart, meta.FieldTsEnd,
			meta.FieldTsamp, meta.FieldNAntennas, meta.FieldNPols,
		},
	}, nil
}

// Format returns types.FormatRaw.
func (m *Raw) Format() types.Format { return types.FormatRaw }

func (m *Raw) frameBytes() int {
	return m.cfg.NAntennas * m.cfg.NPols * m.cfg.DataType.Size()
}

// Ingest writes one block of producer data [antennas][pols][samples] into
// the batch identified by req.Timestamp and req.ObjectID. It returns the
// path of the mutated partition.
func (m *Raw) Ingest(req IngestRequest) (string, error) {
	frameBytes := m.frameBytes()
	if len(req.Data) == 0 || len(req.Data)%frameBytes != 0 {
		return "", errors.Shapef("raw ingest: %d bytes is not a whole number of %d-byte samples",
			len(req.Data), frameBytes)
	}
	nSamples := len(req.Data) / frameBytes

	plan, err := m.plan(req)
	if err != nil {
		return "", err
	}

	frames, err := layout.RawProducerToDisk(req.Data, m.cfg.DataType.Size(),
		m.cfg.NAntennas, m.cfg.NPols, nSamples)
	if err != nil {
		return "", err
	}
	ts := m.timestamps(req, plan, nSamples)
	chunk := m.chunkFrames(nSamples, frameBytes)
	tsChunk := m.chunkFrames(nSamples, 8)

	mode := container.ModeReadWrite
	if plan.create {
		mode = container.ModeCreate
	}
	c, err := container.Open(plan.path, mode, m.containerOpts())
	if err != nil {
		return "", err
	}

	err = func() error {
		var (
			ds     *container.Dataset
			fields meta.Fields
			err    error
		)
		if plan.create {
			ds, err = c.CreateDataset(rawDataset, m.cfg.DataType,
				[]int{m.cfg.NAntennas, m.cfg.NPols}, chunk, m.dirCapacity(chunk, frameBytes))
			if err != nil {
				return err
			}
			fields = m.baseFields(req, plan, meta.FieldTileID, m.cfg.DataType, nSamples, ts)
			fields[meta.FieldNAntennas] = meta.Int(int64(m.cfg.NAntennas))
			fields[meta.FieldNPols] = meta.Int(int64(m.cfg.NPols))
		} else {
			if fields, err = loadFields(c, m.required); err != nil {
				return err
			}
			if err = advanceFields(fields, nSamples, ts); err != nil {
				return err
			}
			if ds, err = c.Dataset(rawDataset); err != nil {
				return err
			}
		}
		if err = ds.Append(frames); err != nil {
			return err
		}
		if err = appendTimestamps(c, plan.create, ts, tsChunk, m.dirCapacity(tsChunk, 8)); err != nil {
			return err
		}
		return c.WriteMetadata(meta.Encode(fields))
	}()

	// The container closes, and the lock releases, on every path.
	cerr := c.Close()
	if err != nil {
		if plan.create {
			os.Remove(plan.path)
		}
		return "", err
	}
	if cerr != nil {
		return "", cerr
	}

	m.observe(req.ObjectID, ts, frames, m.cfg.DataType, frameBytes)
	m.log.Debug("ingest", "object", req.ObjectID, "partition", plan.part, "samples", nSamples)
	return plan.path, nil
}

// Read returns samples in reader order [antennas][pols][samples], stitched
// across partitions. Requests overrunning the batch are truncated.
func (m *Raw) Read(req ReadRequest) (*ReadResult, error) {
	views, _, err := m.scanBatch(req, m.required)
	if err != nil {
		return nil, err
	}
	windows, err := m.resolveWindows(req, views)
	if err != nil {
		return nil, err
	}

	stitched, ts, err := gather(windows, container.Options{}, []string{rawDataset})
	if err != nil {
		return nil, err
	}

	result := &ReadResult{
		DataType:   m.cfg.DataType,
		Shape:      []int{m.cfg.NAntennas, m.cfg.NPols, len(ts)},
		Timestamps: ts,
	}
	if len(ts) == 0 {
		return result, nil
	}
	result.Data, err = layout.RawDiskToReader(stitched[rawDataset], m.cfg.DataType.Size(),
		len(ts), m.cfg.NAntennas, m.cfg.NPols)
	if err != nil {
		return nil, err
	}
	return result, nil
}
