package format

import (
	"fmt"
	"os"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/layout"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

func polDataset(p int) string { return fmt.Sprintf("polarization_%d/data", p) }

// StationBeamConfig describes the shape of station beam power data.
type StationBeamConfig struct {
	NChannels int
	NPols     int

	// DataType is the element type; default double-precision float.
	DataType types.DataType
}

// StationBeam persists integrated station beam spectra, one dataset per
// polarisation plus a per-sample packet counter. Producer data arrives as
// [pols][samples][channels]; readers get the same order back, with the
// sample axis stitched across partitions per polarisation.
type StationBeam struct {
	base
	cfg      StationBeamConfig
	required []string
}

// NewStationBeam creates the station-beam-format manager.
func NewStationBeam(opts Options, cfg StationBeamConfig) (*StationBeam, error) {
	if cfg.NChannels <= 0 || cfg.NPols <= 0 {
		return nil, errors.Shapef("station beam config: channels %d, pols %d", cfg.NChannels, cfg.NPols)
	}
	if cfg.DataType == types.DataTypeComplex8 {
		cfg.DataType = types.DataTypeFloat64
	}
	return &StationBeam{
		base: newBase(types.FormatStationBeam, opts),
		cfg:  cfg,
		required: []string{
			meta.FieldTimestamp, meta.FieldDateTime, meta.FieldStationID,
			meta.FieldNSamples, meta.FieldNBlocks, meta.FieldType,
			meta.FieldDataType, meta.FieldTsStart, meta.FieldTsEnd,
			meta.FieldTsamp, meta.FieldNChans, meta.FieldNPols,
		},
	}, nil
}

// Format returns types.FormatStationBeam.
func (m *StationBeam) Format() types.Format { return types.FormatStationBeam }

func (m *StationBeam) frameBytes() int {
	return m.cfg.NChannels * m.cfg.DataType.Size()
}

// Ingest writes one block of producer data [pols][samples][channels].
// Packet counts are taken from req.Packets when present, one per sample;
// absent counts persist as zeros.
func (m *StationBeam) Ingest(req IngestRequest) (string, error) {
	frameBytes := m.frameBytes()
	blockBytes := m.cfg.NPols * frameBytes
	if len(req.Data) == 0 || len(req.Data)%blockBytes != 0 {
		return "", errors.Shapef("station beam ingest: %d bytes is not a whole number of %d-byte samples",
			len(req.Data), blockBytes)
	}
	nSamples := len(req.Data) / blockBytes

	packets := req.Packets
	if packets == nil {
		packets = make([]uint32, nSamples)
	} else if len(packets) != nSamples {
		return "", errors.Shapef("station beam ingest: %d packet counts for %d samples",
			len(packets), nSamples)
	}

	plan, err := m.plan(req)
	if err != nil {
		return "", err
	}

	frames := layout.StationBeamProducerToDisk(req.Data)
	ts := m.timestamps(req, plan, nSamples)
	chunk := m.chunkFrames(nSamples, frameBytes)
	pktChunk := m.chunkFrames(nSamples, 4)
	tsChunk := m.chunkFrames(nSamples, 8)
	polBytes := nSamples * frameBytes

	mode := container.ModeReadWrite
	if plan.create {
		mode = container.ModeCreate
	}
	c, err := container.Open(plan.path, mode, m.containerOpts())
	if err != nil {
		return "", err
	}

	err = func() error {
		var fields meta.Fields
		if plan.create {
			fields = m.baseFields(req, plan, meta.FieldStationID, m.cfg.DataType, nSamples, ts)
			fields[meta.FieldNChans] = meta.Int(int64(m.cfg.NChannels))
			fields[meta.FieldNPols] = meta.Int(int64(m.cfg.NPols))
		} else {
			var err error
			if fields, err = loadFields(c, m.required); err != nil {
				return err
			}
			if err = advanceFields(fields, nSamples, ts); err != nil {
				return err
			}
		}

		// The producer block is polarisation-major, so each
		// polarisation's samples are one contiguous slice.
		for p := 0; p < m.cfg.NPols; p++ {
			var (
				ds  *container.Dataset
				err error
			)
			if plan.create {
				ds, err = c.CreateDataset(polDataset(p), m.cfg.DataType,
					[]int{m.cfg.NChannels}, chunk, m.dirCapacity(chunk, frameBytes))
			} else {
				ds, err = c.Dataset(polDataset(p))
			}
			if err != nil {
				return err
			}
			if err = ds.Append(frames[p*polBytes : (p+1)*polBytes]); err != nil {
				return err
			}
		}

		var pds *container.Dataset
		if plan.create {
			pds, err = c.CreateDataset(packetsDataset, types.DataTypeUint32,
				[]int{1}, pktChunk, m.dirCapacity(pktChunk, 4))
		} else {
			pds, err = c.Dataset(packetsDataset)
		}
		if err != nil {
			return err
		}
		if err = pds.Append(uint32sToBytes(packets)); err != nil {
			return err
		}

		if err = appendTimestamps(c, plan.create, ts, tsChunk, m.dirCapacity(tsChunk, 8)); err != nil {
			return err
		}
		return c.WriteMetadata(meta.Encode(fields))
	}()

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

	m.observePower(req.ObjectID, ts, frames, nSamples)
	m.log.Debug("ingest", "object", req.ObjectID, "partition", plan.part, "samples", nSamples)
	return plan.path, nil
}

// observePower reports per-sample power averaged across polarisations, one
// entry per timestamp. The block is polarisation-major, so the power of
// sample s in polarisation p sits at index p*nSamples+s.
func (m *StationBeam) observePower(objectID int, ts []float64, frames []byte, nSamples int) {
	if m.opts.Observer == nil {
		return
	}
	powers := FramePower(frames, m.cfg.DataType, m.frameBytes())
	mean := make([]float64, nSamples)
	for p := 0; p < m.cfg.NPols; p++ {
		for s := 0; s < nSamples; s++ {
			mean[s] += powers[p*nSamples+s]
		}
	}
	for s := range mean {
		mean[s] /= float64(m.cfg.NPols)
	}
	m.opts.Observer.ObserveWrite(m.format, objectID, ts, mean)
}

// Read returns spectra in reader order [pols][samples][channels], or
// [samples][channels] for a single-polarisation read, along with the
// per-sample packet counts.
func (m *StationBeam) Read(req ReadRequest) (*ReadResult, error) {
	pols := make([]int, 0, m.cfg.NPols)
	if req.Polarization != nil {
		p := *req.Polarization
		if p < 0 || p >= m.cfg.NPols {
			return nil, errors.Unsupportedf("polarisation %d out of range [0, %d)", p, m.cfg.NPols)
		}
		pols = append(pols, p)
	} else {
		for p := 0; p < m.cfg.NPols; p++ {
			pols = append(pols, p)
		}
	}

	views, _, err := m.scanBatch(req, m.required)
	if err != nil {
		return nil, err
	}
	windows, err := m.resolveWindows(req, views)
	if err != nil {
		return nil, err
	}

	datasets := make([]string, 0, len(pols)+1)
	for _, p := range pols {
		datasets = append(datasets, polDataset(p))
	}
	datasets = append(datasets, packetsDataset)

	stitched, ts, err := gather(windows, container.Options{}, datasets)
	if err != nil {
		return nil, err
	}

	// Each polarisation stitches independently; concatenating the per-pol
	// streams yields the polarisation-major reader order directly.
	var data []byte
	for _, p := range pols {
		data = append(data, stitched[polDataset(p)]...)
	}

	shape := []int{len(pols), len(ts), m.cfg.NChannels}
	if req.Polarization != nil {
		shape = []int{len(ts), m.cfg.NChannels}
	}

	return &ReadResult{
		Data:       layout.StationBeamDiskToReader(data),
		DataType:   m.cfg.DataType,
		Shape:      shape,
		Timestamps: ts,
		Packets:    bytesToUint32s(stitched[packetsDataset]),
	}, nil
}
