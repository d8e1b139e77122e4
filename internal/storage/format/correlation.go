package format

import (
	"os"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/layout"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

const correlationDataset = "correlation_matrix/data"

// CorrelationConfig describes the shape of one correlation matrix.
type CorrelationConfig struct {
	NChannels  int
	NBaselines int
	NStokes    int

	// DataType is the element type; default single-precision complex.
	DataType types.DataType
}

// Correlation persists visibility matrices. One write carries exactly one
// matrix [channels][baselines][stokes], and one container holds exactly one
// matrix: the format has no append mode, so every ingest creates a new
// partition. Readers get [blocks][channels][baselines][stokes] with blocks
// stitched across partitions.
type Correlation struct {
	base
	cfg      CorrelationConfig
	required []string
}

// NewCorrelation creates the correlation-format manager.
func NewCorrelation(opts Options, cfg CorrelationConfig) (*Correlation, error) {
	if cfg.NChannels <= 0 || cfg.NBaselines <= 0 || cfg.NStokes <= 0 {
		return nil, errors.Shapef("correlation config: channels %d, baselines %d, stokes %d",
			cfg.NChannels, cfg.NBaselines, cfg.NStokes)
	}
	if cfg.DataType == types.DataTypeComplex8 {
		cfg.DataType = types.DataTypeComplex64
	}
	return &Correlation{
		base: newBase(types.FormatCorrelation, opts),
		cfg:  cfg,
		required: []string{
			meta.FieldTimestamp, meta.FieldDateTime, meta.FieldChannelID,
			meta.FieldNSamples, meta.FieldNBlocks, meta.FieldType,
			meta.FieldDataType, meta.FieldTsStart, meta.FieldTsEnd,
			meta.FieldTsamp, meta.FieldNChans, meta.FieldNBaselines,
			meta.FieldNStokes,
		},
	}, nil
}

// Format returns types.FormatCorrelation.
func (m *Correlation) Format() types.Format { return types.FormatCorrelation }

func (m *Correlation) frameBytes() int {
	return m.cfg.NChannels * m.cfg.NBaselines * m.cfg.NStokes * m.cfg.DataType.Size()
}

// Ingest writes one correlation matrix [channels][baselines][stokes] as a
// fresh partition. Append mode is rejected before anything touches disk,
// so a rejected call leaves no partial container.
func (m *Correlation) Ingest(req IngestRequest) (string, error) {
	if req.Append {
		return "", errors.Unsupportedf("correlation format has no append mode")
	}

	frameBytes := m.frameBytes()
	if len(req.Data) != frameBytes {
		return "", errors.Shapef("correlation ingest: %d bytes, want one %d-byte matrix",
			len(req.Data), frameBytes)
	}

	plan, err := m.plan(req)
	if err != nil {
		return "", err
	}

	frames := layout.CorrelationProducerToDisk(req.Data)
	ts := m.timestamps(req, plan, 1)

	c, err := container.Open(plan.path, container.ModeCreate, m.containerOpts())
	if err != nil {
		return "", err
	}

	err = func() error {
		// One matrix per container: the dataset never grows, so the
		// extent directory stays at its minimum size.
		ds, err := c.CreateDataset(correlationDataset, m.cfg.DataType,
			[]int{m.cfg.NChannels, m.cfg.NBaselines, m.cfg.NStokes},
			1, 16)
		if err != nil {
			return err
		}
		if err = ds.Append(frames); err != nil {
			return err
		}
		if err = appendTimestamps(c, true, ts, 1, 16); err != nil {
			return err
		}
		fields := m.baseFields(req, plan, meta.FieldChannelID, m.cfg.DataType, 1, ts)
		fields[meta.FieldNChans] = meta.Int(int64(m.cfg.NChannels))
		fields[meta.FieldNBaselines] = meta.Int(int64(m.cfg.NBaselines))
		fields[meta.FieldNStokes] = meta.Int(int64(m.cfg.NStokes))
		return c.WriteMetadata(meta.Encode(fields))
	}()

	cerr := c.Close()
	if err != nil {
		os.Remove(plan.path)
		return "", err
	}
	if cerr != nil {
		return "", cerr
	}

	m.observe(req.ObjectID, ts, frames, m.cfg.DataType, frameBytes)
	m.log.Debug("ingest", "object", req.ObjectID, "partition", plan.part)
	return plan.path, nil
}

// Read returns matrices in reader order
// [blocks][channels][baselines][stokes], one block per partition selected
// by the query window.
func (m *Correlation) Read(req ReadRequest) (*ReadResult, error) {
	views, _, err := m.scanBatch(req, m.required)
	if err != nil {
		return nil, err
	}
	windows, err := m.resolveWindows(req, views)
	if err != nil {
		return nil, err
	}

	stitched, ts, err := gather(windows, container.Options{}, []string{correlationDataset})
	if err != nil {
		return nil, err
	}

	return &ReadResult{
		Data:       layout.CorrelationDiskToReader(stitched[correlationDataset]),
		DataType:   m.cfg.DataType,
		Shape:      []int{len(ts), m.cfg.NChannels, m.cfg.NBaselines, m.cfg.NStokes},
		Timestamps: ts,
	}, nil
}
