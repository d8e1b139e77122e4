// Package format implements the per-format persistence managers: Raw,
// Channel, Correlation and StationBeam. Each manager shares the same
// partition resolution, timestamp generation and container plumbing, and
// differs only in dataset shape, layout conversion and the metadata fields
// it considers mandatory.
package format

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sort"
	"time"

	rootcfg "github.com/xtxerr/beamstore/config"
	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/logging"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/partition"
	"github.com/xtxerr/beamstore/internal/storage/tsgen"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Dataset names shared by all formats.
const (
	timestampsDataset = "sample_timestamps/data"
	packetsDataset    = "sample_packets/data"
)

// Observer receives a notification for every committed write. Used by the
// engine to maintain per-batch power summaries.
type Observer interface {
	ObserveWrite(format types.Format, objectID int, timestamps, power []float64)
}

// Options carries the shared manager configuration.
type Options struct {
	// Dir is the storage directory for container files.
	Dir string

	// Mode is the acquisition mode encoded in filenames.
	Mode types.Mode

	// RolloverBytes is the partition size threshold; 0 selects the default.
	RolloverBytes int64

	// ResizeChunk is the dataset growth granularity in samples; 0 selects
	// the default. When the samples-per-block count of a write is known it
	// is used instead.
	ResizeChunk int

	// UseLocks enables the advisory lock on containers opened for writing.
	UseLocks bool

	// Observer, when set, is notified after each committed write.
	Observer Observer
}

func (o *Options) applyDefaults() {
	if o.RolloverBytes <= 0 {
		o.RolloverBytes = rootcfg.DefaultRolloverBytes
	}
	if o.ResizeChunk <= 0 {
		o.ResizeChunk = rootcfg.DefaultResizeChunk
	}
}

// IngestRequest is one write of producer data.
type IngestRequest struct {
	// Data is the producer array in the format's documented producer order.
	Data []byte

	// Timestamp is the batch-defining timestamp (unix seconds, UTC).
	Timestamp float64

	// ObjectID is the per-format entity discriminator (tile, channel or
	// station id).
	ObjectID int

	// Append continues the current partition of the batch; false forces a
	// fresh partition.
	Append bool

	// SamplingTime is the per-sample interval in seconds; 0 stamps every
	// sample with the same timestamp.
	SamplingTime float64

	// BufferTimestamp is the timestamp of this buffer; 0 uses Timestamp.
	BufferTimestamp float64

	// Packets is the per-sample packet count (StationBeam only); nil
	// persists zeros.
	Packets []uint32
}

// ReadRequest selects a sample window from a batch. Exactly one of the two
// query modes must be active: sample-based (NSamples, with optional
// SampleOffset) or timestamp-based (StartTs/EndTs).
type ReadRequest struct {
	// Timestamp selects the batch; 0 selects the most recent batch for the
	// object.
	Timestamp float64

	// ObjectID is the per-format entity discriminator.
	ObjectID int

	// NSamples requests a sample-based read of this many samples.
	NSamples int

	// SampleOffset is the starting sample of a sample-based read; negative
	// values count back from the end of the batch.
	SampleOffset int

	// StartTs and EndTs request a timestamp-based read of all samples with
	// StartTs <= timestamp <= EndTs.
	StartTs float64
	EndTs   float64

	// Polarization selects a single polarisation (StationBeam only);
	// nil reads all polarisations.
	Polarization *int
}

// ReadResult is the outcome of a read: the stitched sample array in reader
// order plus its parallel timestamp vector.
type ReadResult struct {
	// Data is the sample array in the format's documented reader order.
	Data []byte

	// DataType is the element type of Data.
	DataType types.DataType

	// Shape is the reader-order shape of Data.
	Shape []int

	// Timestamps holds one entry per returned sample.
	Timestamps []float64

	// Packets holds the per-sample packet counts (StationBeam only).
	Packets []uint32
}

// Samples returns the number of samples in the result.
func (r *ReadResult) Samples() int { return len(r.Timestamps) }

// Manager is the common contract of the four format managers.
type Manager interface {
	Format() types.Format
	Ingest(req IngestRequest) (string, error)
	Read(req ReadRequest) (*ReadResult, error)
}

// base carries the plumbing shared by all managers.
type base struct {
	format   types.Format
	opts     Options
	resolver *partition.Resolver
	log      *slog.Logger
}

func newBase(format types.Format, opts Options) base {
	opts.applyDefaults()
	return base{
		format:   format,
		opts:     opts,
		resolver: partition.NewResolver(opts.Dir, format, opts.Mode, opts.RolloverBytes),
		log:      logging.Component(format.String()),
	}
}

func (b *base) containerOpts() container.Options {
	return container.Options{UseLock: b.opts.UseLocks}
}

// dirCapacity sizes a dataset's extent directory so the dataset can grow to
// the roll-over threshold before the directory fills. chunkFrames must come
// from the extent-floored granularity so the capacity stays bounded for
// small frames.
func (b *base) dirCapacity(chunkFrames, frameBytes int) int {
	extentBytes := int64(chunkFrames) * int64(frameBytes)
	cap := int(b.opts.RolloverBytes/extentBytes) + 2
	if cap < 16 {
		cap = 16
	}
	return cap
}

// chunkFrames picks the extent granularity in frames: the samples-per-block
// count when known, the configured resize chunk otherwise, rounded up so
// one extent spans at least DefaultExtentFloorBytes. Blocks smaller than an
// extent simply fill it across appends.
func (b *base) chunkFrames(nSamples, frameBytes int) int {
	chunk := nSamples
	if chunk <= 0 {
		chunk = b.opts.ResizeChunk
	}
	if floor := int(rootcfg.DefaultExtentFloorBytes) / frameBytes; chunk < floor {
		chunk = floor
	}
	return chunk
}

// writePlan is the outcome of partition resolution for one write.
type writePlan struct {
	batch  partition.Batch
	part   int
	create bool
	pad    float64
	path   string
}

// plan resolves which partition a write targets and the timestamp padding
// it carries over from earlier samples of the batch.
func (b *base) plan(req IngestRequest) (writePlan, error) {
	batch := partition.BatchOf(time.Unix(0, int64(req.Timestamp*float64(time.Second))))

	highest, _, err := b.resolver.ListPartitions(&batch, req.ObjectID)
	if err != nil {
		return writePlan{}, err
	}

	var size int64
	if highest >= 0 {
		if size, err = b.resolver.SizeOf(&batch, req.ObjectID); err != nil {
			return writePlan{}, err
		}
	}

	part, create := b.resolver.DecideTarget(req.Append, size, highest)

	// Any write that continues an existing batch pads its timestamps past
	// the batch's final committed sample.
	pad := 0.0
	if highest >= 0 {
		final, err := b.resolver.FinalTimestamp(&batch, req.ObjectID, highest)
		if err != nil {
			return writePlan{}, err
		}
		if final > 0 {
			pad = final + req.SamplingTime
		}
	}

	return writePlan{
		batch:  batch,
		part:   part,
		create: create,
		pad:    pad,
		path:   b.resolver.Path(req.ObjectID, batch, part),
	}, nil
}

// timestamps generates the per-sample timestamp vector for a write.
func (b *base) timestamps(req IngestRequest, plan writePlan, nSamples int) []float64 {
	bufferTs := req.BufferTimestamp
	if bufferTs == 0 {
		bufferTs = req.Timestamp
	}
	return tsgen.Generate(req.SamplingTime, nSamples, bufferTs, req.Timestamp, plan.pad)
}

// baseFields builds the metadata fields common to every format for a fresh
// partition.
func (b *base) baseFields(req IngestRequest, plan writePlan, objectField string, dt types.DataType, nSamples int, ts []float64) meta.Fields {
	return meta.Fields{
		meta.FieldTimestamp: meta.Float(req.Timestamp),
		meta.FieldDateTime:  meta.String(plan.batch.String()),
		objectField:         meta.Int(int64(req.ObjectID)),
		meta.FieldNSamples:  meta.Int(int64(nSamples)),
		meta.FieldNBlocks:   meta.Int(1),
		meta.FieldType:      meta.String(b.format.TypeTag()),
		meta.FieldDataType:  meta.String(dt.String()),
		meta.FieldTsStart:   meta.Float(ts[0]),
		meta.FieldTsEnd:     meta.Float(ts[len(ts)-1]),
		meta.FieldTsamp:     meta.Float(req.SamplingTime),
	}
}

// loadFields reads and integrity-checks the metadata record of an open
// container against the format's mandatory field set.
func loadFields(c *container.Container, required []string) (meta.Fields, error) {
	payload, err := c.ReadMetadata()
	if err != nil {
		return nil, err
	}
	fields, err := meta.Decode(payload)
	if err != nil {
		return nil, err
	}
	if err := meta.CheckIntegrity(fields, required); err != nil {
		return nil, err
	}
	return fields, nil
}

// advanceFields updates an existing record for one appended write: the
// block count grows and ts_end moves to the last generated timestamp.
func advanceFields(fields meta.Fields, nSamples int, ts []float64) error {
	prev, err := fields.Int(meta.FieldNSamples)
	if err != nil {
		return err
	}
	if int(prev) != nSamples {
		return errors.Shapef("append writes %d samples per block, partition has %d", nSamples, prev)
	}
	blocks, err := fields.Int(meta.FieldNBlocks)
	if err != nil {
		return err
	}
	fields[meta.FieldNBlocks] = meta.Int(blocks + 1)
	fields[meta.FieldTsEnd] = meta.Float(ts[len(ts)-1])
	return nil
}

// appendTimestamps writes the timestamp index entries for one write,
// creating the index dataset on a fresh partition.
func appendTimestamps(c *container.Container, create bool, ts []float64, chunk, dirCap int) error {
	var (
		ds  *container.Dataset
		err error
	)
	if create {
		ds, err = c.CreateDataset(timestampsDataset, types.DataTypeFloat64, []int{1}, chunk, dirCap)
	} else {
		ds, err = c.Dataset(timestampsDataset)
	}
	if err != nil {
		return err
	}
	return ds.Append(float64sToBytes(ts))
}

// partView is one partition's metadata snapshot taken during a read.
type partView struct {
	part    int
	path    string
	samples int // committed samples: n_samples * n_blocks
	tsStart float64
	tsEnd   float64
}

// scanBatch opens every partition of the batch in order and snapshots the
// metadata needed for range resolution. Missing batches are ErrNotFound.
func (b *base) scanBatch(req ReadRequest, required []string) ([]partView, partition.Batch, error) {
	var batchPtr *partition.Batch
	if req.Timestamp != 0 {
		batch := partition.BatchOf(time.Unix(0, int64(req.Timestamp*float64(time.Second))))
		batchPtr = &batch
	}

	highest, batch, err := b.resolver.ListPartitions(batchPtr, req.ObjectID)
	if err != nil {
		return nil, partition.Batch{}, err
	}
	if highest < 0 {
		return nil, partition.Batch{}, errors.Notfoundf("no %s batch for object %d", b.format, req.ObjectID)
	}

	views := make([]partView, 0, highest+1)
	for part := 0; part <= highest; part++ {
		view, err := b.scanPartition(req.ObjectID, batch, part, required)
		if err != nil {
			return nil, partition.Batch{}, err
		}
		views = append(views, view)
	}
	return views, batch, nil
}

func (b *base) scanPartition(objectID int, batch partition.Batch, part int, required []string) (partView, error) {
	path := b.resolver.Path(objectID, batch, part)
	c, err := container.Open(path, container.ModeRead, container.Options{})
	if err != nil {
		return partView{}, err
	}
	defer c.Close()

	fields, err := loadFields(c, required)
	if err != nil {
		return partView{}, err
	}

	nSamples, err := fields.Int(meta.FieldNSamples)
	if err != nil {
		return partView{}, err
	}
	nBlocks, err := fields.Int(meta.FieldNBlocks)
	if err != nil {
		return partView{}, err
	}
	tsStart, err := fields.Float(meta.FieldTsStart)
	if err != nil {
		return partView{}, err
	}
	tsEnd, err := fields.Float(meta.FieldTsEnd)
	if err != nil {
		return partView{}, err
	}

	return partView{
		part:    part,
		path:    path,
		samples: int(nSamples * nBlocks),
		tsStart: tsStart,
		tsEnd:   tsEnd,
	}, nil
}

// window is a contiguous local sample range inside one partition.
type window struct {
	view  partView
	start uint64
	count uint64
}

// resolveWindows maps a read request onto per-partition sample ranges, in
// partition order. An empty result is legal: it means the requested window
// holds no samples.
func (b *base) resolveWindows(req ReadRequest, views []partView) ([]window, error) {
	sampleMode := req.NSamples != 0 || req.SampleOffset != 0
	tsMode := req.StartTs != 0 || req.EndTs != 0
	if sampleMode == tsMode {
		return nil, errors.Unsupportedf("exactly one of sample-based or timestamp-based query must be active")
	}
	if sampleMode {
		return resolveSampleWindows(req.NSamples, req.SampleOffset, views)
	}
	return resolveTimestampWindows(req.StartTs, req.EndTs, views)
}

// resolveSampleWindows turns (nSamples, offset) into per-partition ranges
// using the cumulative per-partition sample counts. Requests overrunning
// the batch are truncated, never failed.
func resolveSampleWindows(nSamples, offset int, views []partView) ([]window, error) {
	if nSamples <= 0 {
		return nil, errors.Unsupportedf("sample-based read needs a positive sample count, got %d", nSamples)
	}

	total := 0
	for _, v := range views {
		total += v.samples
	}

	start := offset
	if start < 0 {
		start = total + start
		if start < 0 {
			start = 0
		}
	}
	end := start + nSamples
	if end > total {
		end = total
	}
	if start >= end {
		return nil, nil
	}

	var out []window
	base := 0
	for _, v := range views {
		lo, hi := start-base, end-base
		if lo < v.samples && hi > 0 {
			if lo < 0 {
				lo = 0
			}
			if hi > v.samples {
				hi = v.samples
			}
			out = append(out, window{view: v, start: uint64(lo), count: uint64(hi - lo)})
		}
		base += v.samples
	}
	return out, nil
}

// resolveTimestampWindows selects, per partition, the first sample at or
// after startTs through the last sample at or before endTs, skipping
// partitions whose timestamp range does not intersect the query.
func resolveTimestampWindows(startTs, endTs float64, views []partView) ([]window, error) {
	if endTs < startTs {
		return nil, errors.Unsupportedf("timestamp window [%g, %g] is inverted", startTs, endTs)
	}

	var out []window
	for _, v := range views {
		if v.samples == 0 || v.tsEnd < startTs || v.tsStart > endTs {
			continue
		}
		ts, err := loadTimestampIndex(v.path, v.samples)
		if err != nil {
			return nil, err
		}

		lo := sort.Search(len(ts), func(i int) bool { return ts[i] >= startTs })
		hi := sort.Search(len(ts), func(i int) bool { return ts[i] > endTs })
		if lo >= hi {
			continue
		}
		out = append(out, window{view: v, start: uint64(lo), count: uint64(hi - lo)})
	}
	return out, nil
}

func loadTimestampIndex(path string, samples int) ([]float64, error) {
	c, err := container.Open(path, container.ModeRead, container.Options{})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	ds, err := c.Dataset(timestampsDataset)
	if err != nil {
		return nil, err
	}
	raw, err := ds.ReadRange(0, uint64(samples))
	if err != nil {
		return nil, err
	}
	return bytesToFloat64s(raw), nil
}

// gather reads the named datasets over the resolved windows and
// concatenates the frame streams in partition order. The result maps
// dataset name to stitched frames; timestamps are always included.
func gather(windows []window, opts container.Options, datasets []string) (map[string][]byte, []float64, error) {
	stitched := make(map[string][]byte, len(datasets))
	var timestamps []float64

	for _, w := range windows {
		c, err := container.Open(w.view.path, container.ModeRead, opts)
		if err != nil {
			return nil, nil, err
		}

		for _, name := range datasets {
			ds, err := c.Dataset(name)
			if err != nil {
				c.Close()
				return nil, nil, err
			}
			frames, err := ds.ReadRange(w.start, w.count)
			if err != nil {
				c.Close()
				return nil, nil, err
			}
			stitched[name] = append(stitched[name], frames...)
		}

		tds, err := c.Dataset(timestampsDataset)
		if err != nil {
			c.Close()
			return nil, nil, err
		}
		raw, err := tds.ReadRange(w.start, w.count)
		if err != nil {
			c.Close()
			return nil, nil, err
		}
		timestamps = append(timestamps, bytesToFloat64s(raw)...)

		if err := c.Close(); err != nil {
			return nil, nil, err
		}
	}
	return stitched, timestamps, nil
}

// observe notifies the configured observer with per-sample mean power.
func (b *base) observe(objectID int, ts []float64, frames []byte, dt types.DataType, frameBytes int) {
	if b.opts.Observer == nil || frameBytes == 0 {
		return
	}
	b.opts.Observer.ObserveWrite(b.format, objectID, ts, FramePower(frames, dt, frameBytes))
}

// FramePower computes the mean element power of each sample frame.
func FramePower(frames []byte, dt types.DataType, frameBytes int) []float64 {
	n := len(frames) / frameBytes
	elems := frameBytes / dt.Size()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		frame := frames[i*frameBytes : (i+1)*frameBytes]
		sum := 0.0
		for e := 0; e < elems; e++ {
			sum += elementPower(frame[e*dt.Size():], dt)
		}
		out[i] = sum / float64(elems)
	}
	return out
}

func elementPower(buf []byte, dt types.DataType) float64 {
	switch dt {
	case types.DataTypeComplex8:
		re, im := float64(int8(buf[0])), float64(int8(buf[1]))
		return re*re + im*im
	case types.DataTypeComplex64:
		re := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
		im := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
		return re*re + im*im
	case types.DataTypeInt8:
		v := float64(int8(buf[0]))
		return v * v
	case types.DataTypeInt16:
		v := float64(int16(binary.LittleEndian.Uint16(buf)))
		return v * v
	case types.DataTypeInt32:
		v := float64(int32(binary.LittleEndian.Uint32(buf)))
		return v * v
	case types.DataTypeUint16:
		v := float64(binary.LittleEndian.Uint16(buf))
		return v * v
	case types.DataTypeUint32:
		v := float64(binary.LittleEndian.Uint32(buf))
		return v * v
	case types.DataTypeFloat32:
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
		return v * v
	case types.DataTypeFloat64:
		v := math.Float64frombits(binary.LittleEndian.Uint64(buf))
		return v * v
	default:
		return 0
	}
}

func float64sToBytes(vs []float64) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func bytesToFloat64s(raw []byte) []float64 {
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}

func uint32sToBytes(vs []uint32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func bytesToUint32s(raw []byte) []uint32 {
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out
}
