// Package tsgen computes the per-sample timestamp vector for a write.
//
// Timestamps within one batch are continuous across partitions: the pad
// carried into a write is the final committed timestamp of the preceding
// samples plus one sampling interval, so the first timestamp of partition
// k+1 lands exactly one interval after the last timestamp of partition k.
package tsgen

// Generate returns nSamples timestamps for one write.
//
// When samplingTime is zero every entry equals the base timestamp;
// otherwise entry i is base + i*samplingTime. The base is bufferTimestamp
// plus the pad; when pad is non-zero it already encodes the absolute offset
// within the batch, so the batch timestamp is subtracted out of the base
// once to avoid double counting.
func Generate(samplingTime float64, nSamples int, bufferTimestamp, batchTimestamp, pad float64) []float64 {
	if nSamples <= 0 {
		return nil
	}

	base := bufferTimestamp + pad
	if pad > 0 {
		base -= batchTimestamp
	}

	out := make([]float64, nSamples)
	if samplingTime == 0 {
		for i := range out {
			out[i] = base
		}
		return out
	}
	for i := range out {
		out[i] = base + float64(i)*samplingTime
	}
	return out
}
