// Package layout implements the per-format conversions between the
// producer-native array ordering and the on-disk frame stream.
//
// Containers store datasets as sample-major frame sequences: frame s holds
// every element belonging to sample s, in the format's documented frame
// order. The conversions here are the only place axis juggling happens;
// each one is named, exact, and inverse-tested, because silent transpose
// bugs are the least debuggable corruption this engine can produce.
//
// Conversions per format:
//
//	Raw          producer [antennas][pols][samples]         disk [samples][antennas][pols]
//	             reader   [antennas][pols][samples]
//	Channel      producer [channels][samples][antennas][pols]
//	             disk     [samples][channels][antennas][pols]
//	             reader   [channels][antennas][pols][samples]
//	Correlation  producer [channels][baselines][stokes]      (one block per write)
//	             disk     [blocks][channels][baselines][stokes], identity
//	StationBeam  producer [samples][channels] per polarisation, identity
package layout

import (
	"github.com/xtxerr/beamstore/internal/errors"
)

// Transpose reorders an n-dimensional array of elemSize-byte elements.
// dims are the source dimensions; perm[i] names the source axis that
// becomes destination axis i. The source is not modified.
func Transpose(src []byte, elemSize int, dims []int, perm []int) ([]byte, error) {
	if len(perm) != len(dims) {
		return nil, errors.Shapef("transpose: %d dims with %d-axis permutation", len(dims), len(perm))
	}
	total := 1
	seen := make([]bool, len(dims))
	for _, p := range perm {
		if p < 0 || p >= len(dims) || seen[p] {
			return nil, errors.Shapef("transpose: invalid permutation %v", perm)
		}
		seen[p] = true
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, errors.Shapef("transpose: invalid dims %v", dims)
		}
		total *= d
	}
	if len(src) != total*elemSize {
		return nil, errors.Shapef("transpose: %d bytes does not match dims %v of %d-byte elements",
			len(src), dims, elemSize)
	}

	// Source strides in elements.
	srcStride := make([]int, len(dims))
	stride := 1
	for d := len(dims) - 1; d >= 0; d-- {
		srcStride[d] = stride
		stride *= dims[d]
	}

	// Destination geometry: dim and source-stride per destination axis.
	dstDim := make([]int, len(dims))
	step := make([]int, len(dims))
	for i, p := range perm {
		dstDim[i] = dims[p]
		step[i] = srcStride[p]
	}

	dst := make([]byte, len(src))
	coord := make([]int, len(dims))
	srcOff := 0
	for dstIdx := 0; dstIdx < total; dstIdx++ {
		copy(dst[dstIdx*elemSize:(dstIdx+1)*elemSize], src[srcOff*elemSize:(srcOff+1)*elemSize])

		// Odometer increment over destination coordinates, tracking the
		// source offset incrementally.
		for axis := len(dims) - 1; axis >= 0; axis-- {
			coord[axis]++
			srcOff += step[axis]
			if coord[axis] < dstDim[axis] {
				break
			}
			coord[axis] = 0
			srcOff -= dstDim[axis] * step[axis]
		}
	}
	return dst, nil
}

// RawProducerToDisk converts a raw voltage block from producer order
// [antennas][pols][samples] to the on-disk frame stream
// [samples][antennas][pols].
func RawProducerToDisk(data []byte, elemSize, nAntennas, nPols, nSamples int) ([]byte, error) {
	return Transpose(data, elemSize, []int{nAntennas, nPols, nSamples}, []int{2, 0, 1})
}

// RawDiskToReader converts a raw frame stream [samples][antennas][pols]
// back to reader order [antennas][pols][samples], the inverse of
// RawProducerToDisk.
func RawDiskToReader(frames []byte, elemSize, nSamples, nAntennas, nPols int) ([]byte, error) {
	return Transpose(frames, elemSize, []int{nSamples, nAntennas, nPols}, []int{1, 2, 0})
}

// ChannelProducerToDisk converts a channelised block from producer order
// [channels][samples][antennas][pols] to the on-disk frame stream
// [samples][channels][antennas][pols].
func ChannelProducerToDisk(data []byte, elemSize, nChannels, nSamples, nAntennas, nPols int) ([]byte, error) {
	return Transpose(data, elemSize, []int{nChannels, nSamples, nAntennas, nPols}, []int{1, 0, 2, 3})
}

// ChannelDiskToReader converts a channel frame stream
// [samples][channels][antennas][pols] to reader order
// [channels][antennas][pols][samples].
func ChannelDiskToReader(frames []byte, elemSize, nSamples, nChannels, nAntennas, nPols int) ([]byte, error) {
	return Transpose(frames, elemSize, []int{nSamples, nChannels, nAntennas, nPols}, []int{1, 2, 3, 0})
}

// CorrelationProducerToDisk is the identity conversion: one write carries
// one correlation block [channels][baselines][stokes], which is exactly one
// on-disk frame.
func CorrelationProducerToDisk(data []byte) []byte { return data }

// CorrelationDiskToReader is the identity conversion: the frame stream is
// already [blocks][channels][baselines][stokes].
func CorrelationDiskToReader(frames []byte) []byte { return frames }

// StationBeamProducerToDisk is the identity conversion: producer data per
// polarisation is already sample-major [samples][channels].
func StationBeamProducerToDisk(data []byte) []byte { return data }

// StationBeamDiskToReader is the identity conversion.
func StationBeamDiskToReader(frames []byte) []byte { return frames }
