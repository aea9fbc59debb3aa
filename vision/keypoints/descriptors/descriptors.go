// Package descriptors contains binary feature descriptors and the distances between them.
package descriptors

import (
	"go.viam.com/keyframes/utils"
)

// Descriptor is a packed binary descriptor; bit i lives in word i/64 at position i%64.
type Descriptor []uint64

// Descriptors is a set of descriptors, indexed like the keypoints they describe.
type Descriptors []Descriptor

// NewDescriptor returns a zeroed descriptor able to hold nBits bits.
func NewDescriptor(nBits int) Descriptor {
	return make(Descriptor, (nBits+63)/64)
}

// SetBit sets bit i to 1.
func (d Descriptor) SetBit(i int) {
	d[i/64] |= 1 << (i % 64)
}

// Bit reports whether bit i is set.
func (d Descriptor) Bit(i int) bool {
	return d[i/64]&(1<<(i%64)) != 0
}

// HammingDistance returns the number of differing bits between d1 and d2.
func HammingDistance(d1, d2 Descriptor) int {
	return utils.HammingDistance(d1, d2)
}

// AsBitStrings exposes the descriptors as raw packed words.
func (ds Descriptors) AsBitStrings() [][]uint64 {
	out := make([][]uint64, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}
