package utils

import (
	"math/bits"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// HammingDistance counts the differing bits of two packed bit strings. Words past the end of the
// shorter input are compared against zero.
func HammingDistance(b1, b2 []uint64) int {
	short, long := b1, b2
	if len(short) > len(long) {
		short, long = long, short
	}
	distance := 0
	for i := range short {
		distance += bits.OnesCount64(short[i] ^ long[i])
	}
	for _, w := range long[len(short):] {
		distance += bits.OnesCount64(w)
	}
	return distance
}

// PairwiseHammingDistance computes the m x n matrix of Hamming distances between two sets of
// packed bit strings. Both sets must be non-empty; gonum does not allow zero-sized matrices.
func PairwiseHammingDistance(set1, set2 [][]uint64) *mat.Dense {
	m := len(set1)
	n := len(set2)
	distances := mat.NewDense(m, n, nil)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			distances.Set(i, j, float64(HammingDistance(set1[i], set2[j])))
		}
	}
	return distances
}

// GetArgMinDistancesPerRow returns in a slice of int the index of the point with minimum distance for each row.
// On ties the lowest column index wins.
func GetArgMinDistancesPerRow(distances *mat.Dense) []int {
	nRows, _ := distances.Dims()
	indices := make([]int, nRows)
	for i := 0; i < nRows; i++ {
		row := mat.Row(nil, i, distances)
		indices[i] = floats.MinIdx(row)
	}
	return indices
}

// GetArgMinDistancesPerColumn is GetArgMinDistancesPerRow for columns. On ties the lowest row
// index wins.
func GetArgMinDistancesPerColumn(distances *mat.Dense) []int {
	_, nCols := distances.Dims()
	indices := make([]int, nCols)
	for j := 0; j < nCols; j++ {
		col := mat.Col(nil, j, distances)
		indices[j] = floats.MinIdx(col)
	}
	return indices
}
