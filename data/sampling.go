package data

import "golang.org/x/exp/rand"

// Permutation returns a random ordering of [0, n) drawn from rng.
func Permutation(n int, rng *rand.Rand) []int {
	return rng.Perm(n)
}

// TakeWrap selects positions [lo, hi) of perm, wrapping around its end.
func TakeWrap(perm []int, lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, perm[i%len(perm)])
	}
	return out
}

// TakeClip selects sample indices [lo, hi) of a dataset of size n; positions
// past the end repeat the last valid index.
func TakeClip(n, lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		switch {
		case i >= n:
			out = append(out, n-1)
		case i < 0:
			out = append(out, 0)
		default:
			out = append(out, i)
		}
	}
	return out
}

// NumBatches is ceil(samples / batchSize).
func NumBatches(samples, batchSize int) int {
	return (samples + batchSize - 1) / batchSize
}
