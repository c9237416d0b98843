package swim

import "math/rand/v2"

// shuffledIndices returns a Fisher-Yates permutation of [0, n), used
// as the round-robin probe order of spec.md §4.7.3, regenerated on
// any membership change and whenever an epoch completes.
func shuffledIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}
