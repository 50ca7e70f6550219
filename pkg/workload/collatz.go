// Package workload provides CPU-bound sample programs to profile, along with
// helpers to spend a measured amount of CPU time.
package workload

import (
	"context"
	"iter"
)

// CollatzSeq yields the Collatz sequence starting at n and ending at 1:
// n/2 for even n, 3n+1 for odd n. It panics if n is zero.
func CollatzSeq(n uint64) iter.Seq[uint64] {
	if n == 0 {
		panic("workload: collatz seed must be a positive integer")
	}
	return func(yield func(uint64) bool) {
		for {
			if !yield(n) || n == 1 {
				return
			}
			if n%2 == 0 {
				n /= 2
			} else {
				n = 3*n + 1
			}
		}
	}
}

// cancelCheck is how many seeds are processed between context checks.
const cancelCheck = 1 << 12

// SeqLengthsCached returns the sequence length for every seed in [1, maxN],
// reusing lengths of already computed seeds.
func SeqLengthsCached(maxN uint64) map[uint64]int {
	lengths, _ := SeqLengthsCachedContext(context.Background(), maxN)
	return lengths
}

// SeqLengthsCachedContext is SeqLengthsCached that stops early with
// ctx.Err() once ctx is done. The partial lengths are returned too.
func SeqLengthsCachedContext(ctx context.Context, maxN uint64) (map[uint64]int, error) {
	cache := make(map[uint64]int, maxN)
	for n := uint64(1); n <= maxN; n++ {
		if n%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return cache, err
			}
		}
		length := 0
		for v := range CollatzSeq(n) {
			if cached, ok := cache[v]; ok {
				length += cached
				break
			}
			length++
		}
		cache[n] = length
	}
	return cache, nil
}

// LongestSequence returns the seed in [1, maxN] producing the longest
// sequence. Ties go to the smallest seed.
func LongestSequence(maxN uint64) uint64 {
	seed, _ := LongestSequenceContext(context.Background(), maxN)
	return seed
}

// LongestSequenceContext is LongestSequence that gives up with ctx.Err()
// once ctx is done.
func LongestSequenceContext(ctx context.Context, maxN uint64) (uint64, error) {
	lengths, err := SeqLengthsCachedContext(ctx, maxN)
	if err != nil {
		return 0, err
	}

	var longest int
	var seed uint64
	for n := uint64(1); n <= maxN; n++ {
		if lengths[n] > longest {
			longest = lengths[n]
			seed = n
		}
	}
	return seed, nil
}
