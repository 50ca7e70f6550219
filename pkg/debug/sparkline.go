package debug

import (
	"strings"

	"github.com/danpilch/schaap/pkg/sink"
)

// sparkWidth caps the number of columns a sparkline occupies.
const sparkWidth = 60

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// DepthSparkline renders stack depth across samples, oldest on the left.
// Long sample runs are folded into sparkWidth buckets by averaging.
func DepthSparkline(samples []sink.Sample) string {
	if len(samples) == 0 {
		return ""
	}
	depths := make([]float64, len(samples))
	for i, s := range samples {
		depths[i] = float64(len(s.Trace))
	}
	return renderSparkline(bucket(depths, sparkWidth))
}

func bucket(values []float64, width int) []float64 {
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		lo := i * len(values) / width
		hi := (i + 1) * len(values) / width
		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func renderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	rng := hi - lo
	for _, v := range values {
		idx := 0
		if rng > 0 {
			idx = int((v - lo) / rng * float64(len(sparkBlocks)-1))
		}
		b.WriteRune(sparkBlocks[min(max(idx, 0), len(sparkBlocks)-1)])
	}
	return b.String()
}
