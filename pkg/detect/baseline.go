package detect

import "math"

const (
	// baselineCapacity bounds the completed-window history per category
	baselineCapacity = 32
	// stddevFloor keeps z-scores finite over quiet baselines
	stddevFloor = 0.5
	// minBaselineSamples gates alerting until the baseline has substance
	minBaselineSamples = 3
)

// baseline summarizes the history of completed-window event counts for one
// category. Implementations are not safe for concurrent use; each category
// state is owned by its producer goroutine.
type baseline interface {
	Push(count int)
	Ready() bool
	MeanStddev() (mean, stddev float64)
}

// slidingBaseline keeps a bounded history of the most recent completed
// windows and derives mean/stddev from it
type slidingBaseline struct {
	counts []int
}

func newSlidingBaseline() *slidingBaseline {
	return &slidingBaseline{counts: make([]int, 0, baselineCapacity)}
}

func (b *slidingBaseline) Push(count int) {
	b.counts = append(b.counts, count)
	if len(b.counts) > baselineCapacity {
		b.counts = b.counts[len(b.counts)-baselineCapacity:]
	}
}

func (b *slidingBaseline) Ready() bool {
	return len(b.counts) >= minBaselineSamples
}

// MeanStddev returns the baseline mean and stddev, with the stddev floored
// so a perfectly regular history cannot produce unbounded z-scores
func (b *slidingBaseline) MeanStddev() (float64, float64) {
	n := float64(len(b.counts))
	if n == 0 {
		return 0, stddevFloor
	}

	var sum float64
	for _, c := range b.counts {
		sum += float64(c)
	}
	mean := sum / n

	var variance float64
	for _, c := range b.counts {
		d := float64(c) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / n)
	if stddev < stddevFloor {
		stddev = stddevFloor
	}
	return mean, stddev
}
