package stats

import "math"

// Welford accumulates a running mean and variance over a stream of
// per-sample degree observations. The degree estimate served to the
// planner is the running mean; the variance is kept alongside it for
// confidence heuristics.
type Welford struct {
	count uint64
	mean  float64
	m2    float64
}

func NewWelford() *Welford {
	return &Welford{
		count: 0,
		mean:  0,
		m2:    0,
	}
}

func (welford *Welford) Update(value float64) {
	welford.count++
	delta := value - welford.mean
	welford.mean += delta / float64(welford.count)
	delta2 := value - welford.mean
	welford.m2 += delta * delta2
}

func (welford *Welford) GetCount() uint64 {
	return welford.count
}

func (welford *Welford) GetMean() float64 {
	return welford.mean
}

func (welford *Welford) GetVariance() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.m2 / float64(welford.count)
}

func (welford *Welford) GetSampleVariance() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.m2 / float64(welford.count-1)
}

func (welford *Welford) GetSD() float64 {
	return math.Sqrt(welford.GetSampleVariance())
}

// State exposes the raw accumulator fields for the snapshot codec.
func (welford *Welford) State() (uint64, float64, float64) {
	return welford.count, welford.mean, welford.m2
}

// RestoreWelford rebuilds an accumulator from persisted state, so a
// restored accumulator continues exactly where the saved one left off.
func RestoreWelford(count uint64, mean, m2 float64) *Welford {
	return &Welford{
		count: count,
		mean:  mean,
		m2:    m2,
	}
}

func (welford *Welford) Equal(other *Welford) bool {
	return welford.count == other.count &&
		welford.mean == other.mean &&
		welford.m2 == other.m2
}
