package stats

// Direction of a relationship relative to a node.
type Direction int32

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// DegreeKey identifies one degree accumulator.
type DegreeKey struct {
	Label     int64
	RelType   int64
	Direction Direction
}

// LabelledDistribution is the read-optimized product of a frequency
// counter: each key's probability is its occurrence count divided by the
// total occurrences in the distribution. Probabilities sum to 1 when the
// distribution is non-empty, 0 otherwise. Instances are immutable once
// built; readers may hold them across recomputes.
type LabelledDistribution struct {
	Probabilities map[int64]float64
	Total         int64
}

func NewLabelledDistribution(frequencies map[int64]int64) *LabelledDistribution {
	total := int64(0)
	for _, count := range frequencies {
		total += count
	}

	probabilities := make(map[int64]float64, len(frequencies))
	for id, count := range frequencies {
		probabilities[id] = float64(count) / float64(total)
	}

	return &LabelledDistribution{
		Probabilities: probabilities,
		Total:         total,
	}
}

// Probability of the given id; 0 for ids never observed.
func (dist *LabelledDistribution) Probability(id int64) float64 {
	return dist.Probabilities[id]
}

func (dist *LabelledDistribution) Len() int {
	return len(dist.Probabilities)
}
