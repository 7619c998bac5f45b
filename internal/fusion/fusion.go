package fusion

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"TradeFuse/internal/domain/models"

	"github.com/google/uuid"
)

// ErrQuorumNotMet aborts the cycle when fewer producers delivered than the
// configured minimum. No Decision is emitted.
var ErrQuorumNotMet = errors.New("signal quorum not met")

// DefaultWeights is the standard per-class weighting.
func DefaultWeights() map[models.ProducerClass]float64 {
	return map[models.ProducerClass]float64{
		models.ClassIndicator: 0.3,
		models.ClassModel:     0.5,
		models.ClassAdvisor:   0.2,
	}
}

// Fuser combines per-cycle signals into one Decision. Fusion is
// deterministic: identical signal sets, in any order, yield identical
// decisions apart from the cycle id and timestamp.
type Fuser struct {
	weights   map[models.ProducerClass]float64
	minQuorum int
}

// New creates a fuser. minQuorum counts delivered signals, including a
// degraded advisor verdict.
func New(weights map[models.ProducerClass]float64, minQuorum int) *Fuser {
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	if minQuorum <= 0 {
		minQuorum = 1
	}
	return &Fuser{weights: weights, minQuorum: minQuorum}
}

// Fuse combines signals for one symbol. Per class, strengths are averaged
// and scaled by the class weight; classes that delivered nothing shrink the
// weight pool, so present classes are re-normalized rather than diluted by
// silent zero-fill. A weighted sum of exactly zero resolves to flat.
func (f *Fuser) Fuse(symbol string, signals []models.Signal, anchorPrice float64, now time.Time) (*models.Decision, error) {
	if len(signals) < f.minQuorum {
		return nil, fmt.Errorf("%w: have %d signals, need %d", ErrQuorumNotMet, len(signals), f.minQuorum)
	}

	sums := make(map[models.ProducerClass]float64)
	counts := make(map[models.ProducerClass]int)
	for _, s := range signals {
		sums[s.Class] += s.Strength
		counts[s.Class]++
	}

	var weighted, present, total float64
	for class, weight := range f.weights {
		total += weight
		n := counts[class]
		if n == 0 {
			continue
		}
		present += weight
		weighted += weight * (sums[class] / float64(n))
	}

	if present == 0 {
		return nil, fmt.Errorf("%w: no weighted producer class delivered", ErrQuorumNotMet)
	}

	// re-normalize for absent classes
	confidence := weighted * (total / present)
	if confidence < 0 {
		confidence = -confidence
	}
	if confidence > 1 {
		confidence = 1
	}

	ordered := make([]models.Signal, len(signals))
	copy(ordered, signals)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Class != ordered[j].Class {
			return ordered[i].Class < ordered[j].Class
		}
		return ordered[i].Producer < ordered[j].Producer
	})

	return &models.Decision{
		CycleID:     uuid.NewString(),
		Symbol:      symbol,
		Direction:   models.DirectionOf(weighted),
		Confidence:  confidence,
		Signals:     ordered,
		AnchorPrice: anchorPrice,
		Timestamp:   now,
	}, nil
}
