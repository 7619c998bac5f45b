package models

// ProducerClass groups signal producers for fusion weighting.
type ProducerClass string

const (
	ClassIndicator ProducerClass = "indicator"
	ClassModel     ProducerClass = "model"
	ClassAdvisor   ProducerClass = "advisor"
)

// Direction is the proposed trade direction.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	Flat  Direction = "flat"
)

// Sign maps the direction to {-1, 0, +1}.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// DirectionOf returns the direction matching the sign of x.
func DirectionOf(x float64) Direction {
	switch {
	case x > 0:
		return Long
	case x < 0:
		return Short
	default:
		return Flat
	}
}

// Signal is one producer's view on a symbol for the current cycle.
// Strength is normalized to [-1, 1] regardless of the producer's native
// output range.
type Signal struct {
	Producer  string        `json:"producer"`
	Class     ProducerClass `json:"class"`
	Symbol    string        `json:"symbol"`
	Direction Direction     `json:"direction"`
	Strength  float64       `json:"strength"`
	Rationale string        `json:"rationale,omitempty"`
	// Degraded marks an advisory signal neutralized after a timeout or a
	// malformed structured response.
	Degraded bool `json:"degraded,omitempty"`
}
