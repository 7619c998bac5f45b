package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the fused output of one evaluation cycle for one symbol.
type Decision struct {
	CycleID     string    `json:"cycle_id"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"` // [0, 1]
	Signals     []Signal  `json:"signals"`
	AnchorPrice float64   `json:"anchor_price"`
	Timestamp   time.Time `json:"timestamp"`
}

// RiskVerdict is the risk manager's ruling on a decision. Quantity is only
// meaningful when Approved is true.
type RiskVerdict struct {
	Decision *Decision       `json:"decision"`
	Approved bool            `json:"approved"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason,omitempty"`
}
