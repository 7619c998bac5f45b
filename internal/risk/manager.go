package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"

	"github.com/shopspring/decimal"
)

// ErrCycleInFlight guards the per-symbol state machine: a symbol cannot
// re-enter Evaluating until the prior cycle reached a terminal state.
var ErrCycleInFlight = errors.New("risk cycle already in flight")

// State is the per-symbol risk cycle state.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
)

// Rejection reasons. Verdicts reject, they never clamp.
const (
	ReasonLowConfidence  = "confidence below minimum"
	ReasonFlipCooldown   = "direction flip inside cooldown window"
	ReasonSymbolExposure = "per-symbol notional limit exceeded"
	ReasonTotalExposure  = "aggregate notional limit exceeded"
	ReasonDrawdown       = "drawdown limit exceeded"
	ReasonNoStopDistance = "no usable stop distance"
)

// Limits is the risk configuration surface.
type Limits struct {
	Equity            decimal.Decimal
	RiskPct           float64 // fraction of equity risked per trade
	StopATRMult       float64 // stop distance in ATR multiples
	MaxSymbolNotional decimal.Decimal
	MaxTotalNotional  decimal.Decimal
	MaxDrawdown       float64 // loss fraction of equity halting new entries
	MinConfidence     float64
	FlipCooldown      time.Duration
}

type flipRecord struct {
	direction models.Direction
	at        time.Time
}

// Manager validates fused decisions against exposure, cooldown and
// confidence limits, and sizes approved decisions with a fractional-risk
// rule. One state machine per symbol serializes its cycles.
type Manager struct {
	limits Limits
	book   *Book
	clock  domsvc.Clock
	logger *logger.Logger

	mu        sync.Mutex
	states    map[string]State
	lastEntry map[string]flipRecord
}

// NewManager creates a risk manager over the shared position book.
func NewManager(lgr *logger.Logger, limits Limits, book *Book, clock domsvc.Clock) *Manager {
	if clock == nil {
		clock = domsvc.RealClock()
	}
	return &Manager{
		limits:    limits,
		book:      book,
		clock:     clock,
		logger:    lgr,
		states:    make(map[string]State),
		lastEntry: make(map[string]flipRecord),
	}
}

// Book returns the shared position book.
func (m *Manager) Book() *Book { return m.book }

// State returns the current cycle state for symbol.
func (m *Manager) State(symbol string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state(symbol)
}

func (m *Manager) state(symbol string) State {
	if s, ok := m.states[symbol]; ok {
		return s
	}
	return StateIdle
}

// Begin moves the symbol from Idle to Evaluating. It fails with
// ErrCycleInFlight when the prior cycle has not completed.
func (m *Manager) Begin(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.state(symbol); s != StateIdle {
		return fmt.Errorf("%w: %s is %s", ErrCycleInFlight, symbol, s)
	}
	m.states[symbol] = StateEvaluating
	return nil
}

// Complete returns the symbol to Idle after the cycle's terminal state.
func (m *Manager) Complete(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[symbol] = StateIdle
}

// Evaluate rules on a decision. atr is the current average true range used
// for stop distance; marks are last prices for exposure valuation.
func (m *Manager) Evaluate(d *models.Decision, atr float64, marks map[string]decimal.Decimal) models.RiskVerdict {
	verdict := m.evaluate(d, atr, marks)

	m.mu.Lock()
	if verdict.Approved {
		m.states[d.Symbol] = StateApproved
		m.lastEntry[d.Symbol] = flipRecord{direction: d.Direction, at: m.clock.Now()}
	} else {
		m.states[d.Symbol] = StateRejected
	}
	m.mu.Unlock()

	if !verdict.Approved {
		m.logger.Info("decision rejected",
			logger.String("symbol", d.Symbol),
			logger.String("reason", verdict.Reason),
			logger.Float64("confidence", d.Confidence))
	}
	return verdict
}

func (m *Manager) evaluate(d *models.Decision, atr float64, marks map[string]decimal.Decimal) models.RiskVerdict {
	if d.Confidence < m.limits.MinConfidence {
		return reject(d, ReasonLowConfidence)
	}

	if reason := m.checkDrawdown(marks); reason != "" {
		return reject(d, reason)
	}

	pos := m.book.Position(d.Symbol)
	if reason := m.checkFlipCooldown(d, pos); reason != "" {
		return reject(d, reason)
	}

	qty, reason := m.size(d, atr)
	if reason != "" {
		return reject(d, reason)
	}

	if reason := m.checkExposure(d, pos, qty, marks); reason != "" {
		return reject(d, reason)
	}

	return models.RiskVerdict{Decision: d, Approved: true, Quantity: qty}
}

// checkFlipCooldown rejects a direction reversal of an open position inside
// the cooldown window.
func (m *Manager) checkFlipCooldown(d *models.Decision, pos models.Position) string {
	posDir := pos.Direction()
	if posDir == models.Flat || d.Direction == posDir {
		return ""
	}

	m.mu.Lock()
	last, ok := m.lastEntry[d.Symbol]
	m.mu.Unlock()
	if !ok {
		return ""
	}

	if m.clock.Now().Sub(last.at) < m.limits.FlipCooldown {
		return ReasonFlipCooldown
	}
	return ""
}

// checkDrawdown rejects any new entry while the account loss at current
// marks meets or exceeds MaxDrawdown of equity. Existing positions stay
// untouched; the guard and operator decide whether to flatten.
func (m *Manager) checkDrawdown(marks map[string]decimal.Decimal) string {
	if m.limits.MaxDrawdown <= 0 {
		return ""
	}

	pnl := m.book.TotalPnL(marks)
	if pnl.Sign() >= 0 {
		return ""
	}

	allowed := m.limits.Equity.Mul(decimal.NewFromFloat(m.limits.MaxDrawdown))
	if pnl.Neg().GreaterThanOrEqual(allowed) {
		return ReasonDrawdown
	}
	return ""
}

// size applies the fractional-risk rule: quantity = equity * riskPct over
// the ATR-derived stop distance.
func (m *Manager) size(d *models.Decision, atr float64) (decimal.Decimal, string) {
	stopDistance := atr * m.limits.StopATRMult
	if stopDistance <= 0 {
		return decimal.Zero, ReasonNoStopDistance
	}

	riskBudget := m.limits.Equity.Mul(decimal.NewFromFloat(m.limits.RiskPct))
	qty := riskBudget.Div(decimal.NewFromFloat(stopDistance))
	if qty.Sign() <= 0 {
		return decimal.Zero, ReasonNoStopDistance
	}
	return qty.Round(8), ""
}

func (m *Manager) checkExposure(d *models.Decision, pos models.Position, qty decimal.Decimal, marks map[string]decimal.Decimal) string {
	mark, ok := marks[d.Symbol]
	if !ok || mark.IsZero() {
		mark = decimal.NewFromFloat(d.AnchorPrice)
	}
	added := qty.Mul(mark)

	if m.limits.MaxSymbolNotional.Sign() > 0 {
		if pos.Notional(mark).Add(added).GreaterThan(m.limits.MaxSymbolNotional) {
			return ReasonSymbolExposure
		}
	}

	if m.limits.MaxTotalNotional.Sign() > 0 {
		if m.book.TotalNotional(marks).Add(added).GreaterThan(m.limits.MaxTotalNotional) {
			return ReasonTotalExposure
		}
	}
	return ""
}

func reject(d *models.Decision, reason string) models.RiskVerdict {
	return models.RiskVerdict{Decision: d, Approved: false, Reason: reason}
}
