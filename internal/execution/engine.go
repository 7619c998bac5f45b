package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/risk"
	"TradeFuse/pkg/backoff"
	"TradeFuse/pkg/logger"

	"github.com/google/uuid"
)

// ErrExecutionFailed is surfaced after the retry budget is exhausted. The
// position is left unchanged.
var ErrExecutionFailed = errors.New("execution failed")

// Engine turns approved verdicts into exchange orders and tracks their
// lifecycle. Submissions for one symbol are serialized; distinct symbols
// proceed in parallel. A submission retries with one client-generated
// idempotency key so the exchange never creates duplicate orders.
type Engine struct {
	exchange domsvc.Exchange
	book     *risk.Book
	storage  drepo.Storage
	metrics  drepo.Metrics
	logger   *logger.Logger
	clock    domsvc.Clock
	policy   backoff.Policy
	retryMax int

	mu        sync.Mutex
	symbolMus map[string]*sync.Mutex
	orders    map[string]*models.Order // by idempotency key
	byExchID  map[string]string        // exchange id -> idempotency key
	seenFills map[string]struct{}
}

// NewEngine creates an execution engine. retryMax bounds submission retries
// after the first attempt.
func NewEngine(
	lgr *logger.Logger,
	exchange domsvc.Exchange,
	book *risk.Book,
	storage drepo.Storage,
	metrics drepo.Metrics,
	clock domsvc.Clock,
	policy backoff.Policy,
	retryMax int,
) *Engine {
	if clock == nil {
		clock = domsvc.RealClock()
	}
	if retryMax < 0 {
		retryMax = 0
	}
	return &Engine{
		exchange:  exchange,
		book:      book,
		storage:   storage,
		metrics:   metrics,
		logger:    lgr,
		clock:     clock,
		policy:    policy,
		retryMax:  retryMax,
		symbolMus: make(map[string]*sync.Mutex),
		orders:    make(map[string]*models.Order),
		byExchID:  make(map[string]string),
		seenFills: make(map[string]struct{}),
	}
}

// Submit places an order for an approved verdict and is a no-op otherwise.
func (e *Engine) Submit(ctx context.Context, verdict models.RiskVerdict) (*models.Order, error) {
	if !verdict.Approved || verdict.Decision == nil {
		return nil, nil
	}
	d := verdict.Decision

	lock := e.symbolLock(d.Symbol)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	order := &models.Order{
		IdempotencyKey: uuid.NewString(),
		Symbol:         d.Symbol,
		Side:           models.SideFor(d.Direction),
		Quantity:       verdict.Quantity,
		Status:         models.OrderPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.track(order)

	req := domsvc.OrderRequest{
		Symbol:         order.Symbol,
		Side:           order.Side,
		Quantity:       order.Quantity,
		IdempotencyKey: order.IdempotencyKey,
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if err := backoff.Wait(ctx, e.clock, e.policy, attempt); err != nil {
			lastErr = err
			break
		}

		ack, err := e.exchange.PlaceOrder(ctx, req)
		if err != nil {
			lastErr = err
			e.metrics.RecordError("order_submit")
			e.logger.Warn("order submit attempt failed",
				logger.String("symbol", order.Symbol),
				logger.Int("attempt", attempt+1),
				logger.Error(err))
			continue
		}

		e.acknowledge(order, ack)
		e.persist(ctx, order)
		e.metrics.RecordOrder(string(order.Status))
		e.logger.Info("order submitted",
			logger.String("symbol", order.Symbol),
			logger.String("side", string(order.Side)),
			logger.String("exchange_id", order.ExchangeID),
			logger.String("status", string(order.Status)))
		return order, nil
	}

	e.transition(order, models.OrderRejected)
	e.persist(ctx, order)
	e.metrics.RecordOrder(string(models.OrderRejected))
	return order, fmt.Errorf("%w: %s after %d attempts: %v",
		ErrExecutionFailed, order.Symbol, e.retryMax+1, lastErr)
}

func (e *Engine) acknowledge(order *models.Order, ack domsvc.OrderAck) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order.ExchangeID = ack.ExchangeID
	e.byExchID[ack.ExchangeID] = order.IdempotencyKey

	next := ack.Status
	if next == "" {
		next = models.OrderOpen
	}
	if order.Status.CanTransition(next) {
		order.Status = next
		order.UpdatedAt = e.clock.Now()
	}
}

// ApplyFill folds an execution report into the order and the position book.
// Redelivered fills (same exchange fill id) are dropped, so a fill never
// moves the position twice.
func (e *Engine) ApplyFill(ctx context.Context, f models.Fill) error {
	e.mu.Lock()
	if _, dup := e.seenFills[f.FillID]; dup {
		e.mu.Unlock()
		return nil
	}

	key, ok := e.byExchID[f.ExchangeID]
	var order *models.Order
	if ok {
		order = e.orders[key]
	}
	if order == nil {
		// Not marked seen: a fill racing ahead of the submit ack must
		// still count when the exchange redelivers it.
		e.mu.Unlock()
		return fmt.Errorf("fill for unknown order %s", f.ExchangeID)
	}
	e.seenFills[f.FillID] = struct{}{}
	e.mu.Unlock()

	e.book.ApplyFill(f)

	e.mu.Lock()
	order.FilledQty = order.FilledQty.Add(f.Quantity)
	next := models.OrderPartiallyFilled
	if order.FilledQty.GreaterThanOrEqual(order.Quantity) {
		next = models.OrderFilled
	}
	if order.Status.CanTransition(next) {
		order.Status = next
		order.UpdatedAt = e.clock.Now()
	}
	e.mu.Unlock()

	e.persist(ctx, order)
	e.metrics.RecordOrder(string(order.Status))
	return nil
}

// RequestCancel explicitly cancels an acknowledged order. Orders are never
// cancelled implicitly once the exchange has acknowledged them.
func (e *Engine) RequestCancel(ctx context.Context, symbol, exchangeID string) error {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	if err := e.exchange.CancelOrder(ctx, symbol, exchangeID); err != nil {
		e.metrics.RecordError("order_cancel")
		return fmt.Errorf("cancel %s: %w", exchangeID, err)
	}

	e.mu.Lock()
	var order *models.Order
	if key, ok := e.byExchID[exchangeID]; ok {
		order = e.orders[key]
	}
	if order != nil && order.Status.CanTransition(models.OrderCancelled) {
		order.Status = models.OrderCancelled
		order.UpdatedAt = e.clock.Now()
	}
	e.mu.Unlock()

	if order != nil {
		e.persist(ctx, order)
		e.metrics.RecordOrder(string(models.OrderCancelled))
	}
	return nil
}

// Order returns a copy of the tracked order by idempotency key.
func (e *Engine) Order(idempotencyKey string) (models.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o, ok := e.orders[idempotencyKey]; ok {
		return *o, true
	}
	return models.Order{}, false
}

// OpenOrders returns copies of all orders not yet terminal.
func (e *Engine) OpenOrders(symbol string) []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.Order
	for _, o := range e.orders {
		if o.Symbol == symbol && !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

func (e *Engine) track(order *models.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[order.IdempotencyKey] = order
}

func (e *Engine) transition(order *models.Order, next models.OrderStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if order.Status.CanTransition(next) {
		order.Status = next
		order.UpdatedAt = e.clock.Now()
	}
}

func (e *Engine) persist(ctx context.Context, order *models.Order) {
	if e.storage == nil {
		return
	}
	e.mu.Lock()
	snapshot := *order
	e.mu.Unlock()
	if err := e.storage.StoreOrder(ctx, &snapshot); err != nil {
		e.metrics.RecordError("order_store")
		e.logger.Warn("order store failed",
			logger.String("symbol", order.Symbol),
			logger.Error(err))
	}
}

func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.symbolMus[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.symbolMus[symbol] = lock
	}
	return lock
}
