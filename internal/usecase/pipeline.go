package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/internal/ensemble"
	"TradeFuse/internal/execution"
	"TradeFuse/internal/fusion"
	"TradeFuse/internal/indicator"
	"TradeFuse/internal/marketdata"
	"TradeFuse/internal/risk"
	"TradeFuse/pkg/logger"

	"github.com/shopspring/decimal"
)

// cycleState tracks one in-flight evaluation for stale-decision
// cancellation.
type cycleState struct {
	cancel      context.CancelFunc
	anchorPrice float64
}

// Pipeline runs the per-symbol evaluation cycle: indicator, ensemble and
// advisor producers fan out concurrently, fusion joins them, risk rules and
// execution follow. One cycle per symbol may be in flight at a time;
// symbols run independently, and a failure in one symbol's cycle never
// touches another's.
type Pipeline struct {
	indicators *indicator.Engine
	ensemble   *ensemble.Ensemble
	advisor    domsvc.Advisor
	fuser      *fusion.Fuser
	riskMgr    *risk.Manager
	exec       *execution.Engine
	builder    *marketdata.Builder
	publisher  drepo.Publisher
	storage    drepo.Storage
	metrics    drepo.Metrics
	notifier   domsvc.Notifier
	clock      domsvc.Clock
	logger     *logger.Logger

	tf            drepo.Timeframe
	lookback      int
	atrPeriod     int
	staleDriftPct float64

	mu       sync.Mutex
	inflight map[string]*cycleState
}

// PipelineParams carries the evaluation parameters.
type PipelineParams struct {
	Timeframe     drepo.Timeframe
	Lookback      int
	ATRPeriod     int
	StaleDriftPct float64 // percent drift from anchor that cancels a cycle
}

// NewPipeline wires the evaluation pipeline.
func NewPipeline(
	lgr *logger.Logger,
	indicators *indicator.Engine,
	ens *ensemble.Ensemble,
	adv domsvc.Advisor,
	fuser *fusion.Fuser,
	riskMgr *risk.Manager,
	exec *execution.Engine,
	builder *marketdata.Builder,
	publisher drepo.Publisher,
	storage drepo.Storage,
	metrics drepo.Metrics,
	notifier domsvc.Notifier,
	clock domsvc.Clock,
	params PipelineParams,
) *Pipeline {
	if params.Lookback <= 0 {
		params.Lookback = 250
	}
	if params.ATRPeriod <= 0 {
		params.ATRPeriod = 14
	}
	if clock == nil {
		clock = domsvc.RealClock()
	}
	return &Pipeline{
		indicators:    indicators,
		ensemble:      ens,
		advisor:       adv,
		fuser:         fuser,
		riskMgr:       riskMgr,
		exec:          exec,
		builder:       builder,
		publisher:     publisher,
		storage:       storage,
		metrics:       metrics,
		notifier:      notifier,
		clock:         clock,
		logger:        lgr,
		tf:            params.Timeframe,
		lookback:      params.Lookback,
		atrPeriod:     params.ATRPeriod,
		staleDriftPct: params.StaleDriftPct,
		inflight:      make(map[string]*cycleState),
	}
}

// ObserveTick cancels a stale in-flight cycle when the market has drifted
// past the configured threshold from the cycle's anchor price.
func (p *Pipeline) ObserveTick(t *models.Tick) {
	if p.staleDriftPct <= 0 {
		return
	}

	p.mu.Lock()
	cs, ok := p.inflight[t.Symbol]
	p.mu.Unlock()
	if !ok || cs.anchorPrice == 0 {
		return
	}

	drift := math.Abs(t.Last-cs.anchorPrice) / cs.anchorPrice * 100
	if drift >= p.staleDriftPct {
		p.logger.Info("cancelling stale evaluation cycle",
			logger.String("symbol", t.Symbol),
			logger.Float64("drift_pct", drift))
		cs.cancel()
	}
}

// Evaluate runs one cycle for symbol. It returns nil without a decision
// when the cycle is skipped (insufficient history, quorum not met, prior
// cycle still in flight, flat direction).
func (p *Pipeline) Evaluate(ctx context.Context, symbol string) error {
	if err := p.riskMgr.Begin(symbol); err != nil {
		if errors.Is(err, risk.ErrCycleInFlight) {
			return nil
		}
		return err
	}
	defer p.riskMgr.Complete(symbol)

	anchor, _ := p.builder.LastPrice(symbol)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.inflight[symbol] = &cycleState{cancel: cancel, anchorPrice: anchor}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inflight, symbol)
		p.mu.Unlock()
	}()

	start := p.clock.Now()
	decision, verdict, err := p.cycle(cctx, symbol, anchor)
	p.metrics.RecordLatency("evaluation_cycle", time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if decision == nil {
		return nil
	}

	p.record(ctx, decision, verdict)
	return nil
}

func (p *Pipeline) cycle(ctx context.Context, symbol string, anchor float64) (*models.Decision, *models.RiskVerdict, error) {
	candles, err := p.builder.GetLatestNCandles(ctx, symbol, p.lookback, p.tf)
	if err != nil {
		return nil, nil, fmt.Errorf("load candles: %w", err)
	}

	fv, err := p.indicators.Compute(candles)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientHistory) {
			p.logger.Debug("cycle skipped",
				logger.String("symbol", symbol),
				logger.Error(err))
			return nil, nil, nil
		}
		return nil, nil, err
	}

	signals := p.gather(ctx, symbol, fv, candles)
	if err := ctx.Err(); err != nil {
		// stale-cancelled mid-flight
		return nil, nil, nil
	}

	decision, err := p.fuser.Fuse(symbol, signals, anchor, p.clock.Now())
	if err != nil {
		if errors.Is(err, fusion.ErrQuorumNotMet) {
			p.metrics.RecordError("quorum_not_met")
			p.logger.Warn("cycle aborted",
				logger.String("symbol", symbol),
				logger.Error(err))
			return nil, nil, nil
		}
		return nil, nil, err
	}
	p.metrics.RecordDecision(symbol, string(decision.Direction))

	if decision.Direction == models.Flat {
		return decision, nil, nil
	}

	atr := fv.Get(fmt.Sprintf("atr_%d", p.atrPeriod))
	verdict := p.riskMgr.Evaluate(decision, atr, p.marks())
	return decision, &verdict, nil
}

// gather fans the producers out concurrently and joins their signals. The
// advisor participates with a degraded neutral verdict when it times out,
// so it never blocks indicator/model-only fusion beyond its own deadline.
func (p *Pipeline) gather(ctx context.Context, symbol string, fv *models.FeatureVector, candles []models.Candle) []models.Signal {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		signals []models.Signal
	)
	add := func(sigs ...models.Signal) {
		mu.Lock()
		signals = append(signals, sigs...)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		add(p.indicators.Signals(fv)...)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		add(p.ensemble.Predict(ctx, fv)...)
	}()

	if p.advisor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			add(p.advisor.Advise(ctx, symbol, candles))
		}()
	}

	wg.Wait()
	return signals
}

func (p *Pipeline) record(ctx context.Context, decision *models.Decision, verdict *models.RiskVerdict) {
	if err := p.storage.StoreDecision(ctx, decision); err != nil {
		p.metrics.RecordError("decision_store")
		p.logger.Warn("decision store failed",
			logger.String("symbol", decision.Symbol),
			logger.Error(err))
	}
	if err := p.publisher.PublishDecision(ctx, decision); err != nil {
		p.metrics.RecordError("decision_publish")
		p.logger.Warn("decision publish failed",
			logger.String("symbol", decision.Symbol),
			logger.Error(err))
	}

	if verdict == nil || !verdict.Approved {
		return
	}

	order, err := p.exec.Submit(ctx, *verdict)
	if err != nil {
		if errors.Is(err, execution.ErrExecutionFailed) {
			p.notifier.Notify(ctx, domsvc.Event{
				Kind:     domsvc.EventExecFailed,
				Symbol:   decision.Symbol,
				Title:    "Order submission failed",
				Body:     err.Error(),
				Priority: "high",
			})
		}
		p.logger.Error("execution failed",
			logger.String("symbol", decision.Symbol),
			logger.Error(err))
		return
	}
	if order != nil {
		p.notifier.Notify(ctx, domsvc.Event{
			Kind:   domsvc.EventOrder,
			Symbol: order.Symbol,
			Title:  "Order submitted",
			Body: fmt.Sprintf("%s %s %s @ market (confidence %.2f)",
				order.Side, order.Quantity, order.Symbol, decision.Confidence),
			Priority: "normal",
		})
	}
}

// marks snapshots last prices for exposure valuation.
func (p *Pipeline) marks() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, pos := range p.riskMgr.Book().Positions() {
		if price, ok := p.builder.LastPrice(pos.Symbol); ok {
			out[pos.Symbol] = decimal.NewFromFloat(price)
		}
	}
	return out
}
