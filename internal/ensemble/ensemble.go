package ensemble

import (
	"context"
	"errors"
	"sync"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
)

// Ensemble fans one feature vector out to every loaded predictor. Inference
// slots model the accelerator as a limited-concurrency pool: requests queue
// when all slots are taken rather than failing.
type Ensemble struct {
	predictors []domsvc.Predictor
	slots      chan struct{}
	logger     *logger.Logger
}

// New creates an ensemble over the given predictors. maxConcurrent bounds
// simultaneous in-flight inference calls across all symbols.
func New(lgr *logger.Logger, predictors []domsvc.Predictor, maxConcurrent int) *Ensemble {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Ensemble{
		predictors: predictors,
		slots:      make(chan struct{}, maxConcurrent),
		logger:     lgr,
	}
}

// Size returns the number of loaded predictors.
func (e *Ensemble) Size() int { return len(e.predictors) }

// Predict runs every predictor concurrently and returns the signals of the
// ones that succeeded. A failing model is dropped for this cycle only; the
// caller decides whether the surviving set meets quorum.
func (e *Ensemble) Predict(ctx context.Context, fv *models.FeatureVector) []models.Signal {
	results := make([]models.Signal, len(e.predictors))
	ok := make([]bool, len(e.predictors))

	var wg sync.WaitGroup
	for i, p := range e.predictors {
		wg.Add(1)
		go func(i int, p domsvc.Predictor) {
			defer wg.Done()

			select {
			case e.slots <- struct{}{}:
				defer func() { <-e.slots }()
			case <-ctx.Done():
				return
			}

			sig, err := p.Predict(ctx, fv)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					e.logger.Warn("model dropped for cycle",
						logger.String("model", p.Name()),
						logger.String("symbol", fv.Symbol),
						logger.Error(err))
				}
				return
			}
			results[i] = sig
			ok[i] = true
		}(i, p)
	}
	wg.Wait()

	signals := make([]models.Signal, 0, len(e.predictors))
	for i, delivered := range ok {
		if delivered {
			signals = append(signals, results[i])
		}
	}
	return signals
}
