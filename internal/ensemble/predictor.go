package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"TradeFuse/internal/domain/models"
	domsvc "TradeFuse/internal/domain/service"
)

// ErrModelUnavailable marks a single-model inference failure. The ensemble
// drops that producer for the cycle and continues with the rest.
var ErrModelUnavailable = errors.New("model unavailable")

const (
	KindClassify = "classify"
	KindRegress  = "regress"
)

// Classifier scores a feature vector through a remote classification model.
// The service returns the probability of an upward move; strength maps
// linearly so that proba 0.5 is neutral.
type Classifier struct {
	*httpServiceBase
	name string
}

// NewClassifier creates a classify-capability predictor.
func NewClassifier(name, baseURL string, timeout time.Duration) *Classifier {
	return &Classifier{
		httpServiceBase: newHTTPServiceBase(baseURL, timeout),
		name:            name,
	}
}

func (c *Classifier) Name() string { return c.name }
func (c *Classifier) Kind() string { return KindClassify }

type classifyReq struct {
	Model    string             `json:"model"`
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
}

type classifyResp struct {
	ProbaUp float64 `json:"proba_up"`
}

// Predict returns a model-class signal with strength 2*probaUp-1.
func (c *Classifier) Predict(ctx context.Context, fv *models.FeatureVector) (models.Signal, error) {
	var resp classifyResp
	err := c.postJSON(ctx, "/v1/classify", classifyReq{
		Model:    c.name,
		Symbol:   fv.Symbol,
		Features: fv.Features,
	}, &resp)
	if err != nil {
		return models.Signal{}, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, c.name, err)
	}
	if resp.ProbaUp < 0 || resp.ProbaUp > 1 {
		return models.Signal{}, fmt.Errorf("%w: %s: proba_up %f out of range", ErrModelUnavailable, c.name, resp.ProbaUp)
	}

	strength := 2*resp.ProbaUp - 1
	return models.Signal{
		Producer:  c.name,
		Class:     models.ClassModel,
		Symbol:    fv.Symbol,
		Direction: models.DirectionOf(strength),
		Strength:  strength,
	}, nil
}

// Regressor scores a feature vector through a remote regression model. The
// raw predicted return is squashed through tanh(value/scale) onto [-1, 1].
type Regressor struct {
	*httpServiceBase
	name  string
	scale float64
}

// NewRegressor creates a regress-capability predictor. scale calibrates at
// what raw magnitude the squashed strength saturates.
func NewRegressor(name, baseURL string, scale float64, timeout time.Duration) *Regressor {
	if scale <= 0 {
		scale = 1
	}
	return &Regressor{
		httpServiceBase: newHTTPServiceBase(baseURL, timeout),
		name:            name,
		scale:           scale,
	}
}

func (r *Regressor) Name() string { return r.name }
func (r *Regressor) Kind() string { return KindRegress }

type regressReq struct {
	Model    string             `json:"model"`
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
}

type regressResp struct {
	Value float64 `json:"value"`
}

// Predict returns a model-class signal with tanh-normalized strength.
func (r *Regressor) Predict(ctx context.Context, fv *models.FeatureVector) (models.Signal, error) {
	var resp regressResp
	err := r.postJSON(ctx, "/v1/regress", regressReq{
		Model:    r.name,
		Symbol:   fv.Symbol,
		Features: fv.Features,
	}, &resp)
	if err != nil {
		return models.Signal{}, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, r.name, err)
	}
	if math.IsNaN(resp.Value) || math.IsInf(resp.Value, 0) {
		return models.Signal{}, fmt.Errorf("%w: %s: non-finite value", ErrModelUnavailable, r.name)
	}

	strength := math.Tanh(resp.Value / r.scale)
	return models.Signal{
		Producer:  r.name,
		Class:     models.ClassModel,
		Symbol:    fv.Symbol,
		Direction: models.DirectionOf(strength),
		Strength:  strength,
	}, nil
}

var (
	_ domsvc.Predictor = (*Classifier)(nil)
	_ domsvc.Predictor = (*Regressor)(nil)
)
