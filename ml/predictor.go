package ml

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"scrapml/dataset"
)

// Request is a single price prediction query. SubSubCategory is the
// optional leaf category.
type Request struct {
	ScrapType      string  `json:"scrap_type"`
	SubCategory    string  `json:"sub_category"`
	SubSubCategory string  `json:"sub_sub_category,omitempty"`
	Weight         float64 `json:"weight"`
}

// Result carries the scored prices. BasePrice is the per-unit prediction,
// PredictedPrice the total for the requested weight.
type Result struct {
	ScrapType      string  `json:"scrap_type"`
	SubCategory    string  `json:"sub_category"`
	SubSubCategory string  `json:"sub_sub_category,omitempty"`
	Weight         float64 `json:"weight"`
	BasePrice      float64 `json:"base_price"`
	PredictedPrice float64 `json:"predicted_price"`
}

type cacheKey struct {
	generation     uint64
	scrapType      string
	subCategory    string
	subSubCategory string
}

// Predictor scores requests against the manager's current model, adapting
// the input shape to the feature schema the model was trained with. Unit
// prices are cached per category triple and invalidated by model swap
// through the generation in the key.
type Predictor struct {
	manager *Manager
	cache   *lru.Cache[cacheKey, float64]
	logger  *zap.SugaredLogger
}

func NewPredictor(manager *Manager, cacheSize int, logger *zap.SugaredLogger) (*Predictor, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[cacheKey, float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("build prediction cache: %w", err)
	}
	return &Predictor{manager: manager, cache: cache, logger: logger}, nil
}

// Predict validates the request, shapes it for the active model's schema
// and returns the rounded prices. Total price is computed from the raw
// unit prediction, not the rounded base price.
func (p *Predictor) Predict(req Request) (*Result, error) {
	scrap := dataset.NormalizeScrapType(req.ScrapType)
	sub := dataset.NormalizeCategory(req.SubCategory)
	leaf := dataset.NormalizeCategory(req.SubSubCategory)

	switch {
	case scrap == "":
		return nil, fmt.Errorf("%w: scrap_type is required", ErrInvalidRequest)
	case sub == "":
		return nil, fmt.Errorf("%w: sub_category is required", ErrInvalidRequest)
	case math.IsNaN(req.Weight) || math.IsInf(req.Weight, 0) || req.Weight <= 0:
		return nil, fmt.Errorf("%w: weight must be a positive number", ErrInvalidRequest)
	}

	// The generation must be read before the handle. A swap landing between
	// the two reads then caches under the retired key, never the new one.
	gen := p.manager.Generation()
	pipe := p.manager.Current()
	if pipe == nil {
		return nil, ErrModelUnavailable
	}

	unit, err := p.unitPrice(gen, pipe, scrap, sub, leaf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrediction, err)
	}

	unitDec := decimal.NewFromFloat(unit)
	weightDec := decimal.NewFromFloat(req.Weight)
	base, _ := unitDec.Round(2).Float64()
	total, _ := unitDec.Mul(weightDec).Round(2).Float64()

	return &Result{
		ScrapType:      scrap,
		SubCategory:    sub,
		SubSubCategory: leaf,
		Weight:         req.Weight,
		BasePrice:      base,
		PredictedPrice: total,
	}, nil
}

func (p *Predictor) unitPrice(gen uint64, pipe *Pipeline, scrap, sub, leaf string) (float64, error) {
	key := cacheKey{
		generation:     gen,
		scrapType:      scrap,
		subCategory:    sub,
		subSubCategory: leaf,
	}
	if unit, ok := p.cache.Get(key); ok {
		return unit, nil
	}

	unit, err := pipe.Predict(shapeInput(pipe, scrap, sub, leaf))
	if err != nil {
		return 0, err
	}
	p.cache.Add(key, unit)
	return unit, nil
}

// shapeInput adapts a request to the model's expected feature columns. A
// two-feature model takes the scrap type plus the most specific category;
// anything else, including models whose schema cannot be introspected,
// takes the full three-part shape.
func shapeInput(pipe *Pipeline, scrap, sub, leaf string) map[string]string {
	effective := leaf
	if effective == "" {
		effective = sub
	}
	subOrNA := sub
	if subOrNA == "" {
		subOrNA = "N/A"
	}

	cols := pipe.FeatureNames()
	switch pipe.Schema() {
	case SchemaTwoFeature:
		return map[string]string{cols[0]: scrap, cols[1]: effective}
	case SchemaThreeFeature:
		return map[string]string{cols[0]: scrap, cols[1]: subOrNA, cols[2]: effective}
	default:
		return map[string]string{
			dataset.ColScrapType:      scrap,
			dataset.ColSubCategory:    subOrNA,
			dataset.ColSubSubCategory: effective,
		}
	}
}
