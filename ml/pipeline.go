// Package ml implements the scrap price model: one-hot encoding over the
// category columns, a bagged regression forest on top, and the lifecycle
// around the persisted artifact.
package ml

import (
	"fmt"
	"time"

	"scrapml/dataset"
)

// InputSchema tags how many named features a trained pipeline expects.
type InputSchema int

const (
	SchemaUnknown InputSchema = iota
	SchemaTwoFeature
	SchemaThreeFeature
)

func (s InputSchema) String() string {
	switch s {
	case SchemaTwoFeature:
		return "two_feature"
	case SchemaThreeFeature:
		return "three_feature"
	default:
		return "unknown"
	}
}

// Pipeline is one trained model: the encoder for the categorical inputs and
// the forest fit on the encoded vectors. Predict is safe for concurrent use.
type Pipeline struct {
	Columns   []string       `json:"feature_columns"`
	Encoder   *OneHotEncoder `json:"encoder"`
	Forest    *Forest        `json:"forest"`
	TrainedAt time.Time      `json:"trained_at"`
	RowCount  int            `json:"row_count"`
}

// TrainOptions tune pipeline fitting. Zero values fall back to defaults.
type TrainOptions struct {
	Trees    int
	Seed     int64
	MaxDepth int
}

// trainColumns is the feature layout new models train on. Two-column
// artifacts from earlier schema versions still load and serve.
var trainColumns = []string{
	dataset.ColScrapType,
	dataset.ColSubCategory,
	dataset.ColSubSubCategory,
}

func fitPipeline(ds *dataset.Dataset, opts TrainOptions) (*Pipeline, error) {
	samples := make([][]string, len(ds.Rows))
	targets := make([]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		samples[i] = []string{row.ScrapType, row.SubCategory, row.SubSubCategory}
		targets[i] = row.BasePrice
	}

	enc := FitEncoder(trainColumns, samples)
	encoded := make([][]float64, len(samples))
	for i, sample := range samples {
		encoded[i] = enc.Transform(sample)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	forest, err := trainForest(encoded, targets, opts.Trees, seed, opts.MaxDepth)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Columns:   append([]string(nil), trainColumns...),
		Encoder:   enc,
		Forest:    forest,
		TrainedAt: time.Now().UTC(),
		RowCount:  len(ds.Rows),
	}, nil
}

// FeatureNames returns the named inputs the pipeline was trained on.
func (p *Pipeline) FeatureNames() []string {
	return append([]string(nil), p.Columns...)
}

// Schema reports the input shape the pipeline expects.
func (p *Pipeline) Schema() InputSchema {
	switch len(p.Columns) {
	case 2:
		return SchemaTwoFeature
	case 3:
		return SchemaThreeFeature
	default:
		return SchemaUnknown
	}
}

// Predict scores one input. Keys missing from the map encode as zero
// blocks, the same as unseen values.
func (p *Pipeline) Predict(input map[string]string) (float64, error) {
	sample := make([]string, len(p.Columns))
	for i, col := range p.Columns {
		sample[i] = input[col]
	}
	value, err := p.Forest.predict(p.Encoder.Transform(sample))
	if err != nil {
		return 0, fmt.Errorf("score input: %w", err)
	}
	return value, nil
}
