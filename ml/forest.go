package ml

import (
	"errors"
	"math/rand"
)

// Defaults for forest fitting.
const (
	DefaultTrees = 300
	DefaultSeed  = 42
)

// Forest is a bagged ensemble of regression trees. Every tree trains on a
// bootstrap sample drawn from a seeded source, so the same rows and seed
// reproduce the same model.
type Forest struct {
	Trees []RegressionTree `json:"trees"`
	Seed  int64            `json:"seed"`
}

func trainForest(features [][]float64, targets []float64, trees int, seed int64, maxDepth int) (*Forest, error) {
	if len(features) == 0 {
		return nil, errors.New("empty training set")
	}
	if len(features) != len(targets) {
		return nil, errors.New("features and targets size mismatch")
	}
	if trees <= 0 {
		trees = DefaultTrees
	}

	rnd := rand.New(rand.NewSource(seed))
	forest := &Forest{Trees: make([]RegressionTree, 0, trees), Seed: seed}

	for t := 0; t < trees; t++ {
		sampleF := make([][]float64, len(features))
		sampleT := make([]float64, len(targets))
		for i := range sampleF {
			j := rnd.Intn(len(features))
			sampleF[i] = features[j]
			sampleT[i] = targets[j]
		}
		forest.Trees = append(forest.Trees, growTree(sampleF, sampleT, maxDepth))
	}
	return forest, nil
}

func (f *Forest) predict(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("forest has no trees")
	}
	var total float64
	for i := range f.Trees {
		v, err := f.Trees[i].predict(features)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total / float64(len(f.Trees)), nil
}
