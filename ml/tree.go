package ml

import (
	"errors"
	"math"
	"sort"
)

type treeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// RegressionTree predicts a continuous target by threshold splits, stored
// as a flattened node slice with the root at index 0.
type RegressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

// growTree fits one tree by recursive variance-reduction splits. maxDepth 0
// grows until leaves are pure or cannot split.
func growTree(features [][]float64, targets []float64, maxDepth int) RegressionTree {
	return RegressionTree{Nodes: buildNodes(features, targets, 0, maxDepth)}
}

func buildNodes(features [][]float64, targets []float64, depth, maxDepth int) []treeNode {
	leaf := treeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: mean(targets), IsLeaf: true}
	if len(targets) <= 1 || constantTargets(targets) || (maxDepth > 0 && depth >= maxDepth) {
		return []treeNode{leaf}
	}

	featureIdx, threshold, ok := bestSplit(features, targets)
	if !ok {
		return []treeNode{leaf}
	}

	var (
		leftF, rightF [][]float64
		leftT, rightT []float64
	)
	for i, row := range features {
		if row[featureIdx] <= threshold {
			leftF = append(leftF, row)
			leftT = append(leftT, targets[i])
		} else {
			rightF = append(rightF, row)
			rightT = append(rightT, targets[i])
		}
	}
	if len(leftT) == 0 || len(rightT) == 0 {
		return []treeNode{leaf}
	}

	leftNodes := buildNodes(leftF, leftT, depth+1, maxDepth)
	rightNodes := buildNodes(rightF, rightT, depth+1, maxDepth)

	// child indices are subtree-relative; shift them to their final slots
	leftOff := 1
	rightOff := 1 + len(leftNodes)
	for i := range leftNodes {
		if !leftNodes[i].IsLeaf {
			leftNodes[i].LeftChild += leftOff
			leftNodes[i].RightChild += leftOff
		}
	}
	for i := range rightNodes {
		if !rightNodes[i].IsLeaf {
			rightNodes[i].LeftChild += rightOff
			rightNodes[i].RightChild += rightOff
		}
	}

	root := treeNode{
		FeatureIdx: featureIdx,
		Threshold:  threshold,
		LeftChild:  leftOff,
		RightChild: rightOff,
		Value:      mean(targets),
	}

	nodes := make([]treeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

// bestSplit minimizes the summed squared error of the two sides over every
// feature and candidate threshold.
func bestSplit(features [][]float64, targets []float64) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestScore := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for _, threshold := range splitCandidates(features, featureIdx) {
			var leftT, rightT []float64
			for i, row := range features {
				if row[featureIdx] <= threshold {
					leftT = append(leftT, targets[i])
				} else {
					rightT = append(rightT, targets[i])
				}
			}
			if len(leftT) == 0 || len(rightT) == 0 {
				continue
			}
			score := sumSquares(leftT) + sumSquares(rightT)
			if score < bestScore {
				bestScore = score
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}

	if bestFeature == -1 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// splitCandidates returns the midpoints between adjacent distinct values of
// one feature. For 0/1 encoded features this is the single threshold 0.5.
func splitCandidates(features [][]float64, featureIdx int) []float64 {
	values := make([]float64, len(features))
	for i := range features {
		values[i] = features[i][featureIdx]
	}
	sort.Float64s(values)

	var candidates []float64
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1] {
			candidates = append(candidates, (values[i-1]+values[i])/2)
		}
	}
	return candidates
}

func (t *RegressionTree) predict(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errors.New("tree has no nodes")
	}
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state")
}

func sumSquares(targets []float64) float64 {
	m := mean(targets)
	var total float64
	for _, t := range targets {
		d := t - m
		total += d * d
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func constantTargets(targets []float64) bool {
	for _, t := range targets[1:] {
		if t != targets[0] {
			return false
		}
	}
	return true
}
