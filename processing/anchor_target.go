package processing

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
	"gorgonia.org/tensor"
)

// Per-anchor classification labels assigned during target construction.
// Ignored anchors contribute nothing to either loss term.
const (
	LabelIgnore     float32 = -1
	LabelBackground float32 = 0
	LabelForeground float32 = 1
)

// LabelAnchors assigns every anchor a label from its overlap with the
// ground-truth box. Anchors at or above the positive threshold are
// foreground, as is every anchor sharing the maximum overlap (so a
// ground-truth box with weak overlap everywhere still gets supervised).
// Anchors below the negative threshold are background, the rest ignore.
func LabelAnchors(overlaps *tensor.Dense, positiveThreshold, negativeThreshold float32) ([]float32, error) {
	shape := overlaps.Shape()
	if len(shape) != 1 {
		return nil, errors.Errorf("overlaps must be 1D, got shape %v", shape)
	}

	ious := overlaps.Float32s()
	labels := make([]float32, len(ious))

	var maxIoU float32
	for _, v := range ious {
		if v > maxIoU {
			maxIoU = v
		}
	}

	for i, v := range ious {
		switch {
		case v >= positiveThreshold, maxIoU > 0 && v == maxIoU:
			labels[i] = LabelForeground
		case v < negativeThreshold:
			labels[i] = LabelBackground
		default:
			labels[i] = LabelIgnore
		}
	}
	return labels, nil
}

// SubsampleLabels relabels excess foreground and background anchors to
// ignore, keeping at most maxForeground foreground anchors and filling the
// remainder of sampleSize with background anchors. Kept anchors are drawn
// uniformly without replacement from the eligible pool using the provided
// source, so a fixed seed reproduces the selection. Returns the kept
// foreground and background counts.
func SubsampleLabels(labels []float32, maxForeground, sampleSize int, src rand.Source) (int, int) {
	fgPool := poolOf(labels, LabelForeground)
	if len(fgPool) > maxForeground {
		retain(labels, fgPool, maxForeground, src)
	}
	numFg := min(len(fgPool), maxForeground)

	bgBudget := sampleSize - numFg
	bgPool := poolOf(labels, LabelBackground)
	if len(bgPool) > bgBudget {
		retain(labels, bgPool, bgBudget, src)
	}
	numBg := min(len(bgPool), bgBudget)

	return numFg, numBg
}

func poolOf(labels []float32, label float32) []int {
	pool := make([]int, 0)
	for i, v := range labels {
		if v == label {
			pool = append(pool, i)
		}
	}
	return pool
}

// retain keeps n randomly drawn entries of the pool and relabels the rest
// to ignore.
func retain(labels []float32, pool []int, n int, src rand.Source) {
	if n <= 0 {
		for _, idx := range pool {
			labels[idx] = LabelIgnore
		}
		return
	}
	drawn := make([]int, n)
	sampleuv.WithoutReplacement(drawn, len(pool), src)

	keep := make(map[int]bool, n)
	for _, d := range drawn {
		keep[pool[d]] = true
	}
	for _, idx := range pool {
		if !keep[idx] {
			labels[idx] = LabelIgnore
		}
	}
}
