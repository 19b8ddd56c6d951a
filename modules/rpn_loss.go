package modules

import (
	"github.com/chewxy/math32"
	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/okieraised/go-siamrpn-training/processing"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// LossResult carries both loss terms plus the label and target tensors for
// external diagnostics. No gradient computation happens here; that belongs
// to the training loop.
type LossResult struct {
	ClsLoss float32
	RegLoss float32
	Labels  *tensor.Dense
	Targets *tensor.Dense
}

// RPNLossClient aggregates the two-term training loss for the region
// proposal heads: softmax cross-entropy over the sampled anchors and a
// weighted smooth-L1 over the foreground box residuals.
type RPNLossClient struct {
	*config.RPNLossParams
}

func NewRPNLossClient(cfg *config.RPNLossParams) (*RPNLossClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid loss params")
	}
	return &RPNLossClient{
		RPNLossParams: cfg,
	}, nil
}

// Compute consumes the anchor supervision tensors together with the raw
// network predictions: score of shape (batch, numAnchors, 2) and box of
// shape (batch, numAnchors, 4). Flattened layouts with the same element
// count are accepted, matching the head output before reshape.
func (c *RPNLossClient) Compute(assigned *AnchorTargetResult, score, box *tensor.Dense) (*LossResult, error) {
	labelShape := assigned.Labels.Shape()
	if len(labelShape) != 2 {
		return nil, errors.Errorf("labels must have shape (batch, numAnchors), got %v", labelShape)
	}
	batchSize, numAnchors := labelShape[0], labelShape[1]

	if score.DataSize() != batchSize*numAnchors*2 {
		return nil, errors.Errorf("score tensor has %d elements, want %d for shape (%d, %d, 2)",
			score.DataSize(), batchSize*numAnchors*2, batchSize, numAnchors)
	}
	if box.DataSize() != batchSize*numAnchors*4 {
		return nil, errors.Errorf("box tensor has %d elements, want %d for shape (%d, %d, 4)",
			box.DataSize(), batchSize*numAnchors*4, batchSize, numAnchors)
	}

	labels := assigned.Labels.Float32s()
	scores := score.Float32s()
	boxes := box.Float32s()
	targets := assigned.Targets.Float32s()
	insideW := assigned.InsideWeights.Float32s()
	outsideW := assigned.OutsideWeights.Float32s()

	// Classification: mean cross-entropy over the non-ignored anchors only.
	// Ignored anchors are excluded from the denominator, not zero-weighted.
	var clsSum float32
	valid := 0
	for i, label := range labels {
		if label == processing.LabelIgnore {
			continue
		}
		s0, s1 := scores[i*2], scores[i*2+1]
		m := math32.Max(s0, s1)
		logSumExp := m + math32.Log(math32.Exp(s0-m)+math32.Exp(s1-m))
		if label == processing.LabelForeground {
			clsSum += logSumExp - s1
		} else {
			clsSum += logSumExp - s0
		}
		valid++
	}
	var clsLoss float32
	if valid > 0 {
		clsLoss = clsSum / float32(valid)
	}

	// Regression: smooth-L1 over inside-masked residuals, normalized by the
	// outside weight and balanced against the classification term.
	var regSum float32
	for i := range targets {
		d := insideW[i] * (boxes[i] - targets[i])
		regSum += smoothL1(d) * outsideW[i]
	}
	regLoss := regSum * c.RegLossWeight

	return &LossResult{
		ClsLoss: clsLoss,
		RegLoss: regLoss,
		Labels:  assigned.Labels,
		Targets: assigned.Targets,
	}, nil
}

// smoothL1 is quadratic inside |d| < 1 and linear outside, continuous with
// matching slope at the switch point.
func smoothL1(d float32) float32 {
	ad := math32.Abs(d)
	if ad < 1 {
		return 0.5 * d * d
	}
	return ad - 0.5
}
