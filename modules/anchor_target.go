package modules

import (
	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/okieraised/go-siamrpn-training/processing"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// AnchorTargetResult holds the supervision tensors for one batch. Labels has
// shape (batch, numAnchors); Targets, InsideWeights and OutsideWeights have
// shape (batch, numAnchors, 4); Anchors is the shared (numAnchors, 4) anchor
// set in corner form.
type AnchorTargetResult struct {
	Labels         *tensor.Dense
	Targets        *tensor.Dense
	InsideWeights  *tensor.Dense
	OutsideWeights *tensor.Dense
	Anchors        *tensor.Dense
}

// AnchorTargetClient assigns classification labels and regression targets to
// the fixed anchor set for each ground-truth box in a batch. The anchor set
// is generated once at construction and shared read-only across calls.
type AnchorTargetClient struct {
	AnchorParams *config.AnchorParams
	TargetParams *config.AnchorTargetParams

	anchors *tensor.Dense
	src     rand.Source
}

func NewAnchorTargetClient(anchorCfg *config.AnchorParams, targetCfg *config.AnchorTargetParams) (*AnchorTargetClient, error) {
	if err := targetCfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid anchor target params")
	}

	anchors, err := processing.GenerateAnchors(anchorCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate anchors")
	}

	return &AnchorTargetClient{
		AnchorParams: anchorCfg,
		TargetParams: targetCfg,
		anchors:      anchors,
		src:          rand.NewSource(targetCfg.SampleSeed),
	}, nil
}

// Anchors returns the cached anchor set.
func (c *AnchorTargetClient) Anchors() *tensor.Dense {
	return c.anchors
}

// Assign computes labels, regression targets and loss weights for every
// anchor against a (batch, 4) corner-form ground-truth tensor, one box per
// batch element. Degenerate boxes are rejected before any overlap math runs.
func (c *AnchorTargetClient) Assign(gt *tensor.Dense) (*AnchorTargetResult, error) {
	gtShape := gt.Shape()
	if len(gtShape) != 2 || gtShape[1] != 4 {
		return nil, errors.Errorf("ground truth must have shape (batch, 4), got %v", gtShape)
	}
	batchSize := gtShape[0]
	if batchSize == 0 {
		return nil, errors.New("ground truth batch is empty")
	}

	numAnchors := c.AnchorParams.NumAnchors()
	gtData := gt.Float32s()

	labelsAll := make([]float32, batchSize*numAnchors)
	targetsAll := make([]float32, batchSize*numAnchors*4)
	insideAll := make([]float32, batchSize*numAnchors*4)
	outsideAll := make([]float32, batchSize*numAnchors*4)

	for b := range batchSize {
		gtBox := gtData[b*4 : b*4+4]
		if gtBox[2] <= gtBox[0] || gtBox[3] <= gtBox[1] {
			return nil, errors.Errorf("degenerate ground-truth box %v at batch index %d", gtBox, b)
		}

		overlaps, err := processing.Overlaps(c.anchors, gtBox)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to compute overlaps at batch index %d", b)
		}

		labels, err := processing.LabelAnchors(overlaps, c.TargetParams.PositiveThreshold, c.TargetParams.NegativeThreshold)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to label anchors at batch index %d", b)
		}

		numFg, _ := processing.SubsampleLabels(labels, c.TargetParams.MaxForeground, c.TargetParams.SampleSize, c.src)

		targets, err := processing.TransformTargets(c.anchors, gtBox)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode targets at batch index %d", b)
		}
		targetData := targets.Float32s()

		// Uniform normalization over however many anchors got selected.
		outsideWeight := float32(1) / float32(max(numFg, 1))

		copy(labelsAll[b*numAnchors:], labels)
		for i := range numAnchors {
			offset := (b*numAnchors + i) * 4
			for k := range 4 {
				outsideAll[offset+k] = outsideWeight
			}
			if labels[i] != processing.LabelForeground {
				continue
			}
			for k := range 4 {
				targetsAll[offset+k] = targetData[i*4+k]
				insideAll[offset+k] = 1
			}
		}
	}

	result := &AnchorTargetResult{
		Labels: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(batchSize, numAnchors),
			tensor.WithBacking(labelsAll),
		),
		Targets: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(batchSize, numAnchors, 4),
			tensor.WithBacking(targetsAll),
		),
		InsideWeights: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(batchSize, numAnchors, 4),
			tensor.WithBacking(insideAll),
		),
		OutsideWeights: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(batchSize, numAnchors, 4),
			tensor.WithBacking(outsideAll),
		),
		Anchors: c.anchors,
	}
	return result, nil
}
