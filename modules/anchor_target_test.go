package modules

import (
	"testing"

	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/okieraised/go-siamrpn-training/processing"
	"github.com/okieraised/go-siamrpn-training/utils"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

// 7x7 grid of 40x40 anchors on a stride-10 lattice. Cell (1,1) holds the
// anchor (10,10,50,50).
func genTestMatchConfig() (*config.AnchorParams, *config.AnchorTargetParams) {
	anchorCfg := config.NewAnchorParams(40, 10, []float32{1}, []float32{1}, 7, 7)
	targetCfg := config.NewAnchorTargetParams(0.7, 0.3, 16, 32, 7)
	return anchorCfg, targetCfg
}

func genTestGroundTruth(boxes ...float32) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(boxes)/4, 4),
		tensor.WithBacking(boxes),
	)
}

func countLabels(labels []float32, label float32) int {
	n := 0
	for _, v := range labels {
		if v == label {
			n++
		}
	}
	return n
}

func TestAnchorTargetClient_ExactMatch(t *testing.T) {
	anchorCfg, targetCfg := genTestMatchConfig()
	client, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	res, err := client.Assign(genTestGroundTruth(10, 10, 50, 50))
	assert.NoError(t, err)

	labels := res.Labels.Float32s()
	assert.Equal(t, []int{1, 49}, []int(res.Labels.Shape()))

	// The matching anchor sits at cell (1,1) and is the only foreground.
	assert.Equal(t, processing.LabelForeground, labels[8])
	assert.Equal(t, 1, countLabels(labels, processing.LabelForeground))
	assert.Equal(t, targetCfg.SampleSize-1, countLabels(labels, processing.LabelBackground))

	fgAnchor, err := utils.SelectRows2D(res.Anchors, []int{8})
	assert.NoError(t, err)
	assert.Equal(t, []float32{10, 10, 50, 50}, fgAnchor.Float32s())

	// Exact match: zero residual everywhere, unit inside weight on the
	// foreground row only, uniform outside weight of 1/numForeground.
	targets := res.Targets.Float32s()
	inside := res.InsideWeights.Float32s()
	outside := res.OutsideWeights.Float32s()
	for i := range targets {
		assert.Equal(t, float32(0), targets[i])
		if i/4 == 8 {
			assert.Equal(t, float32(1), inside[i])
		} else {
			assert.Equal(t, float32(0), inside[i])
		}
		assert.Equal(t, float32(1), outside[i])
	}

	// Ignored anchors carry the uniform outside weight like every other
	// row; their zero inside weight already removes them from the loss.
	ignored := -1
	for i, v := range labels {
		if v == processing.LabelIgnore {
			ignored = i
			break
		}
	}
	assert.GreaterOrEqual(t, ignored, 0)
	for c := range 4 {
		assert.Equal(t, float32(0), targets[ignored*4+c])
		assert.Equal(t, float32(0), inside[ignored*4+c])
		assert.Equal(t, float32(1), outside[ignored*4+c])
	}
}

func TestAnchorTargetClient_MaxOverlapFallback(t *testing.T) {
	anchorCfg, targetCfg := genTestMatchConfig()
	client, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	// A small box in the corner overlaps every anchor below the negative
	// threshold; the max-overlap anchor still becomes foreground.
	res, err := client.Assign(genTestGroundTruth(0, 0, 8, 8))
	assert.NoError(t, err)

	labels := res.Labels.Float32s()
	assert.Equal(t, 1, countLabels(labels, processing.LabelForeground))
	assert.Equal(t, processing.LabelForeground, labels[0])
}

func TestAnchorTargetClient_TopOverlapIsForeground(t *testing.T) {
	anchorCfg, targetCfg := genTestMatchConfig()
	client, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	gtBox := []float32{12, 14, 48, 52}
	res, err := client.Assign(genTestGroundTruth(gtBox...))
	assert.NoError(t, err)

	overlaps, err := processing.Overlaps(res.Anchors, gtBox)
	assert.NoError(t, err)
	order, err := utils.ArgSortDescending(overlaps)
	assert.NoError(t, err)

	labels := res.Labels.Float32s()
	assert.Equal(t, processing.LabelForeground, labels[order[0]])

	top, err := utils.TensorByIndices(overlaps, order[:1])
	assert.NoError(t, err)
	assert.Greater(t, top.Float32s()[0], float32(0.7))
}

func TestAnchorTargetClient_SamplingCaps(t *testing.T) {
	anchorCfg := config.NewAnchorParams(40, 10, []float32{1}, []float32{1}, 7, 7)
	// Thresholds low enough that many anchors qualify as foreground.
	targetCfg := config.NewAnchorTargetParams(0.05, 0.01, 4, 16, 7)

	client, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	res, err := client.Assign(genTestGroundTruth(10, 10, 50, 50))
	assert.NoError(t, err)

	labels := res.Labels.Float32s()
	numFg := countLabels(labels, processing.LabelForeground)
	numBg := countLabels(labels, processing.LabelBackground)
	assert.LessOrEqual(t, numFg, targetCfg.MaxForeground)
	assert.LessOrEqual(t, numFg+numBg, targetCfg.SampleSize)
	assert.Greater(t, numFg, 0)
}

func TestAnchorTargetClient_Deterministic(t *testing.T) {
	anchorCfg := config.NewAnchorParams(40, 10, []float32{1}, []float32{1}, 7, 7)
	targetCfg := config.NewAnchorTargetParams(0.05, 0.01, 4, 16, 123)

	first, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)
	second, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	resFirst, err := first.Assign(genTestGroundTruth(10, 10, 50, 50))
	assert.NoError(t, err)
	resSecond, err := second.Assign(genTestGroundTruth(10, 10, 50, 50))
	assert.NoError(t, err)

	assert.Equal(t, resFirst.Labels.Float32s(), resSecond.Labels.Float32s())
	assert.Equal(t, resFirst.Targets.Float32s(), resSecond.Targets.Float32s())
}

func TestAnchorTargetClient_Batch(t *testing.T) {
	anchorCfg, targetCfg := genTestMatchConfig()
	client, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	res, err := client.Assign(genTestGroundTruth(
		10, 10, 50, 50,
		20, 20, 60, 60,
	))
	assert.NoError(t, err)

	assert.Equal(t, []int{2, 49}, []int(res.Labels.Shape()))
	assert.Equal(t, []int{2, 49, 4}, []int(res.Targets.Shape()))
	assert.Equal(t, []int{2, 49, 4}, []int(res.InsideWeights.Shape()))
	assert.Equal(t, []int{2, 49, 4}, []int(res.OutsideWeights.Shape()))

	labels := res.Labels.Float32s()
	for b := range 2 {
		row := labels[b*49 : (b+1)*49]
		assert.Greater(t, countLabels(row, processing.LabelForeground), 0)
	}
}

func TestAnchorTargetClient_InvalidInput(t *testing.T) {
	anchorCfg, targetCfg := genTestMatchConfig()
	client, err := NewAnchorTargetClient(anchorCfg, targetCfg)
	assert.NoError(t, err)

	// Degenerate box.
	_, err = client.Assign(genTestGroundTruth(10, 10, 10, 50))
	assert.Error(t, err)

	// Wrong rank.
	bad := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(4), tensor.WithBacking([]float32{10, 10, 50, 50}))
	_, err = client.Assign(bad)
	assert.Error(t, err)

	// Empty batch.
	empty := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 4))
	_, err = client.Assign(empty)
	assert.Error(t, err)
}

func TestNewAnchorTargetClient_InvalidParams(t *testing.T) {
	anchorCfg, _ := genTestMatchConfig()

	_, err := NewAnchorTargetClient(anchorCfg, config.NewAnchorTargetParams(0.3, 0.7, 16, 256, 1))
	assert.Error(t, err)

	_, err = NewAnchorTargetClient(anchorCfg, config.NewAnchorTargetParams(1.5, 0.3, 16, 256, 1))
	assert.Error(t, err)

	_, err = NewAnchorTargetClient(anchorCfg, config.NewAnchorTargetParams(0.7, 0.3, 16, 8, 1))
	assert.Error(t, err)
}
