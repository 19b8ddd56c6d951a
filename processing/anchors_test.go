package processing

import (
	"testing"

	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/stretchr/testify/assert"
)

func genTestAnchorParams() *config.AnchorParams {
	return config.NewAnchorParams(8, 8, []float32{8}, []float32{0.33, 0.5, 1.0, 2.0, 3.0}, 17, 17)
}

func TestGenerateAnchors_CountAndSize(t *testing.T) {
	cfg := genTestAnchorParams()

	anchors, err := GenerateAnchors(cfg)
	assert.NoError(t, err)
	assert.Equal(t, []int{17 * 17 * 5, 4}, []int(anchors.Shape()))

	data := anchors.Float32s()
	for i := 0; i < cfg.NumAnchors(); i++ {
		w := data[i*4+2] - data[i*4+0]
		h := data[i*4+3] - data[i*4+1]
		assert.Greater(t, w, float32(0))
		assert.Greater(t, h, float32(0))
	}
}

func TestGenerateAnchors_Deterministic(t *testing.T) {
	cfg := genTestAnchorParams()

	first, err := GenerateAnchors(cfg)
	assert.NoError(t, err)
	second, err := GenerateAnchors(cfg)
	assert.NoError(t, err)

	assert.Equal(t, first.Float32s(), second.Float32s())
}

func TestGenerateAnchors_GridOrdering(t *testing.T) {
	cfg := genTestAnchorParams()

	anchors, err := GenerateAnchors(cfg)
	assert.NoError(t, err)
	data := anchors.Float32s()

	perCell := cfg.AnchorsPerCell()
	stride := float32(cfg.Stride)

	// Cell (0,1) holds the same anchors as cell (0,0) shifted by one stride
	// in x; cell (1,0) is shifted by one stride in y.
	for k := range perCell {
		origin := data[k*4 : k*4+4]
		right := data[(cfg.GridCols*0+1)*perCell*4+k*4:]
		below := data[(cfg.GridCols*1+0)*perCell*4+k*4:]

		assert.Equal(t, origin[0]+stride, right[0])
		assert.Equal(t, origin[1], right[1])
		assert.Equal(t, origin[0], below[0])
		assert.Equal(t, origin[1]+stride, below[1])
	}
}

func TestGenerateBaseAnchors_RatioArea(t *testing.T) {
	cfg := config.NewAnchorParams(8, 8, []float32{1}, []float32{0.5, 1.0, 2.0}, 1, 1)

	base, err := GenerateBaseAnchors(cfg)
	assert.NoError(t, err)
	assert.Equal(t, []int{3, 4}, []int(base.Shape()))

	// Anchor area stays constant across aspect ratios.
	data := base.Float32s()
	for i := range 3 {
		w := data[i*4+2] - data[i*4+0]
		h := data[i*4+3] - data[i*4+1]
		assert.InDelta(t, 64.0, float64(w*h), 1e-3)
	}
}

func TestGenerateAnchors_InvalidConfig(t *testing.T) {
	cfg := config.NewAnchorParams(8, 8, []float32{0}, []float32{1}, 17, 17)
	_, err := GenerateAnchors(cfg)
	assert.Error(t, err)

	cfg = config.NewAnchorParams(8, 8, []float32{8}, nil, 17, 17)
	_, err = GenerateAnchors(cfg)
	assert.Error(t, err)

	cfg = config.NewAnchorParams(8, -1, []float32{8}, []float32{1}, 17, 17)
	_, err = GenerateAnchors(cfg)
	assert.Error(t, err)
}
