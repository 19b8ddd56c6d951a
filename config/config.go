package config

import (
	"time"

	"github.com/pkg/errors"
)

// AnchorParams describes the fixed anchor grid tiled over the score map.
// Anchors are enumerated per cell as ratios x scales around BaseSize, then
// shifted by Stride per cell.
type AnchorParams struct {
	BaseSize int       `json:"base_size"`
	Stride   int       `json:"stride"`
	Scales   []float32 `json:"scales"`
	Ratios   []float32 `json:"ratios"`
	GridRows int       `json:"grid_rows"`
	GridCols int       `json:"grid_cols"`
}

var DefaultAnchorParams = &AnchorParams{
	BaseSize: 8,
	Stride:   8,
	Scales:   []float32{8},
	Ratios:   []float32{0.33, 0.5, 1.0, 2.0, 3.0},
	GridRows: 17,
	GridCols: 17,
}

func NewAnchorParams(baseSize, stride int, scales, ratios []float32, gridRows, gridCols int) *AnchorParams {
	return &AnchorParams{
		BaseSize: baseSize,
		Stride:   stride,
		Scales:   scales,
		Ratios:   ratios,
		GridRows: gridRows,
		GridCols: gridCols,
	}
}

func (p *AnchorParams) AnchorsPerCell() int {
	return len(p.Scales) * len(p.Ratios)
}

func (p *AnchorParams) NumAnchors() int {
	return p.GridRows * p.GridCols * p.AnchorsPerCell()
}

func (p *AnchorParams) Validate() error {
	if p.BaseSize <= 0 {
		return errors.Errorf("anchor base size must be positive, got %d", p.BaseSize)
	}
	if p.Stride <= 0 {
		return errors.Errorf("anchor stride must be positive, got %d", p.Stride)
	}
	if p.GridRows <= 0 || p.GridCols <= 0 {
		return errors.Errorf("anchor grid must be positive, got %dx%d", p.GridRows, p.GridCols)
	}
	if len(p.Scales) == 0 || len(p.Ratios) == 0 {
		return errors.New("anchor scales and ratios must be non-empty")
	}
	for _, s := range p.Scales {
		if s <= 0 {
			return errors.Errorf("anchor scale must be positive, got %f", s)
		}
	}
	for _, r := range p.Ratios {
		if r <= 0 {
			return errors.Errorf("anchor ratio must be positive, got %f", r)
		}
	}
	return nil
}

// AnchorTargetParams controls foreground/background assignment and the
// per-image sampling budget.
type AnchorTargetParams struct {
	PositiveThreshold float32 `json:"positive_threshold"`
	NegativeThreshold float32 `json:"negative_threshold"`
	MaxForeground     int     `json:"max_foreground"`
	SampleSize        int     `json:"sample_size"`
	SampleSeed        uint64  `json:"sample_seed"`
}

var DefaultAnchorTargetParams = &AnchorTargetParams{
	PositiveThreshold: 0.7,
	NegativeThreshold: 0.3,
	MaxForeground:     16,
	SampleSize:        256,
	SampleSeed:        42,
}

func NewAnchorTargetParams(positiveThreshold, negativeThreshold float32, maxForeground, sampleSize int, sampleSeed uint64) *AnchorTargetParams {
	return &AnchorTargetParams{
		PositiveThreshold: positiveThreshold,
		NegativeThreshold: negativeThreshold,
		MaxForeground:     maxForeground,
		SampleSize:        sampleSize,
		SampleSeed:        sampleSeed,
	}
}

func (p *AnchorTargetParams) Validate() error {
	if p.PositiveThreshold < 0 || p.PositiveThreshold > 1 {
		return errors.Errorf("positive threshold must be within [0,1], got %f", p.PositiveThreshold)
	}
	if p.NegativeThreshold < 0 || p.NegativeThreshold > 1 {
		return errors.Errorf("negative threshold must be within [0,1], got %f", p.NegativeThreshold)
	}
	if p.NegativeThreshold > p.PositiveThreshold {
		return errors.Errorf("negative threshold %f exceeds positive threshold %f", p.NegativeThreshold, p.PositiveThreshold)
	}
	if p.MaxForeground <= 0 {
		return errors.Errorf("max foreground must be positive, got %d", p.MaxForeground)
	}
	if p.SampleSize < p.MaxForeground {
		return errors.Errorf("sample size %d is smaller than max foreground %d", p.SampleSize, p.MaxForeground)
	}
	return nil
}

// RPNLossParams controls the balance between the classification and
// regression loss terms.
type RPNLossParams struct {
	RegLossWeight float32 `json:"reg_loss_weight"`
}

var DefaultRPNLossParams = &RPNLossParams{
	RegLossWeight: 10,
}

func NewRPNLossParams(regLossWeight float32) *RPNLossParams {
	return &RPNLossParams{
		RegLossWeight: regLossWeight,
	}
}

func (p *RPNLossParams) Validate() error {
	if p.RegLossWeight <= 0 {
		return errors.Errorf("regression loss weight must be positive, got %f", p.RegLossWeight)
	}
	return nil
}

// SiamRPNParams configures the Triton-served Siamese network that produces
// the per-anchor score and box tensors.
type SiamRPNParams struct {
	ModelName    string        `json:"model_name"`
	Timeout      time.Duration `json:"timeout"`
	TemplateSize int           `json:"template_size"`
	SearchSize   int           `json:"search_size"`
}

var DefaultSiamRPNParams = &SiamRPNParams{
	ModelName:    "siamrpn_tracking",
	Timeout:      20 * time.Second,
	TemplateSize: 127,
	SearchSize:   255,
}

func NewSiamRPNParams(modelName string, timeout time.Duration, templateSize, searchSize int) *SiamRPNParams {
	return &SiamRPNParams{
		ModelName:    modelName,
		Timeout:      timeout,
		TemplateSize: templateSize,
		SearchSize:   searchSize,
	}
}

func (p *SiamRPNParams) Validate() error {
	if p.ModelName == "" {
		return errors.New("model name must be non-empty")
	}
	if p.Timeout <= 0 {
		return errors.Errorf("model timeout must be positive, got %s", p.Timeout)
	}
	if p.TemplateSize <= 0 || p.SearchSize <= 0 {
		return errors.Errorf("template and search sizes must be positive, got %d and %d", p.TemplateSize, p.SearchSize)
	}
	return nil
}
