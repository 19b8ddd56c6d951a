package processing

import (
	"github.com/chewxy/math32"
	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// GenerateBaseAnchors enumerates the per-cell anchor set around the base
// size, one anchor per (ratio, scale) pair, centered on the origin cell.
// Anchors are corner-form (x1, y1, x2, y2) with ratio index varying slower
// than scale index.
func GenerateBaseAnchors(cfg *config.AnchorParams) (*tensor.Dense, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := float32(cfg.BaseSize)
	centerX := base * 0.5
	centerY := base * 0.5
	size := base * base

	backing := make([]float32, 0, cfg.AnchorsPerCell()*4)
	for _, ratio := range cfg.Ratios {
		// Keep the anchor area constant across ratios.
		w := math32.Sqrt(size / ratio)
		h := w * ratio
		for _, scale := range cfg.Scales {
			ws := w * scale
			hs := h * scale
			backing = append(backing,
				centerX-0.5*ws,
				centerY-0.5*hs,
				centerX+0.5*ws,
				centerY+0.5*hs,
			)
		}
	}

	anchors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(cfg.AnchorsPerCell(), 4),
		tensor.WithBacking(backing),
	)
	return anchors, nil
}

// GridAnchors tiles the base anchors over a rows x cols grid with the given
// stride, producing a (rows*cols*anchorsPerCell, 4) corner-form tensor. Cells
// are visited row-major and the base-anchor index varies fastest; label and
// target tensors downstream index anchors positionally against this order.
func GridAnchors(rows, cols, stride int, baseAnchors *tensor.Dense) (*tensor.Dense, error) {
	if rows <= 0 || cols <= 0 || stride <= 0 {
		return nil, errors.Errorf("invalid anchor grid %dx%d with stride %d", rows, cols, stride)
	}
	baseShape := baseAnchors.Shape()
	if len(baseShape) != 2 || baseShape[1] != 4 {
		return nil, errors.Errorf("base anchors must have shape (k, 4), got %v", baseShape)
	}

	perCell := baseShape[0]
	base := baseAnchors.Float32s()
	backing := make([]float32, 0, rows*cols*perCell*4)

	for r := range rows {
		shiftY := float32(r * stride)
		for c := range cols {
			shiftX := float32(c * stride)
			for k := range perCell {
				backing = append(backing,
					base[k*4+0]+shiftX,
					base[k*4+1]+shiftY,
					base[k*4+2]+shiftX,
					base[k*4+3]+shiftY,
				)
			}
		}
	}

	anchors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(rows*cols*perCell, 4),
		tensor.WithBacking(backing),
	)
	return anchors, nil
}

// GenerateAnchors builds the full anchor set for the configured grid.
func GenerateAnchors(cfg *config.AnchorParams) (*tensor.Dense, error) {
	baseAnchors, err := GenerateBaseAnchors(cfg)
	if err != nil {
		return nil, err
	}
	return GridAnchors(cfg.GridRows, cfg.GridCols, cfg.Stride, baseAnchors)
}
