package processing

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// boxWHCenter converts a corner-form box to width/height/center form.
func boxWHCenter(box []float32) (float32, float32, float32, float32) {
	w := box[2] - box[0]
	h := box[3] - box[1]
	centerX := box[0] + 0.5*w
	centerY := box[1] + 0.5*h
	return w, h, centerX, centerY
}

// Overlaps computes intersection-over-union between every anchor and one
// corner-form ground-truth box, returning a (numAnchors,) tensor. Anchors
// that do not intersect the box score zero.
func Overlaps(anchors *tensor.Dense, gt []float32) (*tensor.Dense, error) {
	shape := anchors.Shape()
	if len(shape) != 2 || shape[1] != 4 {
		return nil, errors.Errorf("anchors must have shape (n, 4), got %v", shape)
	}
	if len(gt) != 4 {
		return nil, errors.Errorf("ground-truth box must have 4 coordinates, got %d", len(gt))
	}

	gtArea := (gt[2] - gt[0]) * (gt[3] - gt[1])
	data := anchors.Float32s()
	numAnchors := shape[0]
	ious := make([]float32, numAnchors)

	for i := range numAnchors {
		a := data[i*4 : i*4+4]
		iw := math32.Min(a[2], gt[2]) - math32.Max(a[0], gt[0])
		ih := math32.Min(a[3], gt[3]) - math32.Max(a[1], gt[1])
		if iw <= 0 || ih <= 0 {
			continue
		}
		inter := iw * ih
		area := (a[2] - a[0]) * (a[3] - a[1])
		ious[i] = inter / (area + gtArea - inter)
	}

	result := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(numAnchors),
		tensor.WithBacking(ious),
	)
	return result, nil
}

// TransformTargets encodes, for every anchor, the regression target mapping
// the anchor onto the ground-truth box: center offsets normalized by anchor
// size and log width/height ratios. Returns a (numAnchors, 4) tensor.
func TransformTargets(anchors *tensor.Dense, gt []float32) (*tensor.Dense, error) {
	shape := anchors.Shape()
	if len(shape) != 2 || shape[1] != 4 {
		return nil, errors.Errorf("anchors must have shape (n, 4), got %v", shape)
	}
	if len(gt) != 4 {
		return nil, errors.Errorf("ground-truth box must have 4 coordinates, got %d", len(gt))
	}

	gtW, gtH, gtCtrX, gtCtrY := boxWHCenter(gt)
	if gtW <= 0 || gtH <= 0 {
		return nil, errors.Errorf("ground-truth box has non-positive size %fx%f", gtW, gtH)
	}

	data := anchors.Float32s()
	numAnchors := shape[0]
	targets := make([]float32, numAnchors*4)

	for i := range numAnchors {
		w, h, centerX, centerY := boxWHCenter(data[i*4 : i*4+4])
		targets[i*4+0] = (gtCtrX - centerX) / w
		targets[i*4+1] = (gtCtrY - centerY) / h
		targets[i*4+2] = math32.Log(gtW / w)
		targets[i*4+3] = math32.Log(gtH / h)
	}

	result := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(numAnchors, 4),
		tensor.WithBacking(targets),
	)
	return result, nil
}
