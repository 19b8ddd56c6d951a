package utils

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// ImageToOpenCV converts the raw image into an OpenCV matrix in BGR order.
func ImageToOpenCV(bImage []byte) (*gocv.Mat, error) {
	dstMat := gocv.Mat{}
	srcMat, err := gocv.IMDecode(bImage, gocv.IMReadUnchanged)
	if err != nil {
		return &gocv.Mat{}, err
	}

	dimension := []int{}
	dimension = append(dimension, srcMat.Size()...)
	dimension = append(dimension, srcMat.Channels())

	if len(dimension) < 3 {
		return &dstMat, errors.Errorf("invalid number of dimension: %d", len(dimension))
	}

	if dimension[2] == 4 { // RGBA
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRAToBGR)
	} else if dimension[2] == 1 { // Grayscale
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorGrayToBGR)
	} else {
		dstMat = srcMat
	}
	return &dstMat, nil
}

// MatToCHWTensor converts a BGR matrix into a (1, 3, rows, cols) Float32
// tensor in RGB channel order, scaling and normalizing each channel.
func MatToCHWTensor(img gocv.Mat, pixelMeans, pixelStds []float32, pixelScale float32) (*tensor.Dense, error) {
	if len(pixelMeans) != 3 || len(pixelStds) != 3 {
		return nil, errors.Errorf("pixel means and stds must have 3 channels, got %d and %d", len(pixelMeans), len(pixelStds))
	}
	if pixelScale == 0 {
		return nil, errors.New("pixel scale must be non-zero")
	}

	imgShape := img.Size()
	imgTensors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, 3, imgShape[0], imgShape[1]),
	)

	for z := range 3 {
		for y := range imgShape[0] {
			for x := range imgShape[1] {
				err := imgTensors.SetAt((float32(img.GetVecbAt(y, x)[2-z])/pixelScale-pixelMeans[2-z])/pixelStds[2-z], 0, z, y, x)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return imgTensors, nil
}
