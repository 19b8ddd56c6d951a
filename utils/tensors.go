package utils

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unsafe"

	"gorgonia.org/tensor"
)

// Full creates a Float32 tensor of the given shape with every element set
// to value.
func Full(value float32, shape ...int) *tensor.Dense {
	size := 1
	for _, s := range shape {
		size *= s
	}
	backing := make([]float32, size)
	for i := range backing {
		backing[i] = value
	}
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(shape...), tensor.WithBacking(backing))
}

// BytesToT32 reinterprets a little-endian byte slice as 4-byte elements.
func BytesToT32[T float32 | int32 | uint32](data []byte) []T {
	out := make([]T, len(data)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = *(*T)(unsafe.Pointer(&bits))
	}
	return out
}

func ArgSortDescending(t *tensor.Dense) ([]int, error) {
	shape := t.Shape()
	if len(shape) != 1 {
		return nil, fmt.Errorf("expected a 1D tensor, got shape %v", shape)
	}

	data := t.Float32s()

	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}

	sort.Slice(indices, func(i, j int) bool {
		return data[indices[i]] > data[indices[j]]
	})

	return indices, nil
}

func SelectRows2D(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected a 2D tensor, got shape %v", shape)
	}
	numRows, numCols := shape[0], shape[1]

	data := t.Float32s()
	selected := make([]float32, 0, len(indices)*numCols)
	for _, idx := range indices {
		if idx < 0 || idx >= numRows {
			return nil, fmt.Errorf("index %d is out of bounds", idx)
		}
		selected = append(selected, data[idx*numCols:(idx+1)*numCols]...)
	}

	result := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(indices), numCols),
		tensor.WithBacking(selected),
	)
	return result, nil
}

func TensorByIndices(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) != 1 {
		return nil, fmt.Errorf("input tensor should be 1D, got shape %v", shape)
	}

	data := t.Float32s()
	selected := make([]float32, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(data) {
			return nil, fmt.Errorf("index %d is out of bounds", idx)
		}
		selected[i] = data[idx]
	}

	result := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(indices)),
		tensor.WithBacking(selected),
	)
	return result, nil
}
