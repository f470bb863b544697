package internal

import "fmt"

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	if want := numElements(shape); int64(len(data)) != want {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, shape, want, len(data))
	}
	return &Tensor{Shape: shape, Data: data}, nil
}

func numElements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Concat joins tensors along the existing leading (batch) axis. All inputs must
// agree on every other dimension.
func Concat(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShape)
	}
	if len(tensors[0].Shape) == 0 {
		return nil, fmt.Errorf("%w: scalar tensor has no batch axis", ErrShape)
	}

	inner := tensors[0].Shape[1:]
	var batch int64
	size := 0
	for i, t := range tensors {
		if len(t.Shape) != len(tensors[0].Shape) || !equalDims(t.Shape[1:], inner) {
			return nil, fmt.Errorf("%w: tensor %d has shape %v, want [_ %v]", ErrShape, i, t.Shape, inner)
		}
		batch += t.Shape[0]
		size += len(t.Data)
	}

	data := make([]float32, 0, size)
	for _, t := range tensors {
		data = append(data, t.Data...)
	}

	shape := append([]int64{batch}, inner...)
	return NewTensor(shape, data)
}

// Rows splits a (N, D) tensor into N contiguous vectors of length D.
func (t *Tensor) Rows() ([][]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("%w: want rank 2, got %v", ErrShape, t.Shape)
	}
	n, d := int(t.Shape[0]), int(t.Shape[1])
	if len(t.Data) != n*d {
		return nil, fmt.Errorf("%w: shape %v does not match %d values", ErrShape, t.Shape, len(t.Data))
	}

	rows := make([][]float32, n)
	for i := range rows {
		row := make([]float32, d)
		copy(row, t.Data[i*d:(i+1)*d])
		rows[i] = row
	}
	return rows, nil
}

func equalDims(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
