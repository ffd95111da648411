package inference

import (
	"slices"

	"github.com/gomithril/menoh/native"
)

// Result is a copy of one output buffer. Floating point outputs fill
// Floats, integer outputs fill Ints.
type Result struct {
	Name   string
	Shape  []int32
	DType  native.DType
	Floats []float64
	Ints   []int64
}

func (r *Result) Len() int {
	if r.DType.IsFloat() {
		return len(r.Floats)
	}
	return len(r.Ints)
}

// Float64s returns the values as float64 regardless of dtype.
func (r *Result) Float64s() []float64 {
	if r.DType.IsFloat() {
		return r.Floats
	}
	out := make([]float64, len(r.Ints))
	for i, v := range r.Ints {
		out[i] = float64(v)
	}
	return out
}

// Batch returns row i of the leading axis as a Result of rank one less.
// A rank 1 result yields a single scalar with an empty shape.
func (r *Result) Batch(i int) (*Result, error) {
	if len(r.Shape) == 0 || i < 0 || i >= int(r.Shape[0]) {
		return nil, native.Errorf(native.StatusIndexOutOfRange, "menoh index out of range error: %s batch %d", r.Name, i)
	}
	row := r.Len() / int(r.Shape[0])
	out := &Result{
		Name:  r.Name,
		Shape: append([]int32(nil), r.Shape[1:]...),
		DType: r.DType,
	}
	if r.DType.IsFloat() {
		out.Floats = r.Floats[i*row : (i+1)*row]
	} else {
		out.Ints = r.Ints[i*row : (i+1)*row]
	}
	return out, nil
}

// Score is one ranked element of a result.
type Score struct {
	Index int
	Value float64
}

// TopK returns the k largest values in descending order. Ties keep index
// order. k larger than Len returns every element.
func (r *Result) TopK(k int) []Score {
	values := r.Float64s()
	scores := make([]Score, len(values))
	for i, v := range values {
		scores[i] = Score{Index: i, Value: v}
	}
	slices.SortStableFunc(scores, func(a, b Score) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return 0
	})
	if k < len(scores) {
		scores = scores[:max(k, 0)]
	}
	return scores
}
