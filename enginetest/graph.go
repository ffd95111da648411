package enginetest

import "github.com/gomithril/menoh/native"

// Variable is a graph input or output. Non-positive dims are dynamic.
type Variable struct {
	Name  string
	DType native.DType
	Dims  []int64
}

// EvalFunc computes every graph output from the inputs. dims holds the
// resolved shape of every declared variable.
type EvalFunc func(in map[string][]float64, dims map[string][]int32) (map[string][]float64, error)

// Graph is an in-memory stand-in for a parsed model file.
type Graph struct {
	Inputs  []Variable
	Outputs []Variable
	Eval    EvalFunc

	// Unsupported names an operator that makes OptimizeModelData fail.
	Unsupported string
}

func (g *Graph) infos() (inputs, outputs map[string]native.VariableInfo) {
	inputs = make(map[string]native.VariableInfo, len(g.Inputs))
	for _, v := range g.Inputs {
		inputs[v.Name] = native.VariableInfo{Name: v.Name, DType: v.DType, Dims: v.Dims}
	}
	outputs = make(map[string]native.VariableInfo, len(g.Outputs))
	for _, v := range g.Outputs {
		outputs[v.Name] = native.VariableInfo{Name: v.Name, DType: v.DType, Dims: v.Dims}
	}
	return inputs, outputs
}

// Classifier returns a graph with one input and one [batch, classes]
// output. Element j of batch row b is the sum of input row b plus j.
func Classifier(input string, inDims []int64, output string, classes int64) *Graph {
	return &Graph{
		Inputs:  []Variable{{Name: input, DType: native.Float32, Dims: inDims}},
		Outputs: []Variable{{Name: output, DType: native.Float32, Dims: []int64{-1, classes}}},
		Eval: func(in map[string][]float64, dims map[string][]int32) (map[string][]float64, error) {
			x := in[input]
			batch := int(dims[input][0])
			row := len(x) / batch
			out := make([]float64, 0, batch*int(classes))
			for b := 0; b < batch; b++ {
				var sum float64
				for _, v := range x[b*row : (b+1)*row] {
					sum += v
				}
				for j := int64(0); j < classes; j++ {
					out = append(out, sum+float64(j))
				}
			}
			return map[string][]float64{output: out}, nil
		},
	}
}

// Elementwise returns a graph mapping one input to one output of the same
// shape and dtype through f.
func Elementwise(input, output string, dtype native.DType, dims []int64, f func(float64) float64) *Graph {
	return &Graph{
		Inputs:  []Variable{{Name: input, DType: dtype, Dims: dims}},
		Outputs: []Variable{{Name: output, DType: dtype, Dims: dims}},
		Eval: func(in map[string][]float64, _ map[string][]int32) (map[string][]float64, error) {
			x := in[input]
			out := make([]float64, len(x))
			for i, v := range x {
				out[i] = f(v)
			}
			return map[string][]float64{output: out}, nil
		},
	}
}
