package onnx

import (
	ort "github.com/yalue/onnxruntime_go"
)

// ModelIO holds the named tensors bound to one session. A name declared as
// both input and output is bound once, as an input.
type ModelIO struct {
	Inputs  []string
	Outputs []string
	tensors map[string]ort.Value
}

func newModelIO() *ModelIO {
	return &ModelIO{tensors: make(map[string]ort.Value)}
}

// AddInput binds tensor to the input name.
func (io *ModelIO) AddInput(name string, tensor ort.Value) {
	io.Inputs = append(io.Inputs, name)
	io.tensors[name] = tensor
}

// AddOutput binds tensor to the output name.
func (io *ModelIO) AddOutput(name string, tensor ort.Value) {
	io.Outputs = append(io.Outputs, name)
	io.tensors[name] = tensor
}

func (io *ModelIO) Has(name string) bool {
	_, ok := io.tensors[name]
	return ok
}

func (io *ModelIO) Tensor(name string) ort.Value {
	return io.tensors[name]
}

// InputTensors returns the input tensors in the order of Inputs.
func (io *ModelIO) InputTensors() []ort.Value {
	return io.values(io.Inputs)
}

// OutputTensors returns the output tensors in the order of Outputs.
func (io *ModelIO) OutputTensors() []ort.Value {
	return io.values(io.Outputs)
}

func (io *ModelIO) values(names []string) []ort.Value {
	out := make([]ort.Value, len(names))
	for i, name := range names {
		out[i] = io.tensors[name]
	}
	return out
}

// Destroy releases every bound tensor. Memory wrapped from external
// buffers stays with its owner.
func (io *ModelIO) Destroy() {
	for name, tensor := range io.tensors {
		tensor.Destroy()
		delete(io.tensors, name)
	}
}
