// Package menoh runs ONNX models through a native inference engine.
//
// The pipeline is
//
//	load model -> declare variables -> build profile table -> optimize ->
//	build model -> write inputs -> run -> read outputs
//
// Package inference drives it, package native defines the engine boundary,
// package onnx implements that boundary over ONNX Runtime and package codec
// moves values in and out of engine buffers.
package menoh

// Version of the library
const Version = "v0.1.0"
