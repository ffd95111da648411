// Package inference builds and runs models on a native.Engine.
//
// A build goes through ModelSource, VariableProfileBuilder,
// VariableProfileTable, Optimize and ModelBuilder, in that order. Every step
// releases the engine handles it acquired before returning an error, and
// the intermediate objects may be closed as soon as the Model is built:
//
//	src, err := inference.Load(engine, "vgg16.onnx")
//	...
//	defer src.Close()
//	b := inference.NewVariableProfileBuilder()
//	b.DeclareInput("data", native.Float32, []uint32{1, 3, 224, 224})
//	b.DeclareOutput("prob")
//	table, err := b.Build(src)
//	...
//	defer table.Close()
//	if err := inference.Optimize(src, table); err != nil { ... }
//	model, err := inference.NewModelBuilder(table, false).Build(src, "cpu", "")
//
// Service and Pool wrap the same sequence behind a Config.
package inference
