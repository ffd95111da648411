package inference

import (
	"github.com/gomithril/menoh/enginetest"
	"github.com/gomithril/menoh/native"
)

const (
	vggPath    = "vgg16.onnx"
	doublePath = "double.onnx"
)

// newTestEngine serves a [batch,3,224,224] -> [batch,1000] classifier and an
// elementwise x -> 2x+1 graph over [batch,4].
func newTestEngine() *enginetest.Engine {
	e := enginetest.New()
	e.AddGraph(vggPath, enginetest.Classifier("data", []int64{-1, 3, 224, 224}, "prob", 1000))
	e.AddGraph(doublePath, enginetest.Elementwise("x", "y", native.Float32, []int64{-1, 4},
		func(v float64) float64 { return 2*v + 1 }))
	return e
}

func vggConfig() *Config {
	cfg := DefaultConfig()
	cfg.ModelPath = vggPath
	cfg.Inputs = []VariableConfig{{Name: "data", DType: native.Float32, Shape: []uint32{1, 3, 224, 224}}}
	cfg.Outputs = []string{"prob"}
	return cfg
}

func doubleConfig(batch uint32) *Config {
	cfg := DefaultConfig()
	cfg.ModelPath = doublePath
	cfg.Inputs = []VariableConfig{{Name: "x", DType: native.Float32, Shape: []uint32{batch, 4}}}
	cfg.Outputs = []string{"y"}
	return cfg
}
