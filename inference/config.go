package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomithril/menoh/native"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// VariableConfig declares one model input.
type VariableConfig struct {
	Name  string       `json:"name" yaml:"name" toml:"name"`
	DType native.DType `json:"dtype" yaml:"dtype" toml:"dtype"`
	Shape []uint32     `json:"shape" yaml:"shape" toml:"shape"`
}

// Config holds the parameters of one build pipeline.
type Config struct {
	ModelPath      string           `json:"model" yaml:"model" toml:"model"`
	Backend        string           `json:"backend" yaml:"backend" toml:"backend"`
	BackendConfig  string           `json:"backend_config" yaml:"backend_config" toml:"backend_config"`
	Inputs         []VariableConfig `json:"inputs" yaml:"inputs" toml:"inputs"`
	Outputs        []string         `json:"outputs" yaml:"outputs" toml:"outputs"`
	ExternalInputs bool             `json:"external_inputs" yaml:"external_inputs" toml:"external_inputs"`
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		ModelPath: "models/model.onnx",
		Backend:   "cpu",
	}
}

// LoadConfig reads a configuration file based on its extension over the
// defaults. Supports: .yaml/.yml, .json, .toml
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".json":
		err = json.Unmarshal(b, cfg)
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MENOH_MODEL, MENOH_BACKEND and
// MENOH_BACKEND_CONFIG when they are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MENOH_MODEL"); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv("MENOH_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("MENOH_BACKEND_CONFIG"); v != "" {
		c.BackendConfig = v
	}
}

// Validate checks every declaration once, before any engine call.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return native.Errorf(native.StatusInvalidFilename, "menoh invalid filename error: empty model path")
	}
	if c.Backend == "" {
		return native.Errorf(native.StatusInvalidBackendName, "menoh invalid backend name error: empty backend name")
	}
	b := NewVariableProfileBuilder()
	return c.declare(b)
}

func (c *Config) declare(b *VariableProfileBuilder) error {
	for _, in := range c.Inputs {
		if err := b.DeclareInput(in.Name, in.DType, in.Shape); err != nil {
			return err
		}
	}
	for _, name := range c.Outputs {
		if err := b.DeclareOutput(name); err != nil {
			return err
		}
	}
	return nil
}

func toDims(shape []uint32) ([]int32, bool) {
	if len(shape) == 0 {
		return nil, false
	}
	dims := make([]int32, len(shape))
	for i, d := range shape {
		if d == 0 || d > math.MaxInt32 {
			return nil, false
		}
		dims[i] = int32(d)
	}
	return dims, true
}
