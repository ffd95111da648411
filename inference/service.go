package inference

import (
	"fmt"
	"sync"

	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
)

// prepare declares cfg's variables, builds the profile table and optimizes
// src with it. The caller closes the returned table.
func prepare(src *ModelSource, cfg *Config) (*VariableProfileTable, error) {
	b := NewVariableProfileBuilder()
	if err := cfg.declare(b); err != nil {
		return nil, err
	}
	table, err := b.Build(src)
	if err != nil {
		return nil, err
	}
	if err := Optimize(src, table); err != nil {
		table.Close()
		return nil, err
	}
	return table, nil
}

// Service runs one model built from a configuration.
type Service struct {
	config *Config

	mu    sync.Mutex
	model *Model
}

// NewService loads, specializes and builds the model described by config.
// The model source and profile table are released before NewService
// returns; only the model is kept.
func NewService(engine native.Engine, config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	src, err := Load(engine, config.ModelPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	table, err := prepare(src, config)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	model, err := NewModelBuilder(table, config.ExternalInputs).Build(src, config.Backend, config.BackendConfig)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("model", config.ModelPath).
		Str("backend", config.Backend).
		Strs("outputs", model.Outputs()).
		Msg("service ready")
	return &Service{config: config, model: model}, nil
}

func (s *Service) Model() *Model { return s.model }

// Run writes inputs, runs the model and returns every declared output.
func (s *Service) Run(inputs map[string]any) (map[string]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return runOn(s.model, inputs)
}

func runOn(m *Model, inputs map[string]any) (map[string]*Result, error) {
	for name, values := range inputs {
		if err := m.SetInput(name, values); err != nil {
			return nil, err
		}
	}
	if err := m.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return m.Results()
}

func (s *Service) Close() error {
	return s.model.Close()
}
