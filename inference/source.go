package inference

import (
	"sync"

	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
)

// ModelSource owns model data parsed from a file. It may feed several build
// pipelines one after another; built models do not reference it.
type ModelSource struct {
	engine native.Engine
	path   string

	mu     sync.Mutex
	handle native.ModelData
}

// Load parses the model file at path.
func Load(engine native.Engine, path string) (*ModelSource, error) {
	h, err := engine.MakeModelDataFromONNX(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Msg("model data loaded")
	return &ModelSource{engine: engine, path: path, handle: h}, nil
}

func (s *ModelSource) Path() string { return s.path }

func (s *ModelSource) Engine() native.Engine { return s.engine }

// acquire locks the source for one pipeline step.
func (s *ModelSource) acquire() (native.ModelData, error) {
	s.mu.Lock()
	if s.handle == 0 {
		s.mu.Unlock()
		return 0, native.Errorf(native.StatusStdError, "menoh error: model source %s is closed", s.path)
	}
	return s.handle, nil
}

func (s *ModelSource) release() { s.mu.Unlock() }

// Close releases the model data. It is safe to call more than once.
func (s *ModelSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != 0 {
		s.engine.DeleteModelData(s.handle)
		s.handle = 0
		log.Debug().Str("path", s.path).Msg("model data released")
	}
	return nil
}
