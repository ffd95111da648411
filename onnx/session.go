package onnx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/gomithril/menoh/native"
	ort "github.com/yalue/onnxruntime_go"
)

// BackendConfig is the JSON backend configuration accepted by BuildModel.
type BackendConfig struct {
	IntraOpThreads  int               `json:"intra_op_threads,omitempty"`
	InterOpThreads  int               `json:"inter_op_threads,omitempty"`
	DeviceID        int               `json:"device_id,omitempty"`
	ProviderOptions map[string]string `json:"provider_options,omitempty"`
}

// ParseBackendConfig decodes config. An empty string is the zero config.
func ParseBackendConfig(config string) (BackendConfig, error) {
	var cfg BackendConfig
	if config == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(config), &cfg); err != nil {
		return cfg, native.Errorf(native.StatusInvalidBackendConfigError,
			"menoh invalid backend config error: %v", err)
	}
	return cfg, nil
}

// Backend configures session options for one execution provider.
type Backend func(opts *ort.SessionOptions, cfg BackendConfig) error

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend makes a backend available under name. Registering the
// same name twice replaces the earlier backend.
func RegisterBackend(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = b
}

// GetBackend returns the backend registered under name.
func GetBackend(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// ListBackends returns the registered backend names in sorted order.
func ListBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterBackend("cpu", func(*ort.SessionOptions, BackendConfig) error { return nil })
	RegisterBackend("cuda", appendCUDA)
}

func appendCUDA(opts *ort.SessionOptions, cfg BackendConfig) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("cuda provider options: %w", err)
	}
	defer cudaOpts.Destroy()

	settings := map[string]string{"device_id": strconv.Itoa(cfg.DeviceID)}
	for k, v := range cfg.ProviderOptions {
		settings[k] = v
	}
	if err := cudaOpts.Update(settings); err != nil {
		return fmt.Errorf("cuda provider options: %w", err)
	}
	return opts.AppendExecutionProviderCUDA(cudaOpts)
}

// NewAdvancedSession creates a session over in-memory model bytes with every
// tensor of io bound.
func NewAdvancedSession(data []byte, io *ModelIO, backend Backend, cfg BackendConfig) (*ort.AdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("intra op threads: %w", err)
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return nil, fmt.Errorf("inter op threads: %w", err)
		}
	}
	if err := backend(opts, cfg); err != nil {
		return nil, err
	}

	return ort.NewAdvancedSessionWithONNXData(
		data,
		io.Inputs,
		io.Outputs,
		io.InputTensors(),
		io.OutputTensors(),
		opts,
	)
}
