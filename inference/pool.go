package inference

import (
	"context"
	"errors"

	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Pool holds several models built from one configuration and runs batches
// on them concurrently. Each model serves one batch at a time.
type Pool struct {
	models []*Model
	free   chan *Model
}

// NewPool builds size models. The model source is loaded and specialized
// once; the models are built from it one after another.
func NewPool(engine native.Engine, config *Config, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
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

	p := &Pool{free: make(chan *Model, size)}
	builder := NewModelBuilder(table, config.ExternalInputs)
	for i := 0; i < size; i++ {
		m, err := builder.Build(src, config.Backend, config.BackendConfig)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.models = append(p.models, m)
		p.free <- m
	}
	log.Info().Int("size", size).Str("model", config.ModelPath).Msg("pool ready")
	return p, nil
}

func (p *Pool) Size() int { return len(p.models) }

// Run runs every batch and returns the outputs in batch order. It stops at
// the first failure; runs already dispatched complete before Run returns.
func (p *Pool) Run(ctx context.Context, batches []map[string]any) ([]map[string]*Result, error) {
	results := make([]map[string]*Result, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(p.models))

	for i, batch := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m *Model
			select {
			case m = <-p.free:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { p.free <- m }()

			log.Debug().Int("batch", i).Msg("worker started")
			res, err := runOn(m, batch)
			if err != nil {
				log.Error().Err(err).Int("batch", i).Msg("batch failed")
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info().Int("batches", len(batches)).Msg("all batches processed successfully")
	return results, nil
}

// Close releases every model.
func (p *Pool) Close() error {
	var errs []error
	for _, m := range p.models {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
