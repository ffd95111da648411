package inference

import "github.com/rs/zerolog/log"

// Optimize specializes src for the dtypes and shapes in table. It must run
// before any model is built from src. On failure the caller still owns
// table and src.
func Optimize(src *ModelSource, table *VariableProfileTable) error {
	if err := table.valid(); err != nil {
		return err
	}
	md, err := src.acquire()
	if err != nil {
		return err
	}
	defer src.release()

	if err := src.engine.OptimizeModelData(md, table.handle); err != nil {
		return err
	}
	log.Debug().Str("path", src.path).Msg("model data optimized")
	return nil
}
