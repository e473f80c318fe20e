package demwb

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// A Stage is one of the sequential pipelines run on a Context.
type Stage interface {
	Run(ctx context.Context, tc *Context) error
}

// Processor runs the whole pipeline of a single tile: manifest, elevation
// stage, water-body stage, cleanup.
type Processor struct {
	DTM       Stage
	WaterBody Stage
	Logger    *zap.Logger
}

// NewProcessor returns a Processor running both stages with tools, reading
// elevation tiles from archive (nil for each Context's local SRTM directory).
func NewProcessor(tools Toolbox, archive TileArchive, logger *zap.Logger) *Processor {
	return &Processor{
		DTM:       &DTMStage{Tools: tools, Archive: archive, Logger: logger},
		WaterBody: &WaterBodyStage{Tools: tools, Logger: logger},
		Logger:    logger,
	}
}

// Process produces all products of tc. Intermediates are removed on every
// return path.
func (p *Processor) Process(ctx context.Context, tc *Context) (err error) {
	logger := loggerOrNop(p.Logger).With(tileFields(tc)...)
	start := time.Now()
	defer func() {
		contextDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			contextsProcessed.WithLabelValues("failed").Inc()
			logger.Error("tile failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return
		}
		contextsProcessed.WithLabelValues("done").Inc()
		logger.Info("tile done", zap.Duration("elapsed", time.Since(start)))
	}()

	if err := os.MkdirAll(tc.ImageDir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	if err := os.MkdirAll(tc.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer Cleanup(tc, logger)

	md, err := Metadata(tc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tc.MetadataFile, md, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := p.DTM.Run(ctx, tc); err != nil {
		return fmt.Errorf("dtm: %w", err)
	}
	if err := p.WaterBody.Run(ctx, tc); err != nil {
		return fmt.Errorf("water bodies: %w", err)
	}
	return nil
}
