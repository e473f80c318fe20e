package demwb

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// dtmNoData is the no-data value of the elevation archive.
	dtmNoData = -32768

	secondarySpacing = 20
	coarseSpacing    = 240
)

var (
	slopeScale  = Scale{SrcMin: 0, SrcMax: 90, DstMin: 0, DstMax: 157}
	aspectScale = Scale{SrcMin: 0, SrcMax: 368, DstMin: 0, DstMax: 628}
)

var (
	// ErrNoCoverage is returned when the elevation tiles covering a tile's
	// footprint cannot be determined.
	ErrNoCoverage = errors.New("cannot determine elevation coverage")
	// ErrNoTiles is returned when none of the elevation tiles covering a
	// footprint is present in the archive.
	ErrNoTiles = errors.New("no elevation tile available")
)

// DTMStage produces the elevation, slope and aspect products of a tile.
type DTMStage struct {
	Tools Toolbox
	// Archive holds the elevation tiles. When nil, the tile's SRTMDir is
	// used as a local archive.
	Archive TileArchive
	Logger  *zap.Logger
}

func (s *DTMStage) archive(tc *Context) TileArchive {
	if s.Archive != nil {
		return s.Archive
	}
	return LocalArchive(tc.SRTMDir)
}

// elevationTiles returns the archive paths of the existing tiles covering tc.
// Missing tiles are only reported.
func (s *DTMStage) elevationTiles(ctx context.Context, tc *Context, logger *zap.Logger) ([]string, error) {
	names, ok := DTMTiles(BBoxOf(tc.Geometry.WGS84Extent))
	if !ok {
		return nil, ErrNoCoverage
	}
	archive := s.archive(tc)
	var found, missing []string
	for _, name := range names {
		exists, err := archive.Exists(ctx, name)
		if err != nil {
			return nil, err
		}
		if exists {
			found = append(found, archive.Path(name))
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		missingDTMTiles.Add(float64(len(missing)))
		logger.Warn("elevation tiles missing from archive, results will be degraded",
			zap.Strings("missing", missing),
			zap.Int("available", len(found)))
	}
	if len(found) == 0 {
		return nil, ErrNoTiles
	}
	return found, nil
}

// Run executes the elevation pipeline. The first failing step aborts it.
func (s *DTMStage) Run(ctx context.Context, tc *Context) error {
	logger := loggerOrNop(s.Logger).With(tileFields(tc, zap.String("stage", "dtm"))...)
	t := s.Tools
	g := tc.Geometry

	tiles, err := s.elevationTiles(ctx, tc, logger)
	if err != nil {
		return fmt.Errorf("elevation tiles: %w", err)
	}
	if err := t.BuildVRT(ctx, tc.DEMVRT, tiles); err != nil {
		return fmt.Errorf("mosaic: %w", err)
	}
	if err := t.ReplaceValue(ctx, tc.DEMVRT, tc.DEMNoData, dtmNoData, 0); err != nil {
		return fmt.Errorf("replace no-data: %w", err)
	}
	err = t.Warp(ctx, tc.DEMNoData, tc.DEM, WarpOptions{
		SRS:  "EPSG:" + g.EPSG,
		ResX: g.SpacingX,
		ResY: g.SpacingY,
		Extent: &[4]float64{
			g.Extent.LowerLeft().X, g.Extent.LowerLeft().Y,
			g.Extent.UpperRight().X, g.Extent.UpperRight().Y,
		},
		Resampling: "cubic",
		Overwrite:  true,
		Multi:      true,
	})
	if err != nil {
		return fmt.Errorf("reproject elevation: %w", err)
	}
	logger.Debug("native elevation done", zap.String("dem", tc.DEM))

	if tc.Secondary != nil {
		if err := t.Resample(ctx, tc.DEM, tc.Secondary.DEM, secondarySpacing, -secondarySpacing); err != nil {
			return fmt.Errorf("resample elevation to %dm: %w", secondarySpacing, err)
		}
	}
	if err := t.Resample(ctx, tc.DEM, tc.DEMCoarse, coarseSpacing, -coarseSpacing); err != nil {
		return fmt.Errorf("resample elevation to %dm: %w", coarseSpacing, err)
	}

	if err := t.Slope(ctx, tc.DEM, tc.SlopeDegrees); err != nil {
		return fmt.Errorf("slope: %w", err)
	}
	if err := t.Aspect(ctx, tc.DEM, tc.AspectDegrees); err != nil {
		return fmt.Errorf("aspect: %w", err)
	}
	if err := t.Rescale(ctx, tc.SlopeDegrees, tc.Slope, slopeScale); err != nil {
		return fmt.Errorf("encode slope: %w", err)
	}
	if err := t.Rescale(ctx, tc.AspectDegrees, tc.Aspect, aspectScale); err != nil {
		return fmt.Errorf("encode aspect: %w", err)
	}

	if tc.Secondary != nil {
		if err := resampleCubic(ctx, t, tc.Slope, tc.Secondary.Slope, secondarySpacing); err != nil {
			return fmt.Errorf("resample slope: %w", err)
		}
		if err := resampleCubic(ctx, t, tc.Aspect, tc.Secondary.Aspect, secondarySpacing); err != nil {
			return fmt.Errorf("resample aspect: %w", err)
		}
	}
	if err := resampleCubic(ctx, t, tc.Slope, tc.SlopeCoarse, coarseSpacing); err != nil {
		return fmt.Errorf("resample slope: %w", err)
	}
	if err := resampleCubic(ctx, t, tc.Aspect, tc.AspectCoarse, coarseSpacing); err != nil {
		return fmt.Errorf("resample aspect: %w", err)
	}
	return nil
}

func resampleCubic(ctx context.Context, t Toolbox, src, dst string, spacing float64) error {
	return t.Warp(ctx, src, dst, WarpOptions{
		ResX:       spacing,
		ResY:       spacing,
		Resampling: "cubic",
		Overwrite:  true,
	})
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
