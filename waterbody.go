package demwb

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// WaterBodyStage produces the water mask of a tile on its coarse grid. It
// expects the native and coarse elevations produced by DTMStage.
type WaterBodyStage struct {
	Tools  Toolbox
	Logger *zap.Logger
}

func readTileList(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tiles []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			tiles = append(tiles, line)
		}
	}
	return tiles, sc.Err()
}

func (s *WaterBodyStage) Run(ctx context.Context, tc *Context) error {
	logger := loggerOrNop(s.Logger).With(tileFields(tc, zap.String("stage", "waterbody"))...)
	t := s.Tools

	if err := t.ListWaterBodyTiles(ctx, tc.DEM, tc.SWBDDir, tc.SWBDList); err != nil {
		return fmt.Errorf("list water-body tiles: %w", err)
	}
	tiles, err := readTileList(tc.SWBDList)
	if err != nil {
		return fmt.Errorf("read water-body tile list: %w", err)
	}
	logger.Debug("water-body tiles", zap.Strings("tiles", tiles))

	switch len(tiles) {
	case 0:
		err = t.CopyVector(ctx, tc.EmptyWaterBodies(), tc.WB)
	case 1:
		err = t.CopyVector(ctx, tiles[0], tc.WB)
	default:
		err = t.ConcatenateVectors(ctx, tc.WB, tiles)
	}
	if err != nil {
		return fmt.Errorf("gather water bodies: %w", err)
	}
	if err := t.ReprojectVector(ctx, tc.WB, tc.WBReprojected, "EPSG:4326", "EPSG:"+tc.Geometry.EPSG); err != nil {
		return fmt.Errorf("reproject water bodies: %w", err)
	}
	if err := t.Rasterize(ctx, tc.WBReprojected, tc.WaterMask, tc.DEMCoarse, 1); err != nil {
		return fmt.Errorf("rasterize water mask: %w", err)
	}
	return nil
}
