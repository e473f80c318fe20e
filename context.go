package demwb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	namePrefix     = "_TEST_AUX_REFDE2_"
	emptyShapefile = "empty.shp"
)

// SecondaryOutputs holds the 20m products. They only exist for missions
// with a secondary resolution.
type SecondaryOutputs struct {
	DEM, Slope, Aspect string
}

// A Context is the work order for one tile. It is built once by
// BuildContexts and never modified afterwards.
type Context struct {
	Mission Mission
	TileID  string
	Date    string
	Image   string

	SRTMDir string
	SWBDDir string

	WorkingDir   string
	TempDir      string
	OutputDir    string
	ImageDir     string
	MetadataFile string

	// intermediates, in TempDir
	SWBDList      string
	DEMVRT        string
	DEMNoData     string
	SlopeDegrees  string
	AspectDegrees string
	WB            string
	WBReprojected string

	// products, in ImageDir
	DEM          string
	Slope        string
	Aspect       string
	DEMCoarse    string
	SlopeCoarse  string
	AspectCoarse string
	WaterMask    string
	Secondary    *SecondaryOutputs

	Geometry Geometry
}

func tileFields(tc *Context, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("mission", tc.Mission.String()),
		zap.String("tile", tc.TileID),
		zap.String("date", tc.Date),
	}, extra...)
}

// EmptyWaterBodies is the vector layer used when no water-body tile
// intersects the tile.
func (tc *Context) EmptyWaterBodies() string {
	return filepath.Join(tc.SWBDDir, emptyShapefile)
}

// BuildOptions are the inputs of BuildContexts.
type BuildOptions struct {
	Input      string
	Output     string
	WorkingDir string
	SRTM       string
	SWBD       string
	// Tiles restricts a Sentinel-2 product to the given tile identifiers.
	Tiles []string

	Transformer CoordTransformer
	Logger      *zap.Logger
}

func productName(m Mission, tile, suffix string) string {
	return fmt.Sprintf("%s%s%s_0001_%s.TIF", m, namePrefix, tile, suffix)
}

func dirName(m Mission, tile, date string) string {
	return fmt.Sprintf("%s%s%s_%s_0001.DBL.DIR", m, namePrefix, tile, date)
}

func metadataName(m Mission, tile, date string) string {
	return fmt.Sprintf("%s%s%s_%s_0001.HDR", m, namePrefix, tile, date)
}

// BuildContexts creates one Context per qualifying tile of the product
// directory opts.Input. An input that is missing, is not a directory, matches
// no known mission or whose output directories cannot be created yields no
// contexts and no error; the cause is logged. Tiles whose geometry cannot be
// read are skipped.
func BuildContexts(opts BuildOptions) ([]*Context, error) {
	logger := loggerOrNop(opts.Logger)
	trn := opts.Transformer
	if trn == nil {
		trn = ProjTransformer{}
	}
	st, err := os.Stat(opts.Input)
	if err != nil {
		logger.Error("cannot read input", zap.String("input", opts.Input), zap.Error(err))
		return nil, nil
	}
	if !st.IsDir() {
		logger.Error("input is not a directory", zap.String("input", opts.Input))
		return nil, nil
	}
	dirBase := filepath.Clean(opts.Input)

	mission, date, ok := IdentifyDir(dirBase)
	if !ok {
		logger.Warn("input is neither a Landsat-8 nor a Sentinel-2 product", zap.String("input", dirBase))
		return nil, nil
	}

	images, err := findImages(mission, dirBase, opts.Tiles, logger)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}

	for _, dir := range []string{opts.Output, opts.WorkingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("cannot create directory", zap.String("dir", dir), zap.Error(err))
			return nil, nil
		}
	}

	var contexts []*Context
	for _, image := range images {
		_, tile, ok := IdentifyImage(image)
		if !ok {
			logger.Warn("cannot extract tile id", zap.String("image", image))
			continue
		}
		geom, err := ResolveGeometry(image, trn)
		if err != nil {
			logger.Error("skipping tile", zap.String("tile", tile), zap.Error(err))
			continue
		}
		contexts = append(contexts, newContext(mission, tile, date, image, geom, opts))
	}
	return contexts, nil
}

func findImages(mission Mission, dirBase string, tiles []string, logger *zap.Logger) ([]string, error) {
	switch mission {
	case Landsat8:
		if len(tiles) > 0 {
			logger.Warn("tile list ignored for Landsat-8 products")
		}
		name := fmt.Sprintf(mission.info().bandGlob, filepath.Base(dirBase))
		return []string{filepath.Join(dirBase, name)}, nil
	case Sentinel2:
		granules := filepath.Join(dirBase, "GRANULE")
		if st, err := os.Stat(granules); err != nil || !st.IsDir() {
			logger.Error("sentinel-2 GRANULE directory does not exist", zap.String("dir", granules))
			return nil, nil
		}
		entries, err := os.ReadDir(granules)
		if err != nil {
			logger.Error("cannot list granules", zap.String("dir", granules), zap.Error(err))
			return nil, nil
		}
		wanted := map[string]bool{}
		for _, t := range tiles {
			wanted[strings.TrimPrefix(t, "T")] = true
		}
		var images []string
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			pattern := filepath.Join(granules, e.Name(), "IMG_DATA", mission.info().bandGlob)
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("glob %s: %w", pattern, err)
			}
			if len(matches) != 1 {
				logger.Debug("skipping granule", zap.String("granule", e.Name()), zap.Int("band2_images", len(matches)))
				continue
			}
			if len(wanted) > 0 {
				_, tile, ok := IdentifyImage(matches[0])
				if !ok || !wanted[tile] {
					continue
				}
			}
			images = append(images, matches[0])
		}
		sort.Strings(images)
		return images, nil
	}
	return nil, nil
}

func newContext(m Mission, tile, date, image string, geom Geometry, opts BuildOptions) *Context {
	imageDir := filepath.Join(opts.Output, dirName(m, tile, date))
	tempDir := filepath.Join(opts.WorkingDir, dirName(m, tile, date))
	product := func(suffix string) string {
		return filepath.Join(imageDir, productName(m, tile, suffix))
	}
	temp := func(name string) string {
		return filepath.Join(tempDir, name)
	}
	mi := m.info()
	tc := &Context{
		Mission:       m,
		TileID:        tile,
		Date:          date,
		Image:         image,
		SRTMDir:       opts.SRTM,
		SWBDDir:       opts.SWBD,
		WorkingDir:    opts.WorkingDir,
		TempDir:       tempDir,
		OutputDir:     opts.Output,
		ImageDir:      imageDir,
		MetadataFile:  filepath.Join(opts.Output, metadataName(m, tile, date)),
		SWBDList:      temp("swbd.txt"),
		DEMVRT:        temp("dem.vrt"),
		DEMNoData:     temp("dem.tif"),
		SlopeDegrees:  temp("slope_degrees.tif"),
		AspectDegrees: temp("aspect_degrees.tif"),
		WB:            temp("wb.shp"),
		WBReprojected: temp("wb_reprojected.shp"),
		DEM:           product(mi.nativeAlt),
		Slope:         product(mi.nativeSlope),
		Aspect:        product(mi.nativeAsp),
		DEMCoarse:     product("ALC"),
		SlopeCoarse:   product("SLC"),
		AspectCoarse:  product("ASC"),
		WaterMask:     product("MSK"),
		Geometry:      geom,
	}
	if mi.secondary {
		tc.Secondary = &SecondaryOutputs{
			DEM:    product("ALT_R2"),
			Slope:  product("SLP_R2"),
			Aspect: product("ASP_R2"),
		}
	}
	return tc
}
