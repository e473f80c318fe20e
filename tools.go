package demwb

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
)

// Scale is a linear rescaling from [SrcMin,SrcMax] to [DstMin,DstMax].
type Scale struct {
	SrcMin, SrcMax float64
	DstMin, DstMax float64
}

// WarpOptions configure a reprojection/resampling of a raster.
type WarpOptions struct {
	SRS        string // target CRS, e.g. "EPSG:32631". Empty keeps the source CRS
	ResX, ResY float64
	// Extent is the target extent as xmin,ymin,xmax,ymax. nil lets the
	// extent follow the source.
	Extent     *[4]float64
	Resampling string
	Overwrite  bool
	Multi      bool
}

// Toolbox is the set of external geospatial operations the pipeline stages
// are made of. Every operation is synchronous and treated as opaque.
type Toolbox interface {
	BuildVRT(ctx context.Context, dst string, srcs []string) error
	ReplaceValue(ctx context.Context, src, dst string, from, to float64) error
	Warp(ctx context.Context, src, dst string, opts WarpOptions) error
	// Resample resamples src to the given pixel spacing on a grid anchored
	// at the upper-left corner of src.
	Resample(ctx context.Context, src, dst string, spacingX, spacingY float64) error
	Slope(ctx context.Context, src, dst string) error
	Aspect(ctx context.Context, src, dst string) error
	Rescale(ctx context.Context, src, dst string, scale Scale) error

	// ListWaterBodyTiles writes to list the water-body archive tiles
	// intersecting the footprint of ref, one per line.
	ListWaterBodyTiles(ctx context.Context, ref, archive, list string) error
	CopyVector(ctx context.Context, src, dst string) error
	ConcatenateVectors(ctx context.Context, dst string, srcs []string) error
	ReprojectVector(ctx context.Context, src, dst, srcSRS, dstSRS string) error
	Rasterize(ctx context.Context, src, dst, ref string, foreground int) error
}

// Tools implements Toolbox. Operations that process whole rasters run as
// external processes (gdalwarp, gdal_translate, gdaldem and the Orfeo ToolBox
// applications) so that cancelling their context kills them. Mosaic
// descriptors and vector copies are done in-process with GDAL.
type Tools struct {
	Runner Runner
	// OTBLauncher is the command prefix used to start an OTB application,
	// e.g. []string{"otbcli"}.
	OTBLauncher   []string
	GDALDEM       string
	GDALWarp      string
	GDALTranslate string
	// CreationOptions are passed as -co to raster writers.
	CreationOptions []string
	// ConfigOptions are KEY=VALUE gdal configuration options.
	ConfigOptions []string
}

// NewTools returns Tools running external commands with runner.
func NewTools(runner Runner) *Tools {
	return &Tools{
		Runner:        runner,
		OTBLauncher:   []string{"otbcli"},
		GDALDEM:       "gdaldem",
		GDALWarp:      "gdalwarp",
		GDALTranslate: "gdal_translate",
	}
}

func orDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

// outputSwitches are the GTiff writer switches shared by gdalwarp and
// gdal_translate.
func (t *Tools) outputSwitches() []string {
	sw := []string{"-of", "GTiff"}
	for _, co := range t.CreationOptions {
		sw = append(sw, "-co", co)
	}
	for _, kv := range t.ConfigOptions {
		k, v, _ := strings.Cut(kv, "=")
		sw = append(sw, "--config", k, v)
	}
	return sw
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (t *Tools) otb(ctx context.Context, app string, args ...string) error {
	launcher := t.OTBLauncher
	if len(launcher) == 0 {
		launcher = []string{"otbcli"}
	}
	argv := append(append(append([]string{}, launcher[1:]...), app), args...)
	return t.run(ctx, app, launcher[0], argv...)
}

func (t *Tools) run(ctx context.Context, tool, name string, args ...string) error {
	toolInvocations.WithLabelValues(tool).Inc()
	if err := t.Runner.Run(ctx, name, args...); err != nil {
		toolFailures.WithLabelValues(tool).Inc()
		return err
	}
	return nil
}

// gdal wraps an in-process GDAL call with the same accounting and error
// shape as external tools. fn cannot be interrupted once started.
func (t *Tools) gdal(ctx context.Context, tool string, args []string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	toolInvocations.WithLabelValues(tool).Inc()
	if err := fn(); err != nil {
		toolFailures.WithLabelValues(tool).Inc()
		return &ToolError{Tool: tool, Args: args, Err: err}
	}
	return nil
}

func (t *Tools) BuildVRT(ctx context.Context, dst string, srcs []string) error {
	return t.gdal(ctx, "gdalbuildvrt", append([]string{dst}, srcs...), func() error {
		ds, err := godal.BuildVRT(dst, srcs, nil)
		if err != nil {
			return fmt.Errorf("build vrt %s: %w", dst, err)
		}
		return ds.Close()
	})
}

func (t *Tools) ReplaceValue(ctx context.Context, src, dst string, from, to float64) error {
	return t.otb(ctx, "BandMath",
		"-il", src,
		"-out", dst,
		"-exp", fmt.Sprintf("im1b1 == %s ? %s : im1b1", ftoa(from), ftoa(to)),
		"-progress", "false")
}

func warpSwitches(opts WarpOptions) []string {
	var sw []string
	if opts.Multi {
		sw = append(sw, "-multi")
	}
	if opts.Resampling != "" {
		sw = append(sw, "-r", opts.Resampling)
	}
	if opts.SRS != "" {
		sw = append(sw, "-t_srs", opts.SRS)
	}
	if opts.ResX != 0 || opts.ResY != 0 {
		sw = append(sw, "-tr", ftoa(opts.ResX), ftoa(opts.ResY))
	}
	if opts.Extent != nil {
		e := opts.Extent
		sw = append(sw, "-te", ftoa(e[0]), ftoa(e[1]), ftoa(e[2]), ftoa(e[3]))
	}
	return sw
}

func (t *Tools) warp(ctx context.Context, src, dst string, switches []string, overwrite bool) error {
	args := append([]string{}, switches...)
	if overwrite {
		args = append(args, "-overwrite")
	}
	args = append(args, t.outputSwitches()...)
	args = append(args, src, dst)
	return t.run(ctx, "gdalwarp", orDefault(t.GDALWarp, "gdalwarp"), args...)
}

func (t *Tools) Warp(ctx context.Context, src, dst string, opts WarpOptions) error {
	return t.warp(ctx, src, dst, warpSwitches(opts), opts.Overwrite)
}

// resampleGrid computes the target grid of a resampling to the given
// spacing: same origin as the source, size rounded to the closest integer.
func resampleGrid(gt [6]float64, sizeX, sizeY int, spacingX, spacingY float64) (width, height int, extent [4]float64) {
	ulx, uly := gt[0], gt[3]
	lrx := gt[0] + gt[1]*float64(sizeX)
	lry := gt[3] + gt[5]*float64(sizeY)
	width = int(math.Round((lrx - ulx) / spacingX))
	height = int(math.Round((lry - uly) / spacingY))
	dlrx := ulx + spacingX*float64(width)
	dlry := uly + spacingY*float64(height)
	extent = [4]float64{
		math.Min(ulx, dlrx), math.Min(uly, dlry),
		math.Max(ulx, dlrx), math.Max(uly, dlry),
	}
	return width, height, extent
}

func resampleSwitches(gt [6]float64, sizeX, sizeY int, spacingX, spacingY float64) []string {
	w, h, e := resampleGrid(gt, sizeX, sizeY, spacingX, spacingY)
	return []string{
		"-r", "bilinear",
		"-ot", "Float32",
		"-ts", strconv.Itoa(w), strconv.Itoa(h),
		"-te", ftoa(e[0]), ftoa(e[1]), ftoa(e[2]), ftoa(e[3]),
	}
}

// Resample reads the grid of src in-process, then warps it with gdalwarp.
func (t *Tools) Resample(ctx context.Context, src, dst string, spacingX, spacingY float64) error {
	var gt [6]float64
	var str godal.DatasetStructure
	err := t.gdal(ctx, "gdalinfo", []string{src}, func() error {
		ds, err := godal.Open(src, godal.RasterOnly())
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		defer ds.Close()
		str = ds.Structure()
		if gt, err = ds.GeoTransform(); err != nil {
			return fmt.Errorf("geotransform %s: %w", src, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.warp(ctx, src, dst, resampleSwitches(gt, str.SizeX, str.SizeY, spacingX, spacingY), true)
}

func (t *Tools) dem(ctx context.Context, mode, src, dst string) error {
	return t.run(ctx, "gdaldem", orDefault(t.GDALDEM, "gdaldem"), mode, "-q", "-compute_edges", src, dst)
}

func (t *Tools) Slope(ctx context.Context, src, dst string) error {
	return t.dem(ctx, "slope", src, dst)
}

func (t *Tools) Aspect(ctx context.Context, src, dst string) error {
	return t.dem(ctx, "aspect", src, dst)
}

func (t *Tools) Rescale(ctx context.Context, src, dst string, scale Scale) error {
	args := []string{
		"-ot", "Int16",
		"-scale", ftoa(scale.SrcMin), ftoa(scale.SrcMax), ftoa(scale.DstMin), ftoa(scale.DstMax),
	}
	args = append(args, t.outputSwitches()...)
	args = append(args, src, dst)
	return t.run(ctx, "gdal_translate", orDefault(t.GDALTranslate, "gdal_translate"), args...)
}

func (t *Tools) ListWaterBodyTiles(ctx context.Context, ref, archive, list string) error {
	return t.otb(ctx, "DownloadSWBDTiles",
		"-il", ref,
		"-mode", "list",
		"-mode.list.indir", archive,
		"-mode.list.outlist", list,
		"-progress", "false")
}

func (t *Tools) vectorTranslate(ctx context.Context, src, dst string, switches []string) error {
	sw := append([]string{"-f", "ESRI Shapefile"}, switches...)
	return t.gdal(ctx, "ogr2ogr", append(sw, dst, src), func() error {
		ds, err := godal.Open(src, godal.VectorOnly())
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		defer ds.Close()
		out, err := ds.VectorTranslate(dst, sw)
		if err != nil {
			return fmt.Errorf("vector translate %s->%s: %w", src, dst, err)
		}
		return out.Close()
	})
}

func (t *Tools) CopyVector(ctx context.Context, src, dst string) error {
	return t.vectorTranslate(ctx, src, dst, nil)
}

func (t *Tools) ReprojectVector(ctx context.Context, src, dst, srcSRS, dstSRS string) error {
	return t.vectorTranslate(ctx, src, dst, []string{"-s_srs", srcSRS, "-t_srs", dstSRS})
}

func (t *Tools) ConcatenateVectors(ctx context.Context, dst string, srcs []string) error {
	args := append([]string{"-progress", "false", "-out", dst, "-vd"}, srcs...)
	return t.otb(ctx, "ConcatenateVectorData", args...)
}

func (t *Tools) Rasterize(ctx context.Context, src, dst, ref string, foreground int) error {
	return t.otb(ctx, "Rasterization",
		"-in", src,
		"-out", dst, "uint8",
		"-im", ref,
		"-mode.binary.foreground", strconv.Itoa(foreground),
		"-progress", "false")
}
