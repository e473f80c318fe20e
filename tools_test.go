package demwb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsExternalCommands(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{}
	tools := NewTools(r)
	tools.OTBLauncher = []string{"singularity", "exec", "otb.sif", "otbcli"}
	tools.GDALDEM = "/opt/gdal/bin/gdaldem"

	require.NoError(t, tools.ReplaceValue(ctx, "dem.vrt", "dem.tif", -32768, 0))
	require.NoError(t, tools.Slope(ctx, "alt.tif", "slope.tif"))
	require.NoError(t, tools.Aspect(ctx, "alt.tif", "aspect.tif"))
	require.NoError(t, tools.ListWaterBodyTiles(ctx, "alt.tif", "/swbd", "swbd.txt"))
	require.NoError(t, tools.ConcatenateVectors(ctx, "wb.shp", []string{"a.shp", "b.shp"}))
	require.NoError(t, tools.Rasterize(ctx, "wb_reprojected.shp", "msk.tif", "alc.tif", 1))

	otb := []string{"singularity", "exec", "otb.sif", "otbcli"}
	assert.Equal(t, [][]string{
		append(otb, "BandMath", "-il", "dem.vrt", "-out", "dem.tif",
			"-exp", "im1b1 == -32768 ? 0 : im1b1", "-progress", "false"),
		{"/opt/gdal/bin/gdaldem", "slope", "-q", "-compute_edges", "alt.tif", "slope.tif"},
		{"/opt/gdal/bin/gdaldem", "aspect", "-q", "-compute_edges", "alt.tif", "aspect.tif"},
		append(otb, "DownloadSWBDTiles", "-il", "alt.tif", "-mode", "list",
			"-mode.list.indir", "/swbd", "-mode.list.outlist", "swbd.txt", "-progress", "false"),
		append(otb, "ConcatenateVectorData", "-progress", "false", "-out", "wb.shp", "-vd", "a.shp", "b.shp"),
		append(otb, "Rasterization", "-in", "wb_reprojected.shp", "-out", "msk.tif", "uint8",
			"-im", "alc.tif", "-mode.binary.foreground", "1", "-progress", "false"),
	}, r.cmds)
}

func TestToolsRunnerError(t *testing.T) {
	boom := errors.New("boom")
	tools := NewTools(&fakeRunner{err: boom})
	err := tools.Slope(context.Background(), "a", "b")
	assert.True(t, errors.Is(err, boom))
}

func TestToolsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tools := NewTools(&fakeRunner{})
	dst := filepath.Join(t.TempDir(), "dem.vrt")
	err := tools.BuildVRT(ctx, dst, []string{"a.tif"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, dst)
}

func TestWarpSwitches(t *testing.T) {
	assert.Empty(t, warpSwitches(WarpOptions{}))
	assert.Equal(t, []string{"-r", "cubic", "-tr", "240", "240"},
		warpSwitches(WarpOptions{ResX: 240, ResY: 240, Resampling: "cubic", Overwrite: true}))
	assert.Equal(t, []string{"-multi", "-r", "cubic", "-t_srs", "EPSG:2154", "-tr", "30", "-30", "-te", "1.5", "2", "3", "4.25"},
		warpSwitches(WarpOptions{
			SRS: "EPSG:2154", ResX: 30, ResY: -30, Resampling: "cubic", Multi: true,
			Extent: &[4]float64{1.5, 2, 3, 4.25},
		}))
}

func TestResampleGrid(t *testing.T) {
	gt := [6]float64{300000, 10, 0, 5000040, 0, -10}
	w, h, e := resampleGrid(gt, 10980, 10980, 20, -20)
	assert.Equal(t, 5490, w)
	assert.Equal(t, 5490, h)
	assert.Equal(t, [4]float64{300000, 4890240, 409800, 5000040}, e)

	// 457.5 cells are rounded up, the extent grows accordingly
	w, h, e = resampleGrid(gt, 10980, 10980, 240, -240)
	assert.Equal(t, 458, w)
	assert.Equal(t, 458, h)
	assert.Equal(t, [4]float64{300000, 4890120, 409920, 5000040}, e)

	assert.Equal(t, []string{
		"-r", "bilinear", "-ot", "Float32",
		"-ts", "5490", "5490",
		"-te", "300000", "4890240", "409800", "5000040",
	}, resampleSwitches(gt, 10980, 10980, 20, -20))
}

func createFloatRaster(t *testing.T, path string, width, height int, spacing float64, values []float32) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, width, height)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{300000, spacing, 0, 5000040, 0, -spacing}))
	sr, err := godal.NewSpatialRefFromEPSG(32631)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))
	require.NoError(t, ds.Bands()[0].Write(0, 0, values, width, height))
	require.NoError(t, ds.Close())
}

func TestToolsRasterCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "alt.tif")
	createFloatRaster(t, src, 60, 60, 10, make([]float32, 3600))

	r := &fakeRunner{}
	tools := NewTools(r)
	tools.CreationOptions = []string{"COMPRESS=DEFLATE"}
	tools.ConfigOptions = []string{"GDAL_CACHEMAX=512"}
	out := []string{"-of", "GTiff", "-co", "COMPRESS=DEFLATE", "--config", "GDAL_CACHEMAX", "512"}

	require.NoError(t, tools.Warp(ctx, "dem.tif", "dem_ref.tif", WarpOptions{
		SRS: "EPSG:32631", ResX: 30, ResY: -30, Resampling: "cubic", Overwrite: true,
	}))
	require.NoError(t, tools.Resample(ctx, src, "alt_r2.tif", 20, -20))
	require.NoError(t, tools.Rescale(ctx, "slope_degrees.tif", "slope.tif", slopeScale))

	join := func(parts ...[]string) []string {
		var argv []string
		for _, p := range parts {
			argv = append(argv, p...)
		}
		return argv
	}
	assert.Equal(t, [][]string{
		join([]string{"gdalwarp", "-r", "cubic", "-t_srs", "EPSG:32631", "-tr", "30", "-30", "-overwrite"},
			out, []string{"dem.tif", "dem_ref.tif"}),
		join([]string{"gdalwarp", "-r", "bilinear", "-ot", "Float32", "-ts", "30", "30",
			"-te", "300000", "4999440", "300600", "5000040", "-overwrite"},
			out, []string{src, "alt_r2.tif"}),
		join([]string{"gdal_translate", "-ot", "Int16", "-scale", "0", "90", "0", "157"},
			out, []string{"slope_degrees.tif", "slope.tif"}),
	}, r.cmds)

	// the grid source must be readable
	err := tools.Resample(ctx, filepath.Join(dir, "missing.tif"), "x.tif", 20, -20)
	assert.Error(t, err)
	assert.Len(t, r.cmds, 3)
}

func TestToolsRasterCommandsAreInterrupted(t *testing.T) {
	// a gdalwarp that never finishes on its own
	warp := filepath.Join(t.TempDir(), "gdalwarp")
	require.NoError(t, os.WriteFile(warp, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))
	tools := NewTools(ExecRunner{})
	tools.GDALWarp = warp

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	report, err := (&Executor{Workers: 1}).Run(ctx, makeContexts(2), func(ctx context.Context, tc *Context) error {
		return tools.Warp(ctx, "src.tif", tc.TileID+".tif", WarpOptions{})
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, report, 2)
	assert.Error(t, report[0].Err)
	assert.True(t, report[1].Skipped)
}
