package demwb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var footprintTiles = []string{"srtm_37_04.tif", "srtm_37_03.tif", "srtm_38_04.tif", "srtm_38_03.tif"}

func srtmArchive(t *testing.T, tc *Context, tiles ...string) {
	t.Helper()
	for _, tile := range tiles {
		touch(t, filepath.Join(tc.SRTMDir, tile))
	}
}

func TestDTMStageSentinel2(t *testing.T) {
	tc := testContext(t, Sentinel2)
	srtmArchive(t, tc, footprintTiles...)
	ft := &fakeTools{}
	require.NoError(t, (&DTMStage{Tools: ft}).Run(context.Background(), tc))

	assert.Equal(t, []string{
		"BuildVRT", "ReplaceValue", "Warp",
		"Resample", "Resample",
		"Slope", "Aspect",
		"Rescale", "Rescale",
		"Warp", "Warp", "Warp", "Warp",
	}, ft.ops())

	c := ft.calls
	var srcs []string
	for _, tile := range footprintTiles {
		srcs = append(srcs, filepath.Join(tc.SRTMDir, tile))
	}
	assert.Equal(t, append([]string{tc.DEMVRT}, srcs...), c[0].Args)
	assert.Equal(t, []string{tc.DEMVRT, tc.DEMNoData, "-32768", "0"}, c[1].Args)
	assert.Equal(t, []string{tc.DEMNoData, tc.DEM,
		"-multi", "-r", "cubic", "-t_srs", "EPSG:32631",
		"-tr", "10", "-10",
		"-te", "300000", "4890240", "409800", "5000040"}, c[2].Args)
	assert.Equal(t, []string{tc.DEM, tc.Secondary.DEM, "20", "-20"}, c[3].Args)
	assert.Equal(t, []string{tc.DEM, tc.DEMCoarse, "240", "-240"}, c[4].Args)
	assert.Equal(t, []string{tc.DEM, tc.SlopeDegrees}, c[5].Args)
	assert.Equal(t, []string{tc.DEM, tc.AspectDegrees}, c[6].Args)
	assert.Equal(t, []string{tc.SlopeDegrees, tc.Slope, "0", "90", "0", "157"}, c[7].Args)
	assert.Equal(t, []string{tc.AspectDegrees, tc.Aspect, "0", "368", "0", "628"}, c[8].Args)
	assert.Equal(t, []string{tc.Slope, tc.Secondary.Slope, "-r", "cubic", "-tr", "20", "20"}, c[9].Args)
	assert.Equal(t, []string{tc.Aspect, tc.Secondary.Aspect, "-r", "cubic", "-tr", "20", "20"}, c[10].Args)
	assert.Equal(t, []string{tc.Slope, tc.SlopeCoarse, "-r", "cubic", "-tr", "240", "240"}, c[11].Args)
	assert.Equal(t, []string{tc.Aspect, tc.AspectCoarse, "-r", "cubic", "-tr", "240", "240"}, c[12].Args)
}

func TestDTMStageLandsat8(t *testing.T) {
	tc := testContext(t, Landsat8)
	srtmArchive(t, tc, footprintTiles...)
	ft := &fakeTools{}
	require.NoError(t, (&DTMStage{Tools: ft}).Run(context.Background(), tc))

	assert.Equal(t, []string{
		"BuildVRT", "ReplaceValue", "Warp",
		"Resample",
		"Slope", "Aspect",
		"Rescale", "Rescale",
		"Warp", "Warp",
	}, ft.ops())
	for _, c := range ft.calls {
		assert.NotContains(t, c.Args, "20", c.String())
	}
}

func TestDTMStageAbortsOnFailure(t *testing.T) {
	tc := testContext(t, Sentinel2)
	srtmArchive(t, tc, footprintTiles...)
	ft := &fakeTools{failOn: map[string]bool{"Slope": true}}
	err := (&DTMStage{Tools: ft}).Run(context.Background(), tc)
	assert.ErrorContains(t, err, "Slope failed")
	assert.Equal(t, []string{
		"BuildVRT", "ReplaceValue", "Warp",
		"Resample", "Resample",
		"Slope",
	}, ft.ops())
}

func TestDTMStageMissingTiles(t *testing.T) {
	tc := testContext(t, Sentinel2)
	srtmArchive(t, tc, "srtm_38_03.tif")
	ft := &fakeTools{}
	core, logs := observer.New(zapcore.WarnLevel)
	require.NoError(t, (&DTMStage{Tools: ft, Logger: zap.New(core)}).Run(context.Background(), tc))

	vrt := ft.find("BuildVRT")
	require.Len(t, vrt, 1)
	assert.Equal(t, []string{tc.DEMVRT, filepath.Join(tc.SRTMDir, "srtm_38_03.tif")}, vrt[0].Args)

	warnings := logs.All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, "31TCJ", fields["tile"])
	assert.ElementsMatch(t, []interface{}{"srtm_37_04.tif", "srtm_37_03.tif", "srtm_38_04.tif"}, fields["missing"])
}

func TestDTMStageNoTiles(t *testing.T) {
	tc := testContext(t, Sentinel2)
	ft := &fakeTools{}
	err := (&DTMStage{Tools: ft}).Run(context.Background(), tc)
	assert.True(t, errors.Is(err, ErrNoTiles))
	assert.Empty(t, ft.calls)

	tc.Geometry.WGS84Extent = Extent{}
	err = (&DTMStage{Tools: ft}).Run(context.Background(), tc)
	assert.True(t, errors.Is(err, ErrNoCoverage))
	assert.Empty(t, ft.calls)
}

type mapArchive map[string]bool

func (a mapArchive) Path(name string) string { return "gs://bucket/srtm/" + name }

func (a mapArchive) Exists(_ context.Context, name string) (bool, error) {
	return a[name], nil
}

func TestDTMStageArchive(t *testing.T) {
	tc := testContext(t, Landsat8)
	ft := &fakeTools{}
	archive := mapArchive{"srtm_37_03.tif": true, "srtm_38_04.tif": true}
	require.NoError(t, (&DTMStage{Tools: ft, Archive: archive}).Run(context.Background(), tc))
	vrt := ft.find("BuildVRT")
	require.Len(t, vrt, 1)
	assert.Equal(t, []string{tc.DEMVRT, "gs://bucket/srtm/srtm_37_03.tif", "gs://bucket/srtm/srtm_38_04.tif"}, vrt[0].Args)
}
