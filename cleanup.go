package demwb

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"
)

var shapefileSidecars = []string{".shx", ".prj", ".dbf"}

// Intermediates returns the temporary files produced while processing tc.
func (tc *Context) Intermediates() []string {
	files := []string{
		tc.SWBDList, tc.DEMVRT, tc.DEMNoData,
		tc.SlopeDegrees, tc.AspectDegrees,
		tc.WB, tc.WBReprojected,
	}
	for _, shp := range []string{tc.WB, tc.WBReprojected} {
		base := strings.TrimSuffix(shp, ".shp")
		for _, ext := range shapefileSidecars {
			files = append(files, base+ext)
		}
	}
	return files
}

// Cleanup removes the intermediates of tc and its temporary directory. It is
// best effort: failures are logged and never returned, so that it can run
// any number of times.
func Cleanup(tc *Context, logger *zap.Logger) {
	logger = loggerOrNop(logger)
	for _, f := range tc.Intermediates() {
		err := os.Remove(f)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug("intermediate already removed", zap.String("file", f))
		default:
			logger.Warn("cannot remove intermediate", zap.String("file", f), zap.Error(err))
		}
	}
	err := os.Remove(tc.TempDir)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("temp dir already removed", zap.String("dir", tc.TempDir))
	default:
		logger.Warn("couldn't remove the temp dir", zap.String("dir", tc.TempDir), zap.Error(err))
	}
}
