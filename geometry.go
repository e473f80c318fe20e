package demwb

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/twpayne/go-proj/v10"
)

// A Point is a coordinate pair, x being the easting or longitude.
type Point struct {
	X, Y float64
}

// An Extent holds the four corners of a raster in upper-left, lower-left,
// lower-right, upper-right order.
type Extent [4]Point

func (e Extent) UpperLeft() Point  { return e[0] }
func (e Extent) LowerLeft() Point  { return e[1] }
func (e Extent) LowerRight() Point { return e[2] }
func (e Extent) UpperRight() Point { return e[3] }

// Geometry is the native grid of a tile.
type Geometry struct {
	SizeX, SizeY       int
	SpacingX, SpacingY float64
	Extent             Extent // in the source projection
	WGS84Extent        Extent // lon/lat
	EPSG               string
}

// DataReadError is returned when a raster cannot be opened or does not carry
// usable georeferencing.
type DataReadError struct {
	Path string
	Err  error
}

func (e *DataReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *DataReadError) Unwrap() error {
	return e.Err
}

// A CoordTransformer reprojects points from the CRS identified by an EPSG
// code to geographic lon/lat coordinates.
type CoordTransformer interface {
	ToWGS84(epsg string, pts []Point) ([]Point, error)
}

// ExtentFromGeoTransform computes the corners of a sizeX*sizeY raster from its
// origin and pixel spacing.
func ExtentFromGeoTransform(gt [6]float64, sizeX, sizeY int) Extent {
	ulx, uly := gt[0], gt[3]
	lrx := gt[0] + gt[1]*float64(sizeX)
	lry := gt[3] + gt[5]*float64(sizeY)
	return Extent{
		{ulx, uly},
		{ulx, lry},
		{lrx, lry},
		{lrx, uly},
	}
}

// ResolveGeometry reads the native geometry of the raster at path and
// reprojects its extent to lon/lat with trn.
func ResolveGeometry(path string, trn CoordTransformer) (Geometry, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return Geometry{}, &DataReadError{Path: path, Err: err}
	}
	defer ds.Close()

	str := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return Geometry{}, &DataReadError{Path: path, Err: fmt.Errorf("geotransform: %w", err)}
	}
	if ds.Projection() == "" {
		return Geometry{}, &DataReadError{Path: path, Err: fmt.Errorf("no projection")}
	}
	sr := ds.SpatialRef()
	defer sr.Close()
	epsg := sr.AuthorityCode("")
	if epsg == "" {
		return Geometry{}, &DataReadError{Path: path, Err: fmt.Errorf("spatial reference has no authority code")}
	}

	geom := Geometry{
		SizeX:    str.SizeX,
		SizeY:    str.SizeY,
		SpacingX: gt[1],
		SpacingY: gt[5],
		Extent:   ExtentFromGeoTransform(gt, str.SizeX, str.SizeY),
		EPSG:     epsg,
	}
	wgs84, err := trn.ToWGS84(epsg, geom.Extent[:])
	if err != nil {
		return Geometry{}, &DataReadError{Path: path, Err: fmt.Errorf("reproject extent: %w", err)}
	}
	copy(geom.WGS84Extent[:], wgs84)
	return geom, nil
}

// ProjTransformer is a CoordTransformer backed by PROJ.
type ProjTransformer struct{}

func (ProjTransformer) ToWGS84(epsg string, pts []Point) ([]Point, error) {
	// EPSG:4326 is lat/lon ordered, the input points already are lon/lat.
	if epsg == "4326" {
		return append([]Point(nil), pts...), nil
	}
	pj, err := proj.NewCRSToCRS("epsg:"+epsg, "epsg:4326", nil)
	if err != nil {
		return nil, fmt.Errorf("proj epsg:%s: %w", epsg, err)
	}
	defer pj.Destroy()

	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.X, p.Y}
	}
	if err := pj.ForwardFloat64Slices(coords); err != nil {
		return nil, err
	}
	// epsg:4326 is lat/lon ordered
	out := make([]Point, len(coords))
	for i, c := range coords {
		out[i] = Point{X: c[1], Y: c[0]}
	}
	return out, nil
}
