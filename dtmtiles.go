package demwb

import (
	"fmt"
	"math"
)

// dtmTileSize is the size in degrees of a tile of the elevation archive.
const dtmTileSize = 5

// A BBox is a geographic bounding box given by its upper-left and
// lower-right corners.
type BBox struct {
	MinLon, MaxLat float64
	MaxLon, MinLat float64
}

// BBoxOf returns the box spanned by the upper-left and lower-right corners of
// a lon/lat extent.
func BBoxOf(e Extent) BBox {
	return BBox{
		MinLon: e.UpperLeft().X,
		MaxLat: e.UpperLeft().Y,
		MaxLon: e.LowerRight().X,
		MinLat: e.LowerRight().Y,
	}
}

// DTMTileName returns the archive file name of the tile whose south-west
// corner is at lon,lat.
func DTMTileName(lon, lat int) string {
	return fmt.Sprintf("srtm_%02d_%02d.tif", (lon+180)/dtmTileSize+1, (60-lat)/dtmTileSize)
}

// DTMTiles returns the names of the elevation archive tiles covering bbox.
// ok is false when the box is degenerate and coverage cannot be determined,
// which is not the same as an empty tile list.
func DTMTiles(bbox BBox) (tiles []string, ok bool) {
	if !(bbox.MinLon < bbox.MaxLon && bbox.MaxLat > bbox.MinLat) {
		return nil, false
	}
	x0 := int(math.Floor(bbox.MinLon/dtmTileSize)) * dtmTileSize
	y0 := int(math.Floor((bbox.MaxLat+dtmTileSize)/dtmTileSize)) * dtmTileSize
	x1 := int(math.Floor((bbox.MaxLon+dtmTileSize)/dtmTileSize)) * dtmTileSize
	y1 := int(math.Floor(bbox.MinLat/dtmTileSize)) * dtmTileSize

	tiles = []string{}
	for lon := min(x0, x1); lon < max(x0, x1); lon += dtmTileSize {
		for lat := min(y0, y1); lat < max(y0, y1); lat += dtmTileSize {
			tiles = append(tiles, DTMTileName(lon, lat))
		}
	}
	return tiles, true
}
