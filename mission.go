package demwb

import (
	"path/filepath"
	"regexp"
)

// Mission identifies the satellite mission a product belongs to. Mission
// specific constants are carried by the mission itself so that code
// downstream of the context builder never has to re-match names.
type Mission int

const (
	Landsat8 Mission = iota + 1
	Sentinel2
)

type missionInfo struct {
	tag         string // file name prefix
	manifest    string // Fixed_Header/Mission value
	dirPattern  *regexp.Regexp
	imgPattern  *regexp.Regexp
	bandGlob    string
	secondary   bool
	nativeAlt   string
	nativeSlope string
	nativeAsp   string
}

var missions = map[Mission]missionInfo{
	Landsat8: {
		tag:         "L8",
		manifest:    "LANDSAT_8",
		dirPattern:  regexp.MustCompile(`^[A-Z][A-Z]\d\d{6}(\d{4}\d{3})[A-Z]{3}\d{2}`),
		imgPattern:  regexp.MustCompile(`^[A-Z][A-Z]\d(\d{6}\d{4}\d{3})[A-Z]{3}\d{2}_B\d{1,2}\.TIF`),
		bandGlob:    "%s_B1.TIF",
		nativeAlt:   "ALT",
		nativeSlope: "SLP",
		nativeAsp:   "ASP",
	},
	Sentinel2: {
		tag:         "S2",
		manifest:    "SENTINEL-2_",
		dirPattern:  regexp.MustCompile(`^S2[AB]\w+_(\d{8}T\d{6})\w+.SAFE`),
		imgPattern:  regexp.MustCompile(`^(?:\w+_T(\w{5})_B\d{2}\.\w{3}|T(\w{5})_\d{8}T\d{6}_B\d{2}.\w{3})`),
		bandGlob:    "*_B02.jp2",
		secondary:   true,
		nativeAlt:   "ALT_R1",
		nativeSlope: "SLP_R1",
		nativeAsp:   "ASP_R1",
	},
}

// identification order
var missionOrder = []Mission{Landsat8, Sentinel2}

func (m Mission) info() missionInfo {
	return missions[m]
}

// String returns the short mission tag used in product names ("L8", "S2").
func (m Mission) String() string {
	if mi, ok := missions[m]; ok {
		return mi.tag
	}
	return "unknown"
}

// ManifestName is the mission value written to the product manifest.
func (m Mission) ManifestName() string {
	return m.info().manifest
}

// HasSecondaryResolution reports whether products are also generated on the
// 20m secondary grid.
func (m Mission) HasSecondaryResolution() bool {
	return m.info().secondary
}

// IdentifyDir classifies a product directory name. The returned key is the
// acquisition timestamp in the mission's own format. ok is false if the name
// does not follow any known convention.
func IdentifyDir(name string) (mission Mission, key string, ok bool) {
	return identify(filepath.Base(name), func(mi missionInfo) *regexp.Regexp { return mi.dirPattern })
}

// IdentifyImage classifies an image file name and returns its tile identifier.
func IdentifyImage(name string) (mission Mission, key string, ok bool) {
	return identify(filepath.Base(name), func(mi missionInfo) *regexp.Regexp { return mi.imgPattern })
}

func identify(name string, pattern func(missionInfo) *regexp.Regexp) (Mission, string, bool) {
	for _, m := range missionOrder {
		match := pattern(m.info()).FindStringSubmatch(name)
		if match == nil {
			continue
		}
		for _, group := range match[1:] {
			if group != "" {
				return m, group, true
			}
		}
	}
	return 0, "", false
}
