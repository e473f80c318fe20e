package demwb

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
)

const fileType = "AUX_REFDE2"

type eeHeader struct {
	XMLName        xml.Name         `xml:"Earth_Explorer_Header"`
	FixedHeader    eeFixedHeader    `xml:"Fixed_Header"`
	VariableHeader eeVariableHeader `xml:"Variable_Header"`
}

type eeFixedHeader struct {
	Mission  string `xml:"Mission"`
	FileType string `xml:"File_Type"`
}

type eeVariableHeader struct {
	Files eePackagedFiles `xml:"Specific_Product_Header>DBL_Organization>List_of_Packaged_DBL_Files"`
}

type eePackagedFiles struct {
	Count int              `xml:"count,attr"`
	Files []eePackagedFile `xml:"Packaged_DBL_File"`
}

type eePackagedFile struct {
	SN           int    `xml:"sn,attr"`
	RelativePath string `xml:"Relative_File_Path"`
}

// Products returns the product files of tc in manifest order. Absent
// products are returned as empty strings.
func (tc *Context) Products() []string {
	var sec SecondaryOutputs
	if tc.Secondary != nil {
		sec = *tc.Secondary
	}
	return []string{
		tc.DEM, sec.DEM, tc.DEMCoarse,
		tc.Slope, sec.Slope, tc.SlopeCoarse,
		tc.Aspect, sec.Aspect, tc.AspectCoarse,
		tc.WaterMask,
	}
}

// Metadata returns the XML manifest listing the products of tc, relative to
// its output directory.
func Metadata(tc *Context) ([]byte, error) {
	hdr := eeHeader{
		FixedHeader: eeFixedHeader{
			Mission:  tc.Mission.ManifestName(),
			FileType: fileType,
		},
	}
	files := &hdr.VariableHeader.Files
	for _, p := range tc.Products() {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(tc.OutputDir, p)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", p, err)
		}
		files.Files = append(files.Files, eePackagedFile{
			SN:           len(files.Files) + 1,
			RelativePath: rel,
		})
	}
	files.Count = len(files.Files)

	b, err := xml.MarshalIndent(hdr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(b, '\n'), nil
}
