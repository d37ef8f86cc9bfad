// Package source loads neighborhood boundaries from local files so layers
// can be drawn when the backend omits or lacks geometry.
package source

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/barrio"
)

// Boundary is one polygon read from a shapefile, in the file's projected
// coordinates (easting, northing).
type Boundary struct {
	Name     string
	District string
	Ring     [][]float64
}

// ShapefileOptions names the attribute columns to read.
type ShapefileOptions struct {
	NameField     string
	DistrictField string
}

// LoadShapefile reads polygon boundaries. Only the outer ring of each
// polygon is kept; records without a name or polygon are skipped.
func LoadShapefile(path string, opts ShapefileOptions) ([]Boundary, error) {
	if opts.NameField == "" {
		opts.NameField = "NOM"
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToLower(strings.TrimRight(f.String(), "\x00"))] = i
	}
	nameIdx, ok := fieldIdx[strings.ToLower(opts.NameField)]
	if !ok {
		return nil, eris.Errorf("source: shapefile %s has no %q field", path, opts.NameField)
	}
	districtIdx, hasDistrict := fieldIdx[strings.ToLower(opts.DistrictField)]

	var out []Boundary
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		name := attr(reader, nameIdx)
		ring := outerRing(shape)
		if name == "" || len(ring) < 3 {
			skipped++
			continue
		}
		b := Boundary{Name: name, Ring: ring}
		if hasDistrict {
			b.District = attr(reader, districtIdx)
		}
		out = append(out, b)
	}

	if skipped > 0 {
		zap.L().Warn("source: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func attr(r *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(idx), "\x00"))
}

func outerRing(shape shp.Shape) [][]float64 {
	poly, ok := shape.(*shp.Polygon)
	if !ok || poly.NumPoints == 0 {
		return nil
	}
	end := int(poly.NumPoints)
	if poly.NumParts > 1 {
		end = int(poly.Parts[1])
	}
	ring := make([][]float64, 0, end)
	for _, p := range poly.Points[:end] {
		ring = append(ring, []float64{p.X, p.Y})
	}
	return ring
}

// Attach fills in missing geometry on records from boundaries matched by
// folded name, and returns how many records were updated. Records that
// already carry geometry are left alone.
func Attach(records []barrio.Neighborhood, boundaries []Boundary) int {
	byName := make(map[string]Boundary, len(boundaries))
	for _, b := range boundaries {
		byName[barrio.FoldName(b.Name)] = b
	}
	n := 0
	for i := range records {
		if records[i].HasGeometry() {
			continue
		}
		b, ok := byName[barrio.FoldName(records[i].Name)]
		if !ok {
			continue
		}
		records[i].Geometry = &barrio.Geometry{Type: "Polygon", Coordinates: [][][]float64{b.Ring}}
		n++
	}
	return n
}

// FromRecords collects the outer rings of records that carry geometry, so
// a geometry-only listing can be attached like offline boundaries.
func FromRecords(records []barrio.Neighborhood) []Boundary {
	out := make([]Boundary, 0, len(records))
	for _, r := range records {
		if !r.HasGeometry() {
			continue
		}
		out = append(out, Boundary{Name: r.Name, District: r.District, Ring: r.Ring()})
	}
	return out
}

// Missing counts records without usable geometry.
func Missing(records []barrio.Neighborhood) int {
	n := 0
	for _, r := range records {
		if !r.HasGeometry() {
			n++
		}
	}
	return n
}
