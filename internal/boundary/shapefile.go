package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/model"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

// Admin levels as stored alongside each boundary row.
const (
	LevelState = "state"
	LevelLGA   = "lga"
)

// ParseShapefile reads one GADM shapefile and returns EWKB-encoded boundary
// rows. For LevelState the name comes from NAME_1; for LevelLGA the name
// comes from NAME_2 with NAME_1 as the parent state. State names are mapped
// to the canonical 36-states+FCT spelling so lookups line up with scraped
// records.
func ParseShapefile(shpPath, level string) ([]store.Boundary, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	nameField, parentField := "name_1", ""
	if level == LevelLGA {
		nameField, parentField = "name_2", "name_1"
	}
	nameIdx, ok := fieldIdx[nameField]
	if !ok {
		return nil, eris.Errorf("boundary: shapefile %s has no %s field", shpPath, strings.ToUpper(nameField))
	}

	var rows []store.Boundary
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		name := attribute(reader, nameIdx)
		if name == "" {
			skipped++
			continue
		}

		var parent string
		if parentField != "" {
			if idx, found := fieldIdx[parentField]; found {
				parent = canonicalState(attribute(reader, idx))
			}
		}
		if level == LevelState {
			name = canonicalState(name)
		}

		data, encErr := encodeEWKB(shape)
		if encErr != nil || data == nil {
			skipped++
			continue
		}

		rows = append(rows, store.Boundary{
			Level:  level,
			Name:   name,
			Parent: parent,
			Geom:   data,
		})
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("level", level),
			zap.Int("skipped", skipped),
		)
	}
	return rows, nil
}

func attribute(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}

// canonicalState maps a GADM state name to the canonical spelling, falling
// back to the raw name for the rare variants the alias table misses.
func canonicalState(raw string) string {
	if canonical := model.NormalizeState(raw); canonical != "" {
		return canonical
	}
	return raw
}

// encodeEWKB converts a shapefile polygon to EWKB bytes with SRID 4326.
// Returns nil, nil for non-polygon or empty shapes.
func encodeEWKB(shape shp.Shape) ([]byte, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil {
		return nil, nil
	}

	mp := polygonToMultiPolygon(p)
	if mp == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode EWKB")
	}
	return data, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Each shapefile part becomes one single-ring polygon; ring winding is left
// as-is since lookups use even-odd containment.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
