package boundary

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/harmattan-labs/cng-atlas/internal/store"
)

// Index answers point-in-polygon lookups against one admin level. Regions
// are checked with a bounding-box prefilter before the ray cast, which keeps
// a full-country enrich pass cheap enough to run in-process.
type Index struct {
	regions []indexedRegion
}

type indexedRegion struct {
	name   string
	parent string
	bounds *geom.Bounds
	geom   *geom.MultiPolygon
}

// NewIndex decodes EWKB boundary rows into an in-memory lookup index.
func NewIndex(boundaries []store.Boundary) (*Index, error) {
	ix := &Index{regions: make([]indexedRegion, 0, len(boundaries))}
	for _, b := range boundaries {
		g, err := ewkb.Unmarshal(b.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: decode geometry for %s", b.Name)
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			return nil, eris.Errorf("boundary: %s is %T, want multipolygon", b.Name, g)
		}
		ix.regions = append(ix.regions, indexedRegion{
			name:   b.Name,
			parent: b.Parent,
			bounds: mp.Bounds(),
			geom:   mp,
		})
	}
	return ix, nil
}

// Len returns the number of indexed regions.
func (ix *Index) Len() int { return len(ix.regions) }

// Locate returns the region containing the point, along with its parent
// region name (the owning state for LGA indexes). ok is false when the point
// falls outside every indexed region.
func (ix *Index) Locate(lat, lon float64) (name, parent string, ok bool) {
	for _, r := range ix.regions {
		if !r.bounds.OverlapsPoint(geom.XY, geom.Coord{lon, lat}) {
			continue
		}
		if containsPoint(r.geom, lon, lat) {
			return r.name, r.parent, true
		}
	}
	return "", "", false
}

// containsPoint applies the even-odd rule across every ring of the
// multipolygon. Counting crossings on interior rings too means holes are
// handled without tracking winding order.
func containsPoint(mp *geom.MultiPolygon, x, y float64) bool {
	crossings := 0
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			crossings += rayCrossings(poly.LinearRing(j), x, y)
		}
	}
	return crossings%2 == 1
}

// rayCrossings counts how many ring edges a horizontal ray from (x, y) to
// +infinity crosses.
func rayCrossings(ring *geom.LinearRing, x, y float64) int {
	flat := ring.FlatCoords()
	stride := ring.Stride()
	n := len(flat) / stride
	if n < 3 {
		return 0
	}

	count := 0
	for i := 0; i < n; i++ {
		x1, y1 := flat[i*stride], flat[i*stride+1]
		next := (i + 1) % n
		x2, y2 := flat[next*stride], flat[next*stride+1]

		if (y1 > y) == (y2 > y) {
			continue
		}
		// x coordinate where the edge crosses the ray's latitude.
		crossX := x1 + (y-y1)/(y2-y1)*(x2-x1)
		if crossX > x {
			count++
		}
	}
	return count
}
