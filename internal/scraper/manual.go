package scraper

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// ImportFile reads a manually curated station list from a CSV or XLSX file.
// Rows carry the scraped-record fields plus optional latitude/longitude
// columns; rows with coordinates are stored pre-matched.
func ImportFile(ctx context.Context, path string) ([]model.Station, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSVRows(ctx, path)
	case ".xlsx":
		rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	default:
		return nil, eris.Errorf("import: unsupported file type %q (valid: .csv, .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.Errorf("import: %s has no data rows", path)
	}

	cols := mapManualColumns(rows[0])
	if cols.name < 0 {
		return nil, eris.Errorf("import: no name column in header %v", rows[0])
	}

	var stations []model.Station
	var skipped int
	for _, row := range rows[1:] {
		name := cell(row, cols.name)
		if name == "" {
			skipped++
			continue
		}

		st := model.Station{
			Source:    "manual",
			SourceKey: slugKey(name, cell(row, cols.state)),
			Name:      name,
			Operator:  cell(row, cols.operator),
			Address:   cell(row, cols.address),
			City:      cell(row, cols.city),
			State:     cell(row, cols.state),
			LGA:       cell(row, cols.lga),
			Status:    licenceStatus(cell(row, cols.status)),
		}

		lat := parseCoord(cell(row, cols.lat))
		lon := parseCoord(cell(row, cols.lon))
		if lat != 0 || lon != 0 {
			st.Latitude = lat
			st.Longitude = lon
			st.GeocodeStatus = model.GeocodeManual
			st.GeocodeSource = "manual"
			st.GeocodeQuality = "rooftop"
		}

		stations = append(stations, st)
	}

	normalizeStations("manual", stations)

	zap.L().Info("manual list parsed",
		zap.String("path", path),
		zap.Int("stations", len(stations)),
		zap.Int("skipped", skipped),
	)
	return stations, nil
}

// manualColumns locates import file columns. -1 means absent.
type manualColumns struct {
	name     int
	operator int
	address  int
	city     int
	state    int
	lga      int
	status   int
	lat      int
	lon      int
}

// mapManualColumns resolves header cells by substring match, in the same
// loose style as the registry workbook mapping.
func mapManualColumns(header []string) manualColumns {
	cols := manualColumns{
		name: -1, operator: -1, address: -1, city: -1,
		state: -1, lga: -1, status: -1, lat: -1, lon: -1,
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.operator < 0 && (strings.Contains(h, "operator") || strings.Contains(h, "company")):
			cols.operator = i
		case cols.name < 0 && strings.Contains(h, "name"):
			cols.name = i
		case cols.address < 0 && strings.Contains(h, "address"):
			cols.address = i
		case cols.city < 0 && (strings.Contains(h, "city") || strings.Contains(h, "town")):
			cols.city = i
		case cols.lga < 0 && (strings.Contains(h, "lga") || strings.Contains(h, "local government")):
			cols.lga = i
		case cols.state < 0 && strings.Contains(h, "state"):
			cols.state = i
		case cols.status < 0 && strings.Contains(h, "status"):
			cols.status = i
		case cols.lat < 0 && strings.Contains(h, "lat"):
			cols.lat = i
		case cols.lon < 0 && (strings.Contains(h, "lon") || strings.Contains(h, "lng")):
			cols.lon = i
		}
	}
	return cols
}

func parseCoord(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func readCSVRows(ctx context.Context, path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}
