package scraper

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// NMDPRA scrapes the Nigerian Midstream and Downstream Petroleum Regulatory
// Authority's licensed gas facility workbook. The workbook lists every gas
// licence class; only CNG refuelling rows are kept.
type NMDPRA struct {
	url  string
	http *fetcher.HTTPFetcher
	ftp  *fetcher.FTPFetcher
}

// NewNMDPRA creates the NMDPRA source. The URL may be http(s) or ftp.
func NewNMDPRA(url string, httpf *fetcher.HTTPFetcher, ftpf *fetcher.FTPFetcher) *NMDPRA {
	return &NMDPRA{url: url, http: httpf, ftp: ftpf}
}

func (s *NMDPRA) Name() string       { return "nmdpra" }
func (s *NMDPRA) Category() Category { return Official }
func (s *NMDPRA) Cadence() Cadence   { return Monthly }

func (s *NMDPRA) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return MonthlySchedule(now, lastSync)
}

// Fetch downloads the workbook and parses CNG refuelling licences.
func (s *NMDPRA) Fetch(ctx context.Context, tempDir string) ([]model.Station, error) {
	d, err := fetcher.ForURL(s.url, s.http, s.ftp)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(tempDir, "nmdpra-licences.xlsx")
	if _, err := d.DownloadToFile(ctx, s.url, path); err != nil {
		return nil, eris.Wrap(err, "nmdpra: download workbook")
	}

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "nmdpra: read workbook")
	}
	if len(rows) < 2 {
		return nil, eris.New("nmdpra: workbook has no data rows")
	}

	cols := mapColumns(rows[0])
	if cols.name < 0 {
		return nil, eris.Errorf("nmdpra: no facility name column in header %v", rows[0])
	}

	var stations []model.Station
	var skipped int
	for _, row := range rows[1:] {
		if !isCNGRow(row, cols) {
			skipped++
			continue
		}

		name := cell(row, cols.name)
		if name == "" {
			skipped++
			continue
		}

		st := model.Station{
			Source:    s.Name(),
			SourceKey: s.sourceKey(row, cols),
			Name:      name,
			Operator:  cell(row, cols.operator),
			Address:   cell(row, cols.address),
			City:      cell(row, cols.city),
			State:     cell(row, cols.state),
			LGA:       cell(row, cols.lga),
			Status:    licenceStatus(cell(row, cols.status)),
		}
		stations = append(stations, st)
	}

	zap.L().Info("nmdpra workbook parsed",
		zap.Int("stations", len(stations)),
		zap.Int("skipped", skipped),
	)
	return stations, nil
}

// columnIndexes locates the workbook columns of interest. -1 means absent.
type columnIndexes struct {
	licence  int
	name     int
	operator int
	address  int
	city     int
	state    int
	lga      int
	status   int
	product  int
}

// mapColumns resolves header cells by substring match. The registry's header
// wording has drifted across publications, so matching is loose.
func mapColumns(header []string) columnIndexes {
	cols := columnIndexes{
		licence: -1, name: -1, operator: -1, address: -1,
		city: -1, state: -1, lga: -1, status: -1, product: -1,
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.licence < 0 && (strings.Contains(h, "licence") || strings.Contains(h, "license")) && strings.Contains(h, "no"):
			cols.licence = i
		case cols.name < 0 && (strings.Contains(h, "facility") || strings.Contains(h, "station")):
			cols.name = i
		case cols.operator < 0 && (strings.Contains(h, "company") || strings.Contains(h, "operator")):
			cols.operator = i
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
		case cols.product < 0 && (strings.Contains(h, "product") || strings.Contains(h, "licence type") || strings.Contains(h, "license type") || strings.Contains(h, "category")):
			cols.product = i
		}
	}
	return cols
}

// isCNGRow reports whether a workbook row is a CNG refuelling licence. When
// the workbook has no product column every row is taken; the publication URL
// is expected to already be the CNG extract in that case.
func isCNGRow(row []string, cols columnIndexes) bool {
	if cols.product < 0 {
		return true
	}
	product := strings.ToLower(cell(row, cols.product))
	return strings.Contains(product, "cng") || strings.Contains(product, "compressed natural gas")
}

// sourceKey prefers the licence number; rows without one get a digest of the
// identifying fields so re-scrapes stay idempotent.
func (s *NMDPRA) sourceKey(row []string, cols columnIndexes) string {
	if lic := cell(row, cols.licence); lic != "" {
		return lic
	}
	h := sha256.Sum256([]byte(strings.ToLower(
		cell(row, cols.name) + "|" + cell(row, cols.address) + "|" + cell(row, cols.state),
	)))
	return fmt.Sprintf("%x", h[:8])
}

// licenceStatus maps registry status wording to the station status taxonomy.
func licenceStatus(s string) model.StationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active", "operational", "granted", "valid":
		return model.StationOperational
	case "under construction", "proposed", "planned", "approval in principle":
		return model.StationPlanned
	case "suspended", "revoked", "expired", "closed", "decommissioned":
		return model.StationClosed
	default:
		return model.StationOperational
	}
}

// cell returns the trimmed cell at index i, or "" when the row is short or
// the column is absent.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
