package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/model"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Licences")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, c := range rowData {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	require.NoError(t, f.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestNMDPRA_Fetch(t *testing.T) {
	wb := buildWorkbook(t, [][]string{
		{"Licence No", "Facility Name", "Company", "Address", "State", "LGA", "Status", "Product"},
		{"GFL-001", "NIPCO CNG Ibafo", "NIPCO Plc", "KM 42 Lagos-Ibadan Expy", "Ogun", "Obafemi Owode", "Active", "CNG"},
		{"GFL-002", "Apapa LPG Depot", "Navgas", "Apapa Wharf", "Lagos", "Apapa", "Active", "LPG"},
		{"GFL-003", "Bovas CNG Ibadan", "Bovas", "Ring Road", "Oyo", "Ibadan South-West", "Under Construction", "Compressed Natural Gas"},
		{"", "", "", "", "", "", "", ""},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wb)
	}))
	defer srv.Close()

	src := NewNMDPRA(srv.URL+"/licences.xlsx", fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "test"}), fetcher.NewFTPFetcher(fetcher.FTPOptions{}))
	stations, err := src.Fetch(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, stations, 2, "LPG row and blank row filtered out")

	assert.Equal(t, "GFL-001", stations[0].SourceKey)
	assert.Equal(t, "NIPCO CNG Ibafo", stations[0].Name)
	assert.Equal(t, "NIPCO Plc", stations[0].Operator)
	assert.Equal(t, "Obafemi Owode", stations[0].LGA)
	assert.Equal(t, model.StationOperational, stations[0].Status)

	assert.Equal(t, model.StationPlanned, stations[1].Status)
}

func TestNMDPRA_Fetch_NoNameColumn(t *testing.T) {
	wb := buildWorkbook(t, [][]string{
		{"Col A", "Col B"},
		{"x", "y"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wb)
	}))
	defer srv.Close()

	src := NewNMDPRA(srv.URL+"/wb.xlsx", fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "test"}), nil)
	_, err := src.Fetch(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "facility name column")
}

func TestMapColumns(t *testing.T) {
	cols := mapColumns([]string{"S/N", "License No.", "Station Name", "Operator", "Facility Address", "Town", "State", "Local Government Area", "Licence Status", "Licence Type"})
	assert.Equal(t, 1, cols.licence)
	assert.Equal(t, 2, cols.name)
	assert.Equal(t, 3, cols.operator)
	assert.Equal(t, 4, cols.address)
	assert.Equal(t, 5, cols.city)
	assert.Equal(t, 6, cols.state)
	assert.Equal(t, 7, cols.lga)
	assert.Equal(t, 8, cols.status)
	assert.Equal(t, 9, cols.product)
}

func TestSourceKey_FallsBackToDigest(t *testing.T) {
	src := NewNMDPRA("http://example.com/wb.xlsx", nil, nil)
	cols := columnIndexes{licence: -1, name: 0, address: 1, state: 2}

	a := src.sourceKey([]string{"NIPCO Ibafo", "KM 42", "Ogun"}, cols)
	b := src.sourceKey([]string{"nipco ibafo", "km 42", "ogun"}, cols)
	c := src.sourceKey([]string{"Bovas Ibadan", "Ring Road", "Oyo"}, cols)

	assert.Equal(t, a, b, "digest is case-insensitive")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestLicenceStatus(t *testing.T) {
	assert.Equal(t, model.StationOperational, licenceStatus("Active"))
	assert.Equal(t, model.StationOperational, licenceStatus(""))
	assert.Equal(t, model.StationPlanned, licenceStatus("Under Construction"))
	assert.Equal(t, model.StationClosed, licenceStatus("Revoked"))
	assert.Equal(t, model.StationOperational, licenceStatus("Something Odd"))
}
