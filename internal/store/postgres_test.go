package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmattan-labs/cng-atlas/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

var stationRowColumns = []string{
	"id", "source", "source_key", "name", "operator", "address", "city", "state", "lga", "status",
	"latitude", "longitude", "geocode_status", "geocode_source", "geocode_quality", "created_at", "updated_at",
}

func stationRow(rows *pgxmock.Rows, st model.Station) *pgxmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		st.ID, st.Source, st.SourceKey, st.Name, st.Operator, st.Address, st.City, st.State, st.LGA,
		string(st.Status), st.Latitude, st.Longitude, string(st.GeocodeStatus),
		st.GeocodeSource, st.GeocodeQuality, now, now,
	)
}

func TestPostgresStore_UpsertStations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stations`).
		WithArgs(
			pgxmock.AnyArg(), "nmdpra", "lic-001", "NIPCO CNG Ibafo", "NIPCO", "KM 42", "", "Ogun", "", "operational",
			0.0, 0.0, "pending", "", "", pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertStations(context.Background(), []model.Station{
		{Source: "nmdpra", SourceKey: "lic-001", Name: "NIPCO CNG Ibafo", Operator: "NIPCO", Address: "KM 42", State: "Ogun"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertStations_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.UpsertStations(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListStations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(stationRowColumns)
	stationRow(rows, model.Station{
		ID: "id-1", Source: "osm", SourceKey: "node-99", Name: "Dangote CNG Hub",
		State: "Lagos", LGA: "Ikeja", Status: model.StationOperational,
		Latitude: 6.6018, Longitude: 3.3515, GeocodeStatus: model.GeocodeManual,
	})

	mock.ExpectQuery(`FROM stations WHERE 1=1 AND state =`).
		WithArgs("Lagos").
		WillReturnRows(rows)

	got, err := s.ListStations(context.Background(), StationFilter{State: "Lagos"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dangote CNG Hub", got[0].Name)
	assert.Equal(t, model.GeocodeManual, got[0].GeocodeStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListStations_NameFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND name ILIKE`).
		WithArgs("%cng%").
		WillReturnRows(pgxmock.NewRows(stationRowColumns))

	got, err := s.ListStations(context.Background(), StationFilter{Name: "cng"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListStations_OperatorFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND operator =`).
		WithArgs("NIPCO").
		WillReturnRows(pgxmock.NewRows(stationRowColumns))

	got, err := s.ListStations(context.Background(), StationFilter{Operator: "NIPCO"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PendingGeocodes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(stationRowColumns)
	stationRow(rows, model.Station{
		ID: "id-2", Source: "pcngi", SourceKey: "site-7", Name: "Bovas Gas Station",
		State: "Oyo", Status: model.StationOperational, GeocodeStatus: model.GeocodePending,
	})

	mock.ExpectQuery(`WHERE geocode_status = 'pending' ORDER BY created_at LIMIT`).
		WithArgs(10).
		WillReturnRows(rows)

	got, err := s.PendingGeocodes(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.GeocodePending, got[0].GeocodeStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordGeocode(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE stations SET latitude =`).
		WithArgs(6.81, 3.44, "matched", "nominatim", "centroid", "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.RecordGeocode(context.Background(), "id-1", 6.81, 3.44, model.GeocodeMatched, "nominatim", "centroid")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordGeocode_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE stations SET latitude =`).
		WithArgs(0.0, 0.0, "unmatched", "", "", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RecordGeocode(context.Background(), "missing", 0, 0, model.GeocodeUnmatched, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRegion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE stations SET state =`).
		WithArgs("Oyo", "Ibadan North", "id-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateRegion(context.Background(), "id-2", "Oyo", "Ibadan North"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DistinctValues(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT state FROM stations`).
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow("Lagos").AddRow("Ogun"))

	got, err := s.DistinctValues(context.Background(), FilterState)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lagos", "Ogun"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.DistinctValues(context.Background(), FilterColumn("geom"))
	require.Error(t, err)
}

func TestPostgresStore_CountByGeocodeStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT geocode_status, COUNT`).
		WillReturnRows(pgxmock.NewRows([]string{"geocode_status", "count"}).
			AddRow("matched", 42).AddRow("pending", 3))

	counts, err := s.CountByGeocodeStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, counts[model.GeocodeMatched])
	assert.Equal(t, 3, counts[model.GeocodePending])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SyncLifecycle(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO sync_log .+ RETURNING id`).
		WithArgs("nmdpra").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.StartSync(ctx, "nmdpra")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	mock.ExpectExec(`UPDATE sync_log SET status = 'success'`).
		WithArgs(120, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteSync(ctx, 7, &model.SyncResult{RowsSynced: 120}))

	mock.ExpectExec(`UPDATE sync_log SET status = 'failed'`).
		WithArgs("upstream 503", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.FailSync(ctx, 7, "upstream 503"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastSuccess_NoRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT completed_at FROM sync_log`).
		WithArgs("osm").
		WillReturnRows(pgxmock.NewRows([]string{"completed_at"}))

	got, err := s.LastSuccess(context.Background(), "osm")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GeocodeCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM geocode_cache WHERE address_hash =`).
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{"address_hash", "latitude", "longitude", "source", "quality", "matched", "cached_at"}).
			AddRow("abc123", 9.05, 7.49, "nominatim", "centroid", true, time.Now().UTC()))

	got, err := s.GetCachedGeocode(ctx, "abc123", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Matched)
	assert.InDelta(t, 7.49, got.Longitude, 0.0001)

	mock.ExpectQuery(`FROM geocode_cache WHERE address_hash =`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"address_hash", "latitude", "longitude", "source", "quality", "matched", "cached_at"}))

	got, err = s.GetCachedGeocode(ctx, "nope", 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectExec(`INSERT INTO geocode_cache`).
		WithArgs("abc123", 9.05, 7.49, "nominatim", "centroid", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.PutCachedGeocode(ctx, &CachedGeocode{
		Hash: "abc123", Latitude: 9.05, Longitude: 7.49,
		Source: "nominatim", Quality: "centroid", Matched: true,
	}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Boundaries(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO boundaries`).
		WithArgs("state", "Lagos", "", []byte{0x01}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.PutBoundaries(ctx, []Boundary{{Level: "state", Name: "Lagos", Geom: []byte{0x01}}}))

	mock.ExpectQuery(`FROM boundaries WHERE level =`).
		WithArgs("lga").
		WillReturnRows(pgxmock.NewRows([]string{"level", "name", "parent", "geom"}).
			AddRow("lga", "Ikeja", "Lagos", []byte{0x02}))

	got, err := s.ListBoundaries(ctx, "lga")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lagos", got[0].Parent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
