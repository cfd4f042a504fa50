package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stations (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	source_key      TEXT NOT NULL,
	name            TEXT NOT NULL,
	operator        TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	lga             TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'operational',
	latitude        REAL NOT NULL DEFAULT 0,
	longitude       REAL NOT NULL DEFAULT 0,
	geocode_status  TEXT NOT NULL DEFAULT 'pending',
	geocode_source  TEXT NOT NULL DEFAULT '',
	geocode_quality TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(source, source_key)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     REAL NOT NULL DEFAULT 0,
	longitude    REAL NOT NULL DEFAULT 0,
	source       TEXT NOT NULL DEFAULT '',
	quality      TEXT NOT NULL DEFAULT '',
	matched      INTEGER NOT NULL DEFAULT 0,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS boundaries (
	level  TEXT NOT NULL,
	name   TEXT NOT NULL,
	parent TEXT NOT NULL DEFAULT '',
	geom   BLOB NOT NULL,
	PRIMARY KEY (level, name, parent)
);

CREATE INDEX IF NOT EXISTS idx_stations_state ON stations(state);
CREATE INDEX IF NOT EXISTS idx_stations_geocode_status ON stations(geocode_status);
CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// upsertStationSQL preserves existing geocode columns unless the incoming row
// carries its own coordinates (OSM elements, manual imports).
const sqliteUpsertStation = `
INSERT INTO stations (id, source, source_key, name, operator, address, city, state, lga, status,
	latitude, longitude, geocode_status, geocode_source, geocode_quality, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source, source_key) DO UPDATE SET
	name = excluded.name,
	operator = excluded.operator,
	address = excluded.address,
	city = excluded.city,
	state = CASE WHEN excluded.state != '' THEN excluded.state ELSE stations.state END,
	lga = CASE WHEN excluded.lga != '' THEN excluded.lga ELSE stations.lga END,
	status = excluded.status,
	latitude = CASE WHEN excluded.geocode_status IN ('manual', 'matched') THEN excluded.latitude ELSE stations.latitude END,
	longitude = CASE WHEN excluded.geocode_status IN ('manual', 'matched') THEN excluded.longitude ELSE stations.longitude END,
	geocode_status = CASE WHEN excluded.geocode_status IN ('manual', 'matched') THEN excluded.geocode_status ELSE stations.geocode_status END,
	geocode_source = CASE WHEN excluded.geocode_status IN ('manual', 'matched') THEN excluded.geocode_source ELSE stations.geocode_source END,
	geocode_quality = CASE WHEN excluded.geocode_status IN ('manual', 'matched') THEN excluded.geocode_quality ELSE stations.geocode_quality END,
	updated_at = excluded.updated_at
`

func (s *SQLiteStore) UpsertStations(ctx context.Context, stations []model.Station) (int, error) {
	if len(stations) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertStation)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range stations {
		st := &stations[i]
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		if st.Status == "" {
			st.Status = model.StationOperational
		}
		if st.GeocodeStatus == "" {
			st.GeocodeStatus = model.GeocodePending
		}
		if _, err := stmt.ExecContext(ctx,
			st.ID, st.Source, st.SourceKey, st.Name, st.Operator, st.Address, st.City,
			st.State, st.LGA, string(st.Status),
			st.Latitude, st.Longitude, string(st.GeocodeStatus), st.GeocodeSource, st.GeocodeQuality,
			now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert station %s/%s", st.Source, st.SourceKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(stations), nil
}

const stationColumns = `id, source, source_key, name, operator, address, city, state, lga, status,
	latitude, longitude, geocode_status, geocode_source, geocode_quality, created_at, updated_at`

func (s *SQLiteStore) ListStations(ctx context.Context, filter StationFilter) ([]model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.LGA != "" {
		query += ` AND lga = ?`
		args = append(args, filter.LGA)
	}
	if filter.Name != "" {
		query += ` AND name LIKE ? COLLATE NOCASE`
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.Operator != "" {
		query += ` AND operator = ?`
		args = append(args, filter.Operator)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.GeocodeStatus != "" {
		query += ` AND geocode_status = ?`
		args = append(args, string(filter.GeocodeStatus))
	}

	query += ` ORDER BY state, name`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stations")
	}
	defer rows.Close() //nolint:errcheck

	return scanStations(rows)
}

func (s *SQLiteStore) PendingGeocodes(ctx context.Context, limit int) ([]model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE geocode_status = 'pending' ORDER BY created_at`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pending geocodes")
	}
	defer rows.Close() //nolint:errcheck

	return scanStations(rows)
}

func (s *SQLiteStore) RecordGeocode(ctx context.Context, stationID string, lat, lon float64, status model.GeocodeStatus, source, quality string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET latitude = ?, longitude = ?, geocode_status = ?, geocode_source = ?, geocode_quality = ?, updated_at = ? WHERE id = ?`,
		lat, lon, string(status), source, quality, time.Now().UTC(), stationID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record geocode %s", stationID)
	}
	return checkRowsAffected(res, "station", stationID)
}

func (s *SQLiteStore) UpdateRegion(ctx context.Context, stationID, state, lga string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET state = ?, lga = ?, updated_at = ? WHERE id = ?`,
		state, lga, time.Now().UTC(), stationID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update region %s", stationID)
	}
	return checkRowsAffected(res, "station", stationID)
}

func (s *SQLiteStore) DistinctValues(ctx context.Context, col FilterColumn) ([]string, error) {
	column, err := filterColumnName(col)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM stations WHERE %s != '' ORDER BY %s`, column, column, column))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct %s", column)
	}
	defer rows.Close() //nolint:errcheck

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan distinct value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "sqlite: iterate distinct values")
}

func (s *SQLiteStore) CountByGeocodeStatus(ctx context.Context) (map[model.GeocodeStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT geocode_status, COUNT(*) FROM stations GROUP BY geocode_status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by geocode status")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.GeocodeStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.GeocodeStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate status counts")
}

func (s *SQLiteStore) StartSync(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (source, status, started_at) VALUES (?, 'running', ?)`,
		source, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start sync %s", source)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sync id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteSync(ctx context.Context, syncID int64, result *model.SyncResult) error {
	rowsSynced := 0
	if result != nil {
		rowsSynced = result.RowsSynced
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = 'success', rows_synced = ?, completed_at = ? WHERE id = ?`,
		rowsSynced, time.Now().UTC(), syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync %d", syncID)
	}
	return checkRowsAffected(res, "sync", fmt.Sprintf("%d", syncID))
}

func (s *SQLiteStore) FailSync(ctx context.Context, syncID int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = 'failed', error = ?, completed_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail sync %d", syncID)
	}
	return checkRowsAffected(res, "sync", fmt.Sprintf("%d", syncID))
}

func (s *SQLiteStore) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT completed_at FROM sync_log WHERE source = ? AND status = 'success' ORDER BY completed_at DESC LIMIT 1`,
		source,
	)
	var completed time.Time
	if err := row.Scan(&completed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: last success %s", source)
	}
	return &completed, nil
}

func (s *SQLiteStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncRecord, error) {
	query := `SELECT id, source, status, rows_synced, error, started_at, completed_at FROM sync_log ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close() //nolint:errcheck

	var records []model.SyncRecord
	for rows.Next() {
		var r model.SyncRecord
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.RowsSynced, &r.Error, &r.StartedAt, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync record")
		}
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate sync records")
}

func (s *SQLiteStore) GetCachedGeocode(ctx context.Context, hash string, ttl time.Duration) (*CachedGeocode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address_hash, latitude, longitude, source, quality, matched, cached_at FROM geocode_cache WHERE address_hash = ?`,
		hash,
	)

	var entry CachedGeocode
	var matched int
	if err := row.Scan(&entry.Hash, &entry.Latitude, &entry.Longitude, &entry.Source, &entry.Quality, &matched, &entry.CachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached geocode")
	}
	entry.Matched = matched != 0

	if ttl > 0 && time.Since(entry.CachedAt) > ttl {
		return nil, nil
	}
	return &entry, nil
}

func (s *SQLiteStore) PutCachedGeocode(ctx context.Context, entry *CachedGeocode) error {
	matched := 0
	if entry.Matched {
		matched = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, source, quality, matched, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			source = excluded.source,
			quality = excluded.quality,
			matched = excluded.matched,
			cached_at = excluded.cached_at`,
		entry.Hash, entry.Latitude, entry.Longitude, entry.Source, entry.Quality, matched, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put cached geocode")
}

func (s *SQLiteStore) PutBoundaries(ctx context.Context, boundaries []Boundary) error {
	if len(boundaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin boundary upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO boundaries (level, name, parent, geom) VALUES (?, ?, ?, ?)
		ON CONFLICT(level, name, parent) DO UPDATE SET geom = excluded.geom`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare boundary upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, b := range boundaries {
		if _, err := stmt.ExecContext(ctx, b.Level, b.Name, b.Parent, b.Geom); err != nil {
			return eris.Wrapf(err, "sqlite: upsert boundary %s/%s", b.Level, b.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit boundary upsert")
}

func (s *SQLiteStore) ListBoundaries(ctx context.Context, level string) ([]Boundary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, name, parent, geom FROM boundaries WHERE level = ? ORDER BY parent, name`, level)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list boundaries %s", level)
	}
	defer rows.Close() //nolint:errcheck

	var out []Boundary
	for rows.Next() {
		var b Boundary
		if err := rows.Scan(&b.Level, &b.Name, &b.Parent, &b.Geom); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan boundary")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate boundaries")
}

// scanner abstracts *sql.Row and *sql.Rows for station scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanStation(sc scanner) (*model.Station, error) {
	var st model.Station
	var status, geocodeStatus string
	if err := sc.Scan(
		&st.ID, &st.Source, &st.SourceKey, &st.Name, &st.Operator, &st.Address, &st.City,
		&st.State, &st.LGA, &status,
		&st.Latitude, &st.Longitude, &geocodeStatus, &st.GeocodeSource, &st.GeocodeQuality,
		&st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	st.Status = model.StationStatus(status)
	st.GeocodeStatus = model.GeocodeStatus(geocodeStatus)
	return &st, nil
}

func scanStations(rows *sql.Rows) ([]model.Station, error) {
	var stations []model.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan station")
		}
		stations = append(stations, *st)
	}
	return stations, eris.Wrap(rows.Err(), "sqlite: iterate stations")
}

// checkRowsAffected returns an error when an update matched no rows.
func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

// filterColumnName validates a FilterColumn against the station schema.
func filterColumnName(col FilterColumn) (string, error) {
	switch col {
	case FilterState, FilterLGA, FilterName, FilterSource, FilterOperator:
		return string(col), nil
	default:
		return "", eris.Errorf("store: unknown filter column %q", col)
	}
}
