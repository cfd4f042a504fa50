package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/harmattan-labs/cng-atlas/internal/db"
	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	latitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
	geocode_status  TEXT NOT NULL DEFAULT 'pending',
	geocode_source  TEXT NOT NULL DEFAULT '',
	geocode_quality TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(source, source_key)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           BIGSERIAL PRIMARY KEY,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source       TEXT NOT NULL DEFAULT '',
	quality      TEXT NOT NULL DEFAULT '',
	matched      BOOLEAN NOT NULL DEFAULT false,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS boundaries (
	level  TEXT NOT NULL,
	name   TEXT NOT NULL,
	parent TEXT NOT NULL DEFAULT '',
	geom   BYTEA NOT NULL,
	PRIMARY KEY (level, name, parent)
);

CREATE INDEX IF NOT EXISTS idx_stations_state ON stations(state);
CREATE INDEX IF NOT EXISTS idx_stations_geocode_status ON stations(geocode_status);
CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const postgresUpsertStation = `
INSERT INTO stations (id, source, source_key, name, operator, address, city, state, lga, status,
	latitude, longitude, geocode_status, geocode_source, geocode_quality, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (source, source_key) DO UPDATE SET
	name = EXCLUDED.name,
	operator = EXCLUDED.operator,
	address = EXCLUDED.address,
	city = EXCLUDED.city,
	state = CASE WHEN EXCLUDED.state != '' THEN EXCLUDED.state ELSE stations.state END,
	lga = CASE WHEN EXCLUDED.lga != '' THEN EXCLUDED.lga ELSE stations.lga END,
	status = EXCLUDED.status,
	latitude = CASE WHEN EXCLUDED.geocode_status IN ('manual', 'matched') THEN EXCLUDED.latitude ELSE stations.latitude END,
	longitude = CASE WHEN EXCLUDED.geocode_status IN ('manual', 'matched') THEN EXCLUDED.longitude ELSE stations.longitude END,
	geocode_status = CASE WHEN EXCLUDED.geocode_status IN ('manual', 'matched') THEN EXCLUDED.geocode_status ELSE stations.geocode_status END,
	geocode_source = CASE WHEN EXCLUDED.geocode_status IN ('manual', 'matched') THEN EXCLUDED.geocode_source ELSE stations.geocode_source END,
	geocode_quality = CASE WHEN EXCLUDED.geocode_status IN ('manual', 'matched') THEN EXCLUDED.geocode_quality ELSE stations.geocode_quality END,
	updated_at = EXCLUDED.updated_at
`

func (s *PostgresStore) UpsertStations(ctx context.Context, stations []model.Station) (int, error) {
	if len(stations) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

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
		if _, err := tx.Exec(ctx, postgresUpsertStation,
			st.ID, st.Source, st.SourceKey, st.Name, st.Operator, st.Address, st.City,
			st.State, st.LGA, string(st.Status),
			st.Latitude, st.Longitude, string(st.GeocodeStatus), st.GeocodeSource, st.GeocodeQuality,
			now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert station %s/%s", st.Source, st.SourceKey)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return len(stations), nil
}

func (s *PostgresStore) ListStations(ctx context.Context, filter StationFilter) ([]model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.State != "" {
		query += ` AND state = ` + arg(filter.State)
	}
	if filter.LGA != "" {
		query += ` AND lga = ` + arg(filter.LGA)
	}
	if filter.Name != "" {
		query += ` AND name ILIKE ` + arg("%"+filter.Name+"%")
	}
	if filter.Operator != "" {
		query += ` AND operator = ` + arg(filter.Operator)
	}
	if filter.Source != "" {
		query += ` AND source = ` + arg(filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.GeocodeStatus != "" {
		query += ` AND geocode_status = ` + arg(string(filter.GeocodeStatus))
	}

	query += ` ORDER BY state, name`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ` + arg(filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stations")
	}
	defer rows.Close()

	return scanPgStations(rows)
}

func (s *PostgresStore) PendingGeocodes(ctx context.Context, limit int) ([]model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE geocode_status = 'pending' ORDER BY created_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pending geocodes")
	}
	defer rows.Close()

	return scanPgStations(rows)
}

func (s *PostgresStore) RecordGeocode(ctx context.Context, stationID string, lat, lon float64, status model.GeocodeStatus, source, quality string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stations SET latitude = $1, longitude = $2, geocode_status = $3, geocode_source = $4, geocode_quality = $5, updated_at = now() WHERE id = $6`,
		lat, lon, string(status), source, quality, stationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record geocode %s", stationID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("station not found: %s", stationID)
	}
	return nil
}

func (s *PostgresStore) UpdateRegion(ctx context.Context, stationID, state, lga string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stations SET state = $1, lga = $2, updated_at = now() WHERE id = $3`,
		state, lga, stationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update region %s", stationID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("station not found: %s", stationID)
	}
	return nil
}

func (s *PostgresStore) DistinctValues(ctx context.Context, col FilterColumn) ([]string, error) {
	column, err := filterColumnName(col)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM stations WHERE %s != '' ORDER BY %s`, column, column, column))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: distinct %s", column)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan distinct value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "postgres: iterate distinct values")
}

func (s *PostgresStore) CountByGeocodeStatus(ctx context.Context) (map[model.GeocodeStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT geocode_status, COUNT(*) FROM stations GROUP BY geocode_status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by geocode status")
	}
	defer rows.Close()

	counts := make(map[model.GeocodeStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.GeocodeStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate status counts")
}

func (s *PostgresStore) StartSync(ctx context.Context, source string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_log (source, status) VALUES ($1, 'running') RETURNING id`,
		source,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start sync %s", source)
	}
	return id, nil
}

func (s *PostgresStore) CompleteSync(ctx context.Context, syncID int64, result *model.SyncResult) error {
	rowsSynced := 0
	if result != nil {
		rowsSynced = result.RowsSynced
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'success', rows_synced = $1, completed_at = now() WHERE id = $2`,
		rowsSynced, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync %d", syncID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %d", syncID)
	}
	return nil
}

func (s *PostgresStore) FailSync(ctx context.Context, syncID int64, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'failed', error = $1, completed_at = now() WHERE id = $2`,
		errMsg, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail sync %d", syncID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %d", syncID)
	}
	return nil
}

func (s *PostgresStore) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var completed time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT completed_at FROM sync_log WHERE source = $1 AND status = 'success' ORDER BY completed_at DESC LIMIT 1`,
		source,
	).Scan(&completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: last success %s", source)
	}
	return &completed, nil
}

func (s *PostgresStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncRecord, error) {
	query := `SELECT id, source, status, rows_synced, error, started_at, completed_at FROM sync_log ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var records []model.SyncRecord
	for rows.Next() {
		var r model.SyncRecord
		var completed *time.Time
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.RowsSynced, &r.Error, &r.StartedAt, &completed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync record")
		}
		r.CompletedAt = completed
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate sync records")
}

func (s *PostgresStore) GetCachedGeocode(ctx context.Context, hash string, ttl time.Duration) (*CachedGeocode, error) {
	query := `SELECT address_hash, latitude, longitude, source, quality, matched, cached_at FROM geocode_cache WHERE address_hash = $1`
	args := []any{hash}
	if ttl > 0 {
		query += ` AND cached_at > now() - $2::interval`
		args = append(args, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	}

	var entry CachedGeocode
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&entry.Hash, &entry.Latitude, &entry.Longitude, &entry.Source, &entry.Quality, &entry.Matched, &entry.CachedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached geocode")
	}
	return &entry, nil
}

func (s *PostgresStore) PutCachedGeocode(ctx context.Context, entry *CachedGeocode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, source, quality, matched, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			source = EXCLUDED.source,
			quality = EXCLUDED.quality,
			matched = EXCLUDED.matched,
			cached_at = now()`,
		entry.Hash, entry.Latitude, entry.Longitude, entry.Source, entry.Quality, entry.Matched,
	)
	return eris.Wrap(err, "postgres: put cached geocode")
}

func (s *PostgresStore) PutBoundaries(ctx context.Context, boundaries []Boundary) error {
	if len(boundaries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin boundary upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, b := range boundaries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO boundaries (level, name, parent, geom) VALUES ($1, $2, $3, $4)
			ON CONFLICT (level, name, parent) DO UPDATE SET geom = EXCLUDED.geom`,
			b.Level, b.Name, b.Parent, b.Geom,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert boundary %s/%s", b.Level, b.Name)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit boundary upsert")
}

func (s *PostgresStore) ListBoundaries(ctx context.Context, level string) ([]Boundary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT level, name, parent, geom FROM boundaries WHERE level = $1 ORDER BY parent, name`, level)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list boundaries %s", level)
	}
	defer rows.Close()

	var out []Boundary
	for rows.Next() {
		var b Boundary
		if err := rows.Scan(&b.Level, &b.Name, &b.Parent, &b.Geom); err != nil {
			return nil, eris.Wrap(err, "postgres: scan boundary")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate boundaries")
}

func scanPgStations(rows pgx.Rows) ([]model.Station, error) {
	var stations []model.Station
	for rows.Next() {
		var st model.Station
		var status, geocodeStatus string
		if err := rows.Scan(
			&st.ID, &st.Source, &st.SourceKey, &st.Name, &st.Operator, &st.Address, &st.City,
			&st.State, &st.LGA, &status,
			&st.Latitude, &st.Longitude, &geocodeStatus, &st.GeocodeSource, &st.GeocodeQuality,
			&st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan station")
		}
		st.Status = model.StationStatus(status)
		st.GeocodeStatus = model.GeocodeStatus(geocodeStatus)
		stations = append(stations, st)
	}
	return stations, eris.Wrap(rows.Err(), "postgres: iterate stations")
}

// Open constructs a Store from driver name and DSN.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: sqlite, postgres)", driver)
	}
}
