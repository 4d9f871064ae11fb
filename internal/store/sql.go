package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"hiberry/internal/model"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// schema is valid for both Postgres and SQLite.
const schema = `CREATE TABLE IF NOT EXISTS orders (
    delivery_date     TEXT NOT NULL,
    id                TEXT NOT NULL,
    delivery_time     TEXT NOT NULL,
    latitude          DOUBLE PRECISION,
    longitude         DOUBLE PRECISION,
    driver            INTEGER NOT NULL DEFAULT 0,
    delivery_sequence INTEGER,
    status            TEXT NOT NULL,
    source            TEXT NOT NULL,
    errors            TEXT NOT NULL DEFAULT '[]',
    payload           TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (delivery_date, id)
)`

const orderColumns = `id, delivery_date, delivery_time, latitude, longitude, driver, delivery_sequence, status, source, errors, payload`

// SQL stores orders in one table keyed by (delivery_date, id). The columns
// the scheduler filters on are real columns; the rest of the record is a
// JSON payload.
type SQL struct {
	db *sql.DB
}

// NewSQL opens and pings a database. driver is DriverPostgres or DriverSQLite.
func NewSQL(driver, dsn string) (*SQL, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQL{db: db}, nil
}

// NewSQLFromDB wraps an already opened handle.
func NewSQLFromDB(db *sql.DB) *SQL { return &SQL{db: db} }

// Migrate creates the orders table when missing.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fail(http.StatusInternalServerError, err, "migrate orders table")
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fail(http.StatusServiceUnavailable, err, "database unreachable")
	}
	return nil
}

func (s *SQL) FetchByDate(ctx context.Context, date model.Date) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE delivery_date=$1 ORDER BY id`, string(date))
	if err != nil {
		return nil, fail(http.StatusInternalServerError, err, "fetch orders for %s", date)
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(http.StatusInternalServerError, err, "fetch orders for %s", date)
	}
	return out, nil
}

func (s *SQL) Get(ctx context.Context, date model.Date, id string) (model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE delivery_date=$1 AND id=$2`, string(date), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

func (s *SQL) Put(ctx context.Context, o model.Order) error {
	if err := checkPut(o); err != nil {
		return err
	}
	errs, payload, err := encodeOrder(o)
	if err != nil {
		return fail(http.StatusInternalServerError, err, "encode order %s", o.ID)
	}
	lat, lon := nullCoordinate(o.Location)
	_, err = s.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (delivery_date, id) DO UPDATE SET
            delivery_time=excluded.delivery_time, latitude=excluded.latitude, longitude=excluded.longitude,
            driver=excluded.driver, delivery_sequence=excluded.delivery_sequence, status=excluded.status,
            source=excluded.source, errors=excluded.errors, payload=excluded.payload`,
		o.ID, string(o.DeliveryDate), string(o.DeliveryWindow), lat, lon, o.Driver, nullSequence(o.Sequence),
		string(o.Status), string(o.Source), errs, payload)
	if err != nil {
		return fail(http.StatusInternalServerError, err, "put order %s", o.ID)
	}
	return nil
}

// BulkUpdate writes the batch in one transaction; a missing order rolls
// the whole batch back.
func (s *SQL) BulkUpdate(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(http.StatusInternalServerError, err, "bulk update: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE orders SET driver=$1, delivery_sequence=$2, status=$3 WHERE delivery_date=$4 AND id=$5`)
	if err != nil {
		return fail(http.StatusInternalServerError, err, "bulk update: prepare")
	}
	defer stmt.Close()
	for _, o := range orders {
		res, err := stmt.ExecContext(ctx, o.Driver, nullSequence(o.Sequence), string(o.Status), string(o.DeliveryDate), o.ID)
		if err != nil {
			return fail(http.StatusInternalServerError, err, "bulk update: order %s", o.ID)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fail(http.StatusNotFound, ErrNotFound, "bulk update: order %s on %s", o.ID, o.DeliveryDate)
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(http.StatusInternalServerError, err, "bulk update: commit")
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, date model.Date, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE delivery_date=$1 AND id=$2`, string(date), id)
	if err != nil {
		return fail(http.StatusInternalServerError, err, "delete order %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (model.Order, error) {
	var (
		id, date, window, status, source, errs, payload string
		lat, lon                                        sql.NullFloat64
		driver                                          int
		seq                                             sql.NullInt64
	)
	if err := r.Scan(&id, &date, &window, &lat, &lon, &driver, &seq, &status, &source, &errs, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, err
		}
		return model.Order{}, fail(http.StatusInternalServerError, err, "scan order")
	}

	var o model.Order
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return model.Order{}, fail(http.StatusInternalServerError, err, "decode order %s", id)
		}
	}
	o.Errors = nil
	if err := json.Unmarshal([]byte(errs), &o.Errors); err != nil {
		return model.Order{}, fail(http.StatusInternalServerError, err, "decode errors of order %s", id)
	}

	// columns win over the payload, and stored enums are re-validated
	var err error
	if o.DeliveryWindow, err = model.ParseDeliveryWindow(window); err != nil {
		return model.Order{}, fail(http.StatusInternalServerError, err, "order %s", id)
	}
	if o.Status, err = model.ParseOrderStatus(status); err != nil {
		return model.Order{}, fail(http.StatusInternalServerError, err, "order %s", id)
	}
	if o.Source, err = model.ParseOrderSource(source); err != nil {
		return model.Order{}, fail(http.StatusInternalServerError, err, "order %s", id)
	}
	o.ID = id
	o.DeliveryDate = model.Date(date)
	o.Driver = driver
	o.Location = nil
	if lat.Valid && lon.Valid {
		o.Location = &model.Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	o.Sequence = nil
	if seq.Valid {
		n := int(seq.Int64)
		o.Sequence = &n
	}
	return o, nil
}

func encodeOrder(o model.Order) (errs string, payload string, err error) {
	list := o.Errors
	if list == nil {
		list = []model.OrderError{}
	}
	eb, err := json.Marshal(list)
	if err != nil {
		return "", "", err
	}
	pb, err := json.Marshal(o)
	if err != nil {
		return "", "", err
	}
	return string(eb), string(pb), nil
}

func nullCoordinate(c *model.Coordinate) (any, any) {
	if c == nil {
		return nil, nil
	}
	return c.Latitude, c.Longitude
}

func nullSequence(seq *int) any {
	if seq == nil {
		return nil
	}
	return *seq
}
