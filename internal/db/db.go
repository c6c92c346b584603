package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleet-tracker/internal/fleet"
)

//go:embed schema.sql
var schema string

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// EnsureSchema creates the directory tables when they do not exist. A
// route_stops table created elsewhere must carry lat/lng columns.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	cols, err := hasColumns(ctx, db, "public", "route_stops", "lat", "lng")
	if err != nil {
		return fmt.Errorf("introspect route_stops columns: %w", err)
	}
	if !cols["lat"] || !cols["lng"] {
		return fmt.Errorf("route_stops table missing lat/lng columns")
	}
	return nil
}

// Directory resolves drivers, vans and routes from PostgreSQL.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// VanForDriver returns the van assigned to a driver. A driver without a van,
// or an unknown driver, yields fleet.ErrNoVanAssigned.
func (d *Directory) VanForDriver(ctx context.Context, driverID string) (fleet.Van, error) {
	const q = `
SELECT v.id, v.van_number, COALESCE(v.capacity, 0), COALESCE(v.route_id, '')
FROM drivers d
JOIN vans v ON v.id = d.van_id
WHERE d.id = $1`
	var v fleet.Van
	err := d.db.QueryRowContext(ctx, q, driverID).Scan(&v.ID, &v.VanNumber, &v.Capacity, &v.RouteID)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Van{}, fleet.ErrNoVanAssigned
	}
	if err != nil {
		return fleet.Van{}, fmt.Errorf("query van for driver: %w", err)
	}
	return v, nil
}

// Route returns a route with its stops in sequence order.
func (d *Directory) Route(ctx context.Context, routeID string) (fleet.Route, error) {
	r := fleet.Route{ID: routeID}
	err := d.db.QueryRowContext(ctx, `SELECT name FROM routes WHERE id = $1`, routeID).Scan(&r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Route{}, fleet.ErrRouteNotFound
	}
	if err != nil {
		return fleet.Route{}, fmt.Errorf("query route: %w", err)
	}
	stops, err := d.fetchStops(ctx, routeID)
	if err != nil {
		return fleet.Route{}, err
	}
	r.Stops = stops
	return r, nil
}

func (d *Directory) fetchStops(ctx context.Context, routeID string) ([]fleet.Stop, error) {
	const q = `SELECT stop_id, name, lat, lng
               FROM route_stops WHERE route_id = $1 ORDER BY seq`
	rows, err := d.db.QueryContext(ctx, q, routeID)
	if err != nil {
		return nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer rows.Close()
	var stops []fleet.Stop
	for rows.Next() {
		var s fleet.Stop
		if err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lng); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// Drivers lists drivers that have a van assigned.
func (d *Directory) Drivers(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM drivers WHERE van_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query drivers: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
