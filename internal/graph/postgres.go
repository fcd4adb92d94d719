package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres reads and writes graph snapshots stored in three tables:
// locations, links and graph_norm.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pgx-backed connection and verifies it.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS locations (
    id           TEXT PRIMARY KEY,
    latitude     DOUBLE PRECISION NOT NULL,
    longitude    DOUBLE PRECISION NOT NULL,
    country_code TEXT
);
CREATE TABLE IF NOT EXISTS links (
    seq        BIGSERIAL PRIMARY KEY,
    source     TEXT NOT NULL REFERENCES locations(id),
    target     TEXT NOT NULL REFERENCES locations(id),
    mode       TEXT NOT NULL,
    distance   DOUBLE PRECISION NOT NULL,
    time       DOUBLE PRECISION NOT NULL,
    price      DOUBLE PRECISION NOT NULL,
    time_norm  DOUBLE PRECISION NOT NULL,
    price_norm DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS graph_norm (
    id        BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    time_min  DOUBLE PRECISION NOT NULL,
    time_max  DOUBLE PRECISION NOT NULL,
    price_min DOUBLE PRECISION NOT NULL,
    price_max DOUBLE PRECISION NOT NULL,
    scale     DOUBLE PRECISION NOT NULL
);`

// Migrate creates the snapshot tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// Load reads the whole snapshot and builds the Graph.
func (p *Postgres) Load(ctx context.Context) (*Graph, error) {
	s := &Snapshot{}
	rows, err := p.db.QueryContext(ctx, `SELECT id, latitude, longitude, COALESCE(country_code, '') FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Latitude, &l.Longitude, &l.Country); err != nil {
			rows.Close()
			return nil, err
		}
		s.Nodes = append(s.Nodes, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.db.QueryContext(ctx, `SELECT source, target, mode, distance, time, price, time_norm, price_norm FROM links ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	for rows.Next() {
		var l Link
		var mode string
		if err := rows.Scan(&l.From, &l.To, &mode, &l.Distance, &l.Time, &l.Price, &l.TimeNorm, &l.PriceNorm); err != nil {
			rows.Close()
			return nil, err
		}
		l.Mode = Mode(mode)
		s.Links = append(s.Links, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := p.db.QueryRowContext(ctx, `SELECT time_min, time_max, price_min, price_max, scale FROM graph_norm LIMIT 1`)
	if err := row.Scan(&s.Norm.TimeMin, &s.Norm.TimeMax, &s.Norm.PriceMin, &s.Norm.PriceMax, &s.Norm.Scale); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query graph_norm: %w", err)
	}
	return FromSnapshot(s)
}

// Save replaces the stored snapshot with g in a single transaction.
func (p *Postgres) Save(ctx context.Context, g *Graph) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DELETE FROM links`, `DELETE FROM locations`, `DELETE FROM graph_norm`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, l := range g.locs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO locations (id, latitude, longitude, country_code) VALUES ($1,$2,$3,$4)`,
			l.ID, l.Latitude, l.Longitude, nullIfEmpty(l.Country)); err != nil {
			return fmt.Errorf("insert location %s: %w", l.ID, err)
		}
	}
	for _, l := range g.links {
		if _, err := tx.ExecContext(ctx, `INSERT INTO links (source, target, mode, distance, time, price, time_norm, price_norm) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			l.From, l.To, string(l.Mode), l.Distance, l.Time, l.Price, l.TimeNorm, l.PriceNorm); err != nil {
			return fmt.Errorf("insert link %s-%s: %w", l.From, l.To, err)
		}
	}
	n := g.norm
	if _, err := tx.ExecContext(ctx, `INSERT INTO graph_norm (time_min, time_max, price_min, price_max, scale) VALUES ($1,$2,$3,$4,$5)`,
		n.TimeMin, n.TimeMax, n.PriceMin, n.PriceMax, n.scale()); err != nil {
		return err
	}
	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
