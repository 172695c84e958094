package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Postgres mirrors listings to an external database for downstream
// consumers. It is optional; a run without a DSN never constructs one.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and ensures the mirror table exists.
func NewPostgres(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			zpid TEXT PRIMARY KEY,
			address TEXT,
			status TEXT,
			price DOUBLE PRECISION,
			currency TEXT,
			bedrooms DOUBLE PRECISION,
			bathrooms DOUBLE PRECISION,
			living_area DOUBLE PRECISION,
			year_built INTEGER,
			home_type TEXT,
			zestimate DOUBLE PRECISION,
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			city TEXT,
			state TEXT,
			zip_code TEXT,
			detail_url TEXT,
			raw JSONB,
			created_at TIMESTAMPTZ DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensuring postgres schema: %w", err)
	}
	return nil
}

// InsertListings mirrors a batch, skipping zpids already present.
func (p *Postgres) InsertListings(ctx context.Context, listings []model.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	count := 0
	for _, l := range listings {
		if l.ZPID == "" {
			continue
		}
		raw, err := json.Marshal(l.Raw)
		if err != nil {
			raw = []byte("{}")
		}
		b.Queue(`
			INSERT INTO listings
			(zpid, address, status, price, currency, bedrooms, bathrooms, living_area,
			 year_built, home_type, zestimate, lat, lng, city, state, zip_code, detail_url, raw)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (zpid) DO NOTHING`,
			l.ZPID, l.Address, l.Status, l.Price, l.Currency, l.Bedrooms, l.Bathrooms,
			l.LivingArea, l.YearBuilt, l.HomeType, l.Zestimate, l.Lat, l.Lng,
			l.City, l.State, l.ZipCode, l.DetailURL, string(raw),
		)
		count++
	}

	br := p.pool.SendBatch(ctx, b)
	inserted := 0
	for range count {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return inserted, fmt.Errorf("mirroring listings: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return inserted, fmt.Errorf("closing batch: %w", err)
	}
	return inserted, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
