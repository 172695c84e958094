// Package storage persists everything a run produces or needs to
// resume: extracted listings, the seen-id snapshot, the frontier
// journal, discovered query credentials and match reports.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Store is the run's sqlite database. One writer at a time; the mutex
// serializes transactions across workers.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		zpid TEXT PRIMARY KEY,
		address TEXT,
		status TEXT,
		price REAL,
		currency TEXT,
		bedrooms REAL,
		bathrooms REAL,
		living_area REAL,
		year_built INTEGER,
		home_type TEXT,
		zestimate REAL,
		lat REAL,
		lng REAL,
		city TEXT,
		state TEXT,
		zip_code TEXT,
		detail_url TEXT,
		raw TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
	CREATE INDEX IF NOT EXISTS idx_listings_coords ON listings(lat, lng);
	CREATE INDEX IF NOT EXISTS idx_listings_zip ON listings(zip_code);

	CREATE TABLE IF NOT EXISTS seen (
		zpid TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS jobs (
		identity TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

	CREATE TABLE IF NOT EXISTS credentials (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS match_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		target TEXT NOT NULL,
		zpid TEXT,
		address TEXT,
		score REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// InsertListing stores one extracted listing. Replays of the same zpid
// are ignored; the first write wins.
func (s *Store) InsertListing(l model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(l.Raw)
	if err != nil {
		raw = []byte("{}")
	}

	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO listings
		(zpid, address, status, price, currency, bedrooms, bathrooms, living_area,
		 year_built, home_type, zestimate, lat, lng, city, state, zip_code, detail_url, raw)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ZPID, l.Address, l.Status, l.Price, l.Currency, l.Bedrooms, l.Bathrooms,
		l.LivingArea, l.YearBuilt, l.HomeType, l.Zestimate, l.Lat, l.Lng,
		l.City, l.State, l.ZipCode, l.DetailURL, string(raw),
	)
	if err != nil {
		return fmt.Errorf("inserting listing %s: %w", l.ZPID, err)
	}
	return nil
}

// MarkSeen records entity ids in the dedup snapshot.
func (s *Store) MarkSeen(zpids ...string) error {
	if len(zpids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO seen (zpid) VALUES (?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	for _, id := range zpids {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()
			return fmt.Errorf("marking seen %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

// LoadSeen returns the dedup snapshot of a previous run.
func (s *Store) LoadSeen() ([]string, error) {
	rows, err := s.db.Query(`SELECT zpid FROM seen`)
	if err != nil {
		return nil, fmt.Errorf("loading seen ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning seen id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// JobAdded journals a frontier job as pending. Re-adding an identity
// refreshes its payload (retries carry an attempt count).
func (s *Store) JobAdded(identity string, j queue.Job) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO jobs (identity, kind, payload, status, updated_at)
		VALUES (?,?,?,'pending',CURRENT_TIMESTAMP)
		ON CONFLICT(identity) DO UPDATE SET payload=excluded.payload, status='pending', updated_at=CURRENT_TIMESTAMP`,
		identity, j.Kind.String(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("journaling job: %w", err)
	}
	return nil
}

// JobDone journals a frontier job as completed.
func (s *Store) JobDone(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE jobs SET status='done', updated_at=CURRENT_TIMESTAMP WHERE identity=?`, identity)
	if err != nil {
		return fmt.Errorf("journaling job done: %w", err)
	}
	return nil
}

// LoadPendingJobs returns the frontier an interrupted run left behind.
func (s *Store) LoadPendingJobs() ([]queue.Job, error) {
	rows, err := s.db.Query(`SELECT payload FROM jobs WHERE status='pending'`)
	if err != nil {
		return nil, fmt.Errorf("loading pending jobs: %w", err)
	}
	defer rows.Close()

	var out []queue.Job
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		var j queue.Job
		if err := json.Unmarshal([]byte(payload), &j); err != nil {
			return nil, fmt.Errorf("decoding job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SaveCredential persists one discovered credential.
func (s *Store) SaveCredential(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO credentials (k, v) VALUES (?,?)
		ON CONFLICT(k) DO UPDATE SET v=excluded.v`, key, value)
	if err != nil {
		return fmt.Errorf("saving credential %s: %w", key, err)
	}
	return nil
}

// LoadCredential reads one credential, empty when absent.
func (s *Store) LoadCredential(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT v FROM credentials WHERE k=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading credential %s: %w", key, err)
	}
	return v, nil
}

// SaveMeta persists one run-level fact, such as the original
// parameters a resume needs.
func (s *Store) SaveMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO run_meta (k, v) VALUES (?,?)
		ON CONFLICT(k) DO UPDATE SET v=excluded.v`, key, value)
	if err != nil {
		return fmt.Errorf("saving meta %s: %w", key, err)
	}
	return nil
}

// LoadMeta reads one run-level fact, empty when absent.
func (s *Store) LoadMeta(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT v FROM run_meta WHERE k=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading meta %s: %w", key, err)
	}
	return v, nil
}

// InsertReport appends one match report.
func (s *Store) InsertReport(r model.MatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO match_reports (kind, target, zpid, address, score)
		VALUES (?,?,?,?,?)`,
		r.Kind, r.Target, r.ZPID, r.Address, r.Score,
	)
	if err != nil {
		return fmt.Errorf("inserting match report: %w", err)
	}
	return nil
}

// CountListings returns how many listings the run has stored.
func (s *Store) CountListings() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM listings`).Scan(&count)
	return count, err
}

// Listings streams all stored listings to fn in insertion order.
func (s *Store) Listings(fn func(model.Listing) error) error {
	rows, err := s.db.Query(`
		SELECT zpid, address, status, price, currency, bedrooms, bathrooms,
		       living_area, year_built, home_type, zestimate, lat, lng,
		       city, state, zip_code, detail_url
		FROM listings ORDER BY created_at, rowid`)
	if err != nil {
		return fmt.Errorf("querying listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.Listing
		if err := rows.Scan(
			&l.ZPID, &l.Address, &l.Status, &l.Price, &l.Currency, &l.Bedrooms,
			&l.Bathrooms, &l.LivingArea, &l.YearBuilt, &l.HomeType, &l.Zestimate,
			&l.Lat, &l.Lng, &l.City, &l.State, &l.ZipCode, &l.DetailURL,
		); err != nil {
			return fmt.Errorf("scanning listing: %w", err)
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
