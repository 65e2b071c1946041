package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// workers journal concurrently; a single connection serialises writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveTrial(ctx context.Context, runID string, trial models.Trial) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTrial(trial)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO trials (run_id, seq, fitness, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			fitness = excluded.fitness,
			payload = excluded.payload
	`, runID, trial.Seq, trial.Fitness, payload)
	return err
}

func (s *SQLiteStore) ListTrials(ctx context.Context, runID string) ([]models.Trial, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT seq, payload FROM trials WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Trial
	for rows.Next() {
		var (
			seq     int
			payload []byte
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, err
		}
		trial, err := DecodeTrial(payload)
		if err != nil {
			return nil, fmt.Errorf("decode trial %s/%d: %w", runID, seq, err)
		}
		out = append(out, trial)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveBest(ctx context.Context, runID string, best models.BestResult) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeBest(best)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO best_results (run_id, fitness, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			fitness = excluded.fitness,
			payload = excluded.payload
	`, runID, best.Fitness, payload)
	return err
}

func (s *SQLiteStore) GetBest(ctx context.Context, runID string) (models.BestResult, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return models.BestResult{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM best_results WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BestResult{}, false, nil
		}
		return models.BestResult{}, false, err
	}

	best, err := DecodeBest(payload)
	if err != nil {
		return models.BestResult{}, false, fmt.Errorf("decode best result %s: %w", runID, err)
	}
	return best, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trials (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
		CREATE TABLE IF NOT EXISTS best_results (
			run_id TEXT PRIMARY KEY,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
