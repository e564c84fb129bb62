// Package farmstore persists farmer profiles and interaction history in
// SQLite, keyed by phone number so the SMS gateway can personalize
// answers without any registration flow.
package farmstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Farmer is one profile record. All fields except the phone number are
// optional; the prompt builder renders whatever is present.
type Farmer struct {
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Location    string    `db:"location" json:"location,omitempty"`
	Crops       string    `db:"crops" json:"crops,omitempty"`
	FarmSize    string    `db:"farm_size" json:"farm_size,omitempty"` // hectares
	GrowthStage string    `db:"growth_stage" json:"growth_stage,omitempty"`
	Issues      string    `db:"issues" json:"issues,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Interaction is one question/answer pair in a farmer's history.
type Interaction struct {
	ID          int64     `db:"id" json:"id"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Message     string    `db:"message" json:"message"`
	Response    string    `db:"response" json:"response"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Store manages farmer persistence in SQLite.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore opens the database at path and creates the schema if
// needed.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS farmers (
			phone_number TEXT PRIMARY KEY,
			location TEXT NOT NULL DEFAULT '',
			crops TEXT NOT NULL DEFAULT '',
			farm_size TEXT NOT NULL DEFAULT '',
			growth_stage TEXT NOT NULL DEFAULT '',
			issues TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone_number TEXT NOT NULL,
			message TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_interactions_phone ON interactions(phone_number, created_at);
	`)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the farmer for a phone number, or nil when none is
// registered. An unknown sender is not an error; the caller just skips
// personalization.
func (s *Store) Get(phone string) (*Farmer, error) {
	var f Farmer
	err := s.db.Get(&f, `SELECT * FROM farmers WHERE phone_number = ?`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get farmer: %w", err)
	}
	return &f, nil
}

// Upsert creates or updates a profile. CreatedAt is preserved on
// update.
func (s *Store) Upsert(f *Farmer) error {
	now := time.Now().UTC()
	f.UpdatedAt = now
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	_, err := s.db.NamedExec(`
		INSERT INTO farmers (phone_number, location, crops, farm_size, growth_stage, issues, created_at, updated_at)
		VALUES (:phone_number, :location, :crops, :farm_size, :growth_stage, :issues, :created_at, :updated_at)
		ON CONFLICT(phone_number) DO UPDATE SET
			location = excluded.location,
			crops = excluded.crops,
			farm_size = excluded.farm_size,
			growth_stage = excluded.growth_stage,
			issues = excluded.issues,
			updated_at = excluded.updated_at
	`, f)
	if err != nil {
		return fmt.Errorf("upsert farmer: %w", err)
	}
	return nil
}

// RecordInteraction appends one question/answer pair to a farmer's
// history. Callers treat failures as best-effort: a full advice reply
// is never withheld because the log write failed.
func (s *Store) RecordInteraction(phone, message, response string) error {
	_, err := s.db.Exec(
		`INSERT INTO interactions (phone_number, message, response, created_at) VALUES (?, ?, ?, ?)`,
		phone, message, response, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns up to limit most recent pairs for a
// farmer, oldest first so they can feed the prompt history directly.
func (s *Store) RecentInteractions(phone string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []Interaction
	err := s.db.Select(&rows, `
		SELECT * FROM (
			SELECT * FROM interactions WHERE phone_number = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	return rows, nil
}
