// Package storage provides database access for VPAID creatives
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

// Schema creates the creatives table when it does not exist
const Schema = `
CREATE TABLE IF NOT EXISTS creatives (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	ad_parameters    JSONB NOT NULL,
	variant          TEXT NOT NULL DEFAULT 'linear',
	skippable        BOOLEAN NOT NULL DEFAULT FALSE,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	click_through    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store errors callers branch on
var (
	ErrCreativeNotFound = errors.New("creative not found")
	ErrCreativeExists   = errors.New("creative already exists")
	ErrInvalidVariant   = errors.New("unknown creative variant")
)

// uniqueViolation is the PostgreSQL error code for a duplicate key
const uniqueViolation = "23505"

// Creative is a stored creative and its playback settings
type Creative struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	AdParameters    string    `json:"ad_parameters" yaml:"ad_parameters"`
	Variant         string    `json:"variant" yaml:"variant"`
	Skippable       bool      `json:"skippable" yaml:"skippable"`
	DurationSeconds float64   `json:"duration_seconds" yaml:"duration_seconds"`
	ClickThrough    string    `json:"click_through,omitempty" yaml:"click_through"`
	Status          string    `json:"status" yaml:"status"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// CreativeData returns the document handed to Adapter.Init
func (c *Creative) CreativeData() vpaid.CreativeData {
	return vpaid.CreativeData{AdParameters: c.AdParameters}
}

// AdapterOptions translates stored settings into adapter options
func (c *Creative) AdapterOptions() []vpaid.Option {
	opts := []vpaid.Option{vpaid.WithSkippable(c.Skippable)}
	if c.DurationSeconds > 0 {
		opts = append(opts, vpaid.WithDefaultDuration(c.DurationSeconds))
	}
	if c.ClickThrough != "" {
		opts = append(opts, vpaid.WithClickThroughURL(c.ClickThrough))
	}
	return opts
}

// CreativeStore provides database operations for creatives
type CreativeStore struct {
	db *sql.DB
}

// NewCreativeStore creates a new creative store
func NewCreativeStore(db *sql.DB) *CreativeStore {
	return &CreativeStore{db: db}
}

// EnsureSchema creates the creatives table
func (s *CreativeStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create creatives table: %w", err)
	}
	return nil
}

// Get retrieves an active creative. It returns nil, nil when none matches.
func (s *CreativeStore) Get(ctx context.Context, id string) (*Creative, error) {
	query := `
		SELECT id, name, ad_parameters, variant, skippable, duration_seconds,
		       click_through, status, created_at, updated_at
		FROM creatives
		WHERE id = $1 AND status = 'active'
	`

	c, err := scanCreative(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query creative: %w", err)
	}
	return c, nil
}

// List retrieves all active creatives
func (s *CreativeStore) List(ctx context.Context) ([]*Creative, error) {
	query := `
		SELECT id, name, ad_parameters, variant, skippable, duration_seconds,
		       click_through, status, created_at, updated_at
		FROM creatives
		WHERE status = 'active'
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query creatives: %w", err)
	}
	defer rows.Close()

	var creatives []*Creative
	for rows.Next() {
		c, err := scanCreative(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan creative row: %w", err)
		}
		creatives = append(creatives, c)
	}
	return creatives, rows.Err()
}

// Create stores a creative after checking its parameters parse
func (s *CreativeStore) Create(ctx context.Context, c *Creative) error {
	if _, err := vpaid.ParseCreativeParams(c.CreativeData()); err != nil {
		return err
	}
	if _, ok := vpaid.ParseVariant(c.Variant); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidVariant, c.Variant)
	}
	if c.Status == "" {
		c.Status = "active"
	}

	query := `
		INSERT INTO creatives (
			id, name, ad_parameters, variant, skippable, duration_seconds, click_through, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.ID,
		c.Name,
		c.AdParameters,
		c.Variant,
		c.Skippable,
		c.DurationSeconds,
		c.ClickThrough,
		c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrCreativeExists, c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create creative: %w", err)
	}
	return nil
}

// Archive soft-deletes a creative so new sessions cannot use it
func (s *CreativeStore) Archive(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE creatives SET status = 'archived', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive creative: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrCreativeNotFound, id)
	}
	return nil
}

// Ping checks the database connection
func (s *CreativeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCreative(row rowScanner) (*Creative, error) {
	var c Creative
	var params []byte
	err := row.Scan(
		&c.ID,
		&c.Name,
		&params,
		&c.Variant,
		&c.Skippable,
		&c.DurationSeconds,
		&c.ClickThrough,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.AdParameters = string(params)
	return &c, nil
}

// NewDBConnection creates a new database connection
func NewDBConnection(host, port, user, password, dbname, sslmode string) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Creative lookups happen once per session, so the pool stays small
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
