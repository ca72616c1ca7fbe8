package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"beacon/internal/models"
)

// Repository is the optional Postgres audit log. It records delivery
// attempts and exclusion decisions for diagnostics; it never participates
// in delivery itself.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(dsn string, maxConns, maxIdleConns int) (*Repository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db}, nil
}

// EnsureSchema creates the audit tables when they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS hit_deliveries (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			document_path TEXT NOT NULL,
			client_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			delivered BOOLEAN NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS hit_exclusions (
			id UUID PRIMARY KEY,
			rule TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			document_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

// RecordDelivery stores the outcome of one delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, hit *models.Hit, delivered bool, reason string) error {
	query := `
		INSERT INTO hit_deliveries (id, kind, document_path, client_id, ip_address, delivered, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		uuid.New(), string(hit.Kind), hit.DocumentPath, hit.ClientID,
		hit.IPAddress, delivered, reason, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// RecordExclusion stores one exclusion decision.
func (r *Repository) RecordExclusion(ctx context.Context, rule, ipAddress, documentPath string) error {
	query := `
		INSERT INTO hit_exclusions (id, rule, ip_address, document_path, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, uuid.New(), rule, ipAddress, documentPath, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record exclusion: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (r *Repository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func (r *Repository) Stats() sql.DBStats {
	return r.db.Stats()
}

func (r *Repository) Close() error {
	return r.db.Close()
}
