package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/failover"
)

const eventsTable = "failover_events"

var eventColumns = []string{
	"id", "run_id", "cluster_id", "event_type", "status",
	"source_region", "target_region", "reason", "polls", "created_at",
}

var (
	_ Store            = (*Postgres)(nil)
	_ failover.History = (*Postgres)(nil)
)

// Postgres is the PostgreSQL history store
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a PostgreSQL connection pool
func NewPostgres(cfg Config) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateSchema creates the history table and its index
func (p *Postgres) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS failover_events (
			id BIGSERIAL PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			cluster_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			source_region VARCHAR(64) NOT NULL DEFAULT '',
			target_region VARCHAR(64) NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			polls INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS failover_events_cluster_idx
			ON failover_events (cluster_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Save inserts r and fills in its ID
func (p *Postgres) Save(ctx context.Context, r *Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	query, args, err := squirrel.Insert(eventsTable).
		Columns("run_id", "cluster_id", "event_type", "status", "source_region", "target_region", "reason", "polls", "created_at").
		Values(r.RunID, string(r.ClusterID), string(r.EventType), r.Status, r.SourceRegion, r.TargetRegion, r.Reason, r.Polls, r.Timestamp).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&r.ID); err != nil {
		return fmt.Errorf("insert failover event: %w", err)
	}
	return nil
}

// List returns matching records, newest first
func (p *Postgres) List(ctx context.Context, f Filter) ([]Record, error) {
	q := squirrel.Select(eventColumns...).
		From(eventsTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.limit())).
		PlaceholderFormat(squirrel.Dollar)
	if f.Cluster != "" {
		q = q.Where(squirrel.Eq{"cluster_id": string(f.Cluster)})
	}
	if f.Kind != "" {
		q = q.Where(squirrel.Eq{"event_type": string(f.Kind)})
	}
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"status": f.Status})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failover events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			r         Record
			clusterID string
			eventType string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &clusterID, &eventType, &r.Status,
			&r.SourceRegion, &r.TargetRegion, &r.Reason, &r.Polls, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan failover event: %w", err)
		}
		r.ClusterID = cluster.Identifier(clusterID)
		r.EventType = failover.Kind(eventType)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastSucceeded returns the newest succeeded event of kind for id
func (p *Postgres) LastSucceeded(ctx context.Context, id cluster.Identifier, kind failover.Kind) (failover.Event, bool, error) {
	list, err := p.List(ctx, Filter{Cluster: id, Kind: kind, Status: string(failover.ResultSucceeded), Limit: 1})
	if err != nil || len(list) == 0 {
		return failover.Event{}, false, err
	}
	return list[0].Event(), true, nil
}
