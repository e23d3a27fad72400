package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string, maxConns int32) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	if maxConns <= 0 {
		maxConns = 10
	}
	config.MaxConns = maxConns
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresClient{Pool: pool}, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"admins", `
		CREATE TABLE IF NOT EXISTS admins (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'admin',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`},
	{"conversation_turns", `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			message TEXT,
			response TEXT,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_from_user BOOLEAN NOT NULL DEFAULT FALSE,
			is_admin_message BOOLEAN NOT NULL DEFAULT FALSE,
			admin_id VARCHAR(50)
		);`},
	{"conversation_turns index", `
		CREATE INDEX IF NOT EXISTS conversation_turns_user_ts
			ON conversation_turns (user_id, timestamp, id);`},
	{"ownership_state", `
		CREATE TABLE IF NOT EXISTS ownership_state (
			user_id VARCHAR(128) PRIMARY KEY,
			bot_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			admin_takeover BOOLEAN NOT NULL DEFAULT FALSE,
			admin_takeover_by VARCHAR(50),
			admin_takeover_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);`},
	{"ownership_state version", `
		ALTER TABLE ownership_state ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;`},
	{"bot_config", `
		CREATE TABLE IF NOT EXISTS bot_config (
			key VARCHAR(50) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);`},
	{"menus", `
		CREATE TABLE IF NOT EXISTS menus (
			id SERIAL PRIMARY KEY,
			slug VARCHAR(50) UNIQUE NOT NULL,
			title VARCHAR(100) NOT NULL,
			items JSONB NOT NULL, -- structured menu options
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`},
}

// Migrate creates the tables this service reads and writes.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.Pool.Exec(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
