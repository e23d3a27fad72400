package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project_handoff/internal/entities"
)

type ConfigRepository struct {
	db *pgxpool.Pool
}

func NewConfigRepository(db *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// GetConfig returns a config value by key, "" when unset.
func (r *ConfigRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, "SELECT value FROM bot_config WHERE key=$1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil // Not found is not strictly an error
		}
		return "", err
	}
	return value, nil
}

func (r *ConfigRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bot_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, key, value)
	return err
}

func (r *ConfigRepository) GetAllConfigs(ctx context.Context) ([]entities.BotConfig, error) {
	rows, err := r.db.Query(ctx, "SELECT key, value, updated_at FROM bot_config ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []entities.BotConfig{}
	for rows.Next() {
		var c entities.BotConfig
		if err := rows.Scan(&c.Key, &c.Value, &c.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// GetMenu returns a menu by slug, nil when missing.
func (r *ConfigRepository) GetMenu(ctx context.Context, slug string) (*entities.Menu, error) {
	var m entities.Menu
	err := r.db.QueryRow(ctx, "SELECT id, slug, title, items, created_at FROM menus WHERE slug=$1", slug).
		Scan(&m.ID, &m.Slug, &m.Title, &m.Items, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMenu creates or replaces the menu with m.Slug.
func (r *ConfigRepository) SaveMenu(ctx context.Context, m *entities.Menu) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO menus (slug, title, items, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (slug) DO UPDATE SET title=EXCLUDED.title, items=EXCLUDED.items
		RETURNING id, created_at
	`, m.Slug, m.Title, m.Items).Scan(&m.ID, &m.CreatedAt)
}

func (r *ConfigRepository) DeleteMenu(ctx context.Context, slug string) error {
	_, err := r.db.Exec(ctx, "DELETE FROM menus WHERE slug=$1", slug)
	return err
}

func (r *ConfigRepository) GetAllMenus(ctx context.Context) ([]entities.Menu, error) {
	rows, err := r.db.Query(ctx, "SELECT id, slug, title, items, created_at FROM menus ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	menus := []entities.Menu{}
	for rows.Next() {
		var m entities.Menu
		if err := rows.Scan(&m.ID, &m.Slug, &m.Title, &m.Items, &m.CreatedAt); err != nil {
			return nil, err
		}
		menus = append(menus, m)
	}
	return menus, rows.Err()
}
