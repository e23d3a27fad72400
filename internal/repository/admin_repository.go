package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project_handoff/internal/entities"
)

type AdminRepository struct {
	db *pgxpool.Pool
}

func NewAdminRepository(db *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Create(ctx context.Context, admin *entities.Admin) error {
	return r.db.QueryRow(ctx,
		"INSERT INTO admins (username, password_hash, role) VALUES ($1, $2, $3) RETURNING id, created_at",
		admin.Username, admin.PasswordHash, admin.Role).Scan(&admin.ID, &admin.CreatedAt)
}

// GetByUsername returns nil, nil when no admin has that name.
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*entities.Admin, error) {
	var admin entities.Admin
	err := r.db.QueryRow(ctx,
		"SELECT id, username, password_hash, role, created_at FROM admins WHERE username = $1",
		username).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.Role, &admin.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}
