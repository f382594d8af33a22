package store

import (
	"context"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

func CreateUser(ctx context.Context, q database.Querier, email, name, role string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, name, role, created_at, updated_at, version)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		RETURNING id, email, name, role, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query, email, name, role).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, name, role, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	err := t.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}
