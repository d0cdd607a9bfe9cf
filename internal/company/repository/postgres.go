package repository

import (
	"context"
	"database/sql"
	"errors"

	"enquiry-socket/internal/company/domain"
)

// ErrDuplicateName is returned by CreateCompany when a company with the same name exists.
var ErrDuplicateName = errors.New("company name already exists")

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a company repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectCompany = `SELECT id, name, public_key, private_key, created_at FROM companies`

// GetCompanyByPublicKey returns the company for publicKey, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetCompanyByPublicKey(ctx context.Context, publicKey string) (*domain.Company, error) {
	row := r.db.QueryRowContext(ctx, selectCompany+` WHERE public_key = $1`, publicKey)
	c, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// CreateCompany persists the company. The company must have ID and keys set.
// Returns ErrDuplicateName if the name is taken.
func (r *PostgresRepository) CreateCompany(ctx context.Context, c *domain.Company) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, public_key, private_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO NOTHING`,
		c.ID, c.Name, c.PublicKey, c.PrivateKey, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateName
	}
	return nil
}

// ListCompanies returns up to limit companies ordered by name.
func (r *PostgresRepository) ListCompanies(ctx context.Context, limit int) ([]*domain.Company, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, selectCompany+` ORDER BY name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompany(s scanner) (*domain.Company, error) {
	var c domain.Company
	if err := s.Scan(&c.ID, &c.Name, &c.PublicKey, &c.PrivateKey, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
