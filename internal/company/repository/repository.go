package repository

import (
	"context"

	"enquiry-socket/internal/company/domain"
)

// Repository defines persistence for companies.
type Repository interface {
	GetCompanyByPublicKey(ctx context.Context, publicKey string) (*domain.Company, error)
	CreateCompany(ctx context.Context, c *domain.Company) error
	ListCompanies(ctx context.Context, limit int) ([]*domain.Company, error)
}
