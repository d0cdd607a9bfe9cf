package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"enquiry-socket/internal/company/domain"
	"enquiry-socket/internal/db"
	"enquiry-socket/internal/db/migrate"
)

func openTestDB(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, migrate.DirectionUp); err != nil {
		t.Skipf("migrations failed (expected in test environment): %v", err)
	}
	conn, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn)
}

func TestPostgresRepository_CreateAndGet(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	c := &domain.Company{ID: uuid.New().String(), Name: "company-" + uuid.New().String()[:8], CreatedAt: time.Now().UTC()}
	if err := c.GenerateKeys(); err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	if err := repo.CreateCompany(ctx, c); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}

	got, err := repo.GetCompanyByPublicKey(ctx, c.PublicKey)
	if err != nil {
		t.Fatalf("GetCompanyByPublicKey: %v", err)
	}
	if got == nil || got.ID != c.ID || got.PrivateKey != c.PrivateKey {
		t.Errorf("GetCompanyByPublicKey = %+v, want %+v", got, c)
	}

	dup := *c
	dup.ID = uuid.New().String()
	if err := dup.GenerateKeys(); err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	if err := repo.CreateCompany(ctx, &dup); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("CreateCompany duplicate error = %v, want ErrDuplicateName", err)
	}
}

func TestPostgresRepository_GetMissing(t *testing.T) {
	repo := openTestDB(t)
	got, err := repo.GetCompanyByPublicKey(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("GetCompanyByPublicKey: %v", err)
	}
	if got != nil {
		t.Errorf("GetCompanyByPublicKey = %+v, want nil", got)
	}
}
