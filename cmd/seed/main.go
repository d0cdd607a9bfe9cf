// seed creates a company with fresh public and private keys and prints them:
// go run ./cmd/seed -name "Demo Company".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"enquiry-socket/internal/company/domain"
	"enquiry-socket/internal/company/repository"
	"enquiry-socket/internal/config"
	"enquiry-socket/internal/db"
)

func main() {
	name := flag.String("name", "", "company name (4-63 characters)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
	defer conn.Close()

	c := &domain.Company{ID: uuid.NewString(), Name: *name, CreatedAt: time.Now().UTC()}
	if err := c.GenerateKeys(); err != nil {
		fmt.Fprintln(os.Stderr, "keys:", err)
		os.Exit(1)
	}
	if err := repository.NewPostgresRepository(conn).CreateCompany(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			fmt.Fprintf(os.Stderr, "company %q already exists\n", *name)
		} else {
			fmt.Fprintln(os.Stderr, "create company:", err)
		}
		os.Exit(1)
	}

	fmt.Printf("company created: id=%s name=%q\n", c.ID, c.Name)
	fmt.Printf("  public_key:  %s\n", c.PublicKey)
	fmt.Printf("  private_key: %s\n", c.PrivateKey)
}
