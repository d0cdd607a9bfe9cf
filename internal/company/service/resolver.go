// Package service resolves companies by public key with a short-lived cache in front of the repository.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"enquiry-socket/internal/company/domain"
	"enquiry-socket/internal/company/repository"
)

// ErrCompanyNotFound is returned when no company matches the public key.
var ErrCompanyNotFound = errors.New("company not found")

// Resolver looks up companies by public key. Found companies and misses are cached for ttl;
// repository errors are not cached.
type Resolver struct {
	repo  repository.Repository
	cache *ttlcache.Cache[string, *domain.Company]
}

// NewResolver returns a Resolver backed by repo. Call Close to stop the cache janitor.
func NewResolver(repo repository.Repository, ttl time.Duration) *Resolver {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Company](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.Company](),
	)
	go cache.Start()
	return &Resolver{repo: repo, cache: cache}
}

// Close stops the cache background goroutine.
func (r *Resolver) Close() {
	r.cache.Stop()
}

// Resolve returns the company for publicKey or ErrCompanyNotFound.
func (r *Resolver) Resolve(ctx context.Context, publicKey string) (*domain.Company, error) {
	if publicKey == "" {
		return nil, ErrCompanyNotFound
	}
	var loadErr error
	loader := ttlcache.LoaderFunc[string, *domain.Company](
		func(c *ttlcache.Cache[string, *domain.Company], key string) *ttlcache.Item[string, *domain.Company] {
			company, err := r.repo.GetCompanyByPublicKey(ctx, key)
			if err != nil {
				loadErr = err
				return nil
			}
			return c.Set(key, company, ttlcache.DefaultTTL)
		},
	)
	item := r.cache.Get(publicKey, ttlcache.WithLoader[string, *domain.Company](loader))
	if loadErr != nil {
		return nil, loadErr
	}
	if item == nil || item.Value() == nil {
		return nil, ErrCompanyNotFound
	}
	return item.Value(), nil
}

// Forget drops a cached lookup so the next Resolve reads the repository.
func (r *Resolver) Forget(publicKey string) {
	r.cache.Delete(publicKey)
}
