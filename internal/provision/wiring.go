package provision

import (
	"context"

	"github.com/attributa/attributa/internal/registry"
	"github.com/attributa/attributa/internal/tenantstore"
)

// WrapRegistryStore adapts the concrete registry store to the saga's
// transaction interface.
func WrapRegistryStore(s *registry.Store) RegistryStore {
	return registryStoreAdapter{s: s}
}

// WrapTenantStore adapts the concrete tenant store to the saga's interface.
func WrapTenantStore(s *tenantstore.Store) TenantStore {
	return tenantStoreAdapter{s: s}
}

type registryStoreAdapter struct {
	s *registry.Store
}

func (a registryStoreAdapter) Begin(ctx context.Context) (RegistryTx, error) {
	tx, err := a.s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type tenantStoreAdapter struct {
	s *tenantstore.Store
}

func (a tenantStoreAdapter) Begin(ctx context.Context) (TenantTx, error) {
	tx, err := a.s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (a tenantStoreAdapter) CreateDestinationTables(ctx context.Context, statements []string) error {
	return a.s.CreateDestinationTables(ctx, statements)
}

func (a tenantStoreAdapter) ResolveDestinationCredential(ctx context.Context, companyID string) (string, error) {
	return a.s.ResolveDestinationCredential(ctx, companyID)
}
