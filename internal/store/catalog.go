package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ingest-service/internal/models"

	"github.com/google/uuid"
)

// CreateTenant inserts a tenant. Idempotent on slug.
func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug) VALUES ($1, $2, $3)
		 ON CONFLICT (slug) DO NOTHING`,
		tenant.ID, tenant.Name, tenant.Slug)
	return classify(err)
}

// GetTenantBySlug retrieves a tenant by its slug.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE slug = $1", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant not found: %s", slug)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &tenant, nil
}

// CreateProducts bulk-inserts catalog rows for the provisioning path.
func (s *Store) CreateProducts(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]interface{}, 0, len(products)*6)
	)
	sb.WriteString("INSERT INTO products (id, tenant_id, title, category, price_cents, stock) VALUES ")
	for i, p := range products {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6)
		args = append(args, p.ID, p.TenantID, p.Title, p.Category, p.PriceCents, p.Stock)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")
	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return classify(fmt.Errorf("failed to insert products: %w", err))
	}
	return nil
}

// ProductIDs lists a tenant's product ids, for cache warming and the load
// generator.
func (s *Store) ProductIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM products WHERE tenant_id = $1 ORDER BY created_at", tenantID)
	return ids, classify(err)
}
