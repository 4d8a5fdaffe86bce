package store

import (
	"context"
	"fmt"
	"strings"

	"ingest-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PersistChunk commits a chunk of validated drafts for one tenant in a
// single transaction: a bulk idempotency reservation first, then a bulk
// multi-row insert of the surviving orders, their items and stock events.
// Keys that lose the reservation race are returned as duplicates without
// aborting the rest of the chunk.
//
// A referential failure (unknown product) rolls the whole chunk back and
// returns *ChunkConflictError so the caller can retry record-at-a-time.
// Transport failures come back wrapped in ErrUnavailable.
func (s *Store) PersistChunk(ctx context.Context, tenantID uuid.UUID, drafts []*models.OrderDraft) (map[string]struct{}, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	reserved, err := reserveKeys(ctx, tx, tenantID, drafts)
	if err != nil {
		return nil, classify(err)
	}

	duplicates := make(map[string]struct{})
	winners := make([]*models.OrderDraft, 0, len(drafts))
	claimed := make(map[string]struct{}, len(drafts))
	for _, d := range drafts {
		if _, ok := reserved[d.IdempotencyKey]; ok {
			// First occurrence of a freshly reserved key wins; the caller
			// resolves later repeats of it by input order.
			winners = append(winners, d)
			delete(reserved, d.IdempotencyKey)
			claimed[d.IdempotencyKey] = struct{}{}
			continue
		}
		if _, ok := claimed[d.IdempotencyKey]; ok {
			continue
		}
		duplicates[d.IdempotencyKey] = struct{}{}
	}

	if err := insertOrders(ctx, tx, winners); err != nil {
		if isForeignKeyViolation(err) || isUniqueViolation(err) {
			return nil, &ChunkConflictError{Cause: err}
		}
		return nil, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return duplicates, nil
}

// PersistOne is the slow fallback: one record, one transaction. It is only
// taken after a chunk conflict, so the few bad records surface as
// individual rejections while the rest of the chunk still commits.
func (s *Store) PersistOne(ctx context.Context, draft *models.OrderDraft) (models.LineResult, error) {
	res := models.LineResult{Line: draft.Line}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, classify(err)
	}
	defer tx.Rollback()

	reserved, err := reserveKeys(ctx, tx, draft.TenantID, []*models.OrderDraft{draft})
	if err != nil {
		return res, classify(err)
	}
	if _, ok := reserved[draft.IdempotencyKey]; !ok {
		res.Status = models.LineDuplicate
		return res, nil
	}

	if err := insertOrders(ctx, tx, []*models.OrderDraft{draft}); err != nil {
		if isForeignKeyViolation(err) {
			res.Status = models.LineRejected
			res.Reason = fkDetail(err)
			return res, nil
		}
		if isUniqueViolation(err) {
			// Client-supplied order id collided with an existing order.
			res.Status = models.LineRejected
			res.Reason = "order id already exists"
			return res, nil
		}
		return res, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return res, classify(err)
	}
	res.Status = models.LineAccepted
	res.OrderID = draft.OrderID
	return res, nil
}

// reserveKeys attempts the idempotency reservation for every draft as one
// bulk insert. The unique constraint on (tenant_id, idempotency_key) is the
// sole arbiter: rows that conflict are silently skipped and only the keys
// this transaction actually claimed come back.
func reserveKeys(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, drafts []*models.OrderDraft) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(drafts))
	keys := make([]string, 0, len(drafts))
	for _, d := range drafts {
		if _, dup := seen[d.IdempotencyKey]; dup {
			continue
		}
		seen[d.IdempotencyKey] = struct{}{}
		keys = append(keys, d.IdempotencyKey)
	}

	var (
		sb   strings.Builder
		args = make([]interface{}, 0, len(keys)*2)
	)
	sb.WriteString("INSERT INTO idempotency_records (tenant_id, idempotency_key) VALUES ")
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, tenantID, key)
	}
	sb.WriteString(" ON CONFLICT (tenant_id, idempotency_key) DO NOTHING RETURNING idempotency_key")

	rows, err := tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency keys: %w", err)
	}
	defer rows.Close()

	reserved := make(map[string]struct{}, len(keys))
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		reserved[key] = struct{}{}
	}
	return reserved, rows.Err()
}

// insertOrders does the set-based write: one multi-row statement each for
// orders, order items and stock events. This is the throughput path; no
// per-row round trips.
func insertOrders(ctx context.Context, tx *sqlx.Tx, drafts []*models.OrderDraft) error {
	if len(drafts) == 0 {
		return nil
	}

	var (
		ob     strings.Builder
		oargs  = make([]interface{}, 0, len(drafts)*6)
		ib     strings.Builder
		iargs  []interface{}
		nItems int
	)
	ob.WriteString("INSERT INTO orders (id, tenant_id, customer_name, status, total_cents, idempotency_key) VALUES ")
	ib.WriteString("INSERT INTO order_items (order_id, tenant_id, product_id, quantity, unit_price_cents) VALUES ")

	for i, d := range drafts {
		if i > 0 {
			ob.WriteString(", ")
		}
		fmt.Fprintf(&ob, "($%d, $%d, $%d, $%d, $%d, $%d)",
			len(oargs)+1, len(oargs)+2, len(oargs)+3, len(oargs)+4, len(oargs)+5, len(oargs)+6)
		oargs = append(oargs, d.OrderID, d.TenantID, d.CustomerName, d.Status, d.TotalCents(), d.IdempotencyKey)

		for _, it := range d.Items {
			if nItems > 0 {
				ib.WriteString(", ")
			}
			fmt.Fprintf(&ib, "($%d, $%d, $%d, $%d, $%d)",
				len(iargs)+1, len(iargs)+2, len(iargs)+3, len(iargs)+4, len(iargs)+5)
			iargs = append(iargs, d.OrderID, d.TenantID, it.ProductID, it.Quantity, it.UnitPriceCents)
			nItems++
		}
	}

	if _, err := tx.ExecContext(ctx, ob.String(), oargs...); err != nil {
		return fmt.Errorf("failed to insert orders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ib.String(), iargs...); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}
	return insertStockEvents(ctx, tx, drafts)
}

// insertStockEvents appends a negative stock delta per accepted item, in
// the same transaction as the order rows.
func insertStockEvents(ctx context.Context, tx *sqlx.Tx, drafts []*models.OrderDraft) error {
	var (
		sb   strings.Builder
		args []interface{}
		n    int
	)
	sb.WriteString("INSERT INTO stock_events (tenant_id, product_id, delta) VALUES ")
	for _, d := range drafts {
		for _, it := range d.Items {
			if n > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "($%d, $%d, $%d)", len(args)+1, len(args)+2, len(args)+3)
			args = append(args, d.TenantID, it.ProductID, -it.Quantity)
			n++
		}
	}
	if n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert stock events: %w", err)
	}
	return nil
}

// GetOrderByKey retrieves an order by its idempotency key, tenant-scoped.
func (s *Store) GetOrderByKey(ctx context.Context, tenantID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE tenant_id = $1 AND idempotency_key = $2", tenantID, key)
	if err != nil {
		return nil, classify(err)
	}
	return &order, nil
}

// CountOrders reports how many orders a tenant holds.
func (s *Store) CountOrders(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders WHERE tenant_id = $1", tenantID)
	return n, classify(err)
}
