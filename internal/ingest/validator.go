package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ingest-service/internal/models"

	"github.com/google/uuid"
)

// ValidationError tags the specific failing field of one record.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// decimalField captures a JSON number or decimal string without parsing it,
// so price problems surface as field-level validation errors rather than
// aborting the whole record decode.
type decimalField struct {
	raw     string
	present bool
}

func (d *decimalField) UnmarshalJSON(b []byte) error {
	d.present = true
	d.raw = strings.Trim(string(bytes.TrimSpace(b)), `"`)
	return nil
}

type wireItem struct {
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice decimalField `json:"unit_price"`
	// Original flat-file exports call the field "price".
	Price decimalField `json:"price"`
}

type wireRecord struct {
	TenantID       string       `json:"tenant_id"`
	IdempotencyKey string       `json:"idempotency_key"`
	OrderID        string       `json:"order_id"`
	CustomerName   string       `json:"customer_name"`
	Status         string       `json:"status"`
	ProductID      string       `json:"product_id"`
	Quantity       int          `json:"quantity"`
	UnitPrice      decimalField `json:"unit_price"`
	Items          []wireItem   `json:"items"`
	TS             string       `json:"ts"`
}

// ParseRecord turns one raw NDJSON line into a validated draft for the
// authenticated tenant. It is pure: structural checks only, no I/O.
// Product existence is deferred to the persister, which verifies it as part
// of its bulk write. A record whose declared tenant differs from the
// authenticated one is rejected unconditionally.
func ParseRecord(line int, data []byte, tenantID uuid.UUID) (*models.OrderDraft, error) {
	var rec wireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, invalid("body", "malformed JSON: %v", err)
	}

	declared, err := uuid.Parse(strings.TrimSpace(rec.TenantID))
	if err != nil {
		return nil, invalid("tenant_id", "not a valid identifier")
	}
	if declared != tenantID {
		return nil, invalid("tenant_id", "does not match authenticated tenant")
	}

	key := strings.TrimSpace(rec.IdempotencyKey)
	if key == "" {
		return nil, invalid("idempotency_key", "required")
	}
	if len(key) > 255 {
		return nil, invalid("idempotency_key", "longer than 255 characters")
	}

	draft := &models.OrderDraft{
		Line:           line,
		TenantID:       tenantID,
		CustomerName:   strings.TrimSpace(rec.CustomerName),
		Status:         strings.TrimSpace(rec.Status),
		IdempotencyKey: key,
	}
	if len(draft.CustomerName) > 255 {
		return nil, invalid("customer_name", "longer than 255 characters")
	}
	if draft.Status == "" {
		draft.Status = models.OrderStatusCreated
	}
	if len(draft.Status) > 50 {
		return nil, invalid("status", "longer than 50 characters")
	}

	if rec.OrderID != "" {
		id, err := uuid.Parse(rec.OrderID)
		if err != nil {
			return nil, invalid("order_id", "not a valid identifier")
		}
		draft.OrderID = id
	} else {
		draft.OrderID = uuid.New()
	}

	if rec.TS != "" {
		ts, err := time.Parse(time.RFC3339, rec.TS)
		if err != nil {
			return nil, invalid("ts", "not an RFC3339 timestamp")
		}
		draft.ClientTime = ts
	}

	items, err := collectItems(&rec)
	if err != nil {
		return nil, err
	}
	draft.Items = items
	return draft, nil
}

// collectItems accepts either the flat single-item fields or an explicit
// items array; the array supersedes the flat fields when present.
func collectItems(rec *wireRecord) ([]models.ItemDraft, error) {
	if len(rec.Items) > 0 {
		out := make([]models.ItemDraft, 0, len(rec.Items))
		for i, it := range rec.Items {
			price := it.UnitPrice
			if !price.present {
				price = it.Price
			}
			item, err := buildItem(fmt.Sprintf("items[%d].", i), it.ProductID, it.Quantity, price)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	item, err := buildItem("", rec.ProductID, rec.Quantity, rec.UnitPrice)
	if err != nil {
		return nil, err
	}
	return []models.ItemDraft{item}, nil
}

func buildItem(prefix, productID string, quantity int, price decimalField) (models.ItemDraft, error) {
	pid, err := uuid.Parse(strings.TrimSpace(productID))
	if err != nil {
		return models.ItemDraft{}, invalid(prefix+"product_id", "not a valid identifier")
	}
	if quantity <= 0 {
		return models.ItemDraft{}, invalid(prefix+"quantity", "must be positive")
	}
	if !price.present {
		return models.ItemDraft{}, invalid(prefix+"unit_price", "required")
	}
	cents, err := parseCents(price.raw)
	if err != nil {
		return models.ItemDraft{}, invalid(prefix+"unit_price", "%v", err)
	}
	return models.ItemDraft{ProductID: pid, Quantity: quantity, UnitPriceCents: cents}, nil
}

// parseCents converts a non-negative decimal with at most two fractional
// digits ("12", "12.3", "12.34") into cents.
func parseCents(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("required")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("must be non-negative")
	}
	whole, frac, _ := strings.Cut(s, ".")
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a decimal amount")
	}
	cents := w * 100
	switch len(frac) {
	case 0:
	case 1, 2:
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not a decimal amount")
		}
		if len(frac) == 1 {
			f *= 10
		}
		cents += f
	default:
		return 0, fmt.Errorf("more than two fractional digits")
	}
	return cents, nil
}
