package ingest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTenant = uuid.MustParse("937942db-e55e-4a4f-9e49-81a7c44f02c7")

func validLine(overrides map[string]string) []byte {
	fields := map[string]string{
		"tenant_id":       fmt.Sprintf("%q", testTenant),
		"idempotency_key": `"key-1"`,
		"product_id":      fmt.Sprintf("%q", uuid.New()),
		"quantity":        "2",
		"unit_price":      `"19.99"`,
	}
	for k, v := range overrides {
		if v == "" {
			delete(fields, k)
		} else {
			fields[k] = v
		}
	}
	out := "{"
	first := true
	for k, v := range fields {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%q:%s", k, v)
	}
	return []byte(out + "}")
}

func TestParseRecordFlatItem(t *testing.T) {
	draft, err := ParseRecord(7, validLine(nil), testTenant)
	require.NoError(t, err)

	assert.Equal(t, 7, draft.Line)
	assert.Equal(t, testTenant, draft.TenantID)
	assert.Equal(t, "key-1", draft.IdempotencyKey)
	assert.Equal(t, "created", draft.Status)
	assert.NotEqual(t, uuid.Nil, draft.OrderID)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, 2, draft.Items[0].Quantity)
	assert.Equal(t, int64(1999), draft.Items[0].UnitPriceCents)
	assert.Equal(t, int64(3998), draft.TotalCents())
}

func TestParseRecordItemsArraySupersedesFlatFields(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	line := []byte(fmt.Sprintf(`{
		"tenant_id": %q,
		"idempotency_key": "key-2",
		"product_id": %q,
		"quantity": 1,
		"unit_price": "1.00",
		"items": [
			{"product_id": %q, "quantity": 3, "unit_price": 5.5},
			{"product_id": %q, "quantity": 1, "price": "2.25"}
		]
	}`, testTenant, uuid.New(), p1, p2))

	draft, err := ParseRecord(1, line, testTenant)
	require.NoError(t, err)
	require.Len(t, draft.Items, 2)
	assert.Equal(t, p1, draft.Items[0].ProductID)
	assert.Equal(t, int64(550), draft.Items[0].UnitPriceCents)
	assert.Equal(t, p2, draft.Items[1].ProductID)
	assert.Equal(t, int64(225), draft.Items[1].UnitPriceCents)
	assert.Equal(t, int64(3*550+225), draft.TotalCents())
}

func TestParseRecordMalformedJSON(t *testing.T) {
	_, err := ParseRecord(1, []byte(`{"tenant_id": `), testTenant)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "body", verr.Field)
}

func TestParseRecordTenantMismatchRejectedUnconditionally(t *testing.T) {
	_, err := ParseRecord(1, validLine(map[string]string{
		"tenant_id": fmt.Sprintf("%q", uuid.New()),
	}), testTenant)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tenant_id", verr.Field)
	assert.Contains(t, verr.Msg, "does not match")
}

func TestParseRecordFieldErrors(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]string
		field     string
	}{
		{"missing tenant", map[string]string{"tenant_id": ""}, "tenant_id"},
		{"garbage tenant", map[string]string{"tenant_id": `"nope"`}, "tenant_id"},
		{"missing key", map[string]string{"idempotency_key": ""}, "idempotency_key"},
		{"blank key", map[string]string{"idempotency_key": `"   "`}, "idempotency_key"},
		{"bad product id", map[string]string{"product_id": `"not-a-uuid"`}, "product_id"},
		{"zero quantity", map[string]string{"quantity": "0"}, "quantity"},
		{"negative quantity", map[string]string{"quantity": "-3"}, "quantity"},
		{"missing price", map[string]string{"unit_price": ""}, "unit_price"},
		{"negative price", map[string]string{"unit_price": `"-1.00"`}, "unit_price"},
		{"too many decimals", map[string]string{"unit_price": `"1.999"`}, "unit_price"},
		{"bad order id", map[string]string{"order_id": `"xyz"`}, "order_id"},
		{"bad timestamp", map[string]string{"ts": `"yesterday"`}, "ts"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRecord(1, validLine(tc.overrides), testTenant)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestParseRecordClientSuppliedOrderID(t *testing.T) {
	id := uuid.New()
	draft, err := ParseRecord(1, validLine(map[string]string{
		"order_id": fmt.Sprintf("%q", id),
	}), testTenant)
	require.NoError(t, err)
	assert.Equal(t, id, draft.OrderID)
}

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"12", 1200, true},
		{"12.3", 1230, true},
		{"12.34", 1234, true},
		{"0.05", 5, true},
		{"999999.99", 99999999, true},
		{"", 0, false},
		{"-1", 0, false},
		{"1.234", 0, false},
		{"abc", 0, false},
		{"1.x", 0, false},
	}
	for _, tc := range cases {
		got, err := parseCents(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got, tc.in)
		} else {
			assert.Error(t, err, tc.in)
		}
	}
}
