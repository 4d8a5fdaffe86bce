package ingest

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"ingest-service/internal/models"
	"ingest-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(fs *fakeStore, chunkSize int) *Service {
	p := NewPersister(fs, nil, nil, chunkSize, zap.NewNop())
	return NewService(p, 0, zap.NewNop())
}

// ndjsonBody renders one record per line with distinct keys starting at
// keyOffset, all against the same product.
func ndjsonBody(n, keyOffset int, productID uuid.UUID) *bytes.Buffer {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(validLine(map[string]string{
			"idempotency_key": fmt.Sprintf(`"order-%d"`, keyOffset+i),
			"product_id":      fmt.Sprintf("%q", productID),
		}))
		buf.WriteByte('\n')
	}
	return &buf
}

func TestIngestOrdersAcceptsFreshBatch(t *testing.T) {
	svc := newTestService(newFakeStore(), 100)

	report, err := svc.IngestOrders(context.Background(), testTenant, ndjsonBody(5, 0, uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, 5, report.TotalLines)
	assert.Equal(t, 5, report.Accepted)
	assert.Zero(t, report.Duplicates)
	assert.Zero(t, report.Rejected)
	assert.Zero(t, report.NotAttempted)
	require.Len(t, report.Results, 5)
	for i, res := range report.Results {
		assert.Equal(t, i+1, res.Line)
		assert.Equal(t, models.LineAccepted, res.Status)
		assert.NotEqual(t, uuid.Nil, res.OrderID)
	}
}

func TestIngestOrdersReplayIsAllDuplicates(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, 100)
	product := uuid.New()

	first, err := svc.IngestOrders(context.Background(), testTenant, ndjsonBody(5, 0, product))
	require.NoError(t, err)
	require.Equal(t, 5, first.Accepted)

	replay, err := svc.IngestOrders(context.Background(), testTenant, ndjsonBody(5, 0, product))
	require.NoError(t, err)

	assert.Zero(t, replay.Accepted)
	assert.Equal(t, 5, replay.Duplicates)
	assert.Equal(t, first.Accepted, replay.Duplicates)
}

func TestIngestOrdersMalformedLineDoesNotAbortRequest(t *testing.T) {
	svc := newTestService(newFakeStore(), 100)
	product := uuid.New()

	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		if i == 4 {
			buf.WriteString("{not json at all\n")
			continue
		}
		buf.Write(validLine(map[string]string{
			"idempotency_key": fmt.Sprintf(`"order-%d"`, i),
			"product_id":      fmt.Sprintf("%q", product),
		}))
		buf.WriteByte('\n')
	}

	report, err := svc.IngestOrders(context.Background(), testTenant, &buf)
	require.NoError(t, err)

	assert.Equal(t, 10, report.TotalLines)
	assert.Equal(t, 9, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, models.LineRejected, report.Results[4].Status)
	assert.Equal(t, 5, report.Results[4].Line)
	assert.NotEmpty(t, report.Results[4].Reason)
}

func TestIngestOrdersOutageMidRequestReturnsPartialReport(t *testing.T) {
	fs := newFakeStore()
	fs.chunksBeforeOutage = 1
	p := NewPersister(fs, nil, nil, 2, zap.NewNop())
	svc := NewService(p, 0, zap.NewNop())

	report, err := svc.IngestOrders(context.Background(), testTenant, ndjsonBody(6, 0, uuid.New()))
	// Some lines committed, so this is a partial success, not a 503.
	require.NoError(t, err)

	assert.Equal(t, 6, report.TotalLines)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 4, report.NotAttempted)
	for _, res := range report.Results[2:] {
		assert.Equal(t, models.LineNotAttempted, res.Status)
		assert.Equal(t, "storage unavailable", res.Reason)
	}
}

func TestIngestOrdersStorageDownBeforeAnyAttempt(t *testing.T) {
	fs := newFakeStore()
	fs.chunksBeforeOutage = 0
	svc := newTestService(fs, 2)

	report, err := svc.IngestOrders(context.Background(), testTenant, ndjsonBody(4, 0, uuid.New()))
	require.ErrorIs(t, err, store.ErrUnavailable)

	require.NotNil(t, report)
	assert.Equal(t, 4, report.TotalLines)
	assert.Equal(t, 4, report.NotAttempted)
	assert.Zero(t, report.Accepted)
}

func TestIngestOrdersReportPreservesPhysicalLineOrder(t *testing.T) {
	svc := newTestService(newFakeStore(), 2)
	product := uuid.New()

	var buf bytes.Buffer
	buf.Write(validLine(map[string]string{"idempotency_key": `"a"`, "product_id": fmt.Sprintf("%q", product)}))
	buf.WriteString("\n\n") // blank line 2 is skipped entirely
	buf.WriteString("garbage\n")
	buf.Write(validLine(map[string]string{"idempotency_key": `"b"`, "product_id": fmt.Sprintf("%q", product)}))
	buf.WriteByte('\n')
	buf.Write(validLine(map[string]string{"idempotency_key": `"a"`, "product_id": fmt.Sprintf("%q", product)}))
	buf.WriteByte('\n')

	report, err := svc.IngestOrders(context.Background(), testTenant, &buf)
	require.NoError(t, err)

	// Lines 1, 3, 4, 5 appear; line 2 was blank.
	require.Len(t, report.Results, 4)
	assert.Equal(t, []int{1, 3, 4, 5},
		[]int{report.Results[0].Line, report.Results[1].Line, report.Results[2].Line, report.Results[3].Line})
	assert.Equal(t, models.LineAccepted, report.Results[0].Status)
	assert.Equal(t, models.LineRejected, report.Results[1].Status)
	assert.Equal(t, models.LineAccepted, report.Results[2].Status)
	assert.Equal(t, models.LineDuplicate, report.Results[3].Status)
	assert.Equal(t, 4, report.TotalLines)
}

func TestIngestOrdersOversizedLineRejectedInPlace(t *testing.T) {
	fs := newFakeStore()
	p := NewPersister(fs, nil, nil, 100, zap.NewNop())
	svc := NewService(p, 256, zap.NewNop())
	product := uuid.New()

	var buf bytes.Buffer
	buf.Write(validLine(map[string]string{"idempotency_key": `"a"`, "product_id": fmt.Sprintf("%q", product)}))
	buf.WriteByte('\n')
	buf.WriteString(`{"pad":"` + string(bytes.Repeat([]byte{'x'}, 1024)) + `"}` + "\n")
	buf.Write(validLine(map[string]string{"idempotency_key": `"b"`, "product_id": fmt.Sprintf("%q", product)}))
	buf.WriteByte('\n')

	report, err := svc.IngestOrders(context.Background(), testTenant, &buf)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, models.LineAccepted, report.Results[0].Status)
	assert.Equal(t, models.LineRejected, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Reason, "exceeds")
	assert.Equal(t, models.LineAccepted, report.Results[2].Status)
}

func TestIngestOrdersEmptyBody(t *testing.T) {
	svc := newTestService(newFakeStore(), 100)

	report, err := svc.IngestOrders(context.Background(), testTenant, bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, report.TotalLines)
	assert.Empty(t, report.Results)
}
