package ingest

import (
	"context"
	"io"
	"sort"
	"time"

	"ingest-service/internal/models"
	"ingest-service/internal/store"
	"ingest-service/internal/stream"
	"ingest-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service drives the pipeline stream decoder → validator → batch
// persister and assembles the per-request report in strict input-line
// order. Validated records are streamed into persister chunks as they
// decode, so end-to-end memory is bounded by the chunk size, not by the
// request size.
type Service struct {
	persister    *Persister
	maxLineBytes int
	logger       *zap.Logger
}

// NewService creates the ingest orchestrator.
func NewService(persister *Persister, maxLineBytes int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &Service{
		persister:    persister,
		maxLineBytes: maxLineBytes,
		logger:       logger,
	}
}

// IngestOrders consumes an NDJSON body for the authenticated tenant and
// returns the per-line report. The returned error is non-nil only when the
// storage backend was unreachable before any record could be attempted;
// partial storage failures are reported in-band as not_attempted lines.
func (s *Service) IngestOrders(ctx context.Context, tenantID uuid.UUID, body io.Reader) (*models.IngestReport, error) {
	ctx, span := util.StartSpan(ctx, "IngestService.IngestOrders")
	defer span.End()

	util.IngestRequestsTotal.Inc()
	start := time.Now()

	scanner := stream.NewScanner(&countingReader{r: body}, s.maxLineBytes)
	batch := s.persister.Begin(tenantID)

	var results []models.LineResult
	for {
		line, ok := scanner.Next()
		if !ok {
			break
		}

		// Once storage is gone nothing further is attempted; the caller
		// retries these lines, which is safe under idempotency.
		if batch.Down() {
			results = append(results, models.LineResult{
				Line:   line.Number,
				Status: models.LineNotAttempted,
				Reason: "storage unavailable",
			})
			continue
		}

		if line.Err != nil {
			results = append(results, models.LineResult{
				Line:   line.Number,
				Status: models.LineRejected,
				Reason: line.Err.Msg,
			})
			continue
		}

		draft, err := ParseRecord(line.Number, line.Data, tenantID)
		if err != nil {
			results = append(results, models.LineResult{
				Line:   line.Number,
				Status: models.LineRejected,
				Reason: err.Error(),
			})
			continue
		}
		batch.Add(ctx, draft)
	}

	if err := scanner.Err(); err != nil {
		// Client went away mid-stream. Fully received records still get
		// their chance below; committed chunks stay committed.
		s.logger.Warn("request body read failed mid-stream", zap.Error(err))
	}

	results = append(results, batch.Finish(ctx)...)
	sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })

	report := &models.IngestReport{Results: make([]models.LineResult, 0, len(results))}
	for _, res := range results {
		report.Add(res)
	}
	report.ElapsedMs = float64(time.Since(start).Microseconds()) / 1000.0

	for status, n := range map[string]int{
		models.LineAccepted:     report.Accepted,
		models.LineDuplicate:    report.Duplicates,
		models.LineRejected:     report.Rejected,
		models.LineNotAttempted: report.NotAttempted,
	} {
		util.IngestLinesTotal.WithLabelValues(status).Add(float64(n))
	}

	if batch.Down() {
		util.StorageUnavailableTotal.Inc()
		if !batch.Attempted() {
			return report, store.ErrUnavailable
		}
	}

	s.logger.Info("Bulk ingest completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("total_lines", report.TotalLines),
		zap.Int("accepted", report.Accepted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("rejected", report.Rejected),
		zap.Int("not_attempted", report.NotAttempted),
		zap.Float64("elapsed_ms", report.ElapsedMs),
	)
	return report, nil
}

type countingReader struct {
	r io.Reader
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		util.IngestBytesTotal.Add(float64(n))
	}
	return n, err
}
