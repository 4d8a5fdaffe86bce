package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// ErrUnavailable marks transport-level storage failures. The current chunk
// is aborted and every line not yet attempted must be reported as
// not_attempted so the caller can retry exactly those lines.
var ErrUnavailable = errors.New("storage unavailable")

// ChunkConflictError marks a chunk whose bulk insert hit a row-level problem
// (typically an unknown product). The chunk was rolled back and should be
// retried one record at a time to isolate the offending rows.
type ChunkConflictError struct {
	Cause error
}

func (e *ChunkConflictError) Error() string {
	return "chunk insert conflict: " + e.Cause.Error()
}

func (e *ChunkConflictError) Unwrap() error { return e.Cause }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// fkDetail extracts the server's detail line for a foreign-key failure,
// e.g. `Key (tenant_id, product_id)=(..., ...) is not present in table
// "products".`, falling back to the bare message.
func fkDetail(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Detail != "" {
			return pqErr.Detail
		}
		return pqErr.Message
	}
	return err.Error()
}

// isConnectionError reports transport-level failures as opposed to
// statement-level ones. Constraint violations are normal outcomes of the
// ingest protocol and are never classified here.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exceptions; 57P01: admin shutdown.
		if strings.HasPrefix(string(pqErr.Code), "08") || pqErr.Code == "57P01" {
			return true
		}
	}
	return false
}

// classify wraps transport failures in ErrUnavailable and returns other
// errors unchanged.
func classify(err error) error {
	if isConnectionError(err) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
