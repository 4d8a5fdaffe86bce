package models

import "github.com/google/uuid"

// Per-line ingest statuses
const (
	LineAccepted     = "accepted"
	LineDuplicate    = "duplicate"
	LineRejected     = "rejected"
	LineNotAttempted = "not_attempted"
)

// LineResult is the final disposition of one physical input line.
type LineResult struct {
	Line    int       `json:"line"`
	Status  string    `json:"status"`
	OrderID uuid.UUID `json:"order_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// IngestReport is the per-request outcome returned to the caller. It is
// never persisted; a fresh one is built for every request.
type IngestReport struct {
	TotalLines   int          `json:"total_lines"`
	Accepted     int          `json:"accepted"`
	Duplicates   int          `json:"duplicates"`
	Rejected     int          `json:"rejected"`
	NotAttempted int          `json:"not_attempted"`
	ElapsedMs    float64      `json:"elapsed_ms"`
	Results      []LineResult `json:"results"`
}

// Add appends a result and bumps the matching counter.
func (r *IngestReport) Add(res LineResult) {
	r.Results = append(r.Results, res)
	r.TotalLines++
	switch res.Status {
	case LineAccepted:
		r.Accepted++
	case LineDuplicate:
		r.Duplicates++
	case LineRejected:
		r.Rejected++
	case LineNotAttempted:
		r.NotAttempted++
	}
}
