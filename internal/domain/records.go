package domain

import "time"

// CycleStatus summarizes how a single ingestion or selection cycle ended.
type CycleStatus string

const (
	CycleSuccess CycleStatus = "success"
	CyclePartial CycleStatus = "partial"
	CycleFailed  CycleStatus = "failed"
)

// CycleRecord is the append-only outcome of one cycle.
type CycleRecord struct {
	ID           string      `db:"id" json:"id"`
	Timestamp    time.Time   `db:"timestamp" json:"timestamp"`
	ItemsAdded   int         `db:"items_added" json:"items_added"`
	ItemsTotal   int         `db:"items_total" json:"items_total"`
	Status       CycleStatus `db:"status" json:"status"`
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
}

// DeliveryStatus is the outcome of one hand-off to the notifier.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryPending DeliveryStatus = "pending"
)

// DeliveryRecord is the append-only record of one notifier hand-off.
type DeliveryRecord struct {
	ID           string         `db:"id" json:"id"`
	Timestamp    time.Time      `db:"timestamp" json:"timestamp"`
	Recipient    string         `db:"recipient" json:"recipient"`
	HighlightIDs []string       `db:"-" json:"highlight_ids"`
	Status       DeliveryStatus `db:"status" json:"status"`
}

// ExtractBatch is what the external content extractor hands over: partial
// results plus per-item errors, never an all-or-nothing failure.
type ExtractBatch struct {
	Sources    []Source    `json:"sources"`
	Highlights []Highlight `json:"highlights"`
	Errors     []string    `json:"errors"`
}

// Deliverable is the payload handed to the external notifier.
type Deliverable struct {
	Highlights  []Highlight       `json:"highlights"`
	Recipient   string            `json:"recipient"`
	RenderHints map[string]string `json:"render_hints,omitempty"`
}

// DeliveryResult is the notifier's verdict on a deliverable.
type DeliveryResult struct {
	Status DeliveryStatus `json:"status"`
	Detail string         `json:"detail,omitempty"`
}

// IngestStats summarizes one ingestion cycle.
type IngestStats struct {
	SourcesUpserted int
	Fetched         int
	Added           int
	Unchanged       int
	Errors          []string
	Duration        time.Duration
}

// Status maps ingestion counters onto a cycle status.
func (s *IngestStats) Status() CycleStatus {
	switch {
	case len(s.Errors) == 0:
		return CycleSuccess
	case s.Added > 0 || s.SourcesUpserted > 0:
		return CyclePartial
	default:
		return CycleFailed
	}
}
