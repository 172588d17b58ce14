package domain

import "time"

// SnapshotVersion is the only snapshot format this build reads or writes.
// Importers must reject anything else rather than guess compatibility.
const SnapshotVersion = 1

// Snapshot is the self-describing export format covering every collection.
type Snapshot struct {
	Version         int              `json:"version"`
	ExportedAt      time.Time        `json:"exported_at"`
	Sources         []Source         `json:"sources"`
	Highlights      []Highlight      `json:"highlights"`
	CycleRecords    []CycleRecord    `json:"cycle_records"`
	DeliveryRecords []DeliveryRecord `json:"delivery_records"`
}
