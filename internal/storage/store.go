package storage

import (
	"context"
	"time"

	"synaptor/internal/model"
)

// NetworkSnapshot is one persisted capture of a built network's
// connectivity and delay extrema.
type NetworkSnapshot struct {
	ID            string           `json:"id"`
	Network       string           `json:"network"`
	CreatedAt     time.Time        `json:"created_at"`
	SchemaVersion int              `json:"schema_version"`
	CodecVersion  int              `json:"codec_version"`
	ResolutionMS  float64          `json:"resolution_ms"`
	MinDelayMS    float64          `json:"min_delay_ms"`
	MaxDelayMS    float64          `json:"max_delay_ms"`
	Connections   []model.ConnInfo `json:"connections"`
}

// SnapshotInfo is the listing record of one stored snapshot.
type SnapshotInfo struct {
	ID             string    `json:"id"`
	Network        string    `json:"network"`
	CreatedAt      time.Time `json:"created_at"`
	NumConnections int       `json:"num_connections"`
}

// Store defines persistence operations for network snapshots.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snap NetworkSnapshot) error
	GetSnapshot(ctx context.Context, id string) (NetworkSnapshot, bool, error)
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)
	DeleteSnapshot(ctx context.Context, id string) error
}
