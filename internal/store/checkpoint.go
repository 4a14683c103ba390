// Package store persists the committed tuning operating point so a restarted
// pipeline can warm-start near where it left off.
package store

import (
	"context"
	"time"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

// Checkpoint is the persisted operating point for one stream.
type Checkpoint struct {
	Stream    string                 `json:"stream"`
	Params    model.TuningParameters `json:"params"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CheckpointStore saves and loads per-stream checkpoints. Load reports
// found=false when no checkpoint exists for the stream; that is not an error.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, stream string) (Checkpoint, bool, error)
	Close() error
}
