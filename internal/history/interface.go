package history

import (
	"context"
	"time"

	"codeberg.org/mutker/lightsync/internal/led"
)

// Recorder keeps a log of the colors the reactive controller actuated.
type Recorder interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

type Repository interface {
	Record(snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Snapshot is one actuated frame.
type Snapshot struct {
	Timestamp   time.Time
	Mode        string
	Sensitivity float64
	Levels      LevelValues
	Color       led.Color
	Method      string
}

type LevelValues struct {
	Bass    float64
	Mid     float64
	Treble  float64
	Overall float64
}
