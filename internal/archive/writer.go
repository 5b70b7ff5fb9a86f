package archive

import (
	"context"
	"fmt"
	"time"

	"factory-status-backend/internal/model"
)

// Batch is the verbatim set of records selected by one retention sweep.
type Batch struct {
	CutoffDate string               `json:"cutoffDate"`
	SweptAt    time.Time            `json:"sweptAt"`
	Records    []model.StatusRecord `json:"records"`
}

// Name returns the deterministic artifact name for one sweep. Repeated runs
// never collide: the cutoff date identifies the horizon and the sweep
// instant distinguishes re-runs after an aborted delete.
func Name(cutoff, sweptAt time.Time) string {
	return fmt.Sprintf("records-%s-%d.json", cutoff.UTC().Format("2006-01-02"), sweptAt.UTC().Unix())
}

// Writer persists one archive artifact. Write must not return nil until the
// artifact is durable; the sweeper deletes primary records only afterwards.
type Writer interface {
	Write(ctx context.Context, name string, batch Batch) error
}
