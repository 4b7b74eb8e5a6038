// Package ingest loads the optimizer inputs from either the shared store or
// a remote read-only API, selected by configuration.
package ingest

import (
	"context"

	"github.com/dhcsousa/hospitopt/internal/models"
)

// pageLimit bounds every input read; the optimizer is a batch solver and
// never needs more than one page per resource.
const pageLimit = 1000

// Ingestor returns the current snapshot of each input collection. Ordering is
// backend-defined but stable within a tick.
type Ingestor interface {
	Hospitals(ctx context.Context) ([]models.Hospital, error)
	Patients(ctx context.Context) ([]models.Patient, error)
	Ambulances(ctx context.Context) ([]models.Ambulance, error)
}
