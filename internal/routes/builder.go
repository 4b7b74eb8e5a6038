package routes

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dhcsousa/hospitopt/internal/models"
)

// maxMatrixElements is the Routes API element cap per request under
// traffic-aware routing.
const maxMatrixElements = 100

// departureLead keeps the departure time in the future; the oracle rejects
// past departures.
const departureLead = 30 * time.Second

// Pair addresses one entry of a merged matrix in the original coordinate
// space.
type Pair struct {
	Origin      int
	Destination int
}

// Builder turns coordinate lists into sparse minute tables, chunking requests
// under the oracle's element cap and re-offsetting indices.
type Builder struct {
	oracle      Oracle
	cache       *Cache
	maxElements int
	now         func() time.Time
	log         *logrus.Logger
}

type BuilderOption func(*Builder)

// WithMaxElements relaxes or tightens the per-request element cap.
func WithMaxElements(n int) BuilderOption {
	return func(b *Builder) { b.maxElements = n }
}

// WithCache adds a best-effort matrix cache in front of the oracle.
func WithCache(c *Cache) BuilderOption {
	return func(b *Builder) { b.cache = c }
}

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(oracle Oracle, log *logrus.Logger, opts ...BuilderOption) *Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Builder{
		oracle:      oracle,
		maxElements: maxMatrixElements,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Matrix computes minutes for every routable origin/destination pair. Pairs
// the oracle reports an element-level error for are absent from the result.
func (b *Builder) Matrix(ctx context.Context, origins, destinations []LatLng) (map[Pair]int, error) {
	minutes := make(map[Pair]int)
	if len(origins) == 0 || len(destinations) == 0 {
		return minutes, nil
	}

	if b.cache != nil {
		if cached, ok := b.cache.Get(ctx, origins, destinations); ok {
			return cached, nil
		}
	}

	maxOrigins := len(origins)
	if maxOrigins > b.maxElements {
		maxOrigins = b.maxElements
	}
	maxDestinations := b.maxElements / maxOrigins
	if maxDestinations < 1 {
		maxDestinations = 1
	}

	departure := b.now().Add(departureLead)

	for originBase := 0; originBase < len(origins); originBase += maxOrigins {
		originChunk := origins[originBase:min(originBase+maxOrigins, len(origins))]
		for destBase := 0; destBase < len(destinations); destBase += maxDestinations {
			destChunk := destinations[destBase:min(destBase+maxDestinations, len(destinations))]

			elements, err := b.oracle.ComputeRouteMatrix(ctx, originChunk, destChunk, departure)
			if err != nil {
				return nil, fmt.Errorf("route matrix chunk (%d,%d): %w", originBase, destBase, err)
			}
			for _, el := range elements {
				if el.StatusCode != 0 {
					// Element-level failure: the pair is unroutable.
					continue
				}
				key := Pair{
					Origin:      originBase + el.OriginIndex,
					Destination: destBase + el.DestinationIndex,
				}
				minutes[key] = durationToMinutes(el.Duration)
			}
		}
	}

	if b.cache != nil {
		b.cache.Put(ctx, origins, destinations, minutes)
	}
	return minutes, nil
}

// MinutesTables builds the two per-tick tables: ambulance->patient and
// patient->hospital.
func (b *Builder) MinutesTables(ctx context.Context, patients []models.Patient, hospitals []models.Hospital, ambulances []models.Ambulance) (models.MinutesTables, error) {
	patientCoords := make([]LatLng, len(patients))
	for i, p := range patients {
		patientCoords[i] = LatLng{Lat: p.Lat, Lon: p.Lon}
	}
	hospitalCoords := make([]LatLng, len(hospitals))
	for i, h := range hospitals {
		hospitalCoords[i] = LatLng{Lat: h.Lat, Lon: h.Lon}
	}
	ambulanceCoords := make([]LatLng, len(ambulances))
	for i, a := range ambulances {
		ambulanceCoords[i] = LatLng{Lat: a.Lat, Lon: a.Lon}
	}

	patientToHospital, err := b.Matrix(ctx, patientCoords, hospitalCoords)
	if err != nil {
		return models.MinutesTables{}, fmt.Errorf("patient to hospital matrix: %w", err)
	}
	ambulanceToPatient, err := b.Matrix(ctx, ambulanceCoords, patientCoords)
	if err != nil {
		return models.MinutesTables{}, fmt.Errorf("ambulance to patient matrix: %w", err)
	}

	tables := models.MinutesTables{
		AmbulanceToPatient: make(map[models.AmbulancePatientKey]int, len(ambulanceToPatient)),
		PatientToHospital:  make(map[models.PatientHospitalKey]int, len(patientToHospital)),
	}
	for pair, mins := range ambulanceToPatient {
		tables.AmbulanceToPatient[models.AmbulancePatientKey{
			Ambulance: models.AmbulanceIndex(pair.Origin),
			Patient:   models.PatientIndex(pair.Destination),
		}] = mins
	}
	for pair, mins := range patientToHospital {
		tables.PatientToHospital[models.PatientHospitalKey{
			Patient:  models.PatientIndex(pair.Origin),
			Hospital: models.HospitalIndex(pair.Destination),
		}] = mins
	}

	b.log.WithFields(logrus.Fields{
		"component":            "routes",
		"ambulance_to_patient": len(tables.AmbulanceToPatient),
		"patient_to_hospital":  len(tables.PatientToHospital),
	}).Debug("built minute tables")

	return tables, nil
}

// durationToMinutes rounds up to whole minutes with a floor of one.
func durationToMinutes(d time.Duration) int {
	mins := int(math.Ceil(d.Seconds() / 60))
	if mins < 1 {
		return 1
	}
	return mins
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
