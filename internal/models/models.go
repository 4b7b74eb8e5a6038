package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrInvalidBedCounts   = errors.New("used beds exceed bed capacity")
	ErrInvalidDeadline    = errors.New("treatment deadline must be positive")
)

// Hospital is a care facility with remaining bed capacity.
type Hospital struct {
	ID          uuid.UUID `json:"id"`
	Name        *string   `json:"name"`
	BedCapacity int       `json:"bed_capacity"`
	UsedBeds    int       `json:"used_beds"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
}

// FreeBeds returns the remaining capacity, never negative.
func (h Hospital) FreeBeds() int {
	free := h.BedCapacity - h.UsedBeds
	if free < 0 {
		return 0
	}
	return free
}

func (h Hospital) Validate() error {
	if err := validateCoordinates(h.Lat, h.Lon); err != nil {
		return fmt.Errorf("hospital %s: %w", h.ID, err)
	}
	if h.BedCapacity < 0 || h.UsedBeds < 0 || h.UsedBeds > h.BedCapacity {
		return fmt.Errorf("hospital %s: used_beds=%d bed_capacity=%d: %w",
			h.ID, h.UsedBeds, h.BedCapacity, ErrInvalidBedCounts)
	}
	return nil
}

// Patient is a person awaiting transport, with a medical time-to-hospital
// budget in minutes.
type Patient struct {
	ID                    uuid.UUID `json:"id"`
	Lat                   float64   `json:"lat"`
	Lon                   float64   `json:"lon"`
	TimeToHospitalMinutes int       `json:"time_to_hospital_minutes"`
	RegisteredAt          time.Time `json:"registered_at"`
}

func (p Patient) Validate() error {
	if err := validateCoordinates(p.Lat, p.Lon); err != nil {
		return fmt.Errorf("patient %s: %w", p.ID, err)
	}
	if p.TimeToHospitalMinutes <= 0 {
		return fmt.Errorf("patient %s: time_to_hospital_minutes=%d: %w",
			p.ID, p.TimeToHospitalMinutes, ErrInvalidDeadline)
	}
	return nil
}

// Ambulance is a transport vehicle at a known position. AssignedPatientID is
// informational only; the optimizer never consults it.
type Ambulance struct {
	ID                uuid.UUID  `json:"id"`
	Lat               float64    `json:"lat"`
	Lon               float64    `json:"lon"`
	AssignedPatientID *uuid.UUID `json:"assigned_patient_id"`
}

func (a Ambulance) Validate() error {
	if err := validateCoordinates(a.Lat, a.Lon); err != nil {
		return fmt.Errorf("ambulance %s: %w", a.ID, err)
	}
	return nil
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("lat=%v lon=%v: %w", lat, lon, ErrInvalidCoordinates)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Run-local indices and travel-time tables
// ---------------------------------------------------------------------------

// Indices are zero-based offsets into the current tick's input slices. They
// never leave the worker.
type (
	PatientIndex   int
	HospitalIndex  int
	AmbulanceIndex int
)

type AmbulancePatientKey struct {
	Ambulance AmbulanceIndex
	Patient   PatientIndex
}

type PatientHospitalKey struct {
	Patient  PatientIndex
	Hospital HospitalIndex
}

// MinutesTables holds the two sparse travel-time tables built per tick. A
// missing key means the pair is infeasible.
type MinutesTables struct {
	AmbulanceToPatient map[AmbulancePatientKey]int
	PatientToHospital  map[PatientHospitalKey]int
}

// ---------------------------------------------------------------------------
// Optimization output
// ---------------------------------------------------------------------------

// PatientAssignment is one output row: either a concrete three-way match or
// an urgent-fallback placeholder (nil hospital/ambulance ids).
type PatientAssignment struct {
	PatientID                uuid.UUID  `json:"patient_id"`
	HospitalID               *uuid.UUID `json:"hospital_id"`
	AmbulanceID              *uuid.UUID `json:"ambulance_id"`
	EstimatedTravelMinutes   *int       `json:"estimated_travel_minutes"`
	DeadlineSlackMinutes     *int       `json:"deadline_slack_minutes"`
	TreatmentDeadlineMinutes int        `json:"treatment_deadline_minutes"`
	PatientRegisteredAt      time.Time  `json:"patient_registered_at"`
	RequiresUrgentTransport  bool       `json:"requires_urgent_transport"`
	OptimizedAt              time.Time  `json:"optimized_at"`
}

type OptimizationResult struct {
	Assignments          []PatientAssignment `json:"assignments"`
	UnassignedPatientIDs []uuid.UUID         `json:"unassigned_patient_ids"`
	MaxLivesSaved        int                 `json:"max_lives_saved"`
	CapacityShortfall    int                 `json:"capacity_shortfall"`
	AmbulanceShortfall   int                 `json:"ambulance_shortfall"`
}
