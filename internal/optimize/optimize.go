// Package optimize runs one end-to-end solve: travel-time tables, feasibility
// filtering, the assignment program and result assembly.
package optimize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dhcsousa/hospitopt/internal/models"
	"github.com/dhcsousa/hospitopt/internal/solver"
)

// DefaultSpeedFactor models priority-vehicle speedup: emergency transports
// run roughly 30% faster than the oracle's civilian estimates.
const DefaultSpeedFactor = 1.3

// MatrixSource supplies per-tick minute tables. Implemented by
// routes.Builder; tests substitute fixed tables.
type MatrixSource interface {
	MinutesTables(ctx context.Context, patients []models.Patient, hospitals []models.Hospital, ambulances []models.Ambulance) (models.MinutesTables, error)
}

// Optimizer owns one tick's solve.
type Optimizer struct {
	matrices    MatrixSource
	solver      solver.Solver
	speedFactor float64
	now         func() time.Time
	log         *logrus.Logger
}

type Option func(*Optimizer)

func WithSpeedFactor(f float64) Option {
	return func(o *Optimizer) { o.speedFactor = f }
}

func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

func New(matrices MatrixSource, s solver.Solver, log *logrus.Logger, opts ...Option) *Optimizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	o := &Optimizer{
		matrices:    matrices,
		solver:      s,
		speedFactor: DefaultSpeedFactor,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ---------------------------------------------------------------------------
// Feasibility filtering
// ---------------------------------------------------------------------------

// feasibleSet holds candidate triples with their travel time and urgency
// weight, in deterministic enumeration order.
type feasibleSet struct {
	triples []solver.Triple
	travel  []int
	weights []float64
}

// buildFeasibleSet enumerates (patient, hospital, ambulance) and keeps the
// combinations that respect capacity and deadline. Weight is 1/slack, so the
// solver prefers the most time-critical feasible patients.
func buildFeasibleSet(patients []models.Patient, hospitals []models.Hospital, ambulances []models.Ambulance, tables models.MinutesTables, speedFactor float64) feasibleSet {
	var fs feasibleSet
	for pIdx, patient := range patients {
		for hIdx, hospital := range hospitals {
			if hospital.FreeBeds() == 0 {
				continue
			}
			ph, ok := tables.PatientToHospital[models.PatientHospitalKey{
				Patient:  models.PatientIndex(pIdx),
				Hospital: models.HospitalIndex(hIdx),
			}]
			if !ok {
				continue
			}
			for aIdx := range ambulances {
				ap, ok := tables.AmbulanceToPatient[models.AmbulancePatientKey{
					Ambulance: models.AmbulanceIndex(aIdx),
					Patient:   models.PatientIndex(pIdx),
				}]
				if !ok {
					continue
				}
				travel := int(math.Round(float64(ap+ph) / speedFactor))
				slack := patient.TimeToHospitalMinutes - travel
				if slack <= 0 {
					// Zero slack is rejected: the weight 1/slack would be
					// undefined and the patient would arrive with no margin.
					continue
				}
				fs.triples = append(fs.triples, solver.Triple{
					Patient:   models.PatientIndex(pIdx),
					Ambulance: models.AmbulanceIndex(aIdx),
					Hospital:  models.HospitalIndex(hIdx),
				})
				fs.travel = append(fs.travel, travel)
				fs.weights = append(fs.weights, 1.0/float64(slack))
			}
		}
	}
	return fs
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Optimize computes a complete assignment record set for the given snapshot.
// Every input patient appears in exactly one output row.
func (o *Optimizer) Optimize(ctx context.Context, hospitals []models.Hospital, patients []models.Patient, ambulances []models.Ambulance) (models.OptimizationResult, error) {
	totalFree := 0
	for _, h := range hospitals {
		totalFree += h.FreeBeds()
	}
	capacityShortfall := max(0, len(patients)-totalFree)
	ambulanceShortfall := max(0, len(patients)-len(ambulances))

	tables, err := o.matrices.MinutesTables(ctx, patients, hospitals, ambulances)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("build minute tables: %w", err)
	}

	fs := buildFeasibleSet(patients, hospitals, ambulances, tables, o.speedFactor)
	now := o.now().UTC()

	if len(fs.triples) == 0 {
		return o.allUrgent(patients, capacityShortfall, ambulanceShortfall, now), nil
	}

	freeBeds := make([]int, len(hospitals))
	for i, h := range hospitals {
		freeBeds[i] = h.FreeBeds()
	}
	sol, err := o.solver.Solve(solver.Problem{
		Triples:        fs.triples,
		Weights:        fs.weights,
		PatientCount:   len(patients),
		AmbulanceCount: len(ambulances),
		HospitalCount:  len(hospitals),
		FreeBeds:       freeBeds,
	})
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("solve assignment program: %w", err)
	}

	return o.assemble(patients, hospitals, ambulances, fs, sol, capacityShortfall, ambulanceShortfall, now), nil
}

// assemble converts chosen triples into assignment rows and fills urgent
// fallbacks for every patient the solve left out.
func (o *Optimizer) assemble(patients []models.Patient, hospitals []models.Hospital, ambulances []models.Ambulance, fs feasibleSet, sol solver.Solution, capacityShortfall, ambulanceShortfall int, now time.Time) models.OptimizationResult {
	assignments := make([]models.PatientAssignment, 0, len(patients))
	assigned := make(map[models.PatientIndex]bool, len(sol.Chosen))

	for _, idx := range sol.Chosen {
		triple := fs.triples[idx]
		patient := patients[triple.Patient]
		hospitalID := hospitals[triple.Hospital].ID
		ambulanceID := ambulances[triple.Ambulance].ID
		travel := fs.travel[idx]
		slack := patient.TimeToHospitalMinutes - travel

		assignments = append(assignments, models.PatientAssignment{
			PatientID:                patient.ID,
			HospitalID:               &hospitalID,
			AmbulanceID:              &ambulanceID,
			EstimatedTravelMinutes:   &travel,
			DeadlineSlackMinutes:     &slack,
			TreatmentDeadlineMinutes: patient.TimeToHospitalMinutes,
			PatientRegisteredAt:      patient.RegisteredAt,
			RequiresUrgentTransport:  false,
			OptimizedAt:              now,
		})
		assigned[triple.Patient] = true
	}
	livesSaved := len(assignments)

	var unassigned []uuid.UUID
	for pIdx, patient := range patients {
		if assigned[models.PatientIndex(pIdx)] {
			continue
		}
		assignments = append(assignments, urgentFallback(patient, now))
		unassigned = append(unassigned, patient.ID)
	}

	o.log.WithFields(logrus.Fields{
		"component":       "optimize",
		"feasible":        len(fs.triples),
		"max_lives_saved": livesSaved,
		"unassigned":      len(unassigned),
	}).Debug("assembled optimization result")

	return models.OptimizationResult{
		Assignments:          assignments,
		UnassignedPatientIDs: unassigned,
		MaxLivesSaved:        livesSaved,
		CapacityShortfall:    capacityShortfall,
		AmbulanceShortfall:   ambulanceShortfall,
	}
}

// allUrgent emits the fallback result when nothing is feasible.
func (o *Optimizer) allUrgent(patients []models.Patient, capacityShortfall, ambulanceShortfall int, now time.Time) models.OptimizationResult {
	result := models.OptimizationResult{
		CapacityShortfall:  capacityShortfall,
		AmbulanceShortfall: ambulanceShortfall,
	}
	for _, p := range patients {
		result.Assignments = append(result.Assignments, urgentFallback(p, now))
		result.UnassignedPatientIDs = append(result.UnassignedPatientIDs, p.ID)
	}
	return result
}

// urgentFallback builds the placeholder row for a patient the optimizer could
// not place. Slack carries the full deadline: no transport is scheduled.
func urgentFallback(p models.Patient, now time.Time) models.PatientAssignment {
	slack := p.TimeToHospitalMinutes
	return models.PatientAssignment{
		PatientID:                p.ID,
		DeadlineSlackMinutes:     &slack,
		TreatmentDeadlineMinutes: p.TimeToHospitalMinutes,
		PatientRegisteredAt:      p.RegisteredAt,
		RequiresUrgentTransport:  true,
		OptimizedAt:              now,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
