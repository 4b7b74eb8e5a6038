// Package solver formulates and solves the 0/1 assignment program over the
// feasible triples.
package solver

import (
	"errors"
	"fmt"

	"github.com/dhcsousa/hospitopt/internal/config"
	"github.com/dhcsousa/hospitopt/internal/models"
)

var ErrUnknownBackend = errors.New("no usable MILP backend")

// Triple identifies one candidate (patient, ambulance, hospital) match by
// run-local indices.
type Triple struct {
	Patient   models.PatientIndex
	Ambulance models.AmbulanceIndex
	Hospital  models.HospitalIndex
}

// Problem is a fully materialized assignment program. Triples and Weights are
// parallel slices; their order fixes the variable order, which keeps the
// backend deterministic for identical inputs.
type Problem struct {
	Triples []Triple
	Weights []float64

	PatientCount   int
	AmbulanceCount int
	HospitalCount  int

	// FreeBeds holds remaining capacity per hospital index.
	FreeBeds []int
}

// Solution lists the chosen triples as offsets into Problem.Triples.
type Solution struct {
	Chosen         []int
	ObjectiveValue float64
}

// Solver maximizes total weight subject to at-most-once constraints per
// patient and ambulance and free-bed capacity per hospital.
type Solver interface {
	Solve(p Problem) (Solution, error)
}

// New selects a backend by name. An unrecognized backend is a configuration
// error: the pipeline cannot run without a MILP solver.
func New(backend string) (Solver, error) {
	switch backend {
	case config.SolverBackendGLPK:
		return &glpkSolver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
