package optimize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcsousa/hospitopt/internal/models"
	"github.com/dhcsousa/hospitopt/internal/solver"
)

// fixedTables serves pre-built minute tables instead of calling the oracle.
type fixedTables struct {
	tables models.MinutesTables
	err    error
}

func (f fixedTables) MinutesTables(ctx context.Context, patients []models.Patient, hospitals []models.Hospital, ambulances []models.Ambulance) (models.MinutesTables, error) {
	return f.tables, f.err
}

func glpkSolverForTest(t *testing.T) solver.Solver {
	t.Helper()
	s, err := solver.New("glpk")
	require.NoError(t, err)
	return s
}

func tables(ap map[models.AmbulancePatientKey]int, ph map[models.PatientHospitalKey]int) models.MinutesTables {
	if ap == nil {
		ap = map[models.AmbulancePatientKey]int{}
	}
	if ph == nil {
		ph = map[models.PatientHospitalKey]int{}
	}
	return models.MinutesTables{AmbulanceToPatient: ap, PatientToHospital: ph}
}

func hospital(capacity, used int) models.Hospital {
	return models.Hospital{ID: uuid.New(), BedCapacity: capacity, UsedBeds: used, Lat: 38.7, Lon: -9.1}
}

func patient(deadline int) models.Patient {
	return models.Patient{ID: uuid.New(), Lat: 38.71, Lon: -9.11, TimeToHospitalMinutes: deadline, RegisteredAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func ambulance() models.Ambulance {
	return models.Ambulance{ID: uuid.New(), Lat: 38.69, Lon: -9.09}
}

func TestOptimizeSingleFeasibleMatch(t *testing.T) {
	h := hospital(1, 0)
	p := patient(20)
	a := ambulance()

	src := fixedTables{tables: tables(
		map[models.AmbulancePatientKey]int{{Ambulance: 0, Patient: 0}: 5},
		map[models.PatientHospitalKey]int{{Patient: 0, Hospital: 0}: 5},
	)}
	o := New(src, glpkSolverForTest(t), nil, WithSpeedFactor(1.0))

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p}, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	got := result.Assignments[0]
	assert.Equal(t, p.ID, got.PatientID)
	require.NotNil(t, got.HospitalID)
	assert.Equal(t, h.ID, *got.HospitalID)
	require.NotNil(t, got.AmbulanceID)
	assert.Equal(t, a.ID, *got.AmbulanceID)
	require.NotNil(t, got.EstimatedTravelMinutes)
	assert.Equal(t, 10, *got.EstimatedTravelMinutes)
	require.NotNil(t, got.DeadlineSlackMinutes)
	assert.Equal(t, 10, *got.DeadlineSlackMinutes)
	assert.False(t, got.RequiresUrgentTransport)

	assert.Equal(t, 1, result.MaxLivesSaved)
	assert.Empty(t, result.UnassignedPatientIDs)
	assert.Equal(t, 0, result.CapacityShortfall)
	assert.Equal(t, 0, result.AmbulanceShortfall)
}

func TestOptimizeOverCapacityHospital(t *testing.T) {
	h := hospital(1, 1)
	p := patient(20)
	a := ambulance()

	src := fixedTables{tables: tables(
		map[models.AmbulancePatientKey]int{{Ambulance: 0, Patient: 0}: 5},
		map[models.PatientHospitalKey]int{{Patient: 0, Hospital: 0}: 5},
	)}
	o := New(src, glpkSolverForTest(t), nil, WithSpeedFactor(1.0))

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p}, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	got := result.Assignments[0]
	assert.True(t, got.RequiresUrgentTransport)
	assert.Nil(t, got.HospitalID)
	assert.Nil(t, got.AmbulanceID)
	require.NotNil(t, got.DeadlineSlackMinutes)
	assert.Equal(t, 20, *got.DeadlineSlackMinutes, "urgent rows carry the full deadline as slack")

	assert.Equal(t, 0, result.MaxLivesSaved)
	assert.Equal(t, []uuid.UUID{p.ID}, result.UnassignedPatientIDs)
	assert.Equal(t, 1, result.CapacityShortfall, "one patient, zero free beds")
}

func TestOptimizeUrgencyPrioritization(t *testing.T) {
	h := hospital(1, 0)
	p0 := patient(20)
	p1 := patient(50)
	a := ambulance()

	// Travel after a 1.0 speed factor: p0 -> 18, p1 -> 12.
	src := fixedTables{tables: tables(
		map[models.AmbulancePatientKey]int{
			{Ambulance: 0, Patient: 0}: 9,
			{Ambulance: 0, Patient: 1}: 6,
		},
		map[models.PatientHospitalKey]int{
			{Patient: 0, Hospital: 0}: 9,
			{Patient: 1, Hospital: 0}: 6,
		},
	)}
	o := New(src, glpkSolverForTest(t), nil, WithSpeedFactor(1.0))

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p0, p1}, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 2)
	byPatient := map[uuid.UUID]models.PatientAssignment{}
	for _, got := range result.Assignments {
		byPatient[got.PatientID] = got
	}

	winner := byPatient[p0.ID]
	assert.False(t, winner.RequiresUrgentTransport, "slack 2 outweighs slack 38")
	require.NotNil(t, winner.EstimatedTravelMinutes)
	assert.Equal(t, 18, *winner.EstimatedTravelMinutes)
	require.NotNil(t, winner.DeadlineSlackMinutes)
	assert.Equal(t, 2, *winner.DeadlineSlackMinutes)

	loser := byPatient[p1.ID]
	assert.True(t, loser.RequiresUrgentTransport)
	assert.Equal(t, []uuid.UUID{p1.ID}, result.UnassignedPatientIDs)
	assert.Equal(t, 1, result.MaxLivesSaved)
}

func TestOptimizeNoFeasibleTriples(t *testing.T) {
	h := hospital(3, 0)
	p0 := patient(5)
	p1 := patient(8)
	a := ambulance()

	// Travel times exceed every deadline.
	src := fixedTables{tables: tables(
		map[models.AmbulancePatientKey]int{
			{Ambulance: 0, Patient: 0}: 30,
			{Ambulance: 0, Patient: 1}: 30,
		},
		map[models.PatientHospitalKey]int{
			{Patient: 0, Hospital: 0}: 30,
			{Patient: 1, Hospital: 0}: 30,
		},
	)}
	o := New(src, glpkSolverForTest(t), nil)

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p0, p1}, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 2)
	for _, got := range result.Assignments {
		assert.True(t, got.RequiresUrgentTransport)
	}
	assert.ElementsMatch(t, []uuid.UUID{p0.ID, p1.ID}, result.UnassignedPatientIDs)
	assert.Equal(t, 0, result.MaxLivesSaved)
	assert.Equal(t, 1, result.AmbulanceShortfall, "two patients, one ambulance")
}

func TestOptimizeSpeedFactorRounding(t *testing.T) {
	h := hospital(1, 0)
	p := patient(11)
	a := ambulance()

	// Raw 13 minutes at the default 1.3 speed factor rounds to 10.
	src := fixedTables{tables: tables(
		map[models.AmbulancePatientKey]int{{Ambulance: 0, Patient: 0}: 6},
		map[models.PatientHospitalKey]int{{Patient: 0, Hospital: 0}: 7},
	)}
	o := New(src, glpkSolverForTest(t), nil)

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p}, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	got := result.Assignments[0]
	assert.False(t, got.RequiresUrgentTransport)
	require.NotNil(t, got.EstimatedTravelMinutes)
	assert.Equal(t, 10, *got.EstimatedTravelMinutes)
	require.NotNil(t, got.DeadlineSlackMinutes)
	assert.Equal(t, 1, *got.DeadlineSlackMinutes)
}

func TestOptimizeZeroSlackIsInfeasible(t *testing.T) {
	h := hospital(1, 0)
	p := patient(10)
	a := ambulance()

	src := fixedTables{tables: tables(
		map[models.AmbulancePatientKey]int{{Ambulance: 0, Patient: 0}: 5},
		map[models.PatientHospitalKey]int{{Patient: 0, Hospital: 0}: 5},
	)}
	o := New(src, glpkSolverForTest(t), nil, WithSpeedFactor(1.0))

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p}, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	assert.True(t, result.Assignments[0].RequiresUrgentTransport, "arriving exactly at the deadline is rejected")
}

func TestOptimizeMissingPairIsInfeasible(t *testing.T) {
	h := hospital(1, 0)
	p := patient(60)
	a := ambulance()

	// Oracle found no ambulance->patient route.
	src := fixedTables{tables: tables(
		nil,
		map[models.PatientHospitalKey]int{{Patient: 0, Hospital: 0}: 5},
	)}
	o := New(src, glpkSolverForTest(t), nil)

	result, err := o.Optimize(context.Background(), []models.Hospital{h}, []models.Patient{p}, []models.Ambulance{a})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.True(t, result.Assignments[0].RequiresUrgentTransport)
}

func TestOptimizeCoverage(t *testing.T) {
	// Five patients, one feasible: every patient still gets exactly one row.
	h := hospital(10, 0)
	a := ambulance()
	patients := []models.Patient{patient(30), patient(4), patient(4), patient(4), patient(4)}

	ap := map[models.AmbulancePatientKey]int{}
	ph := map[models.PatientHospitalKey]int{}
	for i := range patients {
		ap[models.AmbulancePatientKey{Ambulance: 0, Patient: models.PatientIndex(i)}] = 5
		ph[models.PatientHospitalKey{Patient: models.PatientIndex(i), Hospital: 0}] = 5
	}

	o := New(fixedTables{tables: tables(ap, ph)}, glpkSolverForTest(t), nil, WithSpeedFactor(1.0))
	result, err := o.Optimize(context.Background(), []models.Hospital{h}, patients, []models.Ambulance{a})
	require.NoError(t, err)

	require.Len(t, result.Assignments, len(patients))
	seen := map[uuid.UUID]int{}
	for _, got := range result.Assignments {
		seen[got.PatientID]++
	}
	for _, p := range patients {
		assert.Equal(t, 1, seen[p.ID], "patient %s must appear exactly once", p.ID)
	}
	assert.Equal(t, 1, result.MaxLivesSaved)
	assert.Len(t, result.UnassignedPatientIDs, 4)
}

func TestOptimizeMatrixFailureAbortsTick(t *testing.T) {
	src := fixedTables{err: errors.New("quota exceeded")}
	o := New(src, glpkSolverForTest(t), nil)

	_, err := o.Optimize(context.Background(),
		[]models.Hospital{hospital(1, 0)}, []models.Patient{patient(20)}, []models.Ambulance{ambulance()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestOptimizeDeadlineRespected(t *testing.T) {
	// Mixed feasibility: assert the universal deadline property on output.
	h := hospital(5, 0)
	a0, a1 := ambulance(), ambulance()
	patients := []models.Patient{patient(15), patient(9), patient(40)}

	ap := map[models.AmbulancePatientKey]int{}
	ph := map[models.PatientHospitalKey]int{}
	for ai := 0; ai < 2; ai++ {
		for pi := range patients {
			ap[models.AmbulancePatientKey{Ambulance: models.AmbulanceIndex(ai), Patient: models.PatientIndex(pi)}] = 4 + pi
		}
	}
	for pi := range patients {
		ph[models.PatientHospitalKey{Patient: models.PatientIndex(pi), Hospital: 0}] = 4 + pi
	}

	o := New(fixedTables{tables: tables(ap, ph)}, glpkSolverForTest(t), nil, WithSpeedFactor(1.0))
	result, err := o.Optimize(context.Background(), []models.Hospital{h}, patients, []models.Ambulance{a0, a1})
	require.NoError(t, err)

	for _, got := range result.Assignments {
		if got.RequiresUrgentTransport {
			continue
		}
		require.NotNil(t, got.EstimatedTravelMinutes)
		require.NotNil(t, got.DeadlineSlackMinutes)
		assert.Less(t, *got.EstimatedTravelMinutes, got.TreatmentDeadlineMinutes)
		assert.Greater(t, *got.DeadlineSlackMinutes, 0)
	}
}
