package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcsousa/hospitopt/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

var solvedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleResult(n int) models.OptimizationResult {
	var result models.OptimizationResult
	for i := 0; i < n; i++ {
		hospitalID := uuid.New()
		ambulanceID := uuid.New()
		travel := 10 + i
		slack := 5 + i
		result.Assignments = append(result.Assignments, models.PatientAssignment{
			PatientID:                uuid.New(),
			HospitalID:               &hospitalID,
			AmbulanceID:              &ambulanceID,
			EstimatedTravelMinutes:   &travel,
			DeadlineSlackMinutes:     &slack,
			TreatmentDeadlineMinutes: 30,
			PatientRegisteredAt:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			OptimizedAt:              solvedAt,
		})
	}
	return result
}

// insertArgs matches one full insert row: surrogate id first, the nine
// assignment columns after.
func insertArgs(a models.PatientAssignment) []driver.Value {
	args := []driver.Value{sqlmock.AnyArg(), a.PatientID}
	for _, id := range []*uuid.UUID{a.HospitalID, a.AmbulanceID} {
		if id == nil {
			args = append(args, nil)
		} else {
			args = append(args, *id)
		}
	}
	for _, n := range []*int{a.EstimatedTravelMinutes, a.DeadlineSlackMinutes} {
		if n == nil {
			args = append(args, nil)
		} else {
			args = append(args, *n)
		}
	}
	return append(args, a.TreatmentDeadlineMinutes, a.PatientRegisteredAt.UTC(),
		a.RequiresUrgentTransport, a.OptimizedAt.UTC())
}

func TestWriteOptimizationResult(t *testing.T) {
	t.Run("delete and inserts run in one transaction", func(t *testing.T) {
		s, mock := newMockStore(t)
		result := sampleResult(2)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM patient_assignments`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 2))
		for _, a := range result.Assignments {
			mock.ExpectExec(`INSERT INTO patient_assignments`).
				WithArgs(insertArgs(a)...).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		require.NoError(t, s.WriteOptimizationResult(context.Background(), result))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rows carry the optimizer timestamp", func(t *testing.T) {
		s, mock := newMockStore(t)
		result := sampleResult(1)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM patient_assignments`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO patient_assignments`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), solvedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.WriteOptimizationResult(context.Background(), result))
		assert.NoError(t, mock.ExpectationsWereMet(), "optimized_at must come from the result, not a store clock")
	})

	t.Run("empty result is a no-op", func(t *testing.T) {
		s, mock := newMockStore(t)

		require.NoError(t, s.WriteOptimizationResult(context.Background(), models.OptimizationResult{}))
		assert.NoError(t, mock.ExpectationsWereMet(), "no statements may reach the store")
	})

	t.Run("insert failure rolls everything back", func(t *testing.T) {
		s, mock := newMockStore(t)
		result := sampleResult(2)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM patient_assignments`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`INSERT INTO patient_assignments`).
			WithArgs(insertArgs(result.Assignments[0])...).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO patient_assignments`).
			WithArgs(insertArgs(result.Assignments[1])...).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.WriteOptimizationResult(context.Background(), result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), result.Assignments[1].PatientID.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete failure aborts before any insert", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM patient_assignments`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		err := s.WriteOptimizationResult(context.Background(), sampleResult(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete previous assignments")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("urgent fallback rows insert nil ids", func(t *testing.T) {
		s, mock := newMockStore(t)
		slack := 25
		result := models.OptimizationResult{Assignments: []models.PatientAssignment{{
			PatientID:                uuid.New(),
			DeadlineSlackMinutes:     &slack,
			TreatmentDeadlineMinutes: 25,
			PatientRegisteredAt:      time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
			RequiresUrgentTransport:  true,
			OptimizedAt:              solvedAt,
		}}}

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM patient_assignments`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO patient_assignments`).
			WithArgs(sqlmock.AnyArg(), result.Assignments[0].PatientID, nil, nil, nil,
				25, 25, result.Assignments[0].PatientRegisteredAt.UTC(),
				true, solvedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.WriteOptimizationResult(context.Background(), result))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckConnection(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	require.NoError(t, s.CheckConnection(context.Background()))

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("connection refused"))
	err := s.CheckConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check connection")
}
