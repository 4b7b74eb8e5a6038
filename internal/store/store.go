// Package store owns the shared-store side of the worker: connection pool,
// health checks and atomic publication of optimization results.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dhcsousa/hospitopt/internal/config"
	"github.com/dhcsousa/hospitopt/internal/models"
)

type Store struct {
	db *sql.DB
}

// Open connects to the shared store and verifies the connection.
func Open(cfg config.DBConnection) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests and the API server.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CheckConnection sanity checks the store before the loop starts.
func (s *Store) CheckConnection(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("check connection: %w", err)
	}
	return nil
}

// WriteOptimizationResult replaces the assignment rows for every patient in
// the result within a single transaction. An empty result is a no-op so a
// degenerate tick can never wipe existing rows. Any failure rolls the whole
// publish back.
func (s *Store) WriteOptimizationResult(ctx context.Context, result models.OptimizationResult) error {
	if len(result.Assignments) == 0 {
		return nil
	}

	patientIDs := make([]uuid.UUID, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		patientIDs = append(patientIDs, a.PatientID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM patient_assignments WHERE patient_id = ANY($1)`,
		pq.Array(patientIDs),
	); err != nil {
		return fmt.Errorf("delete previous assignments: %w", err)
	}

	for _, a := range result.Assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO patient_assignments
			   (id, patient_id, hospital_id, ambulance_id, travel_time_minutes,
			    time_left_minutes, time_to_hospital_minutes, patient_registered_at,
			    requires_urgent_transport, optimized_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), a.PatientID, a.HospitalID, a.AmbulanceID, a.EstimatedTravelMinutes,
			a.DeadlineSlackMinutes, a.TreatmentDeadlineMinutes, a.PatientRegisteredAt.UTC(),
			a.RequiresUrgentTransport, a.OptimizedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert assignment for patient %s: %w", a.PatientID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}
