package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dhcsousa/hospitopt/internal/models"
)

// DBIngestor reads inputs directly from the shared store. Rows are ordered by
// id so a tick always observes a stable sequence.
type DBIngestor struct {
	db *sql.DB
}

func NewDBIngestor(db *sql.DB) *DBIngestor {
	return &DBIngestor{db: db}
}

func (d *DBIngestor) Hospitals(ctx context.Context) ([]models.Hospital, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, bed_capacity, used_beds, lat, lon FROM hospitals ORDER BY id LIMIT $1`,
		pageLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query hospitals: %w", err)
	}
	defer rows.Close()

	var hospitals []models.Hospital
	for rows.Next() {
		var h models.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.BedCapacity, &h.UsedBeds, &h.Lat, &h.Lon); err != nil {
			return nil, fmt.Errorf("scan hospital: %w", err)
		}
		hospitals = append(hospitals, h)
	}
	return hospitals, rows.Err()
}

func (d *DBIngestor) Patients(ctx context.Context) ([]models.Patient, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, lat, lon, time_to_hospital_minutes, registered_at FROM patients ORDER BY id LIMIT $1`,
		pageLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lon, &p.TimeToHospitalMinutes, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (d *DBIngestor) Ambulances(ctx context.Context) ([]models.Ambulance, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, lat, lon, assigned_patient_id FROM ambulances ORDER BY id LIMIT $1`,
		pageLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query ambulances: %w", err)
	}
	defer rows.Close()

	var ambulances []models.Ambulance
	for rows.Next() {
		var a models.Ambulance
		if err := rows.Scan(&a.ID, &a.Lat, &a.Lon, &a.AssignedPatientID); err != nil {
			return nil, fmt.Errorf("scan ambulance: %w", err)
		}
		ambulances = append(ambulances, a)
	}
	return ambulances, rows.Err()
}
