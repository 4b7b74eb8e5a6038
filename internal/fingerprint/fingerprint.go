// Package fingerprint derives a canonical hash of the optimizer inputs so the
// worker can skip ticks whose inputs are unchanged.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dhcsousa/hospitopt/internal/models"
)

// Compute hashes the triple of input collections. The result is independent
// of the order elements arrive in: each collection is sorted by id and
// serialized to JSON with sorted keys before hashing.
func Compute(hospitals []models.Hospital, patients []models.Patient, ambulances []models.Ambulance) (string, error) {
	payload := map[string]any{
		"hospitals":  canonicalHospitals(hospitals),
		"patients":   canonicalPatients(patients),
		"ambulances": canonicalAmbulances(ambulances),
	}

	// encoding/json writes map keys in sorted order, which gives the
	// canonical form at every nesting level.
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode fingerprint payload: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalHospitals(hospitals []models.Hospital) []map[string]any {
	sorted := make([]models.Hospital, len(hospitals))
	copy(sorted, hospitals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	out := make([]map[string]any, 0, len(sorted))
	for _, h := range sorted {
		out = append(out, map[string]any{
			"id":           h.ID.String(),
			"name":         h.Name,
			"bed_capacity": h.BedCapacity,
			"used_beds":    h.UsedBeds,
			"lat":          h.Lat,
			"lon":          h.Lon,
		})
	}
	return out
}

func canonicalPatients(patients []models.Patient) []map[string]any {
	sorted := make([]models.Patient, len(patients))
	copy(sorted, patients)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	out := make([]map[string]any, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, map[string]any{
			"id":                       p.ID.String(),
			"lat":                      p.Lat,
			"lon":                      p.Lon,
			"time_to_hospital_minutes": p.TimeToHospitalMinutes,
			"registered_at":            canonicalTime(p.RegisteredAt),
		})
	}
	return out
}

func canonicalAmbulances(ambulances []models.Ambulance) []map[string]any {
	sorted := make([]models.Ambulance, len(ambulances))
	copy(sorted, ambulances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	out := make([]map[string]any, 0, len(sorted))
	for _, a := range sorted {
		var assigned *string
		if a.AssignedPatientID != nil {
			s := a.AssignedPatientID.String()
			assigned = &s
		}
		out = append(out, map[string]any{
			"id":                  a.ID.String(),
			"lat":                 a.Lat,
			"lon":                 a.Lon,
			"assigned_patient_id": assigned,
		})
	}
	return out
}

// canonicalTime normalizes timestamps to UTC RFC3339 with nanoseconds so the
// serialization never depends on the source zone or formatting locale.
func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
