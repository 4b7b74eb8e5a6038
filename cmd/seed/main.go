// Command seed fills the shared store with demo hospitals, patients and
// ambulances scattered around a center coordinate.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/dhcsousa/hospitopt/internal/config"
)

const schemaFile = "migrations/0001_init.sql"

type seedConfig struct {
	hospitals  int
	patients   int
	ambulances int
	centerLat  float64
	centerLon  float64
	spreadKm   float64
	wipe       bool
	initSchema bool
}

func main() {
	var sc seedConfig
	flag.IntVar(&sc.hospitals, "hospitals", 5, "number of hospitals to create")
	flag.IntVar(&sc.patients, "patients", 20, "number of patients to create")
	flag.IntVar(&sc.ambulances, "ambulances", 10, "number of ambulances to create")
	flag.Float64Var(&sc.centerLat, "center-lat", 38.7223, "center latitude")
	flag.Float64Var(&sc.centerLon, "center-lon", -9.1393, "center longitude")
	flag.Float64Var(&sc.spreadKm, "spread-km", 15, "max offset from center in km")
	flag.BoolVar(&sc.wipe, "wipe", false, "delete existing rows first")
	flag.BoolVar(&sc.initSchema, "init-schema", false, "apply migrations/0001_init.sql before seeding")
	flag.Parse()

	if err := run(sc); err != nil {
		logrus.WithError(err).Error("seed failed")
		os.Exit(1)
	}
}

func run(sc seedConfig) error {
	configPath := os.Getenv("WORKER_CONFIG_FILE_PATH")
	if configPath == "" {
		return fmt.Errorf("WORKER_CONFIG_FILE_PATH environment variable is not set")
	}
	cfg, err := config.LoadWorker(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DBConnection.ConnectionString())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if sc.initSchema {
		schema, err := os.ReadFile(schemaFile)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		if _, err := db.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		logrus.Info("schema applied")
	}

	if sc.wipe {
		for _, table := range []string{"patient_assignments", "patients", "ambulances", "hospitals"} {
			if _, err := db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
		}
		logrus.Info("existing rows wiped")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 1; i <= sc.hospitals; i++ {
		dlat, dlon := randomOffsetDegrees(rng, sc.spreadKm)
		capacity := 40 + rng.Intn(111)
		used := rng.Intn(capacity + 1)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO hospitals (id, name, bed_capacity, used_beds, lat, lon) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), fmt.Sprintf("Hospital %d", i), capacity, used, sc.centerLat+dlat, sc.centerLon+dlon,
		); err != nil {
			return fmt.Errorf("insert hospital: %w", err)
		}
	}

	for i := 0; i < sc.patients; i++ {
		dlat, dlon := randomOffsetDegrees(rng, sc.spreadKm)
		registeredAt := time.Now().UTC().Add(-time.Duration(rng.Intn(91)) * time.Minute)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO patients (id, lat, lon, time_to_hospital_minutes, registered_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), sc.centerLat+dlat, sc.centerLon+dlon, 10+rng.Intn(51), registeredAt,
		); err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
	}

	for i := 0; i < sc.ambulances; i++ {
		dlat, dlon := randomOffsetDegrees(rng, sc.spreadKm)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO ambulances (id, lat, lon, assigned_patient_id) VALUES ($1, $2, $3, NULL)`,
			uuid.New(), sc.centerLat+dlat, sc.centerLon+dlon,
		); err != nil {
			return fmt.Errorf("insert ambulance: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"hospitals":  sc.hospitals,
		"patients":   sc.patients,
		"ambulances": sc.ambulances,
	}).Info("seed complete")
	return nil
}

// randomOffsetDegrees converts a km spread to rough lat/lon degree offsets
// (1 degree of latitude ~ 111 km).
func randomOffsetDegrees(rng *rand.Rand, spreadKm float64) (float64, float64) {
	dlat := (rng.Float64()*2 - 1) * spreadKm / 111.0
	dlon := (rng.Float64()*2 - 1) * spreadKm / 111.0
	return dlat, dlon
}
