// Package worker drives the optimization pipeline on a fixed interval: fetch
// inputs, fingerprint them, solve on change, publish atomically.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dhcsousa/hospitopt/internal/fingerprint"
	"github.com/dhcsousa/hospitopt/internal/ingest"
	"github.com/dhcsousa/hospitopt/internal/models"
)

// FatalError aborts the loop; everything else is transient and retried on
// the next tick.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Optimizer runs one solve over a validated input snapshot.
type Optimizer interface {
	Optimize(ctx context.Context, hospitals []models.Hospital, patients []models.Patient, ambulances []models.Ambulance) (models.OptimizationResult, error)
}

// ResultWriter publishes a result to the shared store.
type ResultWriter interface {
	WriteOptimizationResult(ctx context.Context, result models.OptimizationResult) error
}

type Worker struct {
	ingestor  ingest.Ingestor
	optimizer Optimizer
	writer    ResultWriter
	interval  time.Duration
	log       *logrus.Logger

	lastHash string
	tick     uint64
}

func New(ingestor ingest.Ingestor, optimizer Optimizer, writer ResultWriter, interval time.Duration, log *logrus.Logger) *Worker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{
		ingestor:  ingestor,
		optimizer: optimizer,
		writer:    writer,
		interval:  interval,
		log:       log,
	}
}

// Run loops until the context is cancelled. Cancellation is honored at the
// sleep and, cooperatively, inside in-flight external calls. A clean
// cancellation returns nil; only a FatalError from a tick propagates.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.RunOnce(ctx); err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				w.log.WithField("component", "worker").WithError(fatal.Err).Error("fatal error, stopping")
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithField("component", "worker").WithError(err).Warn("tick failed, retrying next interval")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.interval):
		}
	}
}

// RunOnce executes a single tick. The fingerprint only advances when the
// tick's outcome is durable: either a successful publish or a logged skip on
// empty inputs. Transient failures leave it untouched so the next tick
// retries the same inputs.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.tick++
	tickCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	log := w.log.WithFields(logrus.Fields{"component": "worker", "tick": w.tick})

	hospitals, err := w.ingestor.Hospitals(tickCtx)
	if err != nil {
		return err
	}
	patients, err := w.ingestor.Patients(tickCtx)
	if err != nil {
		return err
	}
	ambulances, err := w.ingestor.Ambulances(tickCtx)
	if err != nil {
		return err
	}

	hospitals = validHospitals(log, hospitals)
	patients = validPatients(log, patients)
	ambulances = validAmbulances(log, ambulances)

	currentHash, err := fingerprint.Compute(hospitals, patients, ambulances)
	if err != nil {
		return err
	}
	log = log.WithField("hash", currentHash[:8])

	if currentHash == w.lastHash {
		log.Debug("no input changes detected, skipping optimization")
		return nil
	}

	if len(hospitals) == 0 || len(patients) == 0 || len(ambulances) == 0 {
		log.WithFields(logrus.Fields{
			"hospitals":  len(hospitals),
			"patients":   len(patients),
			"ambulances": len(ambulances),
		}).Info("skipping optimization due to missing inputs")
		// Advance anyway so a persistently empty state logs once.
		w.lastHash = currentHash
		return nil
	}

	result, err := w.optimizer.Optimize(tickCtx, hospitals, patients, ambulances)
	if err != nil {
		return err
	}
	if err := w.writer.WriteOptimizationResult(tickCtx, result); err != nil {
		return err
	}
	w.lastHash = currentHash

	log.WithFields(logrus.Fields{
		"max_lives_saved":     result.MaxLivesSaved,
		"unassigned":          len(result.UnassignedPatientIDs),
		"capacity_shortfall":  result.CapacityShortfall,
		"ambulance_shortfall": result.AmbulanceShortfall,
	}).Info("optimization complete")
	return nil
}

// ---------------------------------------------------------------------------
// Record validation — data-quality errors drop the row, never the tick
// ---------------------------------------------------------------------------

func validHospitals(log *logrus.Entry, hospitals []models.Hospital) []models.Hospital {
	valid := hospitals[:0:0]
	for _, h := range hospitals {
		if err := h.Validate(); err != nil {
			log.WithError(err).Warn("dropping invalid hospital record")
			continue
		}
		valid = append(valid, h)
	}
	return valid
}

func validPatients(log *logrus.Entry, patients []models.Patient) []models.Patient {
	valid := patients[:0:0]
	for _, p := range patients {
		if err := p.Validate(); err != nil {
			log.WithError(err).Warn("dropping invalid patient record")
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

func validAmbulances(log *logrus.Entry, ambulances []models.Ambulance) []models.Ambulance {
	valid := ambulances[:0:0]
	for _, a := range ambulances {
		if err := a.Validate(); err != nil {
			log.WithError(err).Warn("dropping invalid ambulance record")
			continue
		}
		valid = append(valid, a)
	}
	return valid
}
