// Package routes builds travel-time matrices from a remote routing oracle.
package routes

import (
	"context"
	"time"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lon float64
}

// Element is one origin/destination record returned by the oracle. Indices
// are relative to the request the element belongs to.
type Element struct {
	OriginIndex      int
	DestinationIndex int
	StatusCode       int
	Duration         time.Duration
}

// Oracle computes a single route-matrix request. Implementations must respect
// the context; the caller handles chunking and element limits.
type Oracle interface {
	ComputeRouteMatrix(ctx context.Context, origins, destinations []LatLng, departure time.Time) ([]Element, error)
}
