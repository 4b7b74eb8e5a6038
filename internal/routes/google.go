package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultGoogleBaseURL = "https://routes.googleapis.com"

// fieldMask limits the response to what the builder consumes. Requests
// without a mask are rejected by the Routes API.
const fieldMask = "originIndex,destinationIndex,status,condition,duration"

// GoogleClient calls the Routes API computeRouteMatrix REST endpoint.
type GoogleClient struct {
	baseURL           string
	apiKey            string
	travelMode        string
	routingPreference string
	client            *http.Client
}

// GoogleOption tweaks client construction; used by tests to point at a fake
// endpoint.
type GoogleOption func(*GoogleClient)

func WithBaseURL(u string) GoogleOption {
	return func(c *GoogleClient) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) GoogleOption {
	return func(c *GoogleClient) { c.client = h }
}

func NewGoogleClient(apiKey, travelMode, routingPreference string, opts ...GoogleOption) *GoogleClient {
	c := &GoogleClient{
		baseURL:           defaultGoogleBaseURL,
		apiKey:            apiKey,
		travelMode:        travelMode,
		routingPreference: routingPreference,
		client:            &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type latLngBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type waypointBody struct {
	Waypoint struct {
		Location struct {
			LatLng latLngBody `json:"latLng"`
		} `json:"location"`
	} `json:"waypoint"`
}

type matrixRequest struct {
	Origins           []waypointBody `json:"origins"`
	Destinations      []waypointBody `json:"destinations"`
	TravelMode        string         `json:"travelMode"`
	RoutingPreference string         `json:"routingPreference"`
	DepartureTime     string         `json:"departureTime"`
}

type matrixElement struct {
	OriginIndex      int    `json:"originIndex"`
	DestinationIndex int    `json:"destinationIndex"`
	Condition        string `json:"condition"`
	Duration         string `json:"duration"`
	Status           struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

func waypoints(coords []LatLng) []waypointBody {
	out := make([]waypointBody, len(coords))
	for i, c := range coords {
		out[i].Waypoint.Location.LatLng = latLngBody{Latitude: c.Lat, Longitude: c.Lon}
	}
	return out
}

func (c *GoogleClient) ComputeRouteMatrix(ctx context.Context, origins, destinations []LatLng, departure time.Time) ([]Element, error) {
	body, err := json.Marshal(matrixRequest{
		Origins:           waypoints(origins),
		Destinations:      waypoints(destinations),
		TravelMode:        c.travelMode,
		RoutingPreference: c.routingPreference,
		DepartureTime:     departure.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encode route matrix request: %w", err)
	}

	url := c.baseURL + "/distanceMatrix/v2:computeRouteMatrix"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build route matrix request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route matrix request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read route matrix response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("route matrix request: status %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	var raw []matrixElement
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode route matrix response: %w", err)
	}

	elements := make([]Element, 0, len(raw))
	for _, e := range raw {
		el := Element{
			OriginIndex:      e.OriginIndex,
			DestinationIndex: e.DestinationIndex,
			StatusCode:       e.Status.Code,
		}
		if e.Duration != "" {
			d, err := time.ParseDuration(e.Duration)
			if err != nil {
				return nil, fmt.Errorf("parse duration %q: %w", e.Duration, err)
			}
			el.Duration = d
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
