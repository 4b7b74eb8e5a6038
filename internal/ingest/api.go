package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhcsousa/hospitopt/internal/models"
)

// APIIngestor reads inputs from the read-only REST surface using a static
// bearer credential.
type APIIngestor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewAPIIngestor(host, apiKey string) *APIIngestor {
	return &APIIngestor{
		baseURL: strings.TrimRight(host, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *APIIngestor) Hospitals(ctx context.Context) ([]models.Hospital, error) {
	var out []models.Hospital
	if err := a.get(ctx, "/hospitals", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *APIIngestor) Patients(ctx context.Context) ([]models.Patient, error) {
	var out []models.Patient
	if err := a.get(ctx, "/patients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *APIIngestor) Ambulances(ctx context.Context) ([]models.Ambulance, error) {
	var out []models.Ambulance
	if err := a.get(ctx, "/ambulances", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get fetches a resource and decodes either an {"items": [...]} page envelope
// or a bare JSON array into out.
func (a *APIIngestor) get(ctx context.Context, path string, out any) error {
	u := fmt.Sprintf("%s%s?limit=%s", a.baseURL, path, url.QueryEscape(fmt.Sprint(pageLimit)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}

	var envelope struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Items != nil {
		body = envelope.Items
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
