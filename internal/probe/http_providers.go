package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// httpClient is shared by the HTTP-backed providers. Per-call deadlines
// come from the probe context; this timeout is a hard backstop.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func getJSON(ctx context.Context, rawURL, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HTTPReputationProvider looks up sanctions and labels from a
// reputation-list API.
type HTTPReputationProvider struct {
	BaseURL string
	APIKey  string
}

func (p *HTTPReputationProvider) Name() string { return "reputation-api" }

// Lookup fetches labels for an address.
func (p *HTTPReputationProvider) Lookup(ctx context.Context, address, network string) (*ReputationPayload, error) {
	u := fmt.Sprintf("%s/v1/address/%s/labels?network=%s",
		p.BaseURL, url.PathEscape(address), url.QueryEscape(network))

	var payload ReputationPayload
	if err := getJSON(ctx, u, p.APIKey, &payload); err != nil {
		return nil, fmt.Errorf("reputation lookup: %w", err)
	}
	if payload.Level == "" {
		payload.Level = LevelNeutral
	}
	return &payload, nil
}

// HTTPMixerProvider queries a mixer-address database for hop distance.
type HTTPMixerProvider struct {
	BaseURL string
	APIKey  string
}

func (p *HTTPMixerProvider) Name() string { return "mixer-db" }

// Proximity fetches the hop distance to the known mixer set.
func (p *HTTPMixerProvider) Proximity(ctx context.Context, address, network string) (*MixerPayload, error) {
	u := fmt.Sprintf("%s/v1/proximity/%s?network=%s",
		p.BaseURL, url.PathEscape(address), url.QueryEscape(network))

	var payload MixerPayload
	if err := getJSON(ctx, u, p.APIKey, &payload); err != nil {
		return nil, fmt.Errorf("mixer proximity: %w", err)
	}
	return &payload, nil
}

// HTTPContractProvider queries a contract-safety scanner (verification,
// honeypot simulation, tax rates).
type HTTPContractProvider struct {
	BaseURL string
	APIKey  string
}

func (p *HTTPContractProvider) Name() string { return "contract-scanner" }

// Inspect fetches the safety report for a contract address.
func (p *HTTPContractProvider) Inspect(ctx context.Context, address, network string) (*ContractPayload, error) {
	u := fmt.Sprintf("%s/v1/contract/%s?network=%s",
		p.BaseURL, url.PathEscape(address), url.QueryEscape(network))

	var payload ContractPayload
	if err := getJSON(ctx, u, p.APIKey, &payload); err != nil {
		return nil, fmt.Errorf("contract inspect: %w", err)
	}
	return &payload, nil
}
