package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"convtrack/api/models"
)

// Provider is one geolocation source. Lookup errors and partial responses
// are handled by the resolver; providers just report what they got.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (models.GeoRecord, error)
}

const providerTimeout = 5 * time.Second

func newProviderClient() *http.Client {
	return &http.Client{Timeout: providerTimeout}
}

// IPAPIProvider queries the ip-api.com JSON endpoint.
type IPAPIProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewIPAPIProvider(baseURL string) *IPAPIProvider {
	return &IPAPIProvider{BaseURL: baseURL, Client: newProviderClient()}
}

func (p *IPAPIProvider) Name() string { return "ip-api" }

func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (models.GeoRecord, error) {
	var body struct {
		Status     string  `json:"status"`
		Message    string  `json:"message"`
		City       string  `json:"city"`
		RegionName string  `json:"regionName"`
		Region     string  `json:"region"`
		Country    string  `json:"country"`
		CountryISO string  `json:"countryCode"`
		Zip        string  `json:"zip"`
		Timezone   string  `json:"timezone"`
		ISP        string  `json:"isp"`
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
	}

	if err := p.fetch(ctx, fmt.Sprintf("%s/%s", p.BaseURL, ip), &body); err != nil {
		return models.GeoRecord{}, err
	}
	if body.Status != "success" {
		return models.GeoRecord{}, fmt.Errorf("ip-api lookup failed: %s", body.Message)
	}

	rec := models.GeoRecord{
		City:        body.City,
		Region:      body.RegionName,
		RegionCode:  body.Region,
		Country:     body.Country,
		CountryCode: body.CountryISO,
		PostalCode:  body.Zip,
		Timezone:    body.Timezone,
		ISP:         body.ISP,
	}
	if body.Lat != 0 || body.Lon != 0 {
		lat, lon := body.Lat, body.Lon
		rec.Lat, rec.Lon = &lat, &lon
	}
	return rec, nil
}

func (p *IPAPIProvider) fetch(ctx context.Context, url string, out any) error {
	return fetchJSON(ctx, p.Client, url, out)
}

// IPWhoisProvider queries the ipwho.is JSON endpoint.
type IPWhoisProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewIPWhoisProvider(baseURL string) *IPWhoisProvider {
	return &IPWhoisProvider{BaseURL: baseURL, Client: newProviderClient()}
}

func (p *IPWhoisProvider) Name() string { return "ipwhois" }

func (p *IPWhoisProvider) Lookup(ctx context.Context, ip string) (models.GeoRecord, error) {
	var body struct {
		Success    bool    `json:"success"`
		Message    string  `json:"message"`
		City       string  `json:"city"`
		Region     string  `json:"region"`
		RegionCode string  `json:"region_code"`
		Country    string  `json:"country"`
		CountryISO string  `json:"country_code"`
		Postal     string  `json:"postal"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		Timezone   struct {
			ID string `json:"id"`
		} `json:"timezone"`
		Connection struct {
			ISP string `json:"isp"`
		} `json:"connection"`
	}

	if err := fetchJSON(ctx, p.Client, fmt.Sprintf("%s/%s", p.BaseURL, ip), &body); err != nil {
		return models.GeoRecord{}, err
	}
	if !body.Success {
		return models.GeoRecord{}, fmt.Errorf("ipwhois lookup failed: %s", body.Message)
	}

	rec := models.GeoRecord{
		City:        body.City,
		Region:      body.Region,
		RegionCode:  body.RegionCode,
		Country:     body.Country,
		CountryCode: body.CountryISO,
		PostalCode:  body.Postal,
		Timezone:    body.Timezone.ID,
		ISP:         body.Connection.ISP,
	}
	if body.Latitude != 0 || body.Longitude != 0 {
		lat, lon := body.Latitude, body.Longitude
		rec.Lat, rec.Lon = &lat, &lon
	}
	return rec, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
