package flights

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout          = 15 * time.Second
	defaultMaxResponseBytes = int64(1 << 20) // 1MB
	defaultMaxResults       = 5
)

// Config configures the flight search client. An empty BaseURL selects the
// offline fixture mode, which serves deterministic offers without network
// access.
type Config struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	MaxResponseBytes int64
	HTTPClient       *http.Client
}

// Client searches flight offers against a REST API, or serves fixtures when
// configured offline.
type Client struct {
	baseURL  string
	token    string
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewClient creates a flight search client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed == nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return nil, fmt.Errorf("flights: invalid base_url")
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("flights: base_url scheme must be http or https")
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	return &Client{
		baseURL:  baseURL,
		token:    strings.TrimSpace(cfg.Token),
		client:   client,
		maxBytes: maxBytes,
		logger:   slog.Default().With("component", "flights"),
	}, nil
}

// Offline reports whether the client serves fixtures instead of calling the
// search API.
func (c *Client) Offline() bool {
	return c.baseURL == ""
}

// Search runs a flight-offer search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("flights: client not configured")
	}
	origin := strings.ToUpper(strings.TrimSpace(req.Origin))
	destination := strings.ToUpper(strings.TrimSpace(req.Destination))
	if origin == "" || destination == "" {
		return nil, fmt.Errorf("flights: origin and destination are required")
	}
	req.Origin = origin
	req.Destination = destination
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}

	if c.Offline() {
		c.logger.Debug("serving fixture offers", "origin", origin, "destination", destination)
		return fixtureResult(req), nil
	}

	query := url.Values{}
	query.Set("origin", origin)
	query.Set("destination", destination)
	if req.Date != "" {
		query.Set("date", req.Date)
	}
	if req.Adults > 0 {
		query.Set("adults", fmt.Sprintf("%d", req.Adults))
	}
	query.Set("max", fmt.Sprintf("%d", req.MaxResults))

	endpoint := c.baseURL + "/v2/shopping/flight-offers?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("flights: create request: %w", err)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flights: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("flights: read response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("flights: response too large")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("flights: %s", msg)
	}

	var result SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("flights: decode response: %w", err)
	}
	if result.TotalOffers == 0 {
		result.TotalOffers = len(result.Offers)
	}
	return &result, nil
}

// fixtureResult builds a deterministic two-offer result for offline mode.
// Times are fixed so downstream rendering stays stable across runs.
func fixtureResult(req SearchRequest) *SearchResult {
	date := req.Date
	if date == "" {
		date = "2026-09-01"
	}
	offers := []Offer{
		{
			OfferID: "1",
			Price:   Price{Total: "100", Currency: "EUR"},
			Airlines: []string{
				"AB",
			},
			Itineraries: []Itinerary{{
				Duration: "PT2H30M",
				Segments: []Segment{{
					Departure:    fmt.Sprintf("%s at %sT09:00", req.Origin, date),
					Arrival:      fmt.Sprintf("%s at %sT11:30", req.Destination, date),
					Carrier:      "AB",
					FlightNumber: "AB123",
					Duration:     "PT2H30M",
				}},
			}},
			SeatsAvailable: 3,
		},
		{
			OfferID: "2",
			Price:   Price{Total: "185.50", Currency: "EUR"},
			Airlines: []string{
				"CX",
			},
			Itineraries: []Itinerary{{
				Duration: "PT4H05M",
				Segments: []Segment{
					{
						Departure:    fmt.Sprintf("%s at %sT14:20", req.Origin, date),
						Arrival:      fmt.Sprintf("HUB at %sT15:45", date),
						Carrier:      "CX",
						FlightNumber: "CX410",
						Duration:     "PT1H25M",
					},
					{
						Departure:    fmt.Sprintf("HUB at %sT16:40", date),
						Arrival:      fmt.Sprintf("%s at %sT18:25", req.Destination, date),
						Carrier:      "CX",
						FlightNumber: "CX731",
						Duration:     "PT1H45M",
					},
				},
			}},
			SeatsAvailable: 9,
		},
	}
	if req.MaxResults > 0 && req.MaxResults < len(offers) {
		offers = offers[:req.MaxResults]
	}
	return &SearchResult{
		TotalOffers: len(offers),
		Offers:      offers,
		Dictionaries: Dictionaries{Carriers: map[string]string{
			"AB": "Air Bravo",
			"CX": "Cloudline Express",
		}},
	}
}
