// Package cloudflare is a minimal DNS provider client used to check whether
// a subdomain is already taken and to enumerate deployed sites by their
// CNAME records.
package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/xiyo/replica-builder/internal/logger"
)

const (
	apiBaseURL = "https://api.cloudflare.com/client/v4"
	timeout    = 15 * time.Second
)

// Config holds DNS provider credentials and the managed zone
type Config struct {
	APIKey string
	Email  string
	ZoneID string

	// BaseURL overrides the API endpoint, used in tests
	BaseURL string
}

// Client queries the Cloudflare DNS records API for one zone
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// dnsRecord is the subset of a DNS record this client reads
type dnsRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedOn time.Time `json:"created_on"`
}

// apiResponse is the Cloudflare envelope around every result
type apiResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result []dnsRecord `json:"result"`
}

// Site is a deployed site discovered from a CNAME record
type Site struct {
	Subdomain string    `json:"subdomain"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewClient creates a new Cloudflare DNS client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.Email == "" || cfg.ZoneID == "" {
		return nil, fmt.Errorf("Cloudflare API key, email, and zone ID are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = apiBaseURL
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.WithField("component", "cloudflare"),
	}, nil
}

// get performs an authenticated GET against the zone's DNS records
func (c *Client) get(ctx context.Context, query string) (*apiResponse, error) {
	url := fmt.Sprintf("%s/zones/%s/dns_records%s", c.cfg.BaseURL, c.cfg.ZoneID, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Auth-Key", c.cfg.APIKey)
	req.Header.Set("X-Auth-Email", c.cfg.Email)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode DNS response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !data.Success {
		if len(data.Errors) > 0 {
			return nil, fmt.Errorf("DNS lookup failed: %s", data.Errors[0].Message)
		}
		return nil, fmt.Errorf("DNS lookup failed with status %d", resp.StatusCode)
	}
	return &data, nil
}

// SubdomainExists reports whether a DNS record already exists for
// subdomain.baseDomain
func (c *Client) SubdomainExists(ctx context.Context, subdomain, baseDomain string) (bool, error) {
	fullDomain := fmt.Sprintf("%s.%s", subdomain, baseDomain)
	data, err := c.get(ctx, "?name="+fullDomain)
	if err != nil {
		c.log.WithError(err).WithField("domain", fullDomain).Warn("Subdomain check failed")
		return false, err
	}
	return len(data.Result) > 0, nil
}

// ListSites returns all deployed sites in the zone, newest first, by
// reading the zone's CNAME records and keeping those under baseDomain
func (c *Client) ListSites(ctx context.Context, baseDomain string) ([]Site, error) {
	data, err := c.get(ctx, "?type=CNAME&per_page=100")
	if err != nil {
		return nil, err
	}

	suffix := "." + baseDomain
	var sites []Site
	for _, record := range data.Result {
		if !strings.HasSuffix(record.Name, suffix) || record.Name == baseDomain {
			continue
		}
		sites = append(sites, Site{
			Subdomain: strings.TrimSuffix(record.Name, suffix),
			URL:       "https://" + record.Name,
			CreatedAt: record.CreatedOn,
		})
	}

	sort.Slice(sites, func(i, j int) bool {
		return sites[i].CreatedAt.After(sites[j].CreatedAt)
	})
	return sites, nil
}
