package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/marketmirror/marketmirror/internal/logging"
	"github.com/marketmirror/marketmirror/internal/metrics"
	"go.uber.org/zap"
)

// Listing is the wire representation of one marketplace listing.
type Listing struct {
	ID              int    `json:"id"`
	FolderID        string `json:"inventory_folder_id"`
	VersionFolderID string `json:"version_folder_id,omitempty"`
	IsListed        bool   `json:"is_listed"`
	EditURL         string `json:"edit_url,omitempty"`
}

// Response is the decoded result of one API call. Status is always set;
// Listings is populated on success, Detail on errors when the server
// supplied a structured body.
type Response struct {
	Status   int
	Listings []Listing
	Detail   map[string]any
}

type listingsBody struct {
	Listings []Listing `json:"listings"`
}

// Client talks to the marketplace listing API. It performs no retries;
// retry policy belongs to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerMinute throttles outgoing calls; 0 disables throttling.
	RequestsPerMinute int
	AuthToken         string
}

// New creates a new marketplace API client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: limiter,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// MerchantStatus probes whether the authenticated account is a merchant.
// It returns the raw status code: 200 merchant, 404 not a merchant.
func (c *Client) MerchantStatus(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, "merchant", http.MethodGet, "/merchant", nil)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// Listings fetches every listing for the merchant.
func (c *Client) Listings(ctx context.Context) (Response, error) {
	return c.do(ctx, "fetch_all", http.MethodGet, "/listings", nil)
}

// Listing fetches one listing by its marketplace id.
func (c *Client) Listing(ctx context.Context, listingID int) (Response, error) {
	return c.do(ctx, "fetch_one", http.MethodGet, "/listings/"+strconv.Itoa(listingID), nil)
}

// CreateListing creates a listing for a local folder.
func (c *Client) CreateListing(ctx context.Context, folderID string) (Response, error) {
	body := listingsBody{Listings: []Listing{{FolderID: folderID}}}
	return c.do(ctx, "create", http.MethodPost, "/listings", body)
}

// UpdateListing replaces the remote tuple for a listing.
func (c *Client) UpdateListing(ctx context.Context, listingID int, folderID, versionFolderID string, isListed bool) (Response, error) {
	body := listingsBody{Listings: []Listing{{
		ID:              listingID,
		FolderID:        folderID,
		VersionFolderID: versionFolderID,
		IsListed:        isListed,
	}}}
	return c.do(ctx, "update", http.MethodPut, "/listings/"+strconv.Itoa(listingID), body)
}

// AssociateListing binds an existing listing id to a local folder.
func (c *Client) AssociateListing(ctx context.Context, listingID int, folderID, versionFolderID string) (Response, error) {
	body := listingsBody{Listings: []Listing{{
		ID:              listingID,
		FolderID:        folderID,
		VersionFolderID: versionFolderID,
	}}}
	return c.do(ctx, "associate", http.MethodPut, "/associate_inventory/"+strconv.Itoa(listingID), body)
}

// DeleteListing removes a listing from the marketplace.
func (c *Client) DeleteListing(ctx context.Context, listingID int) (Response, error) {
	return c.do(ctx, "delete", http.MethodDelete, "/listings/"+strconv.Itoa(listingID), nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Response{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(operation, 0, time.Since(start))
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.RecordRemoteRequest(operation, resp.StatusCode, time.Since(start))

	result := Response{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return result, fmt.Errorf("read response: %w", err)
	}

	switch Classify(resp.StatusCode) {
	case OutcomeSuccess, OutcomeProcessing:
		if len(raw) > 0 {
			var parsed listingsBody
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return result, fmt.Errorf("decode response: %w", err)
			}
			result.Listings = parsed.Listings
		}
	default:
		// Error bodies vary; keep whatever structure the server sent.
		if len(raw) > 0 {
			var detail map[string]any
			if err := json.Unmarshal(raw, &detail); err != nil {
				detail = map[string]any{"error_body": string(raw)}
			}
			result.Detail = detail
		}
		logging.Debug("marketplace error response",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode))
	}

	return result, nil
}
