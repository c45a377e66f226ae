// Package pubgapi is the upstream match API client: player lookups, match
// detail fetches, and telemetry downloads, all leased through a credential
// pool and classified into the pipelineerr taxonomy.
package pubgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pewstats/collectors/internal/cache"
	"github.com/pewstats/collectors/internal/credentials"
	"github.com/pewstats/collectors/internal/pipelineerr"
)

const maxPlayerNamesPerCall = 10

// Client wraps the upstream match API behind a leased credential and a
// small retry policy. One Client is shared by every goroutine of a service;
// the credential pool already serializes dispatch.
type Client struct {
	httpClient *http.Client
	pool       *credentials.Pool
	cache      *cache.Service
	baseURL    string
	userAgent  string
	maxRetries int
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// New builds a Client leasing credentials from pool and caching responses
// (best-effort) through cacheSvc.
func New(cfg Config, pool *credentials.Pool, cacheSvc *cache.Service) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pubg.com"
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		pool:       pool,
		cache:      cacheSvc,
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
	}
}

// LookupPlayers resolves player names to platform account IDs, chunking the
// request into batches of at most 10 names per the upstream limit (§4.2).
func (c *Client) LookupPlayers(ctx context.Context, shard string, names []string) ([]PlayerData, error) {
	var out []PlayerData
	for start := 0; start < len(names); start += maxPlayerNamesPerCall {
		end := start + maxPlayerNamesPerCall
		if end > len(names) {
			end = len(names)
		}
		chunk := names[start:end]

		endpoint := fmt.Sprintf("/shards/%s/players", shard)
		query := "filter[playerNames]=" + joinComma(chunk)

		body, err := c.doGet(ctx, endpoint+"?"+query)
		if err != nil {
			return nil, err
		}

		var resp PlayersResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("decode players response: %v", err)}
		}
		out = append(out, resp.Data...)
	}
	return out, nil
}

func joinComma(ss []string) string {
	var buf bytes.Buffer
	for i, s := range ss {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(s)
	}
	return buf.String()
}

// GetMatch fetches the full match document (data + rosters + participants +
// telemetry asset pointer) for one match id.
func (c *Client) GetMatch(ctx context.Context, shard, matchID string) (*MatchResponse, error) {
	cacheKey := cache.APIResponseKey("match", shard+":"+matchID)
	if c.cache != nil {
		var cached MatchResponse
		if err := c.cache.GetJSON(cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	endpoint := fmt.Sprintf("/shards/%s/matches/%s", shard, matchID)
	body, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp MatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("decode match response: %v", err)}
	}

	if c.cache != nil {
		_ = c.cache.SetJSON(cacheKey, resp, cache.TTLAPIResponse)
	}
	return &resp, nil
}

// TelemetryAssetURL follows data.relationships.assets[0].id to the matching
// included[] asset and returns its CDN URL (spec §4.7 step 4). A document
// without an assets relationship uses its first included asset.
func TelemetryAssetURL(resp *MatchResponse) (string, error) {
	assetID := ""
	if refs := resp.Data.Relationships.Assets.Data; len(refs) > 0 {
		assetID = refs[0].ID
	}
	for _, inc := range resp.Included {
		if inc.Type != "asset" || (assetID != "" && inc.ID != assetID) {
			continue
		}
		asset, err := inc.AsAsset()
		if err != nil {
			return "", &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("decode asset attributes: %v", err)}
		}
		if asset.URL == "" {
			return "", &pipelineerr.MalformedResponseError{Detail: "asset entry missing URL"}
		}
		return asset.URL, nil
	}
	return "", &pipelineerr.MalformedResponseError{Detail: "match document has no included asset"}
}

// DownloadTelemetry streams the telemetry payload from its CDN URL,
// transparently decompressing gzip content (detected by magic bytes, since
// the CDN does not always set Content-Encoding) and decoding it into the
// generic event envelope list consumed by internal/telemetry.
func (c *Client) DownloadTelemetry(ctx context.Context, url string) ([]TelemetryEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &pipelineerr.OperationalError{Op: "build telemetry request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &pipelineerr.TransportError{Op: "download telemetry", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &pipelineerr.NotFoundError{Resource: "telemetry", ID: url}
	}
	if resp.StatusCode >= 500 {
		return nil, &pipelineerr.TransportError{Op: "download telemetry", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("telemetry fetch status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipelineerr.TransportError{Op: "read telemetry body", Err: err}
	}

	raw, err = maybeGunzip(raw)
	if err != nil {
		return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("gunzip telemetry: %v", err)}
	}

	var rawEvents []json.RawMessage
	if err := json.Unmarshal(raw, &rawEvents); err != nil {
		return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("decode telemetry array: %v", err)}
	}

	events := make([]TelemetryEvent, 0, len(rawEvents))
	for _, re := range rawEvents {
		var head struct {
			EventType string `json:"_T"`
			Timestamp string `json:"_D"`
		}
		if err := json.Unmarshal(re, &head); err != nil {
			return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("decode telemetry event header: %v", err)}
		}
		events = append(events, TelemetryEvent{EventType: head.EventType, Timestamp: head.Timestamp, Raw: re})
	}
	return events, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGunzip decompresses raw if it carries a gzip magic header, otherwise
// returns it unchanged.
func maybeGunzip(raw []byte) ([]byte, error) {
	if len(raw) < 2 || !bytes.Equal(raw[:2], gzipMagic) {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// doGet leases a credential, dispatches a single GET with retries on
// transient failures, and records the outcome against the leased
// credential's budget.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		cred, err := c.pool.Lease(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, &pipelineerr.OperationalError{Op: "build request", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+cred.Secret)
		req.Header.Set("Accept", "application/vnd.api+json")
		req.Header.Set("User-Agent", c.userAgent)

		dispatchedAt := time.Now()
		resp, err := c.httpClient.Do(req)
		cred.RecordRequest(dispatchedAt)

		if err != nil {
			lastErr = &pipelineerr.TransportError{Op: path, Err: err}
			backoff(attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			cred.RecordThrottled()
			lastErr = &pipelineerr.ThrottledError{Op: path}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, &pipelineerr.NotFoundError{Resource: "resource", ID: path}
		case resp.StatusCode >= 500:
			lastErr = &pipelineerr.TransportError{Op: path, Err: fmt.Errorf("status %d", resp.StatusCode)}
			backoff(attempt)
			continue
		case resp.StatusCode >= 400:
			return nil, &pipelineerr.MalformedResponseError{Detail: fmt.Sprintf("%s: status %d", path, resp.StatusCode)}
		}

		if readErr != nil {
			lastErr = &pipelineerr.TransportError{Op: path, Err: readErr}
			backoff(attempt)
			continue
		}
		return body, nil
	}

	return nil, lastErr
}

func backoff(attempt int) {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	time.Sleep(d)
}
