package gpsbuddy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"gps-fleet-backend/config"
)

const (
	tokenCacheKey      = "session"
	tokenTTL           = 20 * time.Minute
	tokenRefreshMargin = 60 * time.Second

	maxAttempts  = 3
	backoffStep  = 250 * time.Millisecond
	summaryLimit = 240
)

// Function names known to serve live vehicle data; tried in order after the
// configured override.
var defaultLiveFunctions = []string{"GetCompanyVehiclesLive", "GetVehiclesLive", "GetLiveInfo"}

// Top-level keys a vehicle array has been observed under (lower-cased).
var vehicleArrayKeys = []string{"vehicles", "data", "rows", "items", "table", "result"}

// errAuthRejected marks an upstream authentication rejection. It is not a
// network failure, so it must not consume the transient-retry budget.
var errAuthRejected = errors.New("authentication rejected by upstream")

// Client talks to the GPSBuddy telemetry API and turns its unreliable,
// multi-shape protocol into canonical vehicle records.
type Client struct {
	cfg     *config.GPSBuddyConfig
	client  *http.Client
	tokens  *cache.Cache
	tokenMu sync.Mutex
}

// NewClient creates a telemetry client. The token cache is injected so tests
// and concurrent refreshers share the same session state.
func NewClient(cfg *config.GPSBuddyConfig, tokens *cache.Cache) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Client will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		tokens: tokens,
	}
}

// FetchLiveVehicles fetches and normalizes the current fleet snapshot. It
// tries the configured live function first, then the known alternates,
// stopping at the first one that yields a recognizable vehicle array. It
// fails only when every endpoint/strategy combination has been exhausted.
func (c *Client) FetchLiveVehicles(ctx context.Context) (*FetchResult, error) {
	var lastErr error
	for _, fn := range c.liveFunctions() {
		rows, err := c.fetchFunction(ctx, fn)
		if err != nil {
			log.Printf("gpsbuddy: function %s failed: %v", fn, err)
			lastErr = err
			continue
		}
		return &FetchResult{
			Vehicles: NormalizeRows(rows),
			Meta:     FetchMeta{FunctionName: fn, FetchedAt: time.Now().UTC()},
		}, nil
	}
	return nil, fmt.Errorf("all live fetch attempts failed: %w", lastErr)
}

func (c *Client) liveFunctions() []string {
	fns := make([]string, 0, len(defaultLiveFunctions)+1)
	if c.cfg.LiveFunction != "" {
		fns = append(fns, c.cfg.LiveFunction)
	}
	for _, fn := range defaultLiveFunctions {
		if fn != c.cfg.LiveFunction {
			fns = append(fns, fn)
		}
	}
	return fns
}

// fetchFunction tries the direct credential strategy first and falls back to
// the session-token routine strategy when the direct one is rejected or
// exhausted.
func (c *Client) fetchFunction(ctx context.Context, fn string) ([]map[string]any, error) {
	rows, directErr := c.fetchDirect(ctx, fn)
	if directErr == nil {
		return rows, nil
	}

	rows, tokenErr := c.fetchViaToken(ctx, fn)
	if tokenErr == nil {
		return rows, nil
	}
	return nil, fmt.Errorf("direct strategy: %v; token strategy: %w", directErr, tokenErr)
}

// fetchDirect issues a credential-based GET against the function endpoint.
func (c *Client) fetchDirect(ctx context.Context, fn string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("companyId", c.cfg.CompanyID)
	params.Set("login", c.cfg.Username)
	params.Set("password", c.cfg.Password)
	if c.cfg.GroupID != "" {
		params.Set("groupId", c.cfg.GroupID)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + fn + "?" + params.Encode()
	return c.getRowsWithRetry(ctx, endpoint)
}

// fetchViaToken acquires or reuses a session token and issues the request as
// an XML routine payload against the execute endpoint.
func (c *Client) fetchViaToken(ctx context.Context, fn string) ([]map[string]any, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	routine := buildRoutineXML(fn, map[string]string{
		"CompanyId": c.cfg.CompanyID,
		"GroupId":   c.cfg.GroupID,
	})

	params := url.Values{}
	params.Set("value", routine)
	params.Set("token", token)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/Service/ExecuteReturnSet?" + params.Encode()
	rows, err := c.getRowsWithRetry(ctx, endpoint)
	if errors.Is(err, errAuthRejected) {
		// The cached token is no longer honored; force re-acquisition next time.
		c.tokens.Delete(tokenCacheKey)
	}
	return rows, err
}

// getRowsWithRetry retries transient failures with linear backoff. An
// authentication rejection aborts immediately.
func (c *Client) getRowsWithRetry(ctx context.Context, endpoint string) ([]map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rows, err := c.getRows(ctx, endpoint)
		if err == nil {
			return rows, nil
		}
		if errors.Is(err, errAuthRejected) {
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffStep * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

// getRows performs a single request attempt and extracts the vehicle rows.
func (c *Client) getRows(ctx context.Context, endpoint string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w (status %d): %s", errAuthRejected, resp.StatusCode, summarize(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code %d: %s", resp.StatusCode, summarize(body))
	}

	return parsePayload(body)
}

// parsePayload locates a vehicle array in a response of unpredictable shape.
func parsePayload(body []byte) ([]map[string]any, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %s", summarize(body))
	}

	switch p := payload.(type) {
	case []any:
		return toRows(p)
	case map[string]any:
		lowered := make(map[string]any, len(p))
		for k, v := range p {
			lowered[strings.ToLower(k)] = v
		}

		if msg, ok := apiErrorMessage(lowered); ok {
			if looksLikeAuthError(msg) {
				return nil, fmt.Errorf("%w: %s", errAuthRejected, truncate(msg, summaryLimit))
			}
			return nil, fmt.Errorf("API returned an error: %s", truncate(msg, summaryLimit))
		}

		for _, key := range vehicleArrayKeys {
			if arr, ok := lowered[key].([]any); ok {
				return toRows(arr)
			}
		}
	}
	return nil, fmt.Errorf("no vehicle array in response: %s", summarize(body))
}

func toRows(arr []any) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if row, ok := el.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// apiErrorMessage checks the lower-cased payload for an API-level error
// object and returns its message.
func apiErrorMessage(lowered map[string]any) (string, bool) {
	for _, key := range []string{"error", "errormessage", "errorcode"} {
		v, ok := lowered[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case bool:
			if t {
				return "error=true", true
			}
		case float64:
			if t != 0 {
				return "error code " + strconv.FormatFloat(t, 'f', -1, 64), true
			}
		case map[string]any:
			if msg, ok := t["message"].(string); ok && msg != "" {
				return msg, true
			}
			return fmt.Sprintf("%v", t), true
		}
	}
	return "", false
}

func looksLikeAuthError(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range []string{"auth", "session", "login", "token", "credential"} {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// ensureToken returns a valid session token, re-acquiring when the cached
// one has less than a minute of TTL left. Acquisition is serialized so
// concurrent refreshers share a single in-flight fetch.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if v, exp, ok := c.tokens.GetWithExpiration(tokenCacheKey); ok {
		if exp.IsZero() || time.Until(exp) > tokenRefreshMargin {
			return v.(string), nil
		}
	}

	params := url.Values{}
	params.Set("login", c.cfg.Username)
	params.Set("password", c.cfg.Password)
	params.Set("isToken", "0")
	params.Set("timeout", strconv.Itoa(c.cfg.SessionTimeoutSeconds))
	params.Set("returnType", "json")

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/Service/InitializeSession?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read session response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session request returned status %d: %s", resp.StatusCode, summarize(body))
	}

	token := ExtractToken(string(body))
	if token == "" {
		return "", fmt.Errorf("no session token found in response: %s", summarize(body))
	}

	c.tokens.Set(tokenCacheKey, token, tokenTTL)
	return token, nil
}

// summarize produces a bounded single-line view of a payload for error text.
func summarize(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	return truncate(s, summaryLimit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so the summary stays valid UTF-8.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
