package prowlarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"curator/models"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
	defaultLimit    = 100
)

// ErrNotConfigured is returned when a search is attempted without a URL or API key.
var ErrNotConfigured = errors.New("prowlarr not configured")

// HTTPError is a non-2xx response from Prowlarr.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("prowlarr returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("prowlarr returned status %d: %s", e.StatusCode, e.Body)
}

// Query describes one search against the aggregated indexers.
type Query struct {
	Terms      string
	Categories []int
	// MinSeeders drops rows reporting fewer seeders. Rows with no seeder count are kept.
	MinSeeders int
	// Limit caps the number of rows returned; 0 means no cap beyond the request limit.
	Limit int
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Attempts   uint
	HTTPClient *http.Client
}

// Client searches Prowlarr's aggregated indexers.
type Client struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	timeout  time.Duration
	attempts uint
	delay    time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAttempts
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		httpc:    cfg.HTTPClient,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		delay:    500 * time.Millisecond,
	}
}

// Configured reports whether both the base URL and API key are set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

type searchRow struct {
	GUID        string `json:"guid"`
	Title       string `json:"title"`
	Size        int64  `json:"size"`
	Seeders     *int   `json:"seeders"`
	Leechers    *int   `json:"leechers"`
	PublishDate string `json:"publishDate"`
	Indexer     string `json:"indexer"`
	InfoURL     string `json:"infoUrl"`
	DownloadURL string `json:"downloadUrl"`
	Categories  []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
}

// SearchListings runs q against /api/v1/search and returns normalized listings.
func (c *Client) SearchListings(ctx context.Context, q Query) ([]models.Listing, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("query", q.Terms)
	params.Set("type", "search")
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	// Over-fetch so the seeder filter still leaves enough rows.
	params.Set("limit", strconv.Itoa(limit*3))
	for _, cat := range q.Categories {
		params.Add("categories", strconv.Itoa(cat))
	}
	reqURL := c.baseURL + "/api/v1/search?" + params.Encode()

	var rows []searchRow
	err := retry.Do(
		func() error {
			rows = nil
			return c.fetch(ctx, reqURL, &rows)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("query", q.Terms).Msg("[prowlarr] retrying search")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("prowlarr search %q: %w", q.Terms, err)
	}

	listings := make([]models.Listing, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Title) == "" {
			continue
		}
		if q.MinSeeders > 0 && row.Seeders != nil && *row.Seeders < q.MinSeeders {
			continue
		}
		listings = append(listings, row.toListing())
		if q.Limit > 0 && len(listings) >= q.Limit {
			break
		}
	}
	log.Debug().Str("query", q.Terms).Int("rows", len(rows)).Int("kept", len(listings)).Msg("[prowlarr] search complete")
	return listings, nil
}

func (c *Client) fetch(ctx context.Context, reqURL string, target any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (r searchRow) toListing() models.Listing {
	l := models.Listing{
		GUID:      strings.TrimSpace(r.GUID),
		Title:     strings.TrimSpace(r.Title),
		Indexer:   r.Indexer,
		SizeBytes: r.Size,
		Seeders:   r.Seeders,
		Leechers:  r.Leechers,
		InfoURL:   r.InfoURL,
	}
	if l.GUID == "" {
		l.GUID = firstNonEmpty(r.DownloadURL, r.InfoURL, r.Indexer+":"+l.Title)
	}
	if r.PublishDate != "" {
		if ts, err := time.Parse(time.RFC3339, r.PublishDate); err == nil {
			l.PublishDate = ts.UTC()
		}
	}
	for _, cat := range r.Categories {
		l.Categories = append(l.Categories, cat.ID)
	}
	return l
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
