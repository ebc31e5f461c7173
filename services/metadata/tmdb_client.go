package metadata

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
	"golang.org/x/time/rate"

	"curator/models"
)

const (
	tmdbDefaultBaseURL  = "https://api.themoviedb.org"
	tmdbImageBaseURL    = "https://image.tmdb.org/t/p/"
	tmdbPosterSize      = "w500"
	tmdbBackdropSize    = "w1280"
	PlaceholderPoster   = "/placeholder-poster.svg"
	PlaceholderBackdrop = "/placeholder-backdrop.svg"

	// v4 read access tokens are JWTs; v3 keys are 32 hex characters.
	tmdbBearerMinLength = 40
)

// ErrNotConfigured is returned when a provider call is made without credentials.
var ErrNotConfigured = errors.New("metadata provider not configured")

// HTTPError is a non-2xx response from TMDb.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("tmdb %s returned status %d", e.URL, e.StatusCode)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// SearchResult is a partial record from a TMDb search endpoint. Movies populate
// Title/ReleaseDate, series populate Name/FirstAirDate.
type SearchResult struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"poster_path,omitempty"`
	BackdropPath string  `json:"backdrop_path,omitempty"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	GenreIDs     []int   `json:"genre_ids,omitempty"`
}

// MatchTitle returns whichever of title/name is populated.
func (r SearchResult) MatchTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// Year returns the release or first-air year, 0 when neither parses.
func (r SearchResult) Year() int {
	return parseTMDBYear(r.ReleaseDate, r.FirstAirDate)
}

// Genre is a TMDb genre as returned by detail endpoints.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Details is the full record from /movie/{id} or /tv/{id}.
type Details struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title,omitempty"`
	Name            string  `json:"name,omitempty"`
	Overview        string  `json:"overview,omitempty"`
	PosterPath      string  `json:"poster_path,omitempty"`
	BackdropPath    string  `json:"backdrop_path,omitempty"`
	VoteAverage     float64 `json:"vote_average,omitempty"`
	ReleaseDate     string  `json:"release_date,omitempty"`
	FirstAirDate    string  `json:"first_air_date,omitempty"`
	Genres          []Genre `json:"genres,omitempty"`
	Runtime         int     `json:"runtime,omitempty"`
	EpisodeRunTime  []int   `json:"episode_run_time,omitempty"`
	NumberOfSeasons int     `json:"number_of_seasons,omitempty"`
}

// TMDBConfig configures a TMDBClient.
type TMDBConfig struct {
	APIKey   string
	Language string
	BaseURL  string
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	// RequestsPerSecond and Burst size the shared token bucket.
	RequestsPerSecond float64
	Burst             int
	Attempts          uint
	HTTPClient        *http.Client
}

// TMDBClient implements Provider against the TMDb v3 API.
type TMDBClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	attempts uint
	delay    time.Duration
}

func NewTMDBClient(cfg TMDBConfig) *TMDBClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 2
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = tmdbDefaultBaseURL
	}
	return &TMDBClient{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		language: normalizeLanguage(cfg.Language),
		baseURL:  base,
		httpc:    cfg.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		delay:    250 * time.Millisecond,
	}
}

// Configured reports whether an API key is present.
func (c *TMDBClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// SearchByTitle queries /search/movie or /search/tv.
func (c *TMDBClient) SearchByTitle(ctx context.Context, query string, kind models.MediaKind) ([]SearchResult, error) {
	endpoint := "/3/search/movie"
	if kind == models.MediaKindSeries {
		endpoint = "/3/search/tv"
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("page", "1")

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.get(ctx, endpoint, params, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// FetchDetails loads the full movie or series record.
func (c *TMDBClient) FetchDetails(ctx context.Context, id int64, kind models.MediaKind) (*Details, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid tmdb id %d", id)
	}
	endpoint := "/3/movie/" + strconv.FormatInt(id, 10)
	if kind == models.MediaKindSeries {
		endpoint = "/3/tv/" + strconv.FormatInt(id, 10)
	}
	var details Details
	if err := c.get(ctx, endpoint, url.Values{}, &details); err != nil {
		return nil, err
	}
	if details.ID == 0 {
		return nil, fmt.Errorf("tmdb %s: response missing id", endpoint)
	}
	return &details, nil
}

func (c *TMDBClient) get(ctx context.Context, endpoint string, params url.Values, target any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	params.Set("language", c.language)
	bearer := len(c.apiKey) >= tmdbBearerMinLength
	if !bearer {
		params.Set("api_key", c.apiKey)
	}
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			if bearer {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				return &HTTPError{StatusCode: resp.StatusCode, URL: c.baseURL + endpoint}
			}
			if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode tmdb %s: %w", endpoint, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.retryable()
	}
	return true
}

// normalizeLanguage maps user input onto TMDb's xx-YY form.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return "en-US"
	}
	parts := strings.SplitN(lang, "-", 2)
	primary := strings.ToLower(parts[0])
	if len(parts) == 2 && parts[1] != "" {
		return primary + "-" + strings.ToUpper(parts[1])
	}
	return primary + "-US"
}

// buildImageURL prefixes a provider-relative path with the image base for size.
// Empty paths yield "".
func buildImageURL(path, size string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return tmdbImageBaseURL + size + path
}

// parseTMDBYear returns the year prefix of the first date that has one.
func parseTMDBYear(dates ...string) int {
	for _, date := range dates {
		date = strings.TrimSpace(date)
		if len(date) < 4 {
			continue
		}
		year, err := strconv.Atoi(date[:4])
		if err != nil || year < 1800 {
			continue
		}
		return year
	}
	return 0
}
