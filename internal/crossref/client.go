// Package crossref is a rate-limited client for the Crossref works API, the
// bibliographic lookup used during graph expansion and topic ingestion.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/citeweave/citeweave/internal/identity"
)

const (
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit follows Crossref's polite-pool guidance.
	RateLimit = 10.0

	// DefaultMaxRetries bounds retry attempts for a single logical call.
	DefaultMaxRetries = 3

	// retryBaseDelay is the initial backoff delay, doubled per attempt.
	retryBaseDelay = 500 * time.Millisecond

	// maxSearchRows caps result pages; Crossref's own maximum is 100.
	maxSearchRows = 100
)

// Work is a normalized bibliographic record from Crossref.
type Work struct {
	DOI      string       `json:"doi"`
	Title    string       `json:"title"`
	Abstract string       `json:"abstract,omitempty"`
	Year     int          `json:"year,omitempty"`
	Venue    string       `json:"venue,omitempty"`
	URL      string       `json:"url,omitempty"`
	Authors  []WorkAuthor `json:"authors,omitempty"`
}

// WorkAuthor is an author entry on a Crossref work.
type WorkAuthor struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Candidate is a search hit scored against the queried title/year.
// Confidence is in [0, 1].
type Candidate struct {
	Work
	Confidence float64 `json:"confidence"`
}

// Client is a rate-limited HTTP client for the Crossref API. Crossref's usage
// policy requires a contact address; it is sent in the User-Agent of every
// request.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
	maxRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMailto sets the contact address reported to Crossref.
func WithMailto(mailto string) ClientOption {
	return func(c *Client) {
		c.mailto = mailto
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithMaxRetries bounds the retry attempts per call.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a new Crossref client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// userAgent builds the identifying User-Agent per Crossref etiquette.
func (c *Client) userAgent() string {
	if c.mailto == "" {
		return "citeweave/1.0"
	}
	return fmt.Sprintf("citeweave/1.0 (mailto:%s)", c.mailto)
}

// get performs one rate-limited GET with bounded retry and exponential
// backoff. Retries cover network failures, 429s, and 5xx responses; a 404
// returns ErrNotFound immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.getOnce(ctx, path, query)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) getOnce(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status 429", ErrRateLimited)
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "HTTP " + strconv.Itoa(resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// LookupDOI fetches the work registered under a DOI. Returns ErrNotFound if
// the DOI is unregistered, ErrUnavailable after exhausted retries.
func (c *Client) LookupDOI(ctx context.Context, doi string) (*Work, error) {
	normDOI := identity.NormalizeDOI(doi)
	if normDOI == "" {
		return nil, ErrNotFound
	}

	body, err := c.get(ctx, "/works/"+url.PathEscape(normDOI), nil)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Message rawWork `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: parsing work: %v", ErrInvalidResponse, err)
	}

	work := wrapper.Message.normalize()
	if work == nil {
		return nil, ErrNotFound
	}
	return work, nil
}

// SearchTitleYear searches works by title and scores each hit against the
// query. Confidence is title similarity, halved when both sides know the
// publication year and disagree. Results come back best-first.
func (c *Client) SearchTitleYear(ctx context.Context, title string, year int) ([]Candidate, error) {
	q := url.Values{}
	q.Set("query.bibliographic", title)
	q.Set("rows", "5")

	works, err := c.searchRaw(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(works))
	for _, w := range works {
		conf := identity.TitleSimilarity(title, w.Title)
		if year != 0 && w.Year != 0 && year != w.Year {
			conf *= 0.5
		}
		candidates = append(candidates, Candidate{Work: w, Confidence: conf})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}

// SearchWorks searches works by free-text relevance, used for topic
// ingestion.
func (c *Client) SearchWorks(ctx context.Context, query string, limit int) ([]Work, error) {
	if limit <= 0 || limit > maxSearchRows {
		limit = maxSearchRows
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("rows", strconv.Itoa(limit))
	q.Set("sort", "relevance")
	q.Set("order", "desc")

	return c.searchRaw(ctx, q)
}

func (c *Client) searchRaw(ctx context.Context, q url.Values) ([]Work, error) {
	body, err := c.get(ctx, "/works", q)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Message struct {
			Items []rawWork `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}

	works := make([]Work, 0, len(wrapper.Message.Items))
	for _, raw := range wrapper.Message.Items {
		if w := raw.normalize(); w != nil {
			works = append(works, *w)
		}
	}
	return works, nil
}

// rawWork mirrors the Crossref wire shape of a work.
type rawWork struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	Abstract       string   `json:"abstract"`
	ContainerTitle []string `json:"container-title"`
	URL            string   `json:"URL"`
	Author         []struct {
		Given       string `json:"given"`
		Family      string `json:"family"`
		Affiliation []struct {
			Name string `json:"name"`
		} `json:"affiliation"`
	} `json:"author"`
	PublishedPrint  *rawDate `json:"published-print"`
	PublishedOnline *rawDate `json:"published-online"`
}

type rawDate struct {
	DateParts [][]int `json:"date-parts"`
}

// jatsTags matches the JATS markup Crossref embeds in abstracts.
var jatsTags = regexp.MustCompile(`<[^>]+>`)

// normalize converts the wire shape to a Work. Returns nil for records
// without a usable title.
func (r *rawWork) normalize() *Work {
	if len(r.Title) == 0 || r.Title[0] == "" {
		return nil
	}

	w := &Work{
		DOI:      identity.NormalizeDOI(r.DOI),
		Title:    r.Title[0],
		Abstract: strings.TrimSpace(jatsTags.ReplaceAllString(r.Abstract, "")),
		URL:      r.URL,
		Year:     r.year(),
	}
	if len(r.ContainerTitle) > 0 {
		w.Venue = r.ContainerTitle[0]
	}

	for _, a := range r.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			continue
		}
		wa := WorkAuthor{Name: name}
		if len(a.Affiliation) > 0 {
			wa.Affiliation = a.Affiliation[0].Name
		}
		w.Authors = append(w.Authors, wa)
	}

	return w
}

// year extracts the publication year, preferring the print date.
func (r *rawWork) year() int {
	for _, d := range []*rawDate{r.PublishedPrint, r.PublishedOnline} {
		if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
			continue
		}
		year := d.DateParts[0][0]
		if year >= 1500 && year <= 2100 {
			return year
		}
	}
	return 0
}
