package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://rupaulsdragrace.fandom.com/api.php"
	defaultUserAgent = "runway-bot/1.0"
)

// ErrNoImageInfo is returned when a file title has no resolvable URL.
var ErrNoImageInfo = errors.New("no image info")

// Client provides access to the MediaWiki Action API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the api.php endpoint (for testing or other wikis).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a new wiki API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type imagesResponse struct {
	Continue map[string]json.RawMessage `json:"continue"`
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Missing bool   `json:"missing"`
			Images  []struct {
				Title string `json:"title"`
			} `json:"images"`
		} `json:"pages"`
	} `json:"query"`
}

type imageInfoResponse struct {
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			ImageInfo []struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

type apiError struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Pages yields the file titles referenced by pageTitle, one continuation page
// at a time. Iteration stops after the first error.
func (c *Client) Pages(ctx context.Context, pageTitle string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		var cont url.Values
		for {
			titles, next, err := c.imagesPage(ctx, pageTitle, cont)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(titles, nil) {
				return
			}
			if len(next) == 0 {
				return
			}
			cont = next
		}
	}
}

// PageImages returns every file title referenced by pageTitle in source order.
func (c *Client) PageImages(ctx context.Context, pageTitle string) ([]string, error) {
	var all []string
	for titles, err := range c.Pages(ctx, pageTitle) {
		if err != nil {
			return nil, err
		}
		all = append(all, titles...)
	}
	return all, nil
}

// imagesPage fetches one batch. cont holds the continue parameters returned
// by the previous batch and is sent back verbatim.
func (c *Client) imagesPage(ctx context.Context, pageTitle string, cont url.Values) ([]string, url.Values, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"images"},
		"imlimit":       {"max"},
		"titles":        {pageTitle},
	}
	for key, values := range cont {
		params[key] = values
	}

	var resp imagesResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, nil, fmt.Errorf("list images of %q: %w", pageTitle, err)
	}

	var titles []string
	for _, page := range resp.Query.Pages {
		if page.Missing {
			return nil, nil, fmt.Errorf("page %q not found", page.Title)
		}
		for _, img := range page.Images {
			titles = append(titles, img.Title)
		}
	}

	next := make(url.Values, len(resp.Continue))
	for key, raw := range resp.Continue {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			v = string(raw)
		}
		next.Set(key, v)
	}
	return titles, next, nil
}

// ImageURL resolves a file title to its direct-access URL.
func (c *Client) ImageURL(ctx context.Context, fileTitle string) (string, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"imageinfo"},
		"iiprop":        {"url"},
		"titles":        {fileTitle},
	}

	var resp imageInfoResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return "", fmt.Errorf("resolve %q: %w", fileTitle, err)
	}

	for _, page := range resp.Query.Pages {
		if len(page.ImageInfo) > 0 && page.ImageInfo[0].URL != "" {
			return page.ImageInfo[0].URL, nil
		}
	}
	return "", fmt.Errorf("resolve %q: %w", fileTitle, ErrNoImageInfo)
}

// ResolveAll resolves every title with at most limit requests in flight. The
// returned URLs line up with titles. A file the wiki has no image info for
// resolves to "" so one dead link does not block the rest; any other failure
// cancels the remaining lookups.
func (c *Client) ResolveAll(ctx context.Context, titles []string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}

	urls := make([]string, len(titles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, title := range titles {
		g.Go(func() error {
			u, err := c.ImageURL(gctx, title)
			if errors.Is(err, ErrNoImageInfo) {
				slog.Warn("skipping file without image info", "title", title)
				return nil
			}
			if err != nil {
				return err
			}
			urls[i] = u
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (c *Client) get(ctx context.Context, params url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != nil {
		return fmt.Errorf("api error %s: %s", apiErr.Error.Code, apiErr.Error.Info)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
