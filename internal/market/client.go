package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/pricewise/pricewise/internal/core/retry"
)

// Listing sources reported in Result.
const (
	SourceScraper = "scraper"
	SourceMock    = "mock"
)

const defaultTimeout = 30 * time.Second

// Result is a cleaned listing set with its statistics.
type Result struct {
	Query    Query     `json:"query"`
	Source   string    `json:"source"`
	Listings []Listing `json:"listings"`
	Stats    Stats     `json:"stats"`
}

// Client calls the scraper service. Concurrent identical queries share
// one outbound call.
type Client struct {
	ScraperURL string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      retry.Options

	group singleflight.Group
}

// NewClient returns a client for the scraper at baseURL. An empty baseURL
// serves mock listings only.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		ScraperURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Timeout:    timeout,
	}
}

// Listings returns comparable listings for q. Scraper failures fall back
// to mock listings; only an invalid query is an error.
func (c *Client) Listings(ctx context.Context, q Query) (*Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ch := c.group.DoChan(q.key(), func() (any, error) {
		// The shared call must not die with whichever caller arrived first.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
		defer cancel()
		return c.fetch(callCtx, q)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(*Result)
		out := *shared
		out.Listings = append([]Listing(nil), shared.Listings...)
		return &out, nil
	}
}

func (c *Client) fetch(ctx context.Context, q Query) (*Result, error) {
	if c.ScraperURL == "" {
		return newResult(q, SourceMock, MockListings(q)), nil
	}

	result, err := retry.DoWithFallback(ctx,
		func(ctx context.Context) (*Result, error) {
			listings, err := c.scrape(ctx, q)
			if err != nil {
				return nil, err
			}
			if len(listings) == 0 {
				return newResult(q, SourceMock, MockListings(q)), nil
			}
			return newResult(q, SourceScraper, listings), nil
		},
		func(context.Context) (*Result, error) {
			return newResult(q, SourceMock, MockListings(q)), nil
		},
		c.Retry,
	)
	if err != nil {
		// The call deadline expired before the fallback ran.
		return newResult(q, SourceMock, MockListings(q)), nil
	}
	return result, nil
}

func newResult(q Query, source string, listings []Listing) *Result {
	cleaned := Clean(listings)
	return &Result{
		Query:    q,
		Source:   source,
		Listings: cleaned,
		Stats:    Summarize(cleaned),
	}
}

type scrapeRequest struct {
	BusinessType string `json:"business_type"`
	OfferingType string `json:"offering_type"`
	Query        string `json:"query"`
	Region       string `json:"region"`
	UseCache     bool   `json:"use_cache"`
}

func (c *Client) scrape(ctx context.Context, q Query) ([]Listing, error) {
	const op = "market.scrape"

	payload, err := json.Marshal(scrapeRequest{
		BusinessType: q.BusinessType,
		OfferingType: q.OfferingType,
		Query:        q.Query,
		Region:       q.Region,
		UseCache:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ScraperURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, retry.FromTransport(op, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.FromTransport(op, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, retry.FromStatus(op, resp, body)
	}

	return parseListings(body)
}

// parseListings reads the scraper's data array. Field names vary between
// spiders so a few aliases are accepted.
func parseListings(body []byte) ([]Listing, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("scraper returned invalid JSON")
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, nil
	}

	var listings []Listing
	data.ForEach(func(_, item gjson.Result) bool {
		listings = append(listings, Listing{
			Source:   firstString(item, "source", "platform"),
			Title:    firstString(item, "title", "name"),
			Price:    item.Get("price").Float(),
			Currency: strings.ToUpper(firstString(item, "currency")),
			Rating:   item.Get("rating").Float(),
			Reviews:  int(item.Get("reviews").Int()),
			Delivery: int(firstResult(item, "delivery_time", "delivery").Int()),
		})
		return true
	})
	return listings, nil
}

func firstString(item gjson.Result, paths ...string) string {
	return strings.TrimSpace(firstResult(item, paths...).String())
}

func firstResult(item gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if v := item.Get(path); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}
