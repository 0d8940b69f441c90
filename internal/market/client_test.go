package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/core/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(url string) *Client {
	c := NewClient(url, time.Second)
	c.Retry = retry.Options{Sleep: noSleep}
	return c
}

var serviceQuery = Query{BusinessType: "digital", OfferingType: "service", Query: "logo design"}

func TestListingsWithoutScraperUsesMock(t *testing.T) {
	res, err := NewClient("", 0).Listings(context.Background(), serviceQuery)
	require.NoError(t, err)
	assert.Equal(t, SourceMock, res.Source)
	assert.Len(t, res.Listings, mockListingCount)
	assert.Equal(t, mockListingCount, res.Stats.Count)
	assert.Equal(t, "global", res.Query.Region)
}

func TestListingsRejectsInvalidQuery(t *testing.T) {
	_, err := NewClient("", 0).Listings(context.Background(), Query{BusinessType: "x", OfferingType: "service"})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestListingsFromScraper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		var req scrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "digital", req.BusinessType)
		assert.Equal(t, "logo design", req.Query)

		_, _ = w.Write([]byte(`{"status":"success","count":3,"data":[
			{"source":"Fiverr","title":"Logo","price":"120","currency":"usd","rating":4.87,"reviews":42,"delivery_time":3},
			{"platform":"Upwork","name":"Brand kit","price":80.2,"currency":"USD"},
			{"source":"Fiverr","title":"Free","price":0}
		]}`))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Listings(context.Background(), serviceQuery)
	require.NoError(t, err)
	assert.Equal(t, SourceScraper, res.Source)
	require.Len(t, res.Listings, 2)

	assert.Equal(t, Listing{Source: "Upwork", Title: "Brand kit", Price: 80, Currency: "USD"}, res.Listings[0])
	assert.Equal(t, "Fiverr", res.Listings[1].Source)
	assert.Equal(t, 120.0, res.Listings[1].Price)
	assert.InDelta(t, 4.9, res.Listings[1].Rating, 0.0001)
	assert.Equal(t, 3, res.Listings[1].Delivery)
}

func TestListingsFallsBackOnScraperFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Listings(context.Background(), serviceQuery)
	require.NoError(t, err)
	assert.Equal(t, SourceMock, res.Source)
	assert.Equal(t, int32(retry.DefaultMaxAttempts), hits.Load())
}

func TestListingsEmptyScraperResultUsesMock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","count":0,"data":[]}`))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Listings(context.Background(), serviceQuery)
	require.NoError(t, err)
	assert.Equal(t, SourceMock, res.Source)
}

func TestListingsCoalescesIdenticalQueries(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-gate
		_, _ = w.Write([]byte(`{"data":[{"source":"Fiverr","title":"Logo","price":100,"currency":"USD"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan *Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Listings(context.Background(), serviceQuery)
			if err == nil {
				results <- res
			}
		}()
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), hits.Load())
	count := 0
	for res := range results {
		count++
		assert.Equal(t, SourceScraper, res.Source)
		require.Len(t, res.Listings, 1)
	}
	assert.Equal(t, callers, count)
}

func TestListingsHonorsCallerContext(t *testing.T) {
	gate := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-gate:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Listings(ctx, serviceQuery)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
