// Package market fetches comparable listings from the scraper service.
package market

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// Listing is one comparable offering found on a marketplace.
type Listing struct {
	Source   string  `json:"source"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Rating   float64 `json:"rating,omitempty"`
	Reviews  int     `json:"reviews,omitempty"`
	Delivery int     `json:"delivery,omitempty"`
}

// Query selects the marketplaces and search terms.
type Query struct {
	BusinessType string `json:"business_type"`
	OfferingType string `json:"offering_type"`
	Query        string `json:"query"`
	Region       string `json:"region,omitempty"`
}

// ErrInvalidQuery reports an unsupported business or offering type.
var ErrInvalidQuery = errors.New("invalid market query")

var platformMapping = map[string][]string{
	"digital_service":  {"Fiverr", "Upwork", "Freelancer.com"},
	"digital_product":  {"Etsy", "AppSumo", "ProductHunt", "Gumroad"},
	"physical_product": {"IndiaMART", "eBay", "Amazon"},
	"physical_service": {"Justdial", "IndiaMART", "UrbanClap", "Thumbtack"},
}

// Normalize lowercases the type fields and defaults the region.
func (q Query) Normalize() Query {
	q.BusinessType = strings.ToLower(strings.TrimSpace(q.BusinessType))
	q.OfferingType = strings.ToLower(strings.TrimSpace(q.OfferingType))
	q.Query = strings.TrimSpace(q.Query)
	q.Region = strings.TrimSpace(q.Region)
	if q.Region == "" {
		q.Region = "global"
	}
	return q
}

// Validate checks the business and offering types.
func (q Query) Validate() error {
	switch q.BusinessType {
	case "digital", "physical":
	default:
		return fmt.Errorf("%w: business_type must be 'digital' or 'physical'", ErrInvalidQuery)
	}
	switch q.OfferingType {
	case "product", "service":
	default:
		return fmt.Errorf("%w: offering_type must be 'product' or 'service'", ErrInvalidQuery)
	}
	return nil
}

func (q Query) key() string {
	return strings.Join([]string{q.BusinessType, q.OfferingType, strings.ToLower(q.Query), strings.ToLower(q.Region)}, "|")
}

// Platforms returns the marketplaces relevant to the query.
func Platforms(q Query) []string {
	q = q.Normalize()
	platforms := platformMapping[q.BusinessType+"_"+q.OfferingType]
	out := make([]string, len(platforms))
	copy(out, platforms)
	return out
}

const mockListingCount = 20

// MockListings generates plausible listings for the query. The output
// depends only on the query so repeated calls agree.
func MockListings(q Query) []Listing {
	q = q.Normalize()
	platforms := Platforms(q)
	if len(platforms) == 0 {
		return nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(q.key()))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) // #nosec G404 -- mock data, not security sensitive

	basePrice := 1000.0
	if q.BusinessType == "digital" {
		basePrice = 500
	}
	currency := "USD"
	if strings.Contains(strings.ToLower(q.Region), "india") {
		currency = "INR"
	}

	listings := make([]Listing, 0, mockListingCount)
	for i := 0; i < mockListingCount; i++ {
		listings = append(listings, Listing{
			Source:   platforms[i%len(platforms)],
			Title:    fmt.Sprintf("%s offering %d", q.OfferingType, i+1),
			Price:    math.Round(basePrice * (0.5 + rng.Float64()*1.5)),
			Currency: currency,
			Rating:   4 + rng.Float64(),
			Reviews:  rng.Intn(500),
			Delivery: 3 + rng.Intn(14),
		})
	}
	return listings
}

// Clean drops listings without a price, rounds prices and ratings, and
// sorts by price.
func Clean(listings []Listing) []Listing {
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if l.Price <= 0 {
			continue
		}
		l.Price = math.Round(l.Price)
		if l.Rating > 0 {
			l.Rating = math.Round(l.Rating*10) / 10
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// Stats summarizes listing prices.
type Stats struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Average  float64 `json:"average"`
	Median   float64 `json:"median"`
	Top10    float64 `json:"top10"`
	Bottom10 float64 `json:"bottom10"`
}

// Summarize computes price statistics. An empty input yields zero Stats.
func Summarize(listings []Listing) Stats {
	if len(listings) == 0 {
		return Stats{}
	}

	prices := make([]float64, len(listings))
	var sum float64
	for i, l := range listings {
		prices[i] = l.Price
		sum += l.Price
	}
	sort.Float64s(prices)

	n := len(prices)
	return Stats{
		Count:    n,
		Min:      prices[0],
		Max:      prices[n-1],
		Average:  math.Round(sum / float64(n)),
		Median:   prices[n/2],
		Top10:    prices[int(float64(n)*0.9)],
		Bottom10: prices[int(float64(n)*0.1)],
	}
}
