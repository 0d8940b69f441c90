package core

import "time"

// Profile is a user's account row. Credits is the prepaid balance; one
// consultation consumes one credit.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Credits   int       `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	Name    string `json:"name"`
	Credits int    `json:"credits"`
	// PriceCents is the list price in USD cents.
	PriceCents int64 `json:"price_cents"`
}

// CreditPackages lists the packages offered at checkout.
var CreditPackages = []CreditPackage{
	{Name: "Starter", Credits: 5, PriceCents: 1000},
	{Name: "Professional", Credits: 10, PriceCents: 1500},
	{Name: "Business", Credits: 20, PriceCents: 2500},
}

// FindCreditPackage returns the package granting the given credits.
func FindCreditPackage(credits int) (CreditPackage, bool) {
	for _, pkg := range CreditPackages {
		if pkg.Credits == credits {
			return pkg, true
		}
	}
	return CreditPackage{}, false
}
