package models

import "time"

// SessionGraph is a session with its linked customer and brand, if any.
type SessionGraph struct {
	Session  *Session  `json:"session"`
	Customer *Customer `json:"customer"`
	Brand    *Brand    `json:"brand"`
	// LinkedSessions holds LINKED_TO neighbours. Only session reads fill it.
	LinkedSessions []Session `json:"linkedSessions,omitempty"`
}

// SessionWithBrand pairs a session with the brand it was attributed to.
type SessionWithBrand struct {
	Session Session `json:"session"`
	Brand   *Brand  `json:"brand,omitempty"`
}

// LinkOutcome describes what a link call did to a session's BELONGS_TO edge.
type LinkOutcome string

const (
	LinkCreated   LinkOutcome = "created"
	LinkUnchanged LinkOutcome = "unchanged"
	LinkRepointed LinkOutcome = "repointed"
)

// LinkResult is returned when a session is linked to a customer.
type LinkResult struct {
	Outcome            LinkOutcome `json:"outcome"`
	PreviousCustomerID string      `json:"previousCustomerId,omitempty"`
	// MigratedSessions counts linked sessions moved along with a migrate re-link.
	MigratedSessions int `json:"migratedSessions,omitempty"`
}

// LoyaltyMetrics summarizes a customer's activity across brands.
type LoyaltyMetrics struct {
	TotalSessions      int        `json:"totalSessions"`
	TotalBrands        int        `json:"totalBrands"`
	CrossBrandActivity bool       `json:"crossBrandActivity"`
	LastActivity       *time.Time `json:"lastActivity"`
	LastBrand          *Brand     `json:"lastBrand,omitempty"`
}

// LoyaltyFilters narrow a customer activity listing.
type LoyaltyFilters struct {
	CrossBrandOnly bool `json:"crossBrandOnly" query:"crossBrandOnly"`
	MinSessions    int  `json:"minSessions" query:"minSessions"`
	MinBrands      int  `json:"minBrands" query:"minBrands"`
}

// CustomerActivity is one row of the cross-customer activity listing.
type CustomerActivity struct {
	CustomerID         string     `json:"customerId"`
	Email              string     `json:"email"`
	SessionCount       int        `json:"sessionCount"`
	BrandCount         int        `json:"brandCount"`
	CrossBrandActivity bool       `json:"crossBrandActivity"`
	LastActivity       *time.Time `json:"lastActivity"`
}
