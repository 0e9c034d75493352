package resolver

import "github.com/blessingk/neo4j/pkg/models"

type UpsertBrandRequest struct {
	ID   string `json:"id" param:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug" validate:"required"`
}

// IdentifyRequest records an anonymous visit from a provider.
type IdentifyRequest struct {
	Provider          models.Provider `json:"provider" validate:"required,oneof=braze amplitude internal"`
	ExternalSessionID string          `json:"externalSessionId" validate:"required"`
	BrandID           string          `json:"brandId,omitempty"`
	InternalSessionID string          `json:"internalSessionId,omitempty"`
	Email             string          `json:"email,omitempty" validate:"omitempty,email"`
}

type IdentifyResult struct {
	InternalSessionID string           `json:"internalSessionId"`
	Customer          *models.Customer `json:"customer"`
	Session           *models.Session  `json:"session"`
}

// LinkRequest ties a session to a customer on login. One of Email, Phone or
// CustomerID is required; email takes precedence, then customer id, then phone.
type LinkRequest struct {
	Provider          models.Provider `json:"provider,omitempty" validate:"omitempty,oneof=braze amplitude internal"`
	ExternalSessionID string          `json:"externalSessionId,omitempty"`
	BrandID           string          `json:"brandId,omitempty"`
	InternalSessionID string          `json:"internalSessionId,omitempty"`
	Email             string          `json:"email,omitempty" validate:"omitempty,email"`
	Phone             string          `json:"phone,omitempty"`
	CustomerID        string          `json:"customerId,omitempty"`
}

type LoginResult struct {
	InternalSessionID string            `json:"internalSessionId"`
	Customer          *models.Customer  `json:"customer"`
	Session           *models.Session   `json:"session"`
	Link              models.LinkResult `json:"link"`
}

// QuickIdentifyRequest names a session by internal id, or by provider and external id.
type QuickIdentifyRequest struct {
	InternalSessionID string          `json:"internalSessionId,omitempty" query:"internalSessionId"`
	Provider          models.Provider `json:"provider,omitempty" query:"provider" validate:"omitempty,oneof=braze amplitude internal"`
	ExternalSessionID string          `json:"externalSessionId,omitempty" query:"externalSessionId"`
	BrandID           string          `json:"brandId,omitempty" query:"brandId"`
}

// QuickIdentifyResult distinguishes an unknown session (Found false) from a known
// anonymous one (Found true, Customer nil).
type QuickIdentifyResult struct {
	Found    bool             `json:"found"`
	Session  *models.Session  `json:"session"`
	Customer *models.Customer `json:"customer"`
	Brand    *models.Brand    `json:"brand"`
}

type StitchRequest struct {
	Email             string `json:"email" validate:"required,email"`
	InternalSessionID string `json:"internalSessionId" validate:"required"`
	BrandID           string `json:"brandId,omitempty"`
}

type StitchResult struct {
	Customer       *models.Customer  `json:"customer"`
	Session        *models.Session   `json:"session"`
	Link           models.LinkResult `json:"link"`
	LinkedSessions []string          `json:"linkedSessions"`
}

// CustomerSessionRequest creates or refreshes a session keyed by internal id.
type CustomerSessionRequest struct {
	InternalSessionID string `json:"internalSessionId" validate:"required"`
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
	BrazeSession      string `json:"brazeSession,omitempty"`
	AmplitudeSession  string `json:"amplitudeSession,omitempty"`
	BrandID           string `json:"brandId,omitempty"`
}

type CustomerSessionResult struct {
	Customer *models.Customer `json:"customer"`
	Session  *models.Session  `json:"session"`
}

type CreateInternalSessionRequest struct {
	BrandID string `json:"brandId,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
}

type LinkExternalRequest struct {
	Email             string          `json:"email" validate:"required,email"`
	Provider          models.Provider `json:"provider" validate:"required,oneof=braze amplitude"`
	ExternalSessionID string          `json:"externalSessionId" validate:"required"`
	BrandID           string          `json:"brandId,omitempty"`
}

type LinkInternalRequest struct {
	Email             string `json:"email" validate:"required,email"`
	InternalSessionID string `json:"internalSessionId" validate:"required"`
	BrandID           string `json:"brandId,omitempty"`
}

// FindCustomerRequest names a session by internal id and/or provider and external id.
type FindCustomerRequest struct {
	InternalSessionID string          `json:"internalSessionId,omitempty" query:"internalSessionId"`
	Provider          models.Provider `json:"provider,omitempty" query:"provider" validate:"omitempty,oneof=braze amplitude internal"`
	ExternalSessionID string          `json:"externalSessionId,omitempty" query:"externalSessionId"`
}

type CustomerWithSessions struct {
	Customer *models.Customer          `json:"customer"`
	Sessions []models.SessionWithBrand `json:"sessions"`
}

type LatestSessionResult struct {
	Customer *models.Customer `json:"customer"`
	Session  *models.Session  `json:"session"`
	Brand    *models.Brand    `json:"brand"`
}

type LoyaltyProfile struct {
	Customer       *models.Customer          `json:"customer"`
	Sessions       []models.SessionWithBrand `json:"sessions"`
	Brands         []models.Brand            `json:"brands"`
	LoyaltyMetrics models.LoyaltyMetrics     `json:"loyaltyMetrics"`
}
