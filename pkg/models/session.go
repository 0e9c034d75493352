package models

import (
	"fmt"
	"time"
)

// Provider identifies where a session identifier was issued.
type Provider string

const (
	ProviderBraze     Provider = "braze"
	ProviderAmplitude Provider = "amplitude"
	ProviderInternal  Provider = "internal"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderBraze, ProviderAmplitude, ProviderInternal:
		return true
	default:
		return false
	}
}

// IsExternal reports whether p is a third-party analytics provider.
func (p Provider) IsExternal() bool {
	return p == ProviderBraze || p == ProviderAmplitude
}

// Session is one visitor session, keyed by its internal session id.
type Session struct {
	ID                string    `json:"id"`
	InternalSessionID string    `json:"internalSessionId"`
	Provider          Provider  `json:"provider,omitempty"`
	BrazeSession      string    `json:"brazeSession,omitempty"`
	AmplitudeSession  string    `json:"amplitudeSession,omitempty"`
	Email             string    `json:"email,omitempty"`
	BrandID           string    `json:"brandId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

// IsExternal reports whether the session carries a third-party provider identifier.
func (s Session) IsExternal() bool {
	return s.Provider.IsExternal() || s.BrazeSession != "" || s.AmplitudeSession != ""
}

// ExternalID returns the identifier the session carries for provider p.
func (s Session) ExternalID(p Provider) string {
	switch p {
	case ProviderBraze:
		return s.BrazeSession
	case ProviderAmplitude:
		return s.AmplitudeSession
	case ProviderInternal:
		return s.InternalSessionID
	default:
		return ""
	}
}

// DeriveInternalSessionID builds the stable internal id for an anonymous visitor.
// Repeated calls with the same inputs return the same id.
func DeriveInternalSessionID(provider Provider, externalSessionID, brandID string) string {
	return fmt.Sprintf("%s:%s:%s", provider, externalSessionID, brandID)
}

// SessionFields are set-if-present attributes applied on session upsert.
// Provider is only written when the session is created.
type SessionFields struct {
	Provider         Provider
	BrazeSession     string
	AmplitudeSession string
	Email            string
	BrandID          string
}

// SetExternalID assigns id to the field that belongs to provider p.
func (f *SessionFields) SetExternalID(p Provider, id string) {
	switch p {
	case ProviderBraze:
		f.BrazeSession = id
	case ProviderAmplitude:
		f.AmplitudeSession = id
	}
}

// Props returns only the fields that carry a value. Provider is excluded.
func (f SessionFields) Props() map[string]any {
	props := map[string]any{}
	if f.BrazeSession != "" {
		props["brazeSession"] = f.BrazeSession
	}
	if f.AmplitudeSession != "" {
		props["amplitudeSession"] = f.AmplitudeSession
	}
	if f.Email != "" {
		props["email"] = NormalizeEmail(f.Email)
	}
	if f.BrandID != "" {
		props["brandId"] = f.BrandID
	}
	return props
}

// SessionKeyField names an indexed session property usable for lookup.
type SessionKeyField string

const (
	SessionKeyInternal  SessionKeyField = "internalSessionId"
	SessionKeyBraze     SessionKeyField = "brazeSession"
	SessionKeyAmplitude SessionKeyField = "amplitudeSession"
	SessionKeyEmail     SessionKeyField = "email"
)

// SessionKeyPriority is the order candidate keys are tried in. The first match wins.
var SessionKeyPriority = []SessionKeyField{
	SessionKeyInternal,
	SessionKeyBraze,
	SessionKeyAmplitude,
	SessionKeyEmail,
}

// SessionKeys is a set of candidate identifiers for one session lookup.
type SessionKeys struct {
	InternalSessionID string `json:"internalSessionId,omitempty"`
	BrazeSession      string `json:"brazeSession,omitempty"`
	AmplitudeSession  string `json:"amplitudeSession,omitempty"`
	Email             string `json:"email,omitempty"`
}

// KeysForProvider returns lookup keys for a provider-issued session id.
func KeysForProvider(p Provider, externalSessionID string) SessionKeys {
	var keys SessionKeys
	switch p {
	case ProviderBraze:
		keys.BrazeSession = externalSessionID
	case ProviderAmplitude:
		keys.AmplitudeSession = externalSessionID
	case ProviderInternal:
		keys.InternalSessionID = externalSessionID
	}
	return keys
}

// Value returns the candidate value for field.
func (k SessionKeys) Value(field SessionKeyField) string {
	switch field {
	case SessionKeyInternal:
		return k.InternalSessionID
	case SessionKeyBraze:
		return k.BrazeSession
	case SessionKeyAmplitude:
		return k.AmplitudeSession
	case SessionKeyEmail:
		return NormalizeEmail(k.Email)
	default:
		return ""
	}
}

// IsEmpty reports whether no candidate key is set.
func (k SessionKeys) IsEmpty() bool {
	for _, field := range SessionKeyPriority {
		if k.Value(field) != "" {
			return false
		}
	}
	return true
}
