package models

import (
	"strings"
	"time"
)

// Customer is the durable identity that sessions resolve to.
type Customer struct {
	ID                string    `json:"id"`
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	InternalSessionID string    `json:"internalSessionId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CustomerKeyField names the property a customer is merged on.
type CustomerKeyField string

const (
	CustomerKeyEmail CustomerKeyField = "email"
	CustomerKeyPhone CustomerKeyField = "phone"
)

// CustomerKey identifies a customer for merge and lookup.
type CustomerKey struct {
	Field CustomerKeyField
	Value string
}

// EmailKey returns the canonical customer key for an email address.
func EmailKey(email string) CustomerKey {
	return CustomerKey{Field: CustomerKeyEmail, Value: NormalizeEmail(email)}
}

// PhoneKey returns the secondary customer key for a phone number.
func PhoneKey(phone string) CustomerKey {
	return CustomerKey{Field: CustomerKeyPhone, Value: strings.TrimSpace(phone)}
}

// Valid reports whether the key names a known field and carries a value.
func (k CustomerKey) Valid() bool {
	switch k.Field {
	case CustomerKeyEmail, CustomerKeyPhone:
		return k.Value != ""
	default:
		return false
	}
}

// CustomerFields are set-if-present attributes applied on customer upsert.
type CustomerFields struct {
	Email             string
	Phone             string
	InternalSessionID string
}

// Props returns only the fields that carry a value.
func (f CustomerFields) Props() map[string]any {
	props := map[string]any{}
	if f.Email != "" {
		props["email"] = NormalizeEmail(f.Email)
	}
	if f.Phone != "" {
		props["phone"] = strings.TrimSpace(f.Phone)
	}
	if f.InternalSessionID != "" {
		props["internalSessionId"] = f.InternalSessionID
	}
	return props
}

// NormalizeEmail lowercases and trims an email so it can be used as a merge key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
