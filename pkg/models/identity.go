package models

import "time"

// Identity records one provider-issued identifier seen for a session.
type Identity struct {
	ID         string    `json:"id"`
	Provider   Provider  `json:"provider"`
	ExternalID string    `json:"externalId"`
	CreatedAt  time.Time `json:"createdAt"`
}
