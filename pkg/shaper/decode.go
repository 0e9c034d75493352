package shaper

import "github.com/blessingk/neo4j/pkg/models"

// BrandFromProps builds a Brand from node properties. Nil props return nil.
func BrandFromProps(props map[string]any) *models.Brand {
	if props == nil {
		return nil
	}
	return &models.Brand{
		ID:   stringProp(props, "id"),
		Name: stringProp(props, "name"),
		Slug: stringProp(props, "slug"),
	}
}

// CustomerFromProps builds a Customer from node properties. Nil props return nil.
func CustomerFromProps(props map[string]any) *models.Customer {
	if props == nil {
		return nil
	}
	return &models.Customer{
		ID:                stringProp(props, "id"),
		Email:             stringProp(props, "email"),
		Phone:             stringProp(props, "phone"),
		InternalSessionID: stringProp(props, "internalSessionId"),
		CreatedAt:         timeProp(props, "createdAt"),
	}
}

// SessionFromProps builds a Session from node properties. Nil props return nil.
func SessionFromProps(props map[string]any) *models.Session {
	if props == nil {
		return nil
	}
	return &models.Session{
		ID:                stringProp(props, "id"),
		InternalSessionID: stringProp(props, "internalSessionId"),
		Provider:          models.Provider(stringProp(props, "provider")),
		BrazeSession:      stringProp(props, "brazeSession"),
		AmplitudeSession:  stringProp(props, "amplitudeSession"),
		Email:             stringProp(props, "email"),
		BrandID:           stringProp(props, "brandId"),
		CreatedAt:         timeProp(props, "createdAt"),
		LastSeenAt:        timeProp(props, "lastSeenAt"),
	}
}

// IdentityFromProps builds an Identity from node properties. Nil props return nil.
func IdentityFromProps(props map[string]any) *models.Identity {
	if props == nil {
		return nil
	}
	return &models.Identity{
		ID:         stringProp(props, "id"),
		Provider:   models.Provider(stringProp(props, "provider")),
		ExternalID: stringProp(props, "externalId"),
		CreatedAt:  timeProp(props, "createdAt"),
	}
}
