package resolver

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/models"
)

// Identify records an anonymous provider session. It never creates a customer; if
// the session is already linked, the linked customer is returned.
func (r *Resolver) Identify(ctx context.Context, req IdentifyRequest) (*IdentifyResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	sid := sessionIDFor(req.Provider, req.ExternalSessionID, req.BrandID, req.InternalSessionID)
	fields := models.SessionFields{
		Provider: req.Provider,
		BrandID:  req.BrandID,
		Email:    req.Email,
	}
	fields.SetExternalID(req.Provider, req.ExternalSessionID)

	result := &IdentifyResult{InternalSessionID: sid}
	err = r.withUnit(ctx, "Identify", identity.AccessWrite, func(ctx context.Context, uow identity.UnitOfWork) error {
		session, err := uow.UpsertSession(ctx, sid, fields)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		result.Session = session

		if req.Provider.IsExternal() {
			if _, err := uow.UpsertIdentity(ctx, req.Provider, req.ExternalSessionID, sid); err != nil {
				return fmt.Errorf("failed to record identity: %w", err)
			}
		}

		graph, err := uow.Neighborhood(ctx, sid)
		if err != nil {
			return fmt.Errorf("failed to load session neighborhood: %w", err)
		}
		if graph != nil {
			result.Customer = graph.Customer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, "session.identified", func(p EventPublisher) error {
		return p.EmitSessionIdentified(ctx, result.Session)
	})

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"internal_session_id": sid,
		"provider":            string(req.Provider),
		"linked":              result.Customer != nil,
	}).Debug("Identified session")

	return result, nil
}

// QuickIdentify looks a session up without changing anything
func (r *Resolver) QuickIdentify(ctx context.Context, req QuickIdentifyRequest) (*QuickIdentifyResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	var keys models.SessionKeys
	switch {
	case req.InternalSessionID != "":
		keys.InternalSessionID = req.InternalSessionID
	case req.Provider != "" && req.ExternalSessionID != "":
		keys = models.KeysForProvider(req.Provider, req.ExternalSessionID)
		if req.Provider.IsExternal() && req.BrandID != "" {
			// The brand-specific session wins over the same provider id seen elsewhere.
			keys.InternalSessionID = models.DeriveInternalSessionID(req.Provider, req.ExternalSessionID, req.BrandID)
		}
	default:
		return nil, &ValidationError{Field: "internalSessionId", Err: ErrMissingSessionKey}
	}

	result := &QuickIdentifyResult{}
	err = r.withUnit(ctx, "QuickIdentify", identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		session, err := uow.FindByAnyKey(ctx, keys)
		if err != nil {
			return fmt.Errorf("failed to find session: %w", err)
		}
		if session == nil {
			return nil
		}

		graph, err := uow.Neighborhood(ctx, session.InternalSessionID)
		if err != nil {
			return fmt.Errorf("failed to load session neighborhood: %w", err)
		}
		if graph == nil {
			return nil
		}

		result.Found = true
		result.Session = graph.Session
		result.Customer = graph.Customer
		result.Brand = graph.Brand
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindCustomerBySession resolves candidate keys to a session and its customer. It
// returns nil when no session matches or the matched session has no customer.
func (r *Resolver) FindCustomerBySession(ctx context.Context, keys models.SessionKeys) (*models.SessionGraph, error) {
	if keys.IsEmpty() {
		return nil, &ValidationError{Field: "internalSessionId", Err: ErrMissingSessionKey}
	}
	return r.findCustomerBySession(ctx, "FindCustomerBySession", keys)
}

func (r *Resolver) findCustomerBySession(ctx context.Context, op string, keys models.SessionKeys) (*models.SessionGraph, error) {
	var result *models.SessionGraph
	err := r.withUnit(ctx, op, identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		session, err := uow.FindByAnyKey(ctx, keys)
		if err != nil {
			return fmt.Errorf("failed to find session: %w", err)
		}
		if session == nil {
			return nil
		}

		graph, err := uow.Neighborhood(ctx, session.InternalSessionID)
		if err != nil {
			return fmt.Errorf("failed to load session neighborhood: %w", err)
		}
		if graph == nil || graph.Customer == nil {
			return nil
		}
		result = graph
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCustomerForSession resolves a provider-issued session id to its customer
func (r *Resolver) GetCustomerForSession(ctx context.Context, provider models.Provider, externalSessionID string) (*models.SessionGraph, error) {
	if !provider.Valid() {
		return nil, &ValidationError{Field: "provider", Err: fmt.Errorf("unknown provider %q", provider)}
	}
	if externalSessionID == "" {
		return nil, &ValidationError{Field: "externalSessionId", Err: ErrMissingSessionKey}
	}
	return r.findCustomerBySession(ctx, "GetCustomerForSession", models.KeysForProvider(provider, externalSessionID))
}

// FindCustomerByAnySession returns only the customer behind any of the given ids
func (r *Resolver) FindCustomerByAnySession(ctx context.Context, req FindCustomerRequest) (*models.Customer, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	keys := models.SessionKeys{InternalSessionID: req.InternalSessionID}
	if req.Provider != "" && req.ExternalSessionID != "" {
		ext := models.KeysForProvider(req.Provider, req.ExternalSessionID)
		keys.BrazeSession = ext.BrazeSession
		keys.AmplitudeSession = ext.AmplitudeSession
		if keys.InternalSessionID == "" {
			keys.InternalSessionID = ext.InternalSessionID
		}
	}
	if keys.IsEmpty() {
		return nil, &ValidationError{Field: "internalSessionId", Err: ErrMissingSessionKey}
	}

	graph, err := r.findCustomerBySession(ctx, "FindCustomerByAnySession", keys)
	if err != nil || graph == nil {
		return nil, err
	}
	return graph.Customer, nil
}

// CreateInternalSession starts a new internal session with a generated id. When an
// email is given the session is linked to that customer.
func (r *Resolver) CreateInternalSession(ctx context.Context, req CreateInternalSessionRequest) (*CustomerSessionResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	return r.upsertCustomerSession(ctx, "CreateInternalSession", CustomerSessionRequest{
		InternalSessionID: uuid.NewString(),
		Email:             req.Email,
		BrandID:           req.BrandID,
	})
}
