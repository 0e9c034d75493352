package resolver

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectolinq"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/models"
)

// LinkOnLogin links the caller's session to a customer found or created from the
// login attributes, then makes it the customer's latest session.
func (r *Resolver) LinkOnLogin(ctx context.Context, req LinkRequest) (*LoginResult, error) {
	return r.linkOnLogin(ctx, "LinkOnLogin", req)
}

// LinkExternalSessionToCustomer links a Braze or Amplitude session to the customer with email
func (r *Resolver) LinkExternalSessionToCustomer(ctx context.Context, req LinkExternalRequest) (*LoginResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	return r.linkOnLogin(ctx, "LinkExternalSessionToCustomer", LinkRequest{
		Provider:          req.Provider,
		ExternalSessionID: req.ExternalSessionID,
		BrandID:           req.BrandID,
		Email:             req.Email,
	})
}

// LinkInternalSessionToCustomer links an internal session to the customer with email
func (r *Resolver) LinkInternalSessionToCustomer(ctx context.Context, req LinkInternalRequest) (*LoginResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	return r.linkOnLogin(ctx, "LinkInternalSessionToCustomer", LinkRequest{
		Provider:          models.ProviderInternal,
		InternalSessionID: req.InternalSessionID,
		BrandID:           req.BrandID,
		Email:             req.Email,
	})
}

func (r *Resolver) linkOnLogin(ctx context.Context, op string, req LinkRequest) (*LoginResult, error) {
	if req.Email == "" && req.Phone == "" && req.CustomerID == "" {
		return nil, &ValidationError{Field: "email", Err: ErrMissingLinkAttribute}
	}
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	if req.InternalSessionID == "" {
		if req.Provider == "" {
			return nil, &ValidationError{Field: "provider", Err: ErrMissingSessionKey}
		}
		if req.ExternalSessionID == "" {
			return nil, &ValidationError{Field: "externalSessionId", Err: ErrMissingSessionKey}
		}
	}

	provider := req.Provider
	if provider == "" {
		provider = models.ProviderInternal
	}
	sid := sessionIDFor(provider, req.ExternalSessionID, req.BrandID, req.InternalSessionID)

	fields := models.SessionFields{
		Provider: provider,
		BrandID:  req.BrandID,
		Email:    req.Email,
	}
	fields.SetExternalID(provider, req.ExternalSessionID)

	result := &LoginResult{InternalSessionID: sid}
	err = r.withUnit(ctx, op, identity.AccessWrite, func(ctx context.Context, uow identity.UnitOfWork) error {
		customer, err := r.loginCustomer(ctx, uow, req)
		if err != nil {
			return err
		}

		session, err := uow.UpsertSession(ctx, sid, fields)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		if provider.IsExternal() && req.ExternalSessionID != "" {
			if _, err := uow.UpsertIdentity(ctx, provider, req.ExternalSessionID, sid); err != nil {
				return fmt.Errorf("failed to record identity: %w", err)
			}
		}

		link, err := r.linkSession(ctx, uow, sid, customer.ID)
		if err != nil {
			return err
		}
		if err := uow.SetLatestSession(ctx, customer.ID, sid); err != nil {
			return fmt.Errorf("failed to set latest session: %w", err)
		}
		customer.InternalSessionID = sid

		result.Customer = customer
		result.Session = session
		result.Link = link
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, "customer.linked", func(p EventPublisher) error {
		return p.EmitCustomerLinked(ctx, result.Session, result.Customer, result.Link)
	})

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"internal_session_id": sid,
		"customer_id":         result.Customer.ID,
		"outcome":             string(result.Link.Outcome),
	}).Info("Linked session to customer")

	return result, nil
}

// loginCustomer resolves the customer for a login: email, then customer id, then phone.
func (r *Resolver) loginCustomer(ctx context.Context, uow identity.UnitOfWork, req LinkRequest) (*models.Customer, error) {
	switch {
	case req.Email != "":
		customer, err := uow.UpsertCustomer(ctx, models.EmailKey(req.Email), models.CustomerFields{
			Email: req.Email,
			Phone: req.Phone,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert customer by email: %w", err)
		}
		return customer, nil
	case req.CustomerID != "":
		customer, err := uow.FindCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to find customer: %w", err)
		}
		if customer == nil {
			return nil, fmt.Errorf("customer %q: %w", req.CustomerID, identity.ErrCustomerNotFound)
		}
		return customer, nil
	default:
		customer, err := uow.UpsertCustomer(ctx, models.PhoneKey(req.Phone), models.CustomerFields{Phone: req.Phone})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert customer by phone: %w", err)
		}
		return customer, nil
	}
}

// StitchInternalToExisting links an internal session to the customer with email,
// makes it the latest session and adds LINKED_TO edges from it to every external
// provider session the customer already has.
func (r *Resolver) StitchInternalToExisting(ctx context.Context, req StitchRequest) (*StitchResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	sid := req.InternalSessionID
	result := &StitchResult{}
	err = r.withUnit(ctx, "StitchInternalToExisting", identity.AccessWrite, func(ctx context.Context, uow identity.UnitOfWork) error {
		customer, err := uow.UpsertCustomer(ctx, models.EmailKey(req.Email), models.CustomerFields{Email: req.Email})
		if err != nil {
			return fmt.Errorf("failed to upsert customer by email: %w", err)
		}

		session, err := uow.UpsertSession(ctx, sid, models.SessionFields{
			Provider: models.ProviderInternal,
			Email:    req.Email,
			BrandID:  req.BrandID,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}

		link, err := r.linkSession(ctx, uow, sid, customer.ID)
		if err != nil {
			return err
		}
		if err := uow.SetLatestSession(ctx, customer.ID, sid); err != nil {
			return fmt.Errorf("failed to set latest session: %w", err)
		}
		customer.InternalSessionID = sid

		sessions, err := uow.CustomerSessions(ctx, customer.ID)
		if err != nil {
			return fmt.Errorf("failed to load customer sessions: %w", err)
		}
		external := ectolinq.Filter(sessions, func(s models.SessionWithBrand) bool {
			return s.Session.IsExternal() && s.Session.InternalSessionID != sid
		})
		targets := ectolinq.Map(external, func(s models.SessionWithBrand) string {
			return s.Session.InternalSessionID
		})

		if _, err := uow.LinkSessions(ctx, sid, targets); err != nil {
			return fmt.Errorf("failed to link sessions: %w", err)
		}

		result.Customer = customer
		result.Session = session
		result.Link = link
		result.LinkedSessions = targets
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, "customer.linked", func(p EventPublisher) error {
		return p.EmitCustomerLinked(ctx, result.Session, result.Customer, result.Link)
	})
	r.publish(ctx, "session.stitched", func(p EventPublisher) error {
		return p.EmitSessionStitched(ctx, result.Customer, sid, result.LinkedSessions)
	})

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"internal_session_id": sid,
		"customer_id":         result.Customer.ID,
		"linked_sessions":     len(result.LinkedSessions),
	}).Info("Stitched internal session to existing sessions")

	return result, nil
}
