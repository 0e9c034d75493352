package resolver

import (
	"context"
	"fmt"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/models"
)

// CreateOrUpdateCustomerSession upserts an internal session. Braze and Amplitude ids
// are recorded on it; an email also links it to that customer as the latest session.
func (r *Resolver) CreateOrUpdateCustomerSession(ctx context.Context, req CustomerSessionRequest) (*CustomerSessionResult, error) {
	return r.upsertCustomerSession(ctx, "CreateOrUpdateCustomerSession", req)
}

func (r *Resolver) upsertCustomerSession(ctx context.Context, op string, req CustomerSessionRequest) (*CustomerSessionResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	sid := req.InternalSessionID
	fields := models.SessionFields{
		Provider:         models.ProviderInternal,
		BrazeSession:     req.BrazeSession,
		AmplitudeSession: req.AmplitudeSession,
		Email:            req.Email,
		BrandID:          req.BrandID,
	}

	result := &CustomerSessionResult{}
	var link *models.LinkResult
	err = r.withUnit(ctx, op, identity.AccessWrite, func(ctx context.Context, uow identity.UnitOfWork) error {
		session, err := uow.UpsertSession(ctx, sid, fields)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		result.Session = session

		if err := recordIdentities(ctx, uow, sid, req.BrazeSession, req.AmplitudeSession); err != nil {
			return err
		}

		if req.Email == "" {
			graph, err := uow.Neighborhood(ctx, sid)
			if err != nil {
				return fmt.Errorf("failed to load session neighborhood: %w", err)
			}
			if graph != nil {
				result.Customer = graph.Customer
			}
			return nil
		}

		customer, err := uow.UpsertCustomer(ctx, models.EmailKey(req.Email), models.CustomerFields{Email: req.Email})
		if err != nil {
			return fmt.Errorf("failed to upsert customer by email: %w", err)
		}
		res, err := r.linkSession(ctx, uow, sid, customer.ID)
		if err != nil {
			return err
		}
		if err := uow.SetLatestSession(ctx, customer.ID, sid); err != nil {
			return fmt.Errorf("failed to set latest session: %w", err)
		}
		customer.InternalSessionID = sid

		result.Customer = customer
		link = &res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if link != nil {
		r.publish(ctx, "customer.linked", func(p EventPublisher) error {
			return p.EmitCustomerLinked(ctx, result.Session, result.Customer, *link)
		})
	} else {
		r.publish(ctx, "session.identified", func(p EventPublisher) error {
			return p.EmitSessionIdentified(ctx, result.Session)
		})
	}

	return result, nil
}

// UpdateCustomerSession refreshes an existing session. Fields left empty keep their
// stored values. It returns nil when the session is unknown.
func (r *Resolver) UpdateCustomerSession(ctx context.Context, req CustomerSessionRequest) (*CustomerSessionResult, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	sid := req.InternalSessionID
	var result *CustomerSessionResult
	err = r.withUnit(ctx, "UpdateCustomerSession", identity.AccessWrite, func(ctx context.Context, uow identity.UnitOfWork) error {
		existing, err := uow.FindByAnyKey(ctx, models.SessionKeys{InternalSessionID: sid})
		if err != nil {
			return fmt.Errorf("failed to find session: %w", err)
		}
		if existing == nil {
			return nil
		}

		session, err := uow.UpsertSession(ctx, sid, models.SessionFields{
			BrazeSession:     req.BrazeSession,
			AmplitudeSession: req.AmplitudeSession,
			Email:            req.Email,
			BrandID:          req.BrandID,
		})
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if err := recordIdentities(ctx, uow, sid, req.BrazeSession, req.AmplitudeSession); err != nil {
			return err
		}

		graph, err := uow.Neighborhood(ctx, sid)
		if err != nil {
			return fmt.Errorf("failed to load session neighborhood: %w", err)
		}

		result = &CustomerSessionResult{Session: session}
		if graph != nil {
			result.Customer = graph.Customer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		r.logger.WithContext(ctx).WithField("internal_session_id", sid).Debug("Session to update not found")
	}
	return result, nil
}

// GetCustomerSession returns the session with its customer and brand, or nil
func (r *Resolver) GetCustomerSession(ctx context.Context, internalSessionID string) (*models.SessionGraph, error) {
	if internalSessionID == "" {
		return nil, &ValidationError{Field: "internalSessionId", Err: ErrMissingSessionKey}
	}

	var result *models.SessionGraph
	err := r.withUnit(ctx, "GetCustomerSession", identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		graph, err := uow.Neighborhood(ctx, internalSessionID)
		if err != nil {
			return fmt.Errorf("failed to load session neighborhood: %w", err)
		}
		if graph == nil {
			return nil
		}

		linked, err := uow.LinkedSessions(ctx, internalSessionID)
		if err != nil {
			return fmt.Errorf("failed to load linked sessions: %w", err)
		}
		graph.LinkedSessions = linked
		result = graph
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func recordIdentities(ctx context.Context, uow identity.UnitOfWork, internalSessionID, braze, amplitude string) error {
	if braze != "" {
		if _, err := uow.UpsertIdentity(ctx, models.ProviderBraze, braze, internalSessionID); err != nil {
			return fmt.Errorf("failed to record braze identity: %w", err)
		}
	}
	if amplitude != "" {
		if _, err := uow.UpsertIdentity(ctx, models.ProviderAmplitude, amplitude, internalSessionID); err != nil {
			return fmt.Errorf("failed to record amplitude identity: %w", err)
		}
	}
	return nil
}
