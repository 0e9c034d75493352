// Package resolver implements identity resolution and session stitching on top of
// the identity repository.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/metrics"
	"github.com/blessingk/neo4j/pkg/models"
	"github.com/blessingk/neo4j/pkg/tracing"
)

const defaultActivityLimit = 1000

// EventPublisher receives identity graph changes after an operation succeeds.
type EventPublisher interface {
	EmitSessionIdentified(ctx context.Context, session *models.Session) error
	EmitCustomerLinked(ctx context.Context, session *models.Session, customer *models.Customer, link models.LinkResult) error
	EmitSessionStitched(ctx context.Context, customer *models.Customer, internalSessionID string, linked []string) error
	EmitBrandUpserted(ctx context.Context, brand *models.Brand) error
}

// BrandCache is a read-through cache for brands.
type BrandCache interface {
	Get(ctx context.Context, id string) *models.Brand
	Set(ctx context.Context, brand *models.Brand)
	Invalidate(ctx context.Context, id string)
}

// Config holds resolver configuration. Events and Brands are optional.
type Config struct {
	LinkPolicy    identity.LinkPolicy
	ActivityLimit int
	Events        EventPublisher
	Brands        BrandCache
}

// DefaultConfig returns the repoint policy with no events and no cache.
func DefaultConfig() Config {
	return Config{
		LinkPolicy:    identity.LinkPolicyRepoint,
		ActivityLimit: defaultActivityLimit,
	}
}

// Resolver resolves sessions and logins into customers
type Resolver struct {
	store  identity.Store
	cfg    Config
	logger ectologger.Logger
}

// NewResolver creates a resolver over store
func NewResolver(store identity.Store, cfg Config, logger ectologger.Logger) *Resolver {
	if cfg.LinkPolicy == "" {
		cfg.LinkPolicy = identity.LinkPolicyRepoint
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = defaultActivityLimit
	}
	return &Resolver{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// LinkPolicy returns the configured re-link policy
func (r *Resolver) LinkPolicy() identity.LinkPolicy {
	return r.cfg.LinkPolicy
}

// withUnit runs fn inside one unit of work, closing it on every path.
func (r *Resolver) withUnit(ctx context.Context, op string, mode identity.AccessMode, fn func(ctx context.Context, uow identity.UnitOfWork) error) (err error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver."+op)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordOperation(op, operationStatus(err), time.Since(start).Seconds())
	}()

	uow, err := r.store.Open(ctx, mode)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to open %s unit of work: %w", mode, err)
	}
	metrics.StoreUnitsOpen.Inc()
	defer func() {
		metrics.StoreUnitsOpen.Dec()
		if cerr := uow.Close(ctx); cerr != nil {
			r.logger.WithContext(ctx).WithError(cerr).WithField("op", op).Warn("Failed to close unit of work")
		}
	}()

	if err = fn(ctx, uow); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

func operationStatus(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, identity.ErrCustomerNotFound), errors.Is(err, identity.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, identity.ErrRelinkConflict):
		return "conflict"
	case errors.Is(err, identity.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// linkSession applies the configured policy and records the outcome.
func (r *Resolver) linkSession(ctx context.Context, uow identity.UnitOfWork, internalSessionID, customerID string) (models.LinkResult, error) {
	link, err := uow.LinkSessionToCustomer(ctx, internalSessionID, customerID, r.cfg.LinkPolicy)
	if err != nil {
		if errors.Is(err, identity.ErrRelinkConflict) {
			metrics.RecordLink("rejected")
		}
		return link, fmt.Errorf("failed to link session to customer: %w", err)
	}

	metrics.RecordLink(string(link.Outcome))
	if link.Outcome == models.LinkRepointed {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"internal_session_id":  internalSessionID,
			"customer_id":          customerID,
			"previous_customer_id": link.PreviousCustomerID,
			"migrated_sessions":    link.MigratedSessions,
			"policy":               string(r.cfg.LinkPolicy),
		}).Warn("Session re-linked to a different customer")
	}
	return link, nil
}

// publish hands an event to the publisher. Failures are logged, never returned.
func (r *Resolver) publish(ctx context.Context, name string, emit func(p EventPublisher) error) {
	if r.cfg.Events == nil {
		return
	}
	if err := emit(r.cfg.Events); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("event", name).Warn("Failed to publish identity event")
	}
}

// sessionIDFor picks the internal session id for a provider-issued id. An explicit
// internal id wins; internal provider ids are used as-is; otherwise the id is
// derived from provider, external id and brand.
func sessionIDFor(provider models.Provider, externalSessionID, brandID, internalSessionID string) string {
	switch {
	case internalSessionID != "":
		return internalSessionID
	case provider == models.ProviderInternal:
		return externalSessionID
	default:
		return models.DeriveInternalSessionID(provider, externalSessionID, brandID)
	}
}
