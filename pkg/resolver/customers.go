package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/loyalty"
	"github.com/blessingk/neo4j/pkg/models"
)

// GetCustomerWithSessions returns the customer with email and every session that
// belongs to it, most recent first. It returns nil when there is no such customer.
func (r *Resolver) GetCustomerWithSessions(ctx context.Context, email string) (*CustomerWithSessions, error) {
	key, err := emailKey(email)
	if err != nil {
		return nil, err
	}

	var result *CustomerWithSessions
	err = r.withUnit(ctx, "GetCustomerWithSessions", identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		customer, err := uow.FindCustomer(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to find customer: %w", err)
		}
		if customer == nil {
			return nil
		}

		sessions, err := uow.CustomerSessions(ctx, customer.ID)
		if err != nil {
			return fmt.Errorf("failed to load customer sessions: %w", err)
		}
		result = &CustomerWithSessions{Customer: customer, Sessions: sessions}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCustomerLatestSession returns the customer's LATEST_SESSION. A customer with no
// latest edge falls back to its most recently seen session.
func (r *Resolver) GetCustomerLatestSession(ctx context.Context, email string) (*LatestSessionResult, error) {
	key, err := emailKey(email)
	if err != nil {
		return nil, err
	}

	var result *LatestSessionResult
	err = r.withUnit(ctx, "GetCustomerLatestSession", identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		customer, err := uow.FindCustomer(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to find customer: %w", err)
		}
		if customer == nil {
			return nil
		}
		result = &LatestSessionResult{Customer: customer}

		latest, err := uow.LatestSession(ctx, customer.ID)
		if err != nil {
			return fmt.Errorf("failed to load latest session: %w", err)
		}
		if latest == nil {
			sessions, err := uow.CustomerSessions(ctx, customer.ID)
			if err != nil {
				return fmt.Errorf("failed to load customer sessions: %w", err)
			}
			if len(sessions) == 0 {
				return nil
			}
			latest = &sessions[0]
		}

		session := latest.Session
		result.Session = &session
		result.Brand = latest.Brand
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCustomerLoyaltyProfile returns the customer with email, its sessions, the
// distinct brands it has visited and its loyalty metrics. It returns nil when there
// is no such customer.
func (r *Resolver) GetCustomerLoyaltyProfile(ctx context.Context, email string) (*LoyaltyProfile, error) {
	withSessions, err := r.GetCustomerWithSessions(ctx, email)
	if err != nil || withSessions == nil {
		return nil, err
	}

	return &LoyaltyProfile{
		Customer:       withSessions.Customer,
		Sessions:       withSessions.Sessions,
		Brands:         loyalty.DistinctBrands(withSessions.Sessions),
		LoyaltyMetrics: loyalty.Compute(withSessions.Sessions),
	}, nil
}

// ListCustomerActivity computes loyalty metrics for up to the configured number of
// customers and returns those matching filters, most recently active first.
func (r *Resolver) ListCustomerActivity(ctx context.Context, filters models.LoyaltyFilters) ([]models.CustomerActivity, error) {
	if filters.MinSessions < 0 || filters.MinBrands < 0 {
		return nil, &ValidationError{Field: "minSessions", Err: fmt.Errorf("minimums must not be negative")}
	}

	activity := []models.CustomerActivity{}
	err := r.withUnit(ctx, "ListCustomerActivity", identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		customers, err := uow.ListCustomers(ctx, r.cfg.ActivityLimit)
		if err != nil {
			return fmt.Errorf("failed to list customers: %w", err)
		}

		for _, customer := range customers {
			sessions, err := uow.CustomerSessions(ctx, customer.ID)
			if err != nil {
				return fmt.Errorf("failed to load sessions for customer %s: %w", customer.ID, err)
			}

			metrics := loyalty.Compute(sessions)
			if !loyalty.Matches(metrics, filters) {
				continue
			}
			activity = append(activity, models.CustomerActivity{
				CustomerID:         customer.ID,
				Email:              customer.Email,
				SessionCount:       metrics.TotalSessions,
				BrandCount:         metrics.TotalBrands,
				CrossBrandActivity: metrics.CrossBrandActivity,
				LastActivity:       metrics.LastActivity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(activity, func(i, j int) bool {
		a, b := activity[i].LastActivity, activity[j].LastActivity
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return activity, nil
}

func emailKey(email string) (models.CustomerKey, error) {
	key := models.EmailKey(email)
	if !key.Valid() {
		return key, &ValidationError{Field: "email", Err: fmt.Errorf("email is required")}
	}
	return key, nil
}
