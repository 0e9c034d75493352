package resolver

import (
	"context"
	"fmt"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/models"
)

// UpsertBrand creates or updates a brand by id
func (r *Resolver) UpsertBrand(ctx context.Context, req UpsertBrandRequest) (*models.Brand, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	var brand *models.Brand
	err = r.withUnit(ctx, "UpsertBrand", identity.AccessWrite, func(ctx context.Context, uow identity.UnitOfWork) error {
		brand, err = uow.UpsertBrand(ctx, req.ID, req.Name, req.Slug)
		if err != nil {
			return fmt.Errorf("failed to upsert brand: %w", err)
		}
		return nil
	})
	if err != nil {
		// the write may have committed before the error surfaced
		if r.cfg.Brands != nil {
			r.cfg.Brands.Invalidate(ctx, req.ID)
		}
		return nil, err
	}

	if r.cfg.Brands != nil {
		r.cfg.Brands.Set(ctx, brand)
	}
	r.publish(ctx, "brand.upserted", func(p EventPublisher) error {
		return p.EmitBrandUpserted(ctx, brand)
	})

	r.logger.WithContext(ctx).WithField("brand_id", brand.ID).Debug("Upserted brand")
	return brand, nil
}

// GetBrand returns the brand with id, or nil when there is none
func (r *Resolver) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Err: fmt.Errorf("brand id is required")}
	}

	if r.cfg.Brands != nil {
		if brand := r.cfg.Brands.Get(ctx, id); brand != nil {
			return brand, nil
		}
	}

	var brand *models.Brand
	err := r.withUnit(ctx, "GetBrand", identity.AccessRead, func(ctx context.Context, uow identity.UnitOfWork) error {
		var err error
		brand, err = uow.FindBrand(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to find brand: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if brand != nil && r.cfg.Brands != nil {
		r.cfg.Brands.Set(ctx, brand)
	}
	return brand, nil
}
