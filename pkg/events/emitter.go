// Package events handles event emission for identity graph changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/blessingk/neo4j/pkg/kafka"
	"github.com/blessingk/neo4j/pkg/models"
	"github.com/blessingk/neo4j/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	SessionIdentified = "session.identified"
	CustomerLinked    = "customer.linked"
	SessionRelinked   = "session.relinked"
	SessionStitched   = "session.stitched"
	BrandUpserted     = "brand.upserted"
)

// Publisher sends one identity event
type Publisher interface {
	PublishEvent(ctx context.Context, event *kafka.IdentityEvent) error
}

// Emitter turns identity graph changes into events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitSessionIdentified emits a session identified event
func (e *Emitter) EmitSessionIdentified(ctx context.Context, session *models.Session) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSessionIdentified")
	defer span.End()

	return e.emit(ctx, SessionIdentified, "session", session.InternalSessionID, session.BrandID, map[string]any{
		"session": session,
	})
}

// EmitCustomerLinked emits customer.linked for new links and session.relinked when an
// existing link moved to another customer. Unchanged links emit nothing.
func (e *Emitter) EmitCustomerLinked(ctx context.Context, session *models.Session, customer *models.Customer, link models.LinkResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCustomerLinked")
	defer span.End()

	eventType := CustomerLinked
	switch link.Outcome {
	case models.LinkUnchanged:
		return nil
	case models.LinkRepointed:
		eventType = SessionRelinked
	}

	data := map[string]any{
		"internal_session_id": session.InternalSessionID,
		"customer_id":         customer.ID,
	}
	if link.PreviousCustomerID != "" {
		data["previous_customer_id"] = link.PreviousCustomerID
	}
	if link.MigratedSessions > 0 {
		data["migrated_sessions"] = link.MigratedSessions
	}

	return e.emit(ctx, eventType, "customer", customer.ID, session.BrandID, data)
}

// EmitSessionStitched emits a session stitched event
func (e *Emitter) EmitSessionStitched(ctx context.Context, customer *models.Customer, internalSessionID string, linked []string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSessionStitched")
	defer span.End()

	return e.emit(ctx, SessionStitched, "customer", customer.ID, "", map[string]any{
		"internal_session_id": internalSessionID,
		"linked_sessions":     linked,
	})
}

// EmitBrandUpserted emits a brand upserted event
func (e *Emitter) EmitBrandUpserted(ctx context.Context, brand *models.Brand) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBrandUpserted")
	defer span.End()

	return e.emit(ctx, BrandUpserted, "brand", brand.ID, brand.ID, map[string]any{
		"brand": brand,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType, entityType, entityID, brandID string, data map[string]any) error {
	data["schema_version"] = SchemaVersion
	dataJSON, _ := json.Marshal(data)

	event := &kafka.IdentityEvent{
		EventType:  eventType,
		EntityID:   entityID,
		EntityType: entityType,
		BrandID:    brandID,
		Data:       dataJSON,
	}

	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}
