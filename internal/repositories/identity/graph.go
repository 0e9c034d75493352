package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/blessingk/neo4j/pkg/graph"
	"github.com/blessingk/neo4j/pkg/models"
	"github.com/blessingk/neo4j/pkg/shaper"
	"github.com/blessingk/neo4j/pkg/tracing"
)

// GraphStore is the Store backed by Neo4j or Memgraph.
type GraphStore struct {
	client *graph.Client
	logger ectologger.Logger
	now    func() time.Time
}

// NewGraphStore creates a store over an existing graph client.
func NewGraphStore(client *graph.Client, logger ectologger.Logger) *GraphStore {
	return &GraphStore{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open starts a unit of work on a new driver session.
func (s *GraphStore) Open(ctx context.Context, mode AccessMode) (UnitOfWork, error) {
	accessMode := neo4j.AccessModeRead
	if mode == AccessWrite {
		accessMode = neo4j.AccessModeWrite
	}
	return &graphUnit{
		unit:   s.client.Open(ctx, accessMode),
		logger: s.logger,
		now:    s.now,
	}, nil
}

// Ping verifies the store is reachable.
func (s *GraphStore) Ping(ctx context.Context) error {
	if err := s.client.VerifyConnectivity(ctx); err != nil {
		return wrapError("Ping", graph.Classify(err))
	}
	return nil
}

// Close closes the underlying driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

type graphUnit struct {
	unit   *graph.Unit
	logger ectologger.Logger
	now    func() time.Time
}

func (u *graphUnit) Close(ctx context.Context) error {
	return wrapError("Close", u.unit.Close(ctx))
}

func (u *graphUnit) UpsertBrand(ctx context.Context, id, name, slug string) (*models.Brand, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.UpsertBrand")
	defer span.End()

	res, err := u.unit.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, upsertBrandQuery, map[string]any{"id": id, "name": name, "slug": slug})
		if err != nil {
			return nil, err
		}
		if _, err := collect(ctx, tx, backfillBrandQuery, map[string]any{"id": id}); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, u.fail(ctx, "UpsertBrand", err)
	}

	props, err := single(res.([]*neo4j.Record), "b")
	if err != nil {
		return nil, wrapError("UpsertBrand", err)
	}
	return shaper.BrandFromProps(props), nil
}

func (u *graphUnit) FindBrand(ctx context.Context, id string) (*models.Brand, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.FindBrand")
	defer span.End()

	records, err := u.read(ctx, findBrandQuery, map[string]any{"id": id})
	if err != nil {
		return nil, u.fail(ctx, "FindBrand", err)
	}
	props, err := optional(records, "b")
	if err != nil {
		return nil, wrapError("FindBrand", err)
	}
	return shaper.BrandFromProps(props), nil
}

func (u *graphUnit) ListBrands(ctx context.Context) ([]models.Brand, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.ListBrands")
	defer span.End()

	records, err := u.read(ctx, listBrandsQuery, nil)
	if err != nil {
		return nil, u.fail(ctx, "ListBrands", err)
	}

	brands := make([]models.Brand, 0, len(records))
	for _, record := range records {
		if b := shaper.BrandFromProps(column(record, "b")); b != nil {
			brands = append(brands, *b)
		}
	}
	return brands, nil
}

func (u *graphUnit) UpsertSession(ctx context.Context, internalSessionID string, fields models.SessionFields) (*models.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.UpsertSession")
	defer span.End()

	var provider any
	if fields.Provider != "" {
		provider = string(fields.Provider)
	}
	params := map[string]any{
		"internalSessionId": internalSessionID,
		"id":                uuid.NewString(),
		"now":               u.now(),
		"provider":          provider,
		"fields":            fields.Props(),
	}

	res, err := u.unit.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, upsertSessionQuery, params)
		if err != nil {
			return nil, err
		}
		if fields.BrandID != "" {
			_, err := collect(ctx, tx, repointSessionBrandQuery, map[string]any{
				"internalSessionId": internalSessionID,
				"brandId":           fields.BrandID,
			})
			if err != nil {
				return nil, err
			}
		}
		return records, nil
	})
	if err != nil {
		return nil, u.fail(ctx, "UpsertSession", err)
	}

	props, err := single(res.([]*neo4j.Record), "s")
	if err != nil {
		return nil, wrapError("UpsertSession", err)
	}
	return shaper.SessionFromProps(props), nil
}

func (u *graphUnit) FindByAnyKey(ctx context.Context, keys models.SessionKeys) (*models.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.FindByAnyKey")
	defer span.End()

	for _, field := range models.SessionKeyPriority {
		value := keys.Value(field)
		if value == "" {
			continue
		}

		cypher, err := sessionKeyQuery(field)
		if err != nil {
			return nil, wrapError("FindByAnyKey", err)
		}
		records, err := u.read(ctx, cypher, map[string]any{"value": value})
		if err != nil {
			return nil, u.fail(ctx, "FindByAnyKey", err)
		}
		if len(records) == 0 {
			continue
		}
		if field == models.SessionKeyInternal && len(records) > 1 {
			return nil, wrapError("FindByAnyKey", fmt.Errorf("%w: %d sessions share internalSessionId %q", ErrIntegrityViolation, len(records), value))
		}
		return shaper.SessionFromProps(column(records[0], "s")), nil
	}
	return nil, nil
}

func (u *graphUnit) Neighborhood(ctx context.Context, internalSessionID string) (*models.SessionGraph, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.Neighborhood")
	defer span.End()

	records, err := u.read(ctx, neighborhoodQuery, map[string]any{"internalSessionId": internalSessionID})
	if err != nil {
		return nil, u.fail(ctx, "Neighborhood", err)
	}
	switch len(records) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, wrapError("Neighborhood", fmt.Errorf("%w: session %q has %d neighborhoods", ErrIntegrityViolation, internalSessionID, len(records)))
	}

	record := records[0]
	return &models.SessionGraph{
		Session:  shaper.SessionFromProps(column(record, "s")),
		Customer: shaper.CustomerFromProps(column(record, "c")),
		Brand:    shaper.BrandFromProps(column(record, "b")),
	}, nil
}

func (u *graphUnit) LinkSessions(ctx context.Context, fromInternalSessionID string, toInternalSessionIDs []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.LinkSessions")
	defer span.End()

	if len(toInternalSessionIDs) == 0 {
		return 0, nil
	}

	records, err := u.write(ctx, linkSessionsQuery, map[string]any{
		"from": fromInternalSessionID,
		"to":   toInternalSessionIDs,
	})
	if err != nil {
		return 0, u.fail(ctx, "LinkSessions", err)
	}
	return int(intColumn(records, "linked")), nil
}

func (u *graphUnit) LinkedSessions(ctx context.Context, internalSessionID string) ([]models.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.LinkedSessions")
	defer span.End()

	records, err := u.read(ctx, linkedSessionsQuery, map[string]any{"internalSessionId": internalSessionID})
	if err != nil {
		return nil, u.fail(ctx, "LinkedSessions", err)
	}

	sessions := make([]models.Session, 0, len(records))
	for _, record := range records {
		if s := shaper.SessionFromProps(column(record, "b")); s != nil {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

func (u *graphUnit) UpsertIdentity(ctx context.Context, provider models.Provider, externalID, internalSessionID string) (*models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.UpsertIdentity")
	defer span.End()

	records, err := u.write(ctx, upsertIdentityQuery, map[string]any{
		"internalSessionId": internalSessionID,
		"id":                IdentityID(provider, externalID),
		"provider":          string(provider),
		"externalId":        externalID,
		"now":               u.now(),
	})
	if err != nil {
		return nil, u.fail(ctx, "UpsertIdentity", err)
	}
	if len(records) == 0 {
		return nil, wrapError("UpsertIdentity", ErrSessionNotFound)
	}

	props, err := single(records, "i")
	if err != nil {
		return nil, wrapError("UpsertIdentity", err)
	}
	return shaper.IdentityFromProps(props), nil
}

func (u *graphUnit) UpsertCustomer(ctx context.Context, key models.CustomerKey, fields models.CustomerFields) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.UpsertCustomer")
	defer span.End()

	findCypher, err := findCustomerQuery(key)
	if err != nil {
		return nil, wrapError("UpsertCustomer", err)
	}
	mergeCypher, _ := upsertCustomerQuery(key)
	updateCypher, _ := updateCustomerQuery(key)
	phone := models.PhoneKey(fields.Phone)

	res, err := u.unit.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		matches, err := collect(ctx, tx, findCypher, map[string]any{"value": key.Value})
		if err != nil {
			return nil, err
		}
		if len(matches) > 1 {
			return nil, fmt.Errorf("%w: %d customers share %s", ErrIntegrityViolation, len(matches), key.Field)
		}

		var targetID string
		if len(matches) == 1 {
			targetID, _ = column(matches[0], "c")["id"].(string)
		}

		if phone.Valid() {
			owners, err := collect(ctx, tx, phoneOwnersQuery, map[string]any{"phone": phone.Value})
			if err != nil {
				return nil, err
			}
			// a phone-only customer picks up the email instead of a second customer being created
			if targetID == "" && key.Field == models.CustomerKeyEmail && len(owners) == 1 && stringColumn(owners[0], "email") == "" {
				targetID = stringColumn(owners[0], "id")
			}
			for _, owner := range owners {
				if id := stringColumn(owner, "id"); id != targetID {
					return nil, fmt.Errorf("%w: phone already belongs to customer %s", ErrIntegrityViolation, id)
				}
			}
		}

		if targetID != "" {
			return collect(ctx, tx, updateCypher, map[string]any{
				"customerId": targetID,
				"value":      key.Value,
				"fields":     fields.Props(),
			})
		}
		return collect(ctx, tx, mergeCypher, map[string]any{
			"value":  key.Value,
			"id":     uuid.NewString(),
			"now":    u.now(),
			"fields": fields.Props(),
		})
	})
	if err != nil {
		return nil, u.fail(ctx, "UpsertCustomer", err)
	}

	props, err := single(res.([]*neo4j.Record), "c")
	if err != nil {
		return nil, wrapError("UpsertCustomer", err)
	}
	return shaper.CustomerFromProps(props), nil
}

func (u *graphUnit) FindCustomer(ctx context.Context, key models.CustomerKey) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.FindCustomer")
	defer span.End()

	cypher, err := findCustomerQuery(key)
	if err != nil {
		return nil, wrapError("FindCustomer", err)
	}

	records, err := u.read(ctx, cypher, map[string]any{"value": key.Value})
	if err != nil {
		return nil, u.fail(ctx, "FindCustomer", err)
	}
	props, err := optional(records, "c")
	if err != nil {
		return nil, wrapError("FindCustomer", err)
	}
	return shaper.CustomerFromProps(props), nil
}

func (u *graphUnit) FindCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.FindCustomerByID")
	defer span.End()

	records, err := u.read(ctx, findCustomerByIDQuery, map[string]any{"id": id})
	if err != nil {
		return nil, u.fail(ctx, "FindCustomerByID", err)
	}
	props, err := optional(records, "c")
	if err != nil {
		return nil, wrapError("FindCustomerByID", err)
	}
	return shaper.CustomerFromProps(props), nil
}

func (u *graphUnit) ListCustomers(ctx context.Context, limit int) ([]models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.ListCustomers")
	defer span.End()

	records, err := u.read(ctx, listCustomersQuery, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, u.fail(ctx, "ListCustomers", err)
	}

	customers := make([]models.Customer, 0, len(records))
	for _, record := range records {
		if c := shaper.CustomerFromProps(column(record, "c")); c != nil {
			customers = append(customers, *c)
		}
	}
	return customers, nil
}

func (u *graphUnit) LinkSessionToCustomer(ctx context.Context, internalSessionID, customerID string, policy LinkPolicy) (models.LinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.LinkSessionToCustomer")
	defer span.End()

	params := map[string]any{
		"internalSessionId": internalSessionID,
		"customerId":        customerID,
	}

	res, err := u.unit.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, currentOwnerQuery, params)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, ErrSessionNotFound
		}
		if !boolColumn(records[0], "customerExists") {
			return nil, ErrCustomerNotFound
		}

		previous := stringList(records[0], "previous")
		if len(previous) > 1 {
			return nil, fmt.Errorf("%w: session %q belongs to %d customers", ErrIntegrityViolation, internalSessionID, len(previous))
		}

		var prev string
		if len(previous) == 1 {
			prev = previous[0]
		}
		if prev == customerID {
			return models.LinkResult{Outcome: models.LinkUnchanged}, nil
		}
		if prev != "" && policy == LinkPolicyReject {
			return models.LinkResult{PreviousCustomerID: prev}, ErrRelinkConflict
		}

		if _, err := collect(ctx, tx, linkSessionQuery, params); err != nil {
			return nil, err
		}
		if prev == "" {
			return models.LinkResult{Outcome: models.LinkCreated}, nil
		}

		result := models.LinkResult{Outcome: models.LinkRepointed, PreviousCustomerID: prev}
		if policy == LinkPolicyMigrate {
			migrated, err := collect(ctx, tx, migrateLinkedQuery, map[string]any{
				"internalSessionId": internalSessionID,
				"customerId":        customerID,
				"previousId":        prev,
			})
			if err != nil {
				return nil, err
			}
			result.MigratedSessions = int(intColumn(migrated, "migrated"))
		}
		return result, nil
	})
	if err != nil {
		return models.LinkResult{}, u.fail(ctx, "LinkSessionToCustomer", err)
	}
	return res.(models.LinkResult), nil
}

func (u *graphUnit) SetLatestSession(ctx context.Context, customerID, internalSessionID string) error {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.SetLatestSession")
	defer span.End()

	params := map[string]any{
		"customerId":        customerID,
		"internalSessionId": internalSessionID,
	}

	_, err := u.unit.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, setLatestSessionQuery, params)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return nil, nil
		}

		checks, err := collect(ctx, tx, existsQuery, params)
		if err != nil {
			return nil, err
		}
		if len(checks) > 0 && !boolColumn(checks[0], "customerExists") {
			return nil, ErrCustomerNotFound
		}
		return nil, ErrSessionNotFound
	})
	if err != nil {
		return u.fail(ctx, "SetLatestSession", err)
	}
	return nil
}

func (u *graphUnit) CustomerSessions(ctx context.Context, customerID string) ([]models.SessionWithBrand, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.CustomerSessions")
	defer span.End()

	records, err := u.read(ctx, customerSessionsQuery, map[string]any{"customerId": customerID})
	if err != nil {
		return nil, u.fail(ctx, "CustomerSessions", err)
	}

	sessions := make([]models.SessionWithBrand, 0, len(records))
	for _, record := range records {
		s := shaper.SessionFromProps(column(record, "s"))
		if s == nil {
			continue
		}
		sessions = append(sessions, models.SessionWithBrand{
			Session: *s,
			Brand:   shaper.BrandFromProps(column(record, "b")),
		})
	}
	return sessions, nil
}

func (u *graphUnit) LatestSession(ctx context.Context, customerID string) (*models.SessionWithBrand, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.LatestSession")
	defer span.End()

	records, err := u.read(ctx, latestSessionQuery, map[string]any{"customerId": customerID})
	if err != nil {
		return nil, u.fail(ctx, "LatestSession", err)
	}
	switch len(records) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, wrapError("LatestSession", fmt.Errorf("%w: customer %q has %d latest sessions", ErrIntegrityViolation, customerID, len(records)))
	}

	s := shaper.SessionFromProps(column(records[0], "s"))
	if s == nil {
		return nil, nil
	}
	return &models.SessionWithBrand{
		Session: *s,
		Brand:   shaper.BrandFromProps(column(records[0], "b")),
	}, nil
}

func (u *graphUnit) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := u.unit.Read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collect(ctx, tx, cypher, params)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*neo4j.Record), nil
}

func (u *graphUnit) write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := u.unit.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collect(ctx, tx, cypher, params)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*neo4j.Record), nil
}

func (u *graphUnit) fail(ctx context.Context, op string, err error) error {
	wrapped := wrapError(op, err)
	if errors.Is(wrapped, ErrStoreUnavailable) || errors.Is(wrapped, ErrIntegrityViolation) {
		u.logger.WithContext(ctx).WithError(err).WithField("op", op).Error("Graph store operation failed")
	}
	return wrapped
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func column(record *neo4j.Record, key string) map[string]any {
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return nil
	}
	return shaper.Props(raw)
}

func intColumn(records []*neo4j.Record, key string) int64 {
	if len(records) == 0 {
		return 0
	}
	raw, _ := records[0].Get(key)
	n, _ := raw.(int64)
	return n
}

func stringColumn(record *neo4j.Record, key string) string {
	raw, _ := record.Get(key)
	s, _ := raw.(string)
	return s
}

func boolColumn(record *neo4j.Record, key string) bool {
	raw, _ := record.Get(key)
	b, _ := raw.(bool)
	return b
}

func stringList(record *neo4j.Record, key string) []string {
	raw, _ := record.Get(key)
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// single returns the one node in column key; anything else breaks a uniqueness rule.
func single(records []*neo4j.Record, key string) (map[string]any, error) {
	if len(records) != 1 {
		return nil, fmt.Errorf("%w: expected one %s, store returned %d", ErrIntegrityViolation, key, len(records))
	}
	return column(records[0], key), nil
}

// optional is single but allows no match.
func optional(records []*neo4j.Record, key string) (map[string]any, error) {
	if len(records) == 0 {
		return nil, nil
	}
	return single(records, key)
}

// wrapError maps store failures onto repository sentinels. Driver error types do not
// escape this package; only their message is kept.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}

	for _, sentinel := range []error{ErrSessionNotFound, ErrCustomerNotFound, ErrRelinkConflict, ErrIntegrityViolation, ErrStoreUnavailable} {
		if errors.Is(err, sentinel) {
			return &RepositoryError{Op: op, Err: err}
		}
	}

	switch {
	case errors.Is(err, graph.ErrUnavailable):
		return &RepositoryError{Op: op, Err: fmt.Errorf("%w: %s", ErrStoreUnavailable, err.Error())}
	case errors.Is(err, graph.ErrConstraint):
		return &RepositoryError{Op: op, Err: fmt.Errorf("%w: %s", ErrIntegrityViolation, err.Error())}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &RepositoryError{Op: op, Err: err}
	default:
		return &RepositoryError{Op: op, Err: errors.New(err.Error())}
	}
}
