package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/models"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []string
	links  []models.LinkResult
}

func (e *recordingEvents) record(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, name)
}

func (e *recordingEvents) EmitSessionIdentified(_ context.Context, _ *models.Session) error {
	e.record("session.identified")
	return nil
}

func (e *recordingEvents) EmitCustomerLinked(_ context.Context, _ *models.Session, _ *models.Customer, link models.LinkResult) error {
	e.mu.Lock()
	e.links = append(e.links, link)
	e.mu.Unlock()
	e.record("customer.linked")
	return nil
}

func (e *recordingEvents) EmitSessionStitched(_ context.Context, _ *models.Customer, _ string, _ []string) error {
	e.record("session.stitched")
	return nil
}

func (e *recordingEvents) EmitBrandUpserted(_ context.Context, _ *models.Brand) error {
	e.record("brand.upserted")
	return nil
}

type mapBrandCache struct {
	brands map[string]models.Brand
	hits   int
}

func (c *mapBrandCache) Get(_ context.Context, id string) *models.Brand {
	b, ok := c.brands[id]
	if !ok {
		return nil
	}
	c.hits++
	return &b
}

func (c *mapBrandCache) Set(_ context.Context, brand *models.Brand) {
	c.brands[brand.ID] = *brand
}

func (c *mapBrandCache) Invalidate(_ context.Context, id string) {
	delete(c.brands, id)
}

// tickingClock advances one second per call so sessions order by creation.
func tickingClock() func() time.Time {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newTestResolver(t *testing.T, policy identity.LinkPolicy) (*Resolver, *identity.MemoryStore, *recordingEvents) {
	t.Helper()
	store := identity.NewMemoryStore(identity.WithClock(tickingClock()))
	events := &recordingEvents{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	cfg := DefaultConfig()
	cfg.LinkPolicy = policy
	cfg.Events = events
	return NewResolver(store, cfg, logger), store, events
}

func TestResolver_IdentifyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	req := IdentifyRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-1", BrandID: "brand-a"}
	first, err := r.Identify(ctx, req)
	require.NoError(t, err)
	second, err := r.Identify(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "braze:b-1:brand-a", first.InternalSessionID)
	assert.Equal(t, first.InternalSessionID, second.InternalSessionID)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, "b-1", second.Session.BrazeSession)
	assert.Nil(t, second.Customer, "identify never creates a customer")

	quick, err := r.QuickIdentify(ctx, QuickIdentifyRequest{InternalSessionID: first.InternalSessionID})
	require.NoError(t, err)
	assert.True(t, quick.Found)
	assert.Nil(t, quick.Customer)
	assert.Equal(t, 0, store.OpenUnits())
}

func TestResolver_IdentifyReturnsLinkedCustomer(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	login, err := r.LinkOnLogin(ctx, LinkRequest{
		Provider:          models.ProviderAmplitude,
		ExternalSessionID: "amp-1",
		BrandID:           "brand-a",
		Email:             "Jane@Example.com",
	})
	require.NoError(t, err)

	res, err := r.Identify(ctx, IdentifyRequest{Provider: models.ProviderAmplitude, ExternalSessionID: "amp-1", BrandID: "brand-a"})
	require.NoError(t, err)
	require.NotNil(t, res.Customer)
	assert.Equal(t, login.Customer.ID, res.Customer.ID)
	assert.Equal(t, "jane@example.com", res.Customer.Email)
}

func TestResolver_LinkOnLoginRequiresAttribute(t *testing.T) {
	ctx := context.Background()
	r, store, events := newTestResolver(t, identity.LinkPolicyRepoint)

	_, err := r.LinkOnLogin(ctx, LinkRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-1"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
	assert.ErrorIs(t, err, ErrMissingLinkAttribute)
	assert.Equal(t, 0, store.Opened(), "no unit is opened for invalid input")
	assert.Empty(t, events.events)
}

func TestResolver_LinkOnLoginValidation(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	tests := []struct {
		name  string
		req   LinkRequest
		field string
	}{
		{
			name:  "bad email",
			req:   LinkRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-1", Email: "not-an-email"},
			field: "email",
		},
		{
			name:  "no session",
			req:   LinkRequest{Email: "a@example.com"},
			field: "provider",
		},
		{
			name:  "provider without external id",
			req:   LinkRequest{Provider: models.ProviderBraze, Email: "a@example.com"},
			field: "externalSessionId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.LinkOnLogin(ctx, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Equal(t, 0, store.Opened())
}

func TestResolver_LinkOnLoginPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("email creates and links customer", func(t *testing.T) {
		r, _, events := newTestResolver(t, identity.LinkPolicyRepoint)

		res, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Email: "a@example.com", Phone: "555-0100"})
		require.NoError(t, err)
		assert.Equal(t, "int-1", res.InternalSessionID)
		assert.Equal(t, models.LinkCreated, res.Link.Outcome)
		assert.Equal(t, "a@example.com", res.Customer.Email)
		assert.Equal(t, "555-0100", res.Customer.Phone)
		assert.Equal(t, "int-1", res.Customer.InternalSessionID)
		assert.Equal(t, []string{"customer.linked"}, events.events)

		again, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Email: "A@example.com"})
		require.NoError(t, err)
		assert.Equal(t, res.Customer.ID, again.Customer.ID)
		assert.Equal(t, models.LinkUnchanged, again.Link.Outcome)
	})

	t.Run("customer id must exist", func(t *testing.T) {
		r, store, _ := newTestResolver(t, identity.LinkPolicyRepoint)

		_, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", CustomerID: "missing"})
		assert.ErrorIs(t, err, identity.ErrCustomerNotFound)
		assert.Equal(t, 0, store.OpenUnits())
	})

	t.Run("customer id links to existing customer", func(t *testing.T) {
		r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

		first, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Email: "a@example.com"})
		require.NoError(t, err)

		res, err := r.LinkOnLogin(ctx, LinkRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-9", CustomerID: first.Customer.ID})
		require.NoError(t, err)
		assert.Equal(t, first.Customer.ID, res.Customer.ID)
		assert.Equal(t, "braze:b-9:", res.InternalSessionID)
	})

	t.Run("phone keys the customer", func(t *testing.T) {
		r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

		first, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Phone: " 555-0100 "})
		require.NoError(t, err)
		second, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-2", Phone: "555-0100"})
		require.NoError(t, err)

		assert.Equal(t, first.Customer.ID, second.Customer.ID)
		assert.Empty(t, second.Customer.Email)
	})

	t.Run("email login adopts phone-only customer", func(t *testing.T) {
		r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

		byPhone, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Phone: "555-0100"})
		require.NoError(t, err)
		withEmail, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-2", Email: "a@example.com", Phone: "555-0100"})
		require.NoError(t, err)
		assert.Equal(t, byPhone.Customer.ID, withEmail.Customer.ID)
		assert.Equal(t, "a@example.com", withEmail.Customer.Email)

		again, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-3", Phone: "555-0100"})
		require.NoError(t, err)
		assert.Equal(t, byPhone.Customer.ID, again.Customer.ID)
	})

	t.Run("phone owned by another customer is refused", func(t *testing.T) {
		r, store, _ := newTestResolver(t, identity.LinkPolicyRepoint)

		owner, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Email: "a@example.com", Phone: "555-0100"})
		require.NoError(t, err)

		_, err = r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-2", Email: "b@example.com", Phone: "555-0100"})
		assert.ErrorIs(t, err, identity.ErrIntegrityViolation)
		assert.Equal(t, 0, store.OpenUnits())

		byPhone, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-3", Phone: "555-0100"})
		require.NoError(t, err)
		assert.Equal(t, owner.Customer.ID, byPhone.Customer.ID)
	})
}

func TestResolver_RelinkPolicies(t *testing.T) {
	ctx := context.Background()
	login := func(r *Resolver, sid, email string) (*LoginResult, error) {
		return r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: sid, Email: email})
	}

	t.Run("repoint moves the session", func(t *testing.T) {
		r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

		first, err := login(r, "shared", "a@example.com")
		require.NoError(t, err)
		second, err := login(r, "shared", "b@example.com")
		require.NoError(t, err)

		assert.Equal(t, models.LinkRepointed, second.Link.Outcome)
		assert.Equal(t, first.Customer.ID, second.Link.PreviousCustomerID)

		graph, err := r.GetCustomerSession(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, second.Customer.ID, graph.Customer.ID)
	})

	t.Run("reject keeps the existing owner", func(t *testing.T) {
		r, store, _ := newTestResolver(t, identity.LinkPolicyReject)

		first, err := login(r, "shared", "a@example.com")
		require.NoError(t, err)
		_, err = login(r, "shared", "b@example.com")
		assert.ErrorIs(t, err, identity.ErrRelinkConflict)
		assert.Equal(t, 0, store.OpenUnits())

		graph, err := r.GetCustomerSession(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, first.Customer.ID, graph.Customer.ID)
	})

	t.Run("migrate carries linked sessions", func(t *testing.T) {
		r, _, _ := newTestResolver(t, identity.LinkPolicyMigrate)

		_, err := r.LinkExternalSessionToCustomer(ctx, LinkExternalRequest{
			Email: "a@example.com", Provider: models.ProviderBraze, ExternalSessionID: "b-1",
		})
		require.NoError(t, err)
		_, err = r.StitchInternalToExisting(ctx, StitchRequest{Email: "a@example.com", InternalSessionID: "int-1"})
		require.NoError(t, err)

		moved, err := login(r, "int-1", "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, models.LinkRepointed, moved.Link.Outcome)
		assert.Equal(t, 1, moved.Link.MigratedSessions)

		owner, err := r.GetCustomerForSession(ctx, models.ProviderBraze, "b-1")
		require.NoError(t, err)
		require.NotNil(t, owner)
		assert.Equal(t, moved.Customer.ID, owner.Customer.ID)
	})
}

func TestResolver_LatestSessionFollowsLastLogin(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	_, err := r.LinkInternalSessionToCustomer(ctx, LinkInternalRequest{Email: "a@example.com", InternalSessionID: "int-1"})
	require.NoError(t, err)
	_, err = r.LinkInternalSessionToCustomer(ctx, LinkInternalRequest{Email: "a@example.com", InternalSessionID: "int-2"})
	require.NoError(t, err)

	latest, err := r.GetCustomerLatestSession(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, latest.Session)
	assert.Equal(t, "int-2", latest.Session.InternalSessionID)
	assert.Equal(t, "int-2", latest.Customer.InternalSessionID)

	_, err = r.LinkInternalSessionToCustomer(ctx, LinkInternalRequest{Email: "a@example.com", InternalSessionID: "int-1"})
	require.NoError(t, err)

	latest, err = r.GetCustomerLatestSession(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "int-1", latest.Session.InternalSessionID)

	missing, err := r.GetCustomerLatestSession(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestResolver_UpdateCustomerSessionDoesNotErase(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	created, err := r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{
		InternalSessionID: "int-1",
		Email:             "a@example.com",
		BrazeSession:      "b-1",
		BrandID:           "brand-a",
	})
	require.NoError(t, err)
	require.NotNil(t, created.Customer)

	updated, err := r.UpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "int-1", AmplitudeSession: "amp-1"})
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, "b-1", updated.Session.BrazeSession)
	assert.Equal(t, "amp-1", updated.Session.AmplitudeSession)
	assert.Equal(t, "a@example.com", updated.Session.Email)
	assert.Equal(t, "brand-a", updated.Session.BrandID)
	assert.Equal(t, created.Customer.ID, updated.Customer.ID)
	assert.True(t, updated.Session.LastSeenAt.After(created.Session.LastSeenAt))

	byAmplitude, err := r.GetCustomerForSession(ctx, models.ProviderAmplitude, "amp-1")
	require.NoError(t, err)
	require.NotNil(t, byAmplitude)
	assert.Equal(t, "int-1", byAmplitude.Session.InternalSessionID)
}

func TestResolver_UpdateCustomerSessionUnknown(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	res, err := r.UpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "ghost", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Nil(t, res)

	graph, err := r.GetCustomerSession(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, graph, "update must not create sessions")
	assert.Equal(t, 0, store.OpenUnits())
}

func TestResolver_CreateOrUpdateWithoutEmailIsAnonymous(t *testing.T) {
	ctx := context.Background()
	r, _, events := newTestResolver(t, identity.LinkPolicyRepoint)

	res, err := r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "int-1", BrandID: "brand-a"})
	require.NoError(t, err)
	assert.Nil(t, res.Customer)
	assert.Equal(t, models.ProviderInternal, res.Session.Provider)
	assert.Equal(t, []string{"session.identified"}, events.events)
}

func TestResolver_CreateInternalSession(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	first, err := r.CreateInternalSession(ctx, CreateInternalSessionRequest{Email: "a@example.com"})
	require.NoError(t, err)
	second, err := r.CreateInternalSession(ctx, CreateInternalSessionRequest{Email: "a@example.com"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Session.InternalSessionID, second.Session.InternalSessionID)
	assert.Equal(t, first.Customer.ID, second.Customer.ID)
}

func TestResolver_StitchLinksExternalSessions(t *testing.T) {
	ctx := context.Background()
	r, store, events := newTestResolver(t, identity.LinkPolicyRepoint)

	braze, err := r.LinkExternalSessionToCustomer(ctx, LinkExternalRequest{
		Email: "a@example.com", Provider: models.ProviderBraze, ExternalSessionID: "b-1", BrandID: "brand-a",
	})
	require.NoError(t, err)
	amp, err := r.LinkExternalSessionToCustomer(ctx, LinkExternalRequest{
		Email: "a@example.com", Provider: models.ProviderAmplitude, ExternalSessionID: "amp-1", BrandID: "brand-b",
	})
	require.NoError(t, err)
	_, err = r.LinkInternalSessionToCustomer(ctx, LinkInternalRequest{Email: "a@example.com", InternalSessionID: "other-internal"})
	require.NoError(t, err)

	res, err := r.StitchInternalToExisting(ctx, StitchRequest{Email: "a@example.com", InternalSessionID: "int-1"})
	require.NoError(t, err)
	assert.Equal(t, braze.Customer.ID, res.Customer.ID)
	assert.ElementsMatch(t, []string{braze.InternalSessionID, amp.InternalSessionID}, res.LinkedSessions)
	assert.Contains(t, events.events, "session.stitched")

	unit, err := store.Open(ctx, identity.AccessRead)
	require.NoError(t, err)
	defer unit.Close(ctx)

	linked, err := unit.LinkedSessions(ctx, "int-1")
	require.NoError(t, err)
	ids := make([]string, 0, len(linked))
	for _, s := range linked {
		ids = append(ids, s.InternalSessionID)
	}
	assert.ElementsMatch(t, []string{braze.InternalSessionID, amp.InternalSessionID}, ids)

	again, err := r.StitchInternalToExisting(ctx, StitchRequest{Email: "a@example.com", InternalSessionID: "int-1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, res.LinkedSessions, again.LinkedSessions)
	linked, err = unit.LinkedSessions(ctx, "int-1")
	require.NoError(t, err)
	assert.Len(t, linked, 2, "stitching twice adds no edges")

	graph, err := r.GetCustomerSession(ctx, braze.InternalSessionID)
	require.NoError(t, err)
	require.NotNil(t, graph)
	require.Len(t, graph.LinkedSessions, 1)
	assert.Equal(t, "int-1", graph.LinkedSessions[0].InternalSessionID)
	assert.Equal(t, braze.Customer.ID, graph.Customer.ID)
}

func TestResolver_LoyaltyProfile(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	for _, b := range []UpsertBrandRequest{
		{ID: "brand-a", Name: "Brand A", Slug: "a"},
		{ID: "brand-b", Name: "Brand B", Slug: "b"},
	} {
		_, err := r.UpsertBrand(ctx, b)
		require.NoError(t, err)
	}

	_, err := r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "s1", Email: "single@example.com", BrandID: "brand-a"})
	require.NoError(t, err)
	_, err = r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "s2", Email: "single@example.com", BrandID: "brand-a"})
	require.NoError(t, err)

	_, err = r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "c1", Email: "cross@example.com", BrandID: "brand-a"})
	require.NoError(t, err)
	_, err = r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "c2", Email: "cross@example.com", BrandID: "brand-b"})
	require.NoError(t, err)

	single, err := r.GetCustomerLoyaltyProfile(ctx, "single@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, single.LoyaltyMetrics.TotalSessions)
	assert.Equal(t, 1, single.LoyaltyMetrics.TotalBrands)
	assert.False(t, single.LoyaltyMetrics.CrossBrandActivity)
	assert.Len(t, single.Brands, 1)

	cross, err := r.GetCustomerLoyaltyProfile(ctx, "cross@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, cross.LoyaltyMetrics.TotalBrands)
	assert.True(t, cross.LoyaltyMetrics.CrossBrandActivity)
	require.NotNil(t, cross.LoyaltyMetrics.LastBrand)
	assert.Equal(t, "brand-b", cross.LoyaltyMetrics.LastBrand.ID)

	activity, err := r.ListCustomerActivity(ctx, models.LoyaltyFilters{CrossBrandOnly: true})
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "cross@example.com", activity[0].Email)

	all, err := r.ListCustomerActivity(ctx, models.LoyaltyFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cross@example.com", all[0].Email, "most recent activity first")

	missing, err := r.GetCustomerLoyaltyProfile(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestResolver_LoyaltyIgnoresUnknownBrands(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	_, err := r.UpsertBrand(ctx, UpsertBrandRequest{ID: "brand-a", Name: "Brand A", Slug: "a"})
	require.NoError(t, err)

	_, err = r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "s1", Email: "x@example.com", BrandID: "brand-a"})
	require.NoError(t, err)
	_, err = r.CreateOrUpdateCustomerSession(ctx, CustomerSessionRequest{InternalSessionID: "s2", Email: "x@example.com", BrandID: "ghost"})
	require.NoError(t, err)

	profile, err := r.GetCustomerLoyaltyProfile(ctx, "x@example.com")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 2, profile.LoyaltyMetrics.TotalSessions)
	assert.Equal(t, 1, profile.LoyaltyMetrics.TotalBrands)
	assert.False(t, profile.LoyaltyMetrics.CrossBrandActivity)
	assert.Len(t, profile.Brands, 1)

	crossOnly, err := r.ListCustomerActivity(ctx, models.LoyaltyFilters{CrossBrandOnly: true})
	require.NoError(t, err)
	assert.Empty(t, crossOnly)
}

func TestResolver_LookupPriorityAndAbsence(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t, identity.LinkPolicyRepoint)

	internal, err := r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Email: "a@example.com"})
	require.NoError(t, err)
	braze, err := r.LinkOnLogin(ctx, LinkRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-1", Email: "b@example.com"})
	require.NoError(t, err)

	graph, err := r.FindCustomerBySession(ctx, models.SessionKeys{InternalSessionID: "int-1", BrazeSession: "b-1"})
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Equal(t, "int-1", graph.Session.InternalSessionID)
	assert.Equal(t, internal.Customer.ID, graph.Customer.ID)

	graph, err = r.FindCustomerBySession(ctx, models.SessionKeys{InternalSessionID: "unknown", BrazeSession: "b-1"})
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Equal(t, braze.Customer.ID, graph.Customer.ID)

	graph, err = r.FindCustomerBySession(ctx, models.SessionKeys{InternalSessionID: "unknown"})
	require.NoError(t, err)
	assert.Nil(t, graph)

	quick, err := r.QuickIdentify(ctx, QuickIdentifyRequest{Provider: models.ProviderAmplitude, ExternalSessionID: "nope"})
	require.NoError(t, err)
	assert.False(t, quick.Found)

	customer, err := r.FindCustomerByAnySession(ctx, FindCustomerRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-1"})
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, braze.Customer.ID, customer.ID)

	_, err = r.FindCustomerBySession(ctx, models.SessionKeys{})
	assert.True(t, IsValidationError(err))
}

func TestResolver_ReleasesUnitWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	r, store, events := newTestResolver(t, identity.LinkPolicyRepoint)
	store.SetUnavailable(true)

	_, err := r.Identify(ctx, IdentifyRequest{Provider: models.ProviderBraze, ExternalSessionID: "b-1"})
	assert.ErrorIs(t, err, identity.ErrStoreUnavailable)

	_, err = r.LinkOnLogin(ctx, LinkRequest{InternalSessionID: "int-1", Email: "a@example.com"})
	assert.ErrorIs(t, err, identity.ErrStoreUnavailable)

	_, err = r.GetCustomerWithSessions(ctx, "a@example.com")
	assert.ErrorIs(t, err, identity.ErrStoreUnavailable)

	assert.Equal(t, 3, store.Opened())
	assert.Equal(t, 0, store.OpenUnits())
	assert.Empty(t, events.events)
}

func TestResolver_BrandCache(t *testing.T) {
	ctx := context.Background()
	r, store, events := newTestResolver(t, identity.LinkPolicyRepoint)
	brands := &mapBrandCache{brands: map[string]models.Brand{}}
	r.cfg.Brands = brands

	_, err := r.UpsertBrand(ctx, UpsertBrandRequest{ID: "brand-a", Name: "Brand A", Slug: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"brand.upserted"}, events.events)
	opened := store.Opened()

	brand, err := r.GetBrand(ctx, "brand-a")
	require.NoError(t, err)
	assert.Equal(t, "Brand A", brand.Name)
	assert.Equal(t, 1, brands.hits)
	assert.Equal(t, opened, store.Opened(), "cache hit skips the store")

	brands.Invalidate(ctx, "brand-a")
	brand, err = r.GetBrand(ctx, "brand-a")
	require.NoError(t, err)
	assert.Equal(t, "a", brand.Slug)
	assert.Equal(t, opened+1, store.Opened())

	missing, err := r.GetBrand(ctx, "brand-z")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = r.UpsertBrand(ctx, UpsertBrandRequest{ID: "brand-b"})
	assert.True(t, IsValidationError(err))

	store.SetUnavailable(true)
	_, err = r.UpsertBrand(ctx, UpsertBrandRequest{ID: "brand-a", Name: "Brand A2", Slug: "a2"})
	assert.ErrorIs(t, err, identity.ErrStoreUnavailable)
	assert.NotContains(t, brands.brands, "brand-a", "failed upsert drops the cached brand")
}
