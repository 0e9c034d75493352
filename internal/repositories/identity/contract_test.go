package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blessingk/neo4j/pkg/models"
)

// runStoreContract checks the behaviour every Store backend must share.
// Keys are randomised so the suite can run against a shared database.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	open := func(t *testing.T) UnitOfWork {
		store := newStore(t)
		unit, err := store.Open(ctx, AccessWrite)
		require.NoError(t, err)
		t.Cleanup(func() { _ = unit.Close(ctx) })
		return unit
	}
	key := func(prefix string) string {
		return prefix + "-" + uuid.NewString()
	}

	t.Run("upsert session is idempotent", func(t *testing.T) {
		unit := open(t)
		sid := key("sess")

		first, err := unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderBraze, BrazeSession: "b1"})
		require.NoError(t, err)
		second, err := unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderAmplitude})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, models.ProviderBraze, second.Provider, "provider is set on create only")
		assert.Equal(t, "b1", second.BrazeSession, "empty fields do not erase")
		assert.False(t, second.LastSeenAt.Before(first.LastSeenAt))
	})

	t.Run("find by any key prefers internal id", func(t *testing.T) {
		unit := open(t)
		braze := key("braze")
		internal := key("internal")
		other := key("other")

		_, err := unit.UpsertSession(ctx, other, models.SessionFields{Provider: models.ProviderBraze, BrazeSession: braze})
		require.NoError(t, err)
		_, err = unit.UpsertSession(ctx, internal, models.SessionFields{Provider: models.ProviderInternal})
		require.NoError(t, err)

		found, err := unit.FindByAnyKey(ctx, models.SessionKeys{InternalSessionID: internal, BrazeSession: braze})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, internal, found.InternalSessionID)

		found, err = unit.FindByAnyKey(ctx, models.SessionKeys{InternalSessionID: key("missing"), BrazeSession: braze})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, other, found.InternalSessionID)
	})

	t.Run("unknown session is absent", func(t *testing.T) {
		unit := open(t)

		found, err := unit.FindByAnyKey(ctx, models.SessionKeys{BrazeSession: key("nope")})
		require.NoError(t, err)
		assert.Nil(t, found)

		graph, err := unit.Neighborhood(ctx, key("nope"))
		require.NoError(t, err)
		assert.Nil(t, graph)
	})

	t.Run("customer merges on email", func(t *testing.T) {
		unit := open(t)
		email := key("user") + "@example.com"

		phone := key("555")

		first, err := unit.UpsertCustomer(ctx, models.EmailKey(email), models.CustomerFields{Email: email, Phone: phone})
		require.NoError(t, err)
		second, err := unit.UpsertCustomer(ctx, models.EmailKey("  "+email+" "), models.CustomerFields{Email: email})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, phone, second.Phone)

		found, err := unit.FindCustomer(ctx, models.EmailKey(email))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, first.ID, found.ID)
	})

	t.Run("email upsert adopts phone-only customer", func(t *testing.T) {
		unit := open(t)
		phone := key("555")
		email := key("user") + "@example.com"

		byPhone, err := unit.UpsertCustomer(ctx, models.PhoneKey(phone), models.CustomerFields{Phone: phone})
		require.NoError(t, err)
		byEmail, err := unit.UpsertCustomer(ctx, models.EmailKey(email), models.CustomerFields{Email: email, Phone: phone})
		require.NoError(t, err)

		assert.Equal(t, byPhone.ID, byEmail.ID)
		assert.Equal(t, email, byEmail.Email)

		found, err := unit.FindCustomer(ctx, models.PhoneKey(phone))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, byPhone.ID, found.ID)
	})

	t.Run("phone stays with one customer", func(t *testing.T) {
		unit := open(t)
		phone := key("555")
		first := key("a") + "@example.com"

		owner, err := unit.UpsertCustomer(ctx, models.EmailKey(first), models.CustomerFields{Email: first, Phone: phone})
		require.NoError(t, err)

		second := key("b") + "@example.com"
		_, err = unit.UpsertCustomer(ctx, models.EmailKey(second), models.CustomerFields{Email: second, Phone: phone})
		assert.ErrorIs(t, err, ErrIntegrityViolation)

		missing, err := unit.FindCustomer(ctx, models.EmailKey(second))
		require.NoError(t, err)
		assert.Nil(t, missing)

		found, err := unit.FindCustomer(ctx, models.PhoneKey(phone))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, owner.ID, found.ID)
	})

	t.Run("link session to customer", func(t *testing.T) {
		unit := open(t)
		sid := key("sess")
		a, err := unit.UpsertCustomer(ctx, models.EmailKey(key("a")+"@example.com"), models.CustomerFields{})
		require.NoError(t, err)
		b, err := unit.UpsertCustomer(ctx, models.EmailKey(key("b")+"@example.com"), models.CustomerFields{})
		require.NoError(t, err)
		_, err = unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderInternal})
		require.NoError(t, err)

		res, err := unit.LinkSessionToCustomer(ctx, sid, a.ID, LinkPolicyRepoint)
		require.NoError(t, err)
		assert.Equal(t, models.LinkCreated, res.Outcome)

		res, err = unit.LinkSessionToCustomer(ctx, sid, a.ID, LinkPolicyRepoint)
		require.NoError(t, err)
		assert.Equal(t, models.LinkUnchanged, res.Outcome)

		_, err = unit.LinkSessionToCustomer(ctx, sid, b.ID, LinkPolicyReject)
		require.ErrorIs(t, err, ErrRelinkConflict)

		res, err = unit.LinkSessionToCustomer(ctx, sid, b.ID, LinkPolicyRepoint)
		require.NoError(t, err)
		assert.Equal(t, models.LinkRepointed, res.Outcome)
		assert.Equal(t, a.ID, res.PreviousCustomerID)

		graph, err := unit.Neighborhood(ctx, sid)
		require.NoError(t, err)
		require.NotNil(t, graph.Customer)
		assert.Equal(t, b.ID, graph.Customer.ID)

		_, err = unit.LinkSessionToCustomer(ctx, key("missing"), b.ID, LinkPolicyRepoint)
		require.ErrorIs(t, err, ErrSessionNotFound)
		_, err = unit.LinkSessionToCustomer(ctx, sid, key("missing"), LinkPolicyRepoint)
		require.ErrorIs(t, err, ErrCustomerNotFound)
	})

	t.Run("migrate moves linked sessions", func(t *testing.T) {
		unit := open(t)
		main, sibling := key("main"), key("sibling")
		a, err := unit.UpsertCustomer(ctx, models.EmailKey(key("a")+"@example.com"), models.CustomerFields{})
		require.NoError(t, err)
		b, err := unit.UpsertCustomer(ctx, models.EmailKey(key("b")+"@example.com"), models.CustomerFields{})
		require.NoError(t, err)
		for _, sid := range []string{main, sibling} {
			_, err = unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderInternal})
			require.NoError(t, err)
			_, err = unit.LinkSessionToCustomer(ctx, sid, a.ID, LinkPolicyRepoint)
			require.NoError(t, err)
		}
		linked, err := unit.LinkSessions(ctx, main, []string{sibling})
		require.NoError(t, err)
		assert.Equal(t, 1, linked)

		res, err := unit.LinkSessionToCustomer(ctx, main, b.ID, LinkPolicyMigrate)
		require.NoError(t, err)
		assert.Equal(t, 1, res.MigratedSessions)

		sessions, err := unit.CustomerSessions(ctx, b.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("latest session is repointed", func(t *testing.T) {
		unit := open(t)
		c, err := unit.UpsertCustomer(ctx, models.EmailKey(key("c")+"@example.com"), models.CustomerFields{})
		require.NoError(t, err)
		first, second := key("first"), key("second")
		for _, sid := range []string{first, second} {
			_, err = unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderInternal})
			require.NoError(t, err)
		}

		require.NoError(t, unit.SetLatestSession(ctx, c.ID, first))
		require.NoError(t, unit.SetLatestSession(ctx, c.ID, second))

		latest, err := unit.LatestSession(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, second, latest.Session.InternalSessionID)

		found, err := unit.FindCustomerByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, second, found.InternalSessionID)

		err = unit.SetLatestSession(ctx, key("missing"), second)
		require.ErrorIs(t, err, ErrCustomerNotFound)
	})

	t.Run("brand edge follows brandId", func(t *testing.T) {
		unit := open(t)
		sid := key("sess")
		brandA, brandB := key("brand-a"), key("brand-b")

		_, err := unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderInternal, BrandID: brandA})
		require.NoError(t, err)
		_, err = unit.UpsertBrand(ctx, brandA, "Brand A", "brand-a")
		require.NoError(t, err)

		graph, err := unit.Neighborhood(ctx, sid)
		require.NoError(t, err)
		require.NotNil(t, graph.Brand)
		assert.Equal(t, brandA, graph.Brand.ID)

		_, err = unit.UpsertBrand(ctx, brandB, "Brand B", "brand-b")
		require.NoError(t, err)
		_, err = unit.UpsertSession(ctx, sid, models.SessionFields{BrandID: brandB})
		require.NoError(t, err)

		graph, err = unit.Neighborhood(ctx, sid)
		require.NoError(t, err)
		require.NotNil(t, graph.Brand)
		assert.Equal(t, brandB, graph.Brand.ID)
	})

	t.Run("identity records provider id", func(t *testing.T) {
		unit := open(t)
		sid, ext := key("sess"), key("amp")
		_, err := unit.UpsertSession(ctx, sid, models.SessionFields{Provider: models.ProviderAmplitude, AmplitudeSession: ext})
		require.NoError(t, err)

		first, err := unit.UpsertIdentity(ctx, models.ProviderAmplitude, ext, sid)
		require.NoError(t, err)
		second, err := unit.UpsertIdentity(ctx, models.ProviderAmplitude, ext, sid)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, ext, second.ExternalID)

		_, err = unit.UpsertIdentity(ctx, models.ProviderAmplitude, ext, key("missing"))
		require.ErrorIs(t, err, ErrSessionNotFound)
	})
}
