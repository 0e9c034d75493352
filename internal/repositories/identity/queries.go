package identity

import (
	"fmt"

	"github.com/blessingk/neo4j/pkg/models"
)

const upsertBrandQuery = `
	MERGE (b:Brand {id: $id})
	SET b.name = $name, b.slug = $slug
	RETURN b
`

// Sessions created before their brand existed get their FOR_BRAND edge once it does.
const backfillBrandQuery = `
	MATCH (b:Brand {id: $id})
	MATCH (s:Session {brandId: $id})
	WHERE NOT (s)-[:FOR_BRAND]->(:Brand)
	MERGE (s)-[:FOR_BRAND]->(b)
	RETURN count(s) AS attached
`

const findBrandQuery = `
	MATCH (b:Brand {id: $id})
	RETURN b
`

const listBrandsQuery = `
	MATCH (b:Brand)
	RETURN b
	ORDER BY b.id
`

const upsertSessionQuery = `
	MERGE (s:Session {internalSessionId: $internalSessionId})
	ON CREATE SET s.id = $id, s.createdAt = $now, s.lastSeenAt = $now, s.provider = $provider
	SET s.lastSeenAt = CASE WHEN s.lastSeenAt IS NULL OR s.lastSeenAt < $now THEN $now ELSE s.lastSeenAt END
	SET s += $fields
	RETURN s
`

const repointSessionBrandQuery = `
	MATCH (s:Session {internalSessionId: $internalSessionId})
	OPTIONAL MATCH (s)-[old:FOR_BRAND]->(prev:Brand)
	WHERE prev.id <> $brandId
	DELETE old
	WITH DISTINCT s
	MATCH (b:Brand {id: $brandId})
	MERGE (s)-[:FOR_BRAND]->(b)
	RETURN b
`

const neighborhoodQuery = `
	MATCH (s:Session {internalSessionId: $internalSessionId})
	OPTIONAL MATCH (s)-[:BELONGS_TO]->(c:Customer)
	OPTIONAL MATCH (s)-[:FOR_BRAND]->(b:Brand)
	OPTIONAL MATCH (fb:Brand {id: s.brandId})
	RETURN s, c, coalesce(b, fb) AS b
`

const linkSessionsQuery = `
	MATCH (a:Session {internalSessionId: $from})
	UNWIND $to AS target
	MATCH (b:Session {internalSessionId: target})
	WHERE b.internalSessionId <> a.internalSessionId
	MERGE (a)-[:LINKED_TO]->(b)
	RETURN count(DISTINCT b) AS linked
`

const linkedSessionsQuery = `
	MATCH (a:Session {internalSessionId: $internalSessionId})-[:LINKED_TO]-(b:Session)
	RETURN DISTINCT b
	ORDER BY b.lastSeenAt DESC
`

const upsertIdentityQuery = `
	MATCH (s:Session {internalSessionId: $internalSessionId})
	MERGE (i:Identity {id: $id})
	ON CREATE SET i.provider = $provider, i.externalId = $externalId, i.createdAt = $now
	MERGE (s)-[:IDENTIFIED_BY]->(i)
	RETURN i
`

const findCustomerByIDQuery = `
	MATCH (c:Customer {id: $id})
	RETURN c
`

const listCustomersQuery = `
	MATCH (c:Customer)
	RETURN c
	ORDER BY c.createdAt, c.id
	LIMIT $limit
`

const currentOwnerQuery = `
	MATCH (s:Session {internalSessionId: $internalSessionId})
	OPTIONAL MATCH (c:Customer {id: $customerId})
	OPTIONAL MATCH (s)-[:BELONGS_TO]->(prev:Customer)
	RETURN c IS NOT NULL AS customerExists, collect(prev.id) AS previous
`

const linkSessionQuery = `
	MATCH (s:Session {internalSessionId: $internalSessionId})
	MATCH (c:Customer {id: $customerId})
	OPTIONAL MATCH (s)-[old:BELONGS_TO]->(:Customer)
	DELETE old
	WITH DISTINCT s, c
	MERGE (s)-[:BELONGS_TO]->(c)
	RETURN c.id AS customerId
`

const migrateLinkedQuery = `
	MATCH (s:Session {internalSessionId: $internalSessionId})-[:LINKED_TO]-(o:Session)-[r:BELONGS_TO]->(:Customer {id: $previousId})
	MATCH (c:Customer {id: $customerId})
	DELETE r
	WITH DISTINCT o, c
	MERGE (o)-[:BELONGS_TO]->(c)
	RETURN count(o) AS migrated
`

const setLatestSessionQuery = `
	MATCH (c:Customer {id: $customerId})
	MATCH (s:Session {internalSessionId: $internalSessionId})
	OPTIONAL MATCH (c)-[old:LATEST_SESSION]->(:Session)
	DELETE old
	WITH DISTINCT c, s
	MERGE (c)-[:LATEST_SESSION]->(s)
	SET c.internalSessionId = s.internalSessionId
	RETURN c.id AS customerId
`

const existsQuery = `
	OPTIONAL MATCH (c:Customer {id: $customerId})
	OPTIONAL MATCH (s:Session {internalSessionId: $internalSessionId})
	RETURN c IS NOT NULL AS customerExists, s IS NOT NULL AS sessionExists
`

const customerSessionsQuery = `
	MATCH (s:Session)-[:BELONGS_TO]->(:Customer {id: $customerId})
	OPTIONAL MATCH (s)-[:FOR_BRAND]->(b:Brand)
	RETURN s, b
	ORDER BY s.lastSeenAt DESC, s.internalSessionId
`

const latestSessionQuery = `
	MATCH (:Customer {id: $customerId})-[:LATEST_SESSION]->(s:Session)
	OPTIONAL MATCH (s)-[:FOR_BRAND]->(b:Brand)
	RETURN s, b
`

// sessionKeyQuery looks a session up by one alternate key, most recently seen first.
func sessionKeyQuery(field models.SessionKeyField) (string, error) {
	switch field {
	case models.SessionKeyInternal, models.SessionKeyBraze, models.SessionKeyAmplitude, models.SessionKeyEmail:
	default:
		return "", fmt.Errorf("unknown session key %q", field)
	}
	return fmt.Sprintf(`
		MATCH (s:Session {%s: $value})
		RETURN s
		ORDER BY s.lastSeenAt DESC
		LIMIT 2
	`, field), nil
}

func customerKeyField(key models.CustomerKey) (string, error) {
	if !key.Valid() {
		return "", fmt.Errorf("invalid customer key %q", key.Field)
	}
	return string(key.Field), nil
}

func upsertCustomerQuery(key models.CustomerKey) (string, error) {
	field, err := customerKeyField(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		MERGE (c:Customer {%s: $value})
		ON CREATE SET c.id = $id, c.createdAt = $now
		SET c += $fields
		RETURN c
	`, field), nil
}

// phoneOwnersQuery returns every customer holding a phone, oldest first.
const phoneOwnersQuery = `
	MATCH (c:Customer {phone: $phone})
	RETURN c.id AS id, c.email AS email
	ORDER BY c.createdAt
`

func updateCustomerQuery(key models.CustomerKey) (string, error) {
	field, err := customerKeyField(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		MATCH (c:Customer {id: $customerId})
		SET c += $fields, c.%s = $value
		RETURN c
	`, field), nil
}

func findCustomerQuery(key models.CustomerKey) (string, error) {
	field, err := customerKeyField(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		MATCH (c:Customer {%s: $value})
		RETURN c
		ORDER BY c.createdAt
		LIMIT 2
	`, field), nil
}
