package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/blessingk/neo4j/pkg/tracing"
)

// Dialect selects the schema DDL syntax of the graph store.
type Dialect string

const (
	DialectNeo4j    Dialect = "neo4j"
	DialectMemgraph Dialect = "memgraph"
)

// ParseDialect returns the dialect named by s. Empty selects DialectNeo4j.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case "", DialectNeo4j:
		return DialectNeo4j, nil
	case DialectMemgraph:
		return DialectMemgraph, nil
	default:
		return "", fmt.Errorf("unknown graph dialect %q", s)
	}
}

type schemaItem struct {
	name     string
	label    string
	property string
	unique   bool
}

var schemaItems = []schemaItem{
	{name: "brand_id", label: "Brand", property: "id", unique: true},
	{name: "customer_id", label: "Customer", property: "id", unique: true},
	{name: "customer_email", label: "Customer", property: "email", unique: true},
	{name: "session_id", label: "Session", property: "id", unique: true},
	{name: "session_internal_id", label: "Session", property: "internalSessionId", unique: true},
	{name: "identity_id", label: "Identity", property: "id", unique: true},
	{name: "session_braze", label: "Session", property: "brazeSession"},
	{name: "session_amplitude", label: "Session", property: "amplitudeSession"},
	{name: "session_email", label: "Session", property: "email"},
	{name: "customer_phone", label: "Customer", property: "phone"},
}

func (i schemaItem) statement(dialect Dialect) string {
	if dialect == DialectMemgraph {
		if i.unique {
			return fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.%s IS UNIQUE", i.label, i.property)
		}
		return fmt.Sprintf("CREATE INDEX ON :%s(%s)", i.label, i.property)
	}
	if i.unique {
		return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE", i.name, i.label, i.property)
	}
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", i.name, i.label, i.property)
}

// SchemaStatements returns the DDL that EnsureSchema runs for dialect.
func SchemaStatements(dialect Dialect) []string {
	statements := make([]string, 0, len(schemaItems))
	for _, item := range schemaItems {
		statements = append(statements, item.statement(dialect))
	}
	return statements
}

// EnsureSchema creates the uniqueness constraints and lookup indexes. It is safe to
// run on every start.
func (s *GraphStore) EnsureSchema(ctx context.Context, dialect Dialect) error {
	ctx, span := tracing.StartSpan(ctx, "identity.GraphStore.EnsureSchema")
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("dialect", string(dialect))

	unit := s.client.Open(ctx, neo4j.AccessModeWrite)
	defer unit.Close(ctx)

	for _, statement := range SchemaStatements(dialect) {
		if err := unit.Run(ctx, statement, nil); err != nil {
			// Memgraph has no IF NOT EXISTS and reports existing schema as an error.
			if dialect == DialectMemgraph && isAlreadyExists(err) {
				continue
			}
			log.WithError(err).Errorf("Failed to apply schema statement: %s", statement)
			return wrapError("EnsureSchema", err)
		}
	}

	log.Info("Graph schema ensured")
	return nil
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "exists already")
}
