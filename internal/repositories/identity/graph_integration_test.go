package identity

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/blessingk/neo4j/pkg/graph"
)

// Runs against a live Neo4j or Memgraph when GRAPH_DB_HOST is set.
func TestGraphStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	host := os.Getenv("GRAPH_DB_HOST")
	if host == "" {
		t.Skip("GRAPH_DB_HOST not set")
	}

	port, _ := strconv.Atoi(os.Getenv("GRAPH_DB_PORT"))
	if port == 0 {
		port = 7687
	}
	dialect := Dialect(os.Getenv("GRAPH_DB_DIALECT"))
	if dialect == "" {
		dialect = DialectNeo4j
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	ctx := context.Background()

	client, err := graph.NewClient(graph.Config{
		Host:     host,
		Port:     port,
		Username: os.Getenv("GRAPH_DB_USER"),
		Password: os.Getenv("GRAPH_DB_PASSWORD"),
		Database: os.Getenv("GRAPH_DB_DATABASE"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(ctx) })

	store := NewGraphStore(client, logger)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.EnsureSchema(ctx, dialect))

	runStoreContract(t, func(t *testing.T) Store {
		return store
	})
}
