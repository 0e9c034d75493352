// Package graph provides the Neo4j/Memgraph client used as the identity graph store.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/blessingk/neo4j/pkg/tracing"
)

// Client wraps the Neo4j driver
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

// Config holds graph database configuration
type Config struct {
	// URI takes precedence over Host/Port when set, e.g. neo4j+s://example.databases.neo4j.io
	URI         string
	Host        string
	Port        int
	Username    string
	Password    string
	Database    string
	MaxPoolSize int
	Timeout     time.Duration
}

// Target returns the connection URI the client will dial.
func (c Config) Target() string {
	if c.URI != "" {
		return c.URI
	}
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// NewClient creates a new graph database client. It does not dial; call VerifyConnectivity.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Target(), auth, func(dc *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			dc.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.Timeout > 0 {
			dc.SocketConnectTimeout = cfg.Timeout
			dc.ConnectionAcquisitionTimeout = cfg.Timeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}, nil
}

// Close closes the driver connection
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.VerifyConnectivity")
	defer span.End()

	return c.driver.VerifyConnectivity(ctx)
}

// Session creates a new session with the given access mode
func (c *Client) Session(ctx context.Context, accessMode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode,
		DatabaseName: c.database,
	})
}

// Open starts a scoped unit of work. The caller must Close it.
func (c *Client) Open(ctx context.Context, accessMode neo4j.AccessMode) *Unit {
	return &Unit{
		session: c.Session(ctx, accessMode),
		logger:  c.logger,
	}
}

// ExecuteWrite runs a write transaction on a short-lived session
func (c *Client) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	unit := c.Open(ctx, neo4j.AccessModeWrite)
	defer unit.Close(ctx)

	return unit.Write(ctx, work)
}

// ExecuteRead runs a read transaction on a short-lived session
func (c *Client) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteRead")
	defer span.End()

	unit := c.Open(ctx, neo4j.AccessModeRead)
	defer unit.Close(ctx)

	return unit.Read(ctx, work)
}
