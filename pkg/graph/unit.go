package graph

import (
	"context"
	"sync/atomic"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/blessingk/neo4j/pkg/tracing"
)

// Unit is one scoped store session. Each Write/Read call is its own managed
// transaction; the Unit itself spans the whole caller operation.
type Unit struct {
	session neo4j.SessionWithContext
	logger  ectologger.Logger
	closed  atomic.Bool
}

// Write runs work in a managed write transaction.
func (u *Unit) Write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	if u.closed.Load() {
		return nil, ErrUnitClosed
	}

	ctx, span := tracing.StartSpan(ctx, "graph.Unit.Write")
	defer span.End()

	res, err := u.session.ExecuteWrite(ctx, work)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, Classify(err)
	}
	return res, nil
}

// Read runs work in a managed read transaction.
func (u *Unit) Read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	if u.closed.Load() {
		return nil, ErrUnitClosed
	}

	ctx, span := tracing.StartSpan(ctx, "graph.Unit.Read")
	defer span.End()

	res, err := u.session.ExecuteRead(ctx, work)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, Classify(err)
	}
	return res, nil
}

// Close releases the session. Closing twice is a no-op.
func (u *Unit) Close(ctx context.Context) error {
	if u.closed.Swap(true) {
		return nil
	}
	if err := u.session.Close(ctx); err != nil {
		u.logger.WithContext(ctx).WithError(err).Warn("Failed to close graph session")
		return Classify(err)
	}
	return nil
}

// Run executes one auto-commit statement and discards its result. Schema
// statements need this on stores that reject them inside explicit transactions.
func (u *Unit) Run(ctx context.Context, cypher string, params map[string]any) error {
	if u.closed.Load() {
		return ErrUnitClosed
	}

	ctx, span := tracing.StartSpan(ctx, "graph.Unit.Run")
	defer span.End()

	result, err := u.session.Run(ctx, cypher, params)
	if err != nil {
		tracing.RecordError(span, err)
		return Classify(err)
	}
	if _, err := result.Consume(ctx); err != nil {
		tracing.RecordError(span, err)
		return Classify(err)
	}
	return nil
}
