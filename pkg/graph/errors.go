package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var (
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("graph store unavailable")
	// ErrConstraint means a write would violate a uniqueness constraint.
	ErrConstraint = errors.New("graph constraint violated")
	// ErrUnitClosed is returned when a closed unit of work is used.
	ErrUnitClosed = errors.New("graph unit of work already closed")
)

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Classify maps driver errors onto ErrUnavailable or ErrConstraint, keeping the
// original error text. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConstraint) {
		return err
	}

	cause := err
	var limit *neo4j.TransactionExecutionLimit
	if errors.As(err, &limit) && len(limit.Errors) > 0 {
		cause = limit.Errors[len(limit.Errors)-1]
	}

	switch {
	case isConnectivityError(cause), errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case isConstraintError(cause):
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	case limit != nil:
		// retries exhausted against transient failures
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}

func isConnectivityError(err error) bool {
	var cerr *neo4j.ConnectivityError
	return errors.As(err, &cerr)
}

func isConstraintError(err error) bool {
	var nerr *neo4j.Neo4jError
	if !errors.As(err, &nerr) {
		return false
	}
	return nerr.Code == constraintViolationCode || strings.Contains(nerr.Code, "ConstraintValidationFailed")
}
