// Package identity persists brands, customers and sessions in the identity graph.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/blessingk/neo4j/pkg/models"
)

var (
	// ErrStoreUnavailable means the graph store could not be reached.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrIntegrityViolation means a uniqueness rule was broken, either by a write or by
	// the store returning several nodes for a unique key.
	ErrIntegrityViolation = errors.New("identity store integrity violation")
	ErrSessionNotFound    = errors.New("session not found")
	ErrCustomerNotFound   = errors.New("customer not found")
	// ErrRelinkConflict is returned under LinkPolicyReject when a session already belongs
	// to another customer.
	ErrRelinkConflict = errors.New("session already belongs to a different customer")
)

// RepositoryError wraps a failure with the repository operation that produced it.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("identity repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// AccessMode declares whether a unit of work writes.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
)

func (m AccessMode) String() string {
	if m == AccessWrite {
		return "write"
	}
	return "read"
}

// LinkPolicy decides what happens when a session that already belongs to one
// customer is linked to another.
type LinkPolicy string

const (
	// LinkPolicyRepoint replaces the existing BELONGS_TO edge.
	LinkPolicyRepoint LinkPolicy = "repoint"
	// LinkPolicyReject refuses the link with ErrRelinkConflict.
	LinkPolicyReject LinkPolicy = "reject"
	// LinkPolicyMigrate repoints the session and every LINKED_TO neighbour that
	// belonged to the previous customer.
	LinkPolicyMigrate LinkPolicy = "migrate"
)

// ParseLinkPolicy returns the policy named by s. Empty selects LinkPolicyRepoint.
func ParseLinkPolicy(s string) (LinkPolicy, error) {
	switch LinkPolicy(s) {
	case "", LinkPolicyRepoint:
		return LinkPolicyRepoint, nil
	case LinkPolicyReject, LinkPolicyMigrate:
		return LinkPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown link policy %q", s)
	}
}

// Store hands out units of work against the identity graph.
type Store interface {
	Open(ctx context.Context, mode AccessMode) (UnitOfWork, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// UnitOfWork is one scoped store session. Each method is its own atomic
// transaction; the unit must be closed on every path.
//
// Find, Neighborhood and LatestSession return nil without error when nothing matches.
type UnitOfWork interface {
	UpsertBrand(ctx context.Context, id, name, slug string) (*models.Brand, error)
	FindBrand(ctx context.Context, id string) (*models.Brand, error)
	ListBrands(ctx context.Context) ([]models.Brand, error)

	UpsertSession(ctx context.Context, internalSessionID string, fields models.SessionFields) (*models.Session, error)
	FindByAnyKey(ctx context.Context, keys models.SessionKeys) (*models.Session, error)
	Neighborhood(ctx context.Context, internalSessionID string) (*models.SessionGraph, error)
	LinkSessions(ctx context.Context, fromInternalSessionID string, toInternalSessionIDs []string) (int, error)
	LinkedSessions(ctx context.Context, internalSessionID string) ([]models.Session, error)
	UpsertIdentity(ctx context.Context, provider models.Provider, externalID, internalSessionID string) (*models.Identity, error)

	UpsertCustomer(ctx context.Context, key models.CustomerKey, fields models.CustomerFields) (*models.Customer, error)
	FindCustomer(ctx context.Context, key models.CustomerKey) (*models.Customer, error)
	FindCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]models.Customer, error)
	LinkSessionToCustomer(ctx context.Context, internalSessionID, customerID string, policy LinkPolicy) (models.LinkResult, error)
	SetLatestSession(ctx context.Context, customerID, internalSessionID string) error
	CustomerSessions(ctx context.Context, customerID string) ([]models.SessionWithBrand, error)
	LatestSession(ctx context.Context, customerID string) (*models.SessionWithBrand, error)

	Close(ctx context.Context) error
}

// IdentityID is the node id of the Identity for (provider, externalID).
func IdentityID(provider models.Provider, externalID string) string {
	return fmt.Sprintf("%s:%s", provider, externalID)
}
