package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blessingk/neo4j/pkg/models"
)

// MemoryStore is an in-process Store with the same merge, link and lookup rules as
// GraphStore. All units share one graph guarded by a mutex.
type MemoryStore struct {
	mu sync.Mutex

	brands     map[string]models.Brand
	customers  map[string]*models.Customer
	sessions   map[string]*models.Session
	identities map[string]models.Identity

	belongsTo    map[string]string
	forBrand     map[string]string
	latest       map[string]string
	linked       map[string]map[string]struct{}
	identifiedBy map[string]map[string]struct{}

	now         func() time.Time
	unavailable bool
	opened      int
	closed      int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the store's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		brands:       map[string]models.Brand{},
		customers:    map[string]*models.Customer{},
		sessions:     map[string]*models.Session{},
		identities:   map[string]models.Identity{},
		belongsTo:    map[string]string{},
		forBrand:     map[string]string{},
		latest:       map[string]string{},
		linked:       map[string]map[string]struct{}{},
		identifiedBy: map[string]map[string]struct{}{},
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetUnavailable makes every unit operation and Ping fail with ErrStoreUnavailable.
func (m *MemoryStore) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

// Opened returns how many units have been opened.
func (m *MemoryStore) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// OpenUnits returns how many units are opened but not yet closed.
func (m *MemoryStore) OpenUnits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened - m.closed
}

func (m *MemoryStore) Open(_ context.Context, _ AccessMode) (UnitOfWork, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	return &memoryUnit{store: m}, nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return &RepositoryError{Op: "Ping", Err: ErrStoreUnavailable}
	}
	return nil
}

func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}

type memoryUnit struct {
	store  *MemoryStore
	closed bool
}

// lock acquires the store for one operation.
func (u *memoryUnit) lock(op string) (*MemoryStore, func(), error) {
	m := u.store
	m.mu.Lock()
	if u.closed {
		m.mu.Unlock()
		return nil, nil, &RepositoryError{Op: op, Err: fmt.Errorf("unit of work already closed")}
	}
	if m.unavailable {
		m.mu.Unlock()
		return nil, nil, &RepositoryError{Op: op, Err: ErrStoreUnavailable}
	}
	return m, m.mu.Unlock, nil
}

func (u *memoryUnit) Close(_ context.Context) error {
	m := u.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	m.closed++
	return nil
}

func (u *memoryUnit) UpsertBrand(_ context.Context, id, name, slug string) (*models.Brand, error) {
	m, unlock, err := u.lock("UpsertBrand")
	if err != nil {
		return nil, err
	}
	defer unlock()

	brand := models.Brand{ID: id, Name: name, Slug: slug}
	m.brands[id] = brand
	for sid, s := range m.sessions {
		if _, ok := m.forBrand[sid]; !ok && s.BrandID == id {
			m.forBrand[sid] = id
		}
	}
	return &brand, nil
}

func (u *memoryUnit) FindBrand(_ context.Context, id string) (*models.Brand, error) {
	m, unlock, err := u.lock("FindBrand")
	if err != nil {
		return nil, err
	}
	defer unlock()

	brand, ok := m.brands[id]
	if !ok {
		return nil, nil
	}
	return &brand, nil
}

func (u *memoryUnit) ListBrands(_ context.Context) ([]models.Brand, error) {
	m, unlock, err := u.lock("ListBrands")
	if err != nil {
		return nil, err
	}
	defer unlock()

	brands := make([]models.Brand, 0, len(m.brands))
	for _, b := range m.brands {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i].ID < brands[j].ID })
	return brands, nil
}

func (u *memoryUnit) UpsertSession(_ context.Context, internalSessionID string, fields models.SessionFields) (*models.Session, error) {
	m, unlock, err := u.lock("UpsertSession")
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := m.now()
	s, ok := m.sessions[internalSessionID]
	if !ok {
		s = &models.Session{
			ID:                uuid.NewString(),
			InternalSessionID: internalSessionID,
			Provider:          fields.Provider,
			CreatedAt:         now,
			LastSeenAt:        now,
		}
		m.sessions[internalSessionID] = s
	}
	if now.After(s.LastSeenAt) {
		s.LastSeenAt = now
	}

	if fields.BrazeSession != "" {
		s.BrazeSession = fields.BrazeSession
	}
	if fields.AmplitudeSession != "" {
		s.AmplitudeSession = fields.AmplitudeSession
	}
	if fields.Email != "" {
		s.Email = models.NormalizeEmail(fields.Email)
	}
	if fields.BrandID != "" {
		s.BrandID = fields.BrandID
		if _, exists := m.brands[fields.BrandID]; exists {
			m.forBrand[internalSessionID] = fields.BrandID
		} else if current, linked := m.forBrand[internalSessionID]; linked && current != fields.BrandID {
			delete(m.forBrand, internalSessionID)
		}
	}

	out := *s
	return &out, nil
}

func (u *memoryUnit) FindByAnyKey(_ context.Context, keys models.SessionKeys) (*models.Session, error) {
	m, unlock, err := u.lock("FindByAnyKey")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, field := range models.SessionKeyPriority {
		value := keys.Value(field)
		if value == "" {
			continue
		}

		var best *models.Session
		for _, s := range m.sessions {
			if sessionValue(s, field) != value {
				continue
			}
			if best == nil || s.LastSeenAt.After(best.LastSeenAt) {
				best = s
			}
		}
		if best != nil {
			out := *best
			return &out, nil
		}
	}
	return nil, nil
}

func sessionValue(s *models.Session, field models.SessionKeyField) string {
	switch field {
	case models.SessionKeyInternal:
		return s.InternalSessionID
	case models.SessionKeyBraze:
		return s.BrazeSession
	case models.SessionKeyAmplitude:
		return s.AmplitudeSession
	case models.SessionKeyEmail:
		return s.Email
	default:
		return ""
	}
}

func (u *memoryUnit) Neighborhood(_ context.Context, internalSessionID string) (*models.SessionGraph, error) {
	m, unlock, err := u.lock("Neighborhood")
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, ok := m.sessions[internalSessionID]
	if !ok {
		return nil, nil
	}

	session := *s
	g := &models.SessionGraph{Session: &session}
	if cid, ok := m.belongsTo[internalSessionID]; ok {
		c := *m.customers[cid]
		g.Customer = &c
	}
	g.Brand = m.brandFor(s)
	return g, nil
}

// brandFor follows FOR_BRAND, falling back to the session's brandId.
func (m *MemoryStore) brandFor(s *models.Session) *models.Brand {
	bid, ok := m.forBrand[s.InternalSessionID]
	if !ok {
		bid = s.BrandID
	}
	if b, ok := m.brands[bid]; ok {
		return &b
	}
	return nil
}

func (u *memoryUnit) LinkSessions(_ context.Context, fromInternalSessionID string, toInternalSessionIDs []string) (int, error) {
	m, unlock, err := u.lock("LinkSessions")
	if err != nil {
		return 0, err
	}
	defer unlock()

	if _, ok := m.sessions[fromInternalSessionID]; !ok {
		return 0, nil
	}

	count := 0
	seen := map[string]struct{}{}
	for _, to := range toInternalSessionIDs {
		if to == fromInternalSessionID {
			continue
		}
		if _, ok := m.sessions[to]; !ok {
			continue
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		if m.linked[fromInternalSessionID] == nil {
			m.linked[fromInternalSessionID] = map[string]struct{}{}
		}
		m.linked[fromInternalSessionID][to] = struct{}{}
		count++
	}
	return count, nil
}

func (u *memoryUnit) LinkedSessions(_ context.Context, internalSessionID string) ([]models.Session, error) {
	m, unlock, err := u.lock("LinkedSessions")
	if err != nil {
		return nil, err
	}
	defer unlock()

	ids := m.neighbours(internalSessionID)
	sessions := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, *m.sessions[id])
	}
	sortSessions(sessions)
	return sessions, nil
}

// neighbours returns LINKED_TO neighbours in either direction.
func (m *MemoryStore) neighbours(internalSessionID string) []string {
	set := map[string]struct{}{}
	for to := range m.linked[internalSessionID] {
		set[to] = struct{}{}
	}
	for from, targets := range m.linked {
		if _, ok := targets[internalSessionID]; ok {
			set[from] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (u *memoryUnit) UpsertIdentity(_ context.Context, provider models.Provider, externalID, internalSessionID string) (*models.Identity, error) {
	m, unlock, err := u.lock("UpsertIdentity")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := m.sessions[internalSessionID]; !ok {
		return nil, &RepositoryError{Op: "UpsertIdentity", Err: ErrSessionNotFound}
	}

	id := IdentityID(provider, externalID)
	identity, ok := m.identities[id]
	if !ok {
		identity = models.Identity{ID: id, Provider: provider, ExternalID: externalID, CreatedAt: m.now()}
		m.identities[id] = identity
	}
	if m.identifiedBy[internalSessionID] == nil {
		m.identifiedBy[internalSessionID] = map[string]struct{}{}
	}
	m.identifiedBy[internalSessionID][id] = struct{}{}
	return &identity, nil
}

func (u *memoryUnit) UpsertCustomer(_ context.Context, key models.CustomerKey, fields models.CustomerFields) (*models.Customer, error) {
	m, unlock, err := u.lock("UpsertCustomer")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := customerKeyField(key); err != nil {
		return nil, &RepositoryError{Op: "UpsertCustomer", Err: err}
	}

	matches := m.customersByKey(key)
	if len(matches) > 1 {
		return nil, &RepositoryError{Op: "UpsertCustomer", Err: fmt.Errorf("%w: %d customers share %s", ErrIntegrityViolation, len(matches), key.Field)}
	}

	phone := models.PhoneKey(fields.Phone)

	var c models.Customer
	switch {
	case len(matches) == 1:
		c = *matches[0]
	case key.Field == models.CustomerKeyEmail && phone.Valid():
		// a phone-only customer picks up the email instead of a second customer being created
		if owners := m.customersByKey(phone); len(owners) == 1 && owners[0].Email == "" {
			c = *owners[0]
		}
	}
	if c.ID == "" {
		c = models.Customer{ID: uuid.NewString(), CreatedAt: m.now()}
	}
	setCustomerKey(&c, key)

	if fields.Email != "" {
		email := models.NormalizeEmail(fields.Email)
		if other := m.customersByKey(models.EmailKey(email)); len(other) > 0 && other[0].ID != c.ID {
			return nil, &RepositoryError{Op: "UpsertCustomer", Err: fmt.Errorf("%w: email already belongs to customer %s", ErrIntegrityViolation, other[0].ID)}
		}
		c.Email = email
	}
	if phone.Valid() {
		for _, other := range m.customersByKey(phone) {
			if other.ID != c.ID {
				return nil, &RepositoryError{Op: "UpsertCustomer", Err: fmt.Errorf("%w: phone already belongs to customer %s", ErrIntegrityViolation, other.ID)}
			}
		}
		c.Phone = phone.Value
	}
	if fields.InternalSessionID != "" {
		c.InternalSessionID = fields.InternalSessionID
	}
	m.customers[c.ID] = &c

	out := c
	return &out, nil
}

func setCustomerKey(c *models.Customer, key models.CustomerKey) {
	switch key.Field {
	case models.CustomerKeyEmail:
		c.Email = key.Value
	case models.CustomerKeyPhone:
		c.Phone = key.Value
	}
}

func (m *MemoryStore) customersByKey(key models.CustomerKey) []*models.Customer {
	var out []*models.Customer
	for _, c := range m.customers {
		switch key.Field {
		case models.CustomerKeyEmail:
			if c.Email != "" && c.Email == key.Value {
				out = append(out, c)
			}
		case models.CustomerKeyPhone:
			if c.Phone != "" && c.Phone == key.Value {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (u *memoryUnit) FindCustomer(_ context.Context, key models.CustomerKey) (*models.Customer, error) {
	m, unlock, err := u.lock("FindCustomer")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := customerKeyField(key); err != nil {
		return nil, &RepositoryError{Op: "FindCustomer", Err: err}
	}

	matches := m.customersByKey(key)
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		out := *matches[0]
		return &out, nil
	default:
		return nil, &RepositoryError{Op: "FindCustomer", Err: fmt.Errorf("%w: %d customers share %s", ErrIntegrityViolation, len(matches), key.Field)}
	}
}

func (u *memoryUnit) FindCustomerByID(_ context.Context, id string) (*models.Customer, error) {
	m, unlock, err := u.lock("FindCustomerByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (u *memoryUnit) ListCustomers(_ context.Context, limit int) ([]models.Customer, error) {
	m, unlock, err := u.lock("ListCustomers")
	if err != nil {
		return nil, err
	}
	defer unlock()

	customers := make([]models.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		customers = append(customers, *c)
	}
	sort.Slice(customers, func(i, j int) bool {
		if customers[i].CreatedAt.Equal(customers[j].CreatedAt) {
			return customers[i].ID < customers[j].ID
		}
		return customers[i].CreatedAt.Before(customers[j].CreatedAt)
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (u *memoryUnit) LinkSessionToCustomer(_ context.Context, internalSessionID, customerID string, policy LinkPolicy) (models.LinkResult, error) {
	m, unlock, err := u.lock("LinkSessionToCustomer")
	if err != nil {
		return models.LinkResult{}, err
	}
	defer unlock()

	if _, ok := m.sessions[internalSessionID]; !ok {
		return models.LinkResult{}, &RepositoryError{Op: "LinkSessionToCustomer", Err: ErrSessionNotFound}
	}
	if _, ok := m.customers[customerID]; !ok {
		return models.LinkResult{}, &RepositoryError{Op: "LinkSessionToCustomer", Err: ErrCustomerNotFound}
	}

	prev, linked := m.belongsTo[internalSessionID]
	switch {
	case !linked:
		m.belongsTo[internalSessionID] = customerID
		return models.LinkResult{Outcome: models.LinkCreated}, nil
	case prev == customerID:
		return models.LinkResult{Outcome: models.LinkUnchanged}, nil
	case policy == LinkPolicyReject:
		return models.LinkResult{PreviousCustomerID: prev}, &RepositoryError{Op: "LinkSessionToCustomer", Err: ErrRelinkConflict}
	}

	m.belongsTo[internalSessionID] = customerID
	result := models.LinkResult{Outcome: models.LinkRepointed, PreviousCustomerID: prev}
	if policy == LinkPolicyMigrate {
		for _, sibling := range m.neighbours(internalSessionID) {
			if m.belongsTo[sibling] == prev {
				m.belongsTo[sibling] = customerID
				result.MigratedSessions++
			}
		}
	}
	return result, nil
}

func (u *memoryUnit) SetLatestSession(_ context.Context, customerID, internalSessionID string) error {
	m, unlock, err := u.lock("SetLatestSession")
	if err != nil {
		return err
	}
	defer unlock()

	c, ok := m.customers[customerID]
	if !ok {
		return &RepositoryError{Op: "SetLatestSession", Err: ErrCustomerNotFound}
	}
	if _, ok := m.sessions[internalSessionID]; !ok {
		return &RepositoryError{Op: "SetLatestSession", Err: ErrSessionNotFound}
	}
	m.latest[customerID] = internalSessionID
	c.InternalSessionID = internalSessionID
	return nil
}

func (u *memoryUnit) CustomerSessions(_ context.Context, customerID string) ([]models.SessionWithBrand, error) {
	m, unlock, err := u.lock("CustomerSessions")
	if err != nil {
		return nil, err
	}
	defer unlock()

	sessions := []models.SessionWithBrand{}
	for sid, cid := range m.belongsTo {
		if cid != customerID {
			continue
		}
		s := m.sessions[sid]
		var brand *models.Brand
		if bid, ok := m.forBrand[sid]; ok {
			if b, ok := m.brands[bid]; ok {
				brand = &b
			}
		}
		sessions = append(sessions, models.SessionWithBrand{Session: *s, Brand: brand})
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i].Session, sessions[j].Session
		if a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.InternalSessionID < b.InternalSessionID
		}
		return a.LastSeenAt.After(b.LastSeenAt)
	})
	return sessions, nil
}

func (u *memoryUnit) LatestSession(_ context.Context, customerID string) (*models.SessionWithBrand, error) {
	m, unlock, err := u.lock("LatestSession")
	if err != nil {
		return nil, err
	}
	defer unlock()

	sid, ok := m.latest[customerID]
	if !ok {
		return nil, nil
	}
	s := m.sessions[sid]
	var brand *models.Brand
	if bid, ok := m.forBrand[sid]; ok {
		if b, ok := m.brands[bid]; ok {
			brand = &b
		}
	}
	return &models.SessionWithBrand{Session: *s, Brand: brand}, nil
}

func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].LastSeenAt.Equal(sessions[j].LastSeenAt) {
			return sessions[i].InternalSessionID < sessions[j].InternalSessionID
		}
		return sessions[i].LastSeenAt.After(sessions[j].LastSeenAt)
	})
}
