package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/CareForge/internal/domain"
	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/domain/member"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/prescription"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/port/broadcast"
	"github.com/Strob0t/CareForge/internal/port/cache"
	"github.com/Strob0t/CareForge/internal/port/database"
	docport "github.com/Strob0t/CareForge/internal/port/document"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
)

// Ensure the fakes implement their ports at compile time.
var (
	_ database.Store        = (*mockStore)(nil)
	_ cache.Cache           = (*memCache)(nil)
	_ docport.Store         = (*memDocs)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
	_ broadcast.Broadcaster = (*mockHub)(nil)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore is an in-memory database.Store. It returns copies, bumps
// versions on update and reports stale versions as domain.ErrConflict like
// the Postgres store does.
type mockStore struct {
	mu            sync.Mutex
	members       map[string]member.Member
	pharmacies    map[string]pharmacy.Pharmacy
	prescriptions map[string]prescription.Prescription
	roles         map[string]role.Role
	users         map[string]user.User
	apiKeys       map[string]user.APIKey

	getPharmacyCalls atomic.Int32
	// getPharmacyGate, when set, blocks GetPharmacy until closed or until
	// the caller's context ends.
	getPharmacyGate chan struct{}
}

func newMockStore() *mockStore {
	s := &mockStore{
		members:       map[string]member.Member{},
		pharmacies:    map[string]pharmacy.Pharmacy{},
		prescriptions: map[string]prescription.Prescription{},
		roles:         map[string]role.Role{},
		users:         map[string]user.User{},
		apiKeys:       map[string]user.APIKey{},
	}
	for _, name := range []string{role.Admin, role.Pharmacist, role.Viewer} {
		s.roles["role-"+name] = role.Role{ID: "role-" + name, Name: name, System: name == role.Admin}
	}
	return s
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created != nil && created.IsZero() {
		*created = now
	}
	*updated = now
}

// --- Members ---

func (s *mockStore) CreateMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Version = 1
	stamp(&m.CreatedAt, &m.UpdatedAt)
	s.members[m.ID] = *m
	return nil
}

func (s *mockStore) GetMember(_ context.Context, id string) (*member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, fmt.Errorf("get member %s: %w", id, domain.ErrNotFound)
	}
	return &m, nil
}

func (s *mockStore) ListMembers(_ context.Context, limit, offset int) ([]member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]member.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b member.Member) int { return strings.Compare(a.LastName+a.ID, b.LastName+b.ID) })
	return page(out, limit, offset), nil
}

func (s *mockStore) UpdateMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.members[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != m.Version {
		return fmt.Errorf("update member %s: %w", m.ID, domain.ErrConflict)
	}
	m.Version++
	stamp(nil, &m.UpdatedAt)
	s.members[m.ID] = *m
	return nil
}

func (s *mockStore) DeleteMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return domain.ErrNotFound
	}
	for _, p := range s.prescriptions {
		if p.MemberID == id {
			return fmt.Errorf("delete member %s: still referenced by prescriptions: %w", id, domain.ErrConflict)
		}
	}
	delete(s.members, id)
	return nil
}

// --- Pharmacies ---

func (s *mockStore) CreatePharmacy(_ context.Context, p *pharmacy.Pharmacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pharmacies {
		if existing.NPI == p.NPI {
			return fmt.Errorf("create pharmacy: %w", domain.ErrConflict)
		}
	}
	p.Version = 1
	stamp(&p.CreatedAt, &p.UpdatedAt)
	s.pharmacies[p.ID] = *p
	return nil
}

func (s *mockStore) GetPharmacy(ctx context.Context, id string) (*pharmacy.Pharmacy, error) {
	s.getPharmacyCalls.Add(1)
	if s.getPharmacyGate != nil {
		select {
		case <-s.getPharmacyGate:
		case <-ctx.Done():
			return nil, fmt.Errorf("get pharmacy %s: %w", id, ctx.Err())
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pharmacies[id]
	if !ok {
		return nil, fmt.Errorf("get pharmacy %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (s *mockStore) ListPharmacies(_ context.Context, limit, offset int) ([]pharmacy.Pharmacy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pharmacy.Pharmacy, 0, len(s.pharmacies))
	for _, p := range s.pharmacies {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b pharmacy.Pharmacy) int { return strings.Compare(a.Name+a.ID, b.Name+b.ID) })
	return page(out, limit, offset), nil
}

func (s *mockStore) UpdatePharmacy(_ context.Context, p *pharmacy.Pharmacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.pharmacies[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != p.Version {
		return domain.ErrConflict
	}
	p.Version++
	stamp(nil, &p.UpdatedAt)
	s.pharmacies[p.ID] = *p
	return nil
}

func (s *mockStore) DeletePharmacy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pharmacies[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.pharmacies, id)
	return nil
}

// --- Prescriptions ---

func (s *mockStore) CreatePrescription(_ context.Context, p *prescription.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[p.MemberID]; !ok {
		return domain.ErrNotFound
	}
	p.Version = 1
	stamp(&p.CreatedAt, &p.UpdatedAt)
	s.prescriptions[p.ID] = *p
	return nil
}

func (s *mockStore) GetPrescription(_ context.Context, id string) (*prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("get prescription %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (s *mockStore) ListPrescriptionsByMember(_ context.Context, memberID string) ([]prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []prescription.Prescription{}
	for _, p := range s.prescriptions {
		if p.MemberID == memberID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b prescription.Prescription) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *mockStore) UpdatePrescriptionStatus(_ context.Context, p *prescription.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.prescriptions[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != p.Version {
		return domain.ErrConflict
	}
	p.Version++
	s.prescriptions[p.ID] = *p
	return nil
}

// --- Roles ---

func (s *mockStore) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return domain.ErrConflict
		}
	}
	stamp(&r.CreatedAt, &r.UpdatedAt)
	s.roles[r.ID] = *r
	return nil
}

func (s *mockStore) GetRole(_ context.Context, id string) (*role.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *mockStore) GetRoleByName(_ context.Context, name string) (*role.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) ListRoles(_ context.Context) ([]role.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b role.Role) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *mockStore) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.roles[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	r.System = cur.System
	r.CreatedAt = cur.CreatedAt
	stamp(nil, &r.UpdatedAt)
	s.roles[r.ID] = *r
	return nil
}

func (s *mockStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

// --- Users ---

func (s *mockStore) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return domain.ErrConflict
		}
	}
	stamp(&u.CreatedAt, &u.UpdatedAt)
	s.users[u.ID] = *u
	return nil
}

func (s *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *mockStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *mockStore) UpdateUserRole(_ context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Role = roleName
	s.users[userID] = u
	return nil
}

// --- API keys ---

func (s *mockStore) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key.CreatedAt = time.Now()
	s.apiKeys[key.ID] = *key
	return nil
}

func (s *mockStore) GetAPIKeyByHash(_ context.Context, hash string) (*user.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.apiKeys {
		if k.KeyHash == hash {
			return &k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *mockStore) DeleteAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// memCache is a map-backed cache.Cache that ignores TTLs. Set failErr to
// make every operation fail.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failErr error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return nil, false, c.failErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	delete(c.data, key)
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// memDocs is a map-backed document store.
type memDocs struct {
	mu   sync.Mutex
	docs map[string]document.Document
}

func newMemDocs() *memDocs { return &memDocs{docs: map[string]document.Document{}} }

func (d *memDocs) Put(_ context.Context, doc document.Document) (document.Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc.CreatedAt = time.Now()
	d.docs[document.Key(doc.PrescriptionID, doc.ID)] = doc
	return doc.Info, nil
}

func (d *memDocs) Get(_ context.Context, prescriptionID, documentID string) (*document.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[document.Key(prescriptionID, documentID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func (d *memDocs) List(_ context.Context, prescriptionID string) ([]document.Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []document.Info{}
	for _, doc := range d.docs {
		if doc.PrescriptionID == prescriptionID {
			out = append(out, doc.Info)
		}
	}
	return out, nil
}

func (d *memDocs) Delete(_ context.Context, prescriptionID, documentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, document.Key(prescriptionID, documentID))
	return nil
}

// mockQueue records published subjects.
type mockQueue struct {
	mu       sync.Mutex
	subjects []string
	handlers map[string]messagequeue.Handler
	failErr  error
}

func (q *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failErr != nil {
		return q.failErr
	}
	q.subjects = append(q.subjects, subject)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

// deliver hands data to the handler subscribed to subject.
func (q *mockQueue) deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	h, ok := q.handlers[subject]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscriber for %s", subject)
	}
	return h(ctx, subject, data)
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) published() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.subjects)
}

// mockHub records broadcast event types.
type mockHub struct {
	mu     sync.Mutex
	events []string
}

func (h *mockHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}
