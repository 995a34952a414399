// Package memory is an in-process implementation of the repository
// interfaces for development and tests. It keeps the same cascade rules as
// the PostgreSQL backend.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store holds every table behind one mutex, so each method is a transaction.
type Store struct {
	mu         sync.Mutex
	clients    map[uuid.UUID]*model.Client
	tokens     map[uuid.UUID]*model.Token
	byHash     map[string]uuid.UUID
	usage      []model.UsageRecord
	facilities map[uuid.UUID]*model.Facility
	draws      []model.DrawRequest
	now        func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		clients:    map[uuid.UUID]*model.Client{},
		tokens:     map[uuid.UUID]*model.Token{},
		byHash:     map[string]uuid.UUID{},
		facilities: map[uuid.UUID]*model.Facility{},
		now:        time.Now,
	}
}

func cloneClient(c *model.Client) *model.Client {
	cp := *c
	cp.AllowedScopes = slices.Clone(c.AllowedScopes)
	cp.SecretHash = slices.Clone(c.SecretHash)
	cp.SecretSalt = slices.Clone(c.SecretSalt)
	if c.OrganizationID != nil {
		org := *c.OrganizationID
		cp.OrganizationID = &org
	}
	return &cp
}

func (s *Store) revokeTokensLocked(clientID uuid.UUID) {
	for _, t := range s.tokens {
		if t.ClientID == clientID {
			t.Revoked = true
		}
	}
}

// Create implements repository.ClientRepository.
func (s *Store) Create(_ context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ClientID]; ok {
		return errs.ErrAlreadyExists
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.clients[c.ClientID] = cloneClient(c)
	return nil
}

// Get implements repository.ClientRepository.
func (s *Store) Get(_ context.Context, id uuid.UUID) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneClient(c), nil
}

// List implements repository.ClientRepository.
func (s *Store) List(_ context.Context, f model.ClientFilter) ([]model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Client{}
	for _, c := range s.clients {
		if f.OrganizationID != nil && (c.OrganizationID == nil || *c.OrganizationID != *f.OrganizationID) {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		out = append(out, *cloneClient(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ClientID.String() < out[j].ClientID.String()
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if f.Offset >= len(out) {
		return []model.Client{}, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) update(id uuid.UUID, fn func(c *model.Client) error) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	return cloneClient(c), nil
}

// UpdateStatus implements repository.ClientRepository.
func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, status model.ClientStatus) (*model.Client, error) {
	return s.update(id, func(c *model.Client) error {
		if c.Status == model.StatusRevoked && status != model.StatusRevoked {
			return errs.ErrConflict
		}
		c.Status = status
		if status != model.StatusActive {
			s.revokeTokensLocked(id)
		}
		return nil
	})
}

// UpdateScopes implements repository.ClientRepository.
func (s *Store) UpdateScopes(_ context.Context, id uuid.UUID, scopes []string) (*model.Client, error) {
	return s.update(id, func(c *model.Client) error {
		c.AllowedScopes = slices.Clone(scopes)
		return nil
	})
}

// UpdateRateLimit implements repository.ClientRepository.
func (s *Store) UpdateRateLimit(_ context.Context, id uuid.UUID, limit int) (*model.Client, error) {
	return s.update(id, func(c *model.Client) error {
		c.RateLimit = limit
		return nil
	})
}

// UpdateSecret implements repository.ClientRepository.
func (s *Store) UpdateSecret(_ context.Context, id uuid.UUID, hash, salt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok || c.Status == model.StatusRevoked {
		return errs.ErrNotFound
	}
	c.SecretHash, c.SecretSalt = slices.Clone(hash), slices.Clone(salt)
	c.UpdatedAt = s.now()
	s.revokeTokensLocked(id)
	return nil
}

// Delete implements repository.ClientRepository.
func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return errs.ErrNotFound
	}
	for tid, t := range s.tokens {
		if t.ClientID == id {
			s.dropTokenLocked(tid, t)
		}
	}
	delete(s.clients, id)
	return nil
}

func (s *Store) dropTokenLocked(id uuid.UUID, t *model.Token) {
	delete(s.byHash, string(t.TokenHash))
	delete(s.tokens, id)
}

// Tokens returns the token repository view of the store.
func (s *Store) Tokens() *Tokens { return &Tokens{s: s} }

// Tokens implements repository.TokenRepository over a Store.
type Tokens struct{ s *Store }

// Create implements repository.TokenRepository.
func (r *Tokens) Create(_ context.Context, t *model.Token, maxActive int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[t.ClientID]
	if !ok || !c.IsActive() {
		return errs.ErrInvalidClient
	}
	if _, dup := s.byHash[string(t.TokenHash)]; dup {
		return errs.ErrAlreadyExists
	}
	cp := *t
	cp.TokenHash = slices.Clone(t.TokenHash)
	cp.GrantedScopes = slices.Clone(t.GrantedScopes)
	s.tokens[t.ID] = &cp
	s.byHash[string(cp.TokenHash)] = t.ID

	if maxActive <= 0 {
		return nil
	}
	var live []*model.Token
	for _, other := range s.tokens {
		if other.ClientID == t.ClientID && !other.Revoked && other.ExpiresAt.After(t.IssuedAt) {
			live = append(live, other)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].IssuedAt.Equal(live[j].IssuedAt) {
			return live[i].IssuedAt.After(live[j].IssuedAt)
		}
		return live[i].ID.String() > live[j].ID.String()
	})
	for i := maxActive; i < len(live); i++ {
		live[i].Revoked = true
	}
	return nil
}

// GetGrant implements repository.TokenRepository.
func (r *Tokens) GetGrant(_ context.Context, tokenHash []byte) (*model.TokenGrant, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[s.byHash[string(tokenHash)]]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c, ok := s.clients[t.ClientID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	g := &model.TokenGrant{Token: *t, Client: *cloneClient(c)}
	g.Token.GrantedScopes = slices.Clone(t.GrantedScopes)
	return g, nil
}

// Revoke implements repository.TokenRepository.
func (r *Tokens) Revoke(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return errs.ErrNotFound
	}
	t.Revoked = true
	return nil
}

// RevokeByHash implements repository.TokenRepository.
func (r *Tokens) RevokeByHash(_ context.Context, clientID uuid.UUID, tokenHash []byte) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[s.byHash[string(tokenHash)]]; ok && t.ClientID == clientID {
		t.Revoked = true
	}
	return nil
}

// PurgeExpired implements repository.TokenRepository.
func (r *Tokens) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(cutoff) {
			s.dropTokenLocked(id, t)
			n++
		}
	}
	return n, nil
}

// Usage returns the usage repository view of the store.
func (s *Store) Usage() *Usage { return &Usage{s: s} }

// Usage implements repository.UsageRepository over a Store.
type Usage struct{ s *Store }

// InsertBatch implements repository.UsageRepository.
func (u *Usage) InsertBatch(_ context.Context, recs []model.UsageRecord) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.s.usage = append(u.s.usage, recs...)
	return nil
}

// List implements repository.UsageRepository.
func (u *Usage) List(_ context.Context, clientID uuid.UUID, from, to time.Time) ([]model.UsageRecord, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var out []model.UsageRecord
	for _, r := range u.s.usage {
		if r.ClientID == clientID && !r.OccurredAt.Before(from) && r.OccurredAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// AddFacility seeds a facility.
func (s *Store) AddFacility(f model.Facility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	s.facilities[f.ID] = &f
}

// ListFacilities implements repository.FacilityRepository.
func (s *Store) ListFacilities(_ context.Context, orgID *string) ([]model.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Facility{}
	for _, f := range s.facilities {
		if orgID == nil || f.OrganizationID == *orgID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// GetFacility implements repository.FacilityRepository.
func (s *Store) GetFacility(_ context.Context, id uuid.UUID) (*model.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facilities[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// CreateDrawRequest implements repository.FacilityRepository.
func (s *Store) CreateDrawRequest(_ context.Context, d *model.DrawRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facilities[d.FacilityID]; !ok {
		return errs.ErrNotFound
	}
	d.CreatedAt = s.now()
	s.draws = append(s.draws, *d)
	return nil
}

// DrawRequests returns a copy of the stored draw requests.
func (s *Store) DrawRequests() []model.DrawRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.draws)
}
