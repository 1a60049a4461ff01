package billing

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
// It is suitable for tests and local development; state is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	byUser     map[string]*Record
	byCustomer map[string]string // customer ID -> user ID
	bySub      map[string]string // subscription ID -> user ID
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser:     make(map[string]*Record),
		byCustomer: make(map[string]string),
		bySub:      make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetByUserID(_ context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byUser[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := rec.clone()
	return &out, nil
}

func (s *MemoryStore) GetByCustomerID(_ context.Context, customerID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byCustomer[customerID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := s.byUser[userID].clone()
	return &out, nil
}

func (s *MemoryStore) UpsertCustomer(_ context.Context, userID, customerID string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, taken := s.byCustomer[customerID]; taken && owner != userID {
		return nil, errors.Join(ErrFailedToPersistRecord, ErrCustomerConflict)
	}

	now := s.now()
	rec, ok := s.byUser[userID]
	switch {
	case !ok:
		r := newRecord(userID, customerID, now)
		rec = &r
		s.byUser[userID] = rec
		s.byCustomer[customerID] = userID
	case rec.ProviderCustomerID == "":
		rec.ProviderCustomerID = customerID
		rec.UpdatedAt = now
		s.byCustomer[customerID] = userID
	}

	out := rec.clone()
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	if rec == nil || rec.ProviderCustomerID == "" {
		return ErrMissingCustomerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byCustomer[rec.ProviderCustomerID]
	if !ok {
		return ErrRecordNotFound
	}
	stored := s.byUser[userID]
	if isNewer(stored, rec) {
		return ErrStaleEvent
	}
	if rec.ProviderSubID != "" {
		if owner, taken := s.bySub[rec.ProviderSubID]; taken && owner != userID {
			return errors.Join(ErrFailedToPersistRecord, ErrSubscriptionConflict)
		}
	}

	next := rec.clone()
	next.ID = stored.ID
	next.UserID = stored.UserID
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = s.now()
	if stored.ProviderSubID != next.ProviderSubID {
		delete(s.bySub, stored.ProviderSubID)
	}
	if next.ProviderSubID != "" {
		s.bySub[next.ProviderSubID] = userID
	}
	s.byUser[userID] = &next
	rec.UpdatedAt = next.UpdatedAt
	return nil
}
