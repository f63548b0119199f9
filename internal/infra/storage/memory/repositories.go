package memory

import (
	"context"
	"sort"
	"sync"

	domainlistings "staykeeper/internal/domain/listings"
)

// ListingStore keeps committed listings. Every read and write goes through
// Clone so callers never share memory with the store.
type ListingStore struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingStore() *ListingStore {
	return &ListingStore{items: make(map[domainlistings.ListingID]*domainlistings.Listing)}
}

func (s *ListingStore) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	return listing.Clone(), nil
}

// Save writes listing directly, outside any unit of work. The stored version
// must match listing.Version; on success listing.Version is incremented.
func (s *ListingStore) Save(ctx context.Context, listing *domainlistings.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(listing.ID, listing.Version); err != nil {
		return err
	}
	listing.Version++
	s.items[listing.ID] = listing.Clone()
	return nil
}

func (s *ListingStore) ByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	return s.filter(ctx, func(l *domainlistings.Listing) bool {
		return l.Owner == owner && !l.Deleted
	})
}

func (s *ListingStore) ListActive(ctx context.Context) ([]*domainlistings.Listing, error) {
	return s.filter(ctx, func(l *domainlistings.Listing) bool {
		return !l.Deleted
	})
}

func (s *ListingStore) filter(ctx context.Context, keep func(*domainlistings.Listing) bool) ([]*domainlistings.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainlistings.Listing, 0, len(s.items))
	for _, l := range s.items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// checkVersion requires s.mu held for writing.
func (s *ListingStore) checkVersion(id domainlistings.ListingID, expected int64) error {
	current, ok := s.items[id]
	switch {
	case !ok && expected == 0:
		return nil
	case !ok:
		return domainlistings.ErrConcurrentUpdate
	case current.Version != expected:
		return domainlistings.ErrConcurrentUpdate
	}
	return nil
}

// apply writes a batch of staged listings if every expected version still
// matches. Nothing is written otherwise.
func (s *ListingStore) apply(staged []stagedListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range staged {
		if err := s.checkVersion(st.listing.ID, st.expected); err != nil {
			return err
		}
	}
	for _, st := range staged {
		s.items[st.listing.ID] = st.listing
	}
	return nil
}

var _ domainlistings.Repository = (*ListingStore)(nil)
