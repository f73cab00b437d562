package storage

import (
	"fmt"

	"github.com/vortexdex/dexproxy/types"
)

// Add registers a new request in the cache. The client request id must be
// unused; a duplicate returns ErrAlreadyKnown so the API can reject the
// submission before any transaction work happens.
func (s *Storage) Add(r *types.Request) error {
	if r.ClientRequestID == "" {
		return fmt.Errorf("request has empty client_request_id")
	}
	s.mu.Lock()
	if _, ok := s.requests[r.ClientRequestID]; ok {
		s.mu.Unlock()
		return ErrAlreadyKnown
	}
	s.requests[r.ClientRequestID] = r.Clone()
	s.mu.Unlock()
	s.enqueuePersist(r.ClientRequestID)
	return nil
}

// Get returns a copy of the request. Entries removed by the TTL sweep are
// gone: lookups after cleanup_after report not-found.
func (s *Storage) Get(id string) (*types.Request, error) {
	if r := s.snapshot(id); r != nil {
		return r, nil
	}
	return nil, ErrNotFound
}

// FinalizedLookback answers from the post-cleanup diagnostics cache. It is
// for operator tooling only; the API surface never consults it.
func (s *Storage) FinalizedLookback(id string) (*types.Request, bool) {
	if r, ok := s.finalized.Get(id); ok {
		return r.Clone(), true
	}
	return nil, false
}

// GetAll returns copies of every live request.
func (s *Storage) GetAll() []*types.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Clone())
	}
	return out
}

// OpenRequests returns copies of every request not yet in a terminal status.
func (s *Storage) OpenRequests() []*types.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Request
	for _, r := range s.requests {
		if !r.Finalised() {
			out = append(out, r.Clone())
		}
	}
	return out
}

// MaxNonce returns the highest nonce assigned to any cached request and
// whether any request carries a nonce at all. The dispatcher seeds its
// counter from this at startup.
func (s *Storage) MaxNonce() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max uint64
	found := false
	for _, r := range s.requests {
		if r.Nonce != nil && (!found || *r.Nonce > max) {
			max = *r.Nonce
			found = true
		}
	}
	return max, found
}

// Update applies fn to the request under the cache lock and enqueues the
// result for persistence. fn runs on the cache's own copy; returning an
// error discards nothing, partial mutations made by fn are kept, so fn must
// either fully apply or not touch the request.
func (s *Storage) Update(id string, fn func(r *types.Request) error) error {
	s.mu.Lock()
	r, ok := s.requests[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	err := fn(r)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.enqueuePersist(id)
	return nil
}

// Finalise transitions the request to the terminal status and enqueues it
// for persistence. Already-finalized requests are left untouched.
func (s *Storage) Finalise(id string, status types.RequestStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	return s.Update(id, func(r *types.Request) error {
		if r.Finalised() {
			return nil
		}
		return r.SetStatus(status)
	})
}

// Count returns the number of live requests, split into open and finalized.
func (s *Storage) Count() (open, finalized int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.Finalised() {
			finalized++
		} else {
			open++
		}
	}
	return open, finalized
}
