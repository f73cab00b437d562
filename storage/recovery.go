package storage

import (
	"context"
	"time"

	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

const recoveryRetryInterval = 5 * time.Second

// Recover loads every persisted request into the in-memory index and returns
// the recovered requests so the caller can re-register their open attempts
// with the status poller. The store may not be reachable right after a
// restart, so the load retries until it succeeds or ctx is cancelled.
// Entries that fail to deserialize are logged and skipped; one corrupt row
// must not block recovery of the rest.
func (s *Storage) Recover(ctx context.Context) ([]*types.Request, error) {
	if s.kv == nil {
		return nil, nil
	}
	for {
		recovered, err := s.loadAll()
		if err == nil {
			log.Infow("request cache recovered", "requests", len(recovered))
			return recovered, nil
		}
		log.Warnw("cache recovery failed, retrying",
			"error", err.Error(), "retryIn", recoveryRetryInterval.String())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(recoveryRetryInterval):
		}
	}
}

func (s *Storage) loadAll() ([]*types.Request, error) {
	var recovered []*types.Request
	skipped := 0
	err := s.kv.Iterate(nil, func(key, value []byte) bool {
		r := new(types.Request)
		if err := DecodeArtifact(value, r, s.cfg.Encoding); err != nil {
			log.Warnw("skipping malformed cache entry",
				"key", string(key), "error", err.Error())
			skipped++
			return true
		}
		recovered = append(recovered, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warnw("cache entries skipped during recovery", "count", skipped)
	}

	s.mu.Lock()
	for _, r := range recovered {
		s.requests[r.ClientRequestID] = r
	}
	s.mu.Unlock()

	out := make([]*types.Request, len(recovered))
	for i, r := range recovered {
		out[i] = r.Clone()
	}
	return out, nil
}
