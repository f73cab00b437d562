/*
Package storage implements the durable request cache: the in-memory index of
every request the proxy is tracking, with write-through persistence to a
key-value store.

# Layout

All requests live under a single prefix derived from the process name:

	<process>.requests/ : clientRequestID → serialized Request (JSON or CBOR)

There are no secondary indices; the in-memory map is the index. Mutations
eagerly update the map and enqueue the entry into a batched write executor
which flushes on a fixed interval. Entries that fail to persist land in a
retry deque and are re-attempted while the request is still live. Finalized
requests are deleted after a TTL by the cleanup loop; a small LRU keeps the
last finalized entries addressable for late status queries.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vortexdex/dexproxy/db"
	"github.com/vortexdex/dexproxy/db/prefixeddb"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

var (
	// ErrAlreadyKnown is returned by Add when the client request id is
	// already tracked.
	ErrAlreadyKnown = errors.New("client_request_id is already known")
	// ErrNotFound is returned when a request id is not tracked.
	ErrNotFound = errors.New("request not found")
)

const (
	defaultWriteInterval   = 5 * time.Second
	defaultRetryInterval   = 10 * time.Second
	defaultCleanupInterval = 25 * time.Second
	finalizedLookback      = 512
)

// Config tunes the cache loops. Zero values fall back to defaults.
type Config struct {
	// ProcessName prefixes the persisted hash key.
	ProcessName string
	// Persist disables the write-through store entirely when false.
	Persist bool
	// CleanupAfter is how long finalized requests stay in the cache.
	CleanupAfter time.Duration
	// WriteInterval is the batch executor flush cadence.
	WriteInterval time.Duration
	// RetryInterval is the persistence retry cadence.
	RetryInterval time.Duration
	// CleanupInterval is the TTL sweep cadence.
	CleanupInterval time.Duration
	// Encoding selects the on-disk serialization of requests. JSON keeps
	// entries inspectable with standard tooling; CBOR is smaller.
	Encoding ArtifactEncoding
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ProcessName == "" {
		out.ProcessName = "dexproxy"
	}
	if out.WriteInterval == 0 {
		out.WriteInterval = defaultWriteInterval
	}
	if out.RetryInterval == 0 {
		out.RetryInterval = defaultRetryInterval
	}
	if out.CleanupInterval == 0 {
		out.CleanupInterval = defaultCleanupInterval
	}
	return out
}

// Storage is the durable request cache. It exclusively owns every Request:
// other components refer to requests by client id and mutate them only
// through Update.
type Storage struct {
	cfg Config
	kv  db.Database // nil when persistence is disabled

	mu       sync.RWMutex
	requests map[string]*types.Request

	// batch executor state
	pendingMu  sync.Mutex
	pendingSet map[string]struct{} // ids with unflushed upserts
	pendingDel map[string]struct{} // ids with unflushed deletes
	retryQueue []string            // ids whose persistence failed

	// finalized keeps recently cleaned-up requests addressable for status
	// queries that race the TTL sweep.
	finalized *lru.Cache[string, *types.Request]

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Storage persisting under base (which may be nil only when
// cfg.Persist is false).
func New(base db.Database, cfg Config) (*Storage, error) {
	cfg = cfg.withDefaults()
	if cfg.Persist && base == nil {
		return nil, fmt.Errorf("persistence enabled but no database provided")
	}
	finalized, err := lru.New[string, *types.Request](finalizedLookback)
	if err != nil {
		return nil, fmt.Errorf("create finalized lookback cache: %w", err)
	}
	s := &Storage{
		cfg:        cfg,
		requests:   make(map[string]*types.Request),
		pendingSet: make(map[string]struct{}),
		pendingDel: make(map[string]struct{}),
		finalized:  finalized,
		stop:       make(chan struct{}),
	}
	if cfg.Persist {
		s.kv = prefixeddb.NewPrefixedDatabase(base, []byte(cfg.ProcessName+".requests/"))
	}
	return s, nil
}

// Start launches the flush, retry and cleanup loops.
func (s *Storage) Start() {
	if s.kv != nil {
		s.wg.Add(2)
		go s.flushLoop()
		go s.retryLoop()
	}
	s.wg.Add(1)
	go s.cleanupLoop()
}

// Close stops the loops, performing a final flush so that no acknowledged
// mutation is lost on graceful shutdown.
func (s *Storage) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	if s.kv != nil {
		if err := s.flush(); err != nil {
			log.Errorw(err, "final cache flush failed")
		}
	}
}

func (s *Storage) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.WriteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				log.Warnw("cache flush failed", "error", err.Error())
			}
		}
	}
}

func (s *Storage) retryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.drainRetryQueue()
		}
	}
}

func (s *Storage) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupFinalized()
		}
	}
}

// enqueuePersist marks id for upsert on the next flush.
func (s *Storage) enqueuePersist(id string) {
	if s.kv == nil {
		return
	}
	s.pendingMu.Lock()
	delete(s.pendingDel, id)
	s.pendingSet[id] = struct{}{}
	s.pendingMu.Unlock()
}

// enqueueDelete marks id for deletion on the next flush.
func (s *Storage) enqueueDelete(id string) {
	if s.kv == nil {
		return
	}
	s.pendingMu.Lock()
	delete(s.pendingSet, id)
	s.pendingDel[id] = struct{}{}
	s.pendingMu.Unlock()
}

// flush writes all pending operations in one transaction. On failure the
// upsert ids move to the retry queue; deletes are re-queued as deletes.
func (s *Storage) flush() error {
	s.pendingMu.Lock()
	if len(s.pendingSet) == 0 && len(s.pendingDel) == 0 {
		s.pendingMu.Unlock()
		return nil
	}
	upserts := s.pendingSet
	deletes := s.pendingDel
	s.pendingSet = make(map[string]struct{})
	s.pendingDel = make(map[string]struct{})
	s.pendingMu.Unlock()

	wTx := s.kv.WriteTx()
	defer wTx.Discard()

	written := 0
	for id := range upserts {
		r := s.snapshot(id)
		if r == nil {
			// request vanished between enqueue and flush
			continue
		}
		data, err := EncodeArtifact(r, s.cfg.Encoding)
		if err != nil {
			log.Warnw("cannot serialize request, dropping from flush",
				"clientRequestId", id, "error", err.Error())
			continue
		}
		if err := wTx.Set([]byte(id), data); err != nil {
			s.requeue(upserts, deletes)
			return fmt.Errorf("set %s: %w", id, err)
		}
		written++
	}
	for id := range deletes {
		if err := wTx.Delete([]byte(id)); err != nil {
			s.requeue(upserts, deletes)
			return fmt.Errorf("delete %s: %w", id, err)
		}
		written++
	}
	if written == 0 {
		return nil
	}
	if err := wTx.Commit(); err != nil {
		s.requeue(upserts, deletes)
		return fmt.Errorf("commit batch of %d ops: %w", written, err)
	}
	log.Debugw("cache batch flushed", "ops", written)
	return nil
}

// requeue pushes failed upsert ids onto the retry queue and restores the
// failed deletes for the next flush.
func (s *Storage) requeue(upserts, deletes map[string]struct{}) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id := range upserts {
		s.retryQueue = append(s.retryQueue, id)
	}
	for id := range deletes {
		s.pendingDel[id] = struct{}{}
	}
}

// drainRetryQueue re-marks still-live ids for persistence and drops the
// rest. A drained id whose request finalized long enough ago to be cleanup
// eligible is dropped too; the cleanup loop handles its deletion.
func (s *Storage) drainRetryQueue() {
	s.pendingMu.Lock()
	queue := s.retryQueue
	s.retryQueue = nil
	s.pendingMu.Unlock()
	if len(queue) == 0 {
		return
	}

	retried := 0
	for _, id := range queue {
		r := s.snapshot(id)
		if r == nil {
			continue
		}
		if r.Finalised() && s.cleanupEligible(r) {
			continue
		}
		s.enqueuePersist(id)
		retried++
	}
	if retried > 0 {
		log.Debugw("retry queue drained", "retried", retried, "dropped", len(queue)-retried)
	}
}

func (s *Storage) cleanupEligible(r *types.Request) bool {
	if !r.Finalised() || s.cfg.CleanupAfter <= 0 {
		return false
	}
	age := time.Now().UnixMilli() - r.FinalisedAtMs
	return age > s.cfg.CleanupAfter.Milliseconds()
}

// cleanupFinalized removes requests finalized longer than CleanupAfter ago
// from the map and the store.
func (s *Storage) cleanupFinalized() {
	var expired []string
	s.mu.RLock()
	for id, r := range s.requests {
		if s.cleanupEligible(r) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()
	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, id := range expired {
		if r, ok := s.requests[id]; ok {
			s.finalized.Add(id, r)
			delete(s.requests, id)
		}
	}
	s.mu.Unlock()
	for _, id := range expired {
		s.enqueueDelete(id)
	}
	log.Infow("cleaned up finalized requests", "count", len(expired))
}

// snapshot returns a clone of the live request, or nil.
func (s *Storage) snapshot(id string) *types.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil
	}
	return r.Clone()
}
