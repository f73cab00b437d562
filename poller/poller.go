/*
Package poller drives in-flight transactions to a terminal status. It owns
the tx hash to request mapping, asks the chain client for receipts on a
fixed cadence and reports outcomes through a narrow callback, never touching
the request cache directly.

A mined cancel always finalizes the request as CANCELED, whatever the
receipt status says: the cancel consumed the nonce slot, which invalidates
the original transaction either way.
*/
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/storage"
	"github.com/vortexdex/dexproxy/types"
)

const defaultPollInterval = 2 * time.Second

// StatusCallback receives terminal outcomes. The lifecycle manager
// implements it; implementations must be safe to call from the poller
// goroutines and reentrant with respect to the request cache.
type StatusCallback interface {
	OnRequestStatusUpdate(clientRequestID string, status types.RequestStatus, receipt *chain.Receipt, minedTxHash string)
}

// RequestReader is the slice of the request cache the poller needs.
type RequestReader interface {
	Get(id string) (*types.Request, error)
	OpenRequests() []*types.Request
}

// Config tunes the polling cadences.
type Config struct {
	// PollInterval is the receipt polling cadence.
	PollInterval time.Duration
	// ReconcileTargetBlocks enables the missed-target-block loop used by
	// builder-bundled venues.
	ReconcileTargetBlocks bool
	// MissGrace delays the missed-target verdict after the target block's
	// timestamp, leaving room for late receipts. Zero fails immediately.
	MissGrace time.Duration
}

type entry struct {
	clientRequestID string
	action          types.ActionTag
}

// Poller polls transaction receipts and reports terminal outcomes.
type Poller struct {
	cfg      Config
	client   chain.Client
	requests RequestReader
	callback StatusCallback

	mu      sync.Mutex
	tracked map[string]entry // tx hash → request reference

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Poller. Callback invocations start after Start.
func New(client chain.Client, requests RequestReader, callback StatusCallback, cfg Config) *Poller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		requests: requests,
		callback: callback,
		tracked:  make(map[string]entry),
		stop:     make(chan struct{}),
	}
}

// AddForPolling registers a transaction hash for receipt tracking.
func (p *Poller) AddForPolling(txHash, clientRequestID string, action types.ActionTag) {
	p.mu.Lock()
	p.tracked[txHash] = entry{clientRequestID: clientRequestID, action: action}
	p.mu.Unlock()
	log.Debugw("tx registered for polling",
		"txHash", txHash, "clientRequestId", clientRequestID, "action", string(action))
}

// Tracked returns the number of transactions currently under watch.
func (p *Poller) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracked)
}

// Start launches the polling loops.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.pollLoop(ctx)
	if p.cfg.ReconcileTargetBlocks {
		p.wg.Add(1)
		go p.reconcileLoop(ctx)
	}
}

// Stop halts the loops and waits for them.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce walks a snapshot of the tracked set and resolves every hash that
// has a receipt.
func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	snapshot := make(map[string]entry, len(p.tracked))
	for hash, e := range p.tracked {
		snapshot[hash] = e
	}
	p.mu.Unlock()

	for hash, e := range snapshot {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.pollHash(ctx, hash, e)
	}
}

// PollForStatus resolves a single hash immediately, the fast path for
// mined-transaction notifications arriving over a chain subscription.
func (p *Poller) PollForStatus(ctx context.Context, txHash string) {
	p.mu.Lock()
	e, ok := p.tracked[txHash]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.pollHash(ctx, txHash, e)
}

func (p *Poller) pollHash(ctx context.Context, hash string, e entry) {
	r, err := p.requests.Get(e.clientRequestID)
	if err != nil || r.Finalised() {
		// the request is gone or another attempt already resolved it
		p.drop(hash)
		return
	}

	receipt, err := p.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, chain.ErrReceiptNotFound) {
			return
		}
		log.Warnw("receipt query failed",
			"txHash", hash, "clientRequestId", e.clientRequestID, "error", err.Error())
		return
	}

	status := statusForReceipt(e.action, receipt)
	log.Infow("tx mined",
		"txHash", hash,
		"clientRequestId", e.clientRequestID,
		"action", string(e.action),
		"receiptStatus", receipt.Status,
		"requestStatus", string(status))
	p.callback.OnRequestStatusUpdate(e.clientRequestID, status, receipt, hash)
	p.drop(hash)
}

func (p *Poller) drop(hash string) {
	p.mu.Lock()
	delete(p.tracked, hash)
	p.mu.Unlock()
}

func statusForReceipt(action types.ActionTag, receipt *chain.Receipt) types.RequestStatus {
	if action == types.ActionCancel {
		return types.StatusCanceled
	}
	if receipt.Status == 1 {
		return types.StatusSucceeded
	}
	return types.StatusFailed
}

var _ RequestReader = (*storage.Storage)(nil)
